/*
 * MIT License
 *
 * Copyright (c) 2021 Nicolas JUHEL
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy
 * of this software and associated documentation files (the "Software"), to deal
 * in the Software without restriction, including without limitation the rights
 * to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is
 * furnished to do so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in all
 * copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 * FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 * AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 * LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 * OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 * SOFTWARE.
 *
 *
 */

// Package game runs concurrent tic-tac-toe sessions, each its own state
// machine (spec.md §3, §4.8).
package game

import (
	"sync"
	"time"

	"github.com/hashicorp/go-uuid"

	"github.com/nabbar/lsnp/internal/lsnperr"
)

// Cell is a board cell value (spec.md §3 GameSession).
type Cell int

const (
	Empty Cell = iota
	X
	O
)

// Status is a GameSession's lifecycle state (spec.md §3).
type Status int

const (
	StatusPendingAccept Status = iota
	StatusActive
	StatusWonX
	StatusWonO
	StatusDraw
	StatusAbandoned
)

// winningLines enumerates the 8 winning lines: 3 rows, 3 columns, 2
// diagonals (spec.md §4.8).
var winningLines = [8][3]int{
	{0, 1, 2}, {3, 4, 5}, {6, 7, 8},
	{0, 3, 6}, {1, 4, 7}, {2, 5, 8},
	{0, 4, 8}, {2, 4, 6},
}

// NewGameID mints a random 64-bit hex game_id (spec.md §4.8).
func NewGameID() (string, error) {
	b, err := uuid.GenerateRandomBytes(8)
	if err != nil {
		return "", lsnperr.Wrap(lsnperr.LocalIOError, "generate game_id", err)
	}
	const hex = "0123456789abcdef"
	out := make([]byte, 16)
	for i, v := range b {
		out[i*2] = hex[v>>4]
		out[i*2+1] = hex[v&0x0f]
	}
	return string(out), nil
}

// Session is a GameSession (spec.md §3): two players, a board, whose turn
// it is, the last accepted move_seq, and status.
type Session struct {
	GameID  string
	PlayerX string
	PlayerO string

	mu           sync.Mutex
	board        [9]Cell
	turn         Cell
	lastMoveSeq  int
	hasMoved     bool
	status       Status
	lastActivity time.Time
	pendingRetry map[int]int // seq -> retry count, for outbound move retransmission
	pending      *pendingMove
}

// pendingMove is the MOVE we most recently sent that hasn't yet been
// acknowledged by the opponent's reciprocal MOVE or RESULT (spec.md §4.8).
type pendingMove struct {
	seq      int
	position int
	sentAt   time.Time
}

// Invite starts a PENDING_ACCEPT session with the inviter as player X
// (spec.md §4.8 `invite`).
func Invite(gameID, inviter, opponent string) *Session {
	return &Session{
		GameID:       gameID,
		PlayerX:      inviter,
		PlayerO:      opponent,
		status:       StatusPendingAccept,
		lastActivity: time.Now(),
		pendingRetry: make(map[int]int),
	}
}

// Accept transitions to ACTIVE with an empty board and turn = X
// (spec.md §4.8 "both sides transition to ACTIVE with an empty board and
// turn = X").
func (s *Session) Accept() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status = StatusActive
	s.turn = X
	s.lastActivity = time.Now()
}

// Status returns the session's current status.
func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// Board returns a copy of the board.
func (s *Session) Board() [9]Cell {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.board
}

// playerCell returns the Cell a given UserId plays as, or false if userID
// is not in this session.
func (s *Session) playerCell(userID string) (Cell, bool) {
	switch userID {
	case s.PlayerX:
		return X, true
	case s.PlayerO:
		return O, true
	default:
		return Empty, false
	}
}

// ApplyMove validates and applies a TICTACTOE_MOVE (spec.md §4.8:
// "game ACTIVE; sender is the current turn's player; cell empty; move_seq
// equals expected next sequence"). On success, returns the resulting
// status and whether the game just ended.
func (s *Session) ApplyMove(sender string, position, moveSeq int) (Status, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.status != StatusActive {
		return s.status, false, lsnperr.New(lsnperr.Unauthorized, "game not active")
	}

	expected := 0
	if s.hasMoved {
		expected = s.lastMoveSeq + 1
	}
	if moveSeq != expected {
		if moveSeq <= s.lastMoveSeq && s.hasMoved {
			// duplicate of an already-processed move: acknowledged
			// idempotently, no state change (spec.md §4.8).
			return s.status, false, nil
		}
		return s.status, false, lsnperr.New(lsnperr.MalformedFrame, "unexpected move_seq")
	}

	cell, ok := s.playerCell(sender)
	if !ok || cell != s.turn {
		return s.status, false, lsnperr.New(lsnperr.Unauthorized, "not "+sender+"'s turn")
	}

	if position < 0 || position > 8 || s.board[position] != Empty {
		return s.status, false, lsnperr.New(lsnperr.MalformedFrame, "cell not empty")
	}

	s.board[position] = cell
	s.lastMoveSeq = moveSeq
	s.hasMoved = true
	s.lastActivity = time.Now()

	if won := s.checkWin(cell); won {
		if cell == X {
			s.status = StatusWonX
		} else {
			s.status = StatusWonO
		}
		return s.status, true, nil
	}
	if s.boardFull() {
		s.status = StatusDraw
		return s.status, true, nil
	}

	if s.turn == X {
		s.turn = O
	} else {
		s.turn = X
	}
	return s.status, false, nil
}

func (s *Session) checkWin(cell Cell) bool {
	for _, line := range winningLines {
		if s.board[line[0]] == cell && s.board[line[1]] == cell && s.board[line[2]] == cell {
			return true
		}
	}
	return false
}

func (s *Session) boardFull() bool {
	for _, c := range s.board {
		if c == Empty {
			return false
		}
	}
	return true
}

// LastMoveSeq returns the last accepted move_seq and whether any move has
// been accepted yet.
func (s *Session) LastMoveSeq() (int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastMoveSeq, s.hasMoved
}

// RecordRetry increments seq's outbound retransmission counter and
// reports whether the retry budget (spec.md §4.8 "up to 3 times") is
// exhausted.
func (s *Session) RecordRetry(seq, maxRetries int) (exhausted bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pendingRetry[seq]++
	return s.pendingRetry[seq] > maxRetries
}

// ClearRetry removes seq's retry bookkeeping once its MOVE or the
// opponent's reciprocal MOVE/RESULT is observed (spec.md §4.8
// "retransmitted ... until the opponent's reciprocal MOVE or RESULT is
// observed").
func (s *Session) ClearRetry(seq int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.pendingRetry, seq)
}

// RecordSentMove notes the MOVE we just (re)sent, for DueRetransmit to
// compare against on the next timer tick (spec.md §4.8 `tictactoe_move`).
func (s *Session) RecordSentMove(seq, position int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending = &pendingMove{seq: seq, position: position, sentAt: time.Now()}
}

// ObservedReply clears outbound retransmission bookkeeping once the
// opponent's reciprocal MOVE or RESULT has been observed (spec.md §4.8).
func (s *Session) ObservedReply() {
	s.mu.Lock()
	p := s.pending
	s.pending = nil
	s.mu.Unlock()
	if p != nil {
		s.ClearRetry(p.seq)
	}
}

// DueRetransmit reports the pending MOVE to resend if GameMoveInterval has
// elapsed since it was last sent (spec.md §4.8 "retransmitted up to 3
// times at 2-second intervals"), driving RecordRetry the same way a fresh
// outbound MOVE would. exhausted reports that this MOVE just ran out of
// its retry budget — the caller should abandon the session instead of
// resending.
func (s *Session) DueRetransmit(now time.Time, timeout time.Duration, maxRetries int) (position, seq int, due, exhausted bool) {
	s.mu.Lock()
	p := s.pending
	active := s.status == StatusActive
	s.mu.Unlock()

	if p == nil || !active || now.Sub(p.sentAt) < timeout {
		return 0, 0, false, false
	}
	if s.RecordRetry(p.seq, maxRetries) {
		return 0, 0, false, true
	}

	s.mu.Lock()
	if s.pending != nil && s.pending.seq == p.seq {
		s.pending.sentAt = now
	}
	s.mu.Unlock()
	return p.position, p.seq, true, false
}

// Abandon transitions the session to ABANDONED, e.g. on timeout
// (spec.md §3, §5).
func (s *Session) Abandon() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status = StatusAbandoned
}

// IdleFor reports how long the session has gone without an accepted
// move.
func (s *Session) IdleFor(now time.Time) time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return now.Sub(s.lastActivity)
}

// Manager owns every concurrent Session (spec.md §4.8 "runs concurrent
// tic-tac-toe sessions").
type Manager struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

// New returns an empty Manager.
func New() *Manager {
	return &Manager{sessions: make(map[string]*Session)}
}

// Add registers s under its GameID.
func (m *Manager) Add(s *Session) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[s.GameID] = s
}

// Lookup returns the Session for gameID, if active games is tracking it.
func (m *Manager) Lookup(gameID string) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[gameID]
	return s, ok
}

// Remove drops gameID from the active set, e.g. once a game reaches a
// terminal status (spec.md §8 scenario 6: "the game_id is absent from
// active games").
func (m *Manager) Remove(gameID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, gameID)
}

// List returns every tracked Session, pending or active.
func (m *Manager) List() []*Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, s)
	}
	return out
}
