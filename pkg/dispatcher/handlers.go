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

// handlers.go holds the per-TYPE frame handlers route() dispatches to
// (spec.md §4.5-§4.8): each one translates a validated Message into a
// mutation on the owning subsystem and, where spec.md calls for it, an
// outbound reply or a Notifier event.
package dispatcher

import (
	"context"
	"encoding/base64"
	"fmt"
	"net"

	"github.com/nabbar/lsnp/internal/lsnplog"
	"github.com/nabbar/lsnp/pkg/codec"
	"github.com/nabbar/lsnp/pkg/filetransfer"
	"github.com/nabbar/lsnp/pkg/game"
	"github.com/nabbar/lsnp/pkg/presence"
	"github.com/nabbar/lsnp/pkg/social"
)

// broadcastPing sends a bare PING, advertising presence (spec.md §4.9).
func (d *Dispatcher) broadcastPing(ctx context.Context) error {
	return d.sendBroadcast(ctx, d.newMessage(codec.TypePing))
}

// broadcastProfile sends the current PROFILE — display name, status, and
// an optional inline avatar (spec.md §4.4 `profile`).
func (d *Dispatcher) broadcastProfile(ctx context.Context, p presence.Profile) error {
	var fields []kv
	fields = append(fields, kv{"DISPLAY_NAME", p.DisplayName}, kv{"STATUS", p.Status})
	if p.AvatarType != "" {
		fields = append(fields, kv{"AVATAR_TYPE", p.AvatarType}, kv{"AVATAR_DATA", p.AvatarData})
	}
	return d.sendBroadcast(ctx, d.newMessage(codec.TypeProfile, fields...))
}

// handlePost applies an inbound POST, notifying only if the author is
// followed (spec.md §4.5, §8 universal invariant).
func (d *Dispatcher) handlePost(m *codec.Message) {
	author, _ := m.Get("USER_ID")
	content, _ := m.Get("CONTENT")
	ts, _ := m.Get("TIMESTAMP")

	p := social.Post{Author: author, Timestamp: parseEpoch(ts), Body: content}
	if d.soc.AcceptInboundPost(p) {
		d.notify(fmt.Sprintf("%s: %s", author, content))
	}
}

// handleDM surfaces an inbound direct message (spec.md §4.5 `dm`) —
// unlike POST, a DM is always delivered regardless of follow state.
func (d *Dispatcher) handleDM(m *codec.Message) {
	author, _ := m.Get("USER_ID")
	content, _ := m.Get("CONTENT")
	d.notify(fmt.Sprintf("[DM] %s: %s", author, content))
}

// handleLike applies an inbound LIKE, dropping it unless it targets one of
// our own posts, and deduplicating repeats (spec.md §4.5, §8 "Duplicate
// inbound LIKE: no double-notification").
func (d *Dispatcher) handleLike(m *codec.Message) {
	liker, _ := m.Get("USER_ID")
	author, _ := m.Get("AUTHOR")
	tsStr, _ := m.Get("POST_TIMESTAMP")
	ts := parseEpoch(tsStr)

	if author != "" && author != d.self {
		return
	}
	if !d.soc.HasOwnPost(ts) {
		return
	}
	l := social.Like{Liker: liker, Author: d.self, PostTimestamp: ts}
	if d.soc.RecordLike(l) {
		d.notify(fmt.Sprintf("[Like] %s liked your post from %s", liker, tsStr))
	}
}

// handleGroupUpdate applies an inbound GROUP_UPDATE iff the sender is the
// group's recorded owner, or this is our first sighting of the group
// (spec.md §4.6 inbound policy: "GROUP_UPDATE from non-owner is ignored").
func (d *Dispatcher) handleGroupUpdate(m *codec.Message) {
	groupID, _ := m.Get("GROUP_ID")
	owner, _ := m.Get("USER_ID")
	membersCSV, _ := m.Get("MEMBERS")
	members := splitCSV(membersCSV)

	if _, ok := d.grp.Lookup(groupID); ok && !d.grp.IsOwner(groupID, owner) {
		d.log.Debug("GROUP_UPDATE from non-owner ignored", lsnplog.Fields{"group": groupID, "claimed_owner": owner})
		return
	}
	d.grp.ApplyRemoteUpdate(groupID, "", owner, members)
}

// handleGroupMessage surfaces an inbound GROUP_MESSAGE, dropping it unless
// the sender is a current member (spec.md §4.6 inbound policy).
func (d *Dispatcher) handleGroupMessage(m *codec.Message) {
	groupID, _ := m.Get("GROUP_ID")
	sender, _ := m.Get("USER_ID")
	content, _ := m.Get("CONTENT")

	if !d.grp.IsMember(groupID, sender) {
		d.log.Debug("GROUP_MESSAGE from non-member dropped", lsnplog.Fields{"group": groupID, "sender": sender})
		return
	}
	title := groupID
	if g, ok := d.grp.Lookup(groupID); ok && g.Title != "" {
		title = g.Title
	}
	d.notify(fmt.Sprintf("[Group: '%s'] %s: %s", title, sender, content))
}

// handleFileOffer registers a receiver-side Transfer and surfaces the
// offer for the user to accept (spec.md §4.7 step 1).
func (d *Dispatcher) handleFileOffer(m *codec.Message, from *net.UDPAddr) {
	sender, _ := m.Get("USER_ID")
	fileID, _ := m.Get("FILE_ID")
	filename, _ := m.Get("FILENAME")
	size := parseEpoch(mustGet(m, "SIZE"))
	chunkSize := int(parseEpoch(mustGet(m, "CHUNK_SIZE")))
	totalChunks := int(parseEpoch(mustGet(m, "TOTAL_CHUNKS")))

	tr := filetransfer.OfferInbound(fileID, sender, d.self, filename, size, chunkSize, totalChunks)
	d.transfers.Store(fileID, tr)
	d.notify(fmt.Sprintf("[File] %s offers %s (%d bytes) — file_accept %s", sender, filename, size, fileID))
}

func mustGet(m *codec.Message, key string) string {
	v, _ := m.Get(key)
	return v
}

// handleFileAccept transitions a sender-side Transfer to ACCEPTED
// (spec.md §4.7 step 2). The caller who holds the source bytes and calls
// SendChunks is the command surface that issued the offer, not this
// handler — this only flips the state the command surface polls.
func (d *Dispatcher) handleFileAccept(m *codec.Message) {
	fileID, _ := m.Get("FILE_ID")
	if tr, ok := d.transfers.Load(fileID); ok {
		tr.Accept()
	}
}

// handleFileChunk stores an inbound chunk, ACKs it, and — once every
// chunk has arrived — assembles and persists the file (spec.md §4.7
// step 3-4, §8 "Duplicate inbound FILE_CHUNK: ACKed, payload applied
// exactly once").
func (d *Dispatcher) handleFileChunk(m *codec.Message, from *net.UDPAddr) {
	fileID, _ := m.Get("FILE_ID")
	seq := int(parseEpoch(mustGet(m, "SEQ")))
	dataB64, _ := m.Get("DATA")
	compressedStr, _ := m.Get("COMPRESSED")
	sender, _ := m.Get("USER_ID")

	tr, ok := d.transfers.Load(fileID)
	if !ok {
		return
	}

	data, err := base64.StdEncoding.DecodeString(dataB64)
	if err != nil {
		d.log.Debug("chunk payload not valid base64", lsnplog.Fields{"file_id": fileID, "seq": seq})
		return
	}
	if err := tr.ReceiveChunk(seq, data, compressedStr == "true"); err != nil {
		d.log.Debug("chunk rejected", lsnplog.Fields{"file_id": fileID, "seq": seq, "error": err.Error()})
		return
	}

	ack := d.newMessage(codec.TypeAck, kv{"FILE_ID", fileID}, kv{"SEQ", formatEpoch(int64(seq))})
	if err := d.sendUnicastTo(context.Background(), sender, ack); err != nil {
		d.log.Warn("failed to ACK chunk", lsnplog.Fields{"file_id": fileID, "seq": seq, "error": err.Error()})
	}

	if tr.Complete() {
		body := tr.Assemble()
		if err := writeReceivedFile(tr.Filename, body); err != nil {
			d.notify(fmt.Sprintf("[File] failed to save %s: %s", tr.Filename, err))
		} else {
			d.notify(fmt.Sprintf("[File] received %s", tr.Filename))
		}
		tr.MarkComplete()
		d.transfers.Delete(fileID)
	}
}

// handleFileComplete marks a receiver-side Transfer COMPLETE on the
// sender's closing FILE_COMPLETE frame and drops it from the registry
// (spec.md §4.7 step 4); it is a no-op once handleFileChunk has already
// retired the transfer.
func (d *Dispatcher) handleFileComplete(m *codec.Message) {
	fileID, _ := m.Get("FILE_ID")
	if tr, ok := d.transfers.Load(fileID); ok {
		tr.MarkComplete()
	}
	d.transfers.Delete(fileID)
}

// handleAck advances a sender-side Transfer's window and, once every
// chunk is acknowledged, sends FILE_COMPLETE and retires the transfer
// (spec.md §4.7 step 3-4).
func (d *Dispatcher) handleAck(m *codec.Message) {
	fileID, _ := m.Get("FILE_ID")
	seq := int(parseEpoch(mustGet(m, "SEQ")))
	sender, _ := m.Get("USER_ID")

	tr, ok := d.transfers.Load(fileID)
	if !ok {
		return
	}
	tr.AckChunk(seq)
	if tr.AllAcked() {
		complete := d.newMessage(codec.TypeFileComplete, kv{"FILE_ID", fileID})
		if err := d.sendUnicastTo(context.Background(), sender, complete); err != nil {
			d.log.Warn("failed to send FILE_COMPLETE", lsnplog.Fields{"file_id": fileID, "error": err.Error()})
		}
		d.transfers.Delete(fileID)
	}
}

// handleGameInvite registers a PENDING_ACCEPT Session and surfaces the
// invite (spec.md §4.8 `invite`).
func (d *Dispatcher) handleGameInvite(m *codec.Message) {
	inviter, _ := m.Get("USER_ID")
	gameID, _ := m.Get("GAME_ID")

	s := game.Invite(gameID, inviter, d.self)
	d.games.Add(s)
	d.notify(fmt.Sprintf("[Game] %s invites you to tic-tac-toe (game_id %s) — tictactoe_accept %s", inviter, gameID, gameID))
}

// handleGameAccept transitions a Session to ACTIVE (spec.md §4.8
// "both sides transition to ACTIVE with an empty board and turn = X").
func (d *Dispatcher) handleGameAccept(m *codec.Message) {
	gameID, _ := m.Get("GAME_ID")
	if s, ok := d.games.Lookup(gameID); ok {
		s.Accept()
		d.notify(fmt.Sprintf("[Game] %s started", gameID))
	}
}

// handleGameMove applies an inbound TICTACTOE_MOVE (spec.md §4.8). A
// terminal move is not announced here: the mover's own side sends the
// authoritative TICTACTOE_RESULT (announceGameEnd in commands.go), and
// handleGameResult is the single place that notifies and retires the
// session — applying the board state here without also notifying avoids
// the double "[Game Over]" a naive mirror would produce.
func (d *Dispatcher) handleGameMove(m *codec.Message) {
	sender, _ := m.Get("USER_ID")
	gameID, _ := m.Get("GAME_ID")
	pos := int(parseEpoch(mustGet(m, "POSITION")))
	seq := int(parseEpoch(mustGet(m, "MOVE_SEQ")))

	s, ok := d.games.Lookup(gameID)
	if !ok {
		return
	}
	// The move just applied is the opponent's reciprocal reply to whatever
	// MOVE we last sent on this session — our own retransmission timer can
	// stop (spec.md §4.8 "until the opponent's reciprocal MOVE or RESULT
	// is observed").
	s.ObservedReply()

	if _, _, err := s.ApplyMove(sender, pos, seq); err != nil {
		d.log.Debug("move rejected", lsnplog.Fields{"game_id": gameID, "error": err.Error()})
	}
}

// handleGameResult surfaces the opponent's authoritative TICTACTOE_RESULT
// and retires the session locally (spec.md §4.8, §8 scenario 6) — the sole
// place a terminal outcome is notified, so a duplicate or retried RESULT
// (the session already removed) is a silent no-op instead of a repeat
// "[Game Over]" line.
func (d *Dispatcher) handleGameResult(m *codec.Message) {
	gameID, _ := m.Get("GAME_ID")
	result, _ := m.Get("RESULT")

	s, ok := d.games.Lookup(gameID)
	if !ok {
		return
	}
	s.ObservedReply()
	d.notify(fmt.Sprintf("[Game Over] %s", result))
	d.games.Remove(gameID)
}

// gameOutcome renders a terminal Status as the human-readable text also
// carried in TICTACTOE_RESULT's RESULT field.
func gameOutcome(lastMover string, status game.Status) string {
	switch status {
	case game.StatusWonX, game.StatusWonO:
		return fmt.Sprintf("%s wins!", lastMover)
	case game.StatusDraw:
		return "draw."
	default:
		return "ended."
	}
}

// announceGameEnd notifies the local user of a terminal status our own
// move just produced and sends the authoritative TICTACTOE_RESULT to the
// opponent, then retires the session (spec.md §8 scenario 6: "the
// game_id is absent from active games").
func (d *Dispatcher) announceGameEnd(s *game.Session, gameID, lastMover string, status game.Status) {
	outcome := gameOutcome(lastMover, status)
	d.notify(fmt.Sprintf("[Game Over] %s", outcome))

	opponent := s.PlayerO
	if lastMover == s.PlayerO {
		opponent = s.PlayerX
	}
	result := d.newMessage(codec.TypeTicTacToeResult, kv{"GAME_ID", gameID}, kv{"RESULT", outcome})
	if err := d.sendUnicastTo(context.Background(), opponent, result); err != nil {
		d.log.Warn("failed to send TICTACTOE_RESULT", lsnplog.Fields{"game_id": gameID, "error": err.Error()})
	}
	d.games.Remove(gameID)
}

// splitCSV splits a comma-separated MEMBERS field (spec.md §4.6), never
// returning a single empty-string element for an empty input.
func splitCSV(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	start := 0
	for i := 0; i < len(s); i++ {
		if s[i] == ',' {
			out = append(out, s[start:i])
			start = i + 1
		}
	}
	out = append(out, s[start:])
	return out
}
