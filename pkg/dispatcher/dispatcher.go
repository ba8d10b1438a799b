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

// Package dispatcher is the top-level router (spec.md §4.10): the single
// event loop that parses inbound frames, validates them, and routes them
// to the subsystem owning their TYPE; and the command surface the CLI
// adapter invokes.
package dispatcher

import (
	"context"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/go-multierror"
	"golang.org/x/sync/errgroup"

	"github.com/nabbar/lsnp/internal/lsnpconfig"
	"github.com/nabbar/lsnp/internal/lsnperr"
	"github.com/nabbar/lsnp/internal/lsnplog"
	"github.com/nabbar/lsnp/internal/ttlcache"
	"github.com/nabbar/lsnp/pkg/codec"
	"github.com/nabbar/lsnp/pkg/directory"
	"github.com/nabbar/lsnp/pkg/filetransfer"
	"github.com/nabbar/lsnp/pkg/game"
	"github.com/nabbar/lsnp/pkg/group"
	"github.com/nabbar/lsnp/pkg/presence"
	"github.com/nabbar/lsnp/pkg/social"
	"github.com/nabbar/lsnp/pkg/token"
	"github.com/nabbar/lsnp/pkg/transport"
)

// Notifier delivers a user-visible, CLI-rendered event — discovery,
// security rejections, incoming DMs, group messages, game results
// (spec.md §8 scenario text, e.g. "[Security] Invalid token for DM from
// ...", "[Group: 'Title'] user: body", "[Game Over] user wins!").
type Notifier func(message string)

// Recorder observes traffic and subsystem occupancy for the optional
// debug/metrics surface (SPEC_FULL.md §C.2). A Dispatcher never imports
// the package that implements this — internal/lsnpadmin's Metrics type
// satisfies it structurally, the same boundary pattern as
// filetransfer.Sender and presence.Dependencies. New installs
// noopRecorder, so wiring a Recorder is always optional.
type Recorder interface {
	FrameSent(typ string)
	FrameReceived(typ string)
	FrameDropped(reason string)
	SetActiveTransfers(n int)
	SetActiveGames(n int)
	SetPeerCount(n int)
}

type noopRecorder struct{}

func (noopRecorder) FrameSent(string)         {}
func (noopRecorder) FrameReceived(string)     {}
func (noopRecorder) FrameDropped(string)      {}
func (noopRecorder) SetActiveTransfers(int)   {}
func (noopRecorder) SetActiveGames(int)       {}
func (noopRecorder) SetPeerCount(int)         {}

// Dispatcher owns every subsystem and is the sole mutator of their state,
// matching the single-threaded event-loop model of spec.md §5: one
// goroutine processes the Transport's read loop, one drives timers, one
// drains CLI commands, but none of them touch subsystem state directly —
// every path funnels through the Dispatcher's methods.
type Dispatcher struct {
	self    string
	cfg     *lsnpconfig.Options
	log     lsnplog.Logger
	notify  Notifier
	metrics Recorder

	tr     *transport.Transport
	tokens *token.Service

	dir   *directory.Directory
	soc   *social.State
	grp   *group.Manager
	games *game.Manager

	// transfers is keyed by file_id; TTL is 0 (never auto-expire) and
	// inactivity is instead enforced by sweepTransfers comparing against
	// FileIdleTimeout, the same sliding-deadline pattern pkg/directory
	// uses for peer pruning.
	transfers *ttlcache.Map[string, *filetransfer.Transfer]

	profileMu sync.Mutex
	profile   presence.Profile
}

// New wires every subsystem together for the local peer self, using cfg
// for every timing/sizing knob spec.md names.
func New(self string, cfg *lsnpconfig.Options, tr *transport.Transport, log lsnplog.Logger, notify Notifier) *Dispatcher {
	d := &Dispatcher{
		self:      self,
		cfg:       cfg,
		log:       log,
		notify:    notify,
		metrics:   noopRecorder{},
		tr:        tr,
		tokens:    token.New(self),
		soc:       social.New(),
		grp:       group.New(self),
		games:     game.New(),
		transfers: ttlcache.New[string, *filetransfer.Transfer](0),
	}
	d.dir = directory.New(cfg.PresenceInterval, func(r directory.Record) {
		d.notify(fmt.Sprintf("[Discovery] %s", r.UserID))
	})
	return d
}

// SetProfile updates the profile advertised by the Presence Engine
// (spec.md §6 `profile` command).
func (d *Dispatcher) SetProfile(p presence.Profile) {
	d.profileMu.Lock()
	defer d.profileMu.Unlock()
	d.profile = p
}

func (d *Dispatcher) currentProfile() presence.Profile {
	d.profileMu.Lock()
	defer d.profileMu.Unlock()
	return d.profile
}

// SetMetrics wires a Recorder (internal/lsnpadmin.Metrics in practice)
// into the frame path. Optional — never called, traffic is simply not
// observed.
func (d *Dispatcher) SetMetrics(r Recorder) {
	if r == nil {
		r = noopRecorder{}
	}
	d.metrics = r
}

// Peers returns a snapshot of the Peer Directory, for the debug/state
// endpoint (SPEC_FULL.md §C.2).
func (d *Dispatcher) Peers() []directory.Record {
	return d.dir.List()
}

// Groups returns a snapshot of every known group.
func (d *Dispatcher) Groups() []*group.Group {
	return d.grp.List()
}

// ActiveTransfers reports the number of in-flight file transfers.
func (d *Dispatcher) ActiveTransfers() int {
	n := 0
	d.transfers.Walk(func(string, *filetransfer.Transfer) bool { n++; return true })
	return n
}

// ActiveGames reports the number of in-progress tic-tac-toe sessions.
func (d *Dispatcher) ActiveGames() int {
	return len(d.games.List())
}

// TransferProgress reports how many of a transfer's chunks are
// acknowledged so far, for a CLI progress bar (spec.md §4.7 is silent on
// UI; this is additive). ok is false once the transfer has completed or
// was never known.
func (d *Dispatcher) TransferProgress(fileID string) (acked, total int, ok bool) {
	tr, found := d.transfers.Load(fileID)
	if !found {
		return 0, 0, false
	}
	return tr.AckedCount(), tr.TotalChunks, true
}

// PresenceDependencies builds the Dependencies the Presence Engine needs,
// wired back into this Dispatcher's own broadcast/prune methods.
func (d *Dispatcher) PresenceDependencies() presence.Dependencies {
	return presence.Dependencies{
		BroadcastPing:    d.broadcastPing,
		BroadcastProfile: d.broadcastProfile,
		CurrentProfile:   d.currentProfile,
		Prune:            d.dir.Prune,
	}
}

// Run drives the Dispatcher's four concurrent suspension points — the
// Transport read loop, the Presence Engine's tick loops, a file-transfer
// retransmission/idle sweep, and a game-move retransmission tick — as one
// cancelable group (spec.md §5), using
// errgroup the way the teacher supervises goroutine groups in `cluster`.
func (d *Dispatcher) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return d.tr.Listen(ctx, d.HandleFrame)
	})

	eng := presence.New(d.PresenceDependencies(), d.cfg.PresenceInterval, d.cfg.PruneInterval, d.log)
	g.Go(func() error {
		eng.Run(ctx)
		return nil
	})

	g.Go(func() error {
		transport.TickEvery(ctx, d.cfg.FileChunkTimeout, func() { d.sweepTransfers(ctx) })
		return nil
	})

	g.Go(func() error {
		transport.TickEvery(ctx, d.cfg.GameMoveInterval, func() { d.retransmitGameMoves(ctx) })
		return nil
	})

	return g.Wait()
}

// Shutdown closes the Transport and aggregates any teardown error with
// go-multierror, matching the teacher's convention of never discarding a
// partial-failure during multi-resource cleanup.
func (d *Dispatcher) Shutdown() error {
	var result *multierror.Error
	if err := d.tr.Close(); err != nil {
		result = multierror.Append(result, err)
	}
	return result.ErrorOrNil()
}

// HandleFrame is the inbound path (spec.md §4.10): parse, resolve
// USER_ID, refresh the directory, validate the token where required,
// route to the owning subsystem.
func (d *Dispatcher) HandleFrame(raw []byte, from *net.UDPAddr) {
	m, err := codec.Parse(raw)
	if err != nil {
		d.log.Debug("malformed frame dropped", lsnplog.Fields{"error": err, "from": from.String()})
		d.metrics.FrameDropped("malformed")
		return
	}

	d.log.Frame("in", raw, snapshotFields(m), from.String())

	if err := codec.Validate(m); err != nil {
		d.log.Debug("frame failed validation", lsnplog.Fields{"error": err, "type": m.Type()})
		d.metrics.FrameDropped("invalid")
		return
	}

	userID, _ := m.Get("USER_ID")
	if userID != "" && userID != d.self {
		d.dir.Observe(userID, from.String(), profileFromMessage(m))
		d.metrics.SetPeerCount(len(d.dir.List()))
	}

	if !codec.IsKnownType(m.Type()) {
		d.log.Debug("unknown TYPE delivered", lsnplog.Fields{"type": m.Type()})
	}

	if scope, needsToken := token.ScopeForType(m.Type()); needsToken {
		tok, _ := m.Get("TOKEN")
		if err := d.tokens.ValidateAsError(tok, userID, scope); err != nil {
			detail := strings.TrimPrefix(err.Error(), lsnperr.InvalidToken.String()+": ")
			d.notify(fmt.Sprintf("[Security] Invalid token for %s %s", m.Type(), detail))
			d.metrics.FrameDropped("unauthorized")
			return
		}
	}
	d.metrics.FrameReceived(m.Type())

	d.route(m, from)
	d.metrics.SetActiveTransfers(d.ActiveTransfers())
	d.metrics.SetActiveGames(d.ActiveGames())
}

func snapshotFields(m *codec.Message) map[string]string {
	out := make(map[string]string, len(m.Keys()))
	for _, k := range m.Keys() {
		v, _ := m.Get(k)
		out[k] = v
	}
	return out
}

func profileFromMessage(m *codec.Message) *directory.Record {
	if m.Type() != codec.TypeProfile {
		return nil
	}
	name, _ := m.Get("DISPLAY_NAME")
	status, _ := m.Get("STATUS")
	rec := &directory.Record{DisplayName: name, Status: status}
	if mime, ok := m.Get("AVATAR_TYPE"); ok {
		if data, ok := m.Get("AVATAR_DATA"); ok {
			rec.Avatar = &directory.Avatar{MimeType: mime, Data: []byte(data)}
		}
	}
	return rec
}

func (d *Dispatcher) route(m *codec.Message, from *net.UDPAddr) {
	switch m.Type() {
	case codec.TypePing, codec.TypeProfile:
		// directory already refreshed above; nothing further to route.
	case codec.TypePost:
		d.handlePost(m)
	case codec.TypeDM:
		d.handleDM(m)
	case codec.TypeFollow:
		userID, _ := m.Get("USER_ID")
		d.soc.AddFollower(userID)
	case codec.TypeUnfollow:
		userID, _ := m.Get("USER_ID")
		d.soc.RemoveFollower(userID)
	case codec.TypeLike:
		d.handleLike(m)
	case codec.TypeGroupCreate:
		// advertisement only; membership changes arrive via GROUP_UPDATE.
	case codec.TypeGroupUpdate:
		d.handleGroupUpdate(m)
	case codec.TypeGroupMessage:
		d.handleGroupMessage(m)
	case codec.TypeFileOffer:
		d.handleFileOffer(m, from)
	case codec.TypeFileAccept:
		d.handleFileAccept(m)
	case codec.TypeFileChunk:
		d.handleFileChunk(m, from)
	case codec.TypeFileComplete:
		d.handleFileComplete(m)
	case codec.TypeTicTacToeInvite:
		d.handleGameInvite(m)
	case codec.TypeTicTacToeAccept:
		d.handleGameAccept(m)
	case codec.TypeTicTacToeMove:
		d.handleGameMove(m)
	case codec.TypeTicTacToeResult:
		d.handleGameResult(m)
	case codec.TypeAck:
		d.handleAck(m)
	}
}

// sweepTransfers cancels transfers that have gone idle past FileIdleTimeout
// and, for everything still live, resends any chunk whose 1-second
// per-chunk timeout has elapsed (spec.md §4.7 step 3) — a transfer that
// exhausts FileMaxRetries on a chunk is cancelled the same as an idle one.
func (d *Dispatcher) sweepTransfers(ctx context.Context) {
	now := time.Now()
	var stale []string
	var failed []string
	d.transfers.Walk(func(id string, tr *filetransfer.Transfer) bool {
		if tr.IdleFor(now) > d.cfg.FileIdleTimeout {
			stale = append(stale, id)
			return true
		}
		if tr.RetransmitOverdue(now, d.cfg.FileChunkTimeout, d.cfg.FileMaxRetries) {
			failed = append(failed, id)
		}
		return true
	})
	for _, id := range stale {
		if tr, ok := d.transfers.Load(id); ok {
			tr.Cancel()
		}
		d.transfers.Delete(id)
		d.notify(fmt.Sprintf("[Transfer] %s timed out", id))
	}
	for _, id := range failed {
		if tr, ok := d.transfers.Load(id); ok {
			tr.Cancel()
		}
		d.transfers.Delete(id)
		d.notify(fmt.Sprintf("[Transfer] %s failed: chunk retry budget exhausted", id))
	}
}

// retransmitGameMoves resends any MOVE whose sender is still waiting on
// the opponent's reciprocal MOVE or RESULT past GameMoveInterval, up to
// GameMoveRetries attempts (spec.md §4.8). A session that exhausts its
// retry budget is abandoned — the opponent is presumed gone.
func (d *Dispatcher) retransmitGameMoves(ctx context.Context) {
	now := time.Now()
	for _, s := range d.games.List() {
		pos, seq, due, exhausted := s.DueRetransmit(now, d.cfg.GameMoveInterval, d.cfg.GameMoveRetries)
		if exhausted {
			d.games.Remove(s.GameID)
			s.Abandon()
			d.notify(fmt.Sprintf("[Game] %s abandoned: opponent unresponsive", s.GameID))
			continue
		}
		if !due {
			continue
		}
		opponent := opponentOf(s, d.self)
		m := d.newMessage(codec.TypeTicTacToeMove,
			kv{"GAME_ID", s.GameID}, kv{"POSITION", strconv.Itoa(pos)}, kv{"MOVE_SEQ", formatEpoch(int64(seq))})
		if err := d.sendUnicastTo(ctx, opponent, m); err != nil {
			d.log.Warn("move retransmit failed", lsnplog.Fields{"game_id": s.GameID, "error": err.Error()})
		}
	}
}

// --- frame → subsystem helpers ---

func epochNow() int64 { return time.Now().Unix() }

func formatEpoch(v int64) string { return strconv.FormatInt(v, 10) }

func parseEpoch(s string) int64 {
	v, _ := strconv.ParseInt(s, 10, 64)
	return v
}

func writeReceivedFile(filename string, data []byte) error {
	f, err := os.Create("received_" + filename)
	if err != nil {
		return lsnperr.Wrap(lsnperr.LocalIOError, "create received file", err)
	}
	defer f.Close()
	if _, err := f.Write(data); err != nil {
		return lsnperr.Wrap(lsnperr.LocalIOError, "write received file", err)
	}
	return nil
}

// kv is one ordered (key, value) pair for newMessage, preserving the
// field order spec.md §3/§6 lists per TYPE (e.g. POST's "USER_ID,
// CONTENT, TIMESTAMP, TOKEN").
type kv struct{ k, v string }

// newMessage builds a Message with USER_ID set to self, fields appended
// in the given order, and a freshly minted TOKEN appended last if typ
// requires one (spec.md §4.3 scope table).
func (d *Dispatcher) newMessage(typ string, fields ...kv) *codec.Message {
	m := codec.NewMessage(typ)
	m.Set("USER_ID", d.self)
	for _, f := range fields {
		m.Set(f.k, f.v)
	}
	if scope, ok := token.ScopeForType(typ); ok {
		m.Set("TOKEN", d.tokens.Issue(scope, d.cfg.TokenDefaultTTL))
	}
	return m
}

func (d *Dispatcher) resolveAddr(userID string) (*net.UDPAddr, error) {
	rec, ok := d.dir.Lookup(userID)
	if !ok {
		return nil, lsnperr.New(lsnperr.UnknownPeer, userID)
	}
	addr, err := net.ResolveUDPAddr("udp", rec.Addr)
	if err != nil {
		return nil, lsnperr.Wrap(lsnperr.LocalIOError, "resolve "+userID, err)
	}
	return addr, nil
}

func (d *Dispatcher) sendUnicastTo(ctx context.Context, userID string, m *codec.Message) error {
	addr, err := d.resolveAddr(userID)
	if err != nil {
		return err
	}
	raw := codec.Serialize(m)
	d.log.Frame("out", raw, snapshotFields(m), addr.String())
	if err := d.tr.SendUnicast(ctx, raw, addr); err != nil {
		return err
	}
	d.metrics.FrameSent(m.Type())
	return nil
}

func (d *Dispatcher) sendBroadcast(ctx context.Context, m *codec.Message) error {
	raw := codec.Serialize(m)
	d.log.Frame("out", raw, snapshotFields(m), "*")
	if err := d.tr.SendBroadcast(ctx, raw); err != nil {
		return err
	}
	d.metrics.FrameSent(m.Type())
	return nil
}
