/*
 * MIT License
 *
 * Copyright (c) 2022 Nicolas JUHEL
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

// Package transport carries LSNP frames over UDP: unicast and broadcast
// send, a blocking receive loop dispatched through a handler callback, and
// a periodic ticker for presence/retransmission (spec.md §4.2, §6).
package transport

import (
	"context"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/nabbar/lsnp/internal/lsnperr"
	"github.com/nabbar/lsnp/internal/lsnplog"
)

// Handler processes one inbound datagram. It is invoked synchronously from
// Listen's read loop — LSNP is single-threaded per spec.md §4.2's "one
// event loop, no per-message goroutines" model, so Handler must not block
// on anything but local, fast work.
type Handler func(raw []byte, from *net.UDPAddr)

// Config bundles the knobs Listen/Send need. Mode controls whether
// broadcast sends are unicast fan-out to known peers (the "simulate"
// loopback topology of spec.md §6) or a real UDP broadcast datagram.
type Config struct {
	ListenAddr  string
	Mode        string // "simulate" | "broadcast"
	SendRate    rate.Limit
	SendBurst   int
	BroadcastTo string // used only in Mode == "broadcast"
}

// Transport owns a single UDP socket, matching the one-conn-per-peer shape
// of the teacher's socket/server/udp and socket/client/udp packages (no
// split between a listening server and a sending client: LSNP peers are
// symmetric).
type Transport struct {
	cfg     Config
	conn    *net.UDPConn
	log     lsnplog.Logger
	limiter *rate.Limiter

	running atomic.Bool
	mu      sync.Mutex
	peers   []string // known unicast targets for simulate-mode "broadcast"
}

// New binds a UDP socket at cfg.ListenAddr. The socket is not put into
// listening mode until Listen is called.
func New(cfg Config, log lsnplog.Logger) (*Transport, error) {
	addr, err := net.ResolveUDPAddr("udp", cfg.ListenAddr)
	if err != nil {
		return nil, lsnperr.Wrap(lsnperr.LocalIOError, "resolve "+cfg.ListenAddr, err)
	}
	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return nil, lsnperr.Wrap(lsnperr.LocalIOError, "listen "+cfg.ListenAddr, err)
	}

	if cfg.SendRate <= 0 {
		cfg.SendRate = rate.Inf
	}
	if cfg.SendBurst <= 0 {
		cfg.SendBurst = 1
	}

	return &Transport{
		cfg:     cfg,
		conn:    conn,
		log:     log,
		limiter: rate.NewLimiter(cfg.SendRate, cfg.SendBurst),
	}, nil
}

// LocalAddr returns the bound socket address.
func (t *Transport) LocalAddr() *net.UDPAddr {
	return t.conn.LocalAddr().(*net.UDPAddr)
}

// IsRunning reports whether Listen's read loop is active, naming kept
// consistent with the teacher's Server.IsRunning.
func (t *Transport) IsRunning() bool {
	return t.running.Load()
}

// AddPeer registers addr as a unicast fan-out target for simulate-mode
// SendBroadcast (spec.md §6: loopback topology has no real L2 broadcast).
func (t *Transport) AddPeer(addr string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, p := range t.peers {
		if p == addr {
			return
		}
	}
	t.peers = append(t.peers, addr)
}

// Listen runs the read loop until ctx is cancelled or the socket closes,
// invoking handler for each datagram received. It returns nil on a clean
// ctx cancellation.
func (t *Transport) Listen(ctx context.Context, handler Handler) error {
	t.running.Store(true)
	defer t.running.Store(false)

	go func() {
		<-ctx.Done()
		_ = t.conn.Close()
	}()

	buf := make([]byte, 65507)
	for {
		n, from, err := t.conn.ReadFromUDP(buf)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			t.log.Error("transport read failed", lsnplog.Fields{"error": err})
			return lsnperr.Wrap(lsnperr.LocalIOError, "read", err)
		}
		frame := make([]byte, n)
		copy(frame, buf[:n])
		handler(frame, from)
	}
}

// SendUnicast transmits raw to addr, honoring the configured send rate
// limit (spec.md §9: outbound throttling is left to the implementer).
func (t *Transport) SendUnicast(ctx context.Context, raw []byte, addr *net.UDPAddr) error {
	if err := t.limiter.Wait(ctx); err != nil {
		return lsnperr.Wrap(lsnperr.LocalIOError, "rate limit wait", err)
	}
	if _, err := t.conn.WriteToUDP(raw, addr); err != nil {
		return lsnperr.Wrap(lsnperr.LocalIOError, "write to "+addr.String(), err)
	}
	return nil
}

// SendBroadcast fans raw out per Mode: a real broadcast datagram in
// "broadcast" mode, or unicast to every AddPeer-registered address in
// "simulate" mode (spec.md §6).
func (t *Transport) SendBroadcast(ctx context.Context, raw []byte) error {
	if t.cfg.Mode == "broadcast" {
		addr, err := net.ResolveUDPAddr("udp", t.cfg.BroadcastTo)
		if err != nil {
			return lsnperr.Wrap(lsnperr.LocalIOError, "resolve broadcast addr", err)
		}
		return t.SendUnicast(ctx, raw, addr)
	}

	t.mu.Lock()
	peers := append([]string(nil), t.peers...)
	t.mu.Unlock()

	var firstErr error
	for _, p := range peers {
		addr, err := net.ResolveUDPAddr("udp", p)
		if err != nil {
			continue
		}
		if err := t.SendUnicast(ctx, raw, addr); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// TickEvery runs fn every interval until ctx is cancelled, matching the
// teacher's ticker-driven background-loop idiom used for cache expiry
// (cache/model.go) applied here to presence broadcast and peer pruning.
func TickEvery(ctx context.Context, interval time.Duration, fn func()) {
	tk := time.NewTicker(interval)
	defer tk.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-tk.C:
			fn()
		}
	}
}

// Close closes the underlying socket.
func (t *Transport) Close() error {
	return t.conn.Close()
}
