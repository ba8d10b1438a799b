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

// Package presence is the Presence Engine (spec.md §4.9): periodic PING
// and PROFILE broadcasts, and Peer Directory pruning.
package presence

import (
	"context"
	"time"

	"github.com/nabbar/lsnp/internal/lsnplog"
	"github.com/nabbar/lsnp/pkg/transport"
)

// Profile supplies the fields a PROFILE broadcast carries.
type Profile struct {
	DisplayName string
	Status      string
	AvatarType  string
	AvatarData  string // base64, already encoded by the caller
}

// Dependencies the Presence Engine needs from the rest of the peer
// runtime — kept as function values so this package has no import-time
// dependency on pkg/dispatcher.
type Dependencies struct {
	// BroadcastPing sends a PING frame.
	BroadcastPing func(ctx context.Context) error
	// BroadcastProfile sends a PROFILE frame using the current Profile.
	BroadcastProfile func(ctx context.Context, p Profile) error
	// CurrentProfile returns the profile to advertise at the next tick.
	CurrentProfile func() Profile
	// Prune ages out stale peers and returns the UserIds removed
	// (spec.md §4.9, §4.4).
	Prune func() []string
}

// Engine runs the two independent tick loops spec.md §4.9 describes.
type Engine struct {
	deps             Dependencies
	log              lsnplog.Logger
	presenceInterval time.Duration
	pruneInterval    time.Duration
}

// New returns an Engine broadcasting every presenceInterval and pruning
// every pruneInterval (spec.md defaults: 30s / 60s).
func New(deps Dependencies, presenceInterval, pruneInterval time.Duration, log lsnplog.Logger) *Engine {
	return &Engine{deps: deps, log: log, presenceInterval: presenceInterval, pruneInterval: pruneInterval}
}

// Run blocks, driving both tick loops until ctx is cancelled.
func (e *Engine) Run(ctx context.Context) {
	go transport.TickEvery(ctx, e.presenceInterval, func() {
		if err := e.deps.BroadcastPing(ctx); err != nil {
			e.log.Warn("presence ping broadcast failed", lsnplog.Fields{"error": err})
		}
		if err := e.deps.BroadcastProfile(ctx, e.deps.CurrentProfile()); err != nil {
			e.log.Warn("presence profile broadcast failed", lsnplog.Fields{"error": err})
		}
	})

	transport.TickEvery(ctx, e.pruneInterval, func() {
		removed := e.deps.Prune()
		for _, u := range removed {
			e.log.Info("peer pruned", lsnplog.Fields{"user_id": u})
		}
	})
}
