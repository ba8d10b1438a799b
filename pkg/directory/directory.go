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

// Package directory is the Peer Directory (spec.md §4.4): the single
// source of truth mapping UserId to address, display name, status, avatar
// and last-seen time.
package directory

import (
	"time"

	"github.com/nabbar/lsnp/internal/ttlcache"
)

// Avatar is an optional inline profile image (spec.md §3 PeerRecord,
// §9 avatar-size note).
type Avatar struct {
	MimeType string
	Data     []byte
}

// Record is a PeerRecord (spec.md §3): everything known about one peer.
type Record struct {
	UserID      string
	Addr        string
	DisplayName string
	Status      string
	Avatar      *Avatar
	LastSeen    time.Time
}

// Directory tracks PeerRecords keyed by UserId, aging them out after
// presenceInterval*3 of silence (spec.md §4.9).
type Directory struct {
	peers            *ttlcache.Map[string, Record]
	presenceInterval time.Duration
	onDiscover       func(Record)
	now              func() time.Time
}

// New returns a Directory that prunes peers unseen for
// presenceInterval*3 (spec.md §3 PeerRecord lifecycle, §8 "Prune").
// onDiscover, if non-nil, fires exactly once per UserId the first time it
// is observed (spec.md §4.4).
func New(presenceInterval time.Duration, onDiscover func(Record)) *Directory {
	return &Directory{
		peers:            ttlcache.New[string, Record](0), // TTL enforced explicitly via Prune, not item expiry
		presenceInterval: presenceInterval,
		onDiscover:       onDiscover,
		now:              time.Now,
	}
}

// SetClock overrides the Directory's notion of "now", for deterministic
// prune tests.
func (d *Directory) SetClock(now func() time.Time) {
	d.now = now
}

// Observe refreshes (or creates) the PeerRecord for userID. profile, when
// non-nil, supplies DisplayName/Status/Avatar from a PROFILE frame;
// a bare PING only refreshes addr and LastSeen.
func (d *Directory) Observe(userID, addr string, profile *Record) {
	existing, had := d.peers.Load(userID)

	rec := existing
	rec.UserID = userID
	rec.Addr = addr
	rec.LastSeen = d.now()
	if profile != nil {
		if profile.DisplayName != "" {
			rec.DisplayName = profile.DisplayName
		}
		rec.Status = profile.Status
		if profile.Avatar != nil {
			rec.Avatar = profile.Avatar
		}
	}

	d.peers.Store(userID, rec)

	if !had && d.onDiscover != nil {
		d.onDiscover(rec)
	}
}

// Lookup returns the PeerRecord for userID, if known.
func (d *Directory) Lookup(userID string) (Record, bool) {
	return d.peers.Load(userID)
}

// List returns every known PeerRecord, in no particular order (spec.md
// §4.4 `list()`).
func (d *Directory) List() []Record {
	out := make([]Record, 0, d.peers.Len())
	d.peers.Walk(func(_ string, r Record) bool {
		out = append(out, r)
		return true
	})
	return out
}

// Prune removes every peer whose LastSeen is older than 3x the presence
// interval (spec.md §4.9, §8 "a peer whose last-seen exceeds 3x presence
// interval disappears from peers within one prune cycle"). Returns the
// UserIds removed.
func (d *Directory) Prune() []string {
	cutoff := d.now().Add(-3 * d.presenceInterval)
	var removed []string
	d.peers.Walk(func(userID string, r Record) bool {
		if r.LastSeen.Before(cutoff) {
			removed = append(removed, userID)
		}
		return true
	})
	for _, u := range removed {
		d.peers.Delete(u)
	}
	return removed
}
