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

// Package group is the Group Manager (spec.md §3, §4.6): owner-mutated
// group membership and group-scoped message routing.
package group

import (
	"sync"

	"github.com/nabbar/lsnp/internal/lsnperr"
)

// Group is (group_id, title, owner, members) per spec.md §3.
type Group struct {
	ID      string
	Title   string
	Owner   string
	Members map[string]bool
}

// snapshotMembers returns the member set as a sorted-free slice (order is
// not significant; callers needing determinism sort it themselves).
func (g Group) snapshotMembers() []string {
	out := make([]string, 0, len(g.Members))
	for m := range g.Members {
		out = append(out, m)
	}
	return out
}

// Manager owns every Group the local peer participates in. Groups are not
// globally unique (spec.md §3): each peer tracks its own view.
type Manager struct {
	mu   sync.RWMutex
	self string
	grps map[string]*Group
}

// New returns a Manager for the local peer identified by self.
func New(self string) *Manager {
	return &Manager{self: self, grps: make(map[string]*Group)}
}

// Create registers a new group with self as owner and sole member
// (spec.md §4.6 `create`).
func (m *Manager) Create(groupID, title string) *Group {
	m.mu.Lock()
	defer m.mu.Unlock()

	g := &Group{
		ID:      groupID,
		Title:   title,
		Owner:   m.self,
		Members: map[string]bool{m.self: true},
	}
	m.grps[groupID] = g
	return g
}

// Lookup returns the Group for groupID, if the local peer participates in it.
func (m *Manager) Lookup(groupID string) (*Group, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	g, ok := m.grps[groupID]
	return g, ok
}

// List returns every group the local peer participates in.
func (m *Manager) List() []*Group {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Group, 0, len(m.grps))
	for _, g := range m.grps {
		out = append(out, g)
	}
	return out
}

// Update applies an owner-only membership change locally: add/remove is
// only permitted for the local peer's own groups, where self is owner
// (spec.md §4.6 `update` "owner-only"). Returns the resulting member set
// to advertise via GROUP_UPDATE, or an Unauthorized error if self is not
// the owner.
func (m *Manager) Update(groupID string, add, remove []string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	g, ok := m.grps[groupID]
	if !ok {
		return nil, lsnperr.New(lsnperr.UnknownPeer, groupID)
	}
	if g.Owner != m.self {
		return nil, lsnperr.New(lsnperr.Unauthorized, "only "+g.Owner+" may update "+groupID)
	}

	for _, u := range add {
		g.Members[u] = true
	}
	for _, u := range remove {
		delete(g.Members, u)
	}
	return g.snapshotMembers(), nil
}

// ApplyRemoteUpdate replaces the local view of groupID's membership with
// members, the authoritative set conveyed by a GROUP_UPDATE from the
// group's owner (spec.md §4.6 "fully replaces the recipient's view").
// The caller must already have checked the sender against the Group's
// recorded Owner (spec.md §4.6 inbound policy: "GROUP_UPDATE from
// non-owner is ignored").
func (m *Manager) ApplyRemoteUpdate(groupID, title, owner string, members []string) *Group {
	m.mu.Lock()
	defer m.mu.Unlock()

	g, ok := m.grps[groupID]
	if !ok {
		g = &Group{ID: groupID, Title: title, Owner: owner}
		m.grps[groupID] = g
	}
	if title != "" {
		g.Title = title
	}
	set := make(map[string]bool, len(members))
	for _, u := range members {
		set[u] = true
	}
	g.Members = set
	return g
}

// IsOwner reports whether claimedOwner matches the group's recorded
// owner — the check the Dispatcher applies before accepting an inbound
// GROUP_UPDATE (spec.md §4.6 inbound policy).
func (m *Manager) IsOwner(groupID, claimedOwner string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	g, ok := m.grps[groupID]
	return ok && g.Owner == claimedOwner
}

// IsMember reports whether userID is a current member of groupID — the
// check applied to inbound GROUP_MESSAGE (spec.md §4.6 inbound policy,
// §8 universal invariant).
func (m *Manager) IsMember(groupID, userID string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	g, ok := m.grps[groupID]
	return ok && g.Members[userID]
}

// RecipientsForMessage returns every current member of groupID except
// self — the unicast fan-out list for `msg` (spec.md §4.6 "unicast
// GROUP_MESSAGE to every current member except self").
func (m *Manager) RecipientsForMessage(groupID string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	g, ok := m.grps[groupID]
	if !ok {
		return nil, lsnperr.New(lsnperr.UnknownPeer, groupID)
	}
	out := make([]string, 0, len(g.Members))
	for u := range g.Members {
		if u != m.self {
			out = append(out, u)
		}
	}
	return out, nil
}
