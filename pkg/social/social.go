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

// Package social owns the follow graph, post logs, and like log
// (spec.md §3, §4.5).
package social

import (
	"strconv"
	"sync"
)

// Post is (author, timestamp, body) per spec.md §3.
type Post struct {
	Author    string
	Timestamp int64
	Body      string
}

// Like is (liker, author, post_timestamp) per spec.md §3, stored against
// the target post on the author side only.
type Like struct {
	Liker         string
	Author        string
	PostTimestamp int64
}

// State holds one peer's follow sets, post logs, and like log. All
// mutation happens synchronously on the Dispatcher's event loop
// (spec.md §5); the mutex guards against incidental concurrent reads
// (e.g. the CLI listing state mid-tick) rather than true multi-writer
// contention.
type State struct {
	mu sync.RWMutex

	following map[string]bool // outgoing: peers we follow
	followers map[string]bool // incoming: peers who follow us

	outgoing []Post // our own posts, retained indefinitely
	received []Post // posts from followed peers

	likesOnMyPosts []Like // likes received on our own posts
	seenLikes      map[string]bool
}

// New returns an empty State.
func New() *State {
	return &State{
		following: make(map[string]bool),
		followers: make(map[string]bool),
		seenLikes: make(map[string]bool),
	}
}

// Follow adds target to the outgoing follow set (spec.md §4.5 `follow`).
func (s *State) Follow(target string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.following[target] = true
}

// Unfollow removes target from the outgoing follow set.
func (s *State) Unfollow(target string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.following, target)
}

// IsFollowing reports whether target is in the outgoing follow set —
// governs POST acceptance (spec.md §4.5, §8 universal invariant).
func (s *State) IsFollowing(target string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.following[target]
}

// AddFollower records that follower now follows us, from an inbound
// FOLLOW (spec.md §4.5).
func (s *State) AddFollower(follower string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.followers[follower] = true
}

// RemoveFollower records an inbound UNFOLLOW.
func (s *State) RemoveFollower(follower string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.followers, follower)
}

// RecordOutgoingPost appends to our own post log — retained indefinitely
// regardless of any follow relationship (spec.md §3 Post).
func (s *State) RecordOutgoingPost(p Post) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.outgoing = append(s.outgoing, p)
}

// AcceptInboundPost appends p to the received log iff its author is
// followed, per spec.md §4.5 ("drop if author is not in the local
// followed set") and §8's universal invariant. Returns whether it was
// accepted.
func (s *State) AcceptInboundPost(p Post) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.following[p.Author] {
		return false
	}
	s.received = append(s.received, p)
	return true
}

// Posts returns the received-post log (what the `posts` command lists,
// spec.md §6).
func (s *State) Posts() []Post {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Post(nil), s.received...)
}

// OwnPosts returns our own outgoing post log.
func (s *State) OwnPosts() []Post {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Post(nil), s.outgoing...)
}

// HasOwnPost reports whether (author=self implicitly, timestamp) is one
// of our own posts — used to validate an inbound LIKE targets a real post
// (spec.md §4.5 "if the post_timestamp matches one of the receiver's own
// posts").
func (s *State) HasOwnPost(timestamp int64) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, p := range s.outgoing {
		if p.Timestamp == timestamp {
			return true
		}
	}
	return false
}

// RecordLike appends an inbound LIKE to likesOnMyPosts, deduplicating by
// (liker, post_timestamp) so repeats are idempotent (spec.md §8 "Duplicate
// inbound LIKE: no double-notification"). Returns whether this call added
// a new entry (false means it was a duplicate).
func (s *State) RecordLike(l Like) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := l.Liker + "|" + strconv.FormatInt(l.PostTimestamp, 10)
	if s.seenLikes[key] {
		return false
	}
	s.seenLikes[key] = true
	s.likesOnMyPosts = append(s.likesOnMyPosts, l)
	return true
}
