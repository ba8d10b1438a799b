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

// Package ttlcache is a generic, thread-safe map with per-item expiration,
// used by the Peer Directory and the Dispatcher's file-transfer registry
// for their timeout/prune bookkeeping (spec.md §4.4, §4.7).
package ttlcache

import (
	"sync"
	"time"
)

type item[V any] struct {
	val V
	exp time.Time
}

// Map is a generic TTL-bounded map. A zero expiry means "never expires"
// for items stored with that TTL.
type Map[K comparable, V any] struct {
	mu  sync.RWMutex
	m   map[K]item[V]
	ttl time.Duration
}

// New returns a Map whose entries expire ttl after being stored, unless
// overridden per-call by StoreWithTTL. ttl == 0 means entries never expire
// on their own (only explicit Delete removes them).
func New[K comparable, V any](ttl time.Duration) *Map[K, V] {
	return &Map[K, V]{m: make(map[K]item[V]), ttl: ttl}
}

func (t *Map[K, V]) expiry(ttl time.Duration) time.Time {
	if ttl <= 0 {
		return time.Time{}
	}
	return time.Now().Add(ttl)
}

// Store sets key to val using the Map's default TTL.
func (t *Map[K, V]) Store(key K, val V) {
	t.StoreWithTTL(key, val, t.ttl)
}

// StoreWithTTL sets key to val, expiring after ttl (0 = never).
func (t *Map[K, V]) StoreWithTTL(key K, val V, ttl time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.m[key] = item[V]{val: val, exp: t.expiry(ttl)}
}

// Load returns the value for key if present and not expired.
func (t *Map[K, V]) Load(key K) (V, bool) {
	t.mu.RLock()
	it, ok := t.m[key]
	t.mu.RUnlock()

	var zero V
	if !ok {
		return zero, false
	}
	if !it.exp.IsZero() && time.Now().After(it.exp) {
		t.Delete(key)
		return zero, false
	}
	return it.val, true
}

// Delete removes key unconditionally.
func (t *Map[K, V]) Delete(key K) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.m, key)
}

// LoadOrStore returns the existing value for key, or stores val and
// returns it if key was absent or expired.
func (t *Map[K, V]) LoadOrStore(key K, val V) (V, bool) {
	if v, ok := t.Load(key); ok {
		return v, true
	}
	t.Store(key, val)
	return val, false
}

// Len returns the number of stored entries, including expired entries
// that have not yet been pruned.
func (t *Map[K, V]) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.m)
}

// Walk calls fn for every non-expired entry. If fn returns false, Walk
// stops early. Expired entries encountered are pruned.
func (t *Map[K, V]) Walk(fn func(K, V) bool) {
	now := time.Now()

	t.mu.Lock()
	stale := make([]K, 0)
	snapshot := make(map[K]V, len(t.m))
	for k, it := range t.m {
		if !it.exp.IsZero() && now.After(it.exp) {
			stale = append(stale, k)
			continue
		}
		snapshot[k] = it.val
	}
	for _, k := range stale {
		delete(t.m, k)
	}
	t.mu.Unlock()

	for k, v := range snapshot {
		if !fn(k, v) {
			return
		}
	}
}

// Prune removes every entry whose TTL has elapsed as of now. Entries
// stored with a zero TTL are never removed by it.
func (t *Map[K, V]) Prune(now time.Time) (removed int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for k, it := range t.m {
		if !it.exp.IsZero() && now.After(it.exp) {
			delete(t.m, k)
			removed++
		}
	}
	return removed
}
