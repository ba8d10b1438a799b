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

// Package token mints and validates LSNP authorization tokens (spec.md §3,
// §4.3). Tokens are authorization markers, not secrets: no cryptographic
// confidentiality is provided or implied (spec.md §1 Non-goals).
package token

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/nabbar/lsnp/internal/lsnperr"
)

// Scope is the permitted purpose of a token, enforced per message TYPE
// (spec.md §3, §4.3).
type Scope string

const (
	ScopeChat      Scope = "chat"
	ScopeBroadcast Scope = "broadcast"
	ScopeFollow    Scope = "follow"
	ScopeGroup     Scope = "group"
	ScopeFile      Scope = "file"
	ScopeGame      Scope = "game"
)

// ScopeForType returns the scope required by a message TYPE, per the table
// in spec.md §4.3. ok is false for TYPEs that carry no token (LIKE, ACK).
func ScopeForType(typ string) (scope Scope, ok bool) {
	switch typ {
	case "DM", "GROUP_MESSAGE":
		return ScopeChat, true
	case "POST", "PROFILE", "PING":
		return ScopeBroadcast, true
	case "FOLLOW", "UNFOLLOW":
		return ScopeFollow, true
	case "GROUP_CREATE", "GROUP_UPDATE":
		return ScopeGroup, true
	case "FILE_OFFER", "FILE_ACCEPT", "FILE_CHUNK", "FILE_COMPLETE":
		return ScopeFile, true
	case "TICTACTOE_INVITE", "TICTACTOE_ACCEPT", "TICTACTOE_MOVE", "TICTACTOE_RESULT":
		return ScopeGame, true
	default:
		return "", false
	}
}

// ClockSkew is the receiver-side tolerance applied to token expiry,
// accommodating unsynchronized peer clocks (spec.md §3, §9). spec.md
// leaves the exact value to the implementer; LSNP fixes it at 60s.
const ClockSkew = 60 * time.Second

// Service mints and validates tokens for a single local peer identified by
// issuer (spec.md §4.3).
type Service struct {
	issuer string
	now    func() time.Time
}

// New returns a Service that mints tokens on behalf of issuer (the local
// UserId). now defaults to time.Now; tests may override it.
func New(issuer string) *Service {
	return &Service{issuer: issuer, now: time.Now}
}

// SetClock overrides the Service's notion of "now" — used by tests that
// exercise expiry monotonicity (spec.md §8).
func (s *Service) SetClock(now func() time.Time) {
	s.now = now
}

// Issue mints "userid|expiry|scope" with expiry = now + ttl (spec.md §3,
// §4.3).
func (s *Service) Issue(scope Scope, ttl time.Duration) string {
	expiry := s.now().Add(ttl).Unix()
	return fmt.Sprintf("%s|%d|%s", s.issuer, expiry, scope)
}

// Reason classifies why Validate rejected a token (spec.md §4.3, §7).
type Reason int

const (
	ReasonValid Reason = iota
	ReasonBadFormat
	ReasonIssuerMismatch
	ReasonExpired
	ReasonScopeMismatch
)

func (r Reason) Code() lsnperr.Code {
	switch r {
	case ReasonBadFormat:
		return lsnperr.BadFormat
	case ReasonIssuerMismatch:
		return lsnperr.IssuerMismatch
	case ReasonExpired:
		return lsnperr.Expired
	case ReasonScopeMismatch:
		return lsnperr.ScopeMismatch
	default:
		return lsnperr.Unknown
	}
}

// Validate checks tokenStr against claimedSender and requiredScope,
// returning ReasonValid or a specific rejection reason (spec.md §4.3).
// The expiry check applies ClockSkew tolerance on the receiver side
// (spec.md §3: "the expiry has not passed (per receiver clock, with small
// clock-skew tolerance of ±60s)").
func (s *Service) Validate(tokenStr, claimedSender string, requiredScope Scope) Reason {
	parts := strings.SplitN(tokenStr, "|", 3)
	if len(parts) != 3 {
		return ReasonBadFormat
	}
	issuer, expiryStr, scopeStr := parts[0], parts[1], parts[2]

	expiry, err := strconv.ParseInt(expiryStr, 10, 64)
	if err != nil {
		return ReasonBadFormat
	}

	if issuer != claimedSender {
		return ReasonIssuerMismatch
	}

	if s.now().After(time.Unix(expiry, 0).Add(ClockSkew)) {
		return ReasonExpired
	}

	if Scope(scopeStr) != requiredScope {
		return ReasonScopeMismatch
	}

	return ReasonValid
}

// ValidateAsError wraps Validate, returning nil on ReasonValid or a coded
// *lsnperr.Error naming the sender and expected/actual scope on rejection,
// matching the [Security] notification text in spec.md §8 scenario 3:
// "Invalid token for DM from Alice@127.0.0.1: ScopeMismatch (expected chat,
// got game)".
func (s *Service) ValidateAsError(tokenStr, claimedSender string, requiredScope Scope) error {
	reason := s.Validate(tokenStr, claimedSender, requiredScope)
	if reason == ReasonValid {
		return nil
	}

	msg := fmt.Sprintf("from %s: %s", claimedSender, reason.Code())
	if reason == ReasonScopeMismatch {
		parts := strings.SplitN(tokenStr, "|", 3)
		got := ""
		if len(parts) == 3 {
			got = parts[2]
		}
		msg = fmt.Sprintf("from %s: %s (expected %s, got %s)", claimedSender, reason.Code(), requiredScope, got)
	}
	return lsnperr.Wrap(lsnperr.InvalidToken, msg, lsnperr.New(reason.Code(), msg))
}
