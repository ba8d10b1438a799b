/*
 * MIT License
 *
 * Copyright (c) 2020 Nicolas JUHEL
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

// Package lsnperr provides the coded error type used across the LSNP core.
package lsnperr

// Code classifies an Error the way spec.md §7 names error kinds. It is
// deliberately closed to those kinds plus the token sub-reasons of §4.3 —
// no generic "unknown" bucket beyond Unknown itself.
type Code uint8

const (
	Unknown Code = iota
	MalformedFrame
	MissingField
	UnknownType
	InvalidToken
	Unauthorized
	UnknownPeer
	TransferTimeout
	GameTimeout
	LocalIOError

	// Token validation sub-reasons (spec.md §4.3), always wrapped as InvalidToken.
	BadFormat
	IssuerMismatch
	Expired
	ScopeMismatch
)

var names = map[Code]string{
	Unknown:         "Unknown",
	MalformedFrame:  "MalformedFrame",
	MissingField:    "MissingField",
	UnknownType:     "UnknownType",
	InvalidToken:    "InvalidToken",
	Unauthorized:    "Unauthorized",
	UnknownPeer:     "UnknownPeer",
	TransferTimeout: "TransferTimeout",
	GameTimeout:     "GameTimeout",
	LocalIOError:    "LocalIOError",
	BadFormat:       "BadFormat",
	IssuerMismatch:  "IssuerMismatch",
	Expired:         "Expired",
	ScopeMismatch:   "ScopeMismatch",
}

func (c Code) String() string {
	if s, ok := names[c]; ok {
		return s
	}
	return "Unknown"
}
