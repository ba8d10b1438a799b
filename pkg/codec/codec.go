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

// Package codec implements the LSNP wire framing: ASCII, newline-delimited
// "KEY: VALUE" pairs terminated by a blank line (spec.md §4.1, §6).
package codec

import (
	"bufio"
	"bytes"
	"strings"

	"github.com/nabbar/lsnp/internal/lsnperr"
)

// Message is an unordered mapping from uppercase keys to string values. It
// preserves insertion order internally so Serialize is deterministic,
// matching spec.md §4.1 ("emitting keys in insertion order for determinism
// in tests").
type Message struct {
	keys   []string
	values map[string]string
}

// NewMessage returns an empty Message with TYPE set to typ.
func NewMessage(typ string) *Message {
	m := &Message{values: make(map[string]string)}
	m.Set("TYPE", typ)
	return m
}

// Set assigns key to value, appending key to the insertion order the first
// time it is used.
func (m *Message) Set(key, value string) *Message {
	if m.values == nil {
		m.values = make(map[string]string)
	}
	if _, ok := m.values[key]; !ok {
		m.keys = append(m.keys, key)
	}
	m.values[key] = value
	return m
}

// Get returns the value for key and whether it was present.
func (m *Message) Get(key string) (string, bool) {
	if m.values == nil {
		return "", false
	}
	v, ok := m.values[key]
	return v, ok
}

// Type returns the TYPE field, or "" if absent.
func (m *Message) Type() string {
	v, _ := m.Get("TYPE")
	return v
}

// Keys returns the fields in insertion order.
func (m *Message) Keys() []string {
	return append([]string(nil), m.keys...)
}

// Equal compares two Messages on their known (key, value) pairs,
// independent of insertion order — the round-trip property spec.md §8
// asks for ("parse(serialize(M)) equals M on known keys").
func (m *Message) Equal(o *Message) bool {
	if m == nil || o == nil {
		return m == o
	}
	if len(m.values) != len(o.values) {
		return false
	}
	for k, v := range m.values {
		if ov, ok := o.values[k]; !ok || ov != v {
			return false
		}
	}
	return true
}

// Serialize renders m as the wire frame: one "KEY: VALUE" line per field,
// in insertion order, terminated by a blank line.
func Serialize(m *Message) []byte {
	var buf bytes.Buffer
	for _, k := range m.keys {
		buf.WriteString(k)
		buf.WriteString(": ")
		buf.WriteString(m.values[k])
		buf.WriteString("\n")
	}
	buf.WriteString("\n")
	return buf.Bytes()
}

// Parse reads a single frame from raw. A line without ":" is
// MalformedFrame; a frame with no TYPE field is MissingField.
func Parse(raw []byte) (*Message, error) {
	m := &Message{values: make(map[string]string)}

	sc := bufio.NewScanner(bytes.NewReader(raw))
	sc.Buffer(make([]byte, 0, 8*1024), 8*1024)

	for sc.Scan() {
		line := strings.TrimRight(sc.Text(), "\r")
		if line == "" {
			break
		}
		idx := strings.Index(line, ":")
		if idx < 0 {
			return nil, lsnperr.New(lsnperr.MalformedFrame, "line missing ':': "+line)
		}
		key := strings.TrimSpace(line[:idx])
		val := strings.TrimPrefix(line[idx+1:], " ")
		if key == "" {
			return nil, lsnperr.New(lsnperr.MalformedFrame, "empty key")
		}
		m.Set(key, val)
	}
	if err := sc.Err(); err != nil {
		return nil, lsnperr.Wrap(lsnperr.MalformedFrame, "scan failed", err)
	}

	if _, ok := m.Get("TYPE"); !ok {
		return nil, lsnperr.New(lsnperr.MissingField, "TYPE")
	}
	return m, nil
}
