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

package lsnplog

import (
	"io"
	"os"
	"sync"

	"github.com/sirupsen/logrus"
)

// Level mirrors the teacher's logger/level package, trimmed to the four
// levels LSNP actually emits.
type Level uint8

const (
	InfoLevel Level = iota
	DebugLevel
	WarnLevel
	ErrorLevel
)

func (l Level) toLogrus() logrus.Level {
	switch l {
	case DebugLevel:
		return logrus.DebugLevel
	case WarnLevel:
		return logrus.WarnLevel
	case ErrorLevel:
		return logrus.ErrorLevel
	default:
		return logrus.InfoLevel
	}
}

// Logger is the narrow structured-logging surface every LSNP subsystem
// takes as a dependency, instead of reaching for the global logrus logger
// directly.
type Logger interface {
	Debug(message string, fields Fields)
	Info(message string, fields Fields)
	Warn(message string, fields Fields)
	Error(message string, fields Fields)

	// SetVerbose toggles verbose mode (spec.md §4.10, §7): when on, the
	// Dispatcher mirrors every inbound/outbound frame at Debug level.
	SetVerbose(on bool)
	Verbose() bool

	// Frame mirrors a wire frame (raw bytes, parsed map, remote address)
	// for verbose observability. direction is "in" or "out".
	Frame(direction string, raw []byte, parsed map[string]string, addr string)
}

type logger struct {
	mu      sync.RWMutex
	l       *logrus.Logger
	verbose bool
}

// New returns a Logger writing to w at InfoLevel. Pass os.Stdout for the
// default CLI adapter wiring.
func New(w io.Writer) Logger {
	if w == nil {
		w = os.Stdout
	}
	l := logrus.New()
	l.SetOutput(w)
	l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	l.SetLevel(logrus.InfoLevel)
	return &logger{l: l}
}

func (g *logger) entry(fields Fields) *logrus.Entry {
	if fields == nil {
		return logrus.NewEntry(g.l)
	}
	return g.l.WithFields(fields.toLogrus())
}

func (g *logger) Debug(message string, fields Fields) { g.entry(fields).Debug(message) }
func (g *logger) Info(message string, fields Fields)  { g.entry(fields).Info(message) }
func (g *logger) Warn(message string, fields Fields)  { g.entry(fields).Warn(message) }
func (g *logger) Error(message string, fields Fields) { g.entry(fields).Error(message) }

func (g *logger) SetVerbose(on bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.verbose = on
	if on {
		g.l.SetLevel(logrus.DebugLevel)
	} else {
		g.l.SetLevel(logrus.InfoLevel)
	}
}

func (g *logger) Verbose() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.verbose
}

func (g *logger) Frame(direction string, raw []byte, parsed map[string]string, addr string) {
	if !g.Verbose() {
		return
	}
	g.entry(Fields{
		"direction": direction,
		"addr":      addr,
		"raw":       string(raw),
		"parsed":    parsed,
	}).Debug("frame")
}
