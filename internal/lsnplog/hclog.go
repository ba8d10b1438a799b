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
	"log"
	"os"

	"github.com/hashicorp/go-hclog"
)

// hclogAdapter lets any hashicorp-ecosystem dependency (none imported by
// this module today, but the teacher always exposes this seam) log through
// the same sink as the rest of LSNP.
type hclogAdapter struct {
	l Logger
}

// AsHCLog wraps l as an hclog.Logger.
func AsHCLog(l Logger) hclog.Logger {
	return &hclogAdapter{l: l}
}

func (h *hclogAdapter) Log(level hclog.Level, msg string, args ...interface{}) {
	switch level {
	case hclog.Trace, hclog.Debug:
		h.l.Debug(msg, argsToFields(args))
	case hclog.Info:
		h.l.Info(msg, argsToFields(args))
	case hclog.Warn:
		h.l.Warn(msg, argsToFields(args))
	case hclog.Error:
		h.l.Error(msg, argsToFields(args))
	}
}

func argsToFields(args []interface{}) Fields {
	f := make(Fields, len(args)/2)
	for i := 0; i+1 < len(args); i += 2 {
		k, ok := args[i].(string)
		if !ok {
			continue
		}
		f[k] = args[i+1]
	}
	return f
}

func (h *hclogAdapter) Trace(msg string, args ...interface{}) { h.l.Debug(msg, argsToFields(args)) }
func (h *hclogAdapter) Debug(msg string, args ...interface{}) { h.l.Debug(msg, argsToFields(args)) }
func (h *hclogAdapter) Info(msg string, args ...interface{})  { h.l.Info(msg, argsToFields(args)) }
func (h *hclogAdapter) Warn(msg string, args ...interface{})  { h.l.Warn(msg, argsToFields(args)) }
func (h *hclogAdapter) Error(msg string, args ...interface{}) { h.l.Error(msg, argsToFields(args)) }

func (h *hclogAdapter) IsTrace() bool { return h.l.Verbose() }
func (h *hclogAdapter) IsDebug() bool { return h.l.Verbose() }
func (h *hclogAdapter) IsInfo() bool  { return true }
func (h *hclogAdapter) IsWarn() bool  { return true }
func (h *hclogAdapter) IsError() bool { return true }

func (h *hclogAdapter) ImpliedArgs() []interface{} { return nil }
func (h *hclogAdapter) With(args ...interface{}) hclog.Logger {
	return h
}
func (h *hclogAdapter) Name() string                        { return "lsnp" }
func (h *hclogAdapter) Named(name string) hclog.Logger      { return h }
func (h *hclogAdapter) ResetNamed(name string) hclog.Logger { return h }
func (h *hclogAdapter) SetLevel(level hclog.Level)          {}
func (h *hclogAdapter) GetLevel() hclog.Level               { return hclog.Debug }

func (h *hclogAdapter) StandardLogger(opts *hclog.StandardLoggerOptions) *log.Logger {
	return log.New(h.StandardWriter(opts), "", 0)
}

func (h *hclogAdapter) StandardWriter(opts *hclog.StandardLoggerOptions) io.Writer {
	return os.Stdout
}
