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

package lsnperr

import (
	"fmt"
	"runtime"
)

// Error is the error type returned from every LSNP subsystem. It carries a
// Code for programmatic dispatch, an optional message, an optional parent
// (the cause), and the call site that raised it.
type Error struct {
	code   Code
	msg    string
	parent error
	frame  runtime.Frame
}

// New creates an Error with the given code and message, capturing the
// caller's frame.
func New(code Code, msg string) *Error {
	return &Error{code: code, msg: msg, frame: callerFrame()}
}

// Wrap creates an Error with the given code that chains an existing error
// as its cause.
func Wrap(code Code, msg string, parent error) *Error {
	return &Error{code: code, msg: msg, parent: parent, frame: callerFrame()}
}

func callerFrame() runtime.Frame {
	pc := make([]uintptr, 1)
	if runtime.Callers(3, pc) == 0 {
		return runtime.Frame{}
	}
	frames := runtime.CallersFrames(pc)
	f, _ := frames.Next()
	return f
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.msg == "" {
		return e.code.String()
	}
	return fmt.Sprintf("%s: %s", e.code, e.msg)
}

// Code returns the classification of this error.
func (e *Error) Code() Code {
	if e == nil {
		return Unknown
	}
	return e.code
}

// Is reports whether target is an *Error with the same Code, letting
// callers write `errors.Is(err, lsnperr.New(lsnperr.Expired, ""))`-style
// checks, or more idiomatically `lsnperr.Is(err, lsnperr.Expired)`.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.code == t.code
}

// Unwrap exposes the parent error for errors.Is/As/Unwrap chains.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.parent
}

// Trace returns "file:line func" for the call site that raised the error.
func (e *Error) Trace() string {
	if e == nil || e.frame.File == "" {
		return ""
	}
	return fmt.Sprintf("%s:%d %s", e.frame.File, e.frame.Line, e.frame.Function)
}

// Is reports whether err is an *Error carrying the given code, walking the
// Unwrap chain the way the teacher's HasCode does across parents.
func Is(err error, code Code) bool {
	for err != nil {
		if e, ok := err.(*Error); ok && e.code == code {
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}

// CodeOf returns the Code of err if it is (or wraps) an *Error, else Unknown.
func CodeOf(err error) Code {
	for err != nil {
		if e, ok := err.(*Error); ok {
			return e.code
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return Unknown
		}
		err = u.Unwrap()
	}
	return Unknown
}
