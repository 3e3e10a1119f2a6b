// Copyright (C) 2015-2020 the Gprovision Authors. All Rights Reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.
//
// SPDX-License-Identifier: BSD-3-Clause
//

package log

import (
	"fmt"
	"sync"
	"time"
)

// StackableLogger is a logger that can be chained onto others, each adding a
// sink: console, file, or in-memory. Callers use the package-level functions
// (Logf, Msgf, Fatalf) rather than a StackableLogger directly.
type StackableLogger interface {
	// AddEntry records e, then forwards to Next() if set.
	AddEntry(e LogEntry)
	// ForwardTo chains this logger to another. Must only be called once.
	ForwardTo(StackableLogger)
	// Ident identifies the logger's type, to prevent stacking duplicates.
	Ident() string
	// Next returns the next StackableLogger, or nil.
	Next() StackableLogger
	// Finalize releases resources (closes a file, etc), then forwards.
	Finalize()
}

// logStack is the topmost logger. Access must hold logStackMtx.
var logStack StackableLogger = &memLog{}

var logStackMtx sync.Mutex

type stackErr struct{ Id string }

func (se *stackErr) Error() string {
	return fmt.Sprintf("duplicate logger %s in stack", se.Id)
}

// Finalize flushes and closes every sink in the stack.
func Finalize() {
	logStackMtx.Lock()
	defer logStackMtx.Unlock()
	logStack.Finalize()
}

// DefaultLogStack discards the current stack and replaces it with a bare
// memLog.
func DefaultLogStack() { NewLogStack(&memLog{}) }

// NewLogStack finalizes the existing stack and installs newLog as the
// topmost logger.
func NewLogStack(newLog StackableLogger) {
	logStackMtx.Lock()
	defer logStackMtx.Unlock()
	if logStack != nil {
		logStack.Finalize()
	}
	logStack = newLog
	ClearAttrs()
}

// AddLogger pushes sl onto the stack. If addPrevious, any entries already
// buffered in a MemLog are replayed into sl first.
func AddLogger(sl StackableLogger, addPrevious bool) error {
	logStackMtx.Lock()
	defer logStackMtx.Unlock()
	if addPrevious {
		addPreviousEvents(sl, logStack)
	}
	sl.ForwardTo(logStack)
	err := forwardFrom(sl, logStack)
	if err == nil {
		logStack = sl
	}
	return err
}

func forwardFrom(newLogger, sl StackableLogger) error {
	if newLogger.Ident() == sl.Ident() {
		return &stackErr{Id: sl.Ident()}
	}
	if next := sl.Next(); next != nil {
		return forwardFrom(newLogger, next)
	}
	return nil
}

// RemoveLogger removes the logger with the given id from the stack.
func RemoveLogger(id string) {
	logStackMtx.Lock()
	defer logStackMtx.Unlock()
	l := logStack
	var prev StackableLogger
	for l != nil {
		next := l.Next()
		if l.Ident() == id {
			l.ForwardTo(nil)
			l.Finalize()
			if prev != nil {
				prev.ForwardTo(nil)
				prev.ForwardTo(next)
			} else {
				logStack = next
			}
			break
		}
		prev = l
		l = next
	}
}

// LogEntry is the record type shared by every StackableLogger.
type LogEntry struct {
	Time  time.Time `json:"t"`
	Msg   string
	Args  []interface{} `json:",omitempty"`
	Flags Flag          `json:",omitempty"`
}

// FlaggedLogf is the backend of Logf/Msgf/Fatalf.
func FlaggedLogf(opts Flag, f string, va ...interface{}) {
	logStackMtx.Lock()
	defer logStackMtx.Unlock()
	logStack.AddEntry(LogEntry{
		Time:  time.Now(),
		Flags: opts,
		Msg:   f,
		Args:  va,
	})
}

func (le *LogEntry) String() string {
	var div string
	switch {
	case le.Flags&EndUser != 0:
		div = "-- "
	case le.Flags&Fatal != 0:
		div = "!! "
	case le.Flags == 0:
		div = "*- "
	default:
		div = "?? "
	}
	f := div + le.Time.Format(TimestampLayout) + " " + div + le.Msg
	return fmt.Sprintf(f, le.Args...)
}

func addPreviousEvents(newlog, current StackableLogger) {
	if _, isMem := newlog.(*memLog); isMem {
		return
	}
	ml := FindInStack(MemLogIdent)
	if ml == nil {
		return
	}
	mem, ok := ml.(*memLog)
	if !ok {
		return
	}
	for _, e := range mem.Entries() {
		newlog.AddEntry(e)
	}
}

// InStack reports whether a logger matching id is present.
func InStack(id string) bool {
	return FindInStack(id) != nil
}

// FindInStack returns the StackableLogger matching id, or nil.
func FindInStack(id string) StackableLogger {
	l := logStack
	for l != nil {
		if l.Ident() == id {
			return l
		}
		l = l.Next()
	}
	return nil
}
