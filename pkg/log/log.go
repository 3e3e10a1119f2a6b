// Copyright (C) 2015-2020 the Gprovision Authors. All Rights Reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.
//
// SPDX-License-Identifier: BSD-3-Clause
//

// Package log is a flexible logging mechanism allowing multiple log sinks,
// outputting to one or more of: the console, a file, or held in memory for
// later replay.
//
// By default, events are retained in memory so they can be re-played into
// new log sinks if/when they are added later on.
package log

import (
	"fmt"
	"os"
)

var logPrefix string

// SetPrefix sets the log prefix, used in file names and other places. Must
// be set before calling AddFileLog().
func SetPrefix(pfx string) {
	logPrefix = pfx
}

// GetPrefix returns the log prefix.
func GetPrefix() string { return logPrefix }

// Msgf is for messages suitable for display to an operator watching a
// clone/restore run. Short, non-technical, infrequent.
func Msgf(f string, va ...interface{}) { FlaggedLogf(EndUser, f, va...) }

// Msgln is like Msgf, appending a newline.
func Msgln(va ...interface{}) { Msgf(fmt.Sprintln(va...)) }

// Msg is like Msgf with no format args.
func Msg(message string) { Msgf(message) }

// Logf is for technical or trivial messages, never surfaced to an operator.
func Logf(f string, va ...interface{}) { FlaggedLogf(NA, f, va...) }

// Logln is like Logf, appending a newline.
func Logln(va ...interface{}) { Logf(fmt.Sprintln(va...)) }

// Log is like Logf with no format args.
func Log(message string) { Logf(message) }

// DumpStderr writes the contents of any in-memory log to stderr. No-op if
// there is no MemLog in the stack.
func DumpStderr() {
	l := FindInStack(MemLogIdent)
	if l != nil {
		ml := l.(*memLog)
		for _, e := range ml.Entries() {
			fmt.Fprintln(os.Stderr, e.String())
		}
	}
}
