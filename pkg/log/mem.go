// Copyright (C) 2015-2020 the Gprovision Authors. All Rights Reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.
//
// SPDX-License-Identifier: BSD-3-Clause
//

package log

// defaultMemLogCap bounds how many entries a memLog keeps before it starts
// dropping the oldest ones. A clone run logs at chunk cadence and can run
// for hours against a large disk; an unbounded memLog would grow without
// limit until FlushMemLog is called.
const defaultMemLogCap = 4096

// DefaultMemLogCap is the entry cap a memLog installs itself with. Exported
// for tests that need to exercise the trimming behavior without hardcoding
// the value twice.
const DefaultMemLogCap = defaultMemLogCap

// memLog is the default type of log, storing entries in memory and not
// displaying them in any way. See AddConsoleLog, AddFileLog.
type memLog struct {
	entries []LogEntry
	cap     int
	next    StackableLogger
}

var _ StackableLogger = (*memLog)(nil)

// AddMemLog adds a memLog to the stack; unlikely to need calling directly,
// since a memLog is the default logger installed before any other sink is
// configured.
//
// See also AddConsoleLog, AddFileLog.
func AddMemLog() error { return AddLogger(&memLog{cap: defaultMemLogCap}, false) }

func (ml *memLog) AddEntry(e LogEntry) {
	if ml.cap <= 0 {
		ml.cap = defaultMemLogCap
	}
	ml.entries = append(ml.entries, e)
	if over := len(ml.entries) - ml.cap; over > 0 {
		ml.entries = ml.entries[over:]
	}
	if ml.next != nil {
		ml.next.AddEntry(e)
	}
}

func (ml *memLog) ForwardTo(sl StackableLogger) {
	if ml.next == nil || sl == nil {
		ml.next = sl
	} else {
		panic("next already set")
	}
}

const MemLogIdent = "memLog"

func (ml *memLog) Ident() string         { return MemLogIdent }
func (ml *memLog) Next() StackableLogger { return ml.next }

func (ml *memLog) Finalize() {
	ml.entries = nil
	if ml.next != nil {
		ml.next.Finalize()
	}
}

// Entries is not part of the StackableLogger interface.
func (ml *memLog) Entries() []LogEntry { return ml.entries }

// StoredEntries retrieves all entries logged so far. Requires a memLog in
// the stack; mainly useful for tests.
func StoredEntries() []LogEntry {
	logStackMtx.Lock()
	defer logStackMtx.Unlock()
	ml := FindInStack(MemLogIdent)
	if ml == nil {
		return nil
	}
	mem := ml.(*memLog)
	return mem.Entries()
}

// FlushMemLog removes a memLog from the stack. Used once other log sinks
// have been added, to stop accumulating entries in memory.
func FlushMemLog() {
	RemoveLogger(MemLogIdent)
}
