// Copyright (C) 2015-2020 the Gprovision Authors. All Rights Reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.
//
// SPDX-License-Identifier: BSD-3-Clause
//

// Package testlog gives tests a capturing log sink plus a way to assert
// whether log.Fatalf was invoked, without actually terminating the test
// binary.
package testlog

import (
	"bytes"
	"fmt"
	"sync"
	"testing"

	"github.com/clonewave/imgclone/pkg/log"
)

// TestLog captures log output into Buf and counts Fatalf calls instead of
// exiting the process.
type TestLog struct {
	T               *testing.T
	Buf             bytes.Buffer
	FatalCount      int
	FatalIsNotErr   bool
	mu              sync.Mutex
	prevFatalAction log.FailAction
	frozen          bool
}

type sink struct {
	tl   *TestLog
	next log.StackableLogger
}

var _ log.StackableLogger = (*sink)(nil)

const Ident = "testlog"

func (s *sink) AddEntry(e log.LogEntry) {
	s.tl.mu.Lock()
	fmt.Fprintln(&s.tl.Buf, e.String())
	s.tl.mu.Unlock()
	if s.next != nil {
		s.next.AddEntry(e)
	}
}
func (s *sink) ForwardTo(sl log.StackableLogger) { s.next = sl }
func (s *sink) Ident() string                    { return Ident }
func (s *sink) Next() log.StackableLogger        { return s.next }
func (s *sink) Finalize() {
	if s.next != nil {
		s.next.Finalize()
	}
}

// NewTestLog installs a capturing sink for the duration of the test. If
// addPrevious, buffered mem-log entries are replayed into it. If
// interceptFatal, Fatalf calls increment FatalCount instead of exiting.
func NewTestLog(t *testing.T, addPrevious, interceptFatal bool) *TestLog {
	tl := &TestLog{T: t}
	log.SetPrefix("test")
	_ = log.AddLogger(&sink{tl: tl}, addPrevious)
	if interceptFatal {
		tl.prevFatalAction = log.DefaultFatal
		log.SetFatalAction(log.FailAction{
			Pre: func(f string, va ...interface{}) {
				tl.mu.Lock()
				tl.FatalCount++
				tl.mu.Unlock()
			},
			Terminator: func() {
				if !tl.FatalIsNotErr {
					tl.T.Errorf("log.Fatalf called")
				}
			},
		})
	}
	return tl
}

// Freeze finalizes the log stack so no more entries are appended to Buf.
func (tl *TestLog) Freeze() {
	if tl.frozen {
		return
	}
	tl.frozen = true
	log.RemoveLogger(Ident)
	log.SetFatalAction(tl.prevFatalAction)
	log.DefaultLogStack()
}
