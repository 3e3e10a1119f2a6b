// Copyright (C) 2015-2020 the Gprovision Authors. All Rights Reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.
//
// SPDX-License-Identifier: BSD-3-Clause
//

package log_test

import (
	"strings"
	"testing"

	"github.com/clonewave/imgclone/pkg/log"
	"github.com/clonewave/imgclone/pkg/log/testlog"
	"github.com/stretchr/testify/require"
)

func TestMsgVsLog(t *testing.T) {
	tlog := testlog.NewTestLog(t, true, false)
	log.Msg("hello operator")
	log.Log("internal detail")
	tlog.Freeze()

	out := tlog.Buf.String()
	require.Contains(t, out, "hello operator")
	require.Contains(t, out, "internal detail")
	require.Contains(t, out, "-- ") // Msg entries are marked EndUser
}

func TestFatalfRunsFailAction(t *testing.T) {
	tlog := testlog.NewTestLog(t, true, true)
	tlog.FatalIsNotErr = true

	var preRan, terminated bool
	log.SetFatalAction(log.FailAction{
		MsgPfx: "FATAL: ",
		Pre:    func(f string, va ...interface{}) { preRan = true },
		Terminator: func() {
			terminated = true
		},
	})

	log.Fatalf("disk %s vanished", "/dev/sda")
	tlog.Freeze()

	require.True(t, preRan)
	require.True(t, terminated)
	require.True(t, strings.Contains(tlog.Buf.String(), "disk /dev/sda vanished"))
}

func TestMemLogTrimsOldestEntriesPastCap(t *testing.T) {
	log.DefaultLogStack()
	defer log.DefaultLogStack()

	total := log.DefaultMemLogCap + 100
	for i := 0; i < total; i++ {
		log.Logf("entry %d", i)
	}

	entries := log.StoredEntries()
	require.Len(t, entries, log.DefaultMemLogCap)

	oldest := entries[0]
	require.Equal(t, total-log.DefaultMemLogCap, oldest.Args[0])

	newest := entries[len(entries)-1]
	require.Equal(t, total-1, newest.Args[0])
}
