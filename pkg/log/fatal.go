// Copyright (C) 2015-2020 the Gprovision Authors. All Rights Reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.
//
// SPDX-License-Identifier: BSD-3-Clause
//

package log

import (
	"os"
	"strings"
)

// FatalFunc is called after a fatal event has been logged and finalized. It
// might reboot, power off, or just exit the process.
type FatalFunc func()

// PreFunc runs before Finalize, while the log is still writable.
type PreFunc func(f string, va ...interface{})

// FailAction describes what happens when Fatalf is called. It does not need
// to log the event itself - that happens automatically.
type FailAction struct {
	// MsgPfx is prepended to the fatal message.
	MsgPfx string
	// Pre runs before Finalize - e.g. shutting down open sockets/mounts.
	Pre PreFunc
	// Terminator runs after Finalize; the log is no longer writable.
	Terminator FatalFunc
}

var fatalAction = DefaultFatal

// SetFatalAction installs the action taken by Fatalf. See FailAction.
func SetFatalAction(act FailAction) { fatalAction = act }

// DefaultFatal calls os.Exit(1).
var DefaultFatal = FailAction{Terminator: DefaultFatalAction}

func DefaultFatalAction() {
	if strings.HasSuffix(os.Args[0], "test") {
		panic("generic fatal called from test")
	}
	os.Exit(1)
}

// Fatalf logs f, runs the registered FailAction's Pre hook, finalizes the
// log, then runs the Terminator. It does not return.
func Fatalf(f string, va ...interface{}) {
	if logStack.Next() == nil && logStack.Ident() == MemLogIdent {
		AddConsoleLog(0)
		Log("Fatalf: logging unconfigured")
	}
	FlaggedLogf(Fatal, fatalAction.MsgPfx+f, va...)
	if fatalAction.Pre != nil {
		fatalAction.Pre(fatalAction.MsgPfx+f, va...)
	}
	Finalize()
	fatalAction.Terminator()
}
