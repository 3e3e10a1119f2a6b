// Copyright (C) 2015-2020 the Gprovision Authors. All Rights Reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.
//
// SPDX-License-Identifier: BSD-3-Clause
//

package orchestrator

import "github.com/clonewave/imgclone/pkg/log"

// shutdownHandler accumulates cleanup actions (close a socket, unmount a
// scratch tree) as a run opens them, and runs every one, in reverse
// order, exactly once, regardless of how the run ends.
type shutdownHandler struct {
	actions []func()
	ran     bool
}

func newShutdownHandler() *shutdownHandler { return &shutdownHandler{} }

// add registers a cleanup action, most-recently-opened resource first
// when run fires.
func (h *shutdownHandler) add(action func()) {
	h.actions = append(h.actions, action)
}

// run executes every registered action in reverse-registration order,
// best-effort - one panicking or misbehaving action must not prevent the
// rest from running. Idempotent: a second call is a no-op.
func (h *shutdownHandler) run() {
	if h.ran {
		return
	}
	h.ran = true
	for i := len(h.actions) - 1; i >= 0; i-- {
		func() {
			defer func() {
				if r := recover(); r != nil {
					log.Logf("orchestrator: shutdown action panicked: %v", r)
				}
			}()
			h.actions[i]()
		}()
	}
}
