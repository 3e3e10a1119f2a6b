// Copyright (C) 2015-2020 the Gprovision Authors. All Rights Reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.
//
// SPDX-License-Identifier: BSD-3-Clause
//

// Package materialize mounts and unmounts partitions under a scratch
// directory this process owns, guaranteeing every mount it makes is
// released on every exit path - success, error, or cancellation.
package materialize

import (
	"strings"
	"sync"

	"github.com/moby/sys/mountinfo"

	"github.com/clonewave/imgclone/pkg/imgerr"
)

// entry is one mount this process is responsible for tearing down.
type entry struct {
	source, target, fstype string
	// preMounted marks an entry this process found already mounted
	// outside its scratch prefix and reused rather than created; Unmount
	// forgets it without actually unmounting.
	preMounted bool
}

// table is the process-global record of mounts this process created. It
// mirrors gprovision's package-level `mounted []string` in disk/fs.go,
// generalized to track enough to unmount correctly and reconcile against
// the kernel's own view.
var (
	tableMtx sync.Mutex
	table    []entry
)

// reconcile drops any table entries the kernel no longer reports as
// mounted (e.g. because a previous run crashed after mounting but before
// this process could record cleanup, or an operator unmounted by hand).
func reconcile() error {
	mounts, err := mountinfo.GetMounts(nil)
	if err != nil {
		return imgerr.Wrap(imgerr.Mount, "reading /proc/self/mountinfo", err)
	}
	live := make(map[string]bool, len(mounts))
	for _, m := range mounts {
		live[m.Mountpoint] = true
	}
	tableMtx.Lock()
	defer tableMtx.Unlock()
	kept := table[:0]
	for _, e := range table {
		if live[e.target] {
			kept = append(kept, e)
		}
	}
	table = kept
	return nil
}

func record(e entry) {
	tableMtx.Lock()
	defer tableMtx.Unlock()
	table = append(table, e)
}

func forget(target string) {
	tableMtx.Lock()
	defer tableMtx.Unlock()
	kept := table[:0]
	for _, e := range table {
		if e.target != target {
			kept = append(kept, e)
		}
	}
	table = kept
}

func lookup(target string) (entry, bool) {
	tableMtx.Lock()
	defer tableMtx.Unlock()
	for _, e := range table {
		if e.target == target {
			return e, true
		}
	}
	return entry{}, false
}

// findExisting looks for a live mount of devPath outside scratchPrefix,
// so Mount can reuse a filesystem the caller (or another process) already
// has mounted instead of creating a redundant scratch mount.
func findExisting(devPath, scratchPrefix string) (string, bool, error) {
	mounts, err := mountinfo.GetMounts(nil)
	if err != nil {
		return "", false, imgerr.Wrap(imgerr.Mount, "reading /proc/self/mountinfo", err)
	}
	for _, m := range mounts {
		if m.Source == devPath && !strings.HasPrefix(m.Mountpoint, scratchPrefix) {
			return m.Mountpoint, true, nil
		}
	}
	return "", false, nil
}

// Outstanding returns the mount targets this process currently believes
// are mounted, after reconciling against the kernel. Tests use this to
// assert the zero-entries-after-any-operation invariant.
func Outstanding() ([]string, error) {
	if err := reconcile(); err != nil {
		return nil, err
	}
	tableMtx.Lock()
	defer tableMtx.Unlock()
	out := make([]string, 0, len(table))
	for _, e := range table {
		out = append(out, e.target)
	}
	return out, nil
}
