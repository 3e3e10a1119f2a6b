// Copyright (C) 2015-2020 the Gprovision Authors. All Rights Reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.
//
// SPDX-License-Identifier: BSD-3-Clause
//

package materialize

import (
	"context"
	"os"

	"github.com/clonewave/imgclone/pkg/fsdriver"
	"github.com/clonewave/imgclone/pkg/imgerr"
	"github.com/clonewave/imgclone/pkg/wire"
)

// Materializer owns a scratch directory under which it mounts partitions
// on demand, and guarantees every mount it makes is torn down by
// UnmountAll, which every caller must defer immediately after New
// succeeds.
type Materializer struct {
	scratch string
	owned   bool
}

// New creates (or adopts) scratchDir as the mount root. If scratchDir is
// empty, a private temporary directory is created and owned - UnmountAll
// will remove it.
func New(scratchDir string) (*Materializer, error) {
	owned := scratchDir == ""
	if owned {
		dir, err := os.MkdirTemp("", "imgclone-mnt-")
		if err != nil {
			return nil, imgerr.Wrap(imgerr.Mount, "creating scratch dir", err)
		}
		scratchDir = dir
	} else if err := os.MkdirAll(scratchDir, 0755); err != nil {
		return nil, imgerr.Wrap(imgerr.Mount, "creating scratch dir "+scratchDir, err)
	}
	return &Materializer{scratch: scratchDir, owned: owned}, nil
}

// Mount mounts the partition described by desc, backed by devPath, under
// a subdirectory of the scratch root and returns the mount point. If
// devPath is already mounted somewhere outside this Materializer's scratch
// prefix, that mount point is reused instead and marked pre-mounted, so
// Unmount leaves it in place rather than tearing down a mount this
// Materializer didn't create. A partition with no mountable filesystem
// (nofs, unsupported driver) is reported as a Mount-kind error, not
// silently skipped, so callers can choose whether that's fatal.
func (m *Materializer) Mount(ctx context.Context, desc wire.PartitionDesc, devPath string) (string, error) {
	if target, ok, err := findExisting(devPath, m.scratch); err != nil {
		return "", err
	} else if ok {
		record(entry{source: devPath, target: target, preMounted: true})
		return target, nil
	}

	driver := fsdriver.Lookup(desc.FSTag)
	if driver.MountCapability() == fsdriver.CannotMount {
		return "", imgerr.Newf(imgerr.Mount, "partition with fs tag %q is not mountable", desc.FSTag)
	}
	target, err := os.MkdirTemp(m.scratch, "part-")
	if err != nil {
		return "", imgerr.Wrap(imgerr.Mount, "creating mount point under "+m.scratch, err)
	}
	if err := mountFor(ctx, driver, devPath, target, desc.UUID, desc.Label, false); err != nil {
		os.Remove(target)
		return "", err
	}
	record(entry{source: devPath, target: target, fstype: driver.MountName()})
	return target, nil
}

// MountReadOnly is Mount's read-only counterpart, used to probe a
// filesystem (e.g. via statvfs) without risking a write to it. It does not
// consult or create a pre-mounted reuse entry - a probe always wants its
// own short-lived mount so it can unmount unconditionally when done.
func (m *Materializer) MountReadOnly(ctx context.Context, desc wire.PartitionDesc, devPath string) (string, error) {
	driver := fsdriver.Lookup(desc.FSTag)
	if driver.MountCapability() == fsdriver.CannotMount {
		return "", imgerr.Newf(imgerr.Mount, "partition with fs tag %q is not mountable", desc.FSTag)
	}
	target, err := os.MkdirTemp(m.scratch, "probe-")
	if err != nil {
		return "", imgerr.Wrap(imgerr.Mount, "creating mount point under "+m.scratch, err)
	}
	if err := mountFor(ctx, driver, devPath, target, desc.UUID, desc.Label, true); err != nil {
		os.Remove(target)
		return "", err
	}
	record(entry{source: devPath, target: target, fstype: driver.MountName()})
	return target, nil
}

// Unmount releases the mount at target, previously returned by Mount or
// MountReadOnly. A pre-mounted target that this Materializer merely
// reused is left mounted; only the table entry is dropped.
func (m *Materializer) Unmount(target string) error {
	if e, ok := lookup(target); ok && e.preMounted {
		forget(target)
		return nil
	}
	if err := unmountAt(target); err != nil {
		return err
	}
	forget(target)
	return os.Remove(target)
}

// UnmountAll releases every mount this Materializer created, best-effort
// - it keeps going after a failed unmount so one stuck partition doesn't
// leak the rest, and returns the first error encountered, if any.
func (m *Materializer) UnmountAll() error {
	targets, err := Outstanding()
	if err != nil {
		return err
	}
	var first error
	for _, t := range targets {
		if err := m.Unmount(t); err != nil && first == nil {
			first = err
		}
	}
	if m.owned {
		if err := os.RemoveAll(m.scratch); err != nil && first == nil {
			first = imgerr.Wrap(imgerr.Mount, "removing scratch dir "+m.scratch, err)
		}
	}
	return first
}
