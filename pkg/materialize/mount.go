// Copyright (C) 2015-2020 the Gprovision Authors. All Rights Reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.
//
// SPDX-License-Identifier: BSD-3-Clause
//

package materialize

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/u-root/u-root/pkg/mount"
	"golang.org/x/sys/unix"

	"github.com/clonewave/imgclone/pkg/fsdriver"
	"github.com/clonewave/imgclone/pkg/imgerr"
)

// mountNative mounts devPath at target using the kernel's mount(2) via
// u-root/pkg/mount, matching gprovision's own
// mount.Mount(dev, target, fstype, "", flags) call shape.
func mountNative(devPath, target, fstype, options string, readOnly bool) error {
	if err := os.MkdirAll(target, 0755); err != nil {
		return imgerr.Wrap(imgerr.Mount, "creating mount point "+target, err)
	}
	flags := uintptr(unix.MS_RELATIME)
	if readOnly {
		flags |= unix.MS_RDONLY
	}
	if _, err := mount.Mount(devPath, target, fstype, options, flags); err != nil {
		return imgerr.Wrap(imgerr.Mount, fmt.Sprintf("mounting %s at %s", devPath, target), err)
	}
	return nil
}

// mountHelper shells out to an external mount helper (ntfs-3g and
// similar FUSE filesystems aren't reachable through mount(2) directly).
// The driver's raw options string is tokenized with fsdriver's shlex-based
// splitter before being rejoined into the helper's single comma-separated
// -o value, so a quoted option value (e.g. x-mount.opt="quoted value")
// reaches the helper unquoted rather than with its shell quoting intact.
func mountHelper(ctx context.Context, helper, devPath, target, options string, readOnly bool) error {
	if err := os.MkdirAll(target, 0755); err != nil {
		return imgerr.Wrap(imgerr.Mount, "creating mount point "+target, err)
	}
	toks, err := fsdriver.TokenizeMountOptions(options)
	if err != nil {
		return err
	}
	opts := strings.Join(toks, ",")
	if readOnly {
		if opts != "" {
			opts += ","
		}
		opts += "ro"
	}
	args := []string{devPath, target}
	if opts != "" {
		args = append(args, "-o", opts)
	}
	cmd := exec.CommandContext(ctx, helper, args...)
	if out, err := cmd.CombinedOutput(); err != nil {
		return imgerr.Wrap(imgerr.Mount, fmt.Sprintf("%s %s: %s", helper, devPath, out), err)
	}
	return nil
}

// unmountAt releases whatever is mounted at target, force+lazy on the
// second attempt the way gprovision's shutdown path does.
func unmountAt(target string) error {
	if err := mount.Unmount(target, false, false); err != nil {
		if err2 := mount.Unmount(target, true, true); err2 != nil {
			return imgerr.Wrap(imgerr.Umount, "unmounting "+target, err2)
		}
	}
	return nil
}

// mountFor mounts a partition according to its driver's declared
// capability, dispatching to mountNative or mountHelper.
func mountFor(ctx context.Context, d fsdriver.Driver, devPath, target, uuid, label string, readOnly bool) error {
	opts := d.MountOptions(uuid, label)
	switch d.MountCapability() {
	case fsdriver.CannotMount:
		return imgerr.Newf(imgerr.Mount, "%s has no mountable filesystem", d.Name())
	case fsdriver.NativeMount:
		return mountNative(devPath, target, d.MountName(), opts, readOnly)
	case fsdriver.HelperMount:
		return mountHelper(ctx, d.MountName(), devPath, target, opts, readOnly)
	default:
		return imgerr.Newf(imgerr.Mount, "unknown mount capability for %s", d.Name())
	}
}
