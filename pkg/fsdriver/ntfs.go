// Copyright (C) 2015-2020 the Gprovision Authors. All Rights Reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.
//
// SPDX-License-Identifier: BSD-3-Clause
//

package fsdriver

import (
	"context"
	"fmt"
	"os/exec"
	"strings"

	"github.com/clonewave/imgclone/pkg/imgerr"
)

// ntfsDriver mounts through the ntfs-3g FUSE helper rather than the
// kernel's own read-mostly ntfs driver, matching FixupRecoveryFS's
// "ntfs-3g doesn't support discard" special case.
type ntfsDriver struct{}

func (ntfsDriver) Name() string                    { return "ntfs" }
func (ntfsDriver) WireTag() string                  { return "ntfs" }
func (ntfsDriver) MountCapability() MountCapability { return HelperMount }
func (ntfsDriver) MountName() string                { return "ntfs-3g" }

func (ntfsDriver) MountOptions(uuid, label string) string {
	return "big_writes"
}

func (ntfsDriver) FormatCommand(devPath, label string) []string {
	return []string{"mkntfs", "--quick", "--label", label, devPath}
}

func (ntfsDriver) SupportsLabel() bool { return true }
func (ntfsDriver) SupportsUUID() bool  { return true }

func (ntfsDriver) ReadLabel(ctx context.Context, devPath string) (string, error) {
	out, err := exec.CommandContext(ctx, "ntfslabel", devPath).CombinedOutput()
	if err != nil {
		return "", imgerr.Wrap(imgerr.ReadData, fmt.Sprintf("ntfslabel %s", devPath), err)
	}
	return strings.TrimSpace(string(out)), nil
}

func (ntfsDriver) ReadUUID(ctx context.Context, devPath string) (string, error) {
	out, err := exec.CommandContext(ctx, "blkid", "-s", "UUID", "-o", "value", devPath).CombinedOutput()
	if err != nil {
		return "", imgerr.Wrap(imgerr.ReadData, fmt.Sprintf("blkid %s", devPath), err)
	}
	return strings.TrimSpace(string(out)), nil
}

func (ntfsDriver) WriteLabel(ctx context.Context, devPath, label string) error {
	if err := exec.CommandContext(ctx, "ntfslabel", devPath, label).Run(); err != nil {
		return imgerr.Wrap(imgerr.WriteData, fmt.Sprintf("ntfslabel %s %s", devPath, label), err)
	}
	return nil
}

func (ntfsDriver) WriteUUID(ctx context.Context, devPath, uuid string) error {
	return ErrUnsupported
}

func init() { Register(ntfsDriver{}) }
