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

// ext4Driver formats via mke2fs, matching the "-L label -m 1 -t ext4 -O
// encrypt" invocation this project's mkfs helpers have always used, and
// reads/writes label and UUID via e2label/tune2fs.
type ext4Driver struct{}

func (ext4Driver) Name() string                  { return "ext4" }
func (ext4Driver) WireTag() string                { return "ext4" }
func (ext4Driver) MountCapability() MountCapability { return NativeMount }
func (ext4Driver) MountName() string              { return "ext4" }

func (ext4Driver) MountOptions(uuid, label string) string {
	return "relatime"
}

func (ext4Driver) FormatCommand(devPath, label string) []string {
	return []string{"mke2fs", "-L", label, "-m", "1", "-t", "ext4", "-O", "encrypt", devPath}
}

func (ext4Driver) SupportsLabel() bool { return true }
func (ext4Driver) SupportsUUID() bool  { return true }

func (ext4Driver) ReadLabel(ctx context.Context, devPath string) (string, error) {
	out, err := exec.CommandContext(ctx, "e2label", devPath).CombinedOutput()
	if err != nil {
		return "", imgerr.Wrap(imgerr.ReadData, fmt.Sprintf("e2label %s", devPath), err)
	}
	return strings.TrimSpace(string(out)), nil
}

func (ext4Driver) ReadUUID(ctx context.Context, devPath string) (string, error) {
	out, err := exec.CommandContext(ctx, "tune2fs", "-l", devPath).CombinedOutput()
	if err != nil {
		return "", imgerr.Wrap(imgerr.ReadData, fmt.Sprintf("tune2fs -l %s", devPath), err)
	}
	for _, line := range strings.Split(string(out), "\n") {
		if strings.HasPrefix(line, "Filesystem UUID:") {
			return strings.TrimSpace(strings.TrimPrefix(line, "Filesystem UUID:")), nil
		}
	}
	return "", imgerr.New(imgerr.ReadData, "UUID line not found in tune2fs output")
}

func (ext4Driver) WriteLabel(ctx context.Context, devPath, label string) error {
	if err := exec.CommandContext(ctx, "e2label", devPath, label).Run(); err != nil {
		return imgerr.Wrap(imgerr.WriteData, fmt.Sprintf("e2label %s %s", devPath, label), err)
	}
	return nil
}

func (ext4Driver) WriteUUID(ctx context.Context, devPath, uuid string) error {
	if err := exec.CommandContext(ctx, "tune2fs", "-U", uuid, devPath).Run(); err != nil {
		return imgerr.Wrap(imgerr.WriteData, fmt.Sprintf("tune2fs -U %s", devPath), err)
	}
	return nil
}

func init() { Register(ext4Driver{}) }
