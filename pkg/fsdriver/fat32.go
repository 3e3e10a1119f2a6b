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

// fat32Driver formats via mkdosfs, mirroring the "-n label" invocation
// used for vfat targets, and manages label/UUID with the dosfstools
// suite.
type fat32Driver struct{}

func (fat32Driver) Name() string                    { return "fat32" }
func (fat32Driver) WireTag() string                  { return "fat32" }
func (fat32Driver) MountCapability() MountCapability { return NativeMount }
func (fat32Driver) MountName() string                { return "vfat" }

func (fat32Driver) MountOptions(uuid, label string) string {
	return "utf8"
}

func (fat32Driver) FormatCommand(devPath, label string) []string {
	return []string{"mkdosfs", "-F", "32", "-n", label, devPath}
}

func (fat32Driver) SupportsLabel() bool { return true }
func (fat32Driver) SupportsUUID() bool  { return true }

func (fat32Driver) ReadLabel(ctx context.Context, devPath string) (string, error) {
	out, err := exec.CommandContext(ctx, "fatlabel", devPath).CombinedOutput()
	if err != nil {
		return "", imgerr.Wrap(imgerr.ReadData, fmt.Sprintf("fatlabel %s", devPath), err)
	}
	return strings.TrimSpace(string(out)), nil
}

func (fat32Driver) ReadUUID(ctx context.Context, devPath string) (string, error) {
	out, err := exec.CommandContext(ctx, "blkid", "-s", "UUID", "-o", "value", devPath).CombinedOutput()
	if err != nil {
		return "", imgerr.Wrap(imgerr.ReadData, fmt.Sprintf("blkid %s", devPath), err)
	}
	return strings.TrimSpace(string(out)), nil
}

func (fat32Driver) WriteLabel(ctx context.Context, devPath, label string) error {
	if err := exec.CommandContext(ctx, "fatlabel", devPath, label).Run(); err != nil {
		return imgerr.Wrap(imgerr.WriteData, fmt.Sprintf("fatlabel %s %s", devPath, label), err)
	}
	return nil
}

func (fat32Driver) WriteUUID(ctx context.Context, devPath, uuid string) error {
	// dosfstools has no supported UUID rewrite tool; the volume serial
	// number is fixed at format time.
	return ErrUnsupported
}

func init() { Register(fat32Driver{}) }
