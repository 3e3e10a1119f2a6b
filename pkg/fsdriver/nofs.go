// Copyright (C) 2015-2020 the Gprovision Authors. All Rights Reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.
//
// SPDX-License-Identifier: BSD-3-Clause
//

package fsdriver

import (
	"context"

	"github.com/clonewave/imgclone/pkg/wire"
)

// nofsDriver is the mandatory fallback for partitions with no recognized
// filesystem, and for extended (container-only) partitions. It carries no
// payload and mounts nothing.
type nofsDriver struct{}

func (nofsDriver) Name() string                  { return "nofs" }
func (nofsDriver) WireTag() string                { return wire.NoFS }
func (nofsDriver) MountCapability() MountCapability { return CannotMount }
func (nofsDriver) MountName() string              { return "" }
func (nofsDriver) MountOptions(uuid, label string) string { return "" }
func (nofsDriver) FormatCommand(devPath, label string) []string { return nil }
func (nofsDriver) SupportsLabel() bool            { return false }
func (nofsDriver) SupportsUUID() bool             { return false }

func (nofsDriver) ReadLabel(ctx context.Context, devPath string) (string, error) {
	return "", ErrUnsupported
}
func (nofsDriver) ReadUUID(ctx context.Context, devPath string) (string, error) {
	return "", ErrUnsupported
}
func (nofsDriver) WriteLabel(ctx context.Context, devPath, label string) error { return ErrUnsupported }
func (nofsDriver) WriteUUID(ctx context.Context, devPath, uuid string) error   { return ErrUnsupported }

func init() { Register(nofsDriver{}) }
