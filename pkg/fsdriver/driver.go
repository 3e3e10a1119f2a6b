// Copyright (C) 2015-2020 the Gprovision Authors. All Rights Reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.
//
// SPDX-License-Identifier: BSD-3-Clause
//

// Package fsdriver hides per-filesystem quirks (mount options, format
// command, whether label/UUID is even a concept for this filesystem)
// behind one interface, the way disk.Filesystem hid them for a fixed set
// of filesystems.
package fsdriver

import (
	"context"

	"github.com/google/shlex"

	"github.com/clonewave/imgclone/pkg/imgerr"
	"github.com/clonewave/imgclone/pkg/wire"
)

// MountCapability describes whether and how a driver can mount its
// filesystem.
type MountCapability uint8

const (
	// CannotMount means the driver has no notion of a mountable
	// filesystem (nofs, swap).
	CannotMount MountCapability = iota
	// NativeMount can be handled by the kernel's own mount(2) syscall.
	NativeMount
	// HelperMount requires an external userspace mount helper.
	HelperMount
)

// Driver hides everything about one filesystem kind that the rest of the
// codebase needs but shouldn't have to special-case: how to mount it, how
// to format it, and whether it even has a label/UUID concept.
type Driver interface {
	// Name is the driver's own name, e.g. "ext4".
	Name() string
	// WireTag is the FSTag value this driver corresponds to on the wire.
	WireTag() string
	MountCapability() MountCapability
	// MountName is the kernel filesystem type passed to mount(2), or the
	// external helper binary name for HelperMount drivers.
	MountName() string
	// MountOptions returns the raw mount options string for uuid/label,
	// tokenized by the caller via shlex before exec.
	MountOptions(uuid, label string) string
	// FormatCommand returns the argv for creating a fresh filesystem with
	// the given label on devPath.
	FormatCommand(devPath, label string) (argv []string)
	SupportsLabel() bool
	SupportsUUID() bool
	ReadLabel(ctx context.Context, devPath string) (string, error)
	ReadUUID(ctx context.Context, devPath string) (string, error)
	WriteLabel(ctx context.Context, devPath, label string) error
	WriteUUID(ctx context.Context, devPath, uuid string) error
}

// TokenizeMountOptions splits a driver's MountOptions string into argv
// tokens the way a shell would, so options containing quoted values
// survive being passed to an external mount helper.
func TokenizeMountOptions(opts string) ([]string, error) {
	if opts == "" {
		return nil, nil
	}
	toks, err := shlex.Split(opts)
	if err != nil {
		return nil, imgerr.Wrap(imgerr.Mount, "tokenizing mount options", err)
	}
	return toks, nil
}

// ErrUnsupported is returned by ReadLabel/ReadUUID/WriteLabel/WriteUUID
// implementations for drivers that don't support that operation.
var ErrUnsupported = imgerr.New(imgerr.Format, "operation not supported by this filesystem driver")

// registry maps a wire.FSTag to its Driver, populated by each driver's
// init() via Register.
var registry = map[string]Driver{}

// Register adds d to the registry, keyed by d.WireTag(). Later
// registrations for the same tag replace earlier ones - useful for tests
// that stub a driver out.
func Register(d Driver) { registry[d.WireTag()] = d }

// Lookup returns the driver for tag, falling back to the nofs driver
// (which is always registered) when tag is unrecognized: an image built
// on a newer version of this tool with a filesystem this build doesn't
// know about should still restore data, just without label/UUID/format
// support.
func Lookup(tag string) Driver {
	if d, ok := registry[tag]; ok {
		return d
	}
	return registry[wire.NoFS]
}
