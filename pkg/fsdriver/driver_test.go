// Copyright (C) 2015-2020 the Gprovision Authors. All Rights Reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.
//
// SPDX-License-Identifier: BSD-3-Clause
//

package fsdriver

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLookupFallsBackToNofs(t *testing.T) {
	d := Lookup("some-future-filesystem-nobody-has-heard-of")
	require.Equal(t, "nofs", d.Name())
	require.Equal(t, CannotMount, d.MountCapability())
}

func TestLookupKnownDrivers(t *testing.T) {
	for _, tag := range []string{"ext4", "fat32", "ntfs"} {
		d := Lookup(tag)
		require.Equal(t, tag, d.WireTag())
		require.NotEmpty(t, d.FormatCommand("/dev/sdX1", "mylabel"))
	}
}

func TestTokenizeMountOptions(t *testing.T) {
	toks, err := TokenizeMountOptions(`relatime,x-mount.opt="quoted value"`)
	require.NoError(t, err)
	require.NotEmpty(t, toks)

	toks, err = TokenizeMountOptions("")
	require.NoError(t, err)
	require.Nil(t, toks)
}

func TestKnownTagsExcludesNofs(t *testing.T) {
	tags := KnownTags()
	require.NotContains(t, tags, "nofs")
	require.Contains(t, tags, "ext4")
}

func TestFat32UUIDWriteUnsupported(t *testing.T) {
	d := Lookup("fat32")
	err := d.WriteUUID(nil, "/dev/sdX1", "00000000-0000-0000-0000-000000000000")
	require.ErrorIs(t, err, ErrUnsupported)
}
