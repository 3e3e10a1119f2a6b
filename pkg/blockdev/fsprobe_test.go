// Copyright (C) 2015-2020 the Gprovision Authors. All Rights Reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.
//
// SPDX-License-Identifier: BSD-3-Clause
//

package blockdev

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNormalizeTag(t *testing.T) {
	cases := map[string]string{
		"ext4":    "ext4",
		"ext3":    "ext3",
		"vfat":    "fat32",
		"ntfs":    "ntfs",
		"swap":    "swap",
		"xfs":     "xfs",
		"btrfs":   "btrfs",
		"unknown": "",
		"":        "",
	}
	for in, want := range cases {
		require.Equal(t, want, normalizeTag(in), "input %q", in)
	}
}

func TestProbeFilesystemMissingDeviceIsNotFatal(t *testing.T) {
	tag, label, id := ProbeFilesystem(nil, "/dev/does-not-exist-imgclone-test")
	require.Empty(t, tag)
	require.Empty(t, label)
	require.Empty(t, id)
}
