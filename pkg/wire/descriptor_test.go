// Copyright (C) 2015-2020 the Gprovision Authors. All Rights Reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.
//
// SPDX-License-Identifier: BSD-3-Clause
//

package wire

import (
	"testing"

	"github.com/clonewave/imgclone/pkg/imgerr"
	"github.com/stretchr/testify/require"
)

func TestDescriptorRoundTrip(t *testing.T) {
	cases := []PartitionDesc{
		{Type: Primary, FSTag: "ext4", MinOccupied: 4096, StartPos: 0, UsedPart: 0.5, Flags: FlagBoot | FlagRoot, Label: "root", UUID: "11111111-1111-1111-1111-111111111111"},
		{Type: Extended, FSTag: NoFS, StartPos: 0.9, UsedPart: 0.5},
		{Type: Logical, FSTag: "fat32", MinOccupied: 0, StartPos: 0.1, UsedPart: 0.05, Flags: FlagHidden, Label: "", UUID: ""},
	}
	for _, in := range cases {
		b, err := EncodePartitionDesc(in)
		require.NoError(t, err)
		require.Len(t, b, DescriptorSize)

		out, err := DecodePartitionDesc(b)
		require.NoError(t, err)
		require.Equal(t, in, out)
	}
}

func TestDescriptorRejectsInvalidRange(t *testing.T) {
	_, err := EncodePartitionDesc(PartitionDesc{Type: Primary, StartPos: 0.7, UsedPart: 0.7})
	require.Error(t, err)
	k, ok := imgerr.KindOf(err)
	require.True(t, ok)
	require.Equal(t, imgerr.InvalidImage, k)
}

func TestDescriptorExtendedExemptFromSumBound(t *testing.T) {
	_, err := EncodePartitionDesc(PartitionDesc{Type: Extended, StartPos: 0.9, UsedPart: 0.9})
	require.NoError(t, err)
}

func TestDescriptorRejectsTruncation(t *testing.T) {
	b, err := EncodePartitionDesc(PartitionDesc{Type: Primary, FSTag: "ext4"})
	require.NoError(t, err)

	_, err = DecodePartitionDesc(b[:DescriptorSize-1])
	require.Error(t, err)
}

func TestHasPayload(t *testing.T) {
	require.False(t, PartitionDesc{Type: Extended}.HasPayload())
	require.False(t, PartitionDesc{Type: Primary, FSTag: NoFS}.HasPayload())
	require.True(t, PartitionDesc{Type: Primary, FSTag: "ext4"}.HasPayload())
}
