// Copyright (C) 2015-2020 the Gprovision Authors. All Rights Reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.
//
// SPDX-License-Identifier: BSD-3-Clause
//

package wire

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWriteReadMetaRoundTrip(t *testing.T) {
	img := Image{
		Header: Header{ImageType: ImageDisk, DiskLabel: LabelGPT, PartCount: 2, TotalPayload: 42},
		Descriptors: []PartitionDesc{
			{Type: Primary, FSTag: "ext4", StartPos: 0, UsedPart: 0.4},
			{Type: Primary, FSTag: "fat32", StartPos: 0.4, UsedPart: 0.1},
		},
	}
	var buf bytes.Buffer
	require.NoError(t, WriteMeta(&buf, img))

	out, err := ReadMeta(&buf)
	require.NoError(t, err)
	require.Equal(t, img, out)
}

func TestWriteMetaRejectsCountMismatch(t *testing.T) {
	img := Image{Header: Header{PartCount: 2}, Descriptors: []PartitionDesc{{Type: Primary}}}
	var buf bytes.Buffer
	require.Error(t, WriteMeta(&buf, img))
}

func TestPayloadFramePrefixesLength(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WritePayloadFrame(&buf, []byte("hello")))

	size, err := ReadPayloadFrameSize(&buf)
	require.NoError(t, err)
	require.Equal(t, uint64(5), size)
	require.Equal(t, "hello", buf.String())
}

func TestMetaPrecedesPayloadInStream(t *testing.T) {
	img := Image{
		Header:      Header{ImageType: ImagePartition, DiskLabel: LabelNone, PartCount: 1, TotalPayload: 5},
		Descriptors: []PartitionDesc{{Type: Primary, FSTag: "ext4", StartPos: 0, UsedPart: 1}},
	}
	var buf bytes.Buffer
	require.NoError(t, WriteMeta(&buf, img))
	require.NoError(t, WritePayloadFrame(&buf, []byte("stuff")))

	out, err := ReadMeta(&buf)
	require.NoError(t, err)
	require.Equal(t, img, out)

	size, err := ReadPayloadFrameSize(&buf)
	require.NoError(t, err)
	require.Equal(t, uint64(5), size)
	require.Equal(t, "stuff", buf.String())
}
