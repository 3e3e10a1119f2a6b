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

func TestHeaderRoundTrip(t *testing.T) {
	in := Header{
		ImageType:    ImageDisk,
		DiskLabel:    LabelGPT,
		PartCount:    3,
		TotalPayload: 123456789,
	}
	b, err := EncodeHeader(in)
	require.NoError(t, err)
	require.Len(t, b, HeaderSize)

	out, err := DecodeHeader(b)
	require.NoError(t, err)
	require.Equal(t, in, out)
}

func TestHeaderRejectsTruncation(t *testing.T) {
	b, err := EncodeHeader(Header{ImageType: ImagePartition, DiskLabel: LabelNone, PartCount: 1})
	require.NoError(t, err)

	_, err = DecodeHeader(b[:HeaderSize-1])
	require.Error(t, err)
	k, ok := imgerr.KindOf(err)
	require.True(t, ok)
	require.Equal(t, imgerr.InvalidImage, k)
}

func TestHeaderRejectsBadMagic(t *testing.T) {
	b, err := EncodeHeader(Header{ImageType: ImageDisk, DiskLabel: LabelMBR, PartCount: 0})
	require.NoError(t, err)
	b[0] = 'X'

	_, err = DecodeHeader(b)
	require.Error(t, err)
	k, ok := imgerr.KindOf(err)
	require.True(t, ok)
	require.Equal(t, imgerr.InvalidImage, k)
}

func TestHeaderRejectsExcessivePartCount(t *testing.T) {
	_, err := EncodeHeader(Header{PartCount: MaxPartitions + 1})
	require.Error(t, err)
}
