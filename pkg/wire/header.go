// Copyright (C) 2015-2020 the Gprovision Authors. All Rights Reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.
//
// SPDX-License-Identifier: BSD-3-Clause
//

package wire

import (
	"encoding/binary"

	"github.com/clonewave/imgclone/pkg/imgerr"
)

// Magic identifies an imgclone stream. Version is bumped whenever the wire
// layout changes incompatibly.
var Magic = [4]byte{'I', 'M', 'G', 'C'}

const CurrentVersion = 1

// HeaderSize is the fixed on-wire width of a Header.
const HeaderSize = 4 /*magic*/ + 1 /*version*/ + 1 /*type*/ + 1 /*label*/ + 1 /*count*/ + 8 /*reserved*/ + 8 /*total*/

// EncodeHeader serializes h to its fixed-size wire representation.
func EncodeHeader(h Header) ([]byte, error) {
	if h.PartCount > MaxPartitions {
		return nil, imgerr.Newf(imgerr.InvalidImage, "partition count %d exceeds max %d", h.PartCount, MaxPartitions)
	}
	b := make([]byte, HeaderSize)
	copy(b[0:4], Magic[:])
	b[4] = CurrentVersion
	b[5] = byte(h.ImageType)
	b[6] = byte(h.DiskLabel)
	b[7] = h.PartCount
	// bytes 8..16 reserved, left zero
	binary.BigEndian.PutUint64(b[16:24], h.TotalPayload)
	return b, nil
}

// DecodeHeader is the exact inverse of EncodeHeader. Any magic mismatch,
// version mismatch, or truncation is InvalidImage and unrecoverable.
func DecodeHeader(b []byte) (Header, error) {
	if len(b) < HeaderSize {
		return Header{}, imgerr.Newf(imgerr.InvalidImage, "header truncated: got %d bytes, want %d", len(b), HeaderSize)
	}
	if [4]byte(b[0:4]) != Magic {
		return Header{}, imgerr.Newf(imgerr.InvalidImage, "bad magic %q", b[0:4])
	}
	if b[4] != CurrentVersion {
		return Header{}, imgerr.Newf(imgerr.InvalidImage, "unsupported version %d", b[4])
	}
	it := ImageType(b[5])
	if it != ImageDisk && it != ImagePartition {
		return Header{}, imgerr.Newf(imgerr.InvalidImage, "unknown image type %d", b[5])
	}
	dl := DiskLabel(b[6])
	if dl != LabelNone && dl != LabelMBR && dl != LabelGPT {
		return Header{}, imgerr.Newf(imgerr.InvalidImage, "unknown disk label kind %d", b[6])
	}
	count := b[7]
	if count > MaxPartitions {
		return Header{}, imgerr.Newf(imgerr.InvalidImage, "partition count %d exceeds max %d", count, MaxPartitions)
	}
	total := binary.BigEndian.Uint64(b[16:24])
	return Header{
		ImageType:    it,
		DiskLabel:    dl,
		PartCount:    count,
		TotalPayload: total,
	}, nil
}
