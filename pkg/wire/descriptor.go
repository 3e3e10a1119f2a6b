// Copyright (C) 2015-2020 the Gprovision Authors. All Rights Reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.
//
// SPDX-License-Identifier: BSD-3-Clause
//

package wire

import (
	"encoding/binary"
	"strings"

	"github.com/clonewave/imgclone/pkg/imgerr"
)

// DescriptorSize is the fixed on-wire width of a PartitionDesc.
const DescriptorSize = 1 /*type*/ + FSTagLen + 8 /*minOccupied*/ + 8 /*start*/ + 8 /*used*/ + 2 /*flags*/ + LabelLen + UUIDLen

func putFixedASCII(dst []byte, s string) {
	n := copy(dst, s)
	for i := n; i < len(dst); i++ {
		dst[i] = 0
	}
}

func getFixedASCII(src []byte) string {
	i := 0
	for i < len(src) && src[i] != 0 {
		i++
	}
	return string(src[:i])
}

// EncodePartitionDesc serializes d to its fixed-size wire representation.
// It is the exact inverse of DecodePartitionDesc.
func EncodePartitionDesc(d PartitionDesc) ([]byte, error) {
	if err := d.Validate(); err != nil {
		return nil, imgerr.Wrap(imgerr.InvalidImage, "encoding partition descriptor", err)
	}
	b := make([]byte, DescriptorSize)
	off := 0
	b[off] = byte(d.Type)
	off++
	putFixedASCII(b[off:off+FSTagLen], d.FSTag)
	off += FSTagLen
	binary.BigEndian.PutUint64(b[off:off+8], d.MinOccupied)
	off += 8
	putFloat64(b[off:off+8], d.StartPos)
	off += 8
	putFloat64(b[off:off+8], d.UsedPart)
	off += 8
	binary.BigEndian.PutUint16(b[off:off+2], uint16(d.Flags))
	off += 2
	putFixedASCII(b[off:off+LabelLen], d.Label)
	off += LabelLen
	putFixedASCII(b[off:off+UUIDLen], d.UUID)
	off += UUIDLen
	return b, nil
}

// DecodePartitionDesc is the exact inverse of EncodePartitionDesc.
func DecodePartitionDesc(b []byte) (PartitionDesc, error) {
	if len(b) < DescriptorSize {
		return PartitionDesc{}, imgerr.Newf(imgerr.InvalidImage, "descriptor truncated: got %d bytes, want %d", len(b), DescriptorSize)
	}
	off := 0
	pt := PartType(b[off])
	if pt != Primary && pt != Extended && pt != Logical {
		return PartitionDesc{}, imgerr.Newf(imgerr.InvalidImage, "unknown partition type %d", b[off])
	}
	off++
	fsTag := getFixedASCII(b[off : off+FSTagLen])
	off += FSTagLen
	minOccupied := binary.BigEndian.Uint64(b[off : off+8])
	off += 8
	start := getFloat64(b[off : off+8])
	off += 8
	used := getFloat64(b[off : off+8])
	off += 8
	flags := Flag(binary.BigEndian.Uint16(b[off : off+2]))
	off += 2
	label := strings.TrimRight(getFixedASCII(b[off:off+LabelLen]), "\x00")
	off += LabelLen
	uuid := strings.TrimRight(getFixedASCII(b[off:off+UUIDLen]), "\x00")
	off += UUIDLen

	d := PartitionDesc{
		Type:        pt,
		FSTag:       fsTag,
		MinOccupied: minOccupied,
		StartPos:    start,
		UsedPart:    used,
		Flags:       flags,
		Label:       label,
		UUID:        uuid,
	}
	if start < 0 || start > 1 || used < 0 || used > 1 {
		return d, imgerr.Newf(imgerr.InvalidImage, "fraction out of range: start=%v used=%v", start, used)
	}
	return d, nil
}
