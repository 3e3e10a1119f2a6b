// Copyright (C) 2015-2020 the Gprovision Authors. All Rights Reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.
//
// SPDX-License-Identifier: BSD-3-Clause
//

// Package wire implements the on-wire/on-disk image format: the fixed
// header, the per-partition descriptors, and the filesystem-tree archive
// that carries file contents. Every multi-byte field is big-endian; this is
// the only encoding this package will ever produce or accept, matching the
// deliberately fixed byte order gprovision's own artifacts use.
package wire

import "fmt"

// ImageType distinguishes a whole-disk image from a single-partition image.
type ImageType uint8

const (
	ImageDisk ImageType = iota
	ImagePartition
)

func (t ImageType) String() string {
	switch t {
	case ImageDisk:
		return "DISK"
	case ImagePartition:
		return "PARTITION"
	default:
		return fmt.Sprintf("ImageType(%d)", uint8(t))
	}
}

// DiskLabel is the partition-table kind, meaningful only when the image
// type is ImageDisk.
type DiskLabel uint8

const (
	LabelNone DiskLabel = iota
	LabelMBR
	LabelGPT
)

func (l DiskLabel) String() string {
	switch l {
	case LabelNone:
		return "NONE"
	case LabelMBR:
		return "MBR"
	case LabelGPT:
		return "GPT"
	default:
		return fmt.Sprintf("DiskLabel(%d)", uint8(l))
	}
}

// PartType is the kind of a single partition entry.
type PartType uint8

const (
	Primary PartType = iota
	Extended
	Logical
)

func (t PartType) String() string {
	switch t {
	case Primary:
		return "PRIMARY"
	case Extended:
		return "EXTENDED"
	case Logical:
		return "LOGICAL"
	default:
		return fmt.Sprintf("PartType(%d)", uint8(t))
	}
}

// Flag is a bitset over partition attributes. Bits this package does not
// recognize are preserved verbatim through decode/encode round trips,
// since PartitionDesc stores and writes the raw uint16.
type Flag uint16

const (
	FlagBoot Flag = 1 << iota
	FlagRoot
	FlagSwap
	FlagHidden
	FlagRAID
	FlagLVM
	FlagLBA
	FlagHPService
	FlagPalo
	FlagPrep
	FlagMSFTReserved
	FlagBIOSGrub
	FlagAppleTVRecovery
	FlagDiag
)

var flagNames = []struct {
	bit  Flag
	name string
}{
	{FlagBoot, "BOOT"},
	{FlagRoot, "ROOT"},
	{FlagSwap, "SWAP"},
	{FlagHidden, "HIDDEN"},
	{FlagRAID, "RAID"},
	{FlagLVM, "LVM"},
	{FlagLBA, "LBA"},
	{FlagHPService, "HPSERVICE"},
	{FlagPalo, "PALO"},
	{FlagPrep, "PREP"},
	{FlagMSFTReserved, "MSFT_RESERVED"},
	{FlagBIOSGrub, "BIOS_GRUB"},
	{FlagAppleTVRecovery, "APPLE_TV_RECOVERY"},
	{FlagDiag, "DIAG"},
}

func (f Flag) String() string {
	s := ""
	for _, fn := range flagNames {
		if f&fn.bit != 0 {
			if s != "" {
				s += "|"
			}
			s += fn.name
		}
	}
	if unknown := f &^ knownFlagMask(); unknown != 0 {
		if s != "" {
			s += "|"
		}
		s += fmt.Sprintf("unknown(0x%x)", uint16(unknown))
	}
	if s == "" {
		return "none"
	}
	return s
}

func knownFlagMask() Flag {
	var m Flag
	for _, fn := range flagNames {
		m |= fn.bit
	}
	return m
}

// NoFS is the filesystem tag used when no filesystem was detected on a
// partition.
const NoFS = "nofs"

// FSTagLen is the fixed on-wire width of the filesystem tag field.
const FSTagLen = 16

// LabelLen is the fixed on-wire width of the filesystem label field.
const LabelLen = 28

// UUIDLen is the fixed on-wire width of the filesystem UUID field.
const UUIDLen = 37

// MaxPartitions is the largest partition count a Header can describe.
const MaxPartitions = 64

// Header is the fixed-size record written at offset 0 of every image
// stream.
type Header struct {
	ImageType    ImageType
	DiskLabel    DiskLabel
	PartCount    uint8
	TotalPayload uint64
}

// PartitionDesc describes one partition, either the sole entry of a
// PARTITION image or one of up to MaxPartitions entries of a DISK image.
type PartitionDesc struct {
	Type          PartType
	FSTag         string // e.g. "ext4", "ntfs", "fat32", "nofs", "swap"
	MinOccupied   uint64 // used blocks * block size, 0 for extended/nofs
	StartPos      float64 // fraction of disk length, in [0,1]
	UsedPart      float64 // fraction of disk length, in [0,1]
	Flags         Flag
	Label         string
	UUID          string
}

// Validate checks that StartPos and UsedPart fall within their required
// [0,1] bounds. Extended partitions are exempt from the start+used<=1 bound
// the same way they're exempt from carrying payload.
func (d PartitionDesc) Validate() error {
	if d.StartPos < 0 || d.StartPos > 1 {
		return fmt.Errorf("start_pos %v out of [0,1]", d.StartPos)
	}
	if d.UsedPart < 0 || d.UsedPart > 1 {
		return fmt.Errorf("used_part %v out of [0,1]", d.UsedPart)
	}
	if d.Type != Extended && d.StartPos+d.UsedPart > 1 {
		return fmt.Errorf("start_pos+used_part %v exceeds 1", d.StartPos+d.UsedPart)
	}
	if len(d.FSTag) > FSTagLen {
		return fmt.Errorf("fs tag %q longer than %d bytes", d.FSTag, FSTagLen)
	}
	if len(d.Label) > LabelLen {
		return fmt.Errorf("label %q longer than %d bytes", d.Label, LabelLen)
	}
	if len(d.UUID) > UUIDLen {
		return fmt.Errorf("uuid %q longer than %d bytes", d.UUID, UUIDLen)
	}
	return nil
}

// HasPayload reports whether this descriptor carries an archive in the
// payload region: extended partitions and the "nofs" tag never do.
func (d PartitionDesc) HasPayload() bool {
	return d.Type != Extended && d.FSTag != NoFS
}
