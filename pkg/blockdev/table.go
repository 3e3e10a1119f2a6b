// Copyright (C) 2015-2020 the Gprovision Authors. All Rights Reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.
//
// SPDX-License-Identifier: BSD-3-Clause
//

package blockdev

import (
	"fmt"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/siderolabs/go-blockdevice/v2/blkid"
	"github.com/siderolabs/go-blockdevice/v2/partitioning"
	"github.com/siderolabs/go-blockdevice/v2/partitioning/gpt"

	"github.com/clonewave/imgclone/pkg/imgerr"
	"github.com/clonewave/imgclone/pkg/wire"
)

// GPT partition-type GUIDs this package recognizes on both the write and
// read side. blkid's probe surface reports a partition's type GUID but not
// its GPT attribute bits, so a role flag that has a well-known GPT type
// (boot/ESP, swap, RAID, LVM) round-trips through the type GUID rather
// than through an attribute bit; linuxDataGUID is the fallback for a
// partition with none of those roles.
const (
	linuxDataGUID = "0FC63DAF-8483-4772-8E79-3D69D8477DE4"
	espGUID       = "C12A7328-F81F-11D2-BA4B-00A0C93EC93B"
	linuxSwapGUID = "0657FD6D-A4AB-43C4-84E5-0933C84B4F4F"
	linuxRAIDGUID = "A19D880F-08B6-4A67-A133-6F98D91916A5"
	linuxLVMGUID  = "E6D6D379-F507-44C2-A23C-238F2A3DF928"
)

// gptTypeFor picks the type GUID that carries desc.Flags' role forward
// onto a freshly written GPT entry.
func gptTypeFor(desc wire.PartitionDesc) uuid.UUID {
	switch {
	case desc.Flags&wire.FlagBoot != 0:
		return uuid.MustParse(espGUID)
	case desc.Flags&wire.FlagSwap != 0:
		return uuid.MustParse(linuxSwapGUID)
	case desc.Flags&wire.FlagRAID != 0:
		return uuid.MustParse(linuxRAIDGUID)
	case desc.Flags&wire.FlagLVM != 0:
		return uuid.MustParse(linuxLVMGUID)
	default:
		return uuid.MustParse(linuxDataGUID)
	}
}

// gptFlagsFor is gptTypeFor's inverse, used when reading a GPT table back:
// a probed partition's type GUID is the only place one of these roles
// survives, so a recognized GUID sets the matching flag.
func gptFlagsFor(typeUUID *uuid.UUID) wire.Flag {
	if typeUUID == nil {
		return 0
	}
	switch strings.ToLower(typeUUID.String()) {
	case strings.ToLower(espGUID):
		return wire.FlagBoot
	case strings.ToLower(linuxSwapGUID):
		return wire.FlagSwap
	case strings.ToLower(linuxRAIDGUID):
		return wire.FlagRAID
	case strings.ToLower(linuxLVMGUID):
		return wire.FlagLVM
	default:
		return 0
	}
}

// Entry is one row of an on-disk partition table, in the units the
// underlying library reports them in - absolute bytes, not fractions.
type Entry struct {
	Index  uint
	Type   wire.PartType
	Offset uint64
	Size   uint64
	Flags  wire.Flag
}

// Table is a disk's partition table, label kind plus entries in on-disk
// order.
type Table struct {
	Label   wire.DiskLabel
	Entries []Entry
}

// ReadTable reads d's on-disk partition table by probing the whole disk
// rather than parsing GPT/MBR bytes directly - blkid.ProbePath already
// handles the protective-MBR/backup-GPT-header edge cases that a
// hand-rolled reader would just get wrong once. Disks blkid does not
// recognize as GPT fall back to the raw MBR/EBR-chain reader in mbr.go.
func ReadTable(d *Device) (Table, error) {
	info, err := blkid.ProbePath(d.path, blkid.WithSkipLocking(true))
	if err == nil && len(info.Parts) > 0 {
		entries := make([]Entry, 0, len(info.Parts))
		for _, p := range info.Parts {
			entries = append(entries, Entry{
				Index:  p.PartitionIndex,
				Type:   wire.Primary,
				Offset: p.PartitionOffset,
				Size:   p.PartitionSize,
				Flags:  gptFlagsFor(p.PartitionType),
			})
		}
		return Table{Label: wire.LabelGPT, Entries: entries}, nil
	}

	f, ferr := os.Open(d.path)
	if ferr != nil {
		return Table{}, imgerr.Wrap(imgerr.NoBlockDevice, "opening "+d.path+" for MBR fallback", ferr)
	}
	defer f.Close()
	t, merr := readMBR(f, uint64(d.SectorSize()))
	if merr != nil {
		return Table{Label: wire.LabelNone}, nil
	}
	return t, nil
}

// WriteTable lays out a fresh partition table on d, sized from the
// fractional descriptors in descs.
func WriteTable(d *Device, label wire.DiskLabel, descs []wire.PartitionDesc) error {
	total := d.Size()
	switch label {
	case wire.LabelGPT:
		return writeGPTTable(d, total, descs)
	case wire.LabelMBR:
		return writeMBRTable(d, total, descs)
	default:
		return imgerr.Newf(imgerr.InvalidImage, "disk label kind %s not supported for writing", label)
	}
}

func writeGPTTable(d *Device, total uint64, descs []wire.PartitionDesc) error {
	gptdev, err := gpt.DeviceFromBlockDevice(d.dev)
	if err != nil {
		return imgerr.Wrap(imgerr.NoBlockDevice, "wrapping "+d.path+" as a GPT device", err)
	}
	pt, err := gpt.New(gptdev)
	if err != nil {
		return imgerr.Wrap(imgerr.NoBlockDevice, "initializing GPT on "+d.path, err)
	}

	for i, desc := range descs {
		if err := desc.Validate(); err != nil {
			return imgerr.Wrap(imgerr.InvalidImage, fmt.Sprintf("descriptor %d", i), err)
		}
		if desc.Type == wire.Extended {
			continue // extended/logical layout has no GPT equivalent; MBR-only concept
		}
		size := uint64(desc.UsedPart * float64(total))
		label := desc.Label
		if label == "" {
			label = fmt.Sprintf("part%d", i+1)
		}
		var opts []gpt.PartitionOption
		if desc.Flags&wire.FlagBoot != 0 {
			opts = append(opts, gpt.WithLegacyBIOSBootableAttribute(true))
		}
		if _, _, err := pt.AllocatePartition(size, label, gptTypeFor(desc), opts...); err != nil {
			return imgerr.Wrap(imgerr.NoBlockDevice, fmt.Sprintf("allocating partition %d on %s", i, d.path), err)
		}
	}
	if err := pt.Write(); err != nil {
		return imgerr.Wrap(imgerr.NoBlockDevice, "writing GPT to "+d.path, err)
	}
	return nil
}

func writeMBRTable(d *Device, total uint64, descs []wire.PartitionDesc) error {
	sectorSize := uint64(d.SectorSize())
	entries := make([]Entry, 0, len(descs))
	for i, desc := range descs {
		if err := desc.Validate(); err != nil {
			return imgerr.Wrap(imgerr.InvalidImage, fmt.Sprintf("descriptor %d", i), err)
		}
		entries = append(entries, Entry{
			Index:  uint(i + 1),
			Type:   desc.Type,
			Offset: uint64(desc.StartPos * float64(total)),
			Size:   uint64(desc.UsedPart * float64(total)),
			Flags:  desc.Flags,
		})
	}
	f, err := os.OpenFile(d.path, os.O_WRONLY, 0)
	if err != nil {
		return imgerr.Wrap(imgerr.NoBlockDevice, "opening "+d.path+" for MBR write", err)
	}
	defer f.Close()
	return writeMBR(f, sectorSize, entries)
}

// PartitionDevName returns the device node for the n'th partition of
// diskPath (e.g. "/dev/sda" + 1 -> "/dev/sda1", "/dev/nvme0n1" + 1 ->
// "/dev/nvme0n1p1"), delegating the naming-scheme quirk to the same
// library used for probing.
func PartitionDevName(diskPath string, n uint) string {
	return partitioning.DevName(diskPath, n)
}
