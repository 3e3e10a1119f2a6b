// Copyright (C) 2015-2020 the Gprovision Authors. All Rights Reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.
//
// SPDX-License-Identifier: BSD-3-Clause
//

package blockdev

import (
	"encoding/binary"
	"io"

	"github.com/clonewave/imgclone/pkg/imgerr"
	"github.com/clonewave/imgclone/pkg/wire"
)

// MBR partition entries and logical volumes inside an extended partition
// are a legacy on-disk format that the block-device library used
// elsewhere in this package does not expose a writer for (it only ships a
// GPT builder) - see DESIGN.md for why this half of table.go is built
// directly on encoding/binary instead.

const (
	mbrSectorSize   = 512
	mbrPartTableOff = 446
	mbrPartEntryLen = 16
	mbrSignatureOff = 510
	extendedTypeID  = 0x05
	linuxTypeID     = 0x83
)

// readMBR reads the primary partition table and any nested extended/EBR
// chain from ra, in disk order.
func readMBR(ra io.ReaderAt, sectorSize uint64) (Table, error) {
	sector := make([]byte, mbrSectorSize)
	if _, err := ra.ReadAt(sector, 0); err != nil {
		return Table{}, imgerr.Wrap(imgerr.NoBlockDevice, "reading MBR sector", err)
	}
	if sector[mbrSignatureOff] != 0x55 || sector[mbrSignatureOff+1] != 0xAA {
		return Table{}, imgerr.New(imgerr.InvalidImage, "missing MBR boot signature")
	}

	var entries []Entry
	for i := 0; i < 4; i++ {
		off := mbrPartTableOff + i*mbrPartEntryLen
		raw := sector[off : off+mbrPartEntryLen]
		typ := raw[4]
		if typ == 0 {
			continue
		}
		startLBA := binary.LittleEndian.Uint32(raw[8:12])
		numSectors := binary.LittleEndian.Uint32(raw[12:16])
		e := Entry{
			Index:  uint(i + 1),
			Offset: uint64(startLBA) * sectorSize,
			Size:   uint64(numSectors) * sectorSize,
		}
		if raw[0] == 0x80 {
			e.Flags |= wire.FlagBoot
		}
		if typ == extendedTypeID || typ == 0x0F {
			e.Type = wire.Extended
			logicals, err := readEBRChain(ra, sectorSize, uint64(startLBA))
			if err != nil {
				return Table{}, err
			}
			entries = append(entries, e)
			entries = append(entries, logicals...)
			continue
		}
		e.Type = wire.Primary
		entries = append(entries, e)
	}
	return Table{Label: wire.LabelMBR, Entries: entries}, nil
}

func readEBRChain(ra io.ReaderAt, sectorSize, extendedStartLBA uint64) ([]Entry, error) {
	var out []Entry
	nextEBRLBA := extendedStartLBA
	for i := 0; i < wire.MaxPartitions; i++ { // hard ceiling against a corrupt/cyclic chain
		sector := make([]byte, mbrSectorSize)
		if _, err := ra.ReadAt(sector, int64(nextEBRLBA*sectorSize)); err != nil {
			return nil, imgerr.Wrap(imgerr.NoBlockDevice, "reading EBR sector", err)
		}
		if sector[mbrSignatureOff] != 0x55 || sector[mbrSignatureOff+1] != 0xAA {
			break
		}
		first := sector[mbrPartTableOff : mbrPartTableOff+mbrPartEntryLen]
		if first[4] == 0 {
			break
		}
		startLBA := binary.LittleEndian.Uint32(first[8:12])
		numSectors := binary.LittleEndian.Uint32(first[12:16])
		out = append(out, Entry{
			Index:  uint(len(out) + 5), // logical volumes are numbered from 5
			Type:   wire.Logical,
			Offset: (nextEBRLBA + uint64(startLBA)) * sectorSize,
			Size:   uint64(numSectors) * sectorSize,
		})

		second := sector[mbrPartTableOff+mbrPartEntryLen : mbrPartTableOff+2*mbrPartEntryLen]
		if second[4] == 0 {
			break
		}
		nextEBRLBA = extendedStartLBA + uint64(binary.LittleEndian.Uint32(second[8:12]))
	}
	return out, nil
}

// writeMBR lays out a fresh primary partition table (with at most one
// extended partition holding any Logical entries) at the start of w.
func writeMBR(w io.WriterAt, sectorSize uint64, entries []Entry) error {
	sector := make([]byte, mbrSectorSize)
	sector[mbrSignatureOff] = 0x55
	sector[mbrSignatureOff+1] = 0xAA

	primaries := 0
	for _, e := range entries {
		if e.Type == wire.Logical {
			continue // written into the EBR chain below, not the primary table
		}
		if primaries >= 4 {
			return imgerr.New(imgerr.InvalidImage, "more than 4 primary/extended MBR entries")
		}
		off := mbrPartTableOff + primaries*mbrPartEntryLen
		typ := byte(linuxTypeID)
		if e.Type == wire.Extended {
			typ = extendedTypeID
		}
		if e.Flags&wire.FlagBoot != 0 {
			sector[off] = 0x80
		}
		sector[off+4] = typ
		binary.LittleEndian.PutUint32(sector[off+8:off+12], uint32(e.Offset/sectorSize))
		binary.LittleEndian.PutUint32(sector[off+12:off+16], uint32(e.Size/sectorSize))
		primaries++
	}
	if _, err := w.WriteAt(sector, 0); err != nil {
		return imgerr.Wrap(imgerr.NoBlockDevice, "writing MBR sector", err)
	}

	var extendedStart uint64
	for _, e := range entries {
		if e.Type == wire.Extended {
			extendedStart = e.Offset / sectorSize
		}
	}
	var logicals []Entry
	for _, e := range entries {
		if e.Type == wire.Logical {
			logicals = append(logicals, e)
		}
	}
	if len(logicals) == 0 {
		return nil
	}
	if extendedStart == 0 {
		return imgerr.New(imgerr.InvalidImage, "logical partitions present without an extended partition")
	}
	return writeEBRChain(w, sectorSize, extendedStart, logicals)
}

func writeEBRChain(w io.WriterAt, sectorSize, extendedStartLBA uint64, logicals []Entry) error {
	cursor := extendedStartLBA
	for i, e := range logicals {
		sector := make([]byte, mbrSectorSize)
		sector[mbrSignatureOff] = 0x55
		sector[mbrSignatureOff+1] = 0xAA

		relStart := e.Offset/sectorSize - cursor
		binary.LittleEndian.PutUint32(sector[mbrPartTableOff+8:mbrPartTableOff+12], uint32(relStart))
		binary.LittleEndian.PutUint32(sector[mbrPartTableOff+12:mbrPartTableOff+16], uint32(e.Size/sectorSize))
		sector[mbrPartTableOff+4] = linuxTypeID

		if i+1 < len(logicals) {
			next := logicals[i+1]
			nextEBRLBA := next.Offset/sectorSize - 1
			off2 := mbrPartTableOff + mbrPartEntryLen
			binary.LittleEndian.PutUint32(sector[off2+8:off2+12], uint32(nextEBRLBA-extendedStartLBA))
			sector[off2+4] = extendedTypeID
		}
		if _, err := w.WriteAt(sector, int64(cursor*sectorSize)); err != nil {
			return imgerr.Wrap(imgerr.NoBlockDevice, "writing EBR sector", err)
		}
		if i+1 < len(logicals) {
			cursor = logicals[i+1].Offset/sectorSize - 1
		}
	}
	return nil
}
