// Copyright (C) 2015-2020 the Gprovision Authors. All Rights Reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.
//
// SPDX-License-Identifier: BSD-3-Clause
//

package blockdev

import (
	"testing"

	"github.com/clonewave/imgclone/pkg/wire"
	"github.com/stretchr/testify/require"
)

// memDisk is a fixed-size in-memory block device for exercising the raw
// MBR/EBR codec without a real device node.
type memDisk struct {
	buf []byte
}

func newMemDisk(sectors int) *memDisk { return &memDisk{buf: make([]byte, sectors*mbrSectorSize)} }

func (m *memDisk) ReadAt(p []byte, off int64) (int, error) {
	n := copy(p, m.buf[off:])
	return n, nil
}

func (m *memDisk) WriteAt(p []byte, off int64) (int, error) {
	n := copy(m.buf[off:], p)
	return n, nil
}

func TestMBRRoundTripPrimaryOnly(t *testing.T) {
	disk := newMemDisk(4096)
	const sectorSize = 512
	entries := []Entry{
		{Index: 1, Type: wire.Primary, Offset: 1 * sectorSize, Size: 100 * sectorSize, Flags: wire.FlagBoot},
		{Index: 2, Type: wire.Primary, Offset: 101 * sectorSize, Size: 200 * sectorSize},
	}
	require.NoError(t, writeMBR(disk, sectorSize, entries))

	table, err := readMBR(disk, sectorSize)
	require.NoError(t, err)
	require.Equal(t, wire.LabelMBR, table.Label)
	require.Len(t, table.Entries, 2)
	require.Equal(t, entries[0].Offset, table.Entries[0].Offset)
	require.Equal(t, entries[0].Size, table.Entries[0].Size)
	require.Equal(t, wire.Primary, table.Entries[0].Type)
}

func TestMBRRoundTripWithLogicals(t *testing.T) {
	disk := newMemDisk(8192)
	const sectorSize = 512
	entries := []Entry{
		{Index: 1, Type: wire.Extended, Offset: 1 * sectorSize, Size: 4000 * sectorSize},
		{Index: 5, Type: wire.Logical, Offset: 3 * sectorSize, Size: 500 * sectorSize},
		{Index: 6, Type: wire.Logical, Offset: 505 * sectorSize, Size: 500 * sectorSize},
	}
	require.NoError(t, writeMBR(disk, sectorSize, entries))

	table, err := readMBR(disk, sectorSize)
	require.NoError(t, err)
	require.Equal(t, wire.LabelMBR, table.Label)

	var kinds []wire.PartType
	for _, e := range table.Entries {
		kinds = append(kinds, e.Type)
	}
	require.Contains(t, kinds, wire.Extended)
	require.Contains(t, kinds, wire.Logical)
}

func TestReadMBRRejectsMissingSignature(t *testing.T) {
	disk := newMemDisk(4)
	_, err := readMBR(disk, mbrSectorSize)
	require.Error(t, err)
}
