// Copyright (C) 2015-2020 the Gprovision Authors. All Rights Reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.
//
// SPDX-License-Identifier: BSD-3-Clause
//

// Package blockdev inspects and manipulates block devices: reading their
// partition table into the wire format, and writing a wire-format table
// back out onto a target disk.
package blockdev

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/siderolabs/go-blockdevice/v2/block"
	"golang.org/x/sys/unix"

	"github.com/clonewave/imgclone/pkg/imgerr"
	"github.com/clonewave/imgclone/pkg/materialize"
	"github.com/clonewave/imgclone/pkg/wire"
)

// Device wraps an open, locked block device.
type Device struct {
	path string
	dev  *block.Device
}

// Open locks devPath exclusively and returns a Device. Callers must call
// Close when finished; the lock is released on Close.
func Open(ctx context.Context, devPath string) (*Device, error) {
	dev, err := block.NewFromPath(devPath)
	if err != nil {
		return nil, imgerr.Wrap(imgerr.NoBlockDevice, "opening "+devPath, err)
	}
	if err := dev.RetryLockWithTimeout(ctx, true, 10*time.Second); err != nil {
		dev.Close() //nolint:errcheck
		return nil, imgerr.Wrap(imgerr.NoBlockDevice, "locking "+devPath, err)
	}
	return &Device{path: devPath, dev: dev}, nil
}

// Close releases the device lock and its file descriptor.
func (d *Device) Close() error {
	unlockErr := d.dev.Unlock()
	closeErr := d.dev.Close()
	if unlockErr != nil {
		return imgerr.Wrap(imgerr.NoBlockDevice, "unlocking "+d.path, unlockErr)
	}
	if closeErr != nil {
		return imgerr.Wrap(imgerr.NoBlockDevice, "closing "+d.path, closeErr)
	}
	return nil
}

// Size returns the device's total size in bytes.
func (d *Device) Size() uint64 {
	sz, _ := d.dev.GetSize()
	return sz
}

// SectorSize returns the device's logical sector size in bytes.
func (d *Device) SectorSize() uint { return d.dev.GetSectorSize() }

// Inspect reads the disk's partition table and produces the Header and
// PartitionDesc slice that describe it, ready for wire.EncodeHeader /
// wire.EncodePartitionDesc. Fraction fields are computed against the
// device's total size, per the on-wire contract that offsets are stored
// as fractions rather than absolute byte counts. Each mountable
// partition is mounted read-only through mzr just long enough to statvfs
// it, to fill in MinOccupied with actual used bytes rather than the
// partition's full allocated length.
func (d *Device) Inspect(ctx context.Context, mzr *materialize.Materializer) (wire.Header, []wire.PartitionDesc, error) {
	table, err := ReadTable(d)
	if err != nil {
		return wire.Header{}, nil, err
	}

	total := d.Size()
	if total == 0 {
		return wire.Header{}, nil, imgerr.New(imgerr.NoBlockDevice, "device reports zero size")
	}

	descs := make([]wire.PartitionDesc, 0, len(table.Entries))
	for _, e := range table.Entries {
		partPath := PartitionDevName(d.path, e.Index)
		tag, label, id := ProbeFilesystem(ctx, partPath)
		desc := wire.PartitionDesc{
			Type:     e.Type,
			FSTag:    tag,
			StartPos: float64(e.Offset) / float64(total),
			UsedPart: float64(e.Size) / float64(total),
			Flags:    e.Flags,
			Label:    label,
			UUID:     id,
		}
		if desc.FSTag == "" {
			desc.FSTag = wire.NoFS
		}
		if desc.HasPayload() {
			used, err := usedSpace(ctx, mzr, desc, partPath)
			if err != nil {
				return wire.Header{}, nil, err
			}
			desc.MinOccupied = used
		}
		descs = append(descs, desc)
	}

	h := wire.Header{
		ImageType:    wire.ImageDisk,
		DiskLabel:    table.Label,
		PartCount:    uint8(len(descs)),
		TotalPayload: 0, // filled in by the caller once payload sizes are known
	}
	return h, descs, nil
}

// usedSpace mounts partPath read-only via mzr and runs statvfs against the
// mount point, returning (f_blocks-f_bfree)*f_bsize: the bytes actually
// occupied by file data, as opposed to the partition's full allocated
// length.
func usedSpace(ctx context.Context, mzr *materialize.Materializer, desc wire.PartitionDesc, partPath string) (uint64, error) {
	mountpoint, err := mzr.MountReadOnly(ctx, desc, partPath)
	if err != nil {
		return 0, err
	}
	defer mzr.Unmount(mountpoint) //nolint:errcheck

	var stat unix.Statfs_t
	if err := unix.Statfs(mountpoint, &stat); err != nil {
		return 0, imgerr.Wrap(imgerr.ReadData, "statfs "+mountpoint, err)
	}
	return (stat.Blocks - stat.Bfree) * uint64(stat.Bsize), nil
}

// ValidateUUID reports whether s parses as a UUID; an empty string is
// accepted.
func ValidateUUID(s string) bool {
	if s == "" {
		return true
	}
	_, err := uuid.Parse(s)
	return err == nil
}
