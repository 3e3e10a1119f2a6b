// Copyright (C) 2015-2020 the Gprovision Authors. All Rights Reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.
//
// SPDX-License-Identifier: BSD-3-Clause
//

package orchestrator

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"os/exec"

	"github.com/clonewave/imgclone/pkg/blockdev"
	"github.com/clonewave/imgclone/pkg/fsdriver"
	"github.com/clonewave/imgclone/pkg/imgerr"
	"github.com/clonewave/imgclone/pkg/link"
	"github.com/clonewave/imgclone/pkg/log"
	"github.com/clonewave/imgclone/pkg/materialize"
	"github.com/clonewave/imgclone/pkg/progress"
	"github.com/clonewave/imgclone/pkg/transport"
	"github.com/clonewave/imgclone/pkg/wire"
	"github.com/clonewave/imgclone/pkg/xfer"
)

// buildDeviceImageReader inspects devicePath, archives every mountable
// partition to a scratch file, and returns a single io.Reader that
// yields the exact byte sequence wire.WriteMeta plus one
// wire.WritePayloadFrame per non-empty descriptor would produce, without
// holding any partition's archive in memory at once.
func (o *Orchestrator) buildDeviceImageReader(ctx context.Context, mzr *materialize.Materializer, devicePath string) (io.Reader, uint64, error) {
	dev, err := blockdev.Open(ctx, devicePath)
	if err != nil {
		return nil, 0, err
	}
	o.shutdown.add(func() { dev.Close() }) //nolint:errcheck

	header, descs, err := dev.Inspect(ctx, mzr)
	if err != nil {
		return nil, 0, err
	}

	readers := make([]io.Reader, 0, len(descs)*2+1)
	var totalPayload uint64

	for i, desc := range descs {
		if err := checkCancel(ctx); err != nil {
			return nil, 0, err
		}
		if !desc.HasPayload() {
			continue
		}
		partPath := blockdev.PartitionDevName(devicePath, uint(i+1))
		mountpoint, err := mzr.Mount(ctx, desc, partPath)
		if err != nil {
			return nil, 0, err
		}

		tmp, err := os.CreateTemp(o.cfg.ScratchDir, fmt.Sprintf("archive-%d-", i))
		if err != nil {
			mzr.Unmount(mountpoint) //nolint:errcheck
			return nil, 0, imgerr.Wrap(imgerr.CreateImage, "creating scratch archive file", err)
		}
		o.shutdown.add(func() { os.Remove(tmp.Name()) })

		archiveErr := wire.ArchiveWriter(tmp, mountpoint)
		if err := mzr.Unmount(mountpoint); err != nil && archiveErr == nil {
			archiveErr = err
		}
		if archiveErr != nil {
			tmp.Close()
			return nil, 0, archiveErr
		}

		size, err := tmp.Seek(0, io.SeekCurrent)
		if err != nil {
			tmp.Close()
			return nil, 0, imgerr.Wrap(imgerr.CreateImage, "sizing scratch archive file", err)
		}
		if _, err := tmp.Seek(0, io.SeekStart); err != nil {
			tmp.Close()
			return nil, 0, imgerr.Wrap(imgerr.CreateImage, "rewinding scratch archive file", err)
		}
		o.shutdown.add(func() { tmp.Close() })

		readers = append(readers, framePrefix(uint64(size)), tmp)
		totalPayload += 8 + uint64(size)
	}

	header.TotalPayload = totalPayload
	img := wire.Image{Header: header, Descriptors: descs}
	var meta bytes.Buffer
	if err := wire.WriteMeta(&meta, img); err != nil {
		return nil, 0, err
	}

	full := append([]io.Reader{&meta}, readers...)
	return io.MultiReader(full...), totalPayload, nil
}

// framePrefix renders the 8-byte big-endian length wire.WritePayloadFrame
// would write ahead of an archive, without requiring the archive itself
// to be in memory as a single []byte the way wire.WritePayloadFrame does.
func framePrefix(size uint64) io.Reader {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], size)
	return bytes.NewReader(b[:])
}

// restoreDeviceFromStream decodes an image stream from src and lays it
// down onto devicePath: partition table, then per-partition filesystem
// format and archive extraction.
func (o *Orchestrator) restoreDeviceFromStream(ctx context.Context, src io.Reader, devicePath string, mzr *materialize.Materializer) error {
	img, err := wire.ReadMeta(src)
	if err != nil {
		return err
	}

	dev, err := blockdev.Open(ctx, devicePath)
	if err != nil {
		return err
	}
	o.shutdown.add(func() { dev.Close() }) //nolint:errcheck

	o.opStart(progress.OpWritePartitionTable)
	if err := blockdev.WriteTable(dev, img.Header.DiskLabel, img.Descriptors); err != nil {
		return err
	}
	o.opDone(progress.OpWritePartitionTable)

	o.opStart(progress.OpWritePartitionFlags)
	var transferred uint64
	for i, desc := range img.Descriptors {
		if err := checkCancel(ctx); err != nil {
			return err
		}
		if !desc.HasPayload() {
			continue
		}
		size, err := wire.ReadPayloadFrameSize(src)
		if err != nil {
			return err
		}

		partPath := blockdev.PartitionDevName(devicePath, uint(i+1))
		driver := fsdriver.Lookup(desc.FSTag)
		if err := formatPartition(ctx, driver, partPath, desc.Label); err != nil {
			return err
		}

		mountpoint, err := mzr.Mount(ctx, desc, partPath)
		if err != nil {
			return err
		}
		limited := io.LimitReader(src, int64(size))
		archiveErr := wire.ArchiveReader(limited, mountpoint)
		if err := mzr.Unmount(mountpoint); err != nil && archiveErr == nil {
			archiveErr = err
		}
		if archiveErr != nil {
			return archiveErr
		}

		if desc.UUID != "" && driver.SupportsUUID() {
			if err := driver.WriteUUID(ctx, partPath, desc.UUID); err != nil {
				log.Logf("orchestrator: restoring UUID on %s: %v", partPath, err)
			}
		}
		if desc.Label != "" && driver.SupportsLabel() {
			if err := driver.WriteLabel(ctx, partPath, desc.Label); err != nil {
				log.Logf("orchestrator: restoring label on %s: %v", partPath, err)
			}
		}

		transferred += 8 + size
		if o.cfg.Progress != nil {
			o.cfg.Progress.SetProgress(transferred, img.Header.TotalPayload)
		}
	}
	o.opDone(progress.OpWritePartitionFlags)
	return nil
}

// formatPartition creates a fresh filesystem on partPath via the
// driver's own format command, a no-op for drivers with no format
// concept (nofs).
func formatPartition(ctx context.Context, driver fsdriver.Driver, partPath, label string) error {
	argv := driver.FormatCommand(partPath, label)
	if len(argv) == 0 {
		return nil
	}
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	if out, err := cmd.CombinedOutput(); err != nil {
		return imgerr.Wrap(imgerr.Format, fmt.Sprintf("formatting %s: %s", partPath, out), err)
	}
	return nil
}

// receiveToImage decodes just enough of src to know the payload length,
// re-encodes the same meta block byte-for-byte, and copies the payload
// straight through to a fresh file at destPath.
func (o *Orchestrator) receiveToImage(src io.Reader, destPath string, hub *xfer.Hub) error {
	img, err := wire.ReadMeta(src)
	if err != nil {
		return err
	}
	f, err := os.Create(destPath)
	if err != nil {
		return imgerr.Wrap(imgerr.WriteData, "creating "+destPath, err)
	}
	o.shutdown.add(func() { f.Close() })

	if err := wire.WriteMeta(f, img); err != nil {
		return err
	}
	hub.SetTotal(img.Header.TotalPayload)
	if _, err := io.CopyN(f, src, int64(img.Header.TotalPayload)); err != nil {
		return imgerr.Wrap(imgerr.ReadData, "copying payload to "+destPath, err)
	}
	if o.cfg.Progress != nil {
		o.cfg.Progress.SetProgress(img.Header.TotalPayload, img.Header.TotalPayload)
		// A file target has no partition table of its own to write; mark
		// those two queue entries done so a UI watching the queue doesn't
		// see them stuck at "queued" forever.
		o.cfg.Progress.Complete(progress.OpWritePartitionTable)
		o.cfg.Progress.Complete(progress.OpWritePartitionFlags)
	}
	return f.Close()
}

// multicastGroup and multicastDataPort are shared with the link
// protocol's fixed literals: one multicast group serves both plain
// multicast mode and chain discovery, distinguished by the UDP port and
// by link mode's additional TCP relay.
const (
	multicastDataPort = link.PortData
	multicastGroup    = link.MulticastGroup
)

func openMulticastSink() (io.Writer, error) {
	return transport.MulticastSendWriter(multicastGroup, multicastDataPort)
}

func openMulticastSource(iface string) (io.Reader, error) {
	return transport.MulticastReceiveReader(iface, multicastGroup, multicastDataPort)
}
