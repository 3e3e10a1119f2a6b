// Copyright (C) 2015-2020 the Gprovision Authors. All Rights Reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.
//
// SPDX-License-Identifier: BSD-3-Clause
//

package orchestrator

import (
	"context"
	"io"
	"os"

	"github.com/clonewave/imgclone/pkg/imgerr"
	"github.com/clonewave/imgclone/pkg/materialize"
	"github.com/clonewave/imgclone/pkg/progress"
	"github.com/clonewave/imgclone/pkg/transport"
	"github.com/clonewave/imgclone/pkg/xfer"
)

func (o *Orchestrator) runSend(ctx context.Context) error {
	mzr, err := materialize.New(o.cfg.ScratchDir)
	if err != nil {
		return err
	}
	o.shutdown.add(func() { mzr.UnmountAll() }) //nolint:errcheck

	var src io.Reader
	var total uint64

	switch o.cfg.Target {
	case TargetDevice:
		o.opStart(progress.OpReadPartitionTable)
		r, n, err := o.buildDeviceImageReader(ctx, mzr, o.cfg.Path)
		if err != nil {
			return err
		}
		src, total = r, n
		o.opDone(progress.OpReadPartitionTable)
	case TargetImage:
		f, err := os.Open(o.cfg.Path)
		if err != nil {
			return imgerr.Wrap(imgerr.FileNotFound, "opening "+o.cfg.Path, err)
		}
		o.shutdown.add(func() { f.Close() })
		st, err := f.Stat()
		if err != nil {
			return imgerr.Wrap(imgerr.FileNotFound, "statting "+o.cfg.Path, err)
		}
		src, total = f, uint64(st.Size())
	default:
		return imgerr.Newf(imgerr.InvalidImage, "unknown target %q", o.cfg.Target)
	}

	hub := xfer.New(total)
	if o.cfg.Progress != nil {
		hub.OnProgress = o.cfg.Progress.SetProgress
		hub.OnWarn = func(peer string, err error) {
			o.cfg.Progress.NewConnection("dropped:" + peer)
		}
	}

	switch o.cfg.Mode {
	case ModeLocal:
		f, err := os.Create(o.cfg.LocalPeer)
		if err != nil {
			return imgerr.Wrap(imgerr.WriteData, "creating "+o.cfg.LocalPeer, err)
		}
		o.shutdown.add(func() { f.Close() })
		hub.AddSink(xfer.Sink{Peer: o.cfg.LocalPeer, W: f})

	case ModeUnicast:
		if o.cfg.NumReceivers == 0 {
			return imgerr.New(imgerr.Connection, "unicast send requires at least one receiver")
		}
		o.opStart(progress.OpWaitClients)
		conns, err := transport.UnicastSend(ctx, o.cfg.Addr, o.cfg.NumReceivers, o.cfg.AcceptDeadline, hub)
		if err != nil {
			return err
		}
		for _, c := range conns {
			c := c
			o.shutdown.add(func() { c.Close() })
			if o.cfg.Progress != nil {
				o.cfg.Progress.NewConnection(c.RemoteAddr().String())
			}
		}
		o.opDone(progress.OpWaitClients)

	case ModeMulticast:
		w, err := openMulticastSink()
		if err != nil {
			return err
		}
		hub.AddSink(xfer.Sink{Peer: "multicast", W: w})

	case ModeLink:
		node, err := o.newLinkNode(true)
		if err != nil {
			return err
		}
		node.WireHub(hub)

	default:
		return imgerr.Newf(imgerr.InvalidImage, "unknown mode %q", o.cfg.Mode)
	}

	o.opStart(progress.OpTransferData)
	if err := hub.TransferAllFrom(ctx, src); err != nil {
		return err
	}
	o.opDone(progress.OpTransferData)
	return nil
}

func (o *Orchestrator) runReceive(ctx context.Context) error {
	mzr, err := materialize.New(o.cfg.ScratchDir)
	if err != nil {
		return err
	}
	o.shutdown.add(func() { mzr.UnmountAll() }) //nolint:errcheck

	var src io.Reader
	hub := xfer.New(0)
	if o.cfg.Progress != nil {
		hub.OnProgress = o.cfg.Progress.SetProgress
	}

	switch o.cfg.Mode {
	case ModeLocal:
		f, err := os.Open(o.cfg.LocalPeer)
		if err != nil {
			return imgerr.Wrap(imgerr.FileNotFound, "opening "+o.cfg.LocalPeer, err)
		}
		o.shutdown.add(func() { f.Close() })
		src = f

	case ModeUnicast:
		o.opStart(progress.OpWaitServer)
		conn, err := transport.UnicastReceive(ctx, o.cfg.Addr, hub)
		if err != nil {
			return err
		}
		o.shutdown.add(func() { conn.Close() })
		src = conn
		o.opDone(progress.OpWaitServer)

	case ModeMulticast:
		r, err := openMulticastSource(o.cfg.Iface)
		if err != nil {
			return err
		}
		src = r
		hub.SetSource(r)

	case ModeLink:
		node, err := o.newLinkNode(false)
		if err != nil {
			return err
		}
		src = node.PredecessorConn()
		if node.SuccessorConn() != nil {
			src = io.TeeReader(src, node.SuccessorConn())
		}

	default:
		return imgerr.Newf(imgerr.InvalidImage, "unknown mode %q", o.cfg.Mode)
	}

	o.opStart(progress.OpTransferData)
	var xferErr error
	switch o.cfg.Target {
	case TargetDevice:
		xferErr = o.restoreDeviceFromStream(ctx, src, o.cfg.Path, mzr)
	case TargetImage:
		xferErr = o.receiveToImage(src, o.cfg.Path, hub)
	default:
		xferErr = imgerr.Newf(imgerr.InvalidImage, "unknown target %q", o.cfg.Target)
	}
	if xferErr != nil {
		return xferErr
	}
	o.opDone(progress.OpTransferData)
	return nil
}
