// Copyright (C) 2015-2020 the Gprovision Authors. All Rights Reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.
//
// SPDX-License-Identifier: BSD-3-Clause
//

// Package orchestrator binds the (role, mode, target) triple to a
// concrete run: it wires the right source and sink into the transfer
// hub, drives the send or receive pipeline, publishes coarse progress,
// and guarantees every socket and mount opened along the way is released
// on any failure.
package orchestrator

import (
	"context"
	"time"

	"github.com/clonewave/imgclone/pkg/history"
	"github.com/clonewave/imgclone/pkg/imgerr"
	"github.com/clonewave/imgclone/pkg/link"
	"github.com/clonewave/imgclone/pkg/log"
	"github.com/clonewave/imgclone/pkg/progress"
)

// Role is which direction of a run this node performs.
type Role string

const (
	RoleSend    Role = "send"
	RoleReceive Role = "receive"
)

// Mode is how bytes move between this node and the rest of the run.
type Mode string

const (
	ModeLocal     Mode = "local"
	ModeUnicast   Mode = "unicast"
	ModeMulticast Mode = "multicast"
	ModeLink      Mode = "link"
)

// TargetKind is which local resource this node's local endpoint is.
type TargetKind string

const (
	TargetImage  TargetKind = "image"
	TargetDevice TargetKind = "device"
)

// Config is everything one orchestrator Run needs: the (role, mode,
// target) triple plus the concrete paths and network endpoints those
// three don't by themselves carry.
type Config struct {
	Role   Role
	Mode   Mode
	Target TargetKind

	// Path is the local resource named by Target: a block device path
	// or an image file path.
	Path string
	// LocalPeer is only meaningful when Mode is ModeLocal: the path at
	// the other end of a local copy (an image file if Target is
	// TargetDevice, or a device path if Target is TargetImage).
	LocalPeer string

	// Addr is the unicast bind address (send) or dial address
	// (receive).
	Addr           string
	NumReceivers   int
	AcceptDeadline time.Duration

	// Iface is the interface multicast/link discovery joins its group
	// on; empty means "any."
	Iface string

	ScratchDir string

	// HistoryDir, if non-empty, is where a clone_history.json record of
	// this and past runs against Path is kept. Empty disables history
	// tracking entirely.
	HistoryDir string

	Progress *progress.Sink
}

// Orchestrator runs one (role, mode, target) job to completion.
type Orchestrator struct {
	cfg      Config
	shutdown *shutdownHandler
}

// New returns an Orchestrator for cfg.
func New(cfg Config) *Orchestrator {
	return &Orchestrator{cfg: cfg, shutdown: newShutdownHandler()}
}

// Run executes the configured job. On any non-Warning failure it runs
// the registered shutdown handler (closing connections, unmounting
// scratch mounts) before returning the error, per the propagation policy
// every component in this tree follows.
func (o *Orchestrator) Run(ctx context.Context) (err error) {
	queue := buildQueue(o.cfg.Role, o.cfg.Mode)
	if o.cfg.Progress != nil {
		o.cfg.Progress.PublishQueue(queue)
	}

	var hist *history.Store
	if o.cfg.HistoryDir != "" {
		hist, err = history.Open(o.cfg.HistoryDir)
		if err != nil {
			return err
		}
		if err = hist.Load(); err != nil {
			return err
		}
		if !hist.Check(o.cfg.Path) {
			return imgerr.Newf(imgerr.InvalidImage, "%s has failed too many times, refusing to run again", o.cfg.Path)
		}
	}

	// Every socket, mount and scratch file opened along the way is
	// registered with o.shutdown as it's created, so a single unwind at
	// the end of Run releases them regardless of how the run finished.
	defer func() {
		if err != nil && !imgerr.IsWarning(err) {
			log.Logf("orchestrator: run failed: %v", err)
		}
		o.shutdown.run()
		if hist != nil {
			dir := history.DirectionSend
			if o.cfg.Role == RoleReceive {
				dir = history.DirectionReceive
			}
			note := ""
			if err != nil {
				note = err.Error()
			}
			if rerr := hist.Record(o.cfg.Path, dir, err == nil, time.Now(), note); rerr != nil {
				log.Logf("orchestrator: recording history: %v", rerr)
			}
		}
	}()

	switch o.cfg.Role {
	case RoleSend:
		return o.runSend(ctx)
	case RoleReceive:
		return o.runReceive(ctx)
	default:
		return imgerr.Newf(imgerr.InvalidImage, "unknown role %q", o.cfg.Role)
	}
}

func (o *Orchestrator) opStart(op progress.Op) {
	if o.cfg.Progress != nil {
		o.cfg.Progress.Start(op)
	}
}

func (o *Orchestrator) opDone(op progress.Op) {
	if o.cfg.Progress != nil {
		o.cfg.Progress.Complete(op)
	}
}

// checkCancel is the cooperative cancellation point run between
// partitions (xfer.Hub makes its own check between chunks): a canceled
// context surfaces as an
// imgerr.Cancel rather than the raw context error, so callers up the
// stack can match it with imgerr.IsCancel.
func checkCancel(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return imgerr.Wrap(imgerr.Cancel, "operation canceled", ctx.Err())
	default:
		return nil
	}
}

// newLinkNode builds the link.Node for Mode==ModeLink runs and assembles
// the chain, registering its teardown with the shutdown handler.
func (o *Orchestrator) newLinkNode(isHead bool) (*link.Node, error) {
	n := &link.Node{IsHead: isHead, Iface: o.cfg.Iface}
	if err := n.Assemble(); err != nil {
		return nil, err
	}
	o.shutdown.add(func() { n.TearDown() }) //nolint:errcheck
	return n, nil
}
