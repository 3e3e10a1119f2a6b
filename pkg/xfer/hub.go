// Copyright (C) 2015-2020 the Gprovision Authors. All Rights Reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.
//
// SPDX-License-Identifier: BSD-3-Clause
//

// Package xfer implements the single process-wide data-transfer hub: one
// source, N tagged sinks, chunked fan-out with per-sink degrade-on-error
// semantics.
package xfer

import (
	"context"
	"io"
	"sync"
	"sync/atomic"

	"github.com/clonewave/imgclone/pkg/imgerr"
)

// ChunkSize is the size of the buffer TransferAllFrom reads into, so each
// chunk it pushes is at most ChunkSize bytes.
const ChunkSize = 64 * 1024

// Sink is one fan-out destination, tagged with a human-readable peer
// identifier for logging and progress reporting.
type Sink struct {
	Peer string
	W    io.Writer
}

// ProgressFunc is called after every chunk is pushed to the surviving
// sink set, with the cumulative transferred byte count.
type ProgressFunc func(transferred, total uint64)

// WarnFunc is called whenever a sink is detached after a write failure.
type WarnFunc func(peer string, err error)

// Hub is the process-wide transfer instance: one source, a mutable sink
// set, and an atomically-updated transferred-byte counter mirroring the
// progress-reporting cadence of gprovision's TVFile.Get, generalized from
// a single downloader into an N-sink fan-out pump.
type Hub struct {
	mu    sync.Mutex
	sinks []Sink

	source io.Reader

	total       uint64
	transferred uint64

	OnProgress ProgressFunc
	OnWarn     WarnFunc
}

// New creates a Hub with the given total expected byte count (0 if
// unknown, e.g. receive side before the header arrives).
func New(total uint64) *Hub {
	return &Hub{total: total}
}

// SetSource sets the byte source for TransferTo/TransferAllTo.
func (h *Hub) SetSource(r io.Reader) { h.source = r }

// SetTotal updates the expected byte count, once it becomes known (e.g.
// after decoding the header on the receive side).
func (h *Hub) SetTotal(total uint64) { atomic.StoreUint64(&h.total, total) }

// AddSink adds s to the sink set.
func (h *Hub) AddSink(s Sink) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.sinks = append(h.sinks, s)
}

// SinkCount reports how many sinks currently survive.
func (h *Hub) SinkCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.sinks)
}

// Transferred returns the cumulative byte count pushed to the sink set so
// far.
func (h *Hub) Transferred() uint64 { return atomic.LoadUint64(&h.transferred) }

// TransferFrom pushes buf to every surviving sink and to nothing else -
// used for the header and the size prelude, which must reach every sink
// identically before any payload chunk does.
func (h *Hub) TransferFrom(buf []byte) error {
	if err := h.fanOut(buf); err != nil {
		return err
	}
	atomic.AddUint64(&h.transferred, uint64(len(buf)))
	if h.OnProgress != nil {
		h.OnProgress(h.Transferred(), atomic.LoadUint64(&h.total))
	}
	return nil
}

// TransferTo pulls exactly n bytes from the source.
func (h *Hub) TransferTo(n int) ([]byte, error) {
	if h.source == nil {
		return nil, imgerr.New(imgerr.ReceiveData, "no source set")
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(h.source, buf); err != nil {
		return nil, imgerr.Wrap(imgerr.ReceiveData, "reading from source", err)
	}
	return buf, nil
}

// TransferAllFrom reads r in chunks of up to ChunkSize bytes until EOF,
// pushing each chunk to every surviving sink and updating progress after
// each one. It returns once r is exhausted, the sink set empties, or ctx
// is canceled - the cancellation check runs at every chunk boundary, so a
// single large stream can be interrupted mid-transfer rather than only
// between whole partitions.
func (h *Hub) TransferAllFrom(ctx context.Context, r io.Reader) error {
	buf := make([]byte, ChunkSize)
	for {
		if err := checkCancel(ctx); err != nil {
			return err
		}
		n, err := r.Read(buf)
		if n > 0 {
			if ferr := h.fanOut(buf[:n]); ferr != nil {
				return ferr
			}
			atomic.AddUint64(&h.transferred, uint64(n))
			if h.OnProgress != nil {
				h.OnProgress(h.Transferred(), atomic.LoadUint64(&h.total))
			}
		}
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return imgerr.Wrap(imgerr.ReadData, "reading source stream", err)
		}
	}
}

// TransferAllTo reads from the source in ChunkSize chunks and writes each
// to w until Transferred reaches the configured total, checking ctx for
// cancellation at each chunk boundary the same way TransferAllFrom does.
func (h *Hub) TransferAllTo(ctx context.Context, w io.Writer) error {
	total := atomic.LoadUint64(&h.total)
	for h.Transferred() < total {
		if err := checkCancel(ctx); err != nil {
			return err
		}
		remaining := total - h.Transferred()
		n := ChunkSize
		if remaining < uint64(n) {
			n = int(remaining)
		}
		buf, err := h.TransferTo(n)
		if err != nil {
			return err
		}
		if _, err := w.Write(buf); err != nil {
			return imgerr.Wrap(imgerr.WriteData, "writing destination stream", err)
		}
		atomic.AddUint64(&h.transferred, uint64(len(buf)))
		if h.OnProgress != nil {
			h.OnProgress(h.Transferred(), total)
		}
	}
	return nil
}

// checkCancel is the chunk-boundary cancellation point: a canceled
// context surfaces as an imgerr.Cancel rather than the raw context error,
// so callers up the stack can match it with imgerr.IsCancel.
func checkCancel(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return imgerr.Wrap(imgerr.Cancel, "transfer canceled", ctx.Err())
	default:
		return nil
	}
}

// fanOut writes buf to every surviving sink. A sink whose write fails is
// detached and reported via OnWarn as a Warning-kind condition; the
// transfer only fails outright once the sink set empties.
func (h *Hub) fanOut(buf []byte) error {
	h.mu.Lock()
	sinks := h.sinks
	h.mu.Unlock()

	if len(sinks) == 0 {
		return imgerr.New(imgerr.Warning, "no sinks in the set")
	}

	survivors := sinks[:0]
	var failures []error
	for _, s := range sinks {
		if _, err := s.W.Write(buf); err != nil {
			warn := imgerr.Wrap(imgerr.Warning, "sink "+s.Peer+" failed, detaching", err)
			failures = append(failures, warn)
			if h.OnWarn != nil {
				h.OnWarn(s.Peer, warn)
			}
			continue
		}
		survivors = append(survivors, s)
	}

	h.mu.Lock()
	h.sinks = survivors
	h.mu.Unlock()

	if len(survivors) == 0 {
		if len(failures) > 0 {
			return imgerr.Wrap(imgerr.Connection, "all sinks detached", failures[len(failures)-1])
		}
		return imgerr.New(imgerr.Connection, "all sinks detached")
	}
	return nil
}
