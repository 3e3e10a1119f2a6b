// Copyright (C) 2015-2020 the Gprovision Authors. All Rights Reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.
//
// SPDX-License-Identifier: BSD-3-Clause
//

package xfer

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/clonewave/imgclone/pkg/imgerr"
)

type failingWriter struct{ n int }

func (f *failingWriter) Write(p []byte) (int, error) {
	if f.n <= 0 {
		return 0, errors.New("boom")
	}
	f.n -= len(p)
	return len(p), nil
}

func TestTransferAllFromPrefixIdenticalAcrossSinks(t *testing.T) {
	h := New(0)
	var a, b bytes.Buffer
	h.AddSink(Sink{Peer: "a", W: &a})
	h.AddSink(Sink{Peer: "b", W: &b})

	payload := bytes.Repeat([]byte("x"), ChunkSize*3+17)
	require.NoError(t, h.TransferAllFrom(context.Background(), bytes.NewReader(payload)))

	require.Equal(t, payload, a.Bytes())
	require.Equal(t, payload, b.Bytes())
	require.Equal(t, uint64(len(payload)), h.Transferred())
}

func TestFanOutDetachesFailingSink(t *testing.T) {
	h := New(0)
	var good bytes.Buffer
	bad := &failingWriter{n: 0}

	var warned string
	h.OnWarn = func(peer string, err error) { warned = peer }

	h.AddSink(Sink{Peer: "good", W: &good})
	h.AddSink(Sink{Peer: "bad", W: bad})

	require.NoError(t, h.TransferFrom([]byte("hello")))
	require.Equal(t, "bad", warned)
	require.Equal(t, 1, h.SinkCount())
	require.Equal(t, "hello", good.String())
}

func TestFanOutFailsWhenAllSinksDetach(t *testing.T) {
	h := New(0)
	h.AddSink(Sink{Peer: "only", W: &failingWriter{n: 0}})

	err := h.TransferFrom([]byte("x"))
	require.Error(t, err)
	k, ok := imgerr.KindOf(err)
	require.True(t, ok)
	require.Equal(t, imgerr.Connection, k)
}

func TestTransferFromZeroSinksIsWarning(t *testing.T) {
	h := New(0)
	err := h.TransferFrom([]byte("x"))
	require.Error(t, err)
	require.True(t, imgerr.IsWarning(err))
}

func TestTransferToAndTransferAllTo(t *testing.T) {
	payload := bytes.Repeat([]byte("y"), ChunkSize+5)
	h := New(uint64(len(payload)))
	h.SetSource(bytes.NewReader(payload))

	first, err := h.TransferTo(10)
	require.NoError(t, err)
	require.Equal(t, payload[:10], first)

	// TransferAllTo continues from wherever the source reader currently
	// is; Transferred must be seeded to match for the loop bound to work.
	h2 := New(uint64(len(payload)))
	h2.SetSource(bytes.NewReader(payload))
	var out bytes.Buffer
	require.NoError(t, h2.TransferAllTo(context.Background(), &out))
	require.Equal(t, payload, out.Bytes())
}

// countingReader cancels ctx once at least quarter bytes have been read,
// modeling "cancel flag set after 25% of transfer_all_from."
type countingReader struct {
	io.Reader
	read    int
	quarter int
	cancel  context.CancelFunc
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.Reader.Read(p)
	c.read += n
	if c.read >= c.quarter {
		c.cancel()
	}
	return n, err
}

func TestTransferAllFromStopsAtNextChunkBoundaryAfterCancel(t *testing.T) {
	h := New(0)
	var sink bytes.Buffer
	h.AddSink(Sink{Peer: "solo", W: &sink})

	payload := bytes.Repeat([]byte("z"), ChunkSize*8)
	ctx, cancel := context.WithCancel(context.Background())
	src := &countingReader{Reader: bytes.NewReader(payload), quarter: len(payload) / 4, cancel: cancel}

	err := h.TransferAllFrom(ctx, src)
	require.Error(t, err)
	require.True(t, imgerr.IsCancel(err))
	require.Less(t, sink.Len(), len(payload))
}

func TestTransferAllFromCanceledContextFailsImmediately(t *testing.T) {
	h := New(0)
	var sink bytes.Buffer
	h.AddSink(Sink{Peer: "solo", W: &sink})

	ctx, cancel := context.WithTimeout(context.Background(), time.Nanosecond)
	defer cancel()
	<-ctx.Done()

	err := h.TransferAllFrom(ctx, bytes.NewReader([]byte("hello")))
	require.Error(t, err)
	require.True(t, imgerr.IsCancel(err))
	require.Zero(t, sink.Len())
}

func TestOneSinkFanOut(t *testing.T) {
	h := New(0)
	var buf bytes.Buffer
	h.AddSink(Sink{Peer: "solo", W: &buf})
	require.NoError(t, h.TransferFrom([]byte("abc")))
	require.Equal(t, "abc", buf.String())
}
