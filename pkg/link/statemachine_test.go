// Copyright (C) 2015-2020 the Gprovision Authors. All Rights Reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.
//
// SPDX-License-Identifier: BSD-3-Clause
//

package link

import (
	"bytes"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/clonewave/imgclone/pkg/xfer"
)

func TestStateStringCoversEveryState(t *testing.T) {
	states := []State{StateIdle, StateDiscover, StateAnswer, StateDistributeSuccessors,
		StateConnectPeers, StateTransfer, StateTearDown}
	for _, s := range states {
		require.NotEqual(t, "Unknown", s.String())
	}
	require.Equal(t, "Unknown", State(99).String())
}

func TestWireHubUsesPredAsSourceAndSuccAsSink(t *testing.T) {
	predServer, predClient := net.Pipe()
	defer predServer.Close()
	defer predClient.Close()

	var succBuf bytes.Buffer
	succConn := &fakeConn{Buffer: &succBuf}

	n := &Node{predConn: predClient, succConn: succConn}
	h := xfer.New(0)
	n.WireHub(h)

	go func() { predServer.Write([]byte("payload")) }()
	buf, err := h.TransferTo(len("payload"))
	require.NoError(t, err)
	require.Equal(t, "payload", string(buf))

	require.NoError(t, h.TransferFrom([]byte("relayed")))
	require.Equal(t, "relayed", succBuf.String())
}

func TestTearDownClosesBothConnections(t *testing.T) {
	predServer, predClient := net.Pipe()
	defer predServer.Close()
	succServer, succClient := net.Pipe()
	defer succServer.Close()

	n := &Node{predConn: predClient, succConn: succClient}
	require.NoError(t, n.TearDown())
	require.Equal(t, StateTearDown, n.State())

	_, err := predClient.Write([]byte("x"))
	require.Error(t, err)
	_, err = succClient.Write([]byte("x"))
	require.Error(t, err)
}

// fakeConn is a minimal net.Conn standing in for a successor TCP
// connection in tests that only need Write to be observable.
type fakeConn struct {
	*bytes.Buffer
}

func (f *fakeConn) Close() error                        { return nil }
func (f *fakeConn) LocalAddr() net.Addr                 { return fakeAddr("local") }
func (f *fakeConn) RemoteAddr() net.Addr                { return fakeAddr("remote") }
func (f *fakeConn) SetDeadline(t time.Time) error       { return nil }
func (f *fakeConn) SetReadDeadline(t time.Time) error   { return nil }
func (f *fakeConn) SetWriteDeadline(t time.Time) error  { return nil }

type fakeAddr string

func (a fakeAddr) Network() string { return "fake" }
func (a fakeAddr) String() string  { return string(a) }
