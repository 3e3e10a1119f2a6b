// Copyright (C) 2015-2020 the Gprovision Authors. All Rights Reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.
//
// SPDX-License-Identifier: BSD-3-Clause
//

package transport

import (
	"bytes"
	"net"
	"testing"

	"github.com/stretchr/testify/require"
)

// loopbackUDPPair sets up a connected pair of UDP sockets on the loopback
// interface, standing in for a multicast pair without requiring group
// membership privileges in the test environment.
func loopbackUDPPair(t *testing.T) (recv, send *net.UDPConn) {
	t.Helper()
	rl, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 0})
	require.NoError(t, err)

	sc, err := net.DialUDP("udp4", nil, rl.LocalAddr().(*net.UDPAddr))
	require.NoError(t, err)

	return rl, sc
}

func TestDatagramWriterSplitsLargeWrite(t *testing.T) {
	recv, send := loopbackUDPPair(t)
	defer recv.Close()
	defer send.Close()

	w := newDatagramWriter(send)
	payload := bytes.Repeat([]byte("z"), DatagramSize*2+37)

	done := make(chan error, 1)
	go func() {
		_, err := w.Write(payload)
		done <- err
	}()

	var got []byte
	buf := make([]byte, DatagramSize+64)
	for len(got) < len(payload) {
		n, err := recv.Read(buf)
		require.NoError(t, err)
		got = append(got, buf[:n]...)
	}
	require.NoError(t, <-done)
	require.Equal(t, payload, got)
}

func TestDatagramReaderReadsOneDatagramPerCall(t *testing.T) {
	recv, send := loopbackUDPPair(t)
	defer recv.Close()
	defer send.Close()

	r := newDatagramReader(recv)

	_, err := send.Write([]byte("hello"))
	require.NoError(t, err)

	buf := make([]byte, 64)
	n, err := r.Read(buf)
	require.NoError(t, err)
	require.Equal(t, "hello", string(buf[:n]))
}
