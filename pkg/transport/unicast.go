// Copyright (C) 2015-2020 the Gprovision Authors. All Rights Reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.
//
// SPDX-License-Identifier: BSD-3-Clause
//

package transport

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/clonewave/imgclone/pkg/imgerr"
	"github.com/clonewave/imgclone/pkg/log"
	"github.com/clonewave/imgclone/pkg/xfer"
)

const handshakeOK = "SERVER_OK"
const handshakeAck = "RECEIVER_OK"

// UnicastSend binds addr, accepts up to n peers (subject to deadline if
// nonzero), handshakes each, and adds each as a sink of h. It returns once
// every peer is handshaked and added; the caller drives the actual
// transfer via h.
func UnicastSend(ctx context.Context, addr string, n int, deadline time.Duration, h *xfer.Hub) ([]net.Conn, error) {
	lc := net.ListenConfig{}
	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return nil, imgerr.Wrap(imgerr.Connection, "listening on "+addr, err)
	}
	defer ln.Close()

	if deadline > 0 {
		if tl, ok := ln.(*net.TCPListener); ok {
			tl.SetDeadline(time.Now().Add(deadline))
		}
	}

	conns := make([]net.Conn, 0, n)
	for len(conns) < n {
		conn, err := ln.Accept()
		if err != nil {
			return nil, imgerr.Wrap(imgerr.Connection, fmt.Sprintf("accepting peer %d/%d", len(conns)+1, n), err)
		}
		conns = append(conns, conn)
		log.Logf("unicast: accepted peer %s (%d/%d)", conn.RemoteAddr(), len(conns), n)
	}

	for _, conn := range conns {
		if err := handshakeServer(conn); err != nil {
			return nil, err
		}
		h.AddSink(xfer.Sink{Peer: conn.RemoteAddr().String(), W: conn})
	}
	return conns, nil
}

// UnicastReceive dials addr, handshakes, and returns the connection as
// the hub's source.
func UnicastReceive(ctx context.Context, addr string, h *xfer.Hub) (net.Conn, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, imgerr.Wrap(imgerr.Connection, "dialing "+addr, err)
	}
	if err := handshakeClient(conn); err != nil {
		conn.Close()
		return nil, err
	}
	h.SetSource(conn)
	return conn, nil
}

func handshakeServer(conn net.Conn) error {
	if _, err := conn.Write([]byte(handshakeOK)); err != nil {
		return imgerr.Wrap(imgerr.Connection, "sending handshake to "+conn.RemoteAddr().String(), err)
	}
	buf := make([]byte, len(handshakeAck))
	if _, err := readFull(conn, buf); err != nil {
		return imgerr.Wrap(imgerr.Connection, "reading handshake ack from "+conn.RemoteAddr().String(), err)
	}
	if string(buf) != handshakeAck {
		return imgerr.Newf(imgerr.Connection, "bad handshake ack from %s: %q", conn.RemoteAddr(), buf)
	}
	return nil
}

func handshakeClient(conn net.Conn) error {
	buf := make([]byte, len(handshakeOK))
	if _, err := readFull(conn, buf); err != nil {
		return imgerr.Wrap(imgerr.Connection, "reading handshake from server", err)
	}
	if string(buf) != handshakeOK {
		return imgerr.Newf(imgerr.Connection, "bad handshake from server: %q", buf)
	}
	if _, err := conn.Write([]byte(handshakeAck)); err != nil {
		return imgerr.Wrap(imgerr.Connection, "sending handshake ack", err)
	}
	return nil
}

func readFull(conn net.Conn, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := conn.Read(buf[total:])
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}
