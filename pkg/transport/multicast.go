// Copyright (C) 2015-2020 the Gprovision Authors. All Rights Reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.
//
// SPDX-License-Identifier: BSD-3-Clause
//

package transport

import (
	"io"
	"net"

	"github.com/clonewave/imgclone/pkg/imgerr"
)

// DatagramSize is the UDP payload size multicast send/receive chunk at.
// Kept comfortably under the common 1500-byte Ethernet MTU once IP/UDP
// headers are accounted for.
const DatagramSize = 1400

// MulticastSend opens a UDP socket bound to a random local port and
// connected to group:port, ready for repeated datagram writes. There is
// no handshake: loss is the receiver's problem, surfaced as a truncated
// stream.
func MulticastSend(group string, port int) (*net.UDPConn, error) {
	raddr := &net.UDPAddr{IP: net.ParseIP(group), Port: port}
	conn, err := net.DialUDP("udp4", nil, raddr)
	if err != nil {
		return nil, imgerr.Wrap(imgerr.Connection, "dialing multicast group", err)
	}
	return conn, nil
}

// MulticastReceive joins group on ifaceName (all interfaces if empty) and
// returns a connection ready for repeated datagram reads.
func MulticastReceive(ifaceName, group string, port int) (*net.UDPConn, error) {
	var iface *net.Interface
	if ifaceName != "" {
		found, err := net.InterfaceByName(ifaceName)
		if err != nil {
			return nil, imgerr.Wrap(imgerr.Connection, "resolving interface "+ifaceName, err)
		}
		iface = found
	}
	laddr := &net.UDPAddr{IP: net.ParseIP(group), Port: port}
	conn, err := net.ListenMulticastUDP("udp4", iface, laddr)
	if err != nil {
		return nil, imgerr.Wrap(imgerr.Connection, "joining multicast group "+group, err)
	}
	return conn, nil
}

// MulticastSendWriter opens a multicast send socket and returns it as an
// io.Writer chunked at DatagramSize, ready to hand to a transfer hub as
// its sole sink.
func MulticastSendWriter(group string, port int) (io.Writer, error) {
	conn, err := MulticastSend(group, port)
	if err != nil {
		return nil, err
	}
	return newDatagramWriter(conn), nil
}

// MulticastReceiveReader joins group and returns it as an io.Reader
// delivering one datagram per Read call, ready to hand to a transfer hub
// as its source.
func MulticastReceiveReader(ifaceName, group string, port int) (io.Reader, error) {
	conn, err := MulticastReceive(ifaceName, group, port)
	if err != nil {
		return nil, err
	}
	return newDatagramReader(conn), nil
}

// datagramWriter adapts a *net.UDPConn to io.Writer chunked at
// DatagramSize, splitting any larger write across multiple datagrams so
// callers (the transfer hub) never have to know about the MTU.
type datagramWriter struct {
	conn *net.UDPConn
}

func newDatagramWriter(conn *net.UDPConn) *datagramWriter { return &datagramWriter{conn: conn} }

func (d *datagramWriter) Write(p []byte) (int, error) {
	total := 0
	for total < len(p) {
		end := total + DatagramSize
		if end > len(p) {
			end = len(p)
		}
		n, err := d.conn.Write(p[total:end])
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// datagramReader adapts a *net.UDPConn to io.Reader, delivering exactly
// one datagram's worth of bytes per Read call.
type datagramReader struct {
	conn *net.UDPConn
}

func newDatagramReader(conn *net.UDPConn) *datagramReader { return &datagramReader{conn: conn} }

func (d *datagramReader) Read(p []byte) (int, error) {
	n, err := d.conn.Read(p)
	if err != nil {
		return n, imgerr.Wrap(imgerr.ReceiveData, "reading multicast datagram", err)
	}
	return n, nil
}
