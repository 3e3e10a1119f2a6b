// Copyright (C) 2015-2020 the Gprovision Authors. All Rights Reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.
//
// SPDX-License-Identifier: BSD-3-Clause
//

// Package link implements chain mode: UDP-multicast discovery of every
// reachable node followed by point-to-point TCP relay assembly, so that a
// single sender's stream reaches an arbitrary number of nodes without any
// one of them fanning out more than one extra copy.
package link

import "time"

// Command is a one-byte, bit-flag command code. A single datagram's
// command byte may carry more than one flag.
type Command byte

const (
	CmdLinkServerOK Command = 0x01 // discovery announcement from the head
	CmdLinkClientOK Command = 0x02 // reply from a candidate link
	CmdNextLinkIP   Command = 0x04 // next datagram carries the successor's IPv4
	CmdServerOK     Command = 0x08 // unicast/multicast handshake, server side
	CmdReceiverOK   Command = 0x10 // unicast/multicast handshake, receiver side
)

const (
	// PortPing is the UDP port discovery pings and replies travel on.
	PortPing = 7772
	// PortData is the TCP port the payload relay listens/connects on.
	PortData = 7773
	// MulticastGroup is the fixed discovery multicast group.
	MulticastGroup = "225.0.1.2"
	// LinksNum caps the number of nodes a single chain may contain.
	LinksNum = 64
	// DiscoveryWindow is how long the head waits for candidate replies.
	DiscoveryWindow = 3 * time.Second
	// connectSettle is how long a node waits before dialing its
	// successor, giving the successor time to start listening.
	connectSettle = 1 * time.Second
)

// zeroSuccessor is the sentinel IPv4 value meaning "no successor" - the
// tail of the chain.
var zeroSuccessor = [4]byte{0, 0, 0, 0}
