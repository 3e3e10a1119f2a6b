// Copyright (C) 2015-2020 the Gprovision Authors. All Rights Reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.
//
// SPDX-License-Identifier: BSD-3-Clause
//

package link

import (
	"fmt"
	"net"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/clonewave/imgclone/pkg/imgerr"
	"github.com/clonewave/imgclone/pkg/log"
	"github.com/clonewave/imgclone/pkg/xfer"
)

// State is one node's position in the chain-assembly state machine.
type State int

const (
	StateIdle State = iota
	StateDiscover
	StateAnswer
	StateDistributeSuccessors
	StateConnectPeers
	StateTransfer
	StateTearDown
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "Idle"
	case StateDiscover:
		return "Discover"
	case StateAnswer:
		return "Answer"
	case StateDistributeSuccessors:
		return "DistributeSuccessors"
	case StateConnectPeers:
		return "ConnectPeers"
	case StateTransfer:
		return "Transfer"
	case StateTearDown:
		return "TearDown"
	default:
		return "Unknown"
	}
}

// Node drives one participant through the chain lifecycle: discovery (or
// answer), relay assembly, and teardown. The head node is the chain's
// sender; every other node both relays to its successor (unless it is
// the tail) and receives from its predecessor.
type Node struct {
	IsHead    bool
	Iface     string
	Successor net.IP // nil once resolved to the tail

	state State

	predConn net.Conn
	succConn net.Conn
}

// State reports the node's current position, chiefly for tests and
// progress reporting.
func (n *Node) State() State { return n.state }

// Assemble runs discovery/answer plus relay assembly, leaving the node in
// StateTransfer with predConn/succConn (where applicable) ready for
// WireHub. Callers drive the actual byte transfer themselves via the hub
// returned by WireHub, then call TearDown.
func (n *Node) Assemble() error {
	var candidates []net.IP
	if n.IsHead {
		n.state = StateDiscover
		found, err := Discover(n.Iface)
		if err != nil {
			return err
		}
		candidates = found
		n.Successor = candidates[0]

		n.state = StateDistributeSuccessors
		if err := DistributeSuccessors(n.Iface, candidates); err != nil {
			return err
		}
	} else {
		n.state = StateAnswer
		successor, err := Answer(n.Iface)
		if err != nil {
			return err
		}
		n.Successor = successor
	}

	n.state = StateConnectPeers
	if err := n.connectPeers(); err != nil {
		return err
	}

	n.state = StateTransfer
	return nil
}

// connectPeers opens a TCP connection to the successor (if any) and
// accepts one from the predecessor (unless this node is the head),
// concurrently, since neither side of a two-node chain can be assumed to
// go first.
func (n *Node) connectPeers() error {
	var g errgroup.Group

	if !n.IsHead {
		g.Go(func() error {
			ln, err := net.Listen("tcp", fmt.Sprintf(":%d", PortData))
			if err != nil {
				return imgerr.Wrap(imgerr.Connection, "listening for predecessor", err)
			}
			defer ln.Close()
			conn, err := ln.Accept()
			if err != nil {
				return imgerr.Wrap(imgerr.Connection, "accepting predecessor connection", err)
			}
			n.predConn = conn
			return nil
		})
	}

	if n.Successor != nil {
		g.Go(func() error {
			time.Sleep(connectSettle)
			addr := fmt.Sprintf("%s:%d", n.Successor.String(), PortData)
			conn, err := net.Dial("tcp", addr)
			if err != nil {
				return imgerr.Wrap(imgerr.Connection, "connecting to successor "+addr, err)
			}
			n.succConn = conn
			return nil
		})
	}

	return g.Wait()
}

// PredecessorConn returns the connection accepted from this node's
// predecessor, or nil if this node is the head.
func (n *Node) PredecessorConn() net.Conn { return n.predConn }

// SuccessorConn returns the connection dialed to this node's successor,
// or nil if this node is the tail.
func (n *Node) SuccessorConn() net.Conn { return n.succConn }

// WireHub attaches this node's predecessor/successor connections to h: the
// predecessor (if any) becomes the source, and the successor (if any) is
// added as a sink alongside whatever local sink the caller has already
// registered.
func (n *Node) WireHub(h *xfer.Hub) {
	if n.predConn != nil {
		h.SetSource(n.predConn)
	}
	if n.succConn != nil {
		h.AddSink(xfer.Sink{Peer: n.succConn.RemoteAddr().String(), W: n.succConn})
	}
}

// TearDown closes every socket this node opened during assembly.
func (n *Node) TearDown() error {
	n.state = StateTearDown
	var first error
	if n.predConn != nil {
		if err := n.predConn.Close(); err != nil && first == nil {
			first = err
		}
	}
	if n.succConn != nil {
		if err := n.succConn.Close(); err != nil && first == nil {
			first = err
		}
	}
	log.Logf("link: node torn down")
	if first != nil {
		return imgerr.Wrap(imgerr.Connection, "closing link sockets", first)
	}
	return nil
}
