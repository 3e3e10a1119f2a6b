// Copyright (C) 2015-2020 the Gprovision Authors. All Rights Reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.
//
// SPDX-License-Identifier: BSD-3-Clause
//

package link

import (
	"net"
	"time"

	"golang.org/x/net/ipv4"

	"github.com/clonewave/imgclone/pkg/imgerr"
	"github.com/clonewave/imgclone/pkg/log"
)

// joinGroup binds PortPing, joins MulticastGroup on ifaceName (all
// interfaces if empty), and disables local loopback so a node never
// receives its own datagrams.
func joinGroup(ifaceName string) (*net.UDPConn, error) {
	var iface *net.Interface
	if ifaceName != "" {
		found, err := net.InterfaceByName(ifaceName)
		if err != nil {
			return nil, imgerr.Wrap(imgerr.Connection, "resolving interface "+ifaceName, err)
		}
		iface = found
	}
	laddr := &net.UDPAddr{IP: net.ParseIP(MulticastGroup), Port: PortPing}
	conn, err := net.ListenMulticastUDP("udp4", iface, laddr)
	if err != nil {
		return nil, imgerr.Wrap(imgerr.Connection, "joining link discovery group", err)
	}
	pc := ipv4.NewPacketConn(conn)
	if err := pc.SetMulticastLoopback(false); err != nil {
		log.Logf("link: could not disable multicast loopback: %v", err)
	}
	return conn, nil
}

// Discover is the head node's scan: ping the group, collect up to
// LinksNum distinct replies within DiscoveryWindow, and return them in
// the order received.
func Discover(ifaceName string) ([]net.IP, error) {
	conn, err := joinGroup(ifaceName)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	group := &net.UDPAddr{IP: net.ParseIP(MulticastGroup), Port: PortPing}
	if _, err := conn.WriteToUDP([]byte{byte(CmdLinkServerOK)}, group); err != nil {
		return nil, imgerr.Wrap(imgerr.Connection, "sending discovery ping", err)
	}

	conn.SetReadDeadline(time.Now().Add(DiscoveryWindow))

	seen := make(map[string]bool)
	var candidates []net.IP
	buf := make([]byte, 1)
	for len(candidates) < LinksNum {
		n, raddr, err := conn.ReadFromUDP(buf)
		if err != nil {
			break // deadline reached
		}
		if n < 1 || Command(buf[0])&CmdLinkClientOK == 0 {
			continue
		}
		ip := raddr.IP.To4()
		if ip == nil || seen[ip.String()] {
			continue
		}
		seen[ip.String()] = true
		candidates = append(candidates, ip)
		log.Logf("link: discovered candidate %s (%d so far)", ip, len(candidates))
	}
	if len(candidates) == 0 {
		return nil, imgerr.New(imgerr.Connection, "no link candidates replied within the discovery window")
	}
	return candidates, nil
}

// DistributeSuccessors tells every discovered candidate, in order, which
// of the other candidates follows it in the chain (0 for the last one).
func DistributeSuccessors(ifaceName string, candidates []net.IP) error {
	conn, err := joinGroup(ifaceName)
	if err != nil {
		return err
	}
	defer conn.Close()

	for i, c := range candidates {
		var next net.IP
		if i+1 < len(candidates) {
			next = candidates[i+1]
		}
		successor := encodeSuccessor(next)
		dst := &net.UDPAddr{IP: c, Port: PortPing}
		if _, err := conn.WriteToUDP([]byte{byte(CmdNextLinkIP)}, dst); err != nil {
			return imgerr.Wrap(imgerr.Connection, "sending successor command to "+c.String(), err)
		}
		if _, err := conn.WriteToUDP(successor[:], dst); err != nil {
			return imgerr.Wrap(imgerr.Connection, "sending successor address to "+c.String(), err)
		}
	}
	return nil
}

// Answer is a non-head node's half: wait for the head's ping, reply, then
// wait for the assigned successor address. A zero result means this node
// is the chain's tail.
func Answer(ifaceName string) (net.IP, error) {
	conn, err := joinGroup(ifaceName)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	buf := make([]byte, 1)
	var headAddr *net.UDPAddr
	for headAddr == nil {
		n, raddr, err := conn.ReadFromUDP(buf)
		if err != nil {
			return nil, imgerr.Wrap(imgerr.Connection, "waiting for discovery ping", err)
		}
		if n >= 1 && Command(buf[0])&CmdLinkServerOK != 0 {
			headAddr = raddr
		}
	}

	reply, err := net.DialUDP("udp4", nil, &net.UDPAddr{IP: headAddr.IP, Port: PortPing})
	if err != nil {
		return nil, imgerr.Wrap(imgerr.Connection, "replying to discovery ping", err)
	}
	defer reply.Close()
	if _, err := reply.Write([]byte{byte(CmdLinkClientOK)}); err != nil {
		return nil, imgerr.Wrap(imgerr.Connection, "sending discovery reply", err)
	}

	// The head normally sends CmdNextLinkIP right after discovery closes, but
	// if it dies before distributing successors this node must not block
	// forever - bound the wait to one more discovery window and fall back to
	// tail=0, the same result a real last-in-chain node gets.
	conn.SetReadDeadline(time.Now().Add(DiscoveryWindow))
	for {
		n, _, err := conn.ReadFromUDP(buf)
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				log.Logf("link: no successor command within the discovery window, assuming tail")
				return nil, nil
			}
			return nil, imgerr.Wrap(imgerr.Connection, "waiting for successor command", err)
		}
		if n >= 1 && Command(buf[0])&CmdNextLinkIP != 0 {
			break
		}
	}
	conn.SetReadDeadline(time.Time{})

	var successor [4]byte
	n, _, err := conn.ReadFromUDP(successor[:])
	if err != nil {
		return nil, imgerr.Wrap(imgerr.Connection, "reading successor address", err)
	}
	if n != 4 {
		return nil, imgerr.Newf(imgerr.InvalidImage, "successor address datagram was %d bytes, want 4", n)
	}
	return decodeSuccessor(successor), nil
}

// encodeSuccessor renders ip (nil for "no successor") as the 4-byte
// big-endian wire form DistributeSuccessors sends.
func encodeSuccessor(ip net.IP) [4]byte {
	if ip == nil {
		return zeroSuccessor
	}
	var b [4]byte
	copy(b[:], ip.To4())
	return b
}

// decodeSuccessor is the inverse of encodeSuccessor: the zero sentinel
// decodes to nil, meaning the receiving node is the chain's tail.
func decodeSuccessor(b [4]byte) net.IP {
	if b == zeroSuccessor {
		return nil
	}
	ip := make(net.IP, 4)
	copy(ip, b[:])
	return ip
}
