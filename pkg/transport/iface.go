// Copyright (C) 2015-2020 the Gprovision Authors. All Rights Reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.
//
// SPDX-License-Identifier: BSD-3-Clause
//

// Package transport implements the unicast and multicast image-streaming
// servers/clients: bind, accept-or-join, handshake (unicast only), then
// hand the connection(s) to the transfer hub.
package transport

import (
	"net"

	"github.com/vishvananda/netlink"

	"github.com/clonewave/imgclone/pkg/imgerr"
)

// CandidateInterfaces returns the names of every up, non-loopback,
// multicast-capable interface, in the order netlink reports them -
// mirroring gprovision's "enumerate interfaces" idiom in
// pkg/net/net_linux.go, but selecting for multicast capability instead of
// DHCP-worthiness.
func CandidateInterfaces() ([]string, error) {
	links, err := netlink.LinkList()
	if err != nil {
		return nil, imgerr.Wrap(imgerr.Connection, "listing network links", err)
	}
	var names []string
	for _, l := range links {
		attrs := l.Attrs()
		if attrs.Flags&net.FlagLoopback != 0 {
			continue
		}
		if attrs.Flags&net.FlagUp == 0 {
			continue
		}
		if attrs.Flags&net.FlagMulticast == 0 {
			continue
		}
		names = append(names, attrs.Name)
	}
	if len(names) == 0 {
		return nil, imgerr.New(imgerr.Connection, "no multicast-capable interface is up")
	}
	return names, nil
}

// BringUp brings ifaceName administratively up, the same LinkByName +
// LinkSetUp pair used throughout the pack for interface setup.
func BringUp(ifaceName string) error {
	link, err := netlink.LinkByName(ifaceName)
	if err != nil {
		return imgerr.Wrap(imgerr.Connection, "looking up interface "+ifaceName, err)
	}
	if err := netlink.LinkSetUp(link); err != nil {
		return imgerr.Wrap(imgerr.Connection, "bringing up interface "+ifaceName, err)
	}
	return nil
}
