// Copyright (C) 2015-2020 the Gprovision Authors. All Rights Reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.
//
// SPDX-License-Identifier: BSD-3-Clause
//

package link

import (
	"net"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeSuccessorRoundTrip(t *testing.T) {
	ip := net.IPv4(192, 168, 1, 42)
	enc := encodeSuccessor(ip)
	require.Equal(t, [4]byte{192, 168, 1, 42}, enc)

	dec := decodeSuccessor(enc)
	require.True(t, ip.Equal(dec))
}

func TestEncodeDecodeSuccessorNilIsTailSentinel(t *testing.T) {
	enc := encodeSuccessor(nil)
	require.Equal(t, zeroSuccessor, enc)
	require.Nil(t, decodeSuccessor(enc))
}

func TestCommandFlagsAreDistinctBits(t *testing.T) {
	all := []Command{CmdLinkServerOK, CmdLinkClientOK, CmdNextLinkIP, CmdServerOK, CmdReceiverOK}
	seen := Command(0)
	for _, c := range all {
		require.Zero(t, seen&c, "command %#x overlaps a previously seen bit", c)
		seen |= c
	}
}
