// Copyright (C) 2015-2020 the Gprovision Authors. All Rights Reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.
//
// SPDX-License-Identifier: BSD-3-Clause
//

package progress

import (
	"encoding/json"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestServeStatusEndpoint(t *testing.T) {
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	s := NewSink()
	s.PublishQueue([]Op{OpTransferData})
	s.SetProgress(10, 100)

	go Serve(lis, s)
	defer lis.Close()

	url := "http://" + lis.Addr().String() + "/status"
	var resp *http.Response
	require.Eventually(t, func() bool {
		var err error
		resp, err = http.Get(url)
		return err == nil
	}, time.Second, 10*time.Millisecond)
	defer resp.Body.Close()

	var snap Snapshot
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&snap))
	require.Equal(t, uint64(10), snap.Transferred)
	require.Equal(t, uint64(100), snap.Total)
	require.Len(t, snap.Queue, 1)
}
