// Copyright (C) 2015-2020 the Gprovision Authors. All Rights Reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.
//
// SPDX-License-Identifier: BSD-3-Clause
//

package progress

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPublishStartCompleteLifecycle(t *testing.T) {
	s := NewSink()
	s.PublishQueue([]Op{OpReadPartitionTable, OpTransferData})

	snap := s.Snapshot()
	require.Len(t, snap.Queue, 2)
	require.Equal(t, StateQueued, snap.Queue[0].State)

	s.Start(OpTransferData)
	require.Equal(t, StateRunning, s.Snapshot().Queue[1].State)

	s.Complete(OpTransferData)
	require.Equal(t, StateDone, s.Snapshot().Queue[1].State)
	require.Equal(t, StateQueued, s.Snapshot().Queue[0].State)
}

func TestNewConnectionAccumulatesPeers(t *testing.T) {
	s := NewSink()
	s.NewConnection("10.0.0.5")
	s.NewConnection("10.0.0.6")
	require.Equal(t, []string{"10.0.0.5", "10.0.0.6"}, s.Snapshot().Peers)
}

func TestSetProgressUpdatesSnapshot(t *testing.T) {
	s := NewSink()
	s.SetProgress(512, 1024)
	snap := s.Snapshot()
	require.Equal(t, uint64(512), snap.Transferred)
	require.Equal(t, uint64(1024), snap.Total)
}
