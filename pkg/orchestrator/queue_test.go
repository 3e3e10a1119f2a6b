// Copyright (C) 2015-2020 the Gprovision Authors. All Rights Reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.
//
// SPDX-License-Identifier: BSD-3-Clause
//

package orchestrator

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/clonewave/imgclone/pkg/progress"
)

func TestBuildQueueLocalSendSkipsNetworkOps(t *testing.T) {
	ops := buildQueue(RoleSend, ModeLocal)
	require.Equal(t, []progress.Op{progress.OpReadPartitionTable, progress.OpTransferData}, ops)
}

func TestBuildQueueUnicastSendWaitsForClients(t *testing.T) {
	ops := buildQueue(RoleSend, ModeUnicast)
	require.Equal(t, progress.OpWaitClients, ops[0])
}

func TestBuildQueueReceiveIncludesPartitionWriteSteps(t *testing.T) {
	ops := buildQueue(RoleReceive, ModeMulticast)
	require.Contains(t, ops, progress.OpWritePartitionTable)
	require.Contains(t, ops, progress.OpWritePartitionFlags)
	require.Equal(t, progress.OpWaitServer, ops[0])
}
