// Copyright (C) 2015-2020 the Gprovision Authors. All Rights Reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.
//
// SPDX-License-Identifier: BSD-3-Clause
//

package orchestrator

import "github.com/clonewave/imgclone/pkg/progress"

// buildQueue publishes the coarse operation sequence a run of this
// (role, mode) shape will move through, ahead of doing any of it, so a
// UI can render the full queue immediately per §4.7 item 1.
func buildQueue(role Role, mode Mode) []progress.Op {
	var ops []progress.Op

	if mode != ModeLocal {
		switch role {
		case RoleSend:
			ops = append(ops, progress.OpWaitClients)
		case RoleReceive:
			ops = append(ops, progress.OpWaitServer)
		}
	}

	switch role {
	case RoleSend:
		ops = append(ops, progress.OpReadPartitionTable, progress.OpTransferData)
	case RoleReceive:
		ops = append(ops, progress.OpTransferData, progress.OpWritePartitionTable, progress.OpWritePartitionFlags)
	}
	return ops
}
