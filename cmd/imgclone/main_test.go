// Copyright (C) 2015-2020 the Gprovision Authors. All Rights Reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.
//
// SPDX-License-Identifier: BSD-3-Clause
//

package main

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/clonewave/imgclone/pkg/orchestrator"
)

func TestApplyJobFileFillsOnlyUnsetFields(t *testing.T) {
	cfg := orchestrator.Config{
		Role: orchestrator.RoleSend,
		Path: "/dev/sda",
	}
	jf := jobFile{
		Role:  orchestrator.RoleReceive,
		Mode:  orchestrator.ModeLink,
		Path:  "/dev/sdb",
		Iface: "eth0",
	}

	applyJobFile(&cfg, jf)

	require.Equal(t, orchestrator.RoleSend, cfg.Role, "flag-set fields must win over the job file")
	require.Equal(t, orchestrator.ModeLink, cfg.Mode)
	require.Equal(t, "/dev/sda", cfg.Path)
	require.Equal(t, "eth0", cfg.Iface)
}

func TestApplyJobFileLeavesConfigUnchangedWhenEmpty(t *testing.T) {
	cfg := orchestrator.Config{Role: orchestrator.RoleSend, Addr: "127.0.0.1:9000"}
	applyJobFile(&cfg, jobFile{})
	require.Equal(t, orchestrator.RoleSend, cfg.Role)
	require.Equal(t, "127.0.0.1:9000", cfg.Addr)
}
