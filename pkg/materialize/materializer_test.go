// Copyright (C) 2015-2020 the Gprovision Authors. All Rights Reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.
//
// SPDX-License-Identifier: BSD-3-Clause
//

package materialize

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/clonewave/imgclone/pkg/imgerr"
	"github.com/clonewave/imgclone/pkg/wire"
)

func TestNewOwnedScratchDirRemovedOnUnmountAll(t *testing.T) {
	m, err := New("")
	require.NoError(t, err)
	_, statErr := os.Stat(m.scratch)
	require.NoError(t, statErr)

	require.NoError(t, m.UnmountAll())
	_, statErr = os.Stat(m.scratch)
	require.True(t, os.IsNotExist(statErr))
}

func TestNewAdoptedScratchDirSurvivesUnmountAll(t *testing.T) {
	dir := t.TempDir()
	m, err := New(dir)
	require.NoError(t, err)
	require.NoError(t, m.UnmountAll())
	_, statErr := os.Stat(dir)
	require.NoError(t, statErr)
}

func TestMountRejectsNofsPartition(t *testing.T) {
	m, err := New(t.TempDir())
	require.NoError(t, err)
	defer m.UnmountAll()

	_, err = m.Mount(context.Background(), wire.PartitionDesc{FSTag: wire.NoFS}, "/dev/null")
	require.Error(t, err)
	k, ok := imgerr.KindOf(err)
	require.True(t, ok)
	require.Equal(t, imgerr.Mount, k)
}

func TestOutstandingStartsEmpty(t *testing.T) {
	tableMtx.Lock()
	table = nil
	tableMtx.Unlock()

	out, err := Outstanding()
	require.NoError(t, err)
	require.Empty(t, out)
}
