// Copyright (C) 2015-2020 the Gprovision Authors. All Rights Reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.
//
// SPDX-License-Identifier: BSD-3-Clause
//

package history

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestMoveOrAddFront(t *testing.T) {
	var rl RunList
	rl = append(rl, &Run{Image: "img1"}, &Run{Image: "img2"})
	r3 := &Run{Image: "img3"}

	rl.moveOrAddFront(r3)
	require.Len(t, rl, 3)
	require.Equal(t, "img3", rl[0].Image)

	last := rl[2]
	rl.moveOrAddFront(last)
	require.Len(t, rl, 3)
	require.Equal(t, last.Image, rl[0].Image)
}

func TestRecordAndCheckAccumulateFailures(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir)
	require.NoError(t, err)
	require.NoError(t, s.Load())

	now := time.Now()
	for i := 0; i < 5; i++ {
		require.NoError(t, s.Record("image-a", DirectionSend, false, now, "boom"))
	}
	require.True(t, s.Check("image-a"), "5 failures is still within MaxFailuresPerImage")

	require.NoError(t, s.Record("image-a", DirectionSend, false, now, "boom again"))
	require.False(t, s.Check("image-a"), "6th failure exceeds MaxFailuresPerImage")

	require.True(t, s.Check("image-never-run"))
}

func TestRecordPersistsAcrossLoad(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir)
	require.NoError(t, err)
	require.NoError(t, s.Load())
	require.NoError(t, s.Record("image-b", DirectionReceive, true, time.Now(), ""))

	reopened, err := Open(dir)
	require.NoError(t, err)
	require.NoError(t, reopened.Load())

	runs := reopened.Runs()
	require.Len(t, runs, 1)
	require.Equal(t, "image-b", runs[0].Image)
	require.Equal(t, DirectionReceive, runs[0].Direction)
	require.EqualValues(t, 1, runs[0].Attempts)
	require.EqualValues(t, 0, runs[0].Failures)
}

func TestLoadMissingFileIsNotAnError(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir)
	require.NoError(t, err)
	require.NoError(t, s.Load())
	require.Empty(t, s.Runs())
}

func TestLoadCorruptFileMovesAside(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir)
	require.NoError(t, err)
	require.NoError(t, writeRaw(s, []byte("not json")))
	require.NoError(t, s.Load())
	require.Empty(t, s.Runs())
}

func writeRaw(s *Store, data []byte) error {
	return os.WriteFile(s.path, data, 0644)
}
