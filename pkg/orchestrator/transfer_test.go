// Copyright (C) 2015-2020 the Gprovision Authors. All Rights Reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.
//
// SPDX-License-Identifier: BSD-3-Clause
//

package orchestrator

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/clonewave/imgclone/pkg/imgerr"
	"github.com/clonewave/imgclone/pkg/wire"
)

func TestLocalSendImageToImageIsByteIdentical(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src.img")
	dst := filepath.Join(dir, "dst.img")

	payload := bytes.Repeat([]byte{0xAA}, 4096)
	require.NoError(t, os.WriteFile(src, payload, 0644))

	o := New(Config{
		Role:       RoleSend,
		Mode:       ModeLocal,
		Target:     TargetImage,
		Path:       src,
		LocalPeer:  dst,
		ScratchDir: filepath.Join(dir, "scratch"),
	})
	require.NoError(t, o.Run(context.Background()))

	got, err := os.ReadFile(dst)
	require.NoError(t, err)
	require.Equal(t, payload, got)
}

func TestLocalReceiveZeroPartitionImageCopiesVerbatim(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "empty.img")
	dst := filepath.Join(dir, "restored.img")

	img := wire.Image{Header: wire.Header{ImageType: wire.ImageDisk, DiskLabel: wire.LabelGPT, PartCount: 0}}
	f, err := os.Create(src)
	require.NoError(t, err)
	require.NoError(t, wire.WriteMeta(f, img))
	require.NoError(t, f.Close())

	o := New(Config{
		Role:       RoleReceive,
		Mode:       ModeLocal,
		Target:     TargetImage,
		Path:       dst,
		LocalPeer:  src,
		ScratchDir: filepath.Join(dir, "scratch"),
	})
	require.NoError(t, o.Run(context.Background()))

	want, err := os.ReadFile(src)
	require.NoError(t, err)
	got, err := os.ReadFile(dst)
	require.NoError(t, err)
	require.Equal(t, want, got)
}

func TestUnicastSendZeroReceiversFailsConnection(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src.img")
	require.NoError(t, os.WriteFile(src, []byte("x"), 0644))

	o := New(Config{
		Role:         RoleSend,
		Mode:         ModeUnicast,
		Target:       TargetImage,
		Path:         src,
		Addr:         "127.0.0.1:0",
		NumReceivers: 0,
		ScratchDir:   filepath.Join(dir, "scratch"),
	})
	err := o.Run(context.Background())
	require.Error(t, err)
	k, ok := imgerr.KindOf(err)
	require.True(t, ok)
	require.Equal(t, imgerr.Connection, k)
}
