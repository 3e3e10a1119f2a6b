// Copyright (C) 2015-2020 the Gprovision Authors. All Rights Reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.
//
// SPDX-License-Identifier: BSD-3-Clause
//

package wire

import (
	"os"
	fp "path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCompressDecompressRoundTrip(t *testing.T) {
	dir := t.TempDir()
	src := fp.Join(dir, "plain.img")
	payload := bytes100k()
	require.NoError(t, os.WriteFile(src, payload, 0644))

	compressed := fp.Join(dir, "plain.img.xz")
	require.NoError(t, CompressLocalFile(src, compressed))
	require.True(t, IsXZFile(compressed))

	restored := fp.Join(dir, "restored.img")
	require.NoError(t, DecompressLocalFile(compressed, restored))

	got, err := os.ReadFile(restored)
	require.NoError(t, err)
	require.Equal(t, payload, got)
}

func bytes100k() []byte {
	b := make([]byte, 100*1024)
	for i := range b {
		b[i] = byte(i % 251)
	}
	return b
}

func TestIsXZFileRejectsPlainFile(t *testing.T) {
	dir := t.TempDir()
	plain := fp.Join(dir, "plain.bin")
	require.NoError(t, os.WriteFile(plain, []byte("not xz"), 0644))
	require.False(t, IsXZFile(plain))
}
