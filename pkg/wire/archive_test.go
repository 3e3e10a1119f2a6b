// Copyright (C) 2015-2020 the Gprovision Authors. All Rights Reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.
//
// SPDX-License-Identifier: BSD-3-Clause
//

package wire

import (
	"bytes"
	"os"
	fp "path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeTree(t *testing.T, root string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(fp.Join(root, "a", "b"), 0755))
	require.NoError(t, os.WriteFile(fp.Join(root, "a", "one.txt"), []byte("one"), 0644))
	require.NoError(t, os.WriteFile(fp.Join(root, "a", "b", "two.txt"), []byte("two"), 0640))
	require.NoError(t, os.Symlink("one.txt", fp.Join(root, "a", "link-to-one")))
	require.NoError(t, os.Link(fp.Join(root, "a", "one.txt"), fp.Join(root, "a", "hard-to-one")))
}

func TestArchiveRoundTrip(t *testing.T) {
	src := t.TempDir()
	writeTree(t, src)

	var buf bytes.Buffer
	require.NoError(t, ArchiveWriter(&buf, src))

	dst := t.TempDir()
	require.NoError(t, ArchiveReader(&buf, dst))

	one, err := os.ReadFile(fp.Join(dst, "a", "one.txt"))
	require.NoError(t, err)
	require.Equal(t, "one", string(one))

	two, err := os.ReadFile(fp.Join(dst, "a", "b", "two.txt"))
	require.NoError(t, err)
	require.Equal(t, "two", string(two))

	target, err := os.Readlink(fp.Join(dst, "a", "link-to-one"))
	require.NoError(t, err)
	require.Equal(t, "one.txt", target)

	fi1, err := os.Stat(fp.Join(dst, "a", "one.txt"))
	require.NoError(t, err)
	fi2, err := os.Stat(fp.Join(dst, "a", "hard-to-one"))
	require.NoError(t, err)
	require.True(t, os.SameFile(fi1, fi2))
}

func TestArchiveRejectsTruncation(t *testing.T) {
	src := t.TempDir()
	writeTree(t, src)

	var buf bytes.Buffer
	require.NoError(t, ArchiveWriter(&buf, src))

	truncated := bytes.NewReader(buf.Bytes()[:buf.Len()/2])
	dst := t.TempDir()
	err := ArchiveReader(truncated, dst)
	require.Error(t, err)
}

func TestArchiveDeterministicOrder(t *testing.T) {
	src := t.TempDir()
	writeTree(t, src)

	var first, second bytes.Buffer
	require.NoError(t, ArchiveWriter(&first, src))
	require.NoError(t, ArchiveWriter(&second, src))
	require.Equal(t, first.Bytes(), second.Bytes())
}
