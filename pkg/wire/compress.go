// Copyright (C) 2015-2020 the Gprovision Authors. All Rights Reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.
//
// SPDX-License-Identifier: BSD-3-Clause
//

package wire

import (
	"io"
	"os"

	"github.com/clonewave/imgclone/pkg/imgerr"
	"github.com/ulikunitz/xz"
)

// CompressLocalFile rewrites srcPath as an xz-compressed copy at dstPath.
// This is a local-file convenience only - the network transports never see
// compressed bytes, since the stream byte prefix has to be identical across
// every sink and a compressor's output length isn't known until EOF.
func CompressLocalFile(srcPath, dstPath string) (err error) {
	in, err := os.Open(srcPath)
	if err != nil {
		return imgerr.Wrap(imgerr.CreateImage, "opening "+srcPath, err)
	}
	defer in.Close()

	out, err := os.OpenFile(dstPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return imgerr.Wrap(imgerr.CreateImage, "creating "+dstPath, err)
	}
	defer func() {
		if cerr := out.Close(); err == nil && cerr != nil {
			err = imgerr.Wrap(imgerr.CreateImage, "closing "+dstPath, cerr)
		}
	}()

	w, err := xz.NewWriter(out)
	if err != nil {
		return imgerr.Wrap(imgerr.CreateImage, "starting xz writer", err)
	}
	if _, err := io.Copy(w, in); err != nil {
		return imgerr.Wrap(imgerr.CreateImage, "compressing "+srcPath, err)
	}
	if err := w.Close(); err != nil {
		return imgerr.Wrap(imgerr.CreateImage, "finalizing xz stream", err)
	}
	return nil
}

// DecompressLocalFile is the exact inverse of CompressLocalFile.
func DecompressLocalFile(srcPath, dstPath string) (err error) {
	in, err := os.Open(srcPath)
	if err != nil {
		return imgerr.Wrap(imgerr.RestoreImage, "opening "+srcPath, err)
	}
	defer in.Close()

	r, err := xz.NewReader(in)
	if err != nil {
		return imgerr.Wrap(imgerr.RestoreImage, "starting xz reader", err)
	}

	out, err := os.OpenFile(dstPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return imgerr.Wrap(imgerr.RestoreImage, "creating "+dstPath, err)
	}
	defer func() {
		if cerr := out.Close(); err == nil && cerr != nil {
			err = imgerr.Wrap(imgerr.RestoreImage, "closing "+dstPath, cerr)
		}
	}()

	if _, err := io.Copy(out, r); err != nil {
		return imgerr.Wrap(imgerr.RestoreImage, "decompressing "+srcPath, err)
	}
	return nil
}

// IsXZFile sniffs the xz magic without fully decoding the stream.
func IsXZFile(path string) bool {
	f, err := os.Open(path)
	if err != nil {
		return false
	}
	defer f.Close()
	var magic [6]byte
	if _, err := io.ReadFull(f, magic[:]); err != nil {
		return false
	}
	return magic == [6]byte{0xFD, '7', 'z', 'X', 'Z', 0x00}
}
