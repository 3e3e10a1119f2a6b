// Copyright (C) 2015-2020 the Gprovision Authors. All Rights Reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.
//
// SPDX-License-Identifier: BSD-3-Clause
//

package wire

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/clonewave/imgclone/pkg/imgerr"
)

// Image bundles a Header with its descriptors, in on-wire order. It carries
// no payload bytes itself - those are streamed separately by whichever
// component owns the archive sources (materialize, xfer).
type Image struct {
	Header      Header
	Descriptors []PartitionDesc
}

// WriteMeta writes the header and descriptor block, followed by the
// 8-byte big-endian total payload size, to w. Everything up to and
// including those 8 bytes is "header" for streaming purposes: a peer must
// have all of it before the first payload byte can be interpreted.
func WriteMeta(w io.Writer, img Image) error {
	if int(img.Header.PartCount) != len(img.Descriptors) {
		return imgerr.Newf(imgerr.InvalidImage, "header partcount %d does not match %d descriptors", img.Header.PartCount, len(img.Descriptors))
	}
	hb, err := EncodeHeader(img.Header)
	if err != nil {
		return err
	}
	if _, err := w.Write(hb); err != nil {
		return imgerr.Wrap(imgerr.SendData, "writing header", err)
	}
	for i, d := range img.Descriptors {
		db, err := EncodePartitionDesc(d)
		if err != nil {
			return imgerr.Wrap(imgerr.InvalidImage, fmt.Sprintf("encoding descriptor %d", i), err)
		}
		if _, err := w.Write(db); err != nil {
			return imgerr.Wrap(imgerr.SendData, "writing descriptor", err)
		}
	}
	var total [8]byte
	binary.BigEndian.PutUint64(total[:], img.Header.TotalPayload)
	if _, err := w.Write(total[:]); err != nil {
		return imgerr.Wrap(imgerr.SendData, "writing total payload size", err)
	}
	return nil
}

// ReadMeta is the exact inverse of WriteMeta.
func ReadMeta(r io.Reader) (Image, error) {
	hb := make([]byte, HeaderSize)
	if _, err := io.ReadFull(r, hb); err != nil {
		return Image{}, imgerr.Wrap(imgerr.InvalidImage, "reading header", err)
	}
	h, err := DecodeHeader(hb)
	if err != nil {
		return Image{}, err
	}
	descs := make([]PartitionDesc, 0, h.PartCount)
	for i := 0; i < int(h.PartCount); i++ {
		db := make([]byte, DescriptorSize)
		if _, err := io.ReadFull(r, db); err != nil {
			return Image{}, imgerr.Wrap(imgerr.InvalidImage, "reading descriptor", err)
		}
		d, err := DecodePartitionDesc(db)
		if err != nil {
			return Image{}, err
		}
		descs = append(descs, d)
	}
	var total [8]byte
	if _, err := io.ReadFull(r, total[:]); err != nil {
		return Image{}, imgerr.Wrap(imgerr.InvalidImage, "reading total payload size", err)
	}
	h.TotalPayload = binary.BigEndian.Uint64(total[:])
	return Image{Header: h, Descriptors: descs}, nil
}

// WritePayloadFrame writes one descriptor's archive, prefixed by its
// 8-byte big-endian length, so a reader that only cares about a later
// partition can skip forward without decoding the archive itself.
func WritePayloadFrame(w io.Writer, archive []byte) error {
	var size [8]byte
	binary.BigEndian.PutUint64(size[:], uint64(len(archive)))
	if _, err := w.Write(size[:]); err != nil {
		return imgerr.Wrap(imgerr.SendData, "writing frame size", err)
	}
	if _, err := w.Write(archive); err != nil {
		return imgerr.Wrap(imgerr.SendData, "writing frame body", err)
	}
	return nil
}

// ReadPayloadFrameSize reads the 8-byte length prefix written by
// WritePayloadFrame, leaving the reader positioned at the first archive
// byte.
func ReadPayloadFrameSize(r io.Reader) (uint64, error) {
	var size [8]byte
	if _, err := io.ReadFull(r, size[:]); err != nil {
		return 0, imgerr.Wrap(imgerr.InvalidImage, "reading frame size", err)
	}
	return binary.BigEndian.Uint64(size[:]), nil
}
