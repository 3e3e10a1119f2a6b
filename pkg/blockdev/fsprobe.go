// Copyright (C) 2015-2020 the Gprovision Authors. All Rights Reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.
//
// SPDX-License-Identifier: BSD-3-Clause
//

package blockdev

import (
	"context"

	"github.com/siderolabs/go-blockdevice/v2/blkid"
)

// ProbeFilesystem inspects a single partition device node and returns its
// filesystem tag (the wire.PartitionDesc.FSTag vocabulary - "ext4",
// "fat32", "ntfs", ...), volume label, and filesystem UUID. All three
// return as empty strings, not an error, when the partition carries no
// recognized filesystem: that is a legitimate "nofs" partition, not a
// probe failure.
func ProbeFilesystem(ctx context.Context, partDevPath string) (tag, label, id string) {
	info, err := blkid.ProbePath(partDevPath, blkid.WithSkipLocking(true))
	if err != nil {
		return "", "", ""
	}
	if info.UUID != nil {
		id = info.UUID.String()
	}
	if info.Label != nil {
		label = *info.Label
	}
	return normalizeTag(info.Name), label, id
}

// normalizeTag maps the probing library's filesystem names onto this
// project's fixed on-wire vocabulary.
func normalizeTag(name string) string {
	switch name {
	case "ext4", "ext3", "ext2":
		return name
	case "vfat":
		return "fat32"
	case "ntfs":
		return "ntfs"
	case "swap":
		return "swap"
	case "xfs", "btrfs":
		return name
	default:
		return ""
	}
}
