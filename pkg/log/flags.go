// Copyright (C) 2015-2020 the Gprovision Authors. All Rights Reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.
//
// SPDX-License-Identifier: BSD-3-Clause
//

package log

// Flag marks a log entry's audience/severity. A single entry may carry more
// than one bit.
type Flag uint8

const (
	NA      Flag = 0
	EndUser Flag = 1 << 0
	Fatal   Flag = 1 << 1
	NotFile Flag = 1 << 2
)
