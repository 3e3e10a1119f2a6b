// Copyright (C) 2015-2020 the Gprovision Authors. All Rights Reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.
//
// SPDX-License-Identifier: BSD-3-Clause
//

package log

import "time"

// DefaultTimestampLayout is yyyymmdd_hhmm.
const DefaultTimestampLayout = "20060102_1504"

var TimestampLayout = DefaultTimestampLayout

// Timestamp returns the current time formatted per TimestampLayout.
func Timestamp() string {
	return time.Now().Format(TimestampLayout)
}
