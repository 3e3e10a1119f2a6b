// Copyright (C) 2015-2020 the Gprovision Authors. All Rights Reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.
//
// SPDX-License-Identifier: BSD-3-Clause
//

package fsdriver

import "sort"

// KnownTags lists every wire tag with a real (non-nofs) driver
// registered, in a fixed order suitable for help text or logging.
func KnownTags() []string {
	tags := make([]string, 0, len(registry))
	for tag := range registry {
		if tag == "nofs" {
			continue
		}
		tags = append(tags, tag)
	}
	sort.Strings(tags)
	return tags
}
