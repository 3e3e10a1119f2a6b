// Copyright (C) 2015-2020 the Gprovision Authors. All Rights Reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.
//
// SPDX-License-Identifier: BSD-3-Clause
//

package log

import "fmt"

var attrs = map[string]interface{}{}

// EAttrExists is returned by SetAttr when the key is already present.
var EAttrExists = fmt.Errorf("an attr with this name already exists")

// GetAttr returns an attribute of the current log stack.
func GetAttr(key string) (interface{}, bool) {
	v, ok := attrs[key]
	return v, ok
}

// SetAttr sets an attribute of the current log stack; each newly-attached
// logger must register its attrs under a unique name.
func SetAttr(key string, val interface{}) error {
	if _, exists := attrs[key]; exists {
		return EAttrExists
	}
	attrs[key] = val
	return nil
}

// ClearAttrs removes every attr.
func ClearAttrs() {
	for key := range attrs {
		delete(attrs, key)
	}
}
