// Copyright (C) 2015-2020 the Gprovision Authors. All Rights Reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.
//
// SPDX-License-Identifier: BSD-3-Clause
//

package blockdev

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestValidateUUID(t *testing.T) {
	require.True(t, ValidateUUID(""))
	require.True(t, ValidateUUID("11111111-1111-1111-1111-111111111111"))
	require.False(t, ValidateUUID("not-a-uuid"))
}
