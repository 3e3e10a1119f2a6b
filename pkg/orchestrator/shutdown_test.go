// Copyright (C) 2015-2020 the Gprovision Authors. All Rights Reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.
//
// SPDX-License-Identifier: BSD-3-Clause
//

package orchestrator

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestShutdownHandlerRunsInReverseOrder(t *testing.T) {
	h := newShutdownHandler()
	var order []int
	h.add(func() { order = append(order, 1) })
	h.add(func() { order = append(order, 2) })
	h.add(func() { order = append(order, 3) })

	h.run()
	require.Equal(t, []int{3, 2, 1}, order)
}

func TestShutdownHandlerRunsOnlyOnce(t *testing.T) {
	h := newShutdownHandler()
	count := 0
	h.add(func() { count++ })

	h.run()
	h.run()
	require.Equal(t, 1, count)
}

func TestShutdownHandlerSurvivesPanickingAction(t *testing.T) {
	h := newShutdownHandler()
	ran := false
	h.add(func() { panic("boom") })
	h.add(func() { ran = true })

	require.NotPanics(t, func() { h.run() })
	require.True(t, ran)
}
