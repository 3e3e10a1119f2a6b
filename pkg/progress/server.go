// Copyright (C) 2015-2020 the Gprovision Authors. All Rights Reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.
//
// SPDX-License-Identifier: BSD-3-Clause
//

package progress

import (
	"encoding/json"
	"net"
	"net/http"

	"github.com/bmizerany/pat"

	"github.com/clonewave/imgclone/pkg/imgerr"
	"github.com/clonewave/imgclone/pkg/log"
)

// Serve starts the status HTTP server on lis, blocking until it returns
// (normally on listener close). GET /status returns the current Snapshot
// as JSON.
func Serve(lis net.Listener, s *Sink) error {
	mux := pat.New()
	mux.Get("/status", http.HandlerFunc(s.statusHandler))

	srv := &http.Server{Handler: mux}
	err := srv.Serve(lis)
	if err != nil && err != http.ErrServerClosed {
		return imgerr.Wrap(imgerr.Connection, "serving progress status endpoint", err)
	}
	return nil
}

func (s *Sink) statusHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(s.Snapshot()); err != nil {
		log.Logf("progress: encoding status response: %v", err)
	}
}
