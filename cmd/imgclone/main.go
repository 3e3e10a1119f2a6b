// Copyright (C) 2015-2020 the Gprovision Authors. All Rights Reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.
//
// SPDX-License-Identifier: BSD-3-Clause
//

// Command imgclone drives one send or receive leg of a disk/partition
// clone: a local copy, a unicast/multicast network transfer, or a node in
// a link-mode chain.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"net"
	"os"
	"os/signal"
	"time"

	"github.com/clonewave/imgclone/pkg/log"
	"github.com/clonewave/imgclone/pkg/orchestrator"
	"github.com/clonewave/imgclone/pkg/progress"
)

// jobFile is the shape of the optional -job JSON file: a fleet of
// link-mode nodes typically shares one job file with only Path/Iface
// differing per machine.
type jobFile struct {
	Role         orchestrator.Role         `json:"role"`
	Mode         orchestrator.Mode         `json:"mode"`
	Target       orchestrator.TargetKind   `json:"target"`
	Path         string                    `json:"path"`
	LocalPeer    string                    `json:"local_peer"`
	Addr         string                    `json:"addr"`
	NumReceivers int                       `json:"num_receivers"`
	Iface        string                    `json:"iface"`
	ScratchDir   string                    `json:"scratch_dir"`
	HistoryDir   string                    `json:"history_dir"`
	StatusAddr   string                    `json:"status_addr"`
}

func main() {
	log.AddConsoleLog(0)

	job := flag.String("job", "", "path to a JSON job file overlaying the flags below")
	role := flag.String("role", "", "send|receive")
	mode := flag.String("mode", "", "local|unicast|multicast|link")
	target := flag.String("target", "", "image|device")
	path := flag.String("path", "", "local image file or block device path")
	localPeer := flag.String("local-peer", "", "path at the other end of a local copy")
	addr := flag.String("addr", "", "unicast bind (send) or dial (receive) address")
	numReceivers := flag.Int("receivers", 1, "number of unicast receivers to wait for (send only)")
	acceptTimeout := flag.Duration("accept-timeout", 30*time.Second, "how long a unicast send waits for receivers")
	iface := flag.String("iface", "", "network interface for multicast/link discovery")
	scratchDir := flag.String("scratch", "", "scratch directory for partition staging (default: temp dir)")
	historyDir := flag.String("history", "", "directory to keep clone_history.json in (default: no history)")
	statusAddr := flag.String("status-addr", "", "if set, serve GET /status progress JSON on this address")
	flag.Parse()

	cfg := orchestrator.Config{
		Role:           orchestrator.Role(*role),
		Mode:           orchestrator.Mode(*mode),
		Target:         orchestrator.TargetKind(*target),
		Path:           *path,
		LocalPeer:      *localPeer,
		Addr:           *addr,
		NumReceivers:   *numReceivers,
		AcceptDeadline: *acceptTimeout,
		Iface:          *iface,
		ScratchDir:     *scratchDir,
		HistoryDir:     *historyDir,
	}
	statusListenAddr := *statusAddr

	if *job != "" {
		f, err := os.Open(*job)
		if err != nil {
			log.Fatalf("opening job file: %s", err)
		}
		var jf jobFile
		err = json.NewDecoder(f).Decode(&jf)
		f.Close()
		if err != nil {
			log.Fatalf("parsing job file: %s", err)
		}
		applyJobFile(&cfg, jf)
		if statusListenAddr == "" && jf.StatusAddr != "" {
			statusListenAddr = jf.StatusAddr
		}
	}

	if cfg.ScratchDir == "" {
		dir, err := os.MkdirTemp("", "imgclone-scratch")
		if err != nil {
			log.Fatalf("creating scratch dir: %s", err)
		}
		defer os.RemoveAll(dir)
		cfg.ScratchDir = dir
	}

	sink := progress.NewSink()
	cfg.Progress = sink

	if statusListenAddr != "" {
		lis, err := net.Listen("tcp", statusListenAddr)
		if err != nil {
			log.Fatalf("listening on %s: %s", statusListenAddr, err)
		}
		go func() {
			if err := progress.Serve(lis, sink); err != nil {
				log.Logf("status server: %s", err)
			}
		}()
		defer lis.Close()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	orc := orchestrator.New(cfg)
	if err := orc.Run(ctx); err != nil {
		log.Fatalf("%s", err)
	}
}

// applyJobFile fills in fields of cfg that are still at their flag default
// (empty/zero) from jf; a flag given explicitly on the command line wins
// over the job file, except -receivers (see below).
func applyJobFile(cfg *orchestrator.Config, jf jobFile) {
	if cfg.Role == "" && jf.Role != "" {
		cfg.Role = jf.Role
	}
	if cfg.Mode == "" && jf.Mode != "" {
		cfg.Mode = jf.Mode
	}
	if cfg.Target == "" && jf.Target != "" {
		cfg.Target = jf.Target
	}
	if cfg.Path == "" && jf.Path != "" {
		cfg.Path = jf.Path
	}
	if cfg.LocalPeer == "" && jf.LocalPeer != "" {
		cfg.LocalPeer = jf.LocalPeer
	}
	if cfg.Addr == "" && jf.Addr != "" {
		cfg.Addr = jf.Addr
	}
	// 1 is the -receivers flag default, so it's indistinguishable from
	// "not given"; a job file always wins for this one field.
	if jf.NumReceivers != 0 && cfg.NumReceivers == 1 {
		cfg.NumReceivers = jf.NumReceivers
	}
	if cfg.Iface == "" && jf.Iface != "" {
		cfg.Iface = jf.Iface
	}
	if cfg.ScratchDir == "" && jf.ScratchDir != "" {
		cfg.ScratchDir = jf.ScratchDir
	}
	if cfg.HistoryDir == "" && jf.HistoryDir != "" {
		cfg.HistoryDir = jf.HistoryDir
	}
}
