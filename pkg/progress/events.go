// Copyright (C) 2015-2020 the Gprovision Authors. All Rights Reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.
//
// SPDX-License-Identifier: BSD-3-Clause
//

// Package progress publishes the coarse operation-queue state an
// orchestrator run moves through, plus a small HTTP status endpoint for
// observing it while a clone is in flight.
package progress

import "sync"

// Op names one step of the operation queue an orchestrator run publishes
// before it starts working.
type Op string

const (
	OpWaitClients         Op = "WAIT_CLIENTS"
	OpWaitServer          Op = "WAIT_SERVER"
	OpReadPartitionTable  Op = "READ_PARTITION_TABLE"
	OpTransferData        Op = "TRANSFER_DATA"
	OpWritePartitionTable Op = "WRITE_PARTITION_TABLE"
	OpWritePartitionFlags Op = "WRITE_PARTITION_FLAGS"
)

// OpState is one entry's lifecycle: queued until the orchestrator reaches
// it, running while active, done once it completes.
type OpState string

const (
	StateQueued  OpState = "queued"
	StateRunning OpState = "running"
	StateDone    OpState = "done"
)

// Entry is one operation-queue slot as published to the UI.
type Entry struct {
	Op    Op      `json:"op"`
	State OpState `json:"state"`
}

// ConnectionEvent fires whenever a new peer joins the current run
// (EVT_NEW_CONNECTION).
type ConnectionEvent struct {
	PeerIP string `json:"peer_ip"`
}

// Sink is the process-wide, mutex-guarded run state a UI or status
// endpoint reads. Only one clone runs per process, mirroring the
// orchestrator's own single-run-at-a-time model.
type Sink struct {
	mu sync.Mutex

	queue       []Entry
	transferred uint64
	total       uint64
	peers       []string
}

// NewSink returns a Sink with an empty queue.
func NewSink() *Sink { return &Sink{} }

// PublishQueue replaces the operation queue with ops, all marked queued.
func (s *Sink) PublishQueue(ops []Op) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queue = make([]Entry, len(ops))
	for i, op := range ops {
		s.queue[i] = Entry{Op: op, State: StateQueued}
	}
}

// Start marks op running.
func (s *Sink) Start(op Op) { s.setState(op, StateRunning) }

// Complete marks op done.
func (s *Sink) Complete(op Op) { s.setState(op, StateDone) }

func (s *Sink) setState(op Op, state OpState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.queue {
		if s.queue[i].Op == op {
			s.queue[i].State = state
			return
		}
	}
}

// NewConnection records a newly joined peer.
func (s *Sink) NewConnection(peerIP string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.peers = append(s.peers, peerIP)
}

// SetProgress updates the transferred/total byte counters, matching
// pkg/xfer.Hub's OnProgress signature so a Sink can be wired directly in.
func (s *Sink) SetProgress(transferred, total uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.transferred = transferred
	s.total = total
}

// Snapshot is the JSON-serializable view of the current run state.
type Snapshot struct {
	Queue       []Entry  `json:"queue"`
	Transferred uint64   `json:"transferred"`
	Total       uint64   `json:"total"`
	Peers       []string `json:"peers"`
}

func (s *Sink) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	queue := make([]Entry, len(s.queue))
	copy(queue, s.queue)
	peers := make([]string, len(s.peers))
	copy(peers, s.peers)
	return Snapshot{Queue: queue, Transferred: s.transferred, Total: s.total, Peers: peers}
}
