// Copyright (C) 2015-2020 the Gprovision Authors. All Rights Reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.
//
// SPDX-License-Identifier: BSD-3-Clause
//

/* Package history keeps a small JSON-backed record of past clone runs
(attempts, failures and notes per image and direction), so repeated
invocations against the same image can refuse one whose recorded failures
exceed MaxFailuresPerImage. It does not detect whether a target is already
cloned.
*/
package history

import (
	"encoding/json"
	"fmt"
	"os"
	fp "path/filepath"
	"time"

	"github.com/clonewave/imgclone/pkg/log"
)

const fileName = "clone_history.json"

// MaxFailuresPerImage is the max allowed run failures recorded against a
// single image before Check reports it as no longer trustworthy.
var MaxFailuresPerImage uint = 5

// Direction is which side of a clone a Record describes.
type Direction string

const (
	DirectionSend    Direction = "send"
	DirectionReceive Direction = "receive"
)

// Run is one past clone attempt against a given image.
type Run struct {
	Image     string
	Direction Direction
	Attempts  uint `json:",omitempty"`
	Failures  uint `json:",omitempty"`
	Notes     []string `json:",omitempty"` // timestamp + outcome, most recent last
}

// RunList is a slice of *Run kept most-recently-touched first.
type RunList []*Run

type serializationFmt struct {
	Runs RunList
}

// Store reads and writes a clone_history.json file rooted at one
// directory. It is not safe for concurrent use from multiple goroutines.
type Store struct {
	path string
	runs RunList
}

// Open returns a Store rooted at dir, creating dir if needed. It does not
// itself read dir's history file; call Load for that.
func Open(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0777); err != nil {
		return nil, fmt.Errorf("creating history dir %s: %w", dir, err)
	}
	return &Store{path: fp.Join(dir, fileName)}, nil
}

// Load reads the history file, if any. A missing file is not an error: a
// fresh Store with no runs is the correct starting state for a target that
// has never been cloned before.
func (s *Store) Load() error {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("reading %s: %w", s.path, err)
	}
	var content serializationFmt
	if err := json.Unmarshal(data, &content); err != nil {
		bad := s.path + ".bad"
		log.Logf("history: %s is corrupt (%v), moving aside to %s", s.path, err, bad)
		return os.Rename(s.path, bad)
	}
	s.runs = content.Runs
	return nil
}

func (s *Store) write() error {
	data, err := json.Marshal(serializationFmt{Runs: s.runs})
	if err != nil {
		return fmt.Errorf("marshaling history: %w", err)
	}
	return os.WriteFile(s.path, data, 0644)
}

// Check reports whether image still looks safe to clone: false once its
// recorded failure count exceeds MaxFailuresPerImage. An image with no
// recorded runs is always fine.
func (s *Store) Check(image string) bool {
	for _, r := range s.runs {
		if r.Image == image {
			return r.Failures <= MaxFailuresPerImage
		}
	}
	return true
}

// Record appends one run outcome for image/direction and persists the
// store. success false increments the run's failure count.
func (s *Store) Record(image string, dir Direction, success bool, at time.Time, note string) error {
	var run *Run
	for _, r := range s.runs {
		if r.Image == image && r.Direction == dir {
			run = r
			break
		}
	}
	if run == nil {
		run = &Run{Image: image, Direction: dir}
	}
	run.Attempts++
	entry := fmt.Sprintf("%s @ %s, success: %t", dir, at.Format(time.RFC3339), success)
	if !success {
		run.Failures++
		if note != "" {
			entry += ", notes: " + note
		}
	}
	run.Notes = append(run.Notes, entry)
	s.runs.moveOrAddFront(run)
	return s.write()
}

// Runs returns a copy of the currently loaded run records, most recently
// touched first.
func (s *Store) Runs() RunList {
	out := make(RunList, len(s.runs))
	copy(out, s.runs)
	return out
}

// moveOrAddFront moves item to the front of rl if present, otherwise
// inserts it at the front.
func (rl *RunList) moveOrAddFront(item *Run) {
	for i := range *rl {
		if (*rl)[i] == item {
			copy((*rl)[i:], (*rl)[i+1:])
			(*rl)[len(*rl)-1] = nil
			*rl = (*rl)[:len(*rl)-1]
			break
		}
	}
	l := &RunList{item}
	*rl = append(*l, (*rl)...)
}
