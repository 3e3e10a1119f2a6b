// Copyright (C) 2015-2020 the Gprovision Authors. All Rights Reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.
//
// SPDX-License-Identifier: BSD-3-Clause
//

// Package imgerr defines the error kinds shared by every component of the
// image-transport engine, so the orchestrator can tell a recoverable
// Warning from an error that must unwind the whole run.
package imgerr

import (
	"errors"
	"fmt"
)

// Kind classifies an Error. The zero value is never used directly.
type Kind int

const (
	_ Kind = iota
	Connection
	ReadData
	WriteData
	SendData
	ReceiveData
	CreateImage
	RestoreImage
	InvalidImage
	NoBlockDevice
	Mount
	Umount
	Format
	FileNotFound
	Cancel
	// Warning is the super-category for recoverable conditions: a single
	// sink dropping from the transfer hub's sink set, a Warning is logged
	// and the run continues.
	Warning
)

func (k Kind) String() string {
	switch k {
	case Connection:
		return "Connection"
	case ReadData:
		return "ReadData"
	case WriteData:
		return "WriteData"
	case SendData:
		return "SendData"
	case ReceiveData:
		return "ReceiveData"
	case CreateImage:
		return "CreateImage"
	case RestoreImage:
		return "RestoreImage"
	case InvalidImage:
		return "InvalidImage"
	case NoBlockDevice:
		return "NoBlockDevice"
	case Mount:
		return "Mount"
	case Umount:
		return "Umount"
	case Format:
		return "Format"
	case FileNotFound:
		return "FileNotFound"
	case Cancel:
		return "Cancel"
	case Warning:
		return "Warning"
	default:
		return "Unknown"
	}
}

// Error wraps a Kind with a message and an optional underlying cause.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %s", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// Is reports whether target is an *Error with the same Kind, so callers can
// write errors.Is(err, imgerr.New(imgerr.Cancel, "")).
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return t.Kind == e.Kind
	}
	return false
}

// New builds an Error of the given kind.
func New(k Kind, msg string) *Error {
	return &Error{Kind: k, Message: msg}
}

// Wrap builds an Error of the given kind around cause.
func Wrap(k Kind, msg string, cause error) *Error {
	return &Error{Kind: k, Message: msg, Cause: cause}
}

// Newf is like New but with fmt.Sprintf-style formatting.
func Newf(k Kind, format string, va ...interface{}) *Error {
	return &Error{Kind: k, Message: fmt.Sprintf(format, va...)}
}

// OfKind is a sentinel usable with errors.Is: errors.Is(err, imgerr.OfKind(Cancel)).
func OfKind(k Kind) error { return &Error{Kind: k} }

// KindOf extracts the Kind from err, if it (or something it wraps) is an
// *Error. The second return is false otherwise.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return 0, false
}

// IsWarning reports whether err is a Warning-kind Error - recoverable,
// should be logged and swallowed rather than unwinding the run.
func IsWarning(err error) bool {
	k, ok := KindOf(err)
	return ok && k == Warning
}

// IsCancel reports whether err represents cooperative cancellation.
func IsCancel(err error) bool {
	k, ok := KindOf(err)
	return ok && k == Cancel
}
