// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package elevation

import (
	"errors"
	"fmt"
)

// ErrDeclined means the user dismissed the consent prompt.
var ErrDeclined = errors.New("elevation declined by user")

// ErrUnsupported means this platform has no elevated relaunch.
var ErrUnsupported = errors.New("elevated relaunch not supported on this platform")

// Error reports a failed elevation attempt. The process keeps its
// original, non-administrator capabilities.
type Error struct {
	// Stage is where the attempt failed: "self", "relaunch", or
	// "reconnect".
	Stage string
	Err   error
}

func (e *Error) Error() string {
	return fmt.Sprintf("elevation: %s: %v", e.Stage, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// ErrorCode classifies the error on the activation wire.
func (e *Error) ErrorCode() string { return "elevation" }
