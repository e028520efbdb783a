// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

//go:build !windows

package netiso

import (
	"fmt"
	"log/slog"
	"runtime"
)

// OpenSystem fails on this platform: the network isolation API exists
// only on Windows.
func OpenSystem(logger *slog.Logger) (Gateway, error) {
	return nil, &QueryError{
		Op:  "load",
		Err: fmt.Errorf("%w on %s", ErrUnavailable, runtime.GOOS),
	}
}
