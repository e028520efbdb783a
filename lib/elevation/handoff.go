// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package elevation

import (
	"fmt"
	"time"

	"github.com/bureau-foundation/loopback/lib/binhash"
	"github.com/bureau-foundation/loopback/lib/watchdog"
)

// HandoffMaxAge bounds how old a handoff record may be and still count
// as the request that started this process. It covers a consent prompt
// left open for a while.
const HandoffMaxAge = 2 * time.Minute

// Handoff describes how an elevated process came to be started.
type Handoff struct {
	// Found is false when no recent record exists.
	Found bool

	// Request is the record written by the requesting process.
	Request watchdog.State

	// Match compares the requested binary with executable.
	Match watchdog.Match
}

// ConsumeHandoff reads the record at path, compares it with executable,
// and removes it. A missing or stale record yields Found == false.
func ConsumeHandoff(path string, now time.Time, executable string) (Handoff, error) {
	state, found, err := watchdog.Check(path, now, HandoffMaxAge)
	if err != nil {
		return Handoff{}, fmt.Errorf("reading elevation handoff: %w", err)
	}
	if err := watchdog.Clear(path); err != nil {
		return Handoff{}, err
	}
	if !found {
		return Handoff{}, nil
	}

	// An unhashable binary leaves digest zero, which no recorded
	// digest matches.
	digest, _ := binhash.HashFile(executable)
	return Handoff{
		Found:   true,
		Request: state,
		Match:   state.Verify(executable, digest),
	}, nil
}
