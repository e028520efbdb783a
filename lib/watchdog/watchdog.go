// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package watchdog

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/bureau-foundation/loopback/lib/binhash"
)

// State is one relaunch request.
type State struct {
	// Component names the requesting side, for logs.
	Component string `json:"component"`

	// Executable is the absolute path handed to the OS for relaunch.
	Executable string `json:"executable"`

	// Digest is the hex BLAKE3 digest of Executable at request time.
	// Empty when hashing failed.
	Digest string `json:"digest,omitempty"`

	// RequestedBy is the pid of the requesting process.
	RequestedBy int `json:"requested_by"`

	// Timestamp is when the relaunch was requested.
	Timestamp time.Time `json:"timestamp"`
}

// Match is the result of comparing a State against the running binary.
type Match int

const (
	// MatchSame means the running binary is the requested one.
	MatchSame Match = iota

	// MatchDigestDiffers means the path matches but the content
	// changed since the request.
	MatchDigestDiffers

	// MatchOtherExecutable means a different binary is running.
	MatchOtherExecutable
)

func (m Match) String() string {
	switch m {
	case MatchSame:
		return "same"
	case MatchDigestDiffers:
		return "digest-differs"
	case MatchOtherExecutable:
		return "other-executable"
	default:
		return fmt.Sprintf("Match(%d)", int(m))
	}
}

// Verify compares the record with the running executable and its
// digest. A record without a digest matches on path alone; one whose
// digest does not parse never matches on content.
func (s State) Verify(executable string, digest binhash.Digest) Match {
	if filepath.Clean(s.Executable) != filepath.Clean(executable) {
		return MatchOtherExecutable
	}
	if s.Digest == "" {
		return MatchSame
	}
	recorded, err := binhash.ParseDigest(s.Digest)
	if err != nil || recorded != digest {
		return MatchDigestDiffers
	}
	return MatchSame
}

// Write atomically replaces the record at path. The file is created
// with mode 0600; the parent directory must exist.
func Write(path string, state State) error {
	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling handoff state: %w", err)
	}
	data = append(data, '\n')

	temporaryPath := path + ".tmp"
	file, err := os.OpenFile(temporaryPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("creating temporary handoff file: %w", err)
	}

	if _, err := file.Write(data); err != nil {
		file.Close()
		os.Remove(temporaryPath)
		return fmt.Errorf("writing temporary handoff file: %w", err)
	}
	if err := file.Sync(); err != nil {
		file.Close()
		os.Remove(temporaryPath)
		return fmt.Errorf("syncing temporary handoff file: %w", err)
	}
	if err := file.Close(); err != nil {
		os.Remove(temporaryPath)
		return fmt.Errorf("closing temporary handoff file: %w", err)
	}

	if err := os.Rename(temporaryPath, path); err != nil {
		os.Remove(temporaryPath)
		return fmt.Errorf("renaming handoff file into place: %w", err)
	}

	if parent, err := os.Open(filepath.Dir(path)); err == nil {
		parent.Sync()
		parent.Close()
	}
	return nil
}

// Read parses the record at path. A missing file yields an error
// wrapping os.ErrNotExist.
func Read(path string) (State, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return State{}, err
	}

	var state State
	if err := json.Unmarshal(data, &state); err != nil {
		return State{}, fmt.Errorf("parsing handoff file %s: %w", path, err)
	}
	return state, nil
}

// Check returns the record at path and true when it exists and was
// written no more than maxAge before now. A missing or stale record
// returns false with no error; an unreadable one returns the error.
func Check(path string, now time.Time, maxAge time.Duration) (State, bool, error) {
	state, err := Read(path)
	if err != nil {
		if os.IsNotExist(err) {
			return State{}, false, nil
		}
		return State{}, false, err
	}

	if now.Sub(state.Timestamp) > maxAge {
		return State{}, false, nil
	}
	return state, true, nil
}

// Clear removes the record. A missing file is not an error.
func Clear(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing handoff file: %w", err)
	}
	return nil
}
