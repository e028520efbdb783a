// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package netiso

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"slices"
	"sync"

	"github.com/tidwall/jsonc"

	"github.com/bureau-foundation/loopback/lib/appcontainer"
)

// Seed is the JSONC document accepted by LoadMemory:
//
//	{
//	  // enumerated containers
//	  "containers": [
//	    {"display_name": "Mail", "container_sid": "S-1-15-2-...", ...},
//	  ],
//	  // current exemption list
//	  "exempt": ["S-1-15-2-..."],
//	}
type Seed struct {
	Containers []appcontainer.Record `json:"containers"`
	Exempt     []string              `json:"exempt"`
}

// Memory is an in-process Gateway. SID strings that do not have SID
// syntax are treated the way the OS treats unconvertible SIDs: the
// entry is skipped. Memory is safe for concurrent use.
type Memory struct {
	logger *slog.Logger

	mu         sync.Mutex
	containers []appcontainer.Record
	exempt     []string
	writes     [][]string

	enumerateErr error
	writeErr     error
	readFails    bool
}

// NewMemory returns a Memory gateway holding seed.
func NewMemory(seed Seed, logger *slog.Logger) *Memory {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Memory{
		logger:     logger,
		containers: appcontainer.CloneAll(seed.Containers),
		exempt:     slices.Clone(seed.Exempt),
	}
}

// LoadMemory reads a JSONC seed file (comments and trailing commas
// allowed) and returns a Memory gateway holding it.
func LoadMemory(path string, logger *slog.Logger) (*Memory, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading isolation seed: %w", err)
	}
	var seed Seed
	if err := json.Unmarshal(jsonc.ToJSON(data), &seed); err != nil {
		return nil, fmt.Errorf("parsing isolation seed %s: %w", path, err)
	}
	return NewMemory(seed, logger), nil
}

// Enumerate returns the seeded containers with unconvertible SIDs
// dropped.
func (m *Memory) Enumerate() ([]appcontainer.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.enumerateErr != nil {
		return nil, &QueryError{Op: "NetworkIsolationEnumAppContainers", Err: m.enumerateErr}
	}

	records := make([]appcontainer.Record, 0, len(m.containers))
	for _, container := range m.containers {
		if !ValidSID(container.ContainerSID) {
			m.skip(&ConversionError{Field: "container", SID: container.ContainerSID, Err: errMalformedSID})
			continue
		}
		record := container.WithLoopback(false)
		if record.UserSID != "" && !ValidSID(record.UserSID) {
			m.skip(&ConversionError{Field: "user", SID: record.UserSID, Err: errMalformedSID})
			record.UserSID = ""
		}
		record.Capabilities = slices.DeleteFunc(record.Capabilities, func(sid string) bool {
			if ValidSID(sid) {
				return false
			}
			m.skip(&ConversionError{Field: "capability", SID: sid, Err: errMalformedSID})
			return true
		})
		records = append(records, record)
	}
	return records, nil
}

// ExemptSIDs returns the current exemption list.
func (m *Memory) ExemptSIDs() appcontainer.SIDSet {
	m.mu.Lock()
	defer m.mu.Unlock()

	set := appcontainer.NewSIDSet()
	if m.readFails {
		return set
	}
	for _, sid := range m.exempt {
		if !ValidSID(sid) {
			m.skip(&ConversionError{Field: "exemption", SID: sid, Err: errMalformedSID})
			continue
		}
		set.Add(sid)
	}
	return set
}

// SetExemptSIDs replaces the exemption list.
func (m *Memory) SetExemptSIDs(sids appcontainer.SIDSet) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.writeErr != nil {
		return &QueryError{Op: "NetworkIsolationSetAppContainerConfig", Err: m.writeErr}
	}

	written := make([]string, 0, sids.Len())
	for _, sid := range sids.Sorted() {
		if !ValidSID(sid) {
			m.skip(&ConversionError{Field: "exemption", SID: sid, Err: errMalformedSID})
			continue
		}
		written = append(written, sid)
	}
	m.exempt = written
	m.writes = append(m.writes, slices.Clone(written))
	return nil
}

// Close is a no-op.
func (m *Memory) Close() error { return nil }

// Writes returns every list passed to SetExemptSIDs, oldest first.
func (m *Memory) Writes() [][]string {
	m.mu.Lock()
	defer m.mu.Unlock()
	writes := make([][]string, len(m.writes))
	for i, write := range m.writes {
		writes[i] = slices.Clone(write)
	}
	return writes
}

// ReplaceExempt overwrites the list without recording a write, the way
// another process editing the configuration would.
func (m *Memory) ReplaceExempt(sids ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.exempt = slices.Clone(sids)
}

// ReplaceContainers overwrites the enumerated containers.
func (m *Memory) ReplaceContainers(records ...appcontainer.Record) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.containers = appcontainer.CloneAll(records)
}

// FailEnumerate makes Enumerate fail with err until called with nil.
func (m *Memory) FailEnumerate(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.enumerateErr = err
}

// FailWrite makes SetExemptSIDs fail with err until called with nil.
func (m *Memory) FailWrite(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.writeErr = err
}

// FailRead makes ExemptSIDs return an empty set while fail is true.
func (m *Memory) FailRead(fail bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.readFails = fail
}

func (m *Memory) skip(err *ConversionError) {
	m.logger.Debug("skipping unconvertible SID", "error", err)
}
