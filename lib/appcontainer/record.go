// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package appcontainer

import "slices"

// Record is one app container as reported by the network isolation API.
type Record struct {
	DisplayName      string   `json:"display_name"`
	Description      string   `json:"description,omitempty"`
	ContainerName    string   `json:"container_name"`
	PackageFullName  string   `json:"package_full_name,omitempty"`
	WorkingDirectory string   `json:"working_directory,omitempty"`
	ContainerSID     string   `json:"container_sid"`
	UserSID          string   `json:"user_sid,omitempty"`
	Capabilities     []string `json:"capabilities,omitempty"`
	Binaries         []string `json:"binaries,omitempty"`
	LoopbackEnabled  bool     `json:"loopback_enabled"`
}

// WithLoopback returns a copy of r with LoopbackEnabled set to enabled.
// The copy shares no slices with r.
func (r Record) WithLoopback(enabled bool) Record {
	clone := r.Clone()
	clone.LoopbackEnabled = enabled
	return clone
}

// Clone returns a deep copy of r.
func (r Record) Clone() Record {
	r.Capabilities = slices.Clone(r.Capabilities)
	r.Binaries = slices.Clone(r.Binaries)
	return r
}

// Tag returns copies of records with LoopbackEnabled set according to
// membership of each ContainerSID in exempt.
func Tag(records []Record, exempt SIDSet) []Record {
	tagged := make([]Record, len(records))
	for i, record := range records {
		tagged[i] = record.WithLoopback(exempt.Contains(record.ContainerSID))
	}
	return tagged
}

// CloneAll deep-copies a slice of records.
func CloneAll(records []Record) []Record {
	if records == nil {
		return nil
	}
	clones := make([]Record, len(records))
	for i, record := range records {
		clones[i] = record.Clone()
	}
	return clones
}
