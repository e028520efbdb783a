// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package appcontainer

import (
	"maps"
	"slices"
)

// SIDSet is a set of SID strings. Membership is exact and
// case-sensitive, the same comparison the isolation API results are
// tested with. The zero value is an empty, usable set for reads; use
// NewSIDSet before calling Add.
type SIDSet map[string]struct{}

// NewSIDSet returns a set containing sids. Duplicates collapse.
func NewSIDSet(sids ...string) SIDSet {
	set := make(SIDSet, len(sids))
	for _, sid := range sids {
		set[sid] = struct{}{}
	}
	return set
}

// Add inserts sid. Adding a member is a no-op.
func (s SIDSet) Add(sid string) { s[sid] = struct{}{} }

// Remove deletes sid. Removing a non-member is a no-op.
func (s SIDSet) Remove(sid string) { delete(s, sid) }

// Contains reports whether sid is a member.
func (s SIDSet) Contains(sid string) bool {
	_, ok := s[sid]
	return ok
}

// Len returns the number of members.
func (s SIDSet) Len() int { return len(s) }

// Clone returns an independent copy. Cloning a nil set yields an empty
// non-nil set.
func (s SIDSet) Clone() SIDSet {
	clone := make(SIDSet, len(s))
	maps.Copy(clone, s)
	return clone
}

// Equal reports whether s and other hold the same members.
func (s SIDSet) Equal(other SIDSet) bool {
	if len(s) != len(other) {
		return false
	}
	for sid := range s {
		if !other.Contains(sid) {
			return false
		}
	}
	return true
}

// Sorted returns the members in lexical order. The isolation API takes
// an array, and a stable order keeps writes reproducible.
func (s SIDSet) Sorted() []string {
	return slices.Sorted(maps.Keys(s))
}
