// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package netiso

import (
	"errors"
	"regexp"
)

// sidPattern accepts the textual SID syntax S-1-<authority>-<sub>...,
// the same shape ConvertStringSidToSid accepts for non-alias SIDs.
var sidPattern = regexp.MustCompile(`^S-1-[0-9]+(-[0-9]+)+$`)

var errMalformedSID = errors.New("malformed SID string")

// ValidSID reports whether s has SID string syntax. The memory gateway
// uses it in place of the OS string-to-SID conversion.
func ValidSID(s string) bool {
	return sidPattern.MatchString(s)
}
