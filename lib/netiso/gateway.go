// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package netiso

import (
	"errors"
	"fmt"

	"github.com/bureau-foundation/loopback/lib/appcontainer"
)

// Gateway is the boundary to the OS-maintained app container list and
// loopback exemption configuration.
type Gateway interface {
	// Enumerate returns every app container known to the system. The
	// returned records have LoopbackEnabled unset; tagging is the
	// caller's job.
	Enumerate() ([]appcontainer.Record, error)

	// ExemptSIDs returns the SIDs currently exempt from loopback
	// isolation. Failure yields an empty set.
	ExemptSIDs() appcontainer.SIDSet

	// SetExemptSIDs replaces the exemption list with sids. It is not
	// additive: SIDs absent from sids lose their exemption.
	SetExemptSIDs(sids appcontainer.SIDSet) error

	// Close releases resources held by the gateway.
	Close() error
}

// ErrUnavailable is wrapped by the QueryError returned when the
// isolation library or one of its symbols cannot be resolved.
var ErrUnavailable = errors.New("network isolation API unavailable")

// QueryError reports a failed call into the isolation API.
type QueryError struct {
	// Op is the API call or phase that failed.
	Op string

	// Status is the non-success return code, when the call returned
	// one.
	Status uint32

	// Err is the underlying cause, when there is one.
	Err error
}

func (e *QueryError) Error() string {
	switch {
	case e.Err != nil:
		return fmt.Sprintf("netiso: %s: %v", e.Op, e.Err)
	default:
		return fmt.Sprintf("netiso: %s returned status %d", e.Op, e.Status)
	}
}

func (e *QueryError) Unwrap() error { return e.Err }

// ErrorCode classifies the error on the activation wire.
func (e *QueryError) ErrorCode() string { return "os_query" }

// ConversionError reports a SID that could not be converted between its
// native and string forms. The affected entry is skipped.
type ConversionError struct {
	// Field names what the SID was (container, user, capability,
	// exemption).
	Field string

	// SID is the string form when converting from string, otherwise
	// empty.
	SID string

	Err error
}

func (e *ConversionError) Error() string {
	if e.SID != "" {
		return fmt.Sprintf("netiso: converting %s SID %q: %v", e.Field, e.SID, e.Err)
	}
	return fmt.Sprintf("netiso: converting %s SID: %v", e.Field, e.Err)
}

func (e *ConversionError) Unwrap() error { return e.Err }

// ErrorCode classifies the error on the activation wire.
func (e *ConversionError) ErrorCode() string { return "conversion" }
