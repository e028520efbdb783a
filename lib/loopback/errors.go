// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package loopback

// ErrInvalidSID rejects an empty or malformed SID before anything is
// written.
var ErrInvalidSID error = codedError{code: "invalid", message: "loopback: invalid SID"}

// ErrNotFound is returned by Lookup for a SID absent from the cache.
var ErrNotFound error = codedError{code: "not_found", message: "loopback: no such app container"}

type codedError struct {
	code    string
	message string
}

func (e codedError) Error() string { return e.message }

// ErrorCode classifies the error on the activation wire.
func (e codedError) ErrorCode() string { return e.code }
