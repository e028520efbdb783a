// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package activation

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/bureau-foundation/loopback/lib/codec"
)

// Reserved actions handled by the host.
const (
	ActionActivate   = "activate"
	ActionRelease    = "release"
	ActionLockServer = "lock_server"
	ActionPing       = "ping"
)

// Error codes produced by the host itself.
const (
	CodeInvalid  = "invalid"
	CodeNotFound = "not_found"
	CodeInternal = "internal"
)

// Response is the wire envelope for every response.
type Response struct {
	OK    bool             `cbor:"ok"`
	Error string           `cbor:"error,omitempty"`
	Code  string           `cbor:"code,omitempty"`
	Data  codec.RawMessage `cbor:"data,omitempty"`
}

// ActivateResult is the data of a successful activate.
type ActivateResult struct {
	Instance string `cbor:"instance"`
	ClassID  string `cbor:"class_id"`
	PID      int    `cbor:"pid"`
}

// PingResult is the data of a successful ping.
type PingResult struct {
	PID int `cbor:"pid"`
}

// SocketPath returns the socket serving classID under runDir.
func SocketPath(runDir string, classID uuid.UUID) string {
	return filepath.Join(runDir, strings.ToLower(classID.String())+".sock")
}

// ErrAlreadyRegistered is returned by Host.Register when a live process
// already serves the class.
var ErrAlreadyRegistered = errors.New("activation: class already served by another process")

// ErrNotServed is returned by Client calls when no process serves the
// class.
var ErrNotServed = errors.New("activation: class not served")

// RemoteError is a failure reported by the serving process.
type RemoteError struct {
	Action  string
	Code    string
	Message string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("%s failed (%s): %s", e.Action, e.Code, e.Message)
}

// ErrorCode returns the code reported by the server, so a RemoteError
// forwarded by an intermediate server keeps its classification.
func (e *RemoteError) ErrorCode() string { return e.Code }

// errorCode classifies err for the response envelope.
func errorCode(err error) string {
	var coded interface{ ErrorCode() string }
	if errors.As(err, &coded) {
		return coded.ErrorCode()
	}
	return CodeInternal
}

// protocolError is a malformed or unroutable request.
type protocolError struct {
	code    string
	message string
}

func (e *protocolError) Error() string     { return e.message }
func (e *protocolError) ErrorCode() string { return e.code }

func invalidRequest(format string, args ...any) error {
	return &protocolError{code: CodeInvalid, message: fmt.Sprintf(format, args...)}
}
