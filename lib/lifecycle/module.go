// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package lifecycle

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// Token identifies one class registration within a Module.
type Token uint64

// Module accepts activation requests for registered class ids and
// routes them to the registered ClassObject.
type Module interface {
	// Register starts serving classID. Activation requests for it go to
	// object until the returned token is revoked.
	Register(classID uuid.UUID, object ClassObject) (Token, error)

	// Revoke stops serving the registration named by token.
	Revoke(token Token) error
}

// ClassObject creates instances of one class. Server implements it for
// every registered Factory.
type ClassObject interface {
	ClassID() uuid.UUID

	// CreateInstance activates a new instance and holds one server
	// reference until the returned Activation is released.
	CreateInstance(ctx context.Context) (*Activation, error)

	// LockServer adds (true) or drops (false) a server reference not
	// tied to any instance.
	LockServer(lock bool)
}

// Instance is an activated object. Invoke runs one method; raw is the
// full encoded request, from which the method decodes its own fields.
type Instance interface {
	Invoke(ctx context.Context, method string, raw []byte) (any, error)
}

// Factory describes one class served by the process.
type Factory struct {
	ClassID uuid.UUID

	// Name is used in logs and errors.
	Name string

	// New creates an instance. It may return a shared instance.
	New func(ctx context.Context) (Instance, error)
}

// RegistrationError reports a class that could not be registered.
// A server that fails to register cannot serve and should exit.
type RegistrationError struct {
	ClassID uuid.UUID
	Name    string
	Err     error
}

func (e *RegistrationError) Error() string {
	return fmt.Sprintf("registering class %s (%s): %v", e.Name, e.ClassID, e.Err)
}

func (e *RegistrationError) Unwrap() error { return e.Err }

// ErrDraining refuses activations once the server has started shutting
// down.
var ErrDraining error = drainingError{}

type drainingError struct{}

func (drainingError) Error() string { return "lifecycle: server is shutting down" }

// ErrorCode classifies the error on the activation wire.
func (drainingError) ErrorCode() string { return "draining" }
