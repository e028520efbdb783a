// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package lifecycle

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// Activation is one activated instance and the server reference it
// holds.
type Activation struct {
	ID       uuid.UUID
	ClassID  uuid.UUID
	Instance Instance

	server  *Server
	release sync.Once
}

// Release drops the server reference held by the activation. Only the
// first call has an effect.
func (a *Activation) Release() {
	a.release.Do(a.server.Release)
}

type classObject struct {
	server  *Server
	factory Factory
}

func (o *classObject) ClassID() uuid.UUID { return o.factory.ClassID }

func (o *classObject) CreateInstance(ctx context.Context) (*Activation, error) {
	if o.server.State() >= Draining {
		return nil, ErrDraining
	}

	instance, err := o.factory.New(ctx)
	if err != nil {
		return nil, fmt.Errorf("creating %s instance: %w", o.factory.Name, err)
	}

	// The reference is taken only after the instance exists, so a
	// failed construction never moves the count.
	if err := o.server.AddRef(); err != nil {
		return nil, err
	}

	activation := &Activation{
		ID:       uuid.New(),
		ClassID:  o.factory.ClassID,
		Instance: instance,
		server:   o.server,
	}
	o.server.logger.Debug("instance activated",
		"class", o.factory.Name,
		"activation", activation.ID,
	)
	return activation, nil
}

func (o *classObject) LockServer(lock bool) {
	if !lock {
		o.server.Release()
		return
	}
	if err := o.server.AddRef(); err != nil {
		o.server.logger.Debug("lock refused", "class", o.factory.Name, "error", err)
	}
}
