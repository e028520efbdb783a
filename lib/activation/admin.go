// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package activation

import (
	"context"

	"github.com/google/uuid"

	"github.com/bureau-foundation/loopback/lib/elevation"
)

// AdminConnector connects the elevation broker to the admin class over
// this transport.
type AdminConnector struct {
	Client  *Client
	ClassID uuid.UUID
}

// ConnectAdmin activates the admin class. It fails, wrapping
// ErrNotServed, when no elevated server is running.
func (c AdminConnector) ConnectAdmin(ctx context.Context) (elevation.Handle, error) {
	object, err := c.Client.Activate(ctx, c.ClassID)
	if err != nil {
		return nil, err
	}
	return object, nil
}
