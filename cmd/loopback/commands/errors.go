// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"errors"

	"github.com/bureau-foundation/loopback/cmd/loopback/cli"
	"github.com/bureau-foundation/loopback/lib/activation"
)

// categorize turns client errors into categorized command errors.
func categorize(err error) error {
	if err == nil {
		return nil
	}
	var toolError *cli.ToolError
	if errors.As(err, &toolError) {
		return err
	}

	if errors.Is(err, activation.ErrNotServed) {
		return cli.Transient("loopback server is not running: %w", err).
			WithHint("Run without --no-launch, or start loopback-server.")
	}

	var remote *activation.RemoteError
	if !errors.As(err, &remote) {
		return cli.Internal("%w", err)
	}
	switch remote.Code {
	case "invalid":
		return cli.Validation("%s", remote.Message)
	case "not_found":
		return cli.NotFound("%s", remote.Message)
	case "elevation":
		return cli.Forbidden("%s", remote.Message).
			WithHint("Administrator rights are required; accept the elevation prompt.")
	case "draining":
		return cli.Transient("%s", remote.Message).
			WithHint("The server is shutting down; retry in a moment.")
	default:
		return cli.Internal("%w", err)
	}
}
