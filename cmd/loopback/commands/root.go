// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package commands builds the loopback CLI command tree.
package commands

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/bureau-foundation/loopback/cmd/loopback/cli"
	"github.com/bureau-foundation/loopback/lib/version"
)

// Root returns the loopback command tree writing results to stdout.
func Root(stdout io.Writer) *cli.Command {
	return &cli.Command{
		Name: "loopback",
		Description: `loopback: manage the loopback exemption list for Windows app containers.

App containers cannot connect to services on localhost unless their SID
is on the system loopback exemption list. This tool lists containers,
edits the list, and manages the loopback-server that does the work.`,
		Subcommands: []*cli.Command{
			listCommand(stdout),
			showCommand(stdout),
			addCommand(stdout),
			removeCommand(stdout),
			setCommand(stdout),
			adminCommand(stdout),
			statusCommand(stdout),
			shutdownCommand(stdout),
			{
				Name:    "version",
				Summary: "Print version information",
				Run: func(context.Context, []string, *slog.Logger) error {
					fmt.Fprintf(stdout, "loopback %s\n", version.Full())
					return nil
				},
			},
		},
		Examples: []cli.Example{
			{
				Description: "List app containers with loopback enabled or not",
				Command:     "loopback list",
			},
			{
				Description: "Allow an app container to reach localhost (prompts for elevation)",
				Command:     "loopback add --admin S-1-15-2-1609473798-1231923017-684268153-4268514328-882773646-2760585773-1760938157",
			},
			{
				Description: "Replace the list from a JSONC file",
				Command:     "loopback set --admin --file exemptions.jsonc",
			},
		},
	}
}
