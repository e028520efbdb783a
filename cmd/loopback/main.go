// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// loopback is the command-line client of loopback-server: it lists app
// containers and edits the loopback exemption list, starting the server
// when it is not running.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/bureau-foundation/loopback/cmd/loopback/cli"
	"github.com/bureau-foundation/loopback/cmd/loopback/commands"
)

func main() {
	if err := run(); err != nil {
		os.Exit(report(err))
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return commands.Root(os.Stdout).Execute(ctx, os.Args[1:])
}

// report prints err unless the command already reported it, and
// returns the exit code.
func report(err error) int {
	var exitError *cli.ExitError
	if errors.As(err, &exitError) {
		return exitError.ExitCode()
	}
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	var toolError *cli.ToolError
	if errors.As(err, &toolError) {
		return toolError.ExitCode()
	}
	return 1
}
