// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/loopback/cmd/loopback/cli"
	"github.com/bureau-foundation/loopback/lib/activation"
	"github.com/bureau-foundation/loopback/lib/loopbackserver"
)

func adminCommand(stdout io.Writer) *cli.Command {
	var (
		conn   connection
		output cli.JSONOutput
	)
	return &cli.Command{
		Name:    "admin",
		Summary: "Start or locate the elevated server",
		Description: `Ask the server for an elevated admin server, relaunching it with
administrator rights when none is running. The admin server stays up
while the non-elevated server holds it.`,
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("admin", pflag.ContinueOnError)
			conn.AddFlags(flagSet)
			output.AddFlag(flagSet)
			return flagSet
		},
		Run: func(ctx context.Context, args []string, logger *slog.Logger) error {
			if len(args) > 0 {
				return cli.Validation("unexpected arguments: %v", args)
			}
			client, err := conn.client(logger, true)
			if err != nil {
				return err
			}
			defer client.Close(ctx)

			manager, err := client.ServerManager(ctx)
			if err != nil {
				return categorize(err)
			}
			admin, err := manager.RequestAdminInstance(ctx)
			if err != nil {
				return categorize(err)
			}
			if done, err := output.Emit(stdout, admin); done {
				return err
			}
			fmt.Fprintf(stdout, "admin server running (pid %d)\n", admin.PID)
			return nil
		},
	}
}

// serverStatus is the status command's result.
type serverStatus struct {
	Running  bool   `json:"running"`
	Class    string `json:"class,omitempty"`
	PID      int    `json:"pid,omitempty"`
	State    string `json:"state,omitempty"`
	RefCount int    `json:"ref_count,omitempty"`
	Elevated bool   `json:"elevated"`
}

func statusCommand(stdout io.Writer) *cli.Command {
	var (
		conn   connection
		output cli.JSONOutput
		admin  bool
	)
	return &cli.Command{
		Name:    "status",
		Summary: "Report whether the server is running",
		Description: `Report whether the server is running, without starting it. Exits 1
when it is not running.`,
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("status", pflag.ContinueOnError)
			conn.AddFlags(flagSet)
			output.AddFlag(flagSet)
			flagSet.BoolVar(&admin, "admin", false, "report on the elevated server instead")
			return flagSet
		},
		Run: func(ctx context.Context, args []string, logger *slog.Logger) error {
			if len(args) > 0 {
				return cli.Validation("unexpected arguments: %v", args)
			}
			client, err := conn.client(logger, false)
			if err != nil {
				return err
			}

			classID := loopbackserver.ServerManager
			if admin {
				classID = loopbackserver.ServerManagerAdmin
			}
			manager, err := client.Activate(ctx, classID)
			if errors.Is(err, activation.ErrNotServed) {
				status := serverStatus{Running: false}
				if done, err := output.Emit(stdout, status); done {
					if err != nil {
						return err
					}
					return &cli.ExitError{Code: 1}
				}
				fmt.Fprintf(stdout, "%s: not running\n", loopbackserver.ClassName(classID))
				return &cli.ExitError{Code: 1}
			}
			if err != nil {
				return categorize(err)
			}
			defer manager.Release(ctx)

			running, err := manager.IsServerRunning(ctx)
			if err != nil {
				return categorize(err)
			}
			elevated, err := manager.IsRunAsAdministrator(ctx)
			if err != nil {
				return categorize(err)
			}
			status := serverStatus{
				Running:  running.Running,
				Class:    manager.ClassName(),
				PID:      running.PID,
				State:    running.State,
				RefCount: running.RefCount,
				Elevated: elevated,
			}
			if done, err := output.Emit(stdout, status); done {
				return err
			}
			fmt.Fprintf(stdout, "%s: running (pid %d, %s, %d reference(s), elevated=%v)\n",
				status.Class, status.PID, status.State, status.RefCount, status.Elevated)
			return nil
		},
	}
}

func shutdownCommand(stdout io.Writer) *cli.Command {
	var (
		conn  connection
		admin bool
	)
	return &cli.Command{
		Name:    "shutdown",
		Summary: "Ask the server to exit",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("shutdown", pflag.ContinueOnError)
			conn.AddFlags(flagSet)
			flagSet.BoolVar(&admin, "admin", false, "stop the elevated server instead")
			return flagSet
		},
		Run: func(ctx context.Context, args []string, logger *slog.Logger) error {
			if len(args) > 0 {
				return cli.Validation("unexpected arguments: %v", args)
			}
			client, err := conn.client(logger, false)
			if err != nil {
				return err
			}

			classID := loopbackserver.ServerManager
			if admin {
				classID = loopbackserver.ServerManagerAdmin
			}
			manager, err := client.Activate(ctx, classID)
			if errors.Is(err, activation.ErrNotServed) {
				fmt.Fprintf(stdout, "%s: not running\n", loopbackserver.ClassName(classID))
				return nil
			}
			if err != nil {
				return categorize(err)
			}
			defer manager.Release(ctx)

			delay, err := manager.Shutdown(ctx)
			if err != nil {
				return categorize(err)
			}
			fmt.Fprintf(stdout, "%s (pid %d) stopping in %s\n", manager.ClassName(), manager.PID(), delay)
			return nil
		},
	}
}
