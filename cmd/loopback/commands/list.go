// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"text/tabwriter"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/loopback/cmd/loopback/cli"
	"github.com/bureau-foundation/loopback/lib/appcontainer"
)

func listCommand(stdout io.Writer) *cli.Command {
	var (
		conn   connection
		output cli.JSONOutput
		filter string
		cached bool
	)
	return &cli.Command{
		Name:    "list",
		Summary: "List app containers and their loopback state",
		Description: `List every app container on the system with its loopback state.

By default the server re-reads the container list and the exemption
list. --cached returns the server's last snapshot instead.`,
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("list", pflag.ContinueOnError)
			conn.AddFlags(flagSet)
			output.AddFlag(flagSet)
			flagSet.StringVar(&filter, "filter", "", "only containers whose display name contains this text (case-insensitive)")
			flagSet.BoolVar(&cached, "cached", false, "use the server's cached snapshot instead of re-enumerating")
			return flagSet
		},
		Examples: []cli.Example{
			{Description: "Find the Mail app", Command: "loopback list --filter mail"},
		},
		Run: func(ctx context.Context, args []string, logger *slog.Logger) error {
			if len(args) > 0 {
				return cli.Validation("unexpected arguments: %v", args)
			}
			client, err := conn.client(logger, true)
			if err != nil {
				return err
			}

			var records []appcontainer.Record
			if cached {
				containers, err := client.AppContainers(ctx)
				if err != nil {
					return categorize(err)
				}
				defer containers.Release(ctx)
				records, err = containers.List(ctx, filter)
				if err != nil {
					return categorize(err)
				}
			} else {
				loopUtil, err := client.LoopUtil(ctx)
				if err != nil {
					return categorize(err)
				}
				defer loopUtil.Release(ctx)
				records, err = loopUtil.ListAppContainers(ctx, filter)
				if err != nil {
					return categorize(err)
				}
			}

			if done, err := output.Emit(stdout, records); done {
				return err
			}
			return writeTable(stdout, records)
		},
	}
}

func writeTable(w io.Writer, records []appcontainer.Record) error {
	if len(records) == 0 {
		fmt.Fprintln(w, "no app containers")
		return nil
	}
	tw := tabwriter.NewWriter(w, 2, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "LOOPBACK\tNAME\tCONTAINER\tSID")
	for _, record := range records {
		state := "-"
		if record.LoopbackEnabled {
			state = "enabled"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", state, record.DisplayName, record.ContainerName, record.ContainerSID)
	}
	return tw.Flush()
}

func showCommand(stdout io.Writer) *cli.Command {
	var (
		conn   connection
		output cli.JSONOutput
	)
	return &cli.Command{
		Name:    "show",
		Summary: "Show one app container",
		Usage:   "loopback show <container-sid> [flags]",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("show", pflag.ContinueOnError)
			conn.AddFlags(flagSet)
			output.AddFlag(flagSet)
			return flagSet
		},
		Run: func(ctx context.Context, args []string, logger *slog.Logger) error {
			if len(args) != 1 {
				return cli.Validation("show takes exactly one container SID")
			}
			if err := validateSIDs(args); err != nil {
				return err
			}
			client, err := conn.client(logger, true)
			if err != nil {
				return err
			}
			containers, err := client.AppContainers(ctx)
			if err != nil {
				return categorize(err)
			}
			defer containers.Release(ctx)

			record, err := containers.Get(ctx, args[0])
			if err != nil {
				return categorize(err)
			}
			if done, err := output.Emit(stdout, record); done {
				return err
			}
			writeRecord(stdout, record)
			return nil
		},
	}
}

func writeRecord(w io.Writer, record appcontainer.Record) {
	tw := tabwriter.NewWriter(w, 2, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "Name:\t%s\n", record.DisplayName)
	if record.Description != "" {
		fmt.Fprintf(tw, "Description:\t%s\n", record.Description)
	}
	fmt.Fprintf(tw, "Container:\t%s\n", record.ContainerName)
	fmt.Fprintf(tw, "SID:\t%s\n", record.ContainerSID)
	if record.PackageFullName != "" {
		fmt.Fprintf(tw, "Package:\t%s\n", record.PackageFullName)
	}
	if record.UserSID != "" {
		fmt.Fprintf(tw, "User:\t%s\n", record.UserSID)
	}
	if record.WorkingDirectory != "" {
		fmt.Fprintf(tw, "Directory:\t%s\n", record.WorkingDirectory)
	}
	fmt.Fprintf(tw, "Loopback:\t%v\n", record.LoopbackEnabled)
	if len(record.Capabilities) > 0 {
		fmt.Fprintf(tw, "Capabilities:\t%s\n", strings.Join(record.Capabilities, ", "))
	}
	if len(record.Binaries) > 0 {
		fmt.Fprintf(tw, "Binaries:\t%s\n", strings.Join(record.Binaries, ", "))
	}
	tw.Flush()
}
