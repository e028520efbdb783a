// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/pflag"
	"github.com/tidwall/jsonc"

	"github.com/bureau-foundation/loopback/cmd/loopback/cli"
	"github.com/bureau-foundation/loopback/lib/loopbackclient"
	"github.com/bureau-foundation/loopback/lib/netiso"
)

func validateSIDs(sids []string) error {
	for _, sid := range sids {
		if !netiso.ValidSID(sid) {
			return cli.Validation("%q is not a SID (expected S-1-15-2-...)", sid)
		}
	}
	return nil
}

// mutation holds the flags shared by the commands that change the list.
type mutation struct {
	conn  connection
	admin bool
}

func (m *mutation) AddFlags(flagSet *pflag.FlagSet) {
	m.conn.AddFlags(flagSet)
	flagSet.BoolVar(&m.admin, "admin", false, "apply the change through an elevated server (prompts for administrator rights)")
}

// apply runs change against LoopUtil, or against the admin server when
// --admin is set.
func (m *mutation) apply(ctx context.Context, logger *slog.Logger, change func(*loopbackclient.Manager) error) error {
	client, err := m.conn.client(logger, true)
	if err != nil {
		return err
	}
	defer client.Close(ctx)

	var manager *loopbackclient.Manager
	if m.admin {
		manager, err = client.Admin(ctx)
	} else {
		manager, err = client.LoopUtil(ctx)
	}
	if err != nil {
		return categorize(err)
	}
	defer manager.Release(ctx)

	logger.Info("applying exemption change", "class", manager.ClassName(), "pid", manager.PID())
	return categorize(change(manager))
}

func addCommand(stdout io.Writer) *cli.Command {
	var m mutation
	return &cli.Command{
		Name:    "add",
		Summary: "Exempt app containers from loopback isolation",
		Usage:   "loopback add <container-sid>... [flags]",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("add", pflag.ContinueOnError)
			m.AddFlags(flagSet)
			return flagSet
		},
		Run: func(ctx context.Context, args []string, logger *slog.Logger) error {
			if len(args) == 0 {
				return cli.Validation("add needs at least one container SID")
			}
			if err := validateSIDs(args); err != nil {
				return err
			}
			err := m.apply(ctx, logger, func(manager *loopbackclient.Manager) error {
				if len(args) == 1 {
					return manager.AddExemption(ctx, args[0])
				}
				return manager.AddExemptions(ctx, args)
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(stdout, "loopback enabled for %d container(s)\n", len(args))
			return nil
		},
	}
}

func removeCommand(stdout io.Writer) *cli.Command {
	var m mutation
	return &cli.Command{
		Name:    "remove",
		Summary: "Revoke loopback exemptions",
		Usage:   "loopback remove <container-sid>... [flags]",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("remove", pflag.ContinueOnError)
			m.AddFlags(flagSet)
			return flagSet
		},
		Run: func(ctx context.Context, args []string, logger *slog.Logger) error {
			if len(args) == 0 {
				return cli.Validation("remove needs at least one container SID")
			}
			if err := validateSIDs(args); err != nil {
				return err
			}
			err := m.apply(ctx, logger, func(manager *loopbackclient.Manager) error {
				if len(args) == 1 {
					return manager.RemoveExemption(ctx, args[0])
				}
				return manager.RemoveExemptions(ctx, args)
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(stdout, "loopback disabled for %d container(s)\n", len(args))
			return nil
		},
	}
}

func setCommand(stdout io.Writer) *cli.Command {
	var (
		m        mutation
		file     string
		clearAll bool
	)
	return &cli.Command{
		Name:    "set",
		Summary: "Replace the whole exemption list",
		Description: `Replace the exemption list with exactly the given SIDs.

Containers not named lose their exemption. The list comes from the
arguments or from --file, a JSONC file holding either an array of SIDs
or an object with an "exempt" array (the memory backend seed format).`,
		Usage: "loopback set [<container-sid>...] [flags]",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("set", pflag.ContinueOnError)
			m.AddFlags(flagSet)
			flagSet.StringVar(&file, "file", "", "read the SIDs from a JSONC file")
			flagSet.BoolVar(&clearAll, "clear", false, "remove every exemption")
			return flagSet
		},
		Examples: []cli.Example{
			{Description: "Clear the list", Command: "loopback set --admin --clear"},
		},
		Run: func(ctx context.Context, args []string, logger *slog.Logger) error {
			sids := args
			switch {
			case clearAll && (file != "" || len(args) > 0):
				return cli.Validation("--clear cannot be combined with SIDs or --file")
			case file != "" && len(args) > 0:
				return cli.Validation("give SIDs as arguments or with --file, not both")
			case file != "":
				var err error
				if sids, err = readExemptionFile(file); err != nil {
					return err
				}
			case !clearAll && len(args) == 0:
				return cli.Validation("set needs SIDs, --file, or --clear")
			}
			if err := validateSIDs(sids); err != nil {
				return err
			}

			err := m.apply(ctx, logger, func(manager *loopbackclient.Manager) error {
				return manager.SetExemptionList(ctx, sids)
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(stdout, "exemption list set to %d container(s)\n", len(sids))
			return nil
		},
	}
}

// readExemptionFile reads a JSONC array of SIDs, or an object with an
// "exempt" array.
func readExemptionFile(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, cli.Validation("reading exemption file: %w", err)
	}
	document := bytes.TrimSpace(jsonc.ToJSON(data))

	var sids []string
	if bytes.HasPrefix(document, []byte("{")) {
		var seed netiso.Seed
		if err := json.Unmarshal(document, &seed); err != nil {
			return nil, cli.Validation("parsing %s: %w", path, err)
		}
		sids = seed.Exempt
	} else if err := json.Unmarshal(document, &sids); err != nil {
		return nil, cli.Validation("parsing %s: %w", path, err)
	}
	if sids == nil {
		sids = []string{}
	}
	return sids, nil
}
