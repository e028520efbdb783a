// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"log/slog"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/loopback/lib/config"
	"github.com/bureau-foundation/loopback/lib/loopbackclient"
)

// connection holds the flags every command uses to reach the server.
type connection struct {
	configPath string
	runDir     string
	noLaunch   bool
}

func (c *connection) AddFlags(flagSet *pflag.FlagSet) {
	flagSet.StringVar(&c.configPath, "config", "", "path to loopback.yaml (default: $"+config.EnvironmentVariable+", then built-in defaults)")
	flagSet.StringVar(&c.runDir, "run-dir", "", "directory holding the server sockets (overrides paths.run_dir)")
	flagSet.BoolVar(&c.noLaunch, "no-launch", false, "fail instead of starting loopback-server when it is not running")
}

// client builds a Client from the config. launch enables starting the
// server when it is not running; it is further disabled by --no-launch
// and by a server binary that cannot be found.
func (c *connection) client(logger *slog.Logger, launch bool) (*loopbackclient.Client, error) {
	cfg, err := config.Resolve(c.configPath)
	if err != nil {
		return nil, err
	}
	if c.runDir != "" {
		cfg.Paths.RunDir = c.runDir
	}

	options := loopbackclient.Options{
		RunDir: cfg.Paths.RunDir,
		Logger: logger,
	}
	if launch && !c.noLaunch {
		binary, err := cfg.ServerBinaryPath()
		if err != nil {
			logger.Debug("server auto-launch disabled", "error", err)
		} else {
			options.ServerBinary = binary
			options.ServerArguments = serverArguments(cfg)
		}
	}
	return loopbackclient.New(options), nil
}

// serverArguments is the command line of an auto-launched server.
func serverArguments(cfg *config.Config) []string {
	var args []string
	if source := cfg.Source(); source != "" {
		args = append(args, "--config", source)
	}
	return append(args, "--run-dir", cfg.Paths.RunDir)
}
