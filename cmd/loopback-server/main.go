// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/loopback/lib/activation"
	"github.com/bureau-foundation/loopback/lib/config"
	"github.com/bureau-foundation/loopback/lib/elevation"
	"github.com/bureau-foundation/loopback/lib/lifecycle"
	"github.com/bureau-foundation/loopback/lib/loopback"
	"github.com/bureau-foundation/loopback/lib/loopbackserver"
	"github.com/bureau-foundation/loopback/lib/netiso"
	"github.com/bureau-foundation/loopback/lib/process"
	"github.com/bureau-foundation/loopback/lib/version"
	"github.com/bureau-foundation/loopback/lib/watchdog"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		process.Fatal(err)
	}
}

// flags holds command-line overrides for the config file.
type flags struct {
	configPath  string
	runDir      string
	stateDir    string
	backend     string
	seed        string
	logLevel    string
	showVersion bool
}

func parseFlags(args []string) (*flags, error) {
	var parsed flags
	flagSet := pflag.NewFlagSet("loopback-server", pflag.ContinueOnError)
	flagSet.StringVar(&parsed.configPath, "config", "", "path to loopback.yaml (default: $"+config.EnvironmentVariable+", then built-in defaults)")
	flagSet.StringVar(&parsed.runDir, "run-dir", "", "directory for class sockets (overrides paths.run_dir)")
	flagSet.StringVar(&parsed.stateDir, "state-dir", "", "directory for persistent state (overrides paths.state_dir)")
	flagSet.StringVar(&parsed.backend, "backend", "", "isolation backend: system or memory (overrides isolation.backend)")
	flagSet.StringVar(&parsed.seed, "seed", "", "JSONC seed file for the memory backend (overrides isolation.seed)")
	flagSet.StringVar(&parsed.logLevel, "log-level", "", "debug, info, warn, or error (overrides logging.level)")
	flagSet.BoolVar(&parsed.showVersion, "version", false, "print version information and exit")
	if err := flagSet.Parse(args); err != nil {
		return nil, err
	}
	if flagSet.NArg() > 0 {
		return nil, fmt.Errorf("unexpected arguments: %v", flagSet.Args())
	}
	return &parsed, nil
}

// loadConfig resolves the config file and applies flag overrides.
func loadConfig(parsed *flags) (*config.Config, error) {
	cfg, err := config.Resolve(parsed.configPath)
	if err != nil {
		return nil, err
	}
	if parsed.runDir != "" {
		cfg.Paths.RunDir = parsed.runDir
	}
	if parsed.stateDir != "" {
		cfg.Paths.StateDir = parsed.stateDir
	}
	if parsed.backend != "" {
		cfg.Isolation.Backend = parsed.backend
	}
	if parsed.seed != "" {
		cfg.Isolation.Seed = parsed.seed
	}
	if parsed.logLevel != "" {
		cfg.Logging.Level = parsed.logLevel
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// relaunchArguments is the command line of the elevated copy. Paths
// and backend are passed explicitly because the elevated process does
// not inherit the environment.
func relaunchArguments(cfg *config.Config) []string {
	var args []string
	if source := cfg.Source(); source != "" {
		args = append(args, "--config", source)
	}
	args = append(args,
		"--run-dir", cfg.Paths.RunDir,
		"--state-dir", cfg.Paths.StateDir,
		"--backend", cfg.Isolation.Backend,
		"--log-level", cfg.Logging.Level,
	)
	if cfg.Isolation.Seed != "" {
		args = append(args, "--seed", cfg.Isolation.Seed)
	}
	return args
}

// openGateway returns the isolation backend named by the config.
func openGateway(cfg *config.Config, logger *slog.Logger) (netiso.Gateway, error) {
	switch cfg.Isolation.Backend {
	case config.BackendSystem:
		return netiso.OpenSystem(logger)
	case config.BackendMemory:
		if cfg.Isolation.Seed == "" {
			return netiso.NewMemory(netiso.Seed{}, logger), nil
		}
		return netiso.LoadMemory(cfg.Isolation.Seed, logger)
	default:
		return nil, fmt.Errorf("unknown isolation backend %q", cfg.Isolation.Backend)
	}
}

func run(args []string) error {
	parsed, err := parseFlags(args)
	if err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}
	if parsed.showVersion {
		version.Print("loopback-server")
		return nil
	}

	cfg, err := loadConfig(parsed)
	if err != nil {
		return err
	}
	if err := cfg.EnsurePaths(); err != nil {
		return err
	}

	level, _ := cfg.LogLevel()
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})).With("pid", os.Getpid())
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	host := activation.NewHost(cfg.Paths.RunDir, logger)
	defer host.Close()

	server := lifecycle.New(host, lifecycle.Options{Logger: logger})

	broker := elevation.NewBroker(elevation.Options{
		Connector: activation.AdminConnector{
			Client:  activation.NewClient(cfg.Paths.RunDir),
			ClassID: loopbackserver.ServerManagerAdmin,
		},
		Logger:      logger,
		Arguments:   relaunchArguments(cfg),
		Self:        loopbackserver.Self(),
		HandoffPath: cfg.HandoffPath(),
	})

	elevated := broker.IsElevated()
	logger.Info("loopback server starting",
		"version", version.Info(),
		"elevated", elevated,
		"config", cfg.Source(),
		"run_dir", cfg.Paths.RunDir,
		"backend", cfg.Isolation.Backend,
	)
	if elevated {
		checkHandoff(cfg, logger)
	}

	gateway, err := openGateway(cfg, logger)
	if err != nil {
		return fmt.Errorf("opening isolation backend: %w", err)
	}
	defer gateway.Close()

	service := loopbackserver.New(loopbackserver.Options{
		Registry: loopback.New(gateway, logger),
		Server:   server,
		Broker:   broker,
		Logger:   logger,
	})
	if err := server.Register(service.Factories()...); err != nil {
		return err
	}

	server.Run(ctx)

	closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := broker.Close(closeCtx); err != nil {
		logger.Warn("releasing admin server", "error", err)
	}

	logger.Info("loopback server stopped")
	return nil
}

// checkHandoff logs how this elevated process was started and removes
// the request record.
func checkHandoff(cfg *config.Config, logger *slog.Logger) {
	executable, err := process.Executable()
	if err != nil {
		logger.Warn("checking elevation handoff", "error", err)
		return
	}
	handoff, err := elevation.ConsumeHandoff(cfg.HandoffPath(), time.Now(), executable)
	if err != nil {
		logger.Warn("checking elevation handoff", "error", err)
		return
	}
	if !handoff.Found {
		logger.Info("elevated without a recent relaunch request")
		return
	}
	logger.Info("started by elevation request",
		"requested_by", handoff.Request.RequestedBy,
		"requested_at", handoff.Request.Timestamp,
		"binary", handoff.Match.String(),
	)
	if handoff.Match != watchdog.MatchSame {
		logger.Warn("elevated binary differs from the one requested",
			"requested", handoff.Request.Executable,
			"running", executable,
		)
	}
}
