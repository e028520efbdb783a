// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/bureau-foundation/loopback/cmd/loopback/cli"
	"github.com/bureau-foundation/loopback/lib/activation"
	"github.com/bureau-foundation/loopback/lib/appcontainer"
	"github.com/bureau-foundation/loopback/lib/config"
	"github.com/bureau-foundation/loopback/lib/elevation"
	"github.com/bureau-foundation/loopback/lib/lifecycle"
	"github.com/bureau-foundation/loopback/lib/loopback"
	"github.com/bureau-foundation/loopback/lib/loopbackserver"
	"github.com/bureau-foundation/loopback/lib/netiso"
	"github.com/bureau-foundation/loopback/lib/testutil"
)

const (
	weatherSID = "S-1-15-2-4001"
	musicSID   = "S-1-15-2-4002"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelError,
	}))
}

type unsupportedLauncher struct{}

func (unsupportedLauncher) Launch(string, []string) error { return elevation.ErrUnsupported }

// startServer runs an in-process server on runDir with a memory
// gateway holding two containers, musicSID already exempt. SIDs are
// written in sorted order, weatherSID first.
func startServer(t *testing.T, runDir string, elevated bool) *netiso.Memory {
	t.Helper()

	gateway := netiso.NewMemory(netiso.Seed{
		Containers: []appcontainer.Record{
			{DisplayName: "Weather", ContainerName: "microsoft.bingweather", ContainerSID: weatherSID},
			{DisplayName: "Groove Music", ContainerName: "microsoft.zunemusic", ContainerSID: musicSID},
		},
		Exempt: []string{musicSID},
	}, testLogger())

	host := activation.NewHost(runDir, testLogger())
	t.Cleanup(func() { host.Close() })
	server := lifecycle.New(host, lifecycle.Options{Logger: testLogger(), WatchdogGrace: time.Hour})
	broker := elevation.NewBroker(elevation.Options{
		Connector: activation.AdminConnector{
			Client:  activation.NewClient(runDir),
			ClassID: loopbackserver.ServerManagerAdmin,
		},
		Launcher:   unsupportedLauncher{},
		Logger:     testLogger(),
		IsElevated: func() (bool, error) { return elevated, nil },
		Executable: "/usr/libexec/loopback-server",
		Self:       loopbackserver.Self(),
	})
	service := loopbackserver.New(loopbackserver.Options{
		Registry: loopback.New(gateway, testLogger()),
		Server:   server,
		Broker:   broker,
		Logger:   testLogger(),
	})
	if err := server.Register(service.Factories()...); err != nil {
		t.Fatalf("Register: %v", err)
	}
	// Hold a reference, as a long-lived client would, so that each
	// command's final release does not drain the server.
	if err := server.AddRef(); err != nil {
		t.Fatalf("AddRef: %v", err)
	}
	return gateway
}

// execute runs the CLI against runDir and returns stdout.
func execute(t *testing.T, runDir string, args ...string) (string, error) {
	t.Helper()
	t.Setenv(config.EnvironmentVariable, "")
	var stdout bytes.Buffer
	root := Root(&stdout)
	root.Output = &bytes.Buffer{}
	args = append(args, "--run-dir", runDir, "--no-launch")
	err := root.Execute(context.Background(), args)
	return stdout.String(), err
}

func requireCategory(t *testing.T, err error, category cli.ErrorCategory) {
	t.Helper()
	var toolError *cli.ToolError
	if !errors.As(err, &toolError) {
		t.Fatalf("error = %v, want a %s ToolError", err, category)
	}
	if toolError.Category != category {
		t.Fatalf("category = %s (%v), want %s", toolError.Category, err, category)
	}
}

func lastWrite(t *testing.T, gateway *netiso.Memory) []string {
	t.Helper()
	writes := gateway.Writes()
	if len(writes) == 0 {
		t.Fatal("nothing was written")
	}
	return writes[len(writes)-1]
}

func TestListTable(t *testing.T) {
	runDir := testutil.SocketDir(t)
	startServer(t, runDir, false)

	output, err := execute(t, runDir, "list")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(output), "\n")
	if len(lines) != 3 || !strings.HasPrefix(lines[0], "LOOPBACK") {
		t.Fatalf("output:\n%s", output)
	}
	for _, line := range lines[1:] {
		enabled := strings.HasPrefix(line, "enabled")
		if strings.Contains(line, musicSID) != enabled {
			t.Errorf("wrong loopback state in %q", line)
		}
	}
}

func TestListJSONWithFilter(t *testing.T) {
	runDir := testutil.SocketDir(t)
	startServer(t, runDir, false)

	for _, extra := range [][]string{nil, {"--cached"}} {
		args := append([]string{"list", "--json", "--filter", "WEATHER"}, extra...)
		output, err := execute(t, runDir, args...)
		if err != nil {
			t.Fatalf("%v: %v", args, err)
		}
		var records []appcontainer.Record
		if err := json.Unmarshal([]byte(output), &records); err != nil {
			t.Fatalf("%v: decoding %q: %v", args, output, err)
		}
		if len(records) != 1 || records[0].ContainerSID != weatherSID || records[0].LoopbackEnabled {
			t.Fatalf("%v: records = %+v", args, records)
		}
	}
}

func TestShowUnknownContainer(t *testing.T) {
	runDir := testutil.SocketDir(t)
	startServer(t, runDir, false)

	output, err := execute(t, runDir, "show", musicSID)
	if err != nil {
		t.Fatalf("show: %v", err)
	}
	if !strings.Contains(output, "Groove Music") || !strings.Contains(output, "true") {
		t.Fatalf("output:\n%s", output)
	}

	_, err = execute(t, runDir, "show", "S-1-15-2-4999")
	requireCategory(t, err, cli.CategoryNotFound)
}

func TestAddAndRemove(t *testing.T) {
	runDir := testutil.SocketDir(t)
	gateway := startServer(t, runDir, false)

	if _, err := execute(t, runDir, "add", weatherSID); err != nil {
		t.Fatalf("add: %v", err)
	}
	if got := lastWrite(t, gateway); !slices.Equal(got, []string{weatherSID, musicSID}) {
		t.Fatalf("after add: %v", got)
	}

	if _, err := execute(t, runDir, "remove", musicSID, weatherSID); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if got := lastWrite(t, gateway); len(got) != 0 {
		t.Fatalf("after remove: %v", got)
	}
}

func TestMalformedSIDRejectedLocally(t *testing.T) {
	// No server: validation happens before connecting.
	runDir := testutil.SocketDir(t)
	_, err := execute(t, runDir, "add", "Microsoft.BingWeather")
	requireCategory(t, err, cli.CategoryValidation)
}

func TestSetFromFile(t *testing.T) {
	runDir := testutil.SocketDir(t)
	gateway := startServer(t, runDir, false)
	directory := t.TempDir()

	arrayFile := filepath.Join(directory, "list.jsonc")
	os.WriteFile(arrayFile, []byte("[\n  // weather only\n  \""+weatherSID+"\",\n]\n"), 0o600)
	if _, err := execute(t, runDir, "set", "--file", arrayFile); err != nil {
		t.Fatalf("set --file (array): %v", err)
	}
	if got := lastWrite(t, gateway); !slices.Equal(got, []string{weatherSID}) {
		t.Fatalf("after array file: %v", got)
	}

	seedFile := filepath.Join(directory, "seed.jsonc")
	os.WriteFile(seedFile, []byte(`{"containers": [], "exempt": ["`+musicSID+`"], /* seed */}`), 0o600)
	if _, err := execute(t, runDir, "set", "--file", seedFile); err != nil {
		t.Fatalf("set --file (seed): %v", err)
	}
	if got := lastWrite(t, gateway); !slices.Equal(got, []string{musicSID}) {
		t.Fatalf("after seed file: %v", got)
	}

	if _, err := execute(t, runDir, "set", "--clear"); err != nil {
		t.Fatalf("set --clear: %v", err)
	}
	if got := lastWrite(t, gateway); len(got) != 0 {
		t.Fatalf("after clear: %v", got)
	}
}

func TestSetArgumentConflicts(t *testing.T) {
	runDir := testutil.SocketDir(t)
	tests := [][]string{
		{"set"},
		{"set", "--clear", weatherSID},
		{"set", "--file", "list.jsonc", weatherSID},
		{"set", "--file", filepath.Join(t.TempDir(), "missing.jsonc")},
	}
	for _, args := range tests {
		_, err := execute(t, runDir, args...)
		requireCategory(t, err, cli.CategoryValidation)
	}
}

func TestServerNotRunning(t *testing.T) {
	runDir := testutil.SocketDir(t)

	_, err := execute(t, runDir, "list")
	requireCategory(t, err, cli.CategoryTransient)

	output, err := execute(t, runDir, "status")
	var exitError *cli.ExitError
	if !errors.As(err, &exitError) || exitError.Code != 1 {
		t.Fatalf("status = %v, want exit code 1", err)
	}
	if !strings.Contains(output, "not running") {
		t.Fatalf("status output = %q", output)
	}

	output, err = execute(t, runDir, "shutdown")
	if err != nil || !strings.Contains(output, "not running") {
		t.Fatalf("shutdown = %q, %v", output, err)
	}
}

func TestStatusAndShutdown(t *testing.T) {
	runDir := testutil.SocketDir(t)
	startServer(t, runDir, false)

	output, err := execute(t, runDir, "status", "--json")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	var status serverStatus
	if err := json.Unmarshal([]byte(output), &status); err != nil {
		t.Fatalf("decoding %q: %v", output, err)
	}
	if !status.Running || status.Class != "ServerManager" || status.PID != os.Getpid() || status.Elevated {
		t.Fatalf("status = %+v", status)
	}

	output, err = execute(t, runDir, "shutdown")
	if err != nil {
		t.Fatalf("shutdown: %v", err)
	}
	if !strings.Contains(output, "stopping in 50ms") {
		t.Fatalf("shutdown output = %q", output)
	}
}

func TestAdminRouting(t *testing.T) {
	runDir := testutil.SocketDir(t)
	user := startServer(t, runDir, false)
	admin := startServer(t, runDir, true)

	output, err := execute(t, runDir, "admin")
	if err != nil {
		t.Fatalf("admin: %v", err)
	}
	if !strings.Contains(output, "admin server running") {
		t.Fatalf("admin output = %q", output)
	}

	if _, err := execute(t, runDir, "add", "--admin", weatherSID); err != nil {
		t.Fatalf("add --admin: %v", err)
	}
	if got := lastWrite(t, admin); !slices.Equal(got, []string{weatherSID, musicSID}) {
		t.Fatalf("admin server wrote %v", got)
	}
	if writes := user.Writes(); len(writes) != 0 {
		t.Fatalf("non-elevated server wrote %v", writes)
	}
}

func TestAdminElevationUnavailable(t *testing.T) {
	runDir := testutil.SocketDir(t)
	startServer(t, runDir, false)

	_, err := execute(t, runDir, "remove", "--admin", musicSID)
	requireCategory(t, err, cli.CategoryForbidden)
}
