// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package loopbackserver

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"slices"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/bureau-foundation/loopback/lib/activation"
	"github.com/bureau-foundation/loopback/lib/appcontainer"
	"github.com/bureau-foundation/loopback/lib/clock"
	"github.com/bureau-foundation/loopback/lib/elevation"
	"github.com/bureau-foundation/loopback/lib/lifecycle"
	"github.com/bureau-foundation/loopback/lib/loopback"
	"github.com/bureau-foundation/loopback/lib/netiso"
	"github.com/bureau-foundation/loopback/lib/testutil"
)

const (
	mailSID       = "S-1-15-2-2001"
	calculatorSID = "S-1-15-2-2002"
	photosSID     = "S-1-15-2-2003"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelError,
	}))
}

type adminHandle struct{ pid int }

func (h adminHandle) PID() int                      { return h.pid }
func (h adminHandle) Running(context.Context) bool  { return true }
func (h adminHandle) Release(context.Context) error { return nil }

// adminSystem answers the broker: a running admin server when admin is
// set, otherwise a launcher that fails with launchErr.
type adminSystem struct {
	admin     elevation.Handle
	launchErr error
}

func (s *adminSystem) ConnectAdmin(context.Context) (elevation.Handle, error) {
	if s.admin == nil {
		return nil, activation.ErrNotServed
	}
	return s.admin, nil
}

func (s *adminSystem) Launch(string, []string) error { return s.launchErr }

type fixture struct {
	gateway *netiso.Memory
	server  *lifecycle.Server
	clock   *clock.FakeClock
	client  *activation.Client
	service *Service
}

func newFixture(t *testing.T, elevated bool, system *adminSystem) *fixture {
	t.Helper()

	gateway := netiso.NewMemory(netiso.Seed{
		Containers: []appcontainer.Record{
			{DisplayName: "Mail and Calendar", ContainerName: "microsoft.windowscommunicationsapps", ContainerSID: mailSID},
			{DisplayName: "Calculator", ContainerName: "microsoft.windowscalculator", ContainerSID: calculatorSID},
			{DisplayName: "Photos", ContainerName: "microsoft.windows.photos", ContainerSID: photosSID},
		},
	}, testLogger())

	runDir := testutil.SocketDir(t)
	host := activation.NewHost(runDir, testLogger())
	t.Cleanup(func() { host.Close() })

	fakeClock := clock.Fake(time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC))
	server := lifecycle.New(host, lifecycle.Options{Clock: fakeClock, Logger: testLogger()})

	broker := elevation.NewBroker(elevation.Options{
		Connector:  system,
		Launcher:   system,
		Clock:      fakeClock,
		Logger:     testLogger(),
		IsElevated: func() (bool, error) { return elevated, nil },
		Executable: "/usr/libexec/loopback-server",
		Self:       Self(),
	})

	service := New(Options{
		Registry: loopback.New(gateway, testLogger()),
		Server:   server,
		Broker:   broker,
		Logger:   testLogger(),
	})
	if err := server.Register(service.Factories()...); err != nil {
		t.Fatalf("Register: %v", err)
	}

	return &fixture{
		gateway: gateway,
		server:  server,
		clock:   fakeClock,
		client:  activation.NewClient(runDir),
		service: service,
	}
}

func (f *fixture) activate(t *testing.T, classID uuid.UUID) *activation.Object {
	t.Helper()
	object, err := f.client.Activate(context.Background(), classID)
	if err != nil {
		t.Fatalf("activating %s: %v", ClassName(classID), err)
	}
	return object
}

func enabledSIDs(records []appcontainer.Record) []string {
	var sids []string
	for _, record := range records {
		if record.LoopbackEnabled {
			sids = append(sids, record.ContainerSID)
		}
	}
	slices.Sort(sids)
	return sids
}

func listAppContainers(t *testing.T, object *activation.Object, filter string) []appcontainer.Record {
	t.Helper()
	var result ListResult
	if err := object.Call(context.Background(), MethodListAppContainers, map[string]any{"filter": filter}, &result); err != nil {
		t.Fatalf("list_app_containers: %v", err)
	}
	return result.AppContainers
}

func requireCode(t *testing.T, err error, code string) {
	t.Helper()
	var remote *activation.RemoteError
	if !errors.As(err, &remote) {
		t.Fatalf("error = %v, want a RemoteError", err)
	}
	if remote.Code != code {
		t.Fatalf("code = %q (%s), want %q", remote.Code, remote.Message, code)
	}
}

func TestClassesDependOnElevation(t *testing.T) {
	user := newFixture(t, false, &adminSystem{})
	if got := user.service.Classes(); !slices.Equal(got, []uuid.UUID{LoopUtil, AppContainer, ServerManager}) {
		t.Errorf("non-elevated classes = %v", got)
	}
	_, err := user.client.Activate(context.Background(), ServerManagerAdmin)
	if !errors.Is(err, activation.ErrNotServed) {
		t.Errorf("activating the admin class from a non-elevated server: %v", err)
	}

	admin := newFixture(t, true, &adminSystem{})
	if got := admin.service.Classes(); !slices.Equal(got, []uuid.UUID{ServerManagerAdmin}) {
		t.Errorf("elevated classes = %v", got)
	}
	admin.activate(t, ServerManagerAdmin)
}

func TestExemptionMethods(t *testing.T) {
	f := newFixture(t, false, &adminSystem{})
	ctx := context.Background()
	loopUtil := f.activate(t, LoopUtil)

	if err := loopUtil.Call(ctx, MethodAddExemption, map[string]any{"sid": mailSID}, nil); err != nil {
		t.Fatalf("add_exemption: %v", err)
	}
	if got := enabledSIDs(listAppContainers(t, loopUtil, "")); !slices.Equal(got, []string{mailSID}) {
		t.Fatalf("enabled after add = %v", got)
	}

	if err := loopUtil.Call(ctx, MethodAddExemptions, map[string]any{"sids": []string{calculatorSID, photosSID}}, nil); err != nil {
		t.Fatalf("add_exemptions: %v", err)
	}
	if err := loopUtil.Call(ctx, MethodRemoveExemption, map[string]any{"sid": mailSID}, nil); err != nil {
		t.Fatalf("remove_exemption: %v", err)
	}
	if got := enabledSIDs(listAppContainers(t, loopUtil, "")); !slices.Equal(got, []string{calculatorSID, photosSID}) {
		t.Fatalf("enabled after remove = %v", got)
	}

	if err := loopUtil.Call(ctx, MethodSetExemptionList, map[string]any{"sids": []string{mailSID}}, nil); err != nil {
		t.Fatalf("set_exemption_list: %v", err)
	}
	if err := loopUtil.Call(ctx, MethodRemoveExemptions, map[string]any{"sids": []string{calculatorSID}}, nil); err != nil {
		t.Fatalf("remove_exemptions: %v", err)
	}

	writes := f.gateway.Writes()
	if got := writes[len(writes)-1]; !slices.Equal(got, []string{mailSID}) {
		t.Fatalf("last write = %v, want [%s]", got, mailSID)
	}
}

func TestListAppContainersFilter(t *testing.T) {
	f := newFixture(t, false, &adminSystem{})
	manager := f.activate(t, ServerManager)

	records := listAppContainers(t, manager, "CALC")
	if len(records) != 1 || records[0].ContainerSID != calculatorSID {
		t.Fatalf("filtered records = %+v", records)
	}
	if records := listAppContainers(t, manager, ""); len(records) != 3 {
		t.Fatalf("unfiltered list has %d records", len(records))
	}
}

func TestErrorCodesReachTheClient(t *testing.T) {
	f := newFixture(t, false, &adminSystem{})
	ctx := context.Background()
	loopUtil := f.activate(t, LoopUtil)

	err := loopUtil.Call(ctx, MethodAddExemption, map[string]any{"sid": ""}, nil)
	requireCode(t, err, "invalid")
	if len(f.gateway.Writes()) != 0 {
		t.Fatal("an empty SID reached the gateway")
	}

	err = loopUtil.Call(ctx, MethodAddExemption, map[string]any{"sid": "not-a-sid"}, nil)
	requireCode(t, err, "invalid")
	if len(f.gateway.Writes()) != 0 {
		t.Fatal("a malformed SID reached the gateway")
	}

	f.gateway.FailWrite(&netiso.QueryError{Op: "NetworkIsolationSetAppContainerConfig", Status: 5})
	err = loopUtil.Call(ctx, MethodAddExemption, map[string]any{"sid": mailSID}, nil)
	requireCode(t, err, "os_query")

	err = loopUtil.Call(ctx, "reboot", nil, nil)
	requireCode(t, err, "invalid")
}

func TestAppContainerClass(t *testing.T) {
	f := newFixture(t, false, &adminSystem{})
	ctx := context.Background()
	containers := f.activate(t, AppContainer)

	var record appcontainer.Record
	if err := containers.Call(ctx, MethodGet, map[string]any{"sid": photosSID}, &record); err != nil {
		t.Fatalf("get: %v", err)
	}
	if record.DisplayName != "Photos" {
		t.Fatalf("get returned %+v", record)
	}

	err := containers.Call(ctx, MethodGet, map[string]any{"sid": "S-1-15-2-9999"}, &record)
	requireCode(t, err, "not_found")

	var result ListResult
	if err := containers.Call(ctx, MethodList, map[string]any{"filter": "mail"}, &result); err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(result.AppContainers) != 1 || result.AppContainers[0].ContainerSID != mailSID {
		t.Fatalf("list returned %+v", result.AppContainers)
	}

	err = containers.Call(ctx, MethodAddExemption, map[string]any{"sid": mailSID}, nil)
	requireCode(t, err, "invalid")
}

func TestRequestAdminInstance(t *testing.T) {
	f := newFixture(t, false, &adminSystem{admin: adminHandle{pid: 4242}})
	manager := f.activate(t, ServerManager)

	var admin AdminInstance
	if err := manager.Call(context.Background(), MethodRequestAdminInstance, nil, &admin); err != nil {
		t.Fatalf("request_admin_instance: %v", err)
	}
	want := AdminInstance{ClassID: ServerManagerAdmin.String(), PID: 4242}
	if admin != want {
		t.Fatalf("admin = %+v, want %+v", admin, want)
	}
}

func TestRequestAdminInstanceDeclined(t *testing.T) {
	f := newFixture(t, false, &adminSystem{launchErr: elevation.ErrDeclined})
	manager := f.activate(t, ServerManager)

	err := manager.Call(context.Background(), MethodRequestAdminInstance, nil, nil)
	requireCode(t, err, "elevation")
}

func TestRequestAdminInstanceWhenElevated(t *testing.T) {
	f := newFixture(t, true, &adminSystem{})
	admin := f.activate(t, ServerManagerAdmin)

	var result AdminInstance
	if err := admin.Call(context.Background(), MethodRequestAdminInstance, nil, &result); err != nil {
		t.Fatalf("request_admin_instance: %v", err)
	}
	if result.PID != os.Getpid() || !result.Elevated {
		t.Fatalf("result = %+v, want this process, elevated", result)
	}
}

func TestStatusQueries(t *testing.T) {
	f := newFixture(t, false, &adminSystem{})
	ctx := context.Background()
	manager := f.activate(t, ServerManager)

	var status ServerStatus
	if err := manager.Call(ctx, MethodIsServerRunning, nil, &status); err != nil {
		t.Fatalf("is_server_running: %v", err)
	}
	if !status.Running || status.PID != os.Getpid() || status.State != "active" || status.RefCount != 1 {
		t.Fatalf("status = %+v", status)
	}

	var administrator AdministratorStatus
	if err := manager.Call(ctx, MethodIsRunAsAdministrator, nil, &administrator); err != nil {
		t.Fatalf("is_run_as_administrator: %v", err)
	}
	if administrator.Elevated {
		t.Fatal("non-elevated server reported elevated")
	}
}

func TestShutdownDelays(t *testing.T) {
	tests := []struct {
		class uuid.UUID
		delay time.Duration
	}{
		{LoopUtil, LoopUtilShutdownDelay},
		{ServerManager, ServerManagerShutdownDelay},
	}
	for _, test := range tests {
		t.Run(ClassName(test.class), func(t *testing.T) {
			f := newFixture(t, false, &adminSystem{})
			object := f.activate(t, test.class)

			var result ShutdownResult
			if err := object.Call(context.Background(), MethodShutdown, nil, &result); err != nil {
				t.Fatalf("shutdown: %v", err)
			}
			if result.DelayMilliseconds != test.delay.Milliseconds() {
				t.Fatalf("delay_ms = %d", result.DelayMilliseconds)
			}

			f.clock.Advance(test.delay - time.Millisecond)
			if got := f.server.State(); got != lifecycle.Active {
				t.Fatalf("state before delay = %v", got)
			}
			f.clock.Advance(time.Millisecond)
			if got := f.server.State(); got != lifecycle.Draining {
				t.Fatalf("state after delay = %v", got)
			}
		})
	}
}
