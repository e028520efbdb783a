// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package activation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/bureau-foundation/loopback/lib/clock"
	"github.com/bureau-foundation/loopback/lib/codec"
	"github.com/bureau-foundation/loopback/lib/lifecycle"
	"github.com/bureau-foundation/loopback/lib/testutil"
)

var (
	classEcho  = uuid.MustParse("3C2C8A4E-6B1F-4E55-9F3A-2D8F2E6B7C10")
	classAdmin = uuid.MustParse("F745AC80-D07E-4F0F-B541-BDA61907F234")
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelError,
	}))
}

// codedFailure carries an error code through the host.
type codedFailure struct{}

func (codedFailure) Error() string     { return "list write rejected" }
func (codedFailure) ErrorCode() string { return "os_query" }

type echoInstance struct{}

func (echoInstance) Invoke(_ context.Context, method string, raw []byte) (any, error) {
	switch method {
	case "echo":
		var request struct {
			Text string `cbor:"text"`
		}
		if err := codec.Unmarshal(raw, &request); err != nil {
			return nil, err
		}
		return map[string]string{"text": request.Text}, nil
	case "fail":
		return nil, fmt.Errorf("writing: %w", codedFailure{})
	case "crash":
		return nil, errors.New("unclassified")
	default:
		return nil, fmt.Errorf("unknown method %q", method)
	}
}

type fixture struct {
	runDir string
	host   *Host
	server *lifecycle.Server
	client *Client
}

func newFixture(t *testing.T, classes ...uuid.UUID) *fixture {
	t.Helper()
	runDir := testutil.SocketDir(t)
	host := NewHost(runDir, testLogger())
	server := lifecycle.New(host, lifecycle.Options{
		Clock:  clock.Fake(time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)),
		Logger: testLogger(),
	})

	var factories []lifecycle.Factory
	for _, classID := range classes {
		factories = append(factories, lifecycle.Factory{
			ClassID: classID,
			Name:    "Echo",
			New:     func(context.Context) (lifecycle.Instance, error) { return echoInstance{}, nil },
		})
	}
	if err := server.Register(factories...); err != nil {
		t.Fatalf("Register: %v", err)
	}
	t.Cleanup(func() { host.Close() })

	return &fixture{runDir: runDir, host: host, server: server, client: NewClient(runDir)}
}

func TestActivateCallRelease(t *testing.T) {
	f := newFixture(t, classEcho)
	ctx := context.Background()

	object, err := f.client.Activate(ctx, classEcho)
	if err != nil {
		t.Fatalf("Activate: %v", err)
	}
	if object.PID() != os.Getpid() || object.ClassID() != classEcho {
		t.Fatalf("object = pid %d class %s", object.PID(), object.ClassID())
	}
	if got := f.server.RefCount(); got != 1 {
		t.Fatalf("RefCount = %d after activate", got)
	}

	var reply struct {
		Text string `cbor:"text"`
	}
	if err := object.Call(ctx, "echo", map[string]any{"text": "hello"}, &reply); err != nil {
		t.Fatalf("Call: %v", err)
	}
	if reply.Text != "hello" {
		t.Fatalf("reply = %q", reply.Text)
	}
	if !object.Running(ctx) {
		t.Fatal("Running = false for a live instance")
	}

	if err := object.Release(ctx); err != nil {
		t.Fatalf("Release: %v", err)
	}
	if got := f.server.RefCount(); got != 0 {
		t.Fatalf("RefCount = %d after release", got)
	}
	if got := f.server.State(); got != lifecycle.Draining {
		t.Fatalf("state = %v, want draining", got)
	}
	if object.Running(ctx) {
		t.Fatal("Running = true after release")
	}
}

func TestLastReleaseTerminatesServer(t *testing.T) {
	f := newFixture(t, classEcho, classAdmin)
	ctx := context.Background()

	first, err := f.client.Activate(ctx, classEcho)
	if err != nil {
		t.Fatalf("Activate: %v", err)
	}
	second, err := f.client.Activate(ctx, classAdmin)
	if err != nil {
		t.Fatalf("Activate: %v", err)
	}

	done := make(chan struct{})
	go func() {
		f.server.Run(context.Background())
		close(done)
	}()

	if err := first.Release(ctx); err != nil {
		t.Fatalf("Release: %v", err)
	}
	if err := second.Release(ctx); err != nil {
		t.Fatalf("Release: %v", err)
	}
	testutil.RequireClosed(t, done, 5*time.Second, "Run returning after last release")

	for _, classID := range []uuid.UUID{classEcho, classAdmin} {
		if _, err := os.Stat(SocketPath(f.runDir, classID)); !os.IsNotExist(err) {
			t.Errorf("socket for %s still exists after termination", classID)
		}
	}
	if _, err := f.client.Activate(ctx, classEcho); !errors.Is(err, ErrNotServed) {
		t.Fatalf("Activate after termination error = %v, want ErrNotServed", err)
	}
}

func TestErrorCodesReachTheClient(t *testing.T) {
	f := newFixture(t, classEcho)
	ctx := context.Background()
	object, err := f.client.Activate(ctx, classEcho)
	if err != nil {
		t.Fatalf("Activate: %v", err)
	}

	tests := []struct {
		method string
		code   string
	}{
		{"fail", "os_query"},
		{"crash", CodeInternal},
		{ActionRelease + "-typo", CodeInternal},
	}
	for _, test := range tests {
		t.Run(test.method, func(t *testing.T) {
			err := object.Call(ctx, test.method, nil, nil)
			var remote *RemoteError
			if !errors.As(err, &remote) {
				t.Fatalf("error = %v, want *RemoteError", err)
			}
			if remote.Code != test.code || remote.Action != test.method {
				t.Fatalf("RemoteError = %+v, want code %q", remote, test.code)
			}
		})
	}
}

func TestUnknownInstanceIsNotFound(t *testing.T) {
	f := newFixture(t, classEcho)
	ctx := context.Background()

	object, err := f.client.Activate(ctx, classEcho)
	if err != nil {
		t.Fatalf("Activate: %v", err)
	}
	if err := object.Release(ctx); err != nil {
		t.Fatalf("Release: %v", err)
	}

	err = object.Release(ctx)
	var remote *RemoteError
	if !errors.As(err, &remote) || remote.Code != CodeNotFound {
		t.Fatalf("second Release error = %v, want not_found", err)
	}
	if got := f.server.RefCount(); got != 0 {
		t.Fatalf("RefCount = %d, double release must not underflow", got)
	}
}

func TestActivationRefusedWhileDraining(t *testing.T) {
	f := newFixture(t, classEcho)
	ctx := context.Background()

	object, err := f.client.Activate(ctx, classEcho)
	if err != nil {
		t.Fatalf("Activate: %v", err)
	}
	if err := object.Release(ctx); err != nil {
		t.Fatalf("Release: %v", err)
	}

	_, err = f.client.Activate(ctx, classEcho)
	var remote *RemoteError
	if !errors.As(err, &remote) || remote.Code != "draining" {
		t.Fatalf("Activate error = %v, want draining", err)
	}
}

func TestLockServerKeepsServerActive(t *testing.T) {
	f := newFixture(t, classEcho)
	ctx := context.Background()

	if err := f.client.LockServer(ctx, classEcho, true); err != nil {
		t.Fatalf("LockServer(true): %v", err)
	}
	object, err := f.client.Activate(ctx, classEcho)
	if err != nil {
		t.Fatalf("Activate: %v", err)
	}
	if err := object.Release(ctx); err != nil {
		t.Fatalf("Release: %v", err)
	}
	if got := f.server.State(); got != lifecycle.Active {
		t.Fatalf("state = %v with lock held", got)
	}
	if err := f.client.LockServer(ctx, classEcho, false); err != nil {
		t.Fatalf("LockServer(false): %v", err)
	}
	if got := f.server.State(); got != lifecycle.Draining {
		t.Fatalf("state = %v after unlock", got)
	}
}

func TestRegisterRejectsLiveSocketAndReplacesStale(t *testing.T) {
	f := newFixture(t, classEcho)

	other := NewHost(f.runDir, testLogger())
	if _, err := other.Register(classEcho, nil); !errors.Is(err, ErrAlreadyRegistered) {
		t.Fatalf("Register over a live socket error = %v, want ErrAlreadyRegistered", err)
	}

	stalePath := SocketPath(f.runDir, classAdmin)
	if err := os.WriteFile(stalePath, nil, 0o600); err != nil {
		t.Fatal(err)
	}
	token, err := other.Register(classAdmin, nil)
	if err != nil {
		t.Fatalf("Register over a stale file: %v", err)
	}
	if err := other.Revoke(token); err != nil {
		t.Fatalf("Revoke: %v", err)
	}
	if err := other.Revoke(token); err == nil {
		t.Fatal("revoking twice succeeded")
	}
}

func TestActivateUnservedClass(t *testing.T) {
	client := NewClient(testutil.SocketDir(t))
	if _, err := client.Activate(context.Background(), classAdmin); !errors.Is(err, ErrNotServed) {
		t.Fatalf("error = %v, want ErrNotServed", err)
	}
}

func TestAdminConnector(t *testing.T) {
	f := newFixture(t, classAdmin)
	connector := AdminConnector{Client: f.client, ClassID: classAdmin}

	handle, err := connector.ConnectAdmin(context.Background())
	if err != nil {
		t.Fatalf("ConnectAdmin: %v", err)
	}
	if handle.PID() != os.Getpid() || !handle.Running(context.Background()) {
		t.Fatalf("handle pid %d not running", handle.PID())
	}
	if err := handle.Release(context.Background()); err != nil {
		t.Fatalf("Release: %v", err)
	}

	missing := AdminConnector{Client: f.client, ClassID: classEcho}
	if _, err := missing.ConnectAdmin(context.Background()); !errors.Is(err, ErrNotServed) {
		t.Fatalf("ConnectAdmin for an unserved class error = %v", err)
	}
}

func TestMalformedRequests(t *testing.T) {
	f := newFixture(t, classEcho)
	socketPath := SocketPath(f.runDir, classEcho)

	tests := []struct {
		name    string
		request any
		code    string
	}{
		{"missing action", map[string]any{"instance": uuid.NewString()}, CodeInvalid},
		{"missing instance", map[string]any{"action": "echo"}, CodeInvalid},
		{"bad instance", map[string]any{"action": "echo", "instance": "nope"}, CodeInvalid},
		{"not a map", []string{"echo"}, CodeInvalid},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			response := sendRaw(t, socketPath, test.request)
			if response.OK || response.Code != test.code {
				t.Fatalf("response = %+v, want code %q", response, test.code)
			}
		})
	}
}

func sendRaw(t *testing.T, socketPath string, request any) Response {
	t.Helper()
	conn, err := net.DialTimeout("unix", socketPath, 5*time.Second)
	if err != nil {
		t.Fatalf("connecting: %v", err)
	}
	defer conn.Close()

	if err := codec.NewEncoder(conn).Encode(request); err != nil {
		t.Fatalf("writing request: %v", err)
	}
	if unixConn, ok := conn.(*net.UnixConn); ok {
		unixConn.CloseWrite()
	}

	var response Response
	if err := codec.NewDecoder(conn).Decode(&response); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	return response
}
