// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package elevation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/bureau-foundation/loopback/lib/binhash"
	"github.com/bureau-foundation/loopback/lib/clock"
	"github.com/bureau-foundation/loopback/lib/process"
	"github.com/bureau-foundation/loopback/lib/watchdog"
)

// DefaultReconnectDelay is how long the broker waits after a relaunch
// before the single reconnection attempt.
const DefaultReconnectDelay = 50 * time.Millisecond

// State is the phase of the most recent elevation attempt.
type State int

const (
	NotElevated State = iota
	Relaunching
	Reconnecting
	Ready
	Failed
)

func (s State) String() string {
	switch s {
	case NotElevated:
		return "not-elevated"
	case Relaunching:
		return "relaunching"
	case Reconnecting:
		return "reconnecting"
	case Ready:
		return "ready"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Handle is a connection to an admin server instance.
type Handle interface {
	// PID is the admin server's process id.
	PID() int

	// Running reports whether the admin server still answers for this
	// handle.
	Running(ctx context.Context) bool

	// Release drops the handle's reference on the admin server.
	Release(ctx context.Context) error
}

// Connector connects to a running admin server.
type Connector interface {
	ConnectAdmin(ctx context.Context) (Handle, error)
}

// Launcher asks the OS to start executable with administrator rights.
// A dismissed consent prompt is reported as ErrDeclined.
type Launcher interface {
	Launch(executable string, args []string) error
}

// Options configures a Broker.
type Options struct {
	Connector Connector

	// Launcher defaults to SystemLauncher.
	Launcher Launcher

	// Clock drives the reconnect delay. Defaults to the real clock.
	Clock clock.Clock

	Logger *slog.Logger

	// IsElevated reports whether this process already has
	// administrator rights. Defaults to Elevated. Called once.
	IsElevated func() (bool, error)

	// Executable is relaunched. Defaults to the running binary.
	Executable string

	// Arguments are passed to the relaunched process.
	Arguments []string

	// ReconnectDelay defaults to DefaultReconnectDelay.
	ReconnectDelay time.Duration

	// Self is returned when this process is elevated.
	Self Handle

	// HandoffPath, when set, receives a watchdog record before each
	// relaunch.
	HandoffPath string
}

// Broker serializes elevation attempts and caches the admin handle.
type Broker struct {
	connector   Connector
	launcher    Launcher
	clock       clock.Clock
	logger      *slog.Logger
	isElevated  func() (bool, error)
	executable  string
	arguments   []string
	delay       time.Duration
	self        Handle
	handoffPath string

	elevatedOnce sync.Once
	elevated     bool

	// attempt serializes GetAdminServer across the consent prompt and
	// the reconnect delay. mu guards the fields below and is never held
	// across a blocking call.
	attempt sync.Mutex

	mu          sync.Mutex
	state       State
	cached      Handle
	lastAttempt time.Time
}

// NewBroker returns a Broker in the NotElevated state.
func NewBroker(options Options) *Broker {
	if options.Launcher == nil {
		options.Launcher = SystemLauncher()
	}
	if options.Clock == nil {
		options.Clock = clock.Real()
	}
	if options.Logger == nil {
		options.Logger = slog.New(slog.DiscardHandler)
	}
	if options.IsElevated == nil {
		options.IsElevated = Elevated
	}
	if options.ReconnectDelay <= 0 {
		options.ReconnectDelay = DefaultReconnectDelay
	}
	return &Broker{
		connector:   options.Connector,
		launcher:    options.Launcher,
		clock:       options.Clock,
		logger:      options.Logger,
		isElevated:  options.IsElevated,
		executable:  options.Executable,
		arguments:   options.Arguments,
		delay:       options.ReconnectDelay,
		self:        options.Self,
		handoffPath: options.HandoffPath,
	}
}

// IsElevated reports whether this process has administrator rights.
// The check runs once; a failed check counts as not elevated.
func (b *Broker) IsElevated() bool {
	b.elevatedOnce.Do(func() {
		elevated, err := b.isElevated()
		if err != nil {
			b.logger.Warn("administrator check failed, assuming not elevated", "error", err)
			return
		}
		b.elevated = elevated
	})
	return b.elevated
}

// State returns the phase of the most recent attempt.
func (b *Broker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// LastAttempt returns when the broker last requested a relaunch, or
// the zero time.
func (b *Broker) LastAttempt() time.Time {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.lastAttempt
}

// GetAdminServer returns a handle to the admin server, relaunching
// elevated if necessary. Concurrent callers wait for the attempt in
// flight. Failures are *Error and leave nothing cached.
func (b *Broker) GetAdminServer(ctx context.Context) (Handle, error) {
	b.attempt.Lock()
	defer b.attempt.Unlock()

	if b.IsElevated() {
		if b.self == nil {
			b.setState(Failed)
			return nil, &Error{Stage: "self", Err: errors.New("elevated process has no admin handle of its own")}
		}
		b.setState(Ready)
		return b.self, nil
	}

	if cached := b.cachedHandle(); cached != nil {
		if cached.Running(ctx) {
			return cached, nil
		}
		b.logger.Info("cached admin server is gone", "pid", cached.PID())
		b.dropCached(cached)
		if err := cached.Release(ctx); err != nil {
			b.logger.Debug("releasing unresponsive admin server", "pid", cached.PID(), "error", err)
		}
	}

	handle, err := b.connector.ConnectAdmin(ctx)
	if err == nil {
		b.logger.Info("connected to running admin server", "pid", handle.PID())
		return b.ready(handle), nil
	}
	b.logger.Debug("no admin server running", "error", err)

	now := b.clock.Now()
	b.mu.Lock()
	b.state = Relaunching
	b.lastAttempt = now
	b.mu.Unlock()

	executable := b.executable
	if executable == "" {
		if executable, err = process.Executable(); err != nil {
			return nil, b.fail("relaunch", err)
		}
	}
	b.writeHandoff(executable, now)

	b.logger.Info("requesting elevated relaunch", "executable", executable)
	if err := b.launcher.Launch(executable, b.arguments); err != nil {
		return nil, b.fail("relaunch", err)
	}

	b.setState(Reconnecting)
	select {
	case <-b.clock.After(b.delay):
	case <-ctx.Done():
		return nil, b.fail("reconnect", ctx.Err())
	}

	handle, err = b.connector.ConnectAdmin(ctx)
	if err != nil {
		return nil, b.fail("reconnect", err)
	}
	b.logger.Info("connected to elevated server", "pid", handle.PID())
	return b.ready(handle), nil
}

// Close releases the cached admin handle, if any.
func (b *Broker) Close(ctx context.Context) error {
	b.mu.Lock()
	handle := b.cached
	b.cached = nil
	b.mu.Unlock()

	if handle == nil {
		return nil
	}
	if err := handle.Release(ctx); err != nil {
		return fmt.Errorf("releasing admin server (pid %d): %w", handle.PID(), err)
	}
	return nil
}

func (b *Broker) setState(state State) {
	b.mu.Lock()
	b.state = state
	b.mu.Unlock()
}

func (b *Broker) cachedHandle() Handle {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.cached
}

// dropCached clears the cache if it still holds handle; Close may have
// taken it in the meantime.
func (b *Broker) dropCached(handle Handle) {
	b.mu.Lock()
	if b.cached == handle {
		b.cached = nil
	}
	b.mu.Unlock()
}

func (b *Broker) ready(handle Handle) Handle {
	b.mu.Lock()
	b.cached = handle
	b.state = Ready
	b.mu.Unlock()
	return handle
}

func (b *Broker) fail(stage string, err error) error {
	b.setState(Failed)
	b.logger.Warn("elevation failed", "stage", stage, "error", err)
	return &Error{Stage: stage, Err: err}
}

// writeHandoff records the relaunch request. Failure is logged; the
// record is diagnostic only.
func (b *Broker) writeHandoff(executable string, requested time.Time) {
	if b.handoffPath == "" {
		return
	}
	state := watchdog.State{
		Component:   "loopback-server",
		Executable:  executable,
		RequestedBy: os.Getpid(),
		Timestamp:   requested,
	}
	if digest, err := binhash.HashFile(executable); err == nil {
		state.Digest = binhash.FormatDigest(digest)
	} else {
		b.logger.Debug("hashing executable for handoff", "error", err)
	}
	if err := watchdog.Write(b.handoffPath, state); err != nil {
		b.logger.Warn("writing elevation handoff", "path", b.handoffPath, "error", err)
	}
}
