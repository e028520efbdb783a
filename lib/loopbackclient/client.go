// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package loopbackclient

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/bureau-foundation/loopback/lib/activation"
	"github.com/bureau-foundation/loopback/lib/clock"
	"github.com/bureau-foundation/loopback/lib/loopbackserver"
	"github.com/bureau-foundation/loopback/lib/process"
)

// Defaults for the server auto-launch.
const (
	DefaultLaunchTimeout = 5 * time.Second
	DefaultPollInterval  = 100 * time.Millisecond
)

// Options configures a Client.
type Options struct {
	// RunDir holds the class sockets.
	RunDir string

	// ServerBinary is started when no server is running. Empty
	// disables auto-launch.
	ServerBinary string

	// ServerArguments are passed to ServerBinary.
	ServerArguments []string

	// Start launches ServerBinary. Defaults to process.StartDetached.
	Start func(path string, args ...string) (int, error)

	Clock  clock.Clock
	Logger *slog.Logger

	// LaunchTimeout bounds the wait for a started server to register.
	LaunchTimeout time.Duration

	// PollInterval is the delay between activation attempts while
	// waiting.
	PollInterval time.Duration
}

// Client activates loopback-server classes.
type Client struct {
	activation *activation.Client
	options    Options

	launchMu sync.Mutex

	mu      sync.Mutex
	manager *Manager
}

// New returns a Client for the server serving options.RunDir.
func New(options Options) *Client {
	if options.Start == nil {
		options.Start = process.StartDetached
	}
	if options.Clock == nil {
		options.Clock = clock.Real()
	}
	if options.Logger == nil {
		options.Logger = slog.New(slog.DiscardHandler)
	}
	if options.LaunchTimeout <= 0 {
		options.LaunchTimeout = DefaultLaunchTimeout
	}
	if options.PollInterval <= 0 {
		options.PollInterval = DefaultPollInterval
	}
	return &Client{
		activation: activation.NewClient(options.RunDir),
		options:    options,
	}
}

// LoopUtil activates a new LoopUtil instance. The caller releases it.
func (c *Client) LoopUtil(ctx context.Context) (*Manager, error) {
	object, err := c.activate(ctx, loopbackserver.LoopUtil)
	if err != nil {
		return nil, err
	}
	return &Manager{object: object}, nil
}

// Activate activates a manager class (LoopUtil, ServerManager, or
// ServerManagerAdmin) without caching it. The caller releases it.
func (c *Client) Activate(ctx context.Context, classID uuid.UUID) (*Manager, error) {
	object, err := c.activate(ctx, classID)
	if err != nil {
		return nil, err
	}
	return &Manager{object: object}, nil
}

// AppContainers activates a new AppContainer instance. The caller
// releases it.
func (c *Client) AppContainers(ctx context.Context) (*AppContainers, error) {
	object, err := c.activate(ctx, loopbackserver.AppContainer)
	if err != nil {
		return nil, err
	}
	return &AppContainers{object: object}, nil
}

// ServerManager returns the cached ServerManager, activating a new one
// when there is none or the serving process no longer answers. The
// Client owns it; Close releases it.
func (c *Client) ServerManager(ctx context.Context) (*Manager, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.manager != nil {
		if c.manager.object.Running(ctx) {
			return c.manager, nil
		}
		c.options.Logger.Info("cached server manager is gone", "pid", c.manager.PID())
		c.manager = nil
	}

	object, err := c.activate(ctx, loopbackserver.ServerManager)
	if err != nil {
		return nil, err
	}
	c.manager = &Manager{object: object}
	return c.manager, nil
}

// Admin asks the ServerManager for an elevated server, relaunching one
// if needed, and activates the admin class in it. The caller releases
// the returned Manager.
func (c *Client) Admin(ctx context.Context) (*Manager, error) {
	manager, err := c.ServerManager(ctx)
	if err != nil {
		return nil, err
	}
	admin, err := manager.RequestAdminInstance(ctx)
	if err != nil {
		return nil, err
	}
	classID, err := uuid.Parse(admin.ClassID)
	if err != nil {
		return nil, fmt.Errorf("admin server reported invalid class %q: %w", admin.ClassID, err)
	}
	object, err := c.activation.Activate(ctx, classID)
	if err != nil {
		return nil, fmt.Errorf("activating admin server (pid %d): %w", admin.PID, err)
	}
	return &Manager{object: object}, nil
}

// Close releases the cached ServerManager.
func (c *Client) Close(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.manager == nil {
		return nil
	}
	manager := c.manager
	c.manager = nil
	return manager.Release(ctx)
}

// activate activates classID, starting the server first when it is not
// running and auto-launch is configured.
func (c *Client) activate(ctx context.Context, classID uuid.UUID) (*activation.Object, error) {
	object, err := c.activation.Activate(ctx, classID)
	if err == nil || !errors.Is(err, activation.ErrNotServed) || c.options.ServerBinary == "" {
		return object, err
	}

	c.launchMu.Lock()
	defer c.launchMu.Unlock()

	// Another caller may have started the server while this one waited.
	if object, err := c.activation.Activate(ctx, classID); err == nil || !errors.Is(err, activation.ErrNotServed) {
		return object, err
	}

	pid, err := c.options.Start(c.options.ServerBinary, c.options.ServerArguments...)
	if err != nil {
		return nil, fmt.Errorf("starting loopback server: %w", err)
	}
	c.options.Logger.Info("started loopback server",
		"binary", c.options.ServerBinary,
		"pid", pid,
	)

	deadline := c.options.Clock.Now().Add(c.options.LaunchTimeout)
	for {
		select {
		case <-c.options.Clock.After(c.options.PollInterval):
		case <-ctx.Done():
			return nil, ctx.Err()
		}

		object, err := c.activation.Activate(ctx, classID)
		if err == nil || !errors.Is(err, activation.ErrNotServed) {
			return object, err
		}
		if !c.options.Clock.Now().Before(deadline) {
			return nil, fmt.Errorf("loopback server (pid %d) did not serve %s within %s: %w",
				pid, loopbackserver.ClassName(classID), c.options.LaunchTimeout, err)
		}
	}
}
