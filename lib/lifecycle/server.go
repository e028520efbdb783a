// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package lifecycle

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/bureau-foundation/loopback/lib/clock"
)

// DefaultWatchdogGrace is how long after registration the watchdog
// re-checks the reference count.
const DefaultWatchdogGrace = 10 * time.Second

// Options configures a Server.
type Options struct {
	// Clock drives the watchdog and delayed shutdowns. Defaults to the
	// real clock.
	Clock clock.Clock

	Logger *slog.Logger

	// WatchdogGrace defaults to DefaultWatchdogGrace.
	WatchdogGrace time.Duration
}

type registration struct {
	token   Token
	classID uuid.UUID
	name    string
}

// Server is the process-wide reference count, exit signal, and set of
// class registrations. Construct one per process and share it with
// every activation path.
type Server struct {
	module Module
	clock  clock.Clock
	logger *slog.Logger
	grace  time.Duration

	mu            sync.Mutex
	state         State
	refs          int
	registrations []registration
	watchdog      *clock.Timer
	shutdown      *clock.Timer
	stopRequested bool

	drain     chan struct{}
	drainOnce sync.Once
	done      chan struct{}
}

// New returns an Idle server that registers classes with module.
func New(module Module, options Options) *Server {
	if options.Clock == nil {
		options.Clock = clock.Real()
	}
	if options.Logger == nil {
		options.Logger = slog.New(slog.DiscardHandler)
	}
	if options.WatchdogGrace <= 0 {
		options.WatchdogGrace = DefaultWatchdogGrace
	}
	return &Server{
		module: module,
		clock:  options.Clock,
		logger: options.Logger,
		grace:  options.WatchdogGrace,
		drain:  make(chan struct{}),
		done:   make(chan struct{}),
	}
}

// Register registers every factory with the module, each under its own
// token, and arms the watchdog. If any registration fails, the ones
// already made are revoked and a *RegistrationError is returned.
// Register may be called once, on an Idle server.
func (s *Server) Register(factories ...Factory) error {
	s.mu.Lock()
	if s.state != Idle {
		state := s.state
		s.mu.Unlock()
		return &RegistrationError{Name: "server", Err: errors.New("register called in state " + state.String())}
	}
	s.state = Activating
	s.mu.Unlock()

	// The module may deliver activations as soon as a class is
	// registered, so the lock is not held across Register calls.
	var registered []registration
	for _, factory := range factories {
		token, err := s.module.Register(factory.ClassID, &classObject{server: s, factory: factory})
		if err != nil {
			s.revoke(registered)
			s.mu.Lock()
			if s.state == Activating {
				s.state = Idle
			}
			s.mu.Unlock()
			return &RegistrationError{ClassID: factory.ClassID, Name: factory.Name, Err: err}
		}
		registered = append(registered, registration{token: token, classID: factory.ClassID, name: factory.Name})
		s.logger.Info("class registered", "class", factory.Name, "class_id", factory.ClassID)
	}

	s.mu.Lock()
	if s.state >= Draining {
		// Drained while registering: Run has already revoked what it
		// knew about, which did not include these.
		s.mu.Unlock()
		s.revoke(registered)
		return nil
	}
	s.registrations = registered
	s.mu.Unlock()

	watchdog := s.clock.AfterFunc(s.grace, s.checkIdle)
	s.mu.Lock()
	s.watchdog = watchdog
	s.mu.Unlock()
	return nil
}

// AddRef takes a server reference. It fails with ErrDraining once the
// server has started shutting down.
func (s *Server) AddRef() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state >= Draining {
		return ErrDraining
	}
	s.refs++
	s.state = Active
	return nil
}

// Release drops a server reference. The release that reaches zero
// starts draining. Releasing with no references held is logged and
// ignored.
func (s *Server) Release() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.refs == 0 {
		s.logger.Warn("release with no outstanding references")
		return
	}
	s.refs--
	if s.refs == 0 && s.state == Active {
		s.beginDrainLocked("last reference released")
	}
}

// RefCount returns the number of outstanding references.
func (s *Server) RefCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.refs
}

// State returns the current lifecycle phase.
func (s *Server) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Shutdown starts draining after delay regardless of the reference
// count. Only the first request is scheduled.
func (s *Server) Shutdown(delay time.Duration) {
	s.mu.Lock()
	if s.stopRequested || s.state >= Draining {
		s.mu.Unlock()
		return
	}
	s.stopRequested = true
	s.mu.Unlock()

	s.logger.Info("shutdown requested", "delay", delay)
	timer := s.clock.AfterFunc(delay, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.beginDrainLocked("shutdown requested")
	})

	s.mu.Lock()
	s.shutdown = timer
	s.mu.Unlock()
}

// Run blocks until the server starts draining or ctx is done, then
// revokes every registration and closes Done. Revocation failures are
// logged and do not stop the remaining revocations. Call Run once.
func (s *Server) Run(ctx context.Context) {
	select {
	case <-s.drain:
	case <-ctx.Done():
		s.mu.Lock()
		s.beginDrainLocked("context done")
		s.mu.Unlock()
	}

	s.mu.Lock()
	registrations := s.registrations
	s.registrations = nil
	if s.watchdog != nil {
		s.watchdog.Stop()
	}
	if s.shutdown != nil {
		s.shutdown.Stop()
	}
	s.mu.Unlock()

	s.revoke(registrations)

	s.mu.Lock()
	s.state = Terminated
	s.mu.Unlock()
	s.logger.Info("server terminated")
	close(s.done)
}

// Done is closed once the server has terminated.
func (s *Server) Done() <-chan struct{} { return s.done }

// checkIdle is the watchdog callback.
func (s *Server) checkIdle() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.refs > 0 || s.state >= Draining {
		s.logger.Debug("watchdog check", "state", s.state, "references", s.refs)
		return
	}
	s.beginDrainLocked("no clients within watchdog grace period")
}

func (s *Server) beginDrainLocked(reason string) {
	if s.state >= Draining {
		return
	}
	s.state = Draining
	s.drainOnce.Do(func() { close(s.drain) })
	s.logger.Info("server draining", "reason", reason)
}

func (s *Server) revoke(registrations []registration) {
	for _, r := range registrations {
		if err := s.module.Revoke(r.token); err != nil {
			s.logger.Error("revoking class registration",
				"class", r.name,
				"class_id", r.classID,
				"error", err,
			)
		}
	}
}
