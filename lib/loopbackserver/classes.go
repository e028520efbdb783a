// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package loopbackserver

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/bureau-foundation/loopback/lib/elevation"
	"github.com/bureau-foundation/loopback/lib/lifecycle"
	"github.com/bureau-foundation/loopback/lib/loopback"
)

// Class ids.
var (
	ServerManager      = uuid.MustParse("50169480-3FB8-4A19-AAED-ED9170811A3A")
	ServerManagerAdmin = uuid.MustParse("F745AC80-D07E-4F0F-B541-BDA61907F234")
	LoopUtil           = uuid.MustParse("3C2C8A4E-6B1F-4E55-9F3A-2D8F2E6B7C10")
	AppContainer       = uuid.MustParse("8E0B7D52-1A4C-4F3B-B9D6-5C7A0E2F4A31")
)

// Delays applied by the shutdown method before the server drains.
const (
	LoopUtilShutdownDelay      = time.Second
	ServerManagerShutdownDelay = 50 * time.Millisecond
)

// ClassName returns a readable name for a class id, or the id itself.
func ClassName(classID uuid.UUID) string {
	switch classID {
	case ServerManager:
		return "ServerManager"
	case ServerManagerAdmin:
		return "ServerManagerAdmin"
	case LoopUtil:
		return "LoopUtil"
	case AppContainer:
		return "AppContainer"
	default:
		return classID.String()
	}
}

// Options configures a Service.
type Options struct {
	Registry *loopback.Registry

	// Server receives shutdown requests and reports status.
	Server *lifecycle.Server

	// Broker answers request_admin_instance and is_run_as_administrator.
	Broker *elevation.Broker

	Logger *slog.Logger
}

// Service holds the state shared by every instance of every class.
type Service struct {
	registry *loopback.Registry
	server   *lifecycle.Server
	broker   *elevation.Broker
	logger   *slog.Logger
}

// New returns a Service. Registry, Server, and Broker are required.
func New(options Options) *Service {
	if options.Logger == nil {
		options.Logger = slog.New(slog.DiscardHandler)
	}
	return &Service{
		registry: options.Registry,
		server:   options.Server,
		broker:   options.Broker,
		logger:   options.Logger,
	}
}

// Classes returns the class ids this process serves.
func (s *Service) Classes() []uuid.UUID {
	if s.broker.IsElevated() {
		return []uuid.UUID{ServerManagerAdmin}
	}
	return []uuid.UUID{LoopUtil, AppContainer, ServerManager}
}

// Factories returns one factory per class in Classes, for
// lifecycle.Server.Register.
func (s *Service) Factories() []lifecycle.Factory {
	classes := s.Classes()
	factories := make([]lifecycle.Factory, 0, len(classes))
	for _, classID := range classes {
		factories = append(factories, s.factory(classID))
	}
	return factories
}

func (s *Service) factory(classID uuid.UUID) lifecycle.Factory {
	name := ClassName(classID)
	return lifecycle.Factory{
		ClassID: classID,
		Name:    name,
		New: func(context.Context) (lifecycle.Instance, error) {
			switch classID {
			case AppContainer:
				return &appContainerInstance{service: s}, nil
			case LoopUtil:
				return &managerInstance{service: s, class: name, shutdownDelay: LoopUtilShutdownDelay}, nil
			case ServerManager, ServerManagerAdmin:
				return &managerInstance{service: s, class: name, shutdownDelay: ServerManagerShutdownDelay}, nil
			default:
				return nil, fmt.Errorf("no instance type for class %s", classID)
			}
		},
	}
}

// Self returns the admin handle an elevated server hands out for
// itself.
func Self() elevation.Handle { return selfHandle{} }

type selfHandle struct{}

func (selfHandle) PID() int                      { return os.Getpid() }
func (selfHandle) Running(context.Context) bool  { return true }
func (selfHandle) Release(context.Context) error { return nil }
