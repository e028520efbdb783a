// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package loopbackclient

import (
	"context"
	"time"

	"github.com/bureau-foundation/loopback/lib/activation"
	"github.com/bureau-foundation/loopback/lib/appcontainer"
	"github.com/bureau-foundation/loopback/lib/loopbackserver"
)

// Manager is an activated LoopUtil, ServerManager, or
// ServerManagerAdmin instance.
type Manager struct {
	object *activation.Object
}

// PID returns the serving process id.
func (m *Manager) PID() int { return m.object.PID() }

// ClassName returns the name of the activated class.
func (m *Manager) ClassName() string { return loopbackserver.ClassName(m.object.ClassID()) }

// ListAppContainers re-enumerates the app containers, optionally
// filtered by display name.
func (m *Manager) ListAppContainers(ctx context.Context, filter string) ([]appcontainer.Record, error) {
	var result loopbackserver.ListResult
	err := m.object.Call(ctx, loopbackserver.MethodListAppContainers, map[string]any{"filter": filter}, &result)
	return result.AppContainers, err
}

func (m *Manager) AddExemption(ctx context.Context, sid string) error {
	return m.object.Call(ctx, loopbackserver.MethodAddExemption, map[string]any{"sid": sid}, nil)
}

func (m *Manager) AddExemptions(ctx context.Context, sids []string) error {
	return m.object.Call(ctx, loopbackserver.MethodAddExemptions, map[string]any{"sids": sids}, nil)
}

func (m *Manager) RemoveExemption(ctx context.Context, sid string) error {
	return m.object.Call(ctx, loopbackserver.MethodRemoveExemption, map[string]any{"sid": sid}, nil)
}

func (m *Manager) RemoveExemptions(ctx context.Context, sids []string) error {
	return m.object.Call(ctx, loopbackserver.MethodRemoveExemptions, map[string]any{"sids": sids}, nil)
}

// SetExemptionList replaces the exemption list with exactly sids.
func (m *Manager) SetExemptionList(ctx context.Context, sids []string) error {
	if sids == nil {
		sids = []string{}
	}
	return m.object.Call(ctx, loopbackserver.MethodSetExemptionList, map[string]any{"sids": sids}, nil)
}

// RequestAdminInstance asks the server for an elevated admin server.
func (m *Manager) RequestAdminInstance(ctx context.Context) (loopbackserver.AdminInstance, error) {
	var result loopbackserver.AdminInstance
	err := m.object.Call(ctx, loopbackserver.MethodRequestAdminInstance, nil, &result)
	return result, err
}

// Shutdown asks the server to stop and returns the delay it applies.
func (m *Manager) Shutdown(ctx context.Context) (time.Duration, error) {
	var result loopbackserver.ShutdownResult
	if err := m.object.Call(ctx, loopbackserver.MethodShutdown, nil, &result); err != nil {
		return 0, err
	}
	return time.Duration(result.DelayMilliseconds) * time.Millisecond, nil
}

func (m *Manager) IsServerRunning(ctx context.Context) (loopbackserver.ServerStatus, error) {
	var result loopbackserver.ServerStatus
	err := m.object.Call(ctx, loopbackserver.MethodIsServerRunning, nil, &result)
	return result, err
}

func (m *Manager) IsRunAsAdministrator(ctx context.Context) (bool, error) {
	var result loopbackserver.AdministratorStatus
	err := m.object.Call(ctx, loopbackserver.MethodIsRunAsAdministrator, nil, &result)
	return result.Elevated, err
}

// Release drops the activation.
func (m *Manager) Release(ctx context.Context) error { return m.object.Release(ctx) }

// AppContainers is an activated AppContainer instance.
type AppContainers struct {
	object *activation.Object
}

// Get returns the cached record for sid.
func (a *AppContainers) Get(ctx context.Context, sid string) (appcontainer.Record, error) {
	var record appcontainer.Record
	err := a.object.Call(ctx, loopbackserver.MethodGet, map[string]any{"sid": sid}, &record)
	return record, err
}

// List returns the cached records, optionally filtered by display name.
func (a *AppContainers) List(ctx context.Context, filter string) ([]appcontainer.Record, error) {
	var result loopbackserver.ListResult
	err := a.object.Call(ctx, loopbackserver.MethodList, map[string]any{"filter": filter}, &result)
	return result.AppContainers, err
}

// Release drops the activation.
func (a *AppContainers) Release(ctx context.Context) error { return a.object.Release(ctx) }
