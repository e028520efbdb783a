// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package loopbackserver

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/bureau-foundation/loopback/lib/codec"
)

// managerInstance answers the exemption methods. Instances are
// stateless; everything lives in the shared Service.
type managerInstance struct {
	service       *Service
	class         string
	shutdownDelay time.Duration
}

func (m *managerInstance) Invoke(ctx context.Context, method string, raw []byte) (any, error) {
	registry := m.service.registry

	switch method {
	case MethodListAppContainers:
		var request ListRequest
		if err := decode(method, raw, &request); err != nil {
			return nil, err
		}
		records, err := registry.ListAppContainers()
		if err != nil {
			return nil, err
		}
		if request.Filter != "" {
			if records, err = registry.Filter(request.Filter); err != nil {
				return nil, err
			}
		}
		return ListResult{AppContainers: records}, nil

	case MethodAddExemption, MethodRemoveExemption:
		var request SIDRequest
		if err := decode(method, raw, &request); err != nil {
			return nil, err
		}
		if method == MethodAddExemption {
			return nil, registry.AddExemption(request.SID)
		}
		return nil, registry.RemoveExemption(request.SID)

	case MethodAddExemptions, MethodRemoveExemptions, MethodSetExemptionList:
		var request SIDsRequest
		if err := decode(method, raw, &request); err != nil {
			return nil, err
		}
		switch method {
		case MethodAddExemptions:
			return nil, registry.AddExemptions(request.SIDs)
		case MethodRemoveExemptions:
			return nil, registry.RemoveExemptions(request.SIDs)
		default:
			return nil, registry.SetExemptionList(request.SIDs)
		}

	case MethodRequestAdminInstance:
		handle, err := m.service.broker.GetAdminServer(ctx)
		if err != nil {
			return nil, err
		}
		return AdminInstance{
			ClassID:  ServerManagerAdmin.String(),
			PID:      handle.PID(),
			Elevated: m.service.broker.IsElevated(),
		}, nil

	case MethodShutdown:
		m.service.logger.Info("shutdown requested",
			"class", m.class,
			"delay", m.shutdownDelay,
		)
		m.service.server.Shutdown(m.shutdownDelay)
		return ShutdownResult{DelayMilliseconds: m.shutdownDelay.Milliseconds()}, nil

	case MethodIsServerRunning:
		return ServerStatus{
			Running:  true,
			PID:      os.Getpid(),
			State:    m.service.server.State().String(),
			RefCount: m.service.server.RefCount(),
		}, nil

	case MethodIsRunAsAdministrator:
		return AdministratorStatus{Elevated: m.service.broker.IsElevated()}, nil

	default:
		return nil, unknownMethod(m.class, method)
	}
}

func decode(method string, raw []byte, v any) error {
	if err := codec.Unmarshal(raw, v); err != nil {
		return &requestError{code: "invalid", message: fmt.Sprintf("invalid %s request: %v", method, err)}
	}
	return nil
}

func unknownMethod(class, method string) error {
	return &requestError{code: "invalid", message: fmt.Sprintf("%s has no method %q", class, method)}
}

// requestError is a malformed request to a class method.
type requestError struct {
	code    string
	message string
}

func (e *requestError) Error() string     { return e.message }
func (e *requestError) ErrorCode() string { return e.code }
