// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package loopbackserver

import "github.com/bureau-foundation/loopback/lib/appcontainer"

// Manager methods, answered by LoopUtil, ServerManager, and
// ServerManagerAdmin.
const (
	MethodListAppContainers    = "list_app_containers"
	MethodAddExemption         = "add_exemption"
	MethodAddExemptions        = "add_exemptions"
	MethodRemoveExemption      = "remove_exemption"
	MethodRemoveExemptions     = "remove_exemptions"
	MethodSetExemptionList     = "set_exemption_list"
	MethodRequestAdminInstance = "request_admin_instance"
	MethodShutdown             = "shutdown"
	MethodIsServerRunning      = "is_server_running"
	MethodIsRunAsAdministrator = "is_run_as_administrator"
)

// AppContainer methods.
const (
	MethodGet  = "get"
	MethodList = "list"
)

// ListRequest is the request of list_app_containers and list.
type ListRequest struct {
	Filter string `cbor:"filter,omitempty"`
}

// SIDRequest is the request of add_exemption, remove_exemption, and
// get.
type SIDRequest struct {
	SID string `cbor:"sid"`
}

// SIDsRequest is the request of add_exemptions, remove_exemptions, and
// set_exemption_list.
type SIDsRequest struct {
	SIDs []string `cbor:"sids"`
}

// ListResult carries app container records.
type ListResult struct {
	AppContainers []appcontainer.Record `cbor:"app_containers"`
}

// AdminInstance says where the admin server is. ClassID is always
// ServerManagerAdmin.
type AdminInstance struct {
	ClassID  string `cbor:"class_id"`
	PID      int    `cbor:"pid"`
	Elevated bool   `cbor:"elevated"`
}

// ServerStatus is the result of is_server_running.
type ServerStatus struct {
	Running  bool   `cbor:"running"`
	PID      int    `cbor:"pid"`
	State    string `cbor:"state"`
	RefCount int    `cbor:"ref_count"`
}

// AdministratorStatus is the result of is_run_as_administrator.
type AdministratorStatus struct {
	Elevated bool `cbor:"elevated"`
}

// ShutdownResult is the result of shutdown.
type ShutdownResult struct {
	DelayMilliseconds int64 `cbor:"delay_ms"`
}
