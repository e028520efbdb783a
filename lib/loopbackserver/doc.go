// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package loopbackserver defines the activatable classes served by
// loopback-server and the methods each one answers.
//
// Four class ids exist. A non-elevated server registers [LoopUtil],
// [AppContainer], and [ServerManager]. An elevated server registers
// only [ServerManagerAdmin], so a client can always tell which process
// it is talking to from the class it activated.
//
// The exemption methods are the same on every manager class; they
// differ in which process runs them and in the delay applied by
// shutdown. request_admin_instance asks the [elevation.Broker] for an
// admin server and reports where it is; the caller then activates
// [ServerManagerAdmin] itself.
//
// Request and result types in protocol.go are shared with
// lib/loopbackclient.
package loopbackserver
