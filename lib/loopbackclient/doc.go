// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package loopbackclient is the typed client for loopback-server.
//
// [Client] activates the server's classes over lib/activation and wraps
// each activation in a proxy ([Manager], [AppContainers]) whose methods
// mirror the server's. When no server is running and a server binary
// is configured, the client starts it detached and retries activation
// until the server has registered its classes.
//
// The ServerManager activation is cached: later calls reuse it while
// the serving process still answers, and activate again otherwise.
// Admin mutations go through [Client.Admin], which asks the
// ServerManager for an elevated server and then activates the admin
// class directly.
package loopbackclient
