// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package elevation obtains a connection to the administrator instance
// of the server, relaunching the current executable elevated when none
// is running.
//
// [Broker.GetAdminServer] runs one attempt at a time:
//
//  1. A cached handle that still reports itself running is returned.
//  2. Otherwise a direct connection to an already-running admin server
//     is tried.
//  3. Otherwise the broker records a handoff file, asks the OS to
//     relaunch its own executable elevated (the consent prompt belongs
//     to the OS), waits ReconnectDelay for the new process to register,
//     and connects exactly once more.
//
// The attempt moves through NotElevated, Relaunching, Reconnecting, and
// ends in Ready or Failed. A process that is already elevated is its
// own admin server: the broker returns Options.Self and never
// relaunches.
package elevation
