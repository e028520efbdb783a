// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// loopback-server serves the loopback exemption classes over Unix
// sockets in the configured run directory.
//
// It is normally started by the loopback client when no server is
// running, and exits on its own once the last activation is released,
// on an explicit shutdown request, or when nobody activates anything
// within the watchdog grace period after start.
//
// A non-elevated server serves LoopUtil, AppContainer, and
// ServerManager. When an admin operation is requested it relaunches
// itself with administrator rights; the elevated copy serves only
// ServerManagerAdmin and receives the same paths and backend on its
// command line, since an elevated process does not inherit the
// requester's environment.
//
// Exit codes: 0 after a clean shutdown, 1 when the configuration is
// invalid or the classes cannot be registered (for example because
// another server already serves them).
package main
