// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package lifecycle owns the lifetime of an activation server process.
//
// A [Server] registers class factories with a [Module] (the transport
// that accepts activation requests), counts outstanding references, and
// signals shutdown when the count drops to zero:
//
//	Idle -> Activating -> Active -> Draining -> Terminated
//
// Register moves Idle to Activating; the first reference moves to
// Active. The release that brings the count to zero moves to Draining
// and wakes [Server.Run], which revokes every registration, moves to
// Terminated, and closes [Server.Done]. Revocation happens on the
// goroutine calling Run, never inside a releasing client's request.
//
// A watchdog armed after registration re-checks the count once the
// grace period has passed. It drains a server nobody ever activated and
// is a no-op otherwise; it never stops a server with outstanding
// references. [Server.Shutdown] requests a drain after a delay
// regardless of the count.
package lifecycle
