// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package testutil provides shared test helpers.
//
// [SocketDir] creates a short temporary directory for Unix domain
// sockets. Socket paths are limited to 108 bytes (sun_path), and
// t.TempDir() paths plus a 36-character class id can exceed that.
//
// [RequireReceive] and [RequireClosed] wrap the select-with-timeout
// safety valve so tests that wait on goroutines fail instead of
// hanging. They are the only place tests use real wall-clock timeouts;
// everything timed in the code under test runs on clock.Fake.
//
// All helpers call t.Fatalf on failure.
package testutil
