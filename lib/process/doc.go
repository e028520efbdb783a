// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package process provides the process-level helpers shared by the
// loopback binaries:
//
//   - [Fatal] reports an unrecoverable error from main() to stderr,
//     where the structured logger may not exist yet, and exits 1.
//   - [IsAlive] reports whether a pid names a running process. The
//     elevation broker and the client use it to decide whether a cached
//     server connection is worth probing.
//   - [StartDetached] launches a server binary that outlives the
//     process that started it.
package process
