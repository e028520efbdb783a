// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package watchdog records an in-flight privileged relaunch so the
// process that comes up on the other side can recognize it.
//
// The non-elevated server writes a [State] just before asking the OS to
// relaunch its executable elevated. The elevated server calls [Check]
// on start: a recent record tells it that it was started by an
// elevation request, by which pid, and whether the binary it runs is
// the one that was requested ([State.Verify]). It then calls [Clear].
// A consent prompt the user declined leaves the record behind; the
// staleness bound in Check keeps a later, unrelated start from
// mistaking it for its own.
//
// Writes are atomic (temporary file, fsync, rename, fsync of the parent
// directory), so a reader never sees a partial record.
package watchdog
