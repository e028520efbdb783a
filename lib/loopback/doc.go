// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package loopback maintains the cached view of app containers and the
// loopback exemption list, and computes exemption changes against it.
//
// A [Registry] holds one snapshot: the container records from the
// last enumeration and the exempt SID set read alongside them. Every
// mutation derives the new list from that cached set and writes it to
// the [netiso.Gateway] in full. A cache that has gone stale because
// another process edited the list produces a stale write; callers that
// need the current OS state call [Registry.ListAppContainers] first.
package loopback
