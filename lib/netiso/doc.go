// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package netiso adapts the Windows network isolation API to portable
// values. A [Gateway] enumerates app containers, reads the loopback
// exemption list, and replaces it wholesale; native SID buffers never
// leave this package, only their string forms do.
//
// Two implementations exist:
//
//   - [OpenSystem] binds FirewallAPI.dll by dynamic symbol lookup. All
//     symbols are resolved up front, so a host without the library
//     fails at construction with a [QueryError] wrapping
//     [ErrUnavailable] instead of failing on first use. On platforms
//     other than Windows OpenSystem always fails that way.
//   - [Memory] simulates the OS list in process. It backs the tests and
//     the "memory" isolation backend used on development hosts, and
//     can be seeded from a JSONC file with [LoadMemory].
//
// Failure policy: enumeration and writes report a [QueryError]; reading
// the exemption list never fails and degrades to an empty set. A SID
// that cannot be converted is dropped from the result (a
// [ConversionError] is logged at debug level) rather than failing the
// whole call, which keeps partially populated containers listable.
package netiso
