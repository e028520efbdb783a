// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package appcontainer defines the snapshot of one Windows app container
// ([Record]) and the set of container SIDs that are exempt from loopback
// isolation ([SIDSet]).
//
// A Record is built once from an enumeration entry and never mutated:
// the loopback flag is decided at construction by testing the container
// SID against the exempt set fetched in the same listing. Slices handed
// out by a Record are copies.
//
// This package has no dependencies on other loopback packages.
package appcontainer
