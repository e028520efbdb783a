// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package version provides build version information for the loopback
// binaries.
//
// Three variables are injected at build time via -ldflags -X:
// [GitCommit], [GitDirty], and [BuildTime]. [Version] is set by hand
// for releases. Uninjected builds report "unknown" and "0.1.0-dev".
//
//   - [Info] -- "0.1.0-dev (abc1234, 2026-...)" for --version
//   - [Full] -- Info plus Go version and GOOS/GOARCH
//   - [Print] -- writes "<name> <Info>" to stdout
package version
