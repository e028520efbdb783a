// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package config loads the YAML configuration shared by the loopback
// server and command-line client.
//
// Configuration comes from a single file named by the LOOPBACK_CONFIG
// environment variable (via [Load]) or a --config flag (via
// [LoadFile]). There is no discovery. A process started without either
// runs on [Default]; this is the normal case for a server relaunched
// elevated, which does not inherit its requester's environment and is
// instead handed --config explicitly.
//
// The file may carry development and production sections that override
// base values when [Config].Environment matches. Path fields expand
// ${HOME}, ${LOOPBACK_ROOT}, and ${VAR:-default}.
//
// The reconnect delay after an elevated relaunch and the watchdog grace
// period are fixed in code and deliberately not configurable.
package config
