// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package cli is the command framework of the loopback CLI: a tree of
// [Command] values with pflag flag sets, help output, typo
// suggestions, categorized errors ([ToolError]), and handled exit
// codes ([ExitError]).
package cli
