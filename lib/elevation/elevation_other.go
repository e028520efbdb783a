// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

//go:build !windows

package elevation

import "golang.org/x/sys/unix"

// Elevated reports whether the effective user is root.
func Elevated() (bool, error) {
	return unix.Geteuid() == 0, nil
}

// SystemLauncher returns a launcher that always fails with
// ErrUnsupported: there is no consent-prompt relaunch here.
func SystemLauncher() Launcher { return unsupportedLauncher{} }

type unsupportedLauncher struct{}

func (unsupportedLauncher) Launch(string, []string) error { return ErrUnsupported }
