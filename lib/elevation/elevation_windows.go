// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

//go:build windows

package elevation

import (
	"errors"
	"fmt"
	"path/filepath"

	"golang.org/x/sys/windows"
)

// Elevated reports whether the process token is a member of
// BUILTIN\Administrators. Under UAC a filtered token of an
// administrator is not a member until elevated.
func Elevated() (bool, error) {
	administrators, err := windows.CreateWellKnownSid(windows.WinBuiltinAdministratorsSid)
	if err != nil {
		return false, fmt.Errorf("creating administrators SID: %w", err)
	}
	// The zero token checks the calling thread's effective token.
	member, err := windows.Token(0).IsMember(administrators)
	if err != nil {
		return false, fmt.Errorf("checking token membership: %w", err)
	}
	return member, nil
}

// SystemLauncher relaunches through ShellExecute with the "runas" verb,
// which shows the consent prompt.
func SystemLauncher() Launcher { return shellLauncher{} }

type shellLauncher struct{}

func (shellLauncher) Launch(executable string, args []string) error {
	verb, err := windows.UTF16PtrFromString("runas")
	if err != nil {
		return err
	}
	file, err := windows.UTF16PtrFromString(executable)
	if err != nil {
		return fmt.Errorf("encoding executable path: %w", err)
	}
	parameters, err := windows.UTF16PtrFromString(windows.ComposeCommandLine(args))
	if err != nil {
		return fmt.Errorf("encoding arguments: %w", err)
	}
	directory, err := windows.UTF16PtrFromString(filepath.Dir(executable))
	if err != nil {
		return fmt.Errorf("encoding working directory: %w", err)
	}

	err = windows.ShellExecute(0, verb, file, parameters, directory, windows.SW_HIDE)
	if errors.Is(err, windows.ERROR_CANCELLED) {
		return ErrDeclined
	}
	if err != nil {
		return fmt.Errorf("ShellExecute runas %s: %w", executable, err)
	}
	return nil
}
