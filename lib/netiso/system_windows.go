// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

//go:build windows

package netiso

import (
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"strings"
	"unsafe"

	"golang.org/x/sys/windows"

	"github.com/bureau-foundation/loopback/lib/appcontainer"
)

// netisoFlagForceComputeBinaries asks the enumeration to fill in the
// binaries of each container.
const netisoFlagForceComputeBinaries = 0x1

// indirectStringCapacity bounds a resolved "@{...}" display name.
const indirectStringCapacity = 1024

// Layouts of the FirewallAPI.dll structures (netfw.h).
type inetFirewallACCapabilities struct {
	count        uint32
	capabilities *windows.SIDAndAttributes
}

type inetFirewallACBinaries struct {
	count    uint32
	binaries **uint16
}

type inetFirewallAppContainer struct {
	appContainerSid  *windows.SID
	userSid          *windows.SID
	appContainerName *uint16
	displayName      *uint16
	description      *uint16
	capabilities     inetFirewallACCapabilities
	binaries         inetFirewallACBinaries
	workingDirectory *uint16
	packageFullName  *uint16
}

var errNullSID = errors.New("null SID")

type systemGateway struct {
	logger *slog.Logger

	enumAppContainers *windows.LazyProc
	freeAppContainers *windows.LazyProc
	getConfig         *windows.LazyProc
	setConfig         *windows.LazyProc

	// loadIndirectString is nil when shlwapi.dll lacks the symbol;
	// display names are then returned unresolved.
	loadIndirectString *windows.LazyProc
}

// OpenSystem loads FirewallAPI.dll and resolves the four isolation
// symbols. Any missing piece fails the call.
func OpenSystem(logger *slog.Logger) (Gateway, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	firewall := windows.NewLazySystemDLL("FirewallAPI.dll")
	if err := firewall.Load(); err != nil {
		return nil, &QueryError{Op: "load", Err: fmt.Errorf("%w: FirewallAPI.dll: %v", ErrUnavailable, err)}
	}

	gateway := &systemGateway{
		logger:            logger,
		enumAppContainers: firewall.NewProc("NetworkIsolationEnumAppContainers"),
		freeAppContainers: firewall.NewProc("NetworkIsolationFreeAppContainers"),
		getConfig:         firewall.NewProc("NetworkIsolationGetAppContainerConfig"),
		setConfig:         firewall.NewProc("NetworkIsolationSetAppContainerConfig"),
	}
	for _, proc := range []*windows.LazyProc{
		gateway.enumAppContainers,
		gateway.freeAppContainers,
		gateway.getConfig,
		gateway.setConfig,
	} {
		if err := proc.Find(); err != nil {
			return nil, &QueryError{Op: "load", Err: fmt.Errorf("%w: %s: %v", ErrUnavailable, proc.Name, err)}
		}
	}

	indirect := windows.NewLazySystemDLL("shlwapi.dll").NewProc("SHLoadIndirectString")
	if err := indirect.Find(); err == nil {
		gateway.loadIndirectString = indirect
	} else {
		logger.Debug("indirect display names will not be resolved", "error", err)
	}

	return gateway, nil
}

func (g *systemGateway) Enumerate() ([]appcontainer.Record, error) {
	var count uint32
	var buffer *inetFirewallAppContainer
	status, _, _ := g.enumAppContainers.Call(
		netisoFlagForceComputeBinaries,
		uintptr(unsafe.Pointer(&count)),
		uintptr(unsafe.Pointer(&buffer)),
	)
	if status != uintptr(windows.ERROR_SUCCESS) {
		return nil, &QueryError{Op: "NetworkIsolationEnumAppContainers", Status: uint32(status)}
	}
	if buffer == nil {
		return nil, nil
	}
	defer g.freeAppContainers.Call(uintptr(unsafe.Pointer(buffer)))

	entries := unsafe.Slice(buffer, count)
	records := make([]appcontainer.Record, 0, len(entries))
	for i := range entries {
		record, err := g.convert(&entries[i])
		if err != nil {
			g.logger.Debug("skipping app container", "error", err)
			continue
		}
		records = append(records, record)
	}
	return records, nil
}

// convert copies one native entry into Go memory. Only a missing or
// unconvertible container SID rejects the entry; bad user or
// capability SIDs are dropped individually.
func (g *systemGateway) convert(entry *inetFirewallAppContainer) (appcontainer.Record, error) {
	containerSID, err := sidString(entry.appContainerSid)
	if err != nil {
		return appcontainer.Record{}, &ConversionError{Field: "container", Err: err}
	}

	record := appcontainer.Record{
		DisplayName:      g.resolveDisplayName(windows.UTF16PtrToString(entry.displayName)),
		Description:      windows.UTF16PtrToString(entry.description),
		ContainerName:    windows.UTF16PtrToString(entry.appContainerName),
		PackageFullName:  windows.UTF16PtrToString(entry.packageFullName),
		WorkingDirectory: windows.UTF16PtrToString(entry.workingDirectory),
		ContainerSID:     containerSID,
	}

	if entry.userSid != nil {
		if userSID, err := sidString(entry.userSid); err == nil {
			record.UserSID = userSID
		} else {
			g.logger.Debug("skipping user SID", "error", &ConversionError{Field: "user", Err: err})
		}
	}

	if entry.capabilities.count > 0 && entry.capabilities.capabilities != nil {
		for _, capability := range unsafe.Slice(entry.capabilities.capabilities, entry.capabilities.count) {
			sid, err := sidString(capability.Sid)
			if err != nil {
				g.logger.Debug("skipping capability SID", "error", &ConversionError{Field: "capability", Err: err})
				continue
			}
			record.Capabilities = append(record.Capabilities, sid)
		}
	}

	if entry.binaries.count > 0 && entry.binaries.binaries != nil {
		for _, binary := range unsafe.Slice(entry.binaries.binaries, entry.binaries.count) {
			if binary != nil {
				record.Binaries = append(record.Binaries, windows.UTF16PtrToString(binary))
			}
		}
	}

	return record, nil
}

func (g *systemGateway) resolveDisplayName(name string) string {
	if g.loadIndirectString == nil || !strings.HasPrefix(name, "@") {
		return name
	}
	source, err := windows.UTF16PtrFromString(name)
	if err != nil {
		return name
	}
	resolved := make([]uint16, indirectStringCapacity)
	hresult, _, _ := g.loadIndirectString.Call(
		uintptr(unsafe.Pointer(source)),
		uintptr(unsafe.Pointer(&resolved[0])),
		uintptr(len(resolved)),
		0,
	)
	if hresult != 0 {
		return name
	}
	return windows.UTF16ToString(resolved)
}

// ExemptSIDs never fails: a non-success status means nothing is exempt.
// The returned array belongs to FirewallAPI.dll and is only read.
func (g *systemGateway) ExemptSIDs() appcontainer.SIDSet {
	set := appcontainer.NewSIDSet()

	var count uint32
	var entries *windows.SIDAndAttributes
	status, _, _ := g.getConfig.Call(
		uintptr(unsafe.Pointer(&count)),
		uintptr(unsafe.Pointer(&entries)),
	)
	if status != uintptr(windows.ERROR_SUCCESS) {
		g.logger.Debug("reading exemption list failed, treating as empty",
			"error", &QueryError{Op: "NetworkIsolationGetAppContainerConfig", Status: uint32(status)})
		return set
	}
	if entries == nil || count == 0 {
		return set
	}

	for _, entry := range unsafe.Slice(entries, count) {
		sid, err := sidString(entry.Sid)
		if err != nil {
			g.logger.Debug("skipping exempt SID", "error", &ConversionError{Field: "exemption", Err: err})
			continue
		}
		set.Add(sid)
	}
	return set
}

func (g *systemGateway) SetExemptSIDs(sids appcontainer.SIDSet) error {
	entries := make([]windows.SIDAndAttributes, 0, sids.Len())
	for _, value := range sids.Sorted() {
		sid, err := windows.StringToSid(value)
		if err != nil {
			g.logger.Debug("skipping exempt SID", "error", &ConversionError{Field: "exemption", SID: value, Err: err})
			continue
		}
		entries = append(entries, windows.SIDAndAttributes{Sid: sid})
	}

	var first uintptr
	if len(entries) > 0 {
		first = uintptr(unsafe.Pointer(&entries[0]))
	}
	status, _, _ := g.setConfig.Call(uintptr(len(entries)), first)
	runtime.KeepAlive(entries)
	if status != uintptr(windows.ERROR_SUCCESS) {
		return &QueryError{Op: "NetworkIsolationSetAppContainerConfig", Status: uint32(status)}
	}
	return nil
}

func (g *systemGateway) Close() error { return nil }

func sidString(sid *windows.SID) (string, error) {
	if sid == nil {
		return "", errNullSID
	}
	if !sid.IsValid() {
		return "", errMalformedSID
	}
	value := sid.String()
	if value == "" {
		return "", errMalformedSID
	}
	return value, nil
}
