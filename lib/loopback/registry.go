// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package loopback

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/bureau-foundation/loopback/lib/appcontainer"
	"github.com/bureau-foundation/loopback/lib/netiso"
)

// Registry is the single in-memory cache of app containers and their
// loopback state. It is safe for concurrent use; every operation runs
// to completion under one mutex.
type Registry struct {
	gateway netiso.Gateway
	logger  *slog.Logger

	mu        sync.Mutex
	populated bool
	records   []appcontainer.Record
	exempt    appcontainer.SIDSet
}

// New returns a Registry backed by gateway. The cache starts empty and
// is populated by the first call that needs it.
func New(gateway netiso.Gateway, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Registry{
		gateway: gateway,
		logger:  logger,
		exempt:  appcontainer.NewSIDSet(),
	}
}

// ListAppContainers re-reads the exemption list and the container
// enumeration, replaces the cache, and returns the tagged records. The
// two reads are separate OS queries; a concurrent writer between them
// can make the tags momentarily inconsistent. On enumeration failure
// the cache is left as it was.
func (r *Registry) ListAppContainers() ([]appcontainer.Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.refreshLocked(); err != nil {
		return nil, err
	}
	return appcontainer.CloneAll(r.records), nil
}

// Apps returns the cached records, enumerating first if the cache has
// never been populated.
func (r *Registry) Apps() ([]appcontainer.Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.ensurePopulatedLocked(); err != nil {
		return nil, err
	}
	return appcontainer.CloneAll(r.records), nil
}

// Filter returns the cached records whose display name contains query,
// ignoring case. An empty query matches everything.
func (r *Registry) Filter(query string) ([]appcontainer.Record, error) {
	records, err := r.Apps()
	if err != nil {
		return nil, err
	}
	if query == "" {
		return records, nil
	}
	needle := strings.ToLower(query)
	matched := records[:0]
	for _, record := range records {
		if strings.Contains(strings.ToLower(record.DisplayName), needle) {
			matched = append(matched, record)
		}
	}
	return matched, nil
}

// Lookup returns the cached record whose container SID is sid.
func (r *Registry) Lookup(sid string) (appcontainer.Record, error) {
	if !netiso.ValidSID(sid) {
		return appcontainer.Record{}, fmt.Errorf("%q: %w", sid, ErrInvalidSID)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.ensurePopulatedLocked(); err != nil {
		return appcontainer.Record{}, err
	}
	for _, record := range r.records {
		if record.ContainerSID == sid {
			return record.Clone(), nil
		}
	}
	return appcontainer.Record{}, fmt.Errorf("app container %s: %w", sid, ErrNotFound)
}

// ExemptSIDs returns the cached exempt set.
func (r *Registry) ExemptSIDs() appcontainer.SIDSet {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.exempt.Clone()
}

// AddExemption exempts one container.
func (r *Registry) AddExemption(sid string) error {
	return r.AddExemptions([]string{sid})
}

// AddExemptions exempts every container in sids. SIDs that are already
// exempt stay exempt.
func (r *Registry) AddExemptions(sids []string) error {
	if err := validate(sids); err != nil {
		return err
	}
	return r.update("add", func(next appcontainer.SIDSet) {
		for _, sid := range sids {
			next.Add(sid)
		}
	})
}

// RemoveExemption revokes the exemption of one container.
func (r *Registry) RemoveExemption(sid string) error {
	return r.RemoveExemptions([]string{sid})
}

// RemoveExemptions revokes the exemption of every container in sids.
// Removing a SID that is not exempt is a no-op.
func (r *Registry) RemoveExemptions(sids []string) error {
	if err := validate(sids); err != nil {
		return err
	}
	return r.update("remove", func(next appcontainer.SIDSet) {
		for _, sid := range sids {
			next.Remove(sid)
		}
	})
}

// SetExemptionList replaces the exemption list with exactly sids. An
// empty list clears every exemption.
func (r *Registry) SetExemptionList(sids []string) error {
	if err := validate(sids); err != nil {
		return err
	}
	return r.update("set", func(next appcontainer.SIDSet) {
		clear(next)
		for _, sid := range sids {
			next.Add(sid)
		}
	})
}

// update applies change to a copy of the cached exempt set and writes
// the result. The cache moves to the written set only when the write
// succeeds.
func (r *Registry) update(operation string, change func(next appcontainer.SIDSet)) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.ensurePopulatedLocked(); err != nil {
		return err
	}

	next := r.exempt.Clone()
	change(next)

	if err := r.gateway.SetExemptSIDs(next); err != nil {
		r.logger.Warn("exemption list write failed",
			"operation", operation,
			"error", err,
		)
		return fmt.Errorf("writing exemption list (%s): %w", operation, err)
	}

	r.exempt = next
	r.records = appcontainer.Tag(r.records, next)
	r.logger.Info("exemption list written",
		"operation", operation,
		"exempt", next.Len(),
	)
	return nil
}

func (r *Registry) ensurePopulatedLocked() error {
	if r.populated {
		return nil
	}
	return r.refreshLocked()
}

func (r *Registry) refreshLocked() error {
	exempt := r.gateway.ExemptSIDs()
	records, err := r.gateway.Enumerate()
	if err != nil {
		return fmt.Errorf("enumerating app containers: %w", err)
	}

	r.records = appcontainer.Tag(records, exempt)
	r.exempt = exempt
	r.populated = true
	r.logger.Debug("app container cache refreshed",
		"containers", len(r.records),
		"exempt", exempt.Len(),
	)
	return nil
}

// validate rejects any SID the gateway could not convert. The gateway
// skips such entries and still reports success, so letting one through
// would leave the cache holding a SID the OS list does not.
func validate(sids []string) error {
	for i, sid := range sids {
		if !netiso.ValidSID(sid) {
			return fmt.Errorf("sids[%d] %q: %w", i, sid, ErrInvalidSID)
		}
	}
	return nil
}
