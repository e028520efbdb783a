// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock provides an injectable time source for the two timed
// paths in the loopback server: the lifecycle watchdog grace period and
// the post-relaunch reconnect delay of the elevation broker.
//
// Production code takes a [Clock] and is handed [Real]. Tests hand it
// [Fake], which stands still until [FakeClock.Advance] is called:
//
//	c := clock.Fake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
//	server := lifecycle.New(module, lifecycle.Options{Clock: c})
//	c.WaitForTimers(1)          // watchdog armed
//	c.Advance(10 * time.Second) // fire it deterministically
//
// WaitForTimers removes the race between a goroutine registering a timer
// and the test advancing time.
package clock
