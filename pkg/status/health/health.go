// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016-present Datadog, Inc.

// Package health implements the shared liveness signal described in
// spec.md §4.2: a named-failure registry. Unlike a heartbeat/ping registry
// keyed on staleness, a name here is either currently marked unhealthy or
// it isn't — there is no timeout.
package health

import (
	"sync"
	"time"

	"go.uber.org/atomic"
)

// Checker is the process-wide health registry updaters report to and the
// API server reads from. The zero value is not usable; use New.
type Checker struct {
	mu      sync.RWMutex
	failing map[string]struct{}
	lastOK  map[string]time.Time
	healthy atomic.Bool
}

// New returns an empty, healthy Checker.
func New() *Checker {
	c := &Checker{
		failing: make(map[string]struct{}),
		lastOK:  make(map[string]time.Time),
	}
	c.healthy.Store(true)
	return c
}

// SetUnhealthy marks name as failing. Updaters call this on terminal
// errors, never on transient query failures (spec §4.2, §7).
func (c *Checker) SetUnhealthy(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failing[name] = struct{}{}
	c.healthy.Store(len(c.failing) == 0)
}

// ClearUnhealthy removes name from the failing set, e.g. when an updater
// restarts and validates cleanly.
func (c *Checker) ClearUnhealthy(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.failing, name)
	c.healthy.Store(len(c.failing) == 0)
}

// ReportSuccess records that name completed a poll successfully, clearing
// it from the failing set and updating its last-success timestamp.
func (c *Checker) ReportSuccess(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.failing, name)
	c.lastOK[name] = time.Now()
	c.healthy.Store(len(c.failing) == 0)
}

// IsHealthy reports whether the failing set is empty. This is a lock-free
// fast path, safe to call on every API request.
func (c *Checker) IsHealthy() bool {
	return c.healthy.Load()
}

// FailingNames returns the names currently marked unhealthy, in no
// particular order.
func (c *Checker) FailingNames() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	names := make([]string, 0, len(c.failing))
	for name := range c.failing {
		names = append(names, name)
	}
	return names
}

// LastSuccess returns the last time name reported success, and whether it
// has ever done so. This backs the supplemented per-updater diagnostics
// feature (SPEC_FULL.md).
func (c *Checker) LastSuccess(name string) (time.Time, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	t, ok := c.lastOK[name]
	return t, ok
}
