// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016-present Datadog, Inc.

// Package updater implements the updater base and polling updater
// (spec.md §4.3, §4.4) as a capability set driven by a generic lifecycle
// runner, per the redesign flag in §9 ("Replacing polymorphic updaters via
// inheritance"): a Poller supplies Name/Validate/Query, and Runner owns
// start/stop, the cancellable sleep, consecutive-failure counting, and
// health reporting, so a Poller implementation cannot forget to report to
// the health checker.
package updater

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/atomic"

	"github.com/etsangsplk/metadata-agent/pkg/metadata/record"
	"github.com/etsangsplk/metadata-agent/pkg/metadata/resource"
	"github.com/etsangsplk/metadata-agent/pkg/status/health"
	"github.com/etsangsplk/metadata-agent/pkg/util/log"
)

// Update is one item of a query batch: the aliases and canonical resource
// to register, plus the record to install for it. Within one batch, the
// runner registers the resource before installing the record (spec §4.4
// ordering guarantee).
type Update struct {
	IDs      []string
	Resource resource.Resource
	Record   record.Record
}

// Poller is the capability set a concrete updater (instance, container,
// orchestrator) supplies to a Runner.
type Poller interface {
	// Name identifies this poller in logs and in the health checker.
	Name() string
	// Validate reports whether this poller is configured to run at all.
	// Returning false is normal (e.g. no orchestrator configured) and
	// transitions the Runner to Disabled without error.
	Validate() bool
	// Query performs one poll iteration. A *PermanentError immediately
	// marks the updater unhealthy and stops the retry loop; any other
	// error is treated as transient (spec §7).
	Query(ctx context.Context) ([]Update, error)
}

// Sink is the subset of the metadata store a Runner writes to. Store
// satisfies it directly.
type Sink interface {
	UpdateResource(ids []string, res resource.Resource) error
	UpdateMetadata(res resource.Resource, rec record.Record)
}

// State is the updater lifecycle state described in spec.md §4.3.
type State int

// Lifecycle states.
const (
	StateNew State = iota
	StateStarted
	StateStopped
	StateDisabled
	StateUnhealthy
)

func (s State) String() string {
	switch s {
	case StateNew:
		return "new"
	case StateStarted:
		return "started"
	case StateStopped:
		return "stopped"
	case StateDisabled:
		return "disabled"
	case StateUnhealthy:
		return "unhealthy"
	default:
		return "unknown"
	}
}

// Options configures a Runner.
type Options struct {
	// Period is the interval between Query calls. Must be positive
	// (spec §8 Boundaries: zero or negative fails validation).
	Period time.Duration
	// FailureThreshold is the number of consecutive transient Query
	// failures before the updater reports unhealthy. Defaults to 3
	// (spec §4.4b).
	FailureThreshold int
	// QueryTimeout bounds each Query call. Zero or negative uses Period;
	// either way the bound is capped at 30s, matching the "no operation
	// may block indefinitely" rule in spec §5.
	QueryTimeout time.Duration
}

// Runner drives one Poller's lifecycle: validate -> start -> loop -> stop,
// publishing batches to a Sink and reporting health to a Checker.
type Runner struct {
	poller  Poller
	sink    Sink
	checker *health.Checker
	opts    Options

	mu    sync.Mutex
	state State

	consecutiveFailures atomic.Int64

	stopOnce sync.Once
	stopCh   chan struct{}
	doneCh   chan struct{}
}

// NewRunner builds a Runner for poller, publishing into sink and reporting
// to checker. If opts.Period is non-positive, the returned Runner's Start
// always transitions to Disabled without invoking poller.Query and returns
// ErrInvalidPeriod (spec §8 Boundaries).
func NewRunner(poller Poller, sink Sink, checker *health.Checker, opts Options) *Runner {
	if opts.FailureThreshold <= 0 {
		opts.FailureThreshold = 3
	}
	return &Runner{
		poller:  poller,
		sink:    sink,
		checker: checker,
		opts:    opts,
		state:   StateNew,
		stopCh:  make(chan struct{}),
		doneCh:  make(chan struct{}),
	}
}

// ErrInvalidPeriod is returned by Start when opts.Period is not positive.
var ErrInvalidPeriod = errors.New("updater: period must be positive")

// ErrAlreadyStarted is returned by Start when called more than once.
var ErrAlreadyStarted = errors.New("updater: already started")

// State returns the current lifecycle state.
func (r *Runner) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Start validates the poller's configuration and, if valid, spawns the
// polling worker and returns immediately. Start may only be called once;
// subsequent calls return ErrAlreadyStarted.
func (r *Runner) Start(ctx context.Context) error {
	r.mu.Lock()
	if r.state != StateNew {
		r.mu.Unlock()
		return ErrAlreadyStarted
	}

	if r.opts.Period <= 0 {
		r.state = StateDisabled
		r.mu.Unlock()
		close(r.doneCh)
		log.Warnf("updater %s: disabled, invalid period %s", r.poller.Name(), r.opts.Period)
		return ErrInvalidPeriod
	}

	if !r.poller.Validate() {
		r.state = StateDisabled
		r.mu.Unlock()
		close(r.doneCh)
		log.Infof("updater %s: disabled by configuration", r.poller.Name())
		return nil
	}

	r.state = StateStarted
	r.mu.Unlock()

	go r.loop(ctx)
	return nil
}

func (r *Runner) loop(ctx context.Context) {
	defer close(r.doneCh)

	for {
		r.pollOnce(ctx)

		if r.State() == StateUnhealthy {
			return
		}

		timer := time.NewTimer(r.opts.Period)
		select {
		case <-r.stopCh:
			timer.Stop()
			return
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

func (r *Runner) pollOnce(ctx context.Context) {
	name := r.poller.Name()

	queryCtx := ctx
	var cancel context.CancelFunc
	timeout := r.opts.QueryTimeout
	if timeout <= 0 {
		timeout = r.opts.Period
	}
	if timeout > 30*time.Second {
		timeout = 30 * time.Second
	}
	if timeout > 0 {
		queryCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	updates, err := r.poller.Query(queryCtx)
	if err != nil {
		var perm *PermanentError
		if errors.As(err, &perm) {
			log.Errorf("updater %s: permanent query error, marking unhealthy: %v", name, err)
			r.checker.SetUnhealthy(name)
			r.mu.Lock()
			r.state = StateUnhealthy
			r.mu.Unlock()
			return
		}

		n := r.consecutiveFailures.Add(1)
		log.Warnf("updater %s: query failed (%d consecutive): %v", name, n, err)
		if int(n) >= r.opts.FailureThreshold {
			r.checker.SetUnhealthy(name)
		}
		return
	}

	r.consecutiveFailures.Store(0)
	r.checker.ReportSuccess(name)
	log.Debugf("updater %s: poll succeeded, %d updates", name, len(updates))

	for _, u := range updates {
		if len(u.IDs) == 0 {
			continue
		}
		if pubErr := r.sink.UpdateResource(u.IDs, u.Resource); pubErr != nil {
			log.Warnf("updater %s: publish resource %v failed: %v", name, u.IDs, pubErr)
			continue
		}
		r.sink.UpdateMetadata(u.Resource, u.Record)
	}
}

// Stop signals the worker to exit and waits for it to do so, bounded by
// ctx. Stop is idempotent: calling it more than once has the same effect
// as calling it once.
func (r *Runner) Stop(ctx context.Context) error {
	r.stopOnce.Do(func() { close(r.stopCh) })
	select {
	case <-r.doneCh:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
