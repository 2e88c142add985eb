// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016-present Datadog, Inc.

package api

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"golang.org/x/net/netutil"

	"github.com/etsangsplk/metadata-agent/pkg/metadata/store"
	"github.com/etsangsplk/metadata-agent/pkg/status/health"
)

const (
	defaultReadTimeout       = 5 * time.Second
	defaultReadHeaderTimeout = 5 * time.Second
	defaultShutdownGrace     = 5 * time.Second
)

// Config configures the lookup API server (spec.md §6:
// metadata_api_bind_host/metadata_api_bind_port/metadata_api_num_threads).
type Config struct {
	BindHost string
	BindPort int
	// NumThreads bounds the number of connections the server accepts at
	// once (metadata_api_num_threads), the Go equivalent of
	// original_source/src/api_server.cc's server_threads-sized thread
	// pool: Go's net/http already schedules one goroutine per connection,
	// so the knob is applied as a concurrent-connection limit around the
	// listener rather than a literal OS thread count. Zero or negative
	// leaves the listener unbounded.
	NumThreads int
	// Verbose mirrors verbose_logging (spec.md §6): emits a debug line
	// per dispatched request, matching the original Dispatcher's
	// verbose_ flag.
	Verbose bool
	// ShutdownGrace bounds how long Stop waits for in-flight requests to
	// drain before forcing the listener closed. Zero uses
	// defaultShutdownGrace.
	ShutdownGrace time.Duration
}

// Server is the lookup API server (spec.md §4.6): a small, fixed set of
// read-only routes over the metadata store, plus a supplemented liveness
// endpoint. Grounded on the teacher's healthprobe component
// (comp/core/healthprobe/healthprobeimpl/healthprobe.go) for the
// net.Listen + http.Server + context-based graceful shutdown shape; the
// route dispatch itself is a Dispatcher, ported directly from
// original_source/src/api_server.cc's own Dispatcher (a hand-rolled
// longest-prefix HandlerMap, not a router library — the original never
// used one, so introducing one here would just duplicate Dispatcher's job).
type Server struct {
	cfg Config
	srv *http.Server
	ln  net.Listener
}

// NewServer wires the store and health checker behind the two routes this
// component exposes. Registration order does not matter — Dispatcher sorts
// by prefix length internally — but each prefix is registered once.
func NewServer(cfg Config, st *store.Store, checker *health.Checker) *Server {
	if cfg.ShutdownGrace <= 0 {
		cfg.ShutdownGrace = defaultShutdownGrace
	}

	dispatcher := NewDispatcher(cfg.Verbose)
	dispatcher.Handle(http.MethodGet, monitoredResourcePrefix, &resourceHandler{store: st})
	dispatcher.Handle(http.MethodGet, healthzPrefix, &healthzHandler{checker: checker})

	return &Server{
		cfg: cfg,
		srv: &http.Server{
			Handler:           withAccessLog(dispatcher),
			ReadTimeout:       defaultReadTimeout,
			ReadHeaderTimeout: defaultReadHeaderTimeout,
		},
	}
}

// Start binds the configured address and begins serving in the background.
// It returns once the listener is bound, so callers can observe bind
// failures (spec.md §6 exit code 2) synchronously.
func (s *Server) Start(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.cfg.BindHost, s.cfg.BindPort)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("api server: listen %s: %w", addr, err)
	}
	if s.cfg.NumThreads > 0 {
		ln = netutil.LimitListener(ln, s.cfg.NumThreads)
	}
	s.ln = ln

	go func() {
		if err := s.srv.Serve(ln); err != nil && err != http.ErrServerClosed {
			_ = err
		}
	}()
	go s.closeOnContext(ctx)
	return nil
}

// closeOnContext mirrors the teacher's healthprobe shutdown hook
// (comp/core/healthprobe/healthprobeimpl/healthprobe.go's closeOnContext):
// wait for ctx, then bound the shutdown by ShutdownGrace rather than the
// teacher's fixed one second, since spec.md §4.7 calls for a configurable
// grace period.
func (s *Server) closeOnContext(ctx context.Context) {
	<-ctx.Done()
	timeout, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownGrace)
	defer cancel()
	_ = s.srv.Shutdown(timeout)
}

// Stop performs an explicit graceful shutdown, for callers that manage
// lifecycle without relying on a context cancellation (spec.md §4.7's
// ordered shutdown: updaters stop first, then the API server drains).
func (s *Server) Stop(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.ShutdownGrace)
	defer cancel()
	if err := s.srv.Shutdown(ctx); err != nil {
		_ = s.srv.Close()
		return err
	}
	return nil
}

// Addr returns the bound address, valid only after a successful Start.
func (s *Server) Addr() net.Addr {
	if s.ln == nil {
		return nil
	}
	return s.ln.Addr()
}
