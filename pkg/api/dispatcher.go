// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016-present Datadog, Inc.

// Package api implements the lookup API server (spec.md §4.6): a
// longest-prefix HTTP dispatcher over a small, fixed route table.
package api

import (
	"net/http"
	"sort"
	"strings"

	"github.com/etsangsplk/metadata-agent/pkg/util/log"
)

// route is one (method, prefix) -> handler binding.
type route struct {
	method  string
	prefix  string
	handler http.Handler
}

// Dispatcher matches the longest registered (method, prefix) pair against
// each request's path (spec.md §4.6, §9). The original C++ implementation
// walked a lexically sorted map in reverse expecting that to yield longest-
// prefix-first order and had an off-by-one bug in that reverse walk (spec.md
// §9's Open Question); this Dispatcher implements the *intended* semantics
// directly by sorting registered prefixes by descending length once, at
// registration time, rather than replicating the bug.
//
// verbose mirrors original_source/src/api_server.cc's Dispatcher::verbose_:
// when set, every dispatched request is logged before the matching handler
// runs (spec.md §6 verbose_logging: "Emit per-request and per-poll debug
// lines").
type Dispatcher struct {
	routes  []route
	verbose bool
}

// NewDispatcher returns an empty Dispatcher. Register routes with Handle,
// then use the Dispatcher as an http.Handler.
func NewDispatcher(verbose bool) *Dispatcher {
	return &Dispatcher{verbose: verbose}
}

// Handle registers handler for method+prefix. Ties in prefix length are
// broken by lexicographic order of the prefix, matching spec.md §4.6.
func (d *Dispatcher) Handle(method, prefix string, handler http.Handler) {
	d.routes = append(d.routes, route{method: method, prefix: prefix, handler: handler})
	sort.SliceStable(d.routes, func(i, j int) bool {
		if len(d.routes[i].prefix) != len(d.routes[j].prefix) {
			return len(d.routes[i].prefix) > len(d.routes[j].prefix)
		}
		return d.routes[i].prefix < d.routes[j].prefix
	})
}

// HandleFunc is a convenience wrapper around Handle.
func (d *Dispatcher) HandleFunc(method, prefix string, handler http.HandlerFunc) {
	d.Handle(method, prefix, handler)
}

// ServeHTTP implements http.Handler. Unknown methods and paths that match
// no registered prefix both yield 404 from the dispatcher, never 405 —
// deliberate, to keep the surface trivial (spec.md §4.6).
func (d *Dispatcher) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if d.verbose {
		log.Debugf("lookup api: dispatch %s %s", r.Method, r.URL.Path)
	}
	for _, rt := range d.routes {
		if rt.method != r.Method {
			continue
		}
		if !strings.HasPrefix(r.URL.Path, rt.prefix) {
			continue
		}
		rt.handler.ServeHTTP(w, r)
		return
	}
	WriteNotFound(w)
}
