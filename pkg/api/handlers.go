// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016-present Datadog, Inc.

package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/etsangsplk/metadata-agent/pkg/metadata/store"
	"github.com/etsangsplk/metadata-agent/pkg/status/health"
	"github.com/etsangsplk/metadata-agent/pkg/util/log"
)

// monitoredResourcePrefix is the route prefix for alias lookups (spec.md
// §4.6): GET /monitoredResource/{alias}.
const monitoredResourcePrefix = "/monitoredResource/"

// healthzPrefix is the supplemented liveness endpoint (SPEC_FULL.md).
const healthzPrefix = "/healthz"

// errorBody is the exact 404 body shape from original_source/src/api_server.cc:
// {"status_code":404,"error":"Not found"}.
type errorBody struct {
	StatusCode int    `json:"status_code"`
	Error      string `json:"error"`
}

// WriteNotFound writes the canonical not-found body used both by the
// dispatcher (no route matched) and by the alias handler (alias unknown to
// the store) — the API gives no client-visible distinction between the two
// (spec.md §4.6).
func WriteNotFound(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusNotFound)
	_ = json.NewEncoder(w).Encode(errorBody{StatusCode: http.StatusNotFound, Error: "Not found"})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// resourceHandler serves GET /monitoredResource/{alias}.
type resourceHandler struct {
	store *store.Store
}

func (h *resourceHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	alias := strings.TrimPrefix(r.URL.Path, monitoredResourcePrefix)
	if alias == "" {
		WriteNotFound(w)
		return
	}

	res, err := h.store.LookupResource(alias)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			log.Errorf("lookup api: alias %q: %v", alias, err)
		}
		WriteNotFound(w)
		return
	}

	writeJSON(w, http.StatusOK, res)
}

// healthzResponse is the supplemented /healthz body (SPEC_FULL.md).
type healthzResponse struct {
	Status  string   `json:"status"`
	Failing []string `json:"failing,omitempty"`
}

// healthzHandler serves GET /healthz.
type healthzHandler struct {
	checker *health.Checker
}

func (h *healthzHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h.checker.IsHealthy() {
		writeJSON(w, http.StatusOK, healthzResponse{Status: "ok"})
		return
	}
	writeJSON(w, http.StatusServiceUnavailable, healthzResponse{
		Status:  "unhealthy",
		Failing: h.checker.FailingNames(),
	})
}

// withAccessLog wraps handler with a per-request correlation id and a debug
// access log line, mirroring the teacher's request-id middleware style
// (comp/core/healthprobe/healthprobeimpl) but using google/uuid rather than
// a hand-rolled id generator (SPEC_FULL.md domain stack).
func withAccessLog(handler http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := uuid.NewString()
		log.Debugf("lookup api: [%s] %s %s", reqID, r.Method, r.URL.Path)
		handler.ServeHTTP(w, r)
	})
}
