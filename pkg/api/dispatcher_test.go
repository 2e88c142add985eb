// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016-present Datadog, Inc.

package api

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func handlerNamed(name string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Handler", name)
	})
}

// TestLongestPrefixWins verifies the intended semantics from spec.md §9's
// Open Question: registration order must not matter, only prefix length
// (with lexicographic tie-break), unlike the original C++ reverse-iterator
// walk.
func TestLongestPrefixWins(t *testing.T) {
	d := NewDispatcher(false)
	d.Handle(http.MethodGet, "/monitoredResource/", handlerNamed("short"))
	d.Handle(http.MethodGet, "/monitoredResource/foo", handlerNamed("long"))

	req := httptest.NewRequest(http.MethodGet, "/monitoredResource/foo", nil)
	rec := httptest.NewRecorder()
	d.ServeHTTP(rec, req)
	assert.Equal(t, "long", rec.Header().Get("X-Handler"))

	req = httptest.NewRequest(http.MethodGet, "/monitoredResource/bar", nil)
	rec = httptest.NewRecorder()
	d.ServeHTTP(rec, req)
	assert.Equal(t, "short", rec.Header().Get("X-Handler"))
}

func TestRegistrationOrderIndependent(t *testing.T) {
	d1 := NewDispatcher(false)
	d1.Handle(http.MethodGet, "/a", handlerNamed("a"))
	d1.Handle(http.MethodGet, "/ab", handlerNamed("ab"))

	d2 := NewDispatcher(false)
	d2.Handle(http.MethodGet, "/ab", handlerNamed("ab"))
	d2.Handle(http.MethodGet, "/a", handlerNamed("a"))

	for _, d := range []*Dispatcher{d1, d2} {
		req := httptest.NewRequest(http.MethodGet, "/abc", nil)
		rec := httptest.NewRecorder()
		d.ServeHTTP(rec, req)
		assert.Equal(t, "ab", rec.Header().Get("X-Handler"))
	}
}

func TestMethodMismatchIs404(t *testing.T) {
	d := NewDispatcher(false)
	d.Handle(http.MethodGet, "/monitoredResource/", handlerNamed("get"))

	req := httptest.NewRequest(http.MethodPost, "/monitoredResource/x", nil)
	rec := httptest.NewRecorder()
	d.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestNoMatchIs404(t *testing.T) {
	d := NewDispatcher(false)
	req := httptest.NewRequest(http.MethodGet, "/anything", nil)
	rec := httptest.NewRecorder()
	d.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
