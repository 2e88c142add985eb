// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016-present Datadog, Inc.

package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/etsangsplk/metadata-agent/pkg/metadata/resource"
	"github.com/etsangsplk/metadata-agent/pkg/metadata/store"
	"github.com/etsangsplk/metadata-agent/pkg/status/health"
)

func newTestServer(t *testing.T) (*Server, *store.Store, *health.Checker) {
	t.Helper()
	st := store.New(store.Options{})
	t.Cleanup(func() { _ = st.Stop(context.Background()) })
	checker := health.New()

	srv := NewServer(Config{BindHost: "127.0.0.1", BindPort: 0}, st, checker)
	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, srv.Start(ctx))
	t.Cleanup(cancel)

	// Give the listener goroutine a moment to accept before any request.
	time.Sleep(10 * time.Millisecond)
	return srv, st, checker
}

func TestLookupResourceFound(t *testing.T) {
	srv, st, _ := newTestServer(t)

	res := resource.New("instance", map[string]string{"instance_id": "i-1"})
	require.NoError(t, st.UpdateResource([]string{"i-1", "instance-i-1"}, res))

	resp, err := http.Get(fmt.Sprintf("http://%s/monitoredResource/i-1", srv.Addr()))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	var got resource.Resource
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
	assert.True(t, got.Equal(res))
}

func TestLookupResourceUnknownAliasIs404(t *testing.T) {
	srv, _, _ := newTestServer(t)

	resp, err := http.Get(fmt.Sprintf("http://%s/monitoredResource/does-not-exist", srv.Addr()))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	var body errorBody
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, 404, body.StatusCode)
	assert.Equal(t, "Not found", body.Error)
}

func TestUnknownPathIs404(t *testing.T) {
	srv, _, _ := newTestServer(t)

	resp, err := http.Get(fmt.Sprintf("http://%s/nonsense", srv.Addr()))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestHealthzReflectsCheckerState(t *testing.T) {
	srv, _, checker := newTestServer(t)

	resp, err := http.Get(fmt.Sprintf("http://%s/healthz", srv.Addr()))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	checker.SetUnhealthy("container")
	resp, err = http.Get(fmt.Sprintf("http://%s/healthz", srv.Addr()))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)

	var body healthzResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Contains(t, body.Failing, "container")
}

func TestGracefulShutdownRejectsNewConnectionsAfterStop(t *testing.T) {
	st := store.New(store.Options{})
	defer st.Stop(context.Background())
	checker := health.New()

	srv := NewServer(Config{BindHost: "127.0.0.1", BindPort: 0, ShutdownGrace: time.Second}, st, checker)
	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, srv.Start(ctx))
	time.Sleep(10 * time.Millisecond)

	cancel()
	time.Sleep(50 * time.Millisecond)

	_, err := http.Get(fmt.Sprintf("http://%s/healthz", srv.Addr()))
	assert.Error(t, err)
}
