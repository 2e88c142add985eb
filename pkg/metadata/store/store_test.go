// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016-present Datadog, Inc.

package store

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/etsangsplk/metadata-agent/pkg/metadata/record"
	"github.com/etsangsplk/metadata-agent/pkg/metadata/resource"
)

func newTestStore(t *testing.T, opts Options) *Store {
	t.Helper()
	s := New(opts)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = s.Stop(ctx)
	})
	return s
}

func TestHostIdentityRoundTrip(t *testing.T) {
	s := newTestStore(t, Options{})

	res := resource.New("gce_instance", map[string]string{"instance_id": "42", "zone": "us-central1-a"})
	require.NoError(t, s.UpdateResource([]string{"i-42", "host.local"}, res))

	got, err := s.LookupResource("i-42")
	require.NoError(t, err)
	assert.True(t, res.Equal(got))

	got2, err := s.LookupResource("host.local")
	require.NoError(t, err)
	assert.True(t, res.Equal(got2))
}

func TestUnknownAlias(t *testing.T) {
	s := newTestStore(t, Options{})
	_, err := s.LookupResource("nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestTombstoneSupersedes(t *testing.T) {
	s := newTestStore(t, Options{})
	res := resource.New("docker_container", map[string]string{"container_id": "abc"})
	require.NoError(t, s.UpdateResource([]string{"abc"}, res))

	base := time.Unix(0, 10)
	r1 := record.Record{Version: "v1", CollectedAt: base, RawContent: json.RawMessage(`{"n":1}`)}
	s.UpdateMetadata(res, r1)

	r2 := record.Record{Version: "v1", CollectedAt: base, IsDeleted: true}
	s.UpdateMetadata(res, r2)

	snap := s.GetMetadataMap()
	require.Len(t, snap, 1)
	assert.True(t, snap[0].Record.IsDeleted)

	r3 := record.Record{Version: "v1", CollectedAt: base.Add(-time.Second)}
	s.UpdateMetadata(res, r3)

	snap = s.GetMetadataMap()
	require.Len(t, snap, 1)
	assert.True(t, snap[0].Record.IsDeleted, "older record must be dropped, tombstone must remain")
}

func TestExpiry(t *testing.T) {
	s := New(Options{ExpireAfter: 60 * time.Second, ExpireInterval: time.Millisecond})
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = s.Stop(ctx)
	}()

	res := resource.New("gce_instance", map[string]string{"instance_id": "1"})
	require.NoError(t, s.UpdateResource([]string{"a1", "a2"}, res))
	s.UpdateMetadata(res, record.Record{CollectedAt: time.Now()})

	s.mu.Lock()
	for _, e := range s.entries {
		e.lastCollection = time.Now().Add(-61 * time.Second)
	}
	s.mu.Unlock()

	require.Eventually(t, func() bool {
		_, err := s.LookupResource("a1")
		return err != nil
	}, time.Second, time.Millisecond)

	_, err := s.LookupResource("a2")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestPurgeDeletedEntriesOnly(t *testing.T) {
	s := newTestStore(t, Options{})

	kept := resource.New("t", map[string]string{"id": "kept"})
	gone := resource.New("t", map[string]string{"id": "gone"})
	require.NoError(t, s.UpdateResource([]string{"kept"}, kept))
	require.NoError(t, s.UpdateResource([]string{"gone"}, gone))

	s.UpdateMetadata(kept, record.Record{CollectedAt: time.Now()})
	s.UpdateMetadata(gone, record.Record{CollectedAt: time.Now(), IsDeleted: true})

	n := s.PurgeDeletedEntries()
	assert.Equal(t, 1, n)

	_, err := s.LookupResource("kept")
	assert.NoError(t, err)
	_, err = s.LookupResource("gone")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestExpiresAtEqualNowEligible(t *testing.T) {
	now := time.Now()
	rec := record.Record{CollectedAt: now, ExpiresAt: &now}
	assert.True(t, rec.PurgeEligible(now))
}

func TestUpdateResourceEmptyAliasRejectsBatch(t *testing.T) {
	s := newTestStore(t, Options{})
	res := resource.New("t", nil)
	err := s.UpdateResource([]string{"ok", ""}, res)
	assert.ErrorIs(t, err, ErrEmptyAlias)

	_, lookupErr := s.LookupResource("ok")
	assert.ErrorIs(t, lookupErr, ErrNotFound, "no alias from a rejected batch should be applied")
}

func TestUpdateResourceIdempotent(t *testing.T) {
	s := newTestStore(t, Options{})
	res := resource.New("t", map[string]string{"a": "1"})
	require.NoError(t, s.UpdateResource([]string{"x"}, res))
	require.NoError(t, s.UpdateResource([]string{"x"}, res))

	got, err := s.LookupResource("x")
	require.NoError(t, err)
	assert.True(t, res.Equal(got))
}

func TestShadowedAliasEmitsCallback(t *testing.T) {
	var mu sync.Mutex
	var events []Event
	s := New(Options{Subscribers: []ChangeCallback{func(ev Event) {
		mu.Lock()
		defer mu.Unlock()
		events = append(events, ev)
	}}})
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = s.Stop(ctx)
	}()

	first := resource.New("t", map[string]string{"a": "1"})
	second := resource.New("t", map[string]string{"a": "2"})
	require.NoError(t, s.UpdateResource([]string{"alias"}, first))
	require.NoError(t, s.UpdateResource([]string{"alias"}, second))

	got, err := s.LookupResource("alias")
	require.NoError(t, err)
	assert.True(t, second.Equal(got))

	mu.Lock()
	defer mu.Unlock()
	var sawShadow bool
	for _, ev := range events {
		if ev.Kind == EventResourceShadowed {
			sawShadow = true
		}
	}
	assert.True(t, sawShadow)
}

func TestConcurrentAccess(t *testing.T) {
	s := newTestStore(t, Options{})
	res := resource.New("t", map[string]string{"a": "1"})

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			_ = s.UpdateResource([]string{"alias"}, res)
		}(i)
		go func() {
			defer wg.Done()
			_, _ = s.LookupResource("alias")
			_ = s.GetMetadataMap()
		}()
	}
	wg.Wait()
}

func TestStopIdempotent(t *testing.T) {
	s := New(Options{})
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, s.Stop(ctx))
	require.NoError(t, s.Stop(ctx))
}
