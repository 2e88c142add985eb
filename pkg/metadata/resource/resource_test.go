// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016-present Datadog, Inc.

package resource

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEqual(t *testing.T) {
	a := New("gce_instance", map[string]string{"instance_id": "42", "zone": "us-central1-a"})
	b := New("gce_instance", map[string]string{"zone": "us-central1-a", "instance_id": "42"})
	c := New("gce_instance", map[string]string{"instance_id": "43", "zone": "us-central1-a"})

	assert.True(t, a.Equal(b))
	assert.False(t, a.Equal(c))
}

func TestRoundTrip(t *testing.T) {
	r := New("gce_instance", map[string]string{"instance_id": "42", "zone": "us-central1-a"})

	data, err := json.Marshal(r)
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"gce_instance","labels":{"instance_id":"42","zone":"us-central1-a"}}`, string(data))

	var decoded Resource
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.True(t, r.Equal(decoded))
}

func TestNewCopiesLabels(t *testing.T) {
	labels := map[string]string{"a": "1"}
	r := New("t", labels)
	labels["a"] = "2"
	assert.Equal(t, "1", r.Labels["a"])
}

func TestKeyOrderIndependent(t *testing.T) {
	a := New("t", map[string]string{"a": "1", "b": "2"})
	b := New("t", map[string]string{"b": "2", "a": "1"})
	assert.Equal(t, a.Key(), b.Key())
}
