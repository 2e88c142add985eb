// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016-present Datadog, Inc.

package health

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEmptyIsHealthy(t *testing.T) {
	c := New()
	assert.True(t, c.IsHealthy())
	assert.Empty(t, c.FailingNames())
}

func TestSetUnhealthy(t *testing.T) {
	c := New()
	c.SetUnhealthy("kubernetes")
	assert.False(t, c.IsHealthy())
	assert.Contains(t, c.FailingNames(), "kubernetes")
}

func TestClearUnhealthy(t *testing.T) {
	c := New()
	c.SetUnhealthy("docker")
	c.ClearUnhealthy("docker")
	assert.True(t, c.IsHealthy())
}

func TestReportSuccessClearsAndRecordsTimestamp(t *testing.T) {
	c := New()
	c.SetUnhealthy("instance")
	c.ReportSuccess("instance")
	assert.True(t, c.IsHealthy())

	_, ok := c.LastSuccess("instance")
	assert.True(t, ok)

	_, ok = c.LastSuccess("never-reported")
	assert.False(t, ok)
}

func TestMultipleFailuresAllMustClear(t *testing.T) {
	c := New()
	c.SetUnhealthy("a")
	c.SetUnhealthy("b")
	assert.False(t, c.IsHealthy())
	c.ClearUnhealthy("a")
	assert.False(t, c.IsHealthy())
	c.ClearUnhealthy("b")
	assert.True(t, c.IsHealthy())
}
