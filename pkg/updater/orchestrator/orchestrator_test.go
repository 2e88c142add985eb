// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016-present Datadog, Inc.

package orchestrator

import (
	"context"
	"testing"

	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePodLister struct {
	list *corev1.PodList
	err  error
}

func (f *fakePodLister) List(ctx context.Context, opts metav1.ListOptions) (*corev1.PodList, error) {
	return f.list, f.err
}

func TestValidateReflectsEnabled(t *testing.T) {
	assert.False(t, New(Config{Enabled: false}).Validate())
	assert.True(t, New(Config{Enabled: true}).Validate())
}

func TestQueryEmitsPodsWithClusterLabels(t *testing.T) {
	pod := corev1.Pod{
		ObjectMeta: metav1.ObjectMeta{Name: "web-0", Namespace: "default", UID: types.UID("uid-1")},
	}
	fake := &fakePodLister{list: &corev1.PodList{Items: []corev1.Pod{pod}}}

	p := New(Config{Enabled: true, ClusterName: "prod", ClusterLocation: "us-east1", Version: "v1"})
	p.pods = fake

	updates, err := p.Query(context.Background())
	require.NoError(t, err)
	require.Len(t, updates, 1)
	assert.Contains(t, updates[0].IDs, "uid-1")
	assert.Equal(t, "prod", updates[0].Resource.Labels["cluster_name"])
	assert.Equal(t, "us-east1", updates[0].Resource.Labels["cluster_location"])
}

func TestQueryTombstonesDeletedPods(t *testing.T) {
	pod := corev1.Pod{ObjectMeta: metav1.ObjectMeta{Name: "web-0", Namespace: "default", UID: types.UID("uid-1")}}
	fake := &fakePodLister{list: &corev1.PodList{Items: []corev1.Pod{pod}}}
	p := New(Config{Enabled: true, Version: "v1"})
	p.pods = fake

	_, err := p.Query(context.Background())
	require.NoError(t, err)

	fake.list = &corev1.PodList{}
	updates, err := p.Query(context.Background())
	require.NoError(t, err)
	require.Len(t, updates, 1)
	assert.True(t, updates[0].Record.IsDeleted)
}
