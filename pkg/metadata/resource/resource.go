// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016-present Datadog, Inc.

// Package resource defines the monitored resource identity shared by the
// metadata store, the updaters, and the lookup API.
package resource

import (
	"encoding/json"
	"sort"
	"strings"
)

// Resource is the immutable typed identity of a compute entity observed on
// the host: an instance, a container, a pod, and so on. Two Resources are
// equal iff their Type and Labels are pointwise equal.
type Resource struct {
	Type   string            `json:"type"`
	Labels map[string]string `json:"labels"`
}

// New returns a Resource with a defensive copy of labels, so the caller's
// map may be mutated afterward without affecting the returned value.
func New(resourceType string, labels map[string]string) Resource {
	copied := make(map[string]string, len(labels))
	for k, v := range labels {
		copied[k] = v
	}
	return Resource{Type: resourceType, Labels: copied}
}

// Equal reports whether r and other have the same type and the same label
// set.
func (r Resource) Equal(other Resource) bool {
	if r.Type != other.Type {
		return false
	}
	if len(r.Labels) != len(other.Labels) {
		return false
	}
	for k, v := range r.Labels {
		if ov, ok := other.Labels[k]; !ok || ov != v {
			return false
		}
	}
	return true
}

// Key returns a deterministic string suitable for using Resource as a map
// key or comparing resources for equality without a full field walk: the
// type followed by the labels in sorted key order, NUL-separated. It is not
// the JSON form; see MarshalJSON for that.
func (r Resource) Key() string {
	keys := make([]string, 0, len(r.Labels))
	for k := range r.Labels {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(r.Type)
	for _, k := range keys {
		b.WriteByte('\x00')
		b.WriteString(k)
		b.WriteByte('\x00')
		b.WriteString(r.Labels[k])
	}
	return b.String()
}

// MarshalJSON renders the canonical {"type":T,"labels":{...}} form. Go's
// encoding/json sorts map[string]string keys on marshal, giving us
// deterministic label ordering for free.
func (r Resource) MarshalJSON() ([]byte, error) {
	type alias Resource
	labels := r.Labels
	if labels == nil {
		labels = map[string]string{}
	}
	return json.Marshal(alias{Type: r.Type, Labels: labels})
}
