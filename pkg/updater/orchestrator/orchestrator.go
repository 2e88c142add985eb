// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016-present Datadog, Inc.

// Package orchestrator implements the orchestrator poller (spec.md §4.5):
// it enumerates pods scoped to the local node, emitting tombstones on
// deletion, and must be configurable to be completely disabled.
package orchestrator

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"

	"github.com/etsangsplk/metadata-agent/pkg/metadata/record"
	"github.com/etsangsplk/metadata-agent/pkg/metadata/resource"
	"github.com/etsangsplk/metadata-agent/pkg/updater"
)

// ResourceType tags pods emitted by this poller.
const ResourceType = "k8s_pod"

// PodLister is the subset of client-go the poller depends on, so tests can
// substitute a fake without a real API server. *kubernetes.Clientset's
// CoreV1().Pods(namespace) satisfies it directly.
type PodLister interface {
	List(ctx context.Context, opts metav1.ListOptions) (*corev1.PodList, error)
}

// Config holds the kubernetes_* configuration options relevant to this
// poller (spec.md §6).
type Config struct {
	// Enabled corresponds to kubernetes_updater_enabled.
	Enabled bool
	// EndpointHost overrides the API server host; empty means use
	// in-cluster / kubeconfig discovery.
	EndpointHost string
	// PodLabelSelector corresponds to kubernetes_pod_label_selector.
	PodLabelSelector string
	// NodeName restricts discovery to pods scheduled on this node
	// (kubernetes_node_name) via a spec.nodeName field selector. Each poll
	// is a fresh List; no watch is kept open between polls.
	NodeName string
	// ServiceAccountDirectory corresponds to
	// kubernetes_service_account_directory. It is not read when building
	// the client: in-cluster configuration comes from
	// rest.InClusterConfig, which uses client-go's fixed service-account
	// path.
	ServiceAccountDirectory string
	// Kubeconfig, if set, is used instead of in-cluster discovery
	// (useful for local development and tests).
	Kubeconfig string
	// ClusterName/ClusterLocation are attached as static labels on every
	// emitted pod resource (SPEC_FULL.md supplemented feature).
	ClusterName     string
	ClusterLocation string
	// Version tags emitted records.
	Version string
}

// emitted remembers exactly what was last published for a pod UID, so a
// later tombstone can supersede it instead of landing on a new store key.
type emitted struct {
	ids      []string
	resource resource.Resource
}

// Poller implements updater.Poller for Kubernetes pods on the local node.
type Poller struct {
	cfg Config

	mu       sync.Mutex
	pods     PodLister
	lastSeen map[string]emitted
}

// New builds an orchestrator Poller from cfg.
func New(cfg Config) *Poller {
	return &Poller{cfg: cfg, lastSeen: make(map[string]emitted)}
}

// Name implements updater.Poller.
func (p *Poller) Name() string { return "orchestrator" }

// Validate implements updater.Poller. Returns false (DISABLED) when
// kubernetes_updater_enabled is false, so an agent running outside a
// cluster never attempts a client-go connection (spec.md §4.5, §8
// scenario 5).
func (p *Poller) Validate() bool {
	return p.cfg.Enabled
}

func (p *Poller) ensureClient() (PodLister, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.pods != nil {
		return p.pods, nil
	}

	restCfg, err := p.buildRestConfig()
	if err != nil {
		return nil, err
	}

	clientset, err := kubernetes.NewForConfig(restCfg)
	if err != nil {
		return nil, err
	}
	p.pods = clientset.CoreV1().Pods(corev1.NamespaceAll)
	return p.pods, nil
}

func (p *Poller) buildRestConfig() (*rest.Config, error) {
	if p.cfg.Kubeconfig != "" {
		return clientcmd.BuildConfigFromFlags("", p.cfg.Kubeconfig)
	}

	saDir := p.cfg.ServiceAccountDirectory
	if saDir == "" {
		saDir = "/var/run/secrets/kubernetes.io/serviceaccount"
	}

	cfg, err := rest.InClusterConfig()
	if err != nil {
		return nil, err
	}
	if p.cfg.EndpointHost != "" {
		cfg.Host = p.cfg.EndpointHost
	}
	return cfg, nil
}

// Query implements updater.Poller.
func (p *Poller) Query(ctx context.Context) ([]updater.Update, error) {
	pods, err := p.ensureClient()
	if err != nil {
		return nil, err
	}

	opts := metav1.ListOptions{
		LabelSelector: p.cfg.PodLabelSelector,
	}
	if p.cfg.NodeName != "" {
		opts.FieldSelector = "spec.nodeName=" + p.cfg.NodeName
	}

	list, err := pods.List(ctx, opts)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	seen := make(map[string]emitted, len(list.Items))
	updates := make([]updater.Update, 0, len(list.Items))

	for i := range list.Items {
		pod := &list.Items[i]
		id := string(pod.UID)
		if id == "" {
			continue
		}

		labels := map[string]string{
			"pod_name":  pod.Name,
			"namespace": pod.Namespace,
			"pod_uid":   id,
		}
		if p.cfg.ClusterName != "" {
			labels["cluster_name"] = p.cfg.ClusterName
		}
		if p.cfg.ClusterLocation != "" {
			labels["cluster_location"] = p.cfg.ClusterLocation
		}
		res := resource.New(ResourceType, labels)

		raw, err := json.Marshal(pod)
		if err != nil {
			continue
		}

		ids := []string{id, pod.Namespace + "/" + pod.Name}
		seen[id] = emitted{ids: ids, resource: res}

		updates = append(updates, updater.Update{
			IDs:      ids,
			Resource: res,
			Record: record.Record{
				Version:     p.cfg.Version,
				CreatedAt:   pod.CreationTimestamp.Time,
				CollectedAt: now,
				RawContent:  raw,
			},
		})
	}

	p.mu.Lock()
	previous := p.lastSeen
	p.lastSeen = seen
	p.mu.Unlock()

	for id, last := range previous {
		if _, ok := seen[id]; ok {
			continue
		}
		updates = append(updates, updater.Update{
			IDs:      last.ids,
			Resource: last.resource,
			Record:   record.Tombstone(p.cfg.Version, now),
		})
	}

	return updates, nil
}
