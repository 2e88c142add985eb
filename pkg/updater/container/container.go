// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016-present Datadog, Inc.

// Package container implements the container-runtime poller (spec.md
// §4.5): it lists containers from the local container runtime's admin
// socket and, for containers that disappeared since the last poll, emits a
// tombstone.
package container

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/client"

	"github.com/etsangsplk/metadata-agent/pkg/metadata/record"
	"github.com/etsangsplk/metadata-agent/pkg/metadata/resource"
	"github.com/etsangsplk/metadata-agent/pkg/updater"
	"github.com/etsangsplk/metadata-agent/pkg/util/log"
)

// ResourceType tags containers emitted by this poller.
const ResourceType = "docker_container"

// Lister is the subset of the Docker client the poller depends on, so
// tests can substitute a fake without a real daemon socket. The real
// client.Client satisfies it directly.
type Lister interface {
	ContainerList(ctx context.Context, options types.ContainerListOptions) ([]types.Container, error)
}

// Config holds the docker_* configuration options relevant to this poller
// (spec.md §6).
type Config struct {
	// Enabled corresponds to docker_updater_enabled.
	Enabled bool
	// Host corresponds to docker_endpoint_host, e.g.
	// "unix:///var/run/docker.sock".
	Host string
	// APIVersion corresponds to docker_api_version.
	APIVersion string
	// ContainerFilter is a name-shaped Docker filter list
	// (docker_container_filter), applied via the API's own "name" filter
	// so unwanted containers are never listed at all.
	ContainerFilter []string
	// Version tags emitted records (metadata_ingestion_raw_content_version).
	Version string
}

// emitted remembers exactly what was last published for a container id, so
// a later tombstone can supersede it instead of landing on a new store key.
type emitted struct {
	ids      []string
	resource resource.Resource
}

// Poller implements updater.Poller for Docker containers.
type Poller struct {
	cfg Config

	mu       sync.Mutex
	client   Lister
	closer   func() error
	lastSeen map[string]emitted
}

// New builds a container Poller from cfg. The Docker client itself is
// constructed lazily on the first Query, so an agent
// with docker_updater_enabled=false never dials the socket.
func New(cfg Config) *Poller {
	return &Poller{cfg: cfg, lastSeen: make(map[string]emitted)}
}

// Name implements updater.Poller.
func (p *Poller) Name() string { return "container" }

// Validate implements updater.Poller. Returns false (DISABLED, not an
// error) when docker_updater_enabled is false, per spec.md §4.5's
// "must be configurable to be completely disabled".
func (p *Poller) Validate() bool {
	return p.cfg.Enabled
}

func (p *Poller) ensureClient() (Lister, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.client != nil {
		return p.client, nil
	}

	opts := []client.Opt{client.FromEnv}
	if p.cfg.Host != "" {
		opts = append(opts, client.WithHost(p.cfg.Host))
	}
	if p.cfg.APIVersion != "" {
		opts = append(opts, client.WithVersion(p.cfg.APIVersion))
	}

	cli, err := client.NewClientWithOpts(opts...)
	if err != nil {
		return nil, err
	}
	p.client = cli
	p.closer = cli.Close
	return p.client, nil
}

// Query implements updater.Poller. Pollers must not leak connections
// across iterations (spec.md §4.5): the client is a single long-lived
// handle reused across polls, not reopened each time.
func (p *Poller) Query(ctx context.Context) ([]updater.Update, error) {
	cli, err := p.ensureClient()
	if err != nil {
		return nil, err
	}

	listOpts := types.ContainerListOptions{}
	if len(p.cfg.ContainerFilter) > 0 {
		args := filters.NewArgs()
		for _, f := range p.cfg.ContainerFilter {
			args.Add("name", f)
		}
		listOpts.Filters = args
	}

	containers, err := cli.ContainerList(ctx, listOpts)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	seen := make(map[string]emitted, len(containers))
	updates := make([]updater.Update, 0, len(containers))

	for _, c := range containers {
		ids := containerAliases(c)
		labels := map[string]string{"container_id": c.ID}
		if len(c.Names) > 0 {
			labels["container_name"] = trimSlash(c.Names[0])
		}
		labels["image"] = c.Image
		res := resource.New(ResourceType, labels)

		raw, err := json.Marshal(c)
		if err != nil {
			log.Warnf("container poller: marshal container %s: %v", c.ID, err)
			continue
		}

		seen[c.ID] = emitted{ids: ids, resource: res}

		updates = append(updates, updater.Update{
			IDs:      ids,
			Resource: res,
			Record: record.Record{
				Version:     p.cfg.Version,
				CreatedAt:   time.Unix(c.Created, 0),
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

func containerAliases(c types.Container) []string {
	ids := shortAndFull(c.ID)
	for _, n := range c.Names {
		ids = append(ids, trimSlash(n))
	}
	return ids
}

// shortAndFull returns both the container's full id and Docker's
// conventional 12-character short id as aliases (spec.md §3: "a
// container's short id and its full id").
func shortAndFull(id string) []string {
	if len(id) > 12 {
		return []string{id, id[:12]}
	}
	return []string{id}
}

func trimSlash(name string) string {
	if len(name) > 0 && name[0] == '/' {
		return name[1:]
	}
	return name
}
