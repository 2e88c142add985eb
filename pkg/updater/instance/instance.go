// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016-present Datadog, Inc.

// Package instance implements the host identity poller (spec.md §4.5): it
// queries the host's own metadata source once per period for a stable
// identity and a small set of labels, and emits a single (ids, resource,
// record) update per poll.
package instance

import (
	"context"
	"encoding/json"
	"os/exec"
	"strings"
	"time"

	"github.com/etsangsplk/metadata-agent/pkg/metadata/record"
	"github.com/etsangsplk/metadata-agent/pkg/metadata/resource"
	"github.com/etsangsplk/metadata-agent/pkg/updater"
)

// Identity is the stable identity and labels the Source returns for the
// local host.
type Identity struct {
	// ID is the primary alias for the instance (e.g. "i-42").
	ID string
	// Aliases are additional aliases the resource should also answer to
	// (e.g. the host's FQDN).
	Aliases []string
	// Labels are attached to the emitted resource (project, zone, and so
	// on).
	Labels map[string]string
}

// Source discovers the local host's identity. The one implementation in
// this package, LocalSource, uses the local hostname; no cloud metadata
// Source is provided. Source also lets tests supply a static Identity
// without a network dependency.
type Source interface {
	Identity(ctx context.Context) (Identity, error)
}

// LocalSource resolves an Identity from the local system, grounded on the
// teacher's pkg/util/hostname/fqdn_nix.go pattern of shelling to
// `hostname -f` under a bounded timeout rather than trusting an
// unauthenticated network metadata endpoint by default.
type LocalSource struct {
	// Timeout bounds the underlying `hostname -f` call. Defaults to 1s.
	Timeout time.Duration
}

// Identity implements Source using the local `hostname -f` command.
func (s LocalSource) Identity(ctx context.Context) (Identity, error) {
	timeout := s.Timeout
	if timeout <= 0 {
		timeout = time.Second
	}
	queryCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	out, err := exec.CommandContext(queryCtx, "/bin/hostname", "-f").Output()
	fqdn := strings.TrimSpace(string(out))
	if err != nil || fqdn == "" {
		fqdn = "localhost"
	}

	return Identity{
		ID:      fqdn,
		Aliases: []string{fqdn},
		Labels:  map[string]string{"hostname": fqdn},
	}, nil
}

// Poller implements updater.Poller for the instance resource type.
type Poller struct {
	source       Source
	resourceType string
	version      string
}

// New builds an instance Poller. resourceType is
// instance_resource_type from configuration; version is
// metadata_ingestion_raw_content_version.
func New(source Source, resourceType, version string) *Poller {
	return &Poller{source: source, resourceType: resourceType, version: version}
}

// Name implements updater.Poller.
func (p *Poller) Name() string { return "instance" }

// Validate implements updater.Poller. The instance poller is enabled
// whenever it has a Source; with a nil Source it is disabled.
func (p *Poller) Validate() bool { return p.source != nil }

// Query implements updater.Poller.
func (p *Poller) Query(ctx context.Context) ([]updater.Update, error) {
	identity, err := p.source.Identity(ctx)
	if err != nil {
		return nil, err
	}

	res := resource.New(p.resourceType, identity.Labels)
	raw, err := json.Marshal(identity.Labels)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	ids := append([]string{identity.ID}, identity.Aliases...)

	return []updater.Update{{
		IDs:      dedupe(ids),
		Resource: res,
		Record: record.Record{
			Version:     p.version,
			CreatedAt:   now,
			CollectedAt: now,
			RawContent:  raw,
		},
	}}, nil
}

func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
