// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016-present Datadog, Inc.

// Package agent wires the metadata store, health checker, updater runners,
// and lookup API server into the single process described in spec.md §4.7,
// and owns their startup and shutdown ordering.
package agent

import (
	"context"
	"fmt"
	"time"

	"github.com/etsangsplk/metadata-agent/pkg/api"
	"github.com/etsangsplk/metadata-agent/pkg/config"
	"github.com/etsangsplk/metadata-agent/pkg/metadata/store"
	"github.com/etsangsplk/metadata-agent/pkg/status/health"
	"github.com/etsangsplk/metadata-agent/pkg/updater"
	"github.com/etsangsplk/metadata-agent/pkg/updater/container"
	"github.com/etsangsplk/metadata-agent/pkg/updater/instance"
	"github.com/etsangsplk/metadata-agent/pkg/updater/orchestrator"
	"github.com/etsangsplk/metadata-agent/pkg/util/log"
)

// shutdownGrace bounds the whole of Stop: stopping the updaters, draining
// the API server and stopping the store all share this one deadline
// (spec.md §4.7: shutdown must not block indefinitely).
const shutdownGrace = 10 * time.Second

// Agent is the assembled process: it owns the store, the health checker,
// one Runner per configured poller, and the lookup API server.
type Agent struct {
	store   *store.Store
	checker *health.Checker
	runners []*runnerEntry
	api     *api.Server
}

type runnerEntry struct {
	name   string
	runner *updater.Runner
}

// New builds an Agent from cfg, wiring one Runner per built-in poller
// (spec.md §4.5: instance, container, orchestrator) and the lookup API
// server (spec.md §4.6). Pollers that are not configured (e.g.
// docker_updater_enabled=false) still get a Runner; Runner.Start
// transitions them to Disabled without ever calling Query, per
// pkg/updater.
func New(cfg config.Reader, instanceSource instance.Source) *Agent {
	period := cfg.GetDuration(config.KeyMetadataReporterIntervalSeconds)

	st := store.New(store.Options{
		ExpireAfter:  2 * period,
		PurgeDeleted: cfg.GetBool(config.KeyMetadataReporterPurgeDeleted),
	})
	checker := health.New()

	version := cfg.GetString(config.KeyMetadataIngestionRawVersion)

	instancePoller := instance.New(instanceSource, cfg.GetString(config.KeyInstanceResourceType), version)

	containerPoller := container.New(container.Config{
		Enabled:         cfg.GetBool(config.KeyDockerUpdaterEnabled),
		Host:            cfg.GetString(config.KeyDockerEndpointHost),
		APIVersion:      cfg.GetString(config.KeyDockerAPIVersion),
		ContainerFilter: cfg.GetStringSlice(config.KeyDockerContainerFilter),
		Version:         version,
	})

	orchestratorPoller := orchestrator.New(orchestrator.Config{
		Enabled:          cfg.GetBool(config.KeyKubernetesUpdaterEnabled),
		EndpointHost:     cfg.GetString(config.KeyKubernetesEndpointHost),
		PodLabelSelector: cfg.GetString(config.KeyKubernetesPodLabelSelector),
		NodeName:         cfg.GetString(config.KeyKubernetesNodeName),
		ServiceAccountDirectory: cfg.GetString(config.KeyKubernetesServiceAccountDir),
		ClusterName:             cfg.GetString(config.KeyKubernetesClusterName),
		ClusterLocation:         cfg.GetString(config.KeyKubernetesClusterLocation),
		Version:                 version,
	})

	runners := []*runnerEntry{
		{name: instancePoller.Name(), runner: updater.NewRunner(instancePoller, st, checker, updater.Options{Period: period})},
		{name: containerPoller.Name(), runner: updater.NewRunner(containerPoller, st, checker, updater.Options{Period: period})},
		{name: orchestratorPoller.Name(), runner: updater.NewRunner(orchestratorPoller, st, checker, updater.Options{Period: period})},
	}

	apiServer := api.NewServer(api.Config{
		BindHost:   cfg.GetString(config.KeyMetadataAPIBindHost),
		BindPort:   cfg.GetInt(config.KeyMetadataAPIBindPort),
		NumThreads: cfg.GetInt(config.KeyMetadataAPINumThreads),
		Verbose:    cfg.GetBool(config.KeyVerboseLogging),
	}, st, checker)

	return &Agent{store: st, checker: checker, runners: runners, api: apiServer}
}

// Store exposes the underlying store, chiefly for tests.
func (a *Agent) Store() *store.Store { return a.store }

// HealthChecker exposes the underlying checker, chiefly for tests.
func (a *Agent) HealthChecker() *health.Checker { return a.checker }

// Start starts every updater runner and then binds the API server.
// Updaters start first so their first polls are under way before the API
// is reachable (spec.md §4.7); Start does not wait for those polls to
// finish, so the store may still be empty when Start returns.
func (a *Agent) Start(ctx context.Context) error {
	for _, e := range a.runners {
		if err := e.runner.Start(ctx); err != nil {
			log.Warnf("agent: updater %s did not start: %v", e.name, err)
		}
	}

	if err := a.api.Start(ctx); err != nil {
		return fmt.Errorf("agent: %w", err)
	}
	return nil
}

// Stop performs the ordered shutdown from spec.md §4.7: signal updaters to
// stop and wait up to shutdownGrace, then drain the API server, then close
// the store. Each stage is best-effort — a stage that times out is logged
// and shutdown proceeds to the next stage rather than hanging the process.
func (a *Agent) Stop(ctx context.Context) error {
	stopCtx, cancel := context.WithTimeout(ctx, shutdownGrace)
	defer cancel()

	for _, e := range a.runners {
		if err := e.runner.Stop(stopCtx); err != nil {
			log.Warnf("agent: updater %s did not stop cleanly: %v", e.name, err)
		}
	}

	if err := a.api.Stop(stopCtx); err != nil {
		log.Warnf("agent: api server did not shut down cleanly: %v", err)
	}

	return a.store.Stop(stopCtx)
}
