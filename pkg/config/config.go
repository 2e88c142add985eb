// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016-present Datadog, Inc.

// Package config defines the read-only configuration surface the core
// consumes (spec.md §6). Core packages depend only on the Reader
// interface, mirroring the teacher's fx-injected config.Component
// interface (see comp/core/healthprobe/healthprobeimpl), never on a
// concrete flag/file parser directly.
package config

import "time"

// Reader is the read-only view of agent configuration. It is safe for
// concurrent use; the configuration object is shared and read-only after
// process start (spec.md §5).
type Reader interface {
	GetBool(key string) bool
	GetInt(key string) int
	GetString(key string) string
	GetDuration(key string) time.Duration
	GetStringSlice(key string) []string
}

// Recognized configuration keys (spec.md §6).
const (
	KeyVerboseLogging                  = "verbose_logging"
	KeyMetadataAPINumThreads           = "metadata_api_num_threads"
	KeyMetadataAPIBindHost             = "metadata_api_bind_host"
	KeyMetadataAPIBindPort             = "metadata_api_bind_port"
	KeyMetadataIngestionRawVersion     = "metadata_ingestion_raw_content_version"
	KeyMetadataReporterIntervalSeconds = "metadata_reporter_interval_seconds"
	KeyMetadataReporterPurgeDeleted    = "metadata_reporter_purge_deleted"
	KeyInstanceResourceType            = "instance_resource_type"

	KeyKubernetesUpdaterEnabled    = "kubernetes_updater_enabled"
	KeyKubernetesEndpointHost     = "kubernetes_endpoint_host"
	KeyKubernetesPodLabelSelector = "kubernetes_pod_label_selector"
	KeyKubernetesNodeName         = "kubernetes_node_name"
	KeyKubernetesServiceAccountDir = "kubernetes_service_account_directory"
	KeyKubernetesClusterName      = "kubernetes_cluster_name"
	KeyKubernetesClusterLocation  = "kubernetes_cluster_location"

	KeyDockerUpdaterEnabled  = "docker_updater_enabled"
	KeyDockerEndpointHost    = "docker_endpoint_host"
	KeyDockerAPIVersion      = "docker_api_version"
	KeyDockerContainerFilter = "docker_container_filter"
)

// Defaults for options with a documented default (spec.md §6): a missing
// option takes these values rather than causing a failure.
var Defaults = map[string]interface{}{
	KeyVerboseLogging:                  false,
	KeyMetadataAPINumThreads:           10,
	KeyMetadataAPIBindHost:             "127.0.0.1",
	KeyMetadataAPIBindPort:             8799,
	KeyMetadataIngestionRawVersion:     "0.1",
	KeyMetadataReporterIntervalSeconds: 60,
	KeyMetadataReporterPurgeDeleted:    false,
	KeyInstanceResourceType:            "generic_node",
	KeyKubernetesUpdaterEnabled:        false,
	KeyKubernetesServiceAccountDir:     "/var/run/secrets/kubernetes.io/serviceaccount",
	KeyDockerUpdaterEnabled:            false,
	KeyDockerEndpointHost:              "unix:///var/run/docker.sock",
	KeyDockerAPIVersion:                "1.41",
}
