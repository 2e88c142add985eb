// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016-present Datadog, Inc.

package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/cihub/seelog"
	"github.com/spf13/cobra"

	"github.com/etsangsplk/metadata-agent/pkg/agent"
	"github.com/etsangsplk/metadata-agent/pkg/config"
	"github.com/etsangsplk/metadata-agent/pkg/updater/instance"
	"github.com/etsangsplk/metadata-agent/pkg/util/log"
)

func runStart(cmd *cobra.Command, _ []string) error {
	settings, err := loadSettings(configPath)
	if err != nil {
		return &configFatalError{err: fmt.Errorf("loading configuration: %w", err)}
	}

	level := "info"
	minLevel := seelog.InfoLvl
	if settings.GetBool(config.KeyVerboseLogging) {
		level = "debug"
		minLevel = seelog.DebugLvl
	}
	consoleLogger, err := seelog.LoggerFromWriterWithMinLevel(cmd.OutOrStdout(), minLevel)
	if err != nil {
		return &configFatalError{err: fmt.Errorf("setting up logging: %w", err)}
	}
	log.SetupLogger(consoleLogger, level)
	defer log.Flush()

	a := agent.New(settings, instance.LocalSource{})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := a.Start(ctx); err != nil {
		return &bindFailureError{err: err}
	}
	log.Infof("metadata-agent started, listening on %s:%d",
		settings.GetString(config.KeyMetadataAPIBindHost), settings.GetInt(config.KeyMetadataAPIBindPort))

	<-ctx.Done()
	log.Info("metadata-agent received shutdown signal, stopping")

	return a.Stop(context.Background())
}

// loadSettings loads YAML configuration from path, or returns bare defaults
// when path is empty (spec.md §6: every option has a documented default).
func loadSettings(path string) (*config.Settings, error) {
	if path == "" {
		return config.New(nil), nil
	}
	return config.LoadFile(path)
}
