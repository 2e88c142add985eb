// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016-present Datadog, Inc.

package main

import (
	"errors"

	"github.com/spf13/cobra"
)

// version is set by the release build; left at "dev" for local builds,
// matching the teacher's cmd/*/command.go version wiring.
var version = "dev"

// configFatalError and bindFailureError distinguish the two non-zero exit
// codes spec.md §6 assigns: 1 for a fatal configuration error discovered at
// startup, 2 for a failure to bind the lookup API's listening socket.
type configFatalError struct{ err error }

func (e *configFatalError) Error() string { return e.err.Error() }
func (e *configFatalError) Unwrap() error { return e.err }

type bindFailureError struct{ err error }

func (e *bindFailureError) Error() string { return e.err.Error() }
func (e *bindFailureError) Unwrap() error { return e.err }

func exitCodeForError(err error) int {
	if err == nil {
		return 0
	}
	var cfgErr *configFatalError
	if errors.As(err, &cfgErr) {
		return 1
	}
	var bindErr *bindFailureError
	if errors.As(err, &bindErr) {
		return 2
	}
	return 1
}

var configPath string

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:     "metadata-agent",
		Short:   "Discovers compute entities on this host and serves their metadata",
		Version: version,
		RunE:    runStart,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "path to a YAML configuration file")
	root.SetVersionTemplate("metadata-agent {{.Version}}\n")
	return root
}
