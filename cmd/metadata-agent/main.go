// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016-present Datadog, Inc.

// Command metadata-agent runs the metadata discovery and lookup agent
// described in spec.md: it starts the instance, container, and orchestrator
// pollers and serves the lookup API until terminated.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "metadata-agent: %v\n", err)
		os.Exit(exitCodeForError(err))
	}
}
