// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016-present Datadog, Inc.

package updater

import "fmt"

// PermanentError wraps a Query failure that spec.md §7 classifies as
// PermanentQuery (e.g. an auth rejection): the runner marks the updater
// UNHEALTHY immediately and stops its retry loop until the process
// restarts, rather than counting it toward the consecutive-failure
// threshold used for transient errors.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string {
	return fmt.Sprintf("permanent query error: %v", e.Err)
}

func (e *PermanentError) Unwrap() error { return e.Err }

// Permanent wraps err as a PermanentError.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &PermanentError{Err: err}
}

// ConfigError wraps a validation failure (spec.md §7 ConfigInvalid). A
// Poller's Validate should log through the updater's own path; ConfigError
// exists for pollers that want to explain a DISABLED transition in logs.
type ConfigError struct {
	Err error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid configuration: %v", e.Err)
}

func (e *ConfigError) Unwrap() error { return e.Err }
