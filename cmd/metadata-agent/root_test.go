// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016-present Datadog, Inc.

package main

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExitCodeForError(t *testing.T) {
	assert.Equal(t, 0, exitCodeForError(nil))
	assert.Equal(t, 1, exitCodeForError(&configFatalError{err: errors.New("bad yaml")}))
	assert.Equal(t, 2, exitCodeForError(&bindFailureError{err: errors.New("address in use")}))
	assert.Equal(t, 1, exitCodeForError(errors.New("some other failure")))
}

func TestLoadSettingsDefaultsWhenNoPath(t *testing.T) {
	settings, err := loadSettings("")
	assert.NoError(t, err)
	assert.Equal(t, 8799, settings.GetInt("metadata_api_bind_port"))
}

func TestLoadSettingsMissingFileErrors(t *testing.T) {
	_, err := loadSettings("/nonexistent/path/config.yaml")
	assert.Error(t, err)
}

func TestNewRootCommandHasConfigFlag(t *testing.T) {
	cmd := newRootCommand()
	flag := cmd.PersistentFlags().Lookup("config")
	assert.NotNil(t, flag)
}
