// Package common defines data structures and functions that are used by
// multiple application commands, e.g., clients and top.
package common

// Copyright (C) 2021-2025 Intel Corporation
// SPDX-License-Identifier: BSD-3-Clause

import (
	"fmt"
	"os"
	"path/filepath"

	"drmspect/internal/util"
)

var AppName = filepath.Base(os.Args[0])

// AppContext represents the application context that can be accessed from all commands.
type AppContext struct {
	Timestamp   string // Timestamp is the app startup time, used to name the output directory.
	OutputDir   string // OutputDir is the directory where the application will write output files.
	LogFilePath string // LogFilePath is the path to the log file.
	Version     string // Version is the version of the application.
	Debug       bool
}

type Flag struct {
	Name string
	Help string
}

// WriteOutputFile writes data to name inside the context's output directory,
// creating the directory on first use. It returns the full path written.
func WriteOutputFile(appContext AppContext, name string, data []byte) (string, error) {
	if err := util.CreateDirectoryIfNotExists(appContext.OutputDir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create output directory: %w", err)
	}
	path := filepath.Join(appContext.OutputDir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil { // #nosec G306
		return "", fmt.Errorf("failed to write output file: %w", err)
	}
	return path, nil
}
