// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/diagrelay/diagrelay/internal/diagnostic"
	"github.com/diagrelay/diagrelay/internal/privacy"
	"github.com/diagrelay/diagrelay/internal/server"
)

var (
	port              int
	dbPath            string
	configPath        string
	configOverlayPath string
	workspaceName     string
	workspaceRoot     string
	policyPreset      string
	otelEndpoint      string

	rootCmd = &cobra.Command{
		Use:   "diagnosticd",
		Short: "Ingestion service for LSP diagnostic payloads",
		Long: `diagnosticd normalizes diagnostics from multiple LSP sources, filters
them through a configurable privacy policy, and serves the result over
HTTP for export and streaming consumption.`,
	}

	serveCmd = &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP ingestion server",
		RunE:  runServe,
	}
)

func init() {
	serveCmd.Flags().IntVar(&port, "port", 8089, "HTTP server port")
	serveCmd.Flags().StringVar(&dbPath, "db", "./diagrelay.db", "SQLite history-store path")
	serveCmd.Flags().StringVar(&configPath, "config", "./diagrelay.toml", "Dynamic config TOML path")
	serveCmd.Flags().StringVar(&configOverlayPath, "config-overlay", "", "Optional YAML profile overlay path")
	serveCmd.Flags().StringVar(&workspaceName, "workspace-name", "default", "Workspace name attributed to ingested diagnostics")
	serveCmd.Flags().StringVar(&workspaceRoot, "workspace-root", ".", "Workspace root path")
	serveCmd.Flags().StringVar(&policyPreset, "policy", "default", "Privacy policy preset: permissive, default, strict")
	serveCmd.Flags().StringVar(&otelEndpoint, "otel-endpoint", "", "OTLP/gRPC collector address (host:port); empty disables trace export")

	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	policy, err := resolvePolicy(policyPreset)
	if err != nil {
		return err
	}

	srv, err := server.New(server.Config{
		Port: port,
		Workspace: diagnostic.WorkspaceInfo{
			Name: workspaceName,
			Root: resolveWorkspaceRoot(workspaceRoot),
		},
		Policy:            policy,
		ConfigPath:        configPath,
		ConfigOverlayPath: configOverlayPath,
		DBPath:            dbPath,
		OTelEndpoint:      otelEndpoint,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize server: %w", err)
	}

	return srv.Run()
}

func resolvePolicy(preset string) (privacy.Policy, error) {
	switch preset {
	case "permissive":
		return privacy.PermissivePolicy(), nil
	case "default":
		return privacy.DefaultPolicy(), nil
	case "strict":
		return privacy.StrictPolicy(), nil
	default:
		return privacy.Policy{}, fmt.Errorf("unknown policy preset: %s", preset)
	}
}

func resolveWorkspaceRoot(root string) string {
	if root != "." {
		return root
	}
	if abs, err := os.Getwd(); err == nil {
		return abs
	}
	return root
}
