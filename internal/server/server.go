// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package server wires the ingestion core (config manager, cache, store,
// orchestrator) behind an HTTP front door: POST /ingest accepts a raw
// LSP diagnostics payload, GET /export renders the latest snapshot for a
// file in one of the §6 formats, and GET /metrics exposes the
// Prometheus registry. It plays the same role cmd/orchestrator/main.go
// and services/orchestrator/orchestrator.go play for the teacher: a
// thin Gin-based Service wrapping a domain core that knows nothing
// about HTTP.
package server

import (
	"context"
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/diagrelay/diagrelay/internal/cache"
	"github.com/diagrelay/diagrelay/internal/config"
	"github.com/diagrelay/diagrelay/internal/diagnostic"
	"github.com/diagrelay/diagrelay/internal/errs"
	"github.com/diagrelay/diagrelay/internal/orchestrator"
	"github.com/diagrelay/diagrelay/internal/privacy"
	"github.com/diagrelay/diagrelay/internal/store"
	"github.com/diagrelay/diagrelay/internal/telemetry"
	"github.com/diagrelay/diagrelay/pkg/logging"
)

// Config configures a Server. Zero-value fields fall back to the
// defaults documented on each one.
type Config struct {
	// Port is the HTTP server port. Default: 8089.
	Port int

	// Workspace identifies the workspace every ingested diagnostic is
	// attributed to.
	Workspace diagnostic.WorkspaceInfo

	// Policy is the privacy policy applied at ingest time.
	Policy privacy.Policy

	// ConfigPath is the dynamic-config TOML file path. Default:
	// "./diagrelay.toml".
	ConfigPath string

	// ConfigOverlayPath, if set, is a YAML profile overlay applied on
	// top of ConfigPath.
	ConfigOverlayPath string

	// DBPath is the SQLite history-store database file, or ":memory:".
	// Default: "./diagrelay.db".
	DBPath string

	// GinMode sets the Gin framework mode ("debug", "release", "test").
	// Default: uses GIN_MODE env var, or "release".
	GinMode string

	// MetricsRegisterer isolates Prometheus registration for tests. Nil
	// uses the global default registerer.
	MetricsRegisterer *prometheus.Registry

	// OTelEndpoint is the OTLP/gRPC collector address ("host:port").
	// Empty disables span export; spans are still created against the
	// SDK's no-op provider.
	OTelEndpoint string

	Logger *logging.Logger
}

func (c Config) withDefaults() Config {
	if c.Port == 0 {
		c.Port = 8089
	}
	if c.ConfigPath == "" {
		c.ConfigPath = "./diagrelay.toml"
	}
	if c.DBPath == "" {
		c.DBPath = "./diagrelay.db"
	}
	if c.Logger == nil {
		c.Logger = logging.Default()
	}
	return c
}

// Server is the HTTP front door over the ingestion core.
type Server struct {
	cfg    Config
	log    *logging.Logger
	router *gin.Engine

	cfgMgr *config.Manager
	pool   *store.Pool
	hist   *store.Store
	cacheM *cache.Manager
	orch   *orchestrator.Orchestrator
	idx    *latestIndex

	unwatch      func()
	shutdownTele telemetry.Shutdown
}

// New wires every component and starts the background index that keeps
// GET /export serving the most recent snapshot per file.
func New(cfg Config) (*Server, error) {
	cfg = cfg.withDefaults()

	shutdownTele, err := telemetry.Setup(context.Background(), "diagrelay", cfg.OTelEndpoint, cfg.Logger)
	if err != nil {
		return nil, err
	}

	cfgMgr, err := config.NewManager(config.Options{
		Path:        cfg.ConfigPath,
		OverlayPath: cfg.ConfigOverlayPath,
		Logger:      cfg.Logger,
	})
	if err != nil {
		return nil, errs.New(errs.KindConfig, "server.New", cfg.ConfigPath, err)
	}
	dynCfg := cfgMgr.Get()

	pool, err := store.Open(store.PoolConfig{
		Path:       cfg.DBPath,
		WALEnabled: true,
	})
	if err != nil {
		return nil, err
	}

	hist := store.NewStore(pool, time.Hour)

	cacheM := cache.New(cache.Config{
		HighWaterBytes:  int64(dynCfg.Cache.MaxSizeMB) * 1024 * 1024,
		WarmAge:         time.Duration(dynCfg.Cache.TTLHours) * time.Hour,
		MonitorInterval: time.Duration(dynCfg.Cache.CleanupIntervalMinutes) * time.Minute,
	})

	registerer := prometheus.DefaultRegisterer
	if cfg.MetricsRegisterer != nil {
		registerer = cfg.MetricsRegisterer
	}
	metrics := orchestrator.NewMetrics(registerer)

	orch := orchestrator.New(orchestrator.Config{
		Workspace: cfg.Workspace,
		Policy:    cfg.Policy,
		Cache:     cacheM,
		Store:     hist,
		Metrics:   metrics,
		Logger:    cfg.Logger,
	})

	idx, unwatch := newLatestIndex(orch)

	s := &Server{
		cfg:          cfg,
		log:          cfg.Logger,
		cfgMgr:       cfgMgr,
		pool:         pool,
		hist:         hist,
		cacheM:       cacheM,
		orch:         orch,
		idx:          idx,
		unwatch:      unwatch,
		shutdownTele: shutdownTele,
	}
	s.initRouter()
	return s, nil
}

// initRouter builds the Gin engine and registers every route.
func (s *Server) initRouter() {
	if s.cfg.GinMode != "" {
		gin.SetMode(s.cfg.GinMode)
	} else if gin.Mode() == gin.DebugMode {
		gin.SetMode(gin.ReleaseMode)
	}

	s.router = gin.New()
	s.router.Use(gin.Recovery())
	s.router.Use(otelgin.Middleware("diagrelay"))

	s.router.POST("/ingest", s.handleIngest)
	s.router.GET("/export", s.handleExport)
	s.router.GET("/healthz", s.handleHealth)
	s.router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(
		metricsGatherer(s.cfg.MetricsRegisterer), promhttp.HandlerOpts{})))
}

func metricsGatherer(reg *prometheus.Registry) prometheus.Gatherer {
	if reg != nil {
		return reg
	}
	return prometheus.DefaultGatherer
}

// Run starts the HTTP server and blocks until it stops or errors.
func (s *Server) Run() error {
	defer s.Close()
	addr := fmt.Sprintf(":%d", s.cfg.Port)
	s.log.Info("starting diagrelay server", "addr", addr, "db", s.cfg.DBPath)
	return s.router.Run(addr)
}

// Router returns the underlying Gin engine, primarily for tests.
func (s *Server) Router() *gin.Engine {
	return s.router
}

// Close stops the latest-snapshot indexer, the orchestrator, the cache
// manager, the config manager, the store connection pool, and the tracer
// provider, in that order.
func (s *Server) Close() {
	if s.unwatch != nil {
		s.unwatch()
	}
	s.orch.Close()
	s.cacheM.Close()
	s.cfgMgr.Close()
	if err := s.pool.Close(); err != nil {
		s.log.Warn("error closing store pool", "error", err)
	}
	if s.shutdownTele != nil {
		s.shutdownTele(context.Background())
	}
}
