// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package server

import (
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/diagrelay/diagrelay/internal/normalize"
	"github.com/diagrelay/diagrelay/internal/orchestrator"
)

// ingestRequest is the POST /ingest body: a file identifier, its LSP
// source dialect, the raw diagnostics payload, and the file content the
// diagnostics were computed against (hashed for change detection).
type ingestRequest struct {
	File    string          `json:"file" binding:"required"`
	Source  string          `json:"source" binding:"required"`
	Payload json.RawMessage `json:"payload" binding:"required"`
	Content string          `json:"content"`
}

var knownSources = map[string]normalize.Source{
	string(normalize.SourceTypeScript):   normalize.SourceTypeScript,
	string(normalize.SourceRustAnalyzer): normalize.SourceRustAnalyzer,
	string(normalize.SourceESLint):       normalize.SourceESLint,
	string(normalize.SourceGenericLSP):   normalize.SourceGenericLSP,
}

func (s *Server) handleIngest(c *gin.Context) {
	var req ingestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	source, ok := knownSources[req.Source]
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown source: " + req.Source})
		return
	}

	snap, err := s.orch.Ingest(c.Request.Context(), req.File, source, req.Payload, []byte(req.Content))
	if err != nil {
		s.log.ErrorContext(c.Request.Context(), "ingest failed", "file", req.File, "error", err)
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		return
	}

	rendered, err := orchestrator.Export(snap, orchestrator.ExportFilter{Format: orchestrator.FormatCanonicalJSON})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.Data(http.StatusOK, "application/json", rendered)
}

var formatNames = map[string]orchestrator.Format{
	"json":     orchestrator.FormatCanonicalJSON,
	"markdown": orchestrator.FormatMarkdownReport,
	"jsonl":    orchestrator.FormatTrainingJSONL,
}

func (s *Server) handleExport(c *gin.Context) {
	file := c.Query("file")
	if file == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "file query parameter is required"})
		return
	}

	snap, ok := s.idx.get(file)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "no snapshot ingested for file: " + file})
		return
	}

	format := orchestrator.FormatCanonicalJSON
	if q := c.Query("format"); q != "" {
		f, ok := formatNames[q]
		if !ok {
			c.JSON(http.StatusBadRequest, gin.H{"error": "unknown format: " + q})
			return
		}
		format = f
	}

	rendered, err := orchestrator.Export(snap, orchestrator.ExportFilter{Format: format})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	contentType := "application/json"
	switch format {
	case orchestrator.FormatMarkdownReport:
		contentType = "text/markdown"
	case orchestrator.FormatTrainingJSONL:
		contentType = "application/jsonl"
	}
	c.Data(http.StatusOK, contentType, rendered)
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
