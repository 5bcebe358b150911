// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package telemetry wires the process-wide OpenTelemetry TracerProvider.
// Spans created by internal/orchestrator's otel.Tracer calls and by
// otelgin's HTTP middleware go nowhere until a provider is registered;
// this package registers one, exporting over OTLP/gRPC when an
// endpoint is configured and leaving the global no-op provider in
// place otherwise.
package telemetry

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/diagrelay/diagrelay/pkg/logging"
)

// Shutdown stops span export and flushes any buffered spans.
type Shutdown func(context.Context)

// noopShutdown is returned when no exporter endpoint is configured; the
// global otel.Tracer calls scattered through the codebase keep working
// against the SDK's built-in no-op provider.
func noopShutdown(context.Context) {}

// Setup registers a TracerProvider for the given service name. If
// endpoint is empty, tracing is left disabled and Setup returns a
// no-op Shutdown. Otherwise spans are batched and exported over an
// insecure OTLP/gRPC connection to endpoint.
func Setup(ctx context.Context, serviceName, endpoint string, log *logging.Logger) (Shutdown, error) {
	if endpoint == "" {
		return noopShutdown, nil
	}

	conn, err := grpc.NewClient(endpoint, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("telemetry: dial otel collector: %w", err)
	}

	exporter, err := otlptracegrpc.New(ctx, otlptracegrpc.WithGRPCConn(conn))
	if err != nil {
		return nil, fmt.Errorf("telemetry: create trace exporter: %w", err)
	}

	res, err := resource.New(ctx, resource.WithAttributes(semconv.ServiceNameKey.String(serviceName)))
	if err != nil {
		return nil, fmt.Errorf("telemetry: build resource: %w", err)
	}

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
		sdktrace.WithResource(res),
		sdktrace.WithBatcher(exporter),
	)

	otel.SetTracerProvider(provider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{}, propagation.Baggage{}))

	return func(ctx context.Context) {
		ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := provider.Shutdown(ctx); err != nil && log != nil {
			log.WarnContext(ctx, "error shutting down tracer provider", "error", err)
		}
	}, nil
}
