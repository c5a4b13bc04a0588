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
	"context"
	"log"
	"log/slog"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"golang.org/x/time/rate"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/AsmiBhaskar/mood-mirror/services/mirror/aggregate"
	"github.com/AsmiBhaskar/mood-mirror/services/mirror/analytics"
	"github.com/AsmiBhaskar/mood-mirror/services/mirror/cache"
	"github.com/AsmiBhaskar/mood-mirror/services/mirror/housekeeping"
	"github.com/AsmiBhaskar/mood-mirror/services/mirror/hub"
	"github.com/AsmiBhaskar/mood-mirror/services/mirror/observability"
	"github.com/AsmiBhaskar/mood-mirror/services/mirror/registry"
	"github.com/AsmiBhaskar/mood-mirror/services/mirror/routes"
	"github.com/AsmiBhaskar/mood-mirror/services/mirror/store"
)

const serviceName = "moodmirror-service"

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the mood mirror server",
	Run: func(cmd *cobra.Command, args []string) {
		runServe()
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func initTracer(endpoint string) (func(context.Context), error) {
	ctx := context.Background()

	conn, err := grpc.NewClient(endpoint,
		grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, err
	}
	traceExporter, err := otlptracegrpc.New(ctx, otlptracegrpc.WithGRPCConn(conn))
	if err != nil {
		return nil, err
	}
	res, err := resource.New(ctx,
		resource.WithAttributes(semconv.ServiceNameKey.String(serviceName)))
	if err != nil {
		return nil, err
	}
	bsp := sdktrace.NewBatchSpanProcessor(traceExporter)
	traceProvider := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
		sdktrace.WithResource(res),
		sdktrace.WithSpanProcessor(bsp))
	otel.SetTracerProvider(traceProvider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.
		TraceContext{}, propagation.Baggage{}))

	return func(ctx context.Context) {
		ctx, cancel := context.WithTimeout(ctx, time.Second*5)
		defer cancel()
		if err := traceExporter.Shutdown(ctx); err != nil {
			slog.Error("failed to shutdown OTLP exporter", "error", err)
		}
	}, nil
}

func runServe() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	if config.Tracing.Enabled {
		cleanup, err := initTracer(config.Tracing.Endpoint)
		if err != nil {
			log.Fatalf("failed to setup the OTLP tracer: %v", err)
		}
		defer cleanup(context.Background())
	}

	observability.Init()
	metrics := observability.Default

	kv, err := openStorage()
	if err != nil {
		log.Fatalf("failed to open storage at %s: %v", config.Storage.Path, err)
	}
	defer kv.Close()

	st := store.NewBadgerStore(kv)
	reg := registry.New(kv, config.registryTTL())
	ca := cache.New(kv).WithMetrics(metrics)
	collective := aggregate.NewAggregator(st.ListActiveSessionAggregates, config.collectiveWindow())
	h := hub.New(metrics)
	an := analytics.New(st)
	pipeline := hub.NewPipeline(st, ca, reg, collective, h, metrics)

	wsConfig := hub.DefaultConnectionConfig()
	wsConfig.MessageRate = rate.Limit(config.Websocket.MessageRate)
	wsConfig.MessageBurst = config.Websocket.MessageBurst
	wsConfig.MaxFrameBytes = config.Websocket.MaxFrameBytes

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	scheduler := housekeeping.NewScheduler(
		st.DeactivateStaleSessions,
		reg.Reconcile,
		refreshCollective(collective, ca),
		housekeeping.SchedulerConfig{
			Interval:   config.housekeepingInterval(),
			StaleAfter: config.staleAfter(),
		},
	)
	if err := scheduler.Start(ctx); err != nil {
		log.Fatalf("failed to start maintenance scheduler: %v", err)
	}
	defer scheduler.Stop()

	router := gin.Default()
	router.Use(otelgin.Middleware(serviceName))

	routes.SetupRoutes(router, routes.Deps{
		Store:      st,
		Cache:      ca,
		Registry:   reg,
		Analytics:  an,
		Collective: collective,
		Hub:        h,
		Pipeline:   pipeline,
		Metrics:    metrics,
		WSConfig:   wsConfig,
	})

	slog.Info("starting the mood mirror server", "port", config.Server.Port)
	if err := router.Run(":" + config.Server.Port); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}
