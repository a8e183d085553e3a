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
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/AleutianAI/measure/services/measure/config"
	"github.com/AleutianAI/measure/services/measure/output"
	"github.com/AleutianAI/measure/services/measure/store"
	"github.com/AleutianAI/measure/services/measure/telemetry"
)

// closers releases resources in reverse order of acquisition.
type closers []func() error

func (c *closers) add(fn func() error) {
	*c = append(*c, fn)
}

func (c closers) Close() error {
	var errs []error
	for i := len(c) - 1; i >= 0; i-- {
		if err := c[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// -----------------------------------------------------------------------------
// Writers
// -----------------------------------------------------------------------------

// writerOptions selects the optional writers.
type writerOptions struct {
	// Truncate clears the .perf file before the first write.
	Truncate bool

	// History also writes to the badger history store.
	History bool
}

// buildWriters assembles every writer enabled by cfg.
//
// The returned closers must be closed even when an error is returned.
func buildWriters(ctx context.Context, cfg *config.Config, opts writerOptions, log *slog.Logger) (*output.MultiWriter, closers, error) {
	var (
		writers []output.Writer
		cleanup closers
	)

	if cfg.Output.Path != "" {
		fw := output.NewFileWriter(cfg.Output.Path)
		if opts.Truncate {
			if err := fw.Truncate(); err != nil {
				return nil, cleanup, err
			}
		}
		writers = append(writers, fw)
	}

	if opts.History && cfg.Store.Path != "" {
		db, err := store.Open(store.Config{Path: cfg.Store.Path, Logger: log})
		if err != nil {
			return nil, cleanup, fmt.Errorf("failed to open the history store: %w", err)
		}
		cleanup.add(db.Close)
		writers = append(writers, db)
	}

	if cfg.Output.GCS.Bucket != "" {
		gw, err := output.NewGCSWriter(ctx, cfg.Output.GCS.Bucket, cfg.Output.GCS.Prefix, cfg.Output.GCS.CredentialsFile)
		if err != nil {
			return nil, cleanup, err
		}
		cleanup.add(gw.Close)
		writers = append(writers, gw)
	}

	if cfg.Output.Influx.URL != "" {
		iw := output.NewInfluxWriter(cfg.Output.Influx.URL, cfg.Output.Influx.Token,
			cfg.Output.Influx.Org, cfg.Output.Influx.Bucket)
		cleanup.add(func() error {
			iw.Close()
			return nil
		})
		writers = append(writers, iw)
	}

	log.Debug("writers configured", slog.Int("count", len(writers)))
	return output.NewMultiWriter(writers...), cleanup, nil
}

// -----------------------------------------------------------------------------
// Telemetry
// -----------------------------------------------------------------------------

// providerConfig maps the telemetry section to exporter settings.
func providerConfig(cfg *config.Config, reg prometheus.Registerer) telemetry.ProviderConfig {
	pc := telemetry.DefaultProviderConfig()
	if cfg.Telemetry.TraceExporter != "" {
		pc.TraceExporter = cfg.Telemetry.TraceExporter
	}
	if cfg.Telemetry.MetricExporter != "" {
		pc.MetricExporter = cfg.Telemetry.MetricExporter
	}
	if cfg.Telemetry.OTLPEndpoint != "" {
		pc.OTLPEndpoint = cfg.Telemetry.OTLPEndpoint
	}
	pc.OTLPInsecure = cfg.Telemetry.OTLPInsecure || cfg.Telemetry.OTLPEndpoint == ""
	pc.Registerer = reg
	return pc
}

// buildSinks creates the telemetry sinks enabled by cfg. Prometheus
// collectors are registered with reg.
func buildSinks(cfg *config.Config, reg prometheus.Registerer, prom bool) ([]telemetry.Sink, closers, error) {
	var (
		sinks   []telemetry.Sink
		cleanup closers
	)

	if prom || cfg.Telemetry.Prometheus {
		pc := telemetry.DefaultPrometheusConfig()
		pc.Registry = reg
		ps, err := telemetry.NewPrometheusSink(pc)
		if err != nil {
			return nil, cleanup, err
		}
		cleanup.add(ps.Close)
		sinks = append(sinks, ps)
	}

	if cfg.Telemetry.OTel {
		otelSink, err := telemetry.NewOTelSink(telemetry.DefaultOTelConfig())
		if err != nil {
			return nil, cleanup, err
		}
		cleanup.add(otelSink.Close)
		sinks = append(sinks, otelSink)
	}

	return sinks, cleanup, nil
}

// newRegistry returns a registry with the Go runtime and process collectors.
func newRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// metricsServer serves /metrics for a registry.
type metricsServer struct {
	srv      *http.Server
	listener net.Listener
	done     chan error
}

// startMetricsServer listens on addr and serves reg in the background.
func startMetricsServer(addr string, reg *prometheus.Registry, log *slog.Logger) (*metricsServer, error) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	ms := &metricsServer{
		srv:      &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second},
		listener: ln,
		done:     make(chan error, 1),
	}
	go func() {
		err := ms.srv.Serve(ln)
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
		ms.done <- err
	}()

	log.Info("serving metrics", slog.String("addr", ln.Addr().String()))
	return ms, nil
}

// Addr returns the bound address.
func (m *metricsServer) Addr() string {
	return m.listener.Addr().String()
}

// Shutdown stops the server and waits for Serve to return.
func (m *metricsServer) Shutdown(ctx context.Context) error {
	if err := m.srv.Shutdown(ctx); err != nil {
		return err
	}
	return <-m.done
}
