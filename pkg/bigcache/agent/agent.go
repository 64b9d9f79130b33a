/*
 * Copyright (c) 2020. Ant Group. All rights reserved.
 *
 * SPDX-License-Identifier: Apache-2.0
 */

// Package agent is the process-wide BigCache lifecycle: it loads the
// bundle, warms it up, and starts the fault handler, exposing a single
// idempotent Init/Cleanup pair the way the teacher's pkg/supervisor
// guards its shared state behind one package-level mutex.
package agent

import (
	"context"
	"sync"
	"time"

	"github.com/containerd/log"
	"github.com/pkg/errors"

	"github.com/bigcache-project/bigcache/config"
	"github.com/bigcache-project/bigcache/internal/logging"
	"github.com/bigcache-project/bigcache/pkg/bigcache/faulthandler"
	"github.com/bigcache-project/bigcache/pkg/bigcache/loader"
	"github.com/bigcache-project/bigcache/pkg/bigcache/warmup"
	"github.com/bigcache-project/bigcache/pkg/metrics"
)

// statsRefreshInterval is how often GetStats runs while the metrics
// server is serving, to keep the exported gauges current.
const statsRefreshInterval = 5 * time.Second

// Stats aggregates the loader's and the fault handler's counters into
// one snapshot for GetStats.
type Stats struct {
	Loader  loader.Stats
	Handler faulthandler.Stats
}

// Option customizes Init beyond what environment variables and the
// TOML override file cover; mainly useful for tests.
type Option func(*options)

type options struct {
	cfg     *config.Config
	entries []warmup.SourceAccess
}

// WithConfig overrides the config that would otherwise come from
// config.Load.
func WithConfig(c *config.Config) Option {
	return func(o *options) { o.cfg = c }
}

// WithWarmupTrace supplies the source-file access trace warm-up should
// replay; without it only the bundle blob itself is warmed.
func WithWarmupTrace(entries []warmup.SourceAccess) Option {
	return func(o *options) { o.entries = entries }
}

var (
	mu      sync.Mutex
	bundle  *loader.Bundle
	handler *faulthandler.Handler
	enabled bool
	started bool

	metricsCancel context.CancelFunc
	metricsDone   chan struct{}
)

// Init is idempotent: a second call while the agent is already
// running is a no-op success. It reads configuration, loads and warms
// the bundle, then creates and starts the fault handler. A failure to
// load the bundle, or any failure after it has been loaded, tears down
// the partial state and disables the agent; IsEnabled reports false
// from then on, and every later Init call is a no-op returning nil
// until Cleanup resets the state.
func Init(opts ...Option) error {
	mu.Lock()
	defer mu.Unlock()

	if started {
		return nil
	}

	o := &options{}
	for _, opt := range opts {
		opt(o)
	}

	cfg := o.cfg
	if cfg == nil {
		var err error
		cfg, err = config.Load()
		if err != nil {
			return err
		}
	}

	if !cfg.Enabled {
		enabled = false
		started = true
		log.L.Infof("agent: disabled via configuration")
		return nil
	}

	if err := logging.SetUp(cfg.LogLevel, true, "", nil); err != nil {
		log.L.Warnf("agent: logging setup: %v", err)
	}

	b, err := loader.Load(cfg.BundlePath)
	if err != nil {
		enabled = false
		started = true
		return errors.Wrapf(err, "agent: load bundle %s", cfg.BundlePath)
	}

	if err := warmup.WarmAll(b, o.entries); err != nil {
		log.L.Warnf("agent: warm-up: %v", err)
	}

	h, err := faulthandler.New(b, faulthandler.Config{
		EnableZeroFill: cfg.EnableZeroFill,
		EnableStats:    cfg.EnableStats,
	})
	if err != nil {
		b.Unload()
		enabled = false
		started = true
		return errors.Wrap(err, "agent: create fault handler")
	}

	if err := h.Start(); err != nil {
		h.Destroy()
		b.Unload()
		enabled = false
		started = true
		return errors.Wrap(err, "agent: start fault handler")
	}

	bundle = b
	handler = h
	enabled = true
	started = true

	if cfg.MetricsAddr != "" {
		startMetricsServer(cfg.MetricsAddr)
	}

	return nil
}

// startMetricsServer launches the Prometheus HTTP endpoint and a
// ticker that keeps its gauges current from the live handler/bundle.
// Both run until Cleanup cancels metricsCancel; a listen failure is
// logged, never fatal to the agent.
func startMetricsServer(addr string) {
	ctx, cancel := context.WithCancel(context.Background())
	metricsCancel = cancel
	metricsDone = make(chan struct{})

	srv := metrics.NewServer(addr)
	go func() {
		defer close(metricsDone)
		if err := srv.Serve(ctx); err != nil {
			log.L.Warnf("agent: metrics server: %v", err)
		}
	}()

	go func() {
		ticker := time.NewTicker(statsRefreshInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				GetStats()
			}
		}
	}()
}

// Cleanup stops the fault handler, logs its final stats, destroys it,
// and unloads the bundle. It is safe to call when Init was never
// called or the agent is disabled.
func Cleanup() error {
	mu.Lock()
	defer mu.Unlock()

	if metricsCancel != nil {
		metricsCancel()
		<-metricsDone
		metricsCancel = nil
		metricsDone = nil
	}

	if handler != nil {
		if err := handler.Stop(); err != nil {
			log.L.Warnf("agent: stop fault handler: %v", err)
		}
		log.L.Infof("agent: final fault stats: %+v", handler.Stats())
		if err := handler.Destroy(); err != nil {
			log.L.Warnf("agent: destroy fault handler: %v", err)
		}
		handler = nil
	}

	if bundle != nil {
		if err := bundle.Unload(); err != nil {
			log.L.Warnf("agent: unload bundle: %v", err)
		}
		bundle = nil
	}

	enabled = false
	started = false
	return nil
}

// IsEnabled reports whether the agent is serving faults from a loaded
// bundle. It is false before Init, after Cleanup, after a disabled
// configuration, or after a failed Init.
func IsEnabled() bool {
	mu.Lock()
	defer mu.Unlock()
	return enabled
}

// GetStats aggregates the loader's and handler's counters. It returns
// the zero value if the agent is not enabled.
func GetStats() Stats {
	mu.Lock()
	b, h := bundle, handler
	mu.Unlock()

	if b == nil || h == nil {
		return Stats{}
	}
	s := Stats{Loader: b.Stats(), Handler: h.Stats()}
	metrics.UpdateLoaderStats(s.Loader)
	metrics.UpdateFaultStats(s.Handler)
	return s
}

// Bundle returns the live bundle for callers (mapping façade,
// bigcachectl) that need direct access; nil if the agent is disabled.
func Bundle() *loader.Bundle {
	mu.Lock()
	defer mu.Unlock()
	return bundle
}

// Handler returns the live fault handler; nil if the agent is
// disabled.
func Handler() *faulthandler.Handler {
	mu.Lock()
	defer mu.Unlock()
	return handler
}
