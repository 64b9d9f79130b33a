/*
 * Copyright (c) 2020. Ant Group. All rights reserved.
 *
 * SPDX-License-Identifier: Apache-2.0
 */

// Package metrics exposes the fault handler's and loader's counters as
// Prometheus gauges, following the teacher's pkg/metrics/registry
// shape (a dedicated Registry rather than the global default) but
// collapsed to the handful of gauges BigCache actually needs instead
// of the TTL-keyed per-image vectors the daemon collects.
package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/containerd/log"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/bigcache-project/bigcache/pkg/bigcache/faulthandler"
	"github.com/bigcache-project/bigcache/pkg/bigcache/loader"
	"github.com/bigcache-project/bigcache/pkg/errdefs"
)

var Registry = prometheus.NewRegistry()

var (
	totalFaults = prometheus.NewGauge(prometheus.GaugeOpts{Name: "bigcache_faults_total", Help: "Total page faults observed by the handler."})
	cacheHits   = prometheus.NewGauge(prometheus.GaugeOpts{Name: "bigcache_fault_cache_hits", Help: "Faults resolved from the bundle."})
	cacheMisses = prometheus.NewGauge(prometheus.GaugeOpts{Name: "bigcache_fault_cache_misses", Help: "Faults not found in the bundle and left unresolved because zero fill is off."})
	zeroFills   = prometheus.NewGauge(prometheus.GaugeOpts{Name: "bigcache_fault_zero_fills", Help: "Misses resolved with a synthesized zero page."})
	copyErrors  = prometheus.NewGauge(prometheus.GaugeOpts{Name: "bigcache_fault_copy_errors", Help: "UFFDIO_COPY failures."})

	loaderHits   = prometheus.NewGauge(prometheus.GaugeOpts{Name: "bigcache_loader_hits", Help: "Bundle.Lookup calls that found a page."})
	loaderMisses = prometheus.NewGauge(prometheus.GaugeOpts{Name: "bigcache_loader_misses", Help: "Bundle.Lookup calls that found nothing."})
	bytesServed  = prometheus.NewGauge(prometheus.GaugeOpts{Name: "bigcache_loader_bytes_served", Help: "Total bytes returned from bundle lookups."})
)

func init() {
	Registry.MustRegister(totalFaults, cacheHits, cacheMisses, zeroFills, copyErrors, loaderHits, loaderMisses, bytesServed)
}

// UpdateFaultStats refreshes the fault-handler gauges from a snapshot.
func UpdateFaultStats(s faulthandler.Stats) {
	totalFaults.Set(float64(s.TotalFaults))
	cacheHits.Set(float64(s.CacheHits))
	cacheMisses.Set(float64(s.CacheMisses))
	zeroFills.Set(float64(s.ZeroFills))
	copyErrors.Set(float64(s.CopyErrors))
}

// UpdateLoaderStats refreshes the loader gauges from a snapshot.
func UpdateLoaderStats(s loader.Stats) {
	loaderHits.Set(float64(s.Hits))
	loaderMisses.Set(float64(s.Misses))
	bytesServed.Set(float64(s.TotalBytesRead))
}

// Server serves the Registry over HTTP until its context is canceled.
// Refreshing the gauges from the live handler/bundle is the caller's
// job (the agent ticks GetStats, which calls UpdateFaultStats/
// UpdateLoaderStats, on its own schedule) so this package stays
// exposition-only.
type Server struct {
	addr string
	srv  *http.Server
}

// NewServer builds (but does not start) the metrics HTTP server.
func NewServer(addr string) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(Registry, promhttp.HandlerOpts{}))
	return &Server{addr: addr, srv: &http.Server{Addr: addr, Handler: mux}}
}

// Serve runs the HTTP listener until ctx is canceled.
func (s *Server) Serve(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- errors.Wrapf(errdefs.ErrIO, "metrics: listen on %s: %v", s.addr, err)
			return
		}
		errCh <- nil
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.srv.Shutdown(shutdownCtx); err != nil {
			log.L.Warnf("metrics: shutdown: %v", err)
		}
		return nil
	case err := <-errCh:
		return err
	}
}
