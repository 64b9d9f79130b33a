/*
 * Copyright (c) 2020. Ant Group. All rights reserved.
 *
 * SPDX-License-Identifier: Apache-2.0
 */

package main

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/containerd/log"
	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"

	"github.com/bigcache-project/bigcache/pkg/bigcache/loader"
	"github.com/bigcache-project/bigcache/pkg/errdefs"
)

type benchmarkEntry struct {
	path   string
	offset uint64
}

func loadBenchmarkTrace(path string) ([]benchmarkEntry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(errdefs.ErrIO, "benchmark: open %s: %v", path, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	if _, err := r.Read(); err != nil { // header row
		return nil, errors.Wrapf(errdefs.ErrInvalidInput, "benchmark: read header of %s: %v", path, err)
	}

	var entries []benchmarkEntry
	for {
		record, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil || len(record) < 3 {
			continue
		}
		offset, err := strconv.ParseUint(strings.TrimSpace(record[2]), 10, 64)
		if err != nil {
			continue
		}
		entries = append(entries, benchmarkEntry{path: strings.TrimSpace(record[1]), offset: offset})
	}
	if len(entries) == 0 {
		return nil, errors.Wrap(errdefs.ErrInvalidInput, "benchmark: trace has no usable rows")
	}
	return entries, nil
}

func percentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(p * float64(len(sorted)-1))
	return sorted[idx]
}

func benchmarkCommand() *cli.Command {
	var iterations int
	return &cli.Command{
		Name:      "benchmark",
		Usage:     "replay a trace against a bundle N times and report lookup latency percentiles",
		ArgsUsage: "<bundle.bin> <trace.csv>",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:        "iterations",
				Usage:       "number of passes over the trace",
				Value:       1000,
				Destination: &iterations,
			},
		},
		Action: func(c *cli.Context) error {
			if c.Args().Len() != 2 {
				return errors.Wrap(errdefs.ErrInvalidInput, "benchmark: expected <bundle.bin> <trace.csv>")
			}
			bundlePath := c.Args().Get(0)
			tracePath := c.Args().Get(1)

			b, err := loader.Load(bundlePath)
			if err != nil {
				return errors.Wrapf(err, "benchmark: load %s", bundlePath)
			}
			defer b.Unload()

			entries, err := loadBenchmarkTrace(tracePath)
			if err != nil {
				return err
			}

			latencies := make([]time.Duration, 0, iterations*len(entries))
			var hits, misses int
			for i := 0; i < iterations; i++ {
				for _, e := range entries {
					start := time.Now()
					_, ok := b.Lookup(e.path, e.offset)
					latencies = append(latencies, time.Since(start))
					if ok {
						hits++
					} else {
						misses++
					}
				}
			}

			sort.Slice(latencies, func(i, j int) bool { return latencies[i] < latencies[j] })
			p50 := percentile(latencies, 0.50)
			p99 := percentile(latencies, 0.99)

			log.L.Infof("benchmark: %d lookups (%d hits, %d misses)", len(latencies), hits, misses)
			fmt.Printf("p50: %s\n", p50)
			fmt.Printf("p99: %s\n", p99)
			return nil
		},
	}
}
