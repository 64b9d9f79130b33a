/*
 * Copyright (c) 2020. Ant Group. All rights reserved.
 *
 * SPDX-License-Identifier: Apache-2.0
 */

package main

import (
	"fmt"
	"os"

	"github.com/containerd/log"
	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"

	"github.com/bigcache-project/bigcache/pkg/bigcache/loader"
	"github.com/bigcache-project/bigcache/pkg/bigcache/packer"
	"github.com/bigcache-project/bigcache/pkg/bigcache/warmup"
	"github.com/bigcache-project/bigcache/pkg/errdefs"
)

// simulateCommand replays a trace end to end through the packer, the
// loader, and warm-up, without touching userfaultfd: a dry run for
// validating a trace and a bundle layout on a host (or CI) where the
// fault handler itself cannot run.
func simulateCommand() *cli.Command {
	return &cli.Command{
		Name:      "simulate",
		Usage:     "pack, load, and warm a trace end-to-end without a real fault handler",
		ArgsUsage: "<trace.csv>",
		Action: func(c *cli.Context) error {
			if c.Args().Len() != 1 {
				return errors.Wrap(errdefs.ErrInvalidInput, "simulate: expected <trace.csv>")
			}
			tracePath := c.Args().Get(0)

			tmp, err := os.CreateTemp("", "bigcache-simulate-*.bin")
			if err != nil {
				return errors.Wrapf(errdefs.ErrIO, "simulate: create temp bundle: %v", err)
			}
			tmpPath := tmp.Name()
			tmp.Close()
			defer os.Remove(tmpPath)

			p := packer.New()
			loaded, err := p.LoadFromCSV(tracePath)
			if err != nil {
				return errors.Wrapf(err, "simulate: load trace %s", tracePath)
			}
			log.L.Infof("simulate: loaded %d page entries from %s", loaded, tracePath)

			report, err := p.Build(tmpPath)
			if err != nil {
				return errors.Wrapf(err, "simulate: build temp bundle: %v", err)
			}
			log.L.Infof("simulate: packed %d bytes, %d pages (%d synthetic)",
				report.TotalSize, report.PagesWritten, report.SyntheticPages)

			b, err := loader.Load(tmpPath)
			if err != nil {
				return errors.Wrapf(err, "simulate: load packed bundle: %v", err)
			}
			defer b.Unload()

			if err := b.Verify(); err != nil {
				return errors.Wrapf(err, "simulate: verify packed bundle: %v", err)
			}

			if err := warmup.WarmAll(b, nil); err != nil {
				log.L.Warnf("simulate: warm-up: %v", err)
			}

			h := b.Header()
			fmt.Printf("packed %d pages across %d files into %d bytes\n", h.NumPages, h.NumFiles, h.TotalSize)
			fmt.Printf("warm-up complete; bundle verified and ready to be served\n")
			return nil
		},
	}
}
