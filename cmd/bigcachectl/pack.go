/*
 * Copyright (c) 2020. Ant Group. All rights reserved.
 *
 * SPDX-License-Identifier: Apache-2.0
 */

package main

import (
	"github.com/containerd/log"
	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"

	"github.com/bigcache-project/bigcache/pkg/bigcache/packer"
	"github.com/bigcache-project/bigcache/pkg/errdefs"
)

func packCommand() *cli.Command {
	return &cli.Command{
		Name:      "pack",
		Usage:     "build a bundle from a recorded access-trace CSV",
		ArgsUsage: "<trace.csv> <bundle.bin>",
		Action: func(c *cli.Context) error {
			if c.Args().Len() != 2 {
				return errors.Wrap(errdefs.ErrInvalidInput, "pack: expected <trace.csv> <bundle.bin>")
			}
			tracePath := c.Args().Get(0)
			outPath := c.Args().Get(1)

			p := packer.New()
			loaded, err := p.LoadFromCSV(tracePath)
			if err != nil {
				return errors.Wrapf(err, "pack: load trace %s", tracePath)
			}
			log.L.Infof("pack: loaded %d page entries from %s", loaded, tracePath)

			report, err := p.Build(outPath)
			if err != nil {
				return errors.Wrapf(err, "pack: build %s", outPath)
			}
			log.L.Infof("pack: wrote %s (%d bytes, %d pages, %d synthetic)",
				outPath, report.TotalSize, report.PagesWritten, report.SyntheticPages)
			return nil
		},
	}
}
