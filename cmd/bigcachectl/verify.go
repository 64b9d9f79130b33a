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

	"github.com/bigcache-project/bigcache/pkg/bigcache/loader"
	"github.com/bigcache-project/bigcache/pkg/errdefs"
)

func verifyCommand() *cli.Command {
	return &cli.Command{
		Name:      "verify",
		Usage:     "validate a bundle's magic, size, and checksum",
		ArgsUsage: "<bundle.bin>",
		Action: func(c *cli.Context) error {
			if c.Args().Len() != 1 {
				return errors.Wrap(errdefs.ErrInvalidInput, "verify: expected <bundle.bin>")
			}
			path := c.Args().Get(0)

			b, err := loader.Load(path)
			if err != nil {
				return errors.Wrapf(err, "verify: load %s", path)
			}
			defer b.Unload()

			if err := b.Verify(); err != nil {
				return errors.Wrapf(err, "verify: %s", path)
			}
			log.L.Infof("verify: %s is valid", path)
			return nil
		},
	}
}
