/*
 * Copyright (c) 2020. Ant Group. All rights reserved.
 *
 * SPDX-License-Identifier: Apache-2.0
 */

package main

import (
	"fmt"

	digest "github.com/opencontainers/go-digest"
	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"

	"github.com/bigcache-project/bigcache/pkg/bigcache/loader"
	"github.com/bigcache-project/bigcache/pkg/errdefs"
)

func infoCommand() *cli.Command {
	return &cli.Command{
		Name:      "info",
		Usage:     "print a bundle's header fields and content fingerprint",
		ArgsUsage: "<bundle.bin>",
		Action: func(c *cli.Context) error {
			if c.Args().Len() != 1 {
				return errors.Wrap(errdefs.ErrInvalidInput, "info: expected <bundle.bin>")
			}
			path := c.Args().Get(0)

			b, err := loader.Load(path)
			if err != nil {
				return errors.Wrapf(err, "info: load %s", path)
			}
			defer b.Unload()

			h := b.Header()
			d := digest.FromBytes(b.Data())

			fmt.Printf("path:        %s\n", path)
			fmt.Printf("version:     %d\n", h.Version)
			fmt.Printf("pages:       %d\n", h.NumPages)
			fmt.Printf("files:       %d\n", h.NumFiles)
			fmt.Printf("total size:  %d bytes\n", h.TotalSize)
			fmt.Printf("data offset: %d\n", h.DataOffset)
			fmt.Printf("checksum:    %#x\n", h.Checksum)
			fmt.Printf("digest:      %s\n", d)
			return nil
		},
	}
}
