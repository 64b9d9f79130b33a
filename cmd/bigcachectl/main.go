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
	"github.com/urfave/cli/v2"

	"github.com/bigcache-project/bigcache/internal/flags"
	"github.com/bigcache-project/bigcache/internal/logging"
)

// Build-time variables, overridden via -ldflags the way the teacher's
// cmd/containerd-nydus-grpc does.
var (
	Version        = "unknown"
	BuildTimestamp = "unknown"
	GoVersion      = "unknown"
)

func main() {
	f := flags.NewFlags()
	app := &cli.App{
		Name:        "bigcachectl",
		Usage:       "build, inspect, and simulate BigCache cold-start bundles",
		Version:     Version,
		Flags:       f.F,
		HideVersion: true,
		Before: func(c *cli.Context) error {
			if f.Args.PrintVersion {
				fmt.Println("Version:    ", Version)
				fmt.Println("Go version: ", GoVersion)
				fmt.Println("Build time: ", BuildTimestamp)
				os.Exit(0)
			}
			return logging.SetUp(f.Args.LogLevel, f.Args.LogToStdout, logging.DefaultLogDirName, &logging.RotateLogArgs{})
		},
		Commands: []*cli.Command{
			packCommand(),
			verifyCommand(),
			infoCommand(),
			benchmarkCommand(),
			simulateCommand(),
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.L.WithError(err).Fatal("bigcachectl failed")
	}
}
