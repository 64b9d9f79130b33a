/*
 * Copyright (c) 2020. Ant Group. All rights reserved.
 * Copyright (c) 2022. Nydus Developers. All rights reserved.
 *
 * SPDX-License-Identifier: Apache-2.0
 */

package flags

import (
	"github.com/urfave/cli/v2"

	"github.com/bigcache-project/bigcache/internal/constant"
)

// Args holds the global flags shared by every bigcachectl subcommand.
type Args struct {
	ConfigPath   string
	LogLevel     string
	LogToStdout  bool
	MetricsAddr  string
	PrintVersion bool
}

type Flags struct {
	Args *Args
	F    []cli.Flag
}

func buildFlags(args *Args) []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "config",
			Usage:       "path to bigcache agent configuration (TOML)",
			Destination: &args.ConfigPath,
			EnvVars:     []string{constant.EnvConfigPath},
		},
		&cli.StringFlag{
			Name:        "log-level",
			Usage:       "logging level, possible values: \"trace\", \"debug\", \"info\", \"warning\", \"error\"",
			Destination: &args.LogLevel,
			Value:       constant.DefaultLogLevel,
		},
		&cli.BoolFlag{
			Name:        "log-to-stdout",
			Usage:       "print log messages to standard output instead of a rotated file",
			Destination: &args.LogToStdout,
			Value:       true,
		},
		&cli.StringFlag{
			Name:        "metrics-addr",
			Usage:       "Prometheus metrics host:port (parsed, but no bigcachectl subcommand serves metrics)",
			Destination: &args.MetricsAddr,
			EnvVars:     []string{constant.EnvMetricsAddr},
		},
		&cli.BoolFlag{
			Name:        "version",
			Usage:       "print version and build information",
			Destination: &args.PrintVersion,
		},
	}
}

func NewFlags() *Flags {
	var args Args
	return &Flags{
		Args: &args,
		F:    buildFlags(&args),
	}
}
