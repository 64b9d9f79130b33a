/*
 * Copyright (c) 2023. Nydus Developers. All rights reserved.
 *
 * SPDX-License-Identifier: Apache-2.0
 */

// constants of the bigcache agent and bigcachectl CLI

package constant

const (
	// PageSize is the fixed unit of storage, lookup, and fault service.
	PageSize = 4096
	// PageShift is log2(PageSize), used for alignment arithmetic.
	PageShift = 12
	// PageMask clears the low bits of an address/offset to page-align it down.
	PageMask = PageSize - 1

	// Magic is the four-byte "BIGC" bundle magic.
	Magic uint32 = 0x42494743
	// Version is the only on-disk format version this implementation understands.
	Version uint32 = 1

	// MaxPathLen is the maximum UTF-8 byte length of a source path.
	MaxPathLen = 512
	// MaxFiles is the maximum number of distinct source files a single bundle may index.
	MaxFiles = 4096
)

const (
	// DefaultBundlePath is where the resident agent looks for the bundle
	// when BIGCACHE_PATH is not set.
	DefaultBundlePath = "/data/local/tmp/bigcache.bin"

	// EnvBundlePath overrides DefaultBundlePath.
	EnvBundlePath = "BIGCACHE_PATH"
	// EnvEnabled disables the agent when set to "0".
	EnvEnabled = "BIGCACHE_ENABLED"
	// EnvVerbose sets the log level, 0 (silent) through 5 (trace).
	EnvVerbose = "BIGCACHE_VERBOSE"
	// EnvConfigPath points at an optional TOML config file.
	EnvConfigPath = "BIGCACHE_CONFIG"
	// EnvMetricsAddr, if set, serves Prometheus metrics at this host:port.
	EnvMetricsAddr = "BIGCACHE_METRICS_ADDR"

	DefaultLogLevel = "info"
)

// InterceptableSuffixes are the file suffixes the mapping façade will
// consider for interception by MmapFile; advisory-adjacent but used for a
// real decision (unlike the packer's EXECUTABLE flag heuristic).
var InterceptableSuffixes = []string{".so", ".dex", ".odex", ".oat", ".vdex", ".art", ".apk", ".jar"}

// ExecutableSuffixes are consulted only by the packer's advisory
// PAGE_FLAG_EXECUTABLE heuristic; the runtime never reads this flag.
var ExecutableSuffixes = []string{".so", ".odex", ".oat"}
