/*
 * Copyright (c) 2020. Ant Group. All rights reserved.
 *
 * SPDX-License-Identifier: Apache-2.0
 */

package flags

import (
	"flag"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewFlags(t *testing.T) {
	set := flag.NewFlagSet("test", 0)
	flags := NewFlags()
	for _, i := range flags.F {
		err := i.Apply(set)
		assert.Nil(t, err)
	}
	err := set.Parse([]string{"--config", "/etc/bigcache.toml", "--log-level", "debug"})
	assert.Nil(t, err)
	assert.Equal(t, "/etc/bigcache.toml", flags.Args.ConfigPath)
	assert.Equal(t, "debug", flags.Args.LogLevel)
}
