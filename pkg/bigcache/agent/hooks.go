/*
 * Copyright (c) 2020. Ant Group. All rights reserved.
 *
 * SPDX-License-Identifier: Apache-2.0
 */

package agent

import (
	"github.com/containerd/log"

	"github.com/bigcache-project/bigcache/pkg/bigcache/mapping"
)

// OnMmapFunc and OnMunmapFunc are the function-pointer hooks the
// preload shim installs against: every intercepted mmap(2)/munmap(2)
// call from the traced process is routed through here before falling
// back to the shim's recorded original libc symbol.
type OnMmapFunc func(req mapping.MmapFileRequest) (mapping.MmapFileResult, error)
type OnMunmapFunc func(base, size uintptr) error

// OnMmap is the default mmap hook: delegate straight to the mapping
// façade against the agent's live bundle and handler. A preload shim
// built against a future cgo entry point would wrap this, not replace
// it.
func OnMmap(req mapping.MmapFileRequest) (mapping.MmapFileResult, error) {
	b, h := Bundle(), Handler()
	if b == nil || h == nil {
		return mapping.MmapFileResult{}, nil
	}
	return mapping.MmapFile(h, b, req)
}

// OnMunmap is the default munmap hook.
func OnMunmap(base, size uintptr) error {
	h := Handler()
	if h == nil {
		return nil
	}
	if err := mapping.DestroyMapping(h, base, size); err != nil {
		log.L.Warnf("agent: destroy mapping %#x: %v", base, err)
		return err
	}
	return nil
}
