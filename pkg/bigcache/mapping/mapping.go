/*
 * Copyright (c) 2020. Ant Group. All rights reserved.
 *
 * SPDX-License-Identifier: Apache-2.0
 */

// Package mapping is the façade between a caller (the preload shim,
// through the agent's OnMmap/OnMunmap hooks) and the fault handler: it
// creates and tears down the anonymous userfaultfd-backed mappings, and
// decides whether
// a given mmap(2) call should be served from the bundle at all.
package mapping

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"unsafe"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"

	"github.com/bigcache-project/bigcache/internal/constant"
	"github.com/bigcache-project/bigcache/pkg/bigcache/faulthandler"
	"github.com/bigcache-project/bigcache/pkg/bigcache/format"
	"github.com/bigcache-project/bigcache/pkg/bigcache/loader"
	"github.com/bigcache-project/bigcache/pkg/errdefs"
	"github.com/bigcache-project/bigcache/pkg/slices"
)

// mappings tracks the live anonymous regions this façade has created,
// keyed by base address, so DestroyMapping can recover the byte slice
// Munmap needs without the caller having to keep it around.
var mappings = struct {
	mu    sync.Mutex
	table map[uintptr][]byte
}{table: make(map[uintptr][]byte)}

// interceptStats counts MmapFile's interception decisions; Stats
// exposes a point-in-time snapshot for the agent's GetStats/metrics.
var interceptStats struct {
	mu          sync.Mutex
	intercepted uint64
	bypassed    uint64
}

// Stats reports how many mmap_file calls MmapFile has taken over
// versus left for the real mmap(2) to handle.
type Stats struct {
	Intercepted uint64
	Bypassed    uint64
}

// GetStats returns the running intercepted/bypassed counters.
func GetStats() Stats {
	interceptStats.mu.Lock()
	defer interceptStats.mu.Unlock()
	return Stats{Intercepted: interceptStats.intercepted, Bypassed: interceptStats.bypassed}
}

func bumpIntercepted() {
	interceptStats.mu.Lock()
	interceptStats.intercepted++
	interceptStats.mu.Unlock()
}

func bumpBypassed() {
	interceptStats.mu.Lock()
	interceptStats.bypassed++
	interceptStats.mu.Unlock()
}

// CreateMapping reserves a page-aligned anonymous region with mmap(2)
// and registers it with the handler so its faults are served from
// (originPath, originOffsetBase) onward. The region is always mapped
// PROT_READ|PROT_WRITE, since the kernel needs write access to inject
// pages into it; prot is not applied.
func CreateMapping(h *faulthandler.Handler, size uintptr, originPath string, originOffsetBase uint64, prot int) (uintptr, error) {
	if size == 0 {
		return 0, errors.Wrap(errdefs.ErrInvalidInput, "mapping: zero-size request")
	}
	aligned := format.PageAlign(uint64(size))

	data, err := unix.Mmap(-1, 0, int(aligned), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_PRIVATE|unix.MAP_ANONYMOUS)
	if err != nil {
		return 0, errors.Wrapf(errdefs.ErrIO, "mapping: anonymous mmap %d bytes: %v", aligned, err)
	}
	base := uintptr(unsafe.Pointer(&data[0]))

	if _, err := h.RegisterRegion(base, uintptr(aligned), originPath, originOffsetBase); err != nil {
		unix.Munmap(data)
		return 0, err
	}
	mappings.mu.Lock()
	mappings.table[base] = data
	mappings.mu.Unlock()
	return base, nil
}

// DestroyMapping unregisters base from the handler and munmaps it.
func DestroyMapping(h *faulthandler.Handler, base, size uintptr) error {
	if err := h.UnregisterRegion(base); err != nil {
		return err
	}
	mappings.mu.Lock()
	data, ok := mappings.table[base]
	if ok {
		delete(mappings.table, base)
	}
	mappings.mu.Unlock()
	if !ok {
		return errors.Wrapf(errdefs.ErrNotFound, "mapping: no tracked mapping at %#x", base)
	}
	if err := unix.Munmap(data); err != nil {
		return errors.Wrapf(errdefs.ErrIO, "mapping: munmap %#x: %v", base, err)
	}
	return nil
}

// MmapFileRequest mirrors the arguments of the intercepted mmap(2)
// call: the file the caller wants to map, the requested byte range,
// and the requested protection/flags.
type MmapFileRequest struct {
	Path   string
	Offset uint64
	Length uintptr
	Prot   int
	Flags  int
}

// MmapFileResult reports whether BigCache took over the request.
type MmapFileResult struct {
	Intercepted bool
	Base        uintptr
}

// MmapFile is the mmap_file interception point: BigCache only takes
// over a request that is (i) MAP_PRIVATE, (ii) against a path whose
// suffix is one of the interceptable library/archive extensions, and
// (iii) backed by at least one page in the loaded bundle at the
// requested origin offset. Anything else is left for the real mmap(2)
// to handle, and is counted as bypassed rather than failed.
func MmapFile(h *faulthandler.Handler, b *loader.Bundle, req MmapFileRequest) (MmapFileResult, error) {
	if req.Flags&unix.MAP_PRIVATE == 0 {
		bumpBypassed()
		return MmapFileResult{}, nil
	}
	if !hasInterceptableSuffix(req.Path) {
		bumpBypassed()
		return MmapFileResult{}, nil
	}
	if _, ok := b.LookupOffset(req.Path, req.Offset); !ok {
		bumpBypassed()
		return MmapFileResult{}, nil
	}

	base, err := CreateMapping(h, req.Length, req.Path, req.Offset, req.Prot)
	if err != nil {
		return MmapFileResult{}, err
	}
	bumpIntercepted()
	return MmapFileResult{Intercepted: true, Base: base}, nil
}

func hasInterceptableSuffix(path string) bool {
	return slices.Contains(constant.InterceptableSuffixes, filepath.Ext(path))
}

// ResolveFDPath resolves an open file descriptor back to the path it
// refers to, via /proc/self/fd. The preload shim's mmap_file hook only
// has an fd to work with; this recovers the path MmapFile needs.
func ResolveFDPath(fd int) (string, error) {
	link := fmt.Sprintf("/proc/self/fd/%d", fd)
	path, err := os.Readlink(link)
	if err != nil {
		return "", errors.Wrapf(errdefs.ErrIO, "mapping: readlink %s: %v", link, err)
	}
	return path, nil
}
