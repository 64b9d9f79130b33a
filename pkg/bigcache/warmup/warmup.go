/*
 * Copyright (c) 2020. Ant Group. All rights reserved.
 *
 * SPDX-License-Identifier: Apache-2.0
 */

// Package warmup pre-faults bundle and source-file pages into the
// kernel page cache ahead of real application access, following the
// madvise/mlock sequence the original prototype used and the
// concurrent dual-pass shape the teacher's blob manager established.
package warmup

import (
	"os"

	"github.com/containerd/log"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sys/unix"

	"github.com/bigcache-project/bigcache/internal/constant"
	"github.com/bigcache-project/bigcache/pkg/bigcache/loader"
	"github.com/bigcache-project/bigcache/pkg/errdefs"
)

// SourceAccess is one entry of a replayed access trace: a source file
// and the page offset within it that warm-up should pre-fault.
type SourceAccess struct {
	Path   string
	Offset uint64
}

// WarmBlob walks the whole bundle mapping sequentially, touching one
// byte per page to fault it into the page cache, then switches the
// kernel's readahead hint to random (matching steady-state fault
// access) and best-effort mlocks the mapping.
func WarmBlob(b *loader.Bundle) error {
	data := b.Data()
	if len(data) == 0 {
		return errors.Wrap(errdefs.ErrInvalidInput, "warmup: bundle has no mapping")
	}

	if err := unix.Madvise(data, unix.MADV_SEQUENTIAL); err != nil {
		log.L.Warnf("warmup: madvise SEQUENTIAL: %v", err)
	}

	var sink byte
	for i := 0; i < len(data); i += constant.PageSize {
		sink += data[i]
	}
	_ = sink

	if err := unix.Madvise(data, unix.MADV_RANDOM); err != nil {
		log.L.Warnf("warmup: madvise RANDOM: %v", err)
	}

	if err := unix.Mlock(data); err != nil {
		log.L.Debugf("warmup: mlock (optional): %v", err)
	}

	return nil
}

// WarmSources replays a recorded access trace against the real source
// files: Fadvise(WILLNEED) followed by a one-byte pread per entry, so
// the kernel's own page cache — not the bundle — is primed for any
// page the bundle itself doesn't cover.
func WarmSources(entries []SourceAccess) error {
	open := make(map[string]*os.File)
	defer func() {
		for _, f := range open {
			f.Close()
		}
	}()

	for _, e := range entries {
		f, ok := open[e.Path]
		if !ok {
			var err error
			f, err = os.Open(e.Path)
			if err != nil {
				log.L.Debugf("warmup: open %s: %v", e.Path, err)
				open[e.Path] = nil
				continue
			}
			open[e.Path] = f
		}
		if f == nil {
			continue
		}

		pageOffset := int64(e.Offset &^ uint64(constant.PageMask))
		if err := unix.Fadvise(int(f.Fd()), pageOffset, constant.PageSize, unix.FADV_WILLNEED); err != nil {
			log.L.Debugf("warmup: fadvise %s@%d: %v", e.Path, pageOffset, err)
		}
		var one [1]byte
		if _, err := f.ReadAt(one[:], pageOffset); err != nil {
			log.L.Debugf("warmup: pread %s@%d: %v", e.Path, pageOffset, err)
		}
	}
	return nil
}

// WarmSourcesMmap is the mmap+advise variant: each unique file is
// opened once, mmapped, and MADV_WILLNEED is issued over the whole
// mapping instead of one Fadvise per page.
func WarmSourcesMmap(entries []SourceAccess) error {
	seen := make(map[string]bool)
	for _, e := range entries {
		if seen[e.Path] {
			continue
		}
		seen[e.Path] = true

		f, err := os.Open(e.Path)
		if err != nil {
			log.L.Debugf("warmup: open %s: %v", e.Path, err)
			continue
		}

		st, err := f.Stat()
		if err != nil || st.Size() == 0 {
			f.Close()
			continue
		}

		data, err := unix.Mmap(int(f.Fd()), 0, int(st.Size()), unix.PROT_READ, unix.MAP_PRIVATE)
		if err != nil {
			log.L.Debugf("warmup: mmap %s: %v", e.Path, err)
			f.Close()
			continue
		}

		if err := unix.Madvise(data, unix.MADV_WILLNEED); err != nil {
			log.L.Debugf("warmup: madvise WILLNEED %s: %v", e.Path, err)
		}

		unix.Munmap(data)
		f.Close()
	}
	return nil
}

// WarmAll runs the blob pass and the source-replay pass concurrently
// via an errgroup, following the teacher's pkg/blob.Run goroutine shape
// generalized to a bounded two-task group. Either pass's failure is
// logged rather than propagated: a botched warm-up degrades launch
// latency, it never disables the cache.
func WarmAll(b *loader.Bundle, entries []SourceAccess) error {
	var g errgroup.Group

	g.Go(func() error {
		if err := WarmBlob(b); err != nil {
			log.L.Warnf("warmup: blob pass: %v", err)
		}
		return nil
	})

	g.Go(func() error {
		if err := WarmSources(entries); err != nil {
			log.L.Warnf("warmup: source pass: %v", err)
		}
		return nil
	})

	return g.Wait()
}
