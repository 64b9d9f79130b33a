/*
 * Copyright (c) 2020. Ant Group. All rights reserved.
 *
 * SPDX-License-Identifier: Apache-2.0
 */

// Package loader mmaps a BigCache bundle read-only and builds the
// in-memory lookup index that translates (source path, source offset)
// pairs into bundle offsets.
package loader

import (
	"os"
	"sync"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"

	"github.com/bigcache-project/bigcache/internal/constant"
	"github.com/bigcache-project/bigcache/pkg/bigcache/format"
	"github.com/bigcache-project/bigcache/pkg/bigcache/hash"
	"github.com/bigcache-project/bigcache/pkg/errdefs"
)

type pageLocation struct {
	path        string
	offset      uint64
	bundleOff   uint64
	accessOrder uint32
}

type bucket struct {
	entries []pageLocation
}

// Stats mirrors the C prototype's hit/miss/served counters. Every
// Lookup/LookupOffset call updates them under mu; readers take a
// snapshot under the same mutex.
type Stats struct {
	Hits           uint64
	Misses         uint64
	TotalBytesRead uint64
}

// Bundle is an mmapped, validated BigCache file plus its lookup index.
type Bundle struct {
	path   string
	file   *os.File
	data   []byte
	header *format.Header
	layout format.Layout
	table  []bucket

	mu    sync.Mutex
	stats Stats
}

// Load opens path read-only, mmaps it (PROT_READ, MAP_PRIVATE),
// validates the header, and builds the chained hash lookup index with
// at least max(1024, 1.5×num_pages) buckets.
func Load(path string) (*Bundle, error) {
	if path == "" {
		return nil, errors.Wrap(errdefs.ErrInvalidInput, "loader: empty path")
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(errdefs.ErrIO, "loader: open %s: %v", path, err)
	}

	st, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, errors.Wrapf(errdefs.ErrIO, "loader: stat %s: %v", path, err)
	}
	size := st.Size()
	if size < format.HeaderSize {
		f.Close()
		return nil, errors.Wrapf(errdefs.ErrInvalidBundle, "loader: %s too small to hold a header", path)
	}

	data, err := unix.Mmap(int(f.Fd()), 0, int(size), unix.PROT_READ, unix.MAP_PRIVATE)
	if err != nil {
		f.Close()
		return nil, errors.Wrapf(errdefs.ErrIO, "loader: mmap %s: %v", path, err)
	}

	header, err := format.UnmarshalHeader(data[:format.HeaderSize])
	if err != nil {
		unix.Munmap(data)
		f.Close()
		return nil, errors.Wrapf(err, "loader: %s", path)
	}
	if header.TotalSize != uint64(size) {
		unix.Munmap(data)
		f.Close()
		return nil, errors.Wrapf(errdefs.ErrInvalidBundle, "loader: %s size mismatch (header %d, file %d)", path, header.TotalSize, size)
	}

	b := &Bundle{
		path:   path,
		file:   f,
		data:   data,
		header: header,
		layout: format.LayoutFromHeader(header),
	}

	if err := b.buildIndex(); err != nil {
		unix.Munmap(data)
		f.Close()
		return nil, err
	}

	return b, nil
}

func (b *Bundle) buildIndex() error {
	numBuckets := (uint64(b.header.NumPages)*3 + 1) / 2
	if numBuckets < 1024 {
		numBuckets = 1024
	}
	table := make([]bucket, numBuckets)

	for i := uint32(0); i < b.header.NumPages; i++ {
		recOff := b.layout.IndexOffset + uint64(i)*format.PageRecordSize
		if recOff+format.PageRecordSize > uint64(len(b.data)) {
			return errors.Wrap(errdefs.ErrInvalidBundle, "loader: page index runs past end of file")
		}
		pr, err := format.UnmarshalPageRecord(b.data[recOff : recOff+format.PageRecordSize])
		if err != nil {
			return err
		}

		fileOff := b.layout.FileTableOffset + uint64(pr.FileID)*format.FileRecordSize
		if fileOff+format.FileRecordSize > uint64(len(b.data)) {
			return errors.Wrap(errdefs.ErrInvalidBundle, "loader: file table runs past end of file")
		}
		fr, err := format.UnmarshalFileRecord(b.data[fileOff : fileOff+format.FileRecordSize])
		if err != nil {
			return err
		}

		bundleOff := b.header.DataOffset + uint64(i)*constant.PageSize
		key := hash.FNV1a64(fr.Path, pr.SourceOffset) % numBuckets
		table[key].entries = append(table[key].entries, pageLocation{
			path:        fr.Path,
			offset:      pr.SourceOffset,
			bundleOff:   bundleOff,
			accessOrder: pr.AccessOrder,
		})
	}

	b.table = table
	return nil
}

func (b *Bundle) find(path string, offset uint64) (*pageLocation, bool) {
	pageOffset := format.PageAlignDown(offset)
	numBuckets := uint64(len(b.table))
	key := hash.FNV1a64(path, pageOffset) % numBuckets
	for i := range b.table[key].entries {
		e := &b.table[key].entries[i]
		if e.offset == pageOffset && e.path == path {
			return e, true
		}
	}
	return nil, false
}

// Lookup returns the page data for (path, offset), page-aligning
// offset first. The returned slice is borrowed from the bundle's
// mapping and is only valid until Unload.
func (b *Bundle) Lookup(path string, offset uint64) ([]byte, bool) {
	loc, ok := b.find(path, offset)
	b.mu.Lock()
	if !ok {
		b.stats.Misses++
		b.mu.Unlock()
		return nil, false
	}
	b.stats.Hits++
	b.stats.TotalBytesRead += constant.PageSize
	b.mu.Unlock()
	return b.data[loc.bundleOff : loc.bundleOff+constant.PageSize], true
}

// LookupOffset returns the bundle-relative byte offset of the page
// backing (path, offset), without slicing the mapping.
func (b *Bundle) LookupOffset(path string, offset uint64) (uint64, bool) {
	loc, ok := b.find(path, offset)
	b.mu.Lock()
	if !ok {
		b.stats.Misses++
		b.mu.Unlock()
		return 0, false
	}
	b.stats.Hits++
	b.mu.Unlock()
	return loc.bundleOff, true
}

// Unload releases the mapping and closes the underlying file. The
// Bundle must not be used afterward.
func (b *Bundle) Unload() error {
	if b.data != nil {
		if err := unix.Munmap(b.data); err != nil {
			return errors.Wrapf(errdefs.ErrIO, "loader: munmap %s: %v", b.path, err)
		}
		b.data = nil
	}
	if b.file != nil {
		if err := b.file.Close(); err != nil {
			return errors.Wrapf(errdefs.ErrIO, "loader: close %s: %v", b.path, err)
		}
		b.file = nil
	}
	return nil
}

// Verify re-checks the magic, the recorded total size against the
// mapping's actual size, and recomputes the CRC32 over every byte
// after the checksum field.
func (b *Bundle) Verify() error {
	if b.header.Magic != constant.Magic {
		return errors.Wrapf(errdefs.ErrInvalidBundle, "loader: %s: bad magic", b.path)
	}
	if b.header.TotalSize != uint64(len(b.data)) {
		return errors.Wrapf(errdefs.ErrInvalidBundle, "loader: %s: size mismatch (header %d, mapped %d)", b.path, b.header.TotalSize, len(b.data))
	}
	got := hash.CRC32IEEE(b.data[format.HeaderChecksumEnd:])
	if got != b.header.Checksum {
		return errors.Wrapf(errdefs.ErrInvalidBundle, "loader: %s: checksum mismatch (header %#x, computed %#x)", b.path, b.header.Checksum, got)
	}
	return nil
}

// Stats returns a point-in-time snapshot of hit/miss counters.
func (b *Bundle) Stats() Stats {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.stats
}

// Header returns the bundle's parsed header, for callers (warm-up,
// bigcachectl info) that need counts or offsets directly.
func (b *Bundle) Header() *format.Header {
	return b.header
}

// Data returns the bundle's full read-only mapping.
func (b *Bundle) Data() []byte {
	return b.data
}
