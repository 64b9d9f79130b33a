/*
 * Copyright (c) 2020. Ant Group. All rights reserved.
 *
 * SPDX-License-Identifier: Apache-2.0
 */

// Package packer builds a BigCache bundle from a page trace: either
// pages added programmatically or replayed from a recorded CSV trace.
package packer

import (
	"encoding/csv"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/containerd/log"
	"github.com/pkg/errors"
	"golang.org/x/sys/unix"

	"github.com/bigcache-project/bigcache/internal/constant"
	"github.com/bigcache-project/bigcache/pkg/bigcache/format"
	"github.com/bigcache-project/bigcache/pkg/bigcache/hash"
	"github.com/bigcache-project/bigcache/pkg/errdefs"
)

type pageEntry struct {
	path        string
	offset      uint64 // already page-aligned
	accessOrder uint32
}

// Packer accumulates a deduplicated page trace ahead of Build.
type Packer struct {
	entries   []pageEntry
	seen      map[uint64]struct{}
	files     []string
	fileIndex map[string]int
}

// New returns an empty Packer ready for AddPage/LoadFromCSV calls.
func New() *Packer {
	return &Packer{
		seen:      make(map[uint64]struct{}),
		fileIndex: make(map[string]int),
	}
}

// AddPage records one page touch. It page-aligns the offset and is
// idempotent: re-adding the same (path, page) pair is a no-op and
// reports added=false rather than an error. Returns ErrInvalidInput if
// the path is empty, too long, or the file table is already full.
func (p *Packer) AddPage(path string, offset uint64, accessOrder uint32) (bool, error) {
	if path == "" {
		return false, errors.Wrap(errdefs.ErrInvalidInput, "packer: empty path")
	}
	if len(path) > constant.MaxPathLen {
		return false, errors.Wrapf(errdefs.ErrInvalidInput, "packer: path %q exceeds %d bytes", path, constant.MaxPathLen)
	}

	pageOffset := format.PageAlignDown(offset)
	key := hash.FNV1a64(path, pageOffset)
	if _, ok := p.seen[key]; ok {
		return false, nil
	}

	if _, known := p.fileIndex[path]; !known {
		if len(p.files) >= constant.MaxFiles {
			return false, errors.Wrapf(errdefs.ErrInvalidInput, "packer: file table full (%d files)", constant.MaxFiles)
		}
		p.fileIndex[path] = len(p.files)
		p.files = append(p.files, path)
	}

	p.entries = append(p.entries, pageEntry{path: path, offset: pageOffset, accessOrder: accessOrder})
	p.seen[key] = struct{}{}
	return true, nil
}

// LoadFromCSV replays a header-prefixed trace CSV with columns
// bigcache_offset, source_path, source_offset, size, first_access_order.
// The bigcache_offset and size columns are accepted for format
// compatibility but not required by AddPage; malformed or short rows
// are skipped with a logged diagnostic rather than aborting the load.
func (p *Packer) LoadFromCSV(path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, errors.Wrapf(errdefs.ErrIO, "packer: open csv %s: %v", path, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1 // ragged rows are caught as "malformed", not a parse error

	if _, err := r.Read(); err != nil { // header row
		if err == io.EOF {
			return 0, errors.Wrap(errdefs.ErrInvalidInput, "packer: csv has no header row")
		}
		return 0, errors.Wrapf(errdefs.ErrIO, "packer: read csv header: %v", err)
	}

	loaded := 0
	lineNum := 1
	for {
		record, err := r.Read()
		if err == io.EOF {
			break
		}
		lineNum++
		if err != nil {
			log.L.Warnf("packer: skipping malformed line %d in %s: %v", lineNum, path, err)
			continue
		}
		if len(record) < 5 {
			log.L.Warnf("packer: skipping short line %d in %s (%d fields)", lineNum, path, len(record))
			continue
		}

		sourcePath := strings.TrimSpace(record[1])
		sourceOffset, err := strconv.ParseUint(strings.TrimSpace(record[2]), 10, 64)
		if err != nil {
			log.L.Warnf("packer: skipping line %d in %s: bad source_offset %q", lineNum, path, record[2])
			continue
		}
		accessOrder64, err := strconv.ParseUint(strings.TrimSpace(record[4]), 10, 32)
		if err != nil {
			log.L.Warnf("packer: skipping line %d in %s: bad first_access_order %q", lineNum, path, record[4])
			continue
		}

		added, err := p.AddPage(sourcePath, sourceOffset, uint32(accessOrder64))
		if err != nil {
			log.L.Warnf("packer: skipping line %d in %s: %v", lineNum, path, err)
			continue
		}
		if added {
			loaded++
		}
	}

	return loaded, nil
}

// BuildReport summarizes a completed Build call.
type BuildReport struct {
	PagesWritten   int
	SyntheticPages int
	TotalSize      uint64
}

func isExecutableSuffix(path string) bool {
	for _, suffix := range constant.ExecutableSuffixes {
		if strings.HasSuffix(path, suffix) {
			return true
		}
	}
	return false
}

// Build lays out and writes the bundle to outputPath: header, page
// index, file table, then page-aligned page data, reading each source
// page from disk. A short source read zero-pads the remainder of the
// page; an unreadable source file contributes a synthetic all-zero
// page instead of failing the whole build. The header checksum is
// back-patched once every other byte has been written.
func (p *Packer) Build(outputPath string) (*BuildReport, error) {
	if len(p.entries) == 0 {
		return nil, errors.Wrap(errdefs.ErrInvalidInput, "packer: no pages to build")
	}

	layout := format.NewLayout(uint32(len(p.entries)), uint32(len(p.files)))

	out, err := os.OpenFile(outputPath, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return nil, errors.Wrapf(errdefs.ErrIO, "packer: create %s: %v", outputPath, err)
	}
	defer out.Close()

	if err := unix.Ftruncate(int(out.Fd()), int64(layout.TotalSize)); err != nil {
		return nil, errors.Wrapf(errdefs.ErrIO, "packer: truncate %s: %v", outputPath, err)
	}

	mem, err := unix.Mmap(int(out.Fd()), 0, int(layout.TotalSize), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return nil, errors.Wrapf(errdefs.ErrIO, "packer: mmap %s: %v", outputPath, err)
	}
	defer unix.Munmap(mem)

	totalPagesPerFile := make([]uint32, len(p.files))
	originalSize := make([]uint64, len(p.files))
	for _, e := range p.entries {
		totalPagesPerFile[p.fileIndex[e.path]]++
	}

	// File table.
	for i, path := range p.files {
		if st, err := os.Stat(path); err == nil {
			originalSize[i] = uint64(st.Size())
		}
		fr := &format.FileRecord{
			FileID:       uint32(i),
			PathLen:      uint32(len(path)),
			TotalPages:   totalPagesPerFile[i],
			OriginalSize: originalSize[i],
			Path:         path,
		}
		buf, err := fr.Marshal()
		if err != nil {
			return nil, errors.Wrapf(errdefs.ErrInvalidInput, "packer: file record %s: %v", path, err)
		}
		off := layout.FileTableOffset + uint64(i)*format.FileRecordSize
		copy(mem[off:off+format.FileRecordSize], buf)
	}

	// Page index and data.
	synthetic := 0
	openFiles := make(map[string]*os.File)
	defer func() {
		for _, f := range openFiles {
			f.Close()
		}
	}()

	for i, e := range p.entries {
		var flags uint16
		if isExecutableSuffix(e.path) {
			flags |= format.PageFlagExecutable
		}

		pr := &format.PageRecord{
			FileID:       uint32(p.fileIndex[e.path]),
			SourceOffset: e.offset,
			AccessOrder:  e.accessOrder,
			Flags:        flags,
		}
		idxOff := layout.IndexOffset + uint64(i)*format.PageRecordSize
		copy(mem[idxOff:idxOff+format.PageRecordSize], pr.Marshal())

		dataOff := layout.DataOffset + uint64(i)*constant.PageSize
		page := mem[dataOff : dataOff+constant.PageSize]

		src, ok := openFiles[e.path]
		if !ok {
			src, err = os.Open(e.path)
			if err != nil {
				src = nil
			}
			openFiles[e.path] = src
		}
		if src == nil {
			synthetic++
			continue // backing file is already zero-filled by ftruncate
		}
		// A short read leaves the bytes past the end of the source zero
		// from the fresh mapping; the page still counts as written.
		if _, err := src.ReadAt(page, int64(e.offset)); err != nil && err != io.EOF {
			synthetic++
			continue
		}
	}

	// The checksum covers every byte after the checksum field itself —
	// flags, reserved, index, file table, and data — all of which are
	// already in place; flags/reserved are still zero from the fresh
	// mapping, matching what Header.Marshal below will write there.
	crc := hash.CRC32IEEE(mem[format.HeaderChecksumEnd:])

	// Header, written last and in one shot now that the checksum is known.
	h := &format.Header{
		Magic:           constant.Magic,
		Version:         constant.Version,
		NumPages:        layout.NumPages,
		NumFiles:        layout.NumFiles,
		DataOffset:      layout.DataOffset,
		IndexOffset:     layout.IndexOffset,
		FileTableOffset: layout.FileTableOffset,
		TotalSize:       layout.TotalSize,
		Checksum:        crc,
	}
	copy(mem[0:format.HeaderSize], h.Marshal())

	if err := unix.Msync(mem, unix.MS_SYNC); err != nil {
		log.L.Warnf("packer: msync %s: %v", outputPath, err)
	}

	return &BuildReport{
		PagesWritten:   len(p.entries) - synthetic,
		SyntheticPages: synthetic,
		TotalSize:      layout.TotalSize,
	}, nil
}
