/*
 * Copyright (c) 2020. Ant Group. All rights reserved.
 *
 * SPDX-License-Identifier: Apache-2.0
 */

// Package format defines the BigCache on-disk layout: the file header,
// the page index, and the file table, plus the offset arithmetic that
// the packer and the loader both need to agree on where each region
// starts. Every struct marshals itself field-by-field through
// encoding/binary rather than being blitted as a raw memory struct, so
// the wire format never depends on host struct padding or endianness.
package format

import (
	"encoding/binary"

	"github.com/pkg/errors"

	"github.com/bigcache-project/bigcache/internal/constant"
	"github.com/bigcache-project/bigcache/pkg/errdefs"
)

// HeaderSize is the fixed, packed size in bytes of a Header on disk.
const HeaderSize = 4 + 4 + 4 + 4 + 8 + 8 + 8 + 8 + 4 + 4 + 32

// HeaderChecksumEnd is the byte offset immediately after the checksum
// field. The checksum covers every byte from here through end-of-file:
// flags, reserved, the page index, the file table, and the page data —
// deliberately excluding magic/version/counts/offsets/checksum itself,
// per the specification's text (see DESIGN.md's Open Question
// resolution; the original C prototype hashed from offset 8 instead).
const HeaderChecksumEnd = 4 + 4 + 4 + 4 + 8 + 8 + 8 + 8 + 4

// PageRecordSize is the fixed, packed size in bytes of a PageRecord.
const PageRecordSize = 4 + 8 + 4 + 2 + 2

// FileRecordSize is the fixed, packed size in bytes of a FileRecord.
const FileRecordSize = 4 + 4 + 4 + 8 + constant.MaxPathLen

// Page flags, advisory only: nothing in the runtime path reads them.
const (
	PageFlagExecutable uint16 = 1 << 0
	PageFlagReadonly   uint16 = 1 << 1
	PageFlagCritical   uint16 = 1 << 2
	PageFlagCompressed uint16 = 1 << 3
)

// Header is the fixed-size prologue of a bundle file.
type Header struct {
	Magic          uint32
	Version        uint32
	NumPages       uint32
	NumFiles       uint32
	DataOffset     uint64
	IndexOffset    uint64
	FileTableOffset uint64
	TotalSize      uint64
	Checksum       uint32
	Flags          uint32
	Reserved       [32]byte
}

// Marshal writes the header in its fixed 88-byte little-endian layout.
func (h *Header) Marshal() []byte {
	buf := make([]byte, HeaderSize)
	binary.LittleEndian.PutUint32(buf[0:4], h.Magic)
	binary.LittleEndian.PutUint32(buf[4:8], h.Version)
	binary.LittleEndian.PutUint32(buf[8:12], h.NumPages)
	binary.LittleEndian.PutUint32(buf[12:16], h.NumFiles)
	binary.LittleEndian.PutUint64(buf[16:24], h.DataOffset)
	binary.LittleEndian.PutUint64(buf[24:32], h.IndexOffset)
	binary.LittleEndian.PutUint64(buf[32:40], h.FileTableOffset)
	binary.LittleEndian.PutUint64(buf[40:48], h.TotalSize)
	binary.LittleEndian.PutUint32(buf[48:52], h.Checksum)
	binary.LittleEndian.PutUint32(buf[52:56], h.Flags)
	copy(buf[56:88], h.Reserved[:])
	return buf
}

// UnmarshalHeader parses a Header from its fixed byte layout.
func UnmarshalHeader(buf []byte) (*Header, error) {
	if len(buf) < HeaderSize {
		return nil, errors.Wrap(errdefs.ErrInvalidBundle, "header: short buffer")
	}
	h := &Header{
		Magic:           binary.LittleEndian.Uint32(buf[0:4]),
		Version:         binary.LittleEndian.Uint32(buf[4:8]),
		NumPages:        binary.LittleEndian.Uint32(buf[8:12]),
		NumFiles:        binary.LittleEndian.Uint32(buf[12:16]),
		DataOffset:      binary.LittleEndian.Uint64(buf[16:24]),
		IndexOffset:     binary.LittleEndian.Uint64(buf[24:32]),
		FileTableOffset: binary.LittleEndian.Uint64(buf[32:40]),
		TotalSize:       binary.LittleEndian.Uint64(buf[40:48]),
		Checksum:        binary.LittleEndian.Uint32(buf[48:52]),
		Flags:           binary.LittleEndian.Uint32(buf[52:56]),
	}
	copy(h.Reserved[:], buf[56:88])
	if h.Magic != constant.Magic {
		return nil, errors.Wrapf(errdefs.ErrInvalidBundle, "header: bad magic 0x%x", h.Magic)
	}
	if h.Version != constant.Version {
		return nil, errors.Wrapf(errdefs.ErrInvalidBundle, "header: unsupported version %d", h.Version)
	}
	return h, nil
}

// PageRecord describes one page's provenance within the bundle.
type PageRecord struct {
	FileID       uint32
	SourceOffset uint64
	AccessOrder  uint32
	Flags        uint16
	Reserved     uint16
}

// Marshal writes the record in its fixed 20-byte little-endian layout.
func (p *PageRecord) Marshal() []byte {
	buf := make([]byte, PageRecordSize)
	binary.LittleEndian.PutUint32(buf[0:4], p.FileID)
	binary.LittleEndian.PutUint64(buf[4:12], p.SourceOffset)
	binary.LittleEndian.PutUint32(buf[12:16], p.AccessOrder)
	binary.LittleEndian.PutUint16(buf[16:18], p.Flags)
	binary.LittleEndian.PutUint16(buf[18:20], p.Reserved)
	return buf
}

// UnmarshalPageRecord parses a PageRecord from its fixed byte layout.
func UnmarshalPageRecord(buf []byte) (*PageRecord, error) {
	if len(buf) < PageRecordSize {
		return nil, errors.Wrap(errdefs.ErrInvalidBundle, "page record: short buffer")
	}
	return &PageRecord{
		FileID:       binary.LittleEndian.Uint32(buf[0:4]),
		SourceOffset: binary.LittleEndian.Uint64(buf[4:12]),
		AccessOrder:  binary.LittleEndian.Uint32(buf[12:16]),
		Flags:        binary.LittleEndian.Uint16(buf[16:18]),
		Reserved:     binary.LittleEndian.Uint16(buf[18:20]),
	}, nil
}

// FileRecord describes one source file referenced by the bundle.
type FileRecord struct {
	FileID       uint32
	PathLen      uint32
	TotalPages   uint32
	OriginalSize uint64
	Path         string // logical path, at most constant.MaxPathLen bytes
}

// Marshal writes the record in its fixed layout: four scalar fields
// followed by a constant.MaxPathLen byte path field, NUL-padded (a path
// of exactly constant.MaxPathLen bytes fills the field with no NUL).
func (f *FileRecord) Marshal() ([]byte, error) {
	if len(f.Path) > constant.MaxPathLen {
		return nil, errors.Wrapf(errdefs.ErrInvalidInput, "file record: path %q exceeds %d bytes", f.Path, constant.MaxPathLen)
	}
	buf := make([]byte, FileRecordSize)
	binary.LittleEndian.PutUint32(buf[0:4], f.FileID)
	binary.LittleEndian.PutUint32(buf[4:8], f.PathLen)
	binary.LittleEndian.PutUint32(buf[8:12], f.TotalPages)
	binary.LittleEndian.PutUint64(buf[12:20], f.OriginalSize)
	copy(buf[20:20+constant.MaxPathLen], f.Path)
	return buf, nil
}

// UnmarshalFileRecord parses a FileRecord from its fixed byte layout.
func UnmarshalFileRecord(buf []byte) (*FileRecord, error) {
	if len(buf) < FileRecordSize {
		return nil, errors.Wrap(errdefs.ErrInvalidBundle, "file record: short buffer")
	}
	f := &FileRecord{
		FileID:       binary.LittleEndian.Uint32(buf[0:4]),
		PathLen:      binary.LittleEndian.Uint32(buf[4:8]),
		TotalPages:   binary.LittleEndian.Uint32(buf[8:12]),
		OriginalSize: binary.LittleEndian.Uint64(buf[12:20]),
	}
	pathBuf := buf[20 : 20+constant.MaxPathLen]
	nul := indexByte(pathBuf, 0)
	if nul < 0 {
		nul = len(pathBuf)
	}
	f.Path = string(pathBuf[:nul])
	return f, nil
}

func indexByte(b []byte, c byte) int {
	for i, v := range b {
		if v == c {
			return i
		}
	}
	return -1
}

// Layout is the single source of truth for where each region of a
// bundle begins, shared by the packer (which computes it forward from
// counts) and the loader (which reads it back from the header).
type Layout struct {
	NumPages    uint32
	NumFiles    uint32
	IndexOffset uint64
	FileTableOffset uint64
	DataOffset  uint64
	TotalSize   uint64
}

// PageAlign rounds n up to the next multiple of constant.PageSize.
func PageAlign(n uint64) uint64 {
	return (n + constant.PageMask) &^ uint64(constant.PageMask)
}

// PageAlignDown rounds n down to the previous multiple of constant.PageSize.
func PageAlignDown(n uint64) uint64 {
	return n &^ uint64(constant.PageMask)
}

// NewLayout computes region offsets for a bundle with the given page
// and file counts: header, then the page index, then the file table,
// then page-aligned page data.
func NewLayout(numPages, numFiles uint32) Layout {
	indexOffset := uint64(HeaderSize)
	fileTableOffset := indexOffset + uint64(numPages)*PageRecordSize
	dataOffset := PageAlign(fileTableOffset + uint64(numFiles)*FileRecordSize)
	totalSize := dataOffset + uint64(numPages)*constant.PageSize
	return Layout{
		NumPages:        numPages,
		NumFiles:        numFiles,
		IndexOffset:     indexOffset,
		FileTableOffset: fileTableOffset,
		DataOffset:      dataOffset,
		TotalSize:       totalSize,
	}
}

// LayoutFromHeader reconstructs a Layout from a parsed Header, for
// callers (the loader) that read counts and offsets off disk instead
// of computing them.
func LayoutFromHeader(h *Header) Layout {
	return Layout{
		NumPages:        h.NumPages,
		NumFiles:        h.NumFiles,
		IndexOffset:     h.IndexOffset,
		FileTableOffset: h.FileTableOffset,
		DataOffset:      h.DataOffset,
		TotalSize:       h.TotalSize,
	}
}

// AssertLittleEndianWire is a build-time/test-time assertion (not a
// runtime branch) that encoding/binary.LittleEndian continues to write
// bytes in the order this format assumes, regardless of host
// endianness. The wire format is always little-endian; Go's
// encoding/binary.LittleEndian already guarantees this irrespective of
// the host, so unlike the teacher's runtime nativeEndian detection in
// pkg/layout, BigCache needs no runtime branch — only this guard, kept
// for documentation and exercised by the format package's tests.
func AssertLittleEndianWire() error {
	var buf [2]byte
	binary.LittleEndian.PutUint16(buf[:], 0xABCD)
	if buf[0] != 0xCD || buf[1] != 0xAB {
		return errors.New("format: encoding/binary.LittleEndian did not write little-endian bytes")
	}
	return nil
}
