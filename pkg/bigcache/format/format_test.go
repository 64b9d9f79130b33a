/*
 * Copyright (c) 2020. Ant Group. All rights reserved.
 *
 * SPDX-License-Identifier: Apache-2.0
 */

package format

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bigcache-project/bigcache/internal/constant"
)

func TestHeaderRoundTrip(t *testing.T) {
	h := &Header{
		Magic:           constant.Magic,
		Version:         constant.Version,
		NumPages:        3,
		NumFiles:        1,
		DataOffset:      4096,
		IndexOffset:     88,
		FileTableOffset: 148,
		TotalSize:       4096 * 4,
		Checksum:        0xDEADBEEF,
		Flags:           0,
	}
	buf := h.Marshal()
	assert.Len(t, buf, HeaderSize)

	got, err := UnmarshalHeader(buf)
	require.NoError(t, err)
	assert.Equal(t, h.NumPages, got.NumPages)
	assert.Equal(t, h.DataOffset, got.DataOffset)
	assert.Equal(t, h.Checksum, got.Checksum)
}

func TestUnmarshalHeaderRejectsBadMagic(t *testing.T) {
	h := &Header{Magic: 0xBADBAD, Version: constant.Version}
	_, err := UnmarshalHeader(h.Marshal())
	assert.Error(t, err)
}

func TestUnmarshalHeaderRejectsBadVersion(t *testing.T) {
	h := &Header{Magic: constant.Magic, Version: 99}
	_, err := UnmarshalHeader(h.Marshal())
	assert.Error(t, err)
}

func TestPageRecordRoundTrip(t *testing.T) {
	p := &PageRecord{FileID: 7, SourceOffset: 4096 * 12, AccessOrder: 3, Flags: PageFlagExecutable}
	got, err := UnmarshalPageRecord(p.Marshal())
	require.NoError(t, err)
	assert.Equal(t, *p, *got)
}

func TestFileRecordRoundTrip(t *testing.T) {
	f := &FileRecord{FileID: 1, PathLen: 9, TotalPages: 4, OriginalSize: 16000, Path: "/bin/true"}
	buf, err := f.Marshal()
	require.NoError(t, err)
	assert.Len(t, buf, FileRecordSize)

	got, err := UnmarshalFileRecord(buf)
	require.NoError(t, err)
	assert.Equal(t, f.Path, got.Path)
	assert.Equal(t, f.TotalPages, got.TotalPages)
}

func TestFileRecordRejectsOversizePath(t *testing.T) {
	long := make([]byte, constant.MaxPathLen+1)
	for i := range long {
		long[i] = 'a'
	}
	f := &FileRecord{Path: string(long)}
	_, err := f.Marshal()
	assert.Error(t, err)
}

func TestPageAlign(t *testing.T) {
	assert.Equal(t, uint64(0), PageAlign(0))
	assert.Equal(t, uint64(constant.PageSize), PageAlign(1))
	assert.Equal(t, uint64(constant.PageSize), PageAlign(constant.PageSize))
	assert.Equal(t, uint64(2*constant.PageSize), PageAlign(constant.PageSize+1))
}

func TestNewLayout(t *testing.T) {
	l := NewLayout(2, 1)
	assert.Equal(t, uint64(HeaderSize), l.IndexOffset)
	assert.Equal(t, l.IndexOffset+2*PageRecordSize, l.FileTableOffset)
	assert.True(t, l.DataOffset%constant.PageSize == 0)
	assert.Equal(t, l.DataOffset+2*constant.PageSize, l.TotalSize)
}

func TestAssertLittleEndianWire(t *testing.T) {
	assert.NoError(t, AssertLittleEndianWire())
}
