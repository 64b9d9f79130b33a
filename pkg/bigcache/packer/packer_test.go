/*
 * Copyright (c) 2020. Ant Group. All rights reserved.
 *
 * SPDX-License-Identifier: Apache-2.0
 */

package packer

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bigcache-project/bigcache/internal/constant"
	"github.com/bigcache-project/bigcache/pkg/bigcache/format"
	"github.com/bigcache-project/bigcache/pkg/bigcache/hash"
)

func TestAddPageDedup(t *testing.T) {
	p := New()
	added, err := p.AddPage("/bin/true", 0, 1)
	require.NoError(t, err)
	assert.True(t, added)

	// Same page, re-offset within the same 4KiB page: should dedup.
	added, err = p.AddPage("/bin/true", 10, 2)
	require.NoError(t, err)
	assert.False(t, added)

	added, err = p.AddPage("/bin/true", constant.PageSize, 3)
	require.NoError(t, err)
	assert.True(t, added)

	assert.Len(t, p.entries, 2)
	assert.Len(t, p.files, 1)
}

func TestAddPageRejectsEmptyAndOversizePath(t *testing.T) {
	p := New()
	_, err := p.AddPage("", 0, 0)
	assert.Error(t, err)

	long := make([]byte, constant.MaxPathLen+1)
	for i := range long {
		long[i] = 'a'
	}
	_, err = p.AddPage(string(long), 0, 0)
	assert.Error(t, err)
}

func TestLoadFromCSV(t *testing.T) {
	dir := t.TempDir()
	csvPath := filepath.Join(dir, "trace.csv")
	content := "bigcache_offset,source_path,source_offset,size,first_access_order\n" +
		"0,/bin/true,0,4096,1\n" +
		"4096,/bin/true,4096,4096,2\n" +
		"bad,line,with,too,few\n" +
		"8192,/bin/false,0,4096,3\n"
	require.NoError(t, os.WriteFile(csvPath, []byte(content), 0644))

	p := New()
	loaded, err := p.LoadFromCSV(csvPath)
	require.NoError(t, err)
	assert.Equal(t, 3, loaded)
}

func TestBuild(t *testing.T) {
	dir := t.TempDir()

	srcPath := filepath.Join(dir, "source.bin")
	srcData := make([]byte, constant.PageSize*2)
	for i := range srcData {
		srcData[i] = byte(i)
	}
	require.NoError(t, os.WriteFile(srcPath, srcData, 0644))

	p := New()
	_, err := p.AddPage(srcPath, 0, 1)
	require.NoError(t, err)
	_, err = p.AddPage(srcPath, constant.PageSize, 2)
	require.NoError(t, err)
	_, err = p.AddPage("/nonexistent/ghost-file", 0, 3)
	require.NoError(t, err)

	outPath := filepath.Join(dir, "bundle.bin")
	report, err := p.Build(outPath)
	require.NoError(t, err)
	assert.Equal(t, 2, report.PagesWritten)
	assert.Equal(t, 1, report.SyntheticPages)

	raw, err := os.ReadFile(outPath)
	require.NoError(t, err)
	assert.Equal(t, report.TotalSize, uint64(len(raw)))

	h, err := format.UnmarshalHeader(raw[:format.HeaderSize])
	require.NoError(t, err)
	assert.Equal(t, uint32(3), h.NumPages)
	assert.Equal(t, uint32(2), h.NumFiles)

	crc := hash.CRC32IEEE(raw[format.HeaderChecksumEnd:])
	assert.Equal(t, crc, h.Checksum)

	firstPage := raw[h.DataOffset : h.DataOffset+constant.PageSize]
	assert.Equal(t, srcData[:constant.PageSize], firstPage)
}

func TestBuildRejectsEmptyPacker(t *testing.T) {
	p := New()
	_, err := p.Build(filepath.Join(t.TempDir(), "out.bin"))
	assert.Error(t, err)
}

