// Copyright (C) 2021-2025 Intel Corporation
// SPDX-License-Identifier: BSD-3-Clause

package fdinfo

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func parseText(t *testing.T, text string, info *ClientInfo, engineMap, regionMap []string) uint {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "42"), []byte(text), 0o644))
	root, err := os.OpenRoot(dir)
	require.NoError(t, err)
	defer root.Close()
	return ParseDir(root, "42", info, engineMap, regionMap)
}

func TestParseHeaderIdempotent(t *testing.T) {
	text := "drm-driver: i915\ndrm-client-id: 7\ndrm-engine-render:\t1000 ns\n"
	for range 3 {
		var info ClientInfo
		score := parseText(t, text, &info, nil, nil)
		assert.NotZero(t, score)
		assert.Equal(t, "i915", info.Driver)
		assert.Equal(t, uint64(7), info.ID)
	}
}

func TestCapacityPrefixPrecedence(t *testing.T) {
	// drm-engine-capacity- lines must never be classified as plain
	// drm-engine- entries.
	kind, payload, ok := classifyLine("drm-engine-capacity-render:5")
	require.True(t, ok)
	assert.Equal(t, kindEngineCapacity, kind)
	assert.Equal(t, "render:5", payload)

	var info ClientInfo
	text := "drm-driver: i915\ndrm-client-id: 7\ndrm-engine-capacity-render:5\ndrm-engine-render:100\n"
	score := parseText(t, text, &info, nil, nil)
	assert.NotZero(t, score)
	require.Equal(t, 1, info.NumEngines)
	assert.Equal(t, uint64(100), info.Engines[0].BusyNS)
	assert.Equal(t, uint64(5), info.Engines[0].Capacity)
}

func TestCapacityLineAloneDoesNotCreateEngine(t *testing.T) {
	var info ClientInfo
	text := "drm-driver: i915\ndrm-client-id: 7\ndrm-engine-capacity-render:5\ndrm-total-system:1\n"
	score := parseText(t, text, &info, nil, nil)
	assert.NotZero(t, score)
	assert.Equal(t, 0, info.NumEngines)
	assert.Equal(t, uint64(5), info.Engines[0].Capacity)
}

func TestRegionUnitScaling(t *testing.T) {
	cases := []struct {
		line     string
		expected uint64
	}{
		{"drm-total-system:100", 100},
		{"drm-total-system:100 KiB", 100 * 1024},
		{"drm-total-system:100 MiB", 100 * 1024 * 1024},
		{"drm-total-system:2 GiB", 2 * 1024 * 1024 * 1024},
	}
	for _, c := range cases {
		var info ClientInfo
		text := "drm-driver: i915\ndrm-client-id: 7\n" + c.line + "\n"
		score := parseText(t, text, &info, nil, nil)
		assert.NotZero(t, score, c.line)
		require.Equal(t, 1, info.NumRegions, c.line)
		assert.Equal(t, c.expected, info.Regions[0].Total, c.line)
	}
}

func TestRepeatedEngineCountsOnce(t *testing.T) {
	var info ClientInfo
	text := "drm-driver: i915\ndrm-client-id: 7\ndrm-engine-render:10\ndrm-engine-render:20\n"
	score := parseText(t, text, &info, nil, nil)
	assert.NotZero(t, score)
	assert.Equal(t, 1, info.NumEngines)
	// last write wins, values are not summed
	assert.Equal(t, uint64(20), info.Engines[0].BusyNS)
}

func TestRejectsTooFewHeaderFields(t *testing.T) {
	var info ClientInfo
	assert.Zero(t, parseText(t, "drm-pdev: 0000:00:02.0\n", &info, nil, nil))

	// one header field plus an engine is still not enough
	info = ClientInfo{}
	assert.Zero(t, parseText(t, "drm-driver: i915\ndrm-engine-render:10\n", &info, nil, nil))

	// both header fields but no engines or regions
	info = ClientInfo{}
	assert.Zero(t, parseText(t, "drm-driver: i915\ndrm-client-id: 7\n", &info, nil, nil))
}

func TestStaticVersusDynamicEngineMap(t *testing.T) {
	engineMap := []string{"rcs", "bcs"}
	text := "drm-driver: i915\ndrm-client-id: 7\ndrm-engine-rcs:10\ndrm-engine-vcs:30\n"

	// static map: vcs is not in the map, the line is dropped
	var info ClientInfo
	score := parseText(t, text, &info, engineMap, nil)
	assert.NotZero(t, score)
	assert.Equal(t, 1, info.NumEngines)
	assert.Equal(t, uint64(10), info.Engines[0].BusyNS)

	// dynamic mode: vcs is interned as a new slot
	info = ClientInfo{}
	score = parseText(t, text, &info, nil, nil)
	assert.NotZero(t, score)
	require.Equal(t, 2, info.NumEngines)
	assert.Equal(t, "rcs", info.Engines[0].Name)
	assert.Equal(t, "vcs", info.Engines[1].Name)
	assert.Equal(t, uint64(30), info.Engines[1].BusyNS)
}

func TestStaticMapSlotIndicesAreFixed(t *testing.T) {
	engineMap := []string{"rcs", "bcs", "vcs"}
	text := "drm-driver: i915\ndrm-client-id: 7\ndrm-engine-vcs:30\n"
	var info ClientInfo
	score := parseText(t, text, &info, engineMap, nil)
	assert.NotZero(t, score)
	assert.Equal(t, 1, info.NumEngines)
	assert.Equal(t, 2, info.LastEngineIndex)
	assert.Equal(t, uint64(30), info.Engines[2].BusyNS)
	assert.Equal(t, uint64(1), info.Engines[2].Capacity)
}

func TestStaticRegionMapBackfillsName(t *testing.T) {
	regionMap := []string{"system", "vram"}
	text := "drm-driver: xe\ndrm-client-id: 7\ndrm-resident-vram:512\n"
	var info ClientInfo
	score := parseText(t, text, &info, nil, regionMap)
	assert.NotZero(t, score)
	assert.Equal(t, "vram", info.Regions[1].Name)
	assert.Equal(t, uint64(512), info.Regions[1].Resident)
}

func TestMalformedLinesAreSkipped(t *testing.T) {
	var info ClientInfo
	text := strings.Join([]string{
		"drm-driver: i915",
		"drm-client-id: 7",
		"drm-engine-:10",       // empty engine name
		"drm-engine-render 10", // missing colon after name
		"not-a-drm-line",
		"drm-frobnicate-xyz: 1", // unknown key
		"drm-engine-render:10",
	}, "\n")
	score := parseText(t, text, &info, nil, nil)
	assert.NotZero(t, score)
	assert.Equal(t, 1, info.NumEngines)
	assert.Equal(t, uint64(10), info.Engines[0].BusyNS)
}

func TestRegionFields(t *testing.T) {
	var info ClientInfo
	text := strings.Join([]string{
		"drm-driver: amdgpu",
		"drm-client-id: 3",
		"drm-total-vram:10 KiB",
		"drm-shared-vram:2 KiB",
		"drm-resident-vram:8 KiB",
		"drm-purgeable-vram:1 KiB",
		"drm-active-vram:4 KiB",
	}, "\n")
	score := parseText(t, text, &info, nil, nil)
	assert.NotZero(t, score)
	require.Equal(t, 1, info.NumRegions)
	r := info.Regions[0]
	assert.Equal(t, "vram", r.Name)
	assert.Equal(t, uint64(10*1024), r.Total)
	assert.Equal(t, uint64(2*1024), r.Shared)
	assert.Equal(t, uint64(8*1024), r.Resident)
	assert.Equal(t, uint64(1*1024), r.Purgeable)
	assert.Equal(t, uint64(4*1024), r.Active)
}

func TestEndToEnd(t *testing.T) {
	text := strings.Join([]string{
		"drm-driver: i915",
		"drm-pdev: 0000:00:02.0",
		"drm-client-id: 7",
		"drm-engine-render:1000",
		"drm-engine-capacity-render:2",
		"drm-total-system:4096",
		"drm-total-system:2 KiB",
	}, "\n")
	var info ClientInfo
	score := parseText(t, text, &info, nil, nil)
	assert.NotZero(t, score)
	assert.Equal(t, "i915", info.Driver)
	assert.Equal(t, "0000:00:02.0", info.PDev)
	assert.Equal(t, uint64(7), info.ID)
	require.Equal(t, 1, info.NumEngines)
	assert.Equal(t, "render", info.Engines[0].Name)
	assert.Equal(t, uint64(1000), info.Engines[0].BusyNS)
	assert.Equal(t, uint64(2), info.Engines[0].Capacity)
	require.Equal(t, 1, info.NumRegions)
	assert.Equal(t, "system", info.Regions[0].Name)
	assert.Equal(t, uint64(2048), info.Regions[0].Total)
}

func TestMissingOrEmptyFile(t *testing.T) {
	dir := t.TempDir()
	root, err := os.OpenRoot(dir)
	require.NoError(t, err)
	defer root.Close()

	var info ClientInfo
	assert.Zero(t, ParseDir(root, "no-such-file", &info, nil, nil))

	require.NoError(t, os.WriteFile(filepath.Join(dir, "empty"), nil, 0o644))
	assert.Zero(t, ParseDir(root, "empty", &info, nil, nil))
}

func TestReadTruncatesAtBufferSize(t *testing.T) {
	var lines []string
	lines = append(lines, "drm-driver: i915", "drm-client-id: 7")
	// enough filler to push a trailing region line past the read buffer
	for range 200 {
		lines = append(lines, "drm-filler: "+strings.Repeat("x", 20))
	}
	lines = append(lines, "drm-total-system:4096")
	text := strings.Join(lines, "\n")
	require.Greater(t, len(text), readBufferSize)

	var info ClientInfo
	// trailing fields beyond the buffer are silently dropped, leaving no
	// engines or regions, so the parse is rejected
	assert.Zero(t, parseText(t, text, &info, nil, nil))
}

func TestDynamicInterningOverflowPanics(t *testing.T) {
	var lines []string
	lines = append(lines, "drm-driver: i915", "drm-client-id: 7")
	for i := range MaxEngines {
		lines = append(lines, fmt.Sprintf("drm-engine-eng%02d:%d", i, i))
	}
	text := strings.Join(lines, "\n")
	require.Less(t, len(text), readBufferSize)

	var info ClientInfo
	assert.Panics(t, func() {
		parseText(t, text, &info, nil, nil)
	})
}

func TestParseFDRejectsNonDRMDescriptor(t *testing.T) {
	// any regular file descriptor has fdinfo, but not the DRM format
	f, err := os.Open(os.DevNull)
	require.NoError(t, err)
	defer f.Close()
	var info ClientInfo
	assert.Zero(t, ParseFD(f.Fd(), &info, nil, nil))
}

func TestCyclesUpdateEngine(t *testing.T) {
	var info ClientInfo
	text := "drm-driver: i915\ndrm-client-id: 7\ndrm-cycles-render:12345\n"
	score := parseText(t, text, &info, nil, nil)
	assert.NotZero(t, score)
	require.Equal(t, 1, info.NumEngines)
	assert.Equal(t, uint64(12345), info.Engines[0].Cycles)
	assert.Equal(t, uint64(1), info.Engines[0].Capacity)
}

func TestScoreCountsRecognizedFields(t *testing.T) {
	text := strings.Join([]string{
		"drm-driver: i915",
		"drm-client-id: 7",
		"drm-engine-render:1000",
		"drm-engine-capacity-render:2",
		"drm-total-system:4096",
	}, "\n")
	var info ClientInfo
	// 2 header fields + 1 engine + 1 capacity line + 1 region
	assert.Equal(t, uint(5), parseText(t, text, &info, nil, nil))
}
