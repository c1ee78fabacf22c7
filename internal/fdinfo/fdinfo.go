// Copyright (C) 2021-2025 Intel Corporation
// SPDX-License-Identifier: BSD-3-Clause

// Package fdinfo decodes the DRM fdinfo text format exposed by GPU kernel
// drivers under /proc/<pid>/fdinfo, as documented in the kernel's
// Documentation/gpu/drm-usage-stats.rst. One parse call reads a bounded
// snapshot of the file and reconstructs per-engine busyness and per-region
// memory usage into a caller-owned ClientInfo.
package fdinfo

const (
	// MaxEngines is the fixed engine slot capacity of a ClientInfo.
	MaxEngines = 32
	// MaxRegions is the fixed memory region slot capacity of a ClientInfo.
	MaxRegions = 8

	// readBufferSize bounds the single read of the fdinfo file. Content
	// beyond this size is silently truncated, which may drop trailing
	// fields. Known limitation carried over from the reference sizing.
	readBufferSize = 4096
)

// Engine holds the accumulated statistics of one hardware execution unit.
type Engine struct {
	Name     string
	BusyNS   uint64 // accumulated busy time in nanoseconds
	Cycles   uint64 // accumulated cycle count
	Capacity uint64 // declared parallelism, at least 1 once the slot is active
}

// Region holds the memory usage of one memory region class. All values are
// byte counts.
type Region struct {
	Name      string
	Total     uint64
	Shared    uint64
	Resident  uint64
	Purgeable uint64
	Active    uint64
}

// ClientInfo is the aggregate result of one parse call. The caller allocates
// it zero-initialized; a parse call fully repopulates it. It owns no external
// resources and may be reused across calls.
type ClientInfo struct {
	Driver string // reporting driver name
	PDev   string // PCI device identifier
	ID     uint64 // DRM client id

	Engines         [MaxEngines]Engine
	NumEngines      int // count of distinct engines observed
	LastEngineIndex int // highest engine slot index used

	Regions         [MaxRegions]Region
	NumRegions      int // count of distinct regions observed
	LastRegionIndex int // highest region slot index used
}
