// Copyright (C) 2021-2025 Intel Corporation
// SPDX-License-Identifier: BSD-3-Clause

// Package drmclients enumerates DRM clients system-wide by pairing each
// process' open file descriptors with their fdinfo data, and tracks
// per-engine utilization deltas across successive scans.
package drmclients

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"
	"unicode"

	"drmspect/internal/drivers"
	"drmspect/internal/fdinfo"

	mapset "github.com/deckarep/golang-set/v2"
)

// Utilization holds one engine's busyness data relative to the previous
// scan.
type Utilization struct {
	DeltaBusyNS uint64 // busy time accumulated since the previous scan
	DeltaCycles uint64 // cycles accumulated since the previous scan
	LastBusyNS  uint64 // busy time as parsed from fdinfo
	LastCycles  uint64 // cycles as parsed from fdinfo
}

// Client is one tracked DRM client. A client is identified by the DRM minor
// of the device node it has open plus the driver-assigned client id, so the
// same client seen through multiple file descriptors (or processes sharing a
// descriptor) is counted once.
type Client struct {
	PID   int
	Comm  string // process name, sanitized for display
	Minor int    // DRM minor of the opened device node
	ID    uint64 // DRM client id from fdinfo

	Info        fdinfo.ClientInfo
	Utilization [fdinfo.MaxEngines]Utilization

	Samples  int  // number of scans that updated this client
	Alive    bool // seen in the most recent scan
	lastSeen time.Time
}

type clientKey struct {
	minor int
	id    uint64
}

// Scanner scans a proc filesystem for DRM clients. The zero value scans
// /proc with dynamic engine/region slot assignment; tests point ProcRoot at
// a fabricated tree.
type Scanner struct {
	// ProcRoot is the root of the proc filesystem. Defaults to /proc.
	ProcRoot string
	// EngineMap and RegionMap optionally fix the slot ordering for all
	// parsed clients.
	EngineMap []string
	RegionMap []string
	// UseDriverMaps re-parses each client with the built-in name tables
	// of its reporting driver, when one exists, so slot indices match
	// the driver's canonical engine ordering.
	UseDriverMaps bool

	clients  map[clientKey]*Client
	lastScan time.Time
	interval time.Duration
}

// Interval returns the time between the two most recent scans, or zero
// before the second scan.
func (s *Scanner) Interval() time.Duration {
	return s.interval
}

// Scan walks the proc tree once and returns the currently alive clients
// sorted by DRM minor then client id. Processes and descriptors that cannot
// be inspected (typically due to permissions) are skipped.
func (s *Scanner) Scan() ([]*Client, error) {
	procRoot := s.ProcRoot
	if procRoot == "" {
		procRoot = "/proc"
	}
	if s.clients == nil {
		s.clients = make(map[clientKey]*Client)
	}
	now := time.Now()
	if !s.lastScan.IsZero() {
		s.interval = now.Sub(s.lastScan)
	}
	s.lastScan = now

	procs, err := os.ReadDir(procRoot)
	if err != nil {
		return nil, fmt.Errorf("failed to read proc root %s: %w", procRoot, err)
	}

	seen := mapset.NewThreadUnsafeSet[clientKey]()
	for _, proc := range procs {
		pid, err := strconv.Atoi(proc.Name())
		if err != nil || !proc.IsDir() {
			continue
		}
		s.scanProcess(procRoot, pid, seen)
	}

	// reap clients that vanished since the previous scan
	alive := make([]*Client, 0, len(s.clients))
	for key, client := range s.clients {
		if !seen.Contains(key) {
			delete(s.clients, key)
			continue
		}
		alive = append(alive, client)
	}
	sort.Slice(alive, func(i, j int) bool {
		if alive[i].Minor != alive[j].Minor {
			return alive[i].Minor < alive[j].Minor
		}
		return alive[i].ID < alive[j].ID
	})
	return alive, nil
}

func (s *Scanner) scanProcess(procRoot string, pid int, seen mapset.Set[clientKey]) {
	pidDir := filepath.Join(procRoot, strconv.Itoa(pid))
	fds, err := os.ReadDir(filepath.Join(pidDir, "fd"))
	if err != nil {
		return // no permission or process exited
	}
	var infoDir *os.Root
	for _, fd := range fds {
		target, err := os.Readlink(filepath.Join(pidDir, "fd", fd.Name()))
		if err != nil || !strings.HasPrefix(target, "/dev/dri/") {
			continue
		}
		minor, err := minorFromNode(target)
		if err != nil {
			slog.Debug("unrecognized DRM node name", slog.String("node", target))
			continue
		}
		if infoDir == nil {
			infoDir, err = os.OpenRoot(filepath.Join(pidDir, "fdinfo"))
			if err != nil {
				return
			}
			defer infoDir.Close()
		}
		var info fdinfo.ClientInfo
		if fdinfo.ParseDir(infoDir, fd.Name(), &info, s.EngineMap, s.RegionMap) == 0 {
			continue // driver not instrumented, or fd went away
		}
		if s.UseDriverMaps && s.EngineMap == nil && s.RegionMap == nil {
			if nameMap, ok := drivers.Lookup(info.Driver); ok {
				remapped := fdinfo.ClientInfo{}
				if fdinfo.ParseDir(infoDir, fd.Name(), &remapped, nameMap.Engines, nameMap.Regions) != 0 {
					info = remapped
				}
			}
		}
		key := clientKey{minor: minor, id: info.ID}
		if seen.Contains(key) {
			continue // same client through another fd
		}
		seen.Add(key)
		s.updateClient(key, pid, pidDir, &info)
	}
}

func (s *Scanner) updateClient(key clientKey, pid int, pidDir string, info *fdinfo.ClientInfo) {
	client, ok := s.clients[key]
	if !ok {
		client = &Client{
			PID:   pid,
			Minor: key.minor,
			ID:    key.id,
			Comm:  readComm(pidDir),
		}
		s.clients[key] = client
	}
	for i := 0; i <= info.LastEngineIndex && i < fdinfo.MaxEngines; i++ {
		u := &client.Utilization[i]
		cur := info.Engines[i].BusyNS
		curCycles := info.Engines[i].Cycles
		if client.Samples > 0 && cur >= u.LastBusyNS {
			u.DeltaBusyNS = cur - u.LastBusyNS
		} else {
			u.DeltaBusyNS = 0
		}
		if client.Samples > 0 && curCycles >= u.LastCycles {
			u.DeltaCycles = curCycles - u.LastCycles
		} else {
			u.DeltaCycles = 0
		}
		u.LastBusyNS = cur
		u.LastCycles = curCycles
	}
	client.Info = *info
	client.Samples++
	client.Alive = true
	client.lastSeen = s.lastScan
}

// AggDeltaBusyNS sums the busy-time deltas of all engines since the
// previous scan.
func (c *Client) AggDeltaBusyNS() uint64 {
	var total uint64
	for i := 0; i <= c.Info.LastEngineIndex && i < fdinfo.MaxEngines; i++ {
		total += c.Utilization[i].DeltaBusyNS
	}
	return total
}

// EngineBusyPercent returns engine i's utilization over the elapsed
// interval, scaled by the engine's declared capacity and clamped to 100 to
// guard against fluctuations between the scanning period and the kernel's
// accounting.
func (c *Client) EngineBusyPercent(i int, elapsed time.Duration) float64 {
	if elapsed <= 0 || i < 0 || i >= fdinfo.MaxEngines {
		return 0
	}
	capacity := c.Info.Engines[i].Capacity
	if capacity == 0 {
		return 0
	}
	pct := 100.0 * float64(c.Utilization[i].DeltaBusyNS) / float64(elapsed.Nanoseconds()) / float64(capacity)
	return min(pct, 100.0)
}

// BusyPercent returns the client's aggregate utilization across all engines
// over the elapsed interval, clamped to 100.
func (c *Client) BusyPercent(elapsed time.Duration) float64 {
	if elapsed <= 0 {
		return 0
	}
	var totalCapacity uint64
	for i := 0; i <= c.Info.LastEngineIndex && i < fdinfo.MaxEngines; i++ {
		totalCapacity += c.Info.Engines[i].Capacity
	}
	if totalCapacity == 0 {
		return 0
	}
	pct := 100.0 * float64(c.AggDeltaBusyNS()) / float64(elapsed.Nanoseconds()) / float64(totalCapacity)
	return min(pct, 100.0)
}

// minorFromNode extracts the DRM minor from a device node path, e.g.
// /dev/dri/card0 -> 0, /dev/dri/renderD128 -> 128.
func minorFromNode(path string) (int, error) {
	name := filepath.Base(path)
	i := len(name)
	for i > 0 && name[i-1] >= '0' && name[i-1] <= '9' {
		i--
	}
	if i == len(name) {
		return 0, fmt.Errorf("no minor number in node name %s", name)
	}
	return strconv.Atoi(name[i:])
}

// readComm returns the process name with non-printable characters replaced,
// or the empty string when comm cannot be read.
func readComm(pidDir string) string {
	data, err := os.ReadFile(filepath.Join(pidDir, "comm"))
	if err != nil {
		return ""
	}
	comm := strings.TrimSpace(string(data))
	return strings.Map(func(r rune) rune {
		if !unicode.IsPrint(r) {
			return '?'
		}
		return r
	}, comm)
}
