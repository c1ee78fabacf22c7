// Copyright (C) 2021-2025 Intel Corporation
// SPDX-License-Identifier: BSD-3-Clause

package fdinfo

import (
	"io"
	"os"
	"strconv"
	"strings"
)

type lineKind int

const (
	kindDriver lineKind = iota
	kindClientID
	kindPDev
	kindEngineCapacity
	kindEngine
	kindCycles
	kindTotal
	kindShared
	kindResident
	kindPurgeable
	kindActive
)

// linePrefixes is matched in order. drm-engine-capacity- must stay ahead of
// drm-engine- since the latter is a prefix of the former.
var linePrefixes = []struct {
	prefix string
	kind   lineKind
}{
	{"drm-driver:", kindDriver},
	{"drm-client-id:", kindClientID},
	{"drm-pdev:", kindPDev},
	{"drm-engine-capacity-", kindEngineCapacity},
	{"drm-engine-", kindEngine},
	{"drm-cycles-", kindCycles},
	{"drm-total-", kindTotal},
	{"drm-shared-", kindShared},
	{"drm-resident-", kindResident},
	{"drm-purgeable-", kindPurgeable},
	{"drm-active-", kindActive},
}

// classifyLine returns the kind of a fdinfo line and the payload following
// the matched prefix. Unrecognized lines report ok == false and are skipped
// by the caller, unknown fields never abort a parse.
func classifyLine(line string) (kind lineKind, payload string, ok bool) {
	for _, p := range linePrefixes {
		if rest, found := strings.CutPrefix(line, p.prefix); found {
			return p.kind, rest, true
		}
	}
	return 0, "", false
}

// parseValue parses the leading unsigned decimal integer of s after skipping
// leading whitespace. It returns the remainder following the digits. ok is
// false when no digits were consumed.
func parseValue(s string) (val uint64, rest string, ok bool) {
	s = strings.TrimLeft(s, " \t")
	i := 0
	for i < len(s) && s[i] >= '0' && s[i] <= '9' {
		val = val*10 + uint64(s[i]-'0')
		i++
	}
	return val, s[i:], i > 0
}

// ParseDir reads the fdinfo file name from dir and decodes it into info,
// which must be zero-initialized by the caller. engineMap and regionMap
// optionally supply fixed slot orderings for drivers with well-known engine
// and memory region names; when nil, slots are assigned in first-seen order.
//
// The returned score is 0 when the file cannot be read or its content does
// not look like DRM fdinfo (fewer than two header fields, or no engines and
// no regions). A non-zero score counts the recognized fields and is
// informational only.
func ParseDir(dir *os.Root, name string, info *ClientInfo, engineMap, regionMap []string) uint {
	buf := readInfo(dir, name)
	if len(buf) == 0 {
		return 0
	}
	return parse(buf, info, engineMap, regionMap)
}

// ParseFD decodes the fdinfo of an open DRM file descriptor in the calling
// process, located via /proc/self/fdinfo.
func ParseFD(fd uintptr, info *ClientInfo, engineMap, regionMap []string) uint {
	dir, err := os.OpenRoot("/proc/self/fdinfo")
	if err != nil {
		return 0
	}
	defer dir.Close()
	return ParseDir(dir, strconv.FormatUint(uint64(fd), 10), info, engineMap, regionMap)
}

// readInfo performs a single bounded read of the fdinfo file. fdinfo is a
// pseudo-file snapshot, one read returns the whole content up to the buffer
// size. Any failure, including a missing file, reports no data rather than
// an error.
func readInfo(dir *os.Root, name string) []byte {
	f, err := dir.Open(name)
	if err != nil {
		return nil
	}
	defer f.Close()
	buf := make([]byte, readBufferSize)
	n, err := f.Read(buf)
	if n <= 0 || (err != nil && err != io.EOF) {
		return nil
	}
	return buf[:n]
}

func parse(buf []byte, info *ClientInfo, engineMap, regionMap []string) uint {
	var enginesFound [MaxEngines]bool
	var regionsFound [MaxRegions]bool
	good := 0
	numCapacity := 0

	for line := range strings.SplitSeq(string(buf), "\n") {
		kind, payload, ok := classifyLine(line)
		if !ok {
			continue
		}
		switch kind {
		case kindDriver:
			if v := strings.TrimSpace(payload); v != "" {
				info.Driver = v
				good++
			}
		case kindClientID:
			if v, _, valid := parseValue(payload); valid {
				info.ID = v
				good++
			}
		case kindPDev:
			info.PDev = strings.TrimSpace(payload)
		case kindEngineCapacity:
			// Updates an existing or future engine slot but does not
			// count toward NumEngines on its own.
			if idx, val := parseEngine(payload, info, engineMap); idx >= 0 {
				info.Engines[idx].Capacity = val
				numCapacity++
			}
		case kindEngine:
			if idx, val := parseEngine(payload, info, engineMap); idx >= 0 {
				info.Engines[idx].BusyNS = val
				info.touchEngine(idx, &enginesFound)
			}
		case kindCycles:
			if idx, val := parseEngine(payload, info, engineMap); idx >= 0 {
				info.Engines[idx].Cycles = val
				info.touchEngine(idx, &enginesFound)
			}
		case kindTotal:
			if idx, val := parseRegion(payload, info, regionMap); idx >= 0 {
				info.Regions[idx].Total = val
				info.touchRegion(idx, &regionsFound)
			}
		case kindShared:
			if idx, val := parseRegion(payload, info, regionMap); idx >= 0 {
				info.Regions[idx].Shared = val
				info.touchRegion(idx, &regionsFound)
			}
		case kindResident:
			if idx, val := parseRegion(payload, info, regionMap); idx >= 0 {
				info.Regions[idx].Resident = val
				info.touchRegion(idx, &regionsFound)
			}
		case kindPurgeable:
			if idx, val := parseRegion(payload, info, regionMap); idx >= 0 {
				info.Regions[idx].Purgeable = val
				info.touchRegion(idx, &regionsFound)
			}
		case kindActive:
			if idx, val := parseRegion(payload, info, regionMap); idx >= 0 {
				info.Regions[idx].Active = val
				info.touchRegion(idx, &regionsFound)
			}
		}
	}

	if good < 2 || (info.NumEngines == 0 && info.NumRegions == 0) {
		return 0 // fdinfo format not as expected
	}

	return uint(good + info.NumEngines + numCapacity + info.NumRegions)
}

// parseEngine resolves the engine name of an engine-scoped payload of the
// form "<name>: <value>" to a slot index and parses the value. A malformed
// payload, or a name absent from a supplied static map, yields index -1 and
// the line is dropped.
func parseEngine(payload string, info *ClientInfo, engineMap []string) (int, uint64) {
	name, rest, ok := splitName(payload)
	if !ok {
		return -1, 0
	}

	found := -1
	if engineMap != nil {
		for i, entry := range engineMap {
			if strings.HasPrefix(entry, name) {
				found = i
				break
			}
		}
	} else {
		for i := range info.NumEngines {
			if strings.HasPrefix(info.Engines[i].Name, name) {
				found = i
				break
			}
		}
		if found < 0 {
			if info.NumEngines+1 >= MaxEngines {
				panic("fdinfo: engine slot capacity exhausted")
			}
			info.Engines[info.NumEngines].Name = name
			found = info.NumEngines
		}
	}

	if found < 0 {
		return -1, 0
	}
	val, _, _ := parseValue(rest)
	return found, val
}

// parseRegion is the region-scoped counterpart of parseEngine. Region values
// additionally accept an optional KiB/MiB/GiB suffix scaling the value to
// bytes. In static map mode the parsed name is backfilled into the slot's
// stored name on first touch so mixed static/dynamic displays stay
// consistent.
func parseRegion(payload string, info *ClientInfo, regionMap []string) (int, uint64) {
	name, rest, ok := splitName(payload)
	if !ok {
		return -1, 0
	}

	found := -1
	if regionMap != nil {
		for i, entry := range regionMap {
			if strings.HasPrefix(entry, name) {
				found = i
				if info.Regions[i].Name == "" {
					info.Regions[i].Name = name
				}
				break
			}
		}
	} else {
		for i := range info.NumRegions {
			if strings.HasPrefix(info.Regions[i].Name, name) {
				found = i
				break
			}
		}
		if found < 0 {
			if info.NumRegions+1 >= MaxRegions {
				panic("fdinfo: region slot capacity exhausted")
			}
			info.Regions[info.NumRegions].Name = name
			found = info.NumRegions
		}
	}

	if found < 0 {
		return -1, 0
	}

	val, rest, _ := parseValue(rest)
	switch strings.TrimSpace(rest) {
	case "KiB":
		val *= 1024
	case "MiB":
		val *= 1024 * 1024
	case "GiB":
		val *= 1024 * 1024 * 1024
	}
	return found, val
}

// splitName splits "<name>:<value...>" at the first colon. An absent colon
// or empty name rejects the payload.
func splitName(payload string) (name, rest string, ok bool) {
	i := strings.IndexByte(payload, ':')
	if i < 1 {
		return "", "", false
	}
	return payload[:i], payload[i+1:], true
}

// touchEngine records that an engine slot received data: the distinct-engine
// count is incremented once per slot per parse call, the capacity defaults
// to 1 until a capacity line declares otherwise, and the highest used slot
// index is tracked.
func (info *ClientInfo) touchEngine(idx int, seen *[MaxEngines]bool) {
	if info.Engines[idx].Capacity == 0 {
		info.Engines[idx].Capacity = 1
	}
	if !seen[idx] {
		seen[idx] = true
		info.NumEngines++
		if idx > info.LastEngineIndex {
			info.LastEngineIndex = idx
		}
	}
}

func (info *ClientInfo) touchRegion(idx int, seen *[MaxRegions]bool) {
	if !seen[idx] {
		seen[idx] = true
		info.NumRegions++
		if idx > info.LastRegionIndex {
			info.LastRegionIndex = idx
		}
	}
}
