// Copyright (C) 2021-2025 Intel Corporation
// SPDX-License-Identifier: BSD-3-Clause

// Package drivers carries the static engine and memory region name tables of
// DRM drivers with well-known, fixed slot ordering. Parsing fdinfo with a
// static table gives every client the same slot index for the same engine,
// which keeps multi-client displays and delta computations aligned. Drivers
// without a table fall back to dynamic first-seen slot assignment.
package drivers

import (
	"os"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v2"
)

// NameMap fixes the fdinfo slot ordering for one driver.
type NameMap struct {
	Engines []string
	Regions []string
}

// Engine and region orderings as reported by the respective kernel drivers.
var builtinMaps = map[string]NameMap{
	"i915": {
		Engines: []string{"render", "copy", "video", "video-enhance", "compute"},
		Regions: []string{"system0", "local0"},
	},
	"xe": {
		Engines: []string{"rcs", "bcs", "vcs", "vecs", "ccs"},
		Regions: []string{"system", "gtt", "vram0", "vram1"},
	},
	"amdgpu": {
		Engines: []string{"gfx", "compute", "dma", "enc", "dec", "jpeg", "vpe"},
		Regions: []string{"cpu", "gtt", "vram"},
	},
}

// Lookup returns the built-in name map for a driver as reported in the
// fdinfo drm-driver field.
func Lookup(driver string) (NameMap, bool) {
	m, ok := builtinMaps[driver]
	return m, ok
}

type mapFromYAML struct {
	Driver  string   `yaml:"driver"`
	Engines []string `yaml:"engines"`
	Regions []string `yaml:"regions"`
}

type mapsFromYAML struct {
	Maps []mapFromYAML `yaml:"maps"`
}

// LoadMaps reads driver name maps from a YAML file. See maps.yaml for the
// format. Loaded maps override the built-ins for the drivers they name.
func LoadMaps(path string) (map[string]NameMap, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read name map file")
	}
	var parsed mapsFromYAML
	if err := yaml.UnmarshalStrict(data, &parsed); err != nil {
		return nil, errors.Wrapf(err, "failed to parse name map file %s", path)
	}
	maps := make(map[string]NameMap, len(parsed.Maps))
	for _, m := range parsed.Maps {
		if m.Driver == "" {
			return nil, errors.Errorf("name map without a driver in %s", path)
		}
		maps[m.Driver] = NameMap{Engines: m.Engines, Regions: m.Regions}
	}
	return maps, nil
}

// Override replaces built-in maps with those loaded from a file.
// Subsequent Lookup calls see the merged result.
func Override(maps map[string]NameMap) {
	for driver, m := range maps {
		builtinMaps[driver] = m
	}
}
