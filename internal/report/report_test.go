// Copyright (C) 2021-2025 Intel Corporation
// SPDX-License-Identifier: BSD-3-Clause

package report

import (
	"bytes"
	"encoding/json"
	"testing"
	"time"

	"drmspect/internal/drmclients"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func testClient() *drmclients.Client {
	c := &drmclients.Client{
		PID:   1234,
		Comm:  "glxgears",
		Minor: 0,
		ID:    7,
	}
	c.Info.Driver = "i915"
	c.Info.PDev = "0000:00:02.0"
	c.Info.ID = 7
	c.Info.NumEngines = 1
	c.Info.Engines[0].Name = "render"
	c.Info.Engines[0].BusyNS = 1000
	c.Info.Engines[0].Capacity = 1
	c.Info.NumRegions = 1
	c.Info.Regions[0].Name = "system"
	c.Info.Regions[0].Total = 4096
	c.Info.Regions[0].Resident = 2048
	c.Utilization[0].DeltaBusyNS = uint64(250 * time.Millisecond)
	return c
}

func TestClientsTable(t *testing.T) {
	table := ClientsTable([]*drmclients.Client{testClient()}, time.Second)
	require.Len(t, table.Fields[0].Values, 1)
	row := map[string]string{}
	for _, f := range table.Fields {
		row[f.Name] = f.Values[0]
	}
	assert.Equal(t, "1234", row["PID"])
	assert.Equal(t, "glxgears", row["Name"])
	assert.Equal(t, "i915", row["Driver"])
	assert.Equal(t, "25.0", row["Busy %"])
	assert.Equal(t, "2,048", row["Resident"])
	assert.Equal(t, "4,096", row["Total"])
}

func TestEnginesTable(t *testing.T) {
	table := EnginesTable([]*drmclients.Client{testClient()}, 0)
	require.Len(t, table.Fields[0].Values, 1)
	row := map[string]string{}
	for _, f := range table.Fields {
		row[f.Name] = f.Values[0]
	}
	assert.Equal(t, "render", row["Engine"])
	assert.Equal(t, "1,000", row["Busy ns"])
	assert.Equal(t, "-", row["Busy %"])
}

func TestRegionsTable(t *testing.T) {
	table := RegionsTable([]*drmclients.Client{testClient()})
	require.Len(t, table.Fields[0].Values, 1)
	row := map[string]string{}
	for _, f := range table.Fields {
		row[f.Name] = f.Values[0]
	}
	assert.Equal(t, "system", row["Region"])
	assert.Equal(t, "4,096", row["Total"])
	assert.Equal(t, "2,048", row["Resident"])
}

func TestCreateTextReport(t *testing.T) {
	tables := []TableValues{ClientsTable([]*drmclients.Client{testClient()}, time.Second)}
	out, err := Create(FormatTxt, tables)
	require.NoError(t, err)
	assert.Contains(t, string(out), "DRM Clients")
	assert.Contains(t, string(out), "glxgears")

	out, err = Create(FormatTxt, []TableValues{ClientsTable(nil, 0)})
	require.NoError(t, err)
	assert.Contains(t, string(out), noDataFound)
}

func TestCreateJSONReport(t *testing.T) {
	tables := []TableValues{ClientsTable([]*drmclients.Client{testClient()}, 0)}
	out, err := Create(FormatJSON, tables)
	require.NoError(t, err)
	var parsed []map[string]any
	require.NoError(t, json.Unmarshal(out, &parsed))
	require.Len(t, parsed, 1)
	assert.Equal(t, "DRM Clients", parsed[0]["name"])
}

func TestCreateXlsxReport(t *testing.T) {
	tables := []TableValues{
		ClientsTable([]*drmclients.Client{testClient()}, 0),
		RegionsTable([]*drmclients.Client{testClient()}),
	}
	out, err := Create(FormatXlsx, tables)
	require.NoError(t, err)
	f, err := excelize.OpenReader(bytes.NewReader(out))
	require.NoError(t, err)
	defer f.Close()
	val, err := f.GetCellValue(xlsxSheetName, "A1")
	require.NoError(t, err)
	assert.Equal(t, "DRM Clients", val)
}

func TestCreateUnsupportedFormat(t *testing.T) {
	_, err := Create("html", nil)
	assert.Error(t, err)
}

func TestClipLine(t *testing.T) {
	assert.Equal(t, "abc", clipLine("abc", 0))
	assert.Equal(t, "ab", clipLine("abcd", 2))
	assert.Equal(t, "abcd", clipLine("abcd", 10))
}
