// Copyright (C) 2021-2025 Intel Corporation
// SPDX-License-Identifier: BSD-3-Clause

// Package report builds and renders tables of DRM client statistics in
// text, JSON, and XLSX formats.
package report

import (
	"fmt"
	"strconv"
	"time"

	"drmspect/internal/drmclients"
	"drmspect/internal/fdinfo"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// report formats
const (
	FormatTxt  = "txt"
	FormatJSON = "json"
	FormatXlsx = "xlsx"
)

var FormatOptions = []string{FormatTxt, FormatJSON, FormatXlsx}

const noDataFound = "No DRM clients found."

// Field is one column of a table.
type Field struct {
	Name   string
	Values []string
}

// TableValues holds one rendered table.
type TableValues struct {
	Name   string
	Fields []Field
}

var prt = message.NewPrinter(language.English)

// formatBytes renders a byte count with thousands separators.
func formatBytes(val uint64) string {
	return prt.Sprintf("%d", val)
}

// ClientsTable summarizes one row per client. The busy percentage is
// computed over interval; pass zero before a second scan has happened.
func ClientsTable(clients []*drmclients.Client, interval time.Duration) TableValues {
	table := TableValues{
		Name: "DRM Clients",
		Fields: []Field{
			{Name: "PID"},
			{Name: "Name"},
			{Name: "Minor"},
			{Name: "Client ID"},
			{Name: "Driver"},
			{Name: "PCI Device"},
			{Name: "Engines"},
			{Name: "Busy %"},
			{Name: "Resident"},
			{Name: "Total"},
		},
	}
	for _, c := range clients {
		var resident, total uint64
		for i := 0; i <= c.Info.LastRegionIndex && i < fdinfo.MaxRegions; i++ {
			resident += c.Info.Regions[i].Resident
			total += c.Info.Regions[i].Total
		}
		busy := "-"
		if interval > 0 {
			busy = fmt.Sprintf("%.1f", c.BusyPercent(interval))
		}
		values := []string{
			strconv.Itoa(c.PID),
			c.Comm,
			strconv.Itoa(c.Minor),
			strconv.FormatUint(c.ID, 10),
			c.Info.Driver,
			c.Info.PDev,
			strconv.Itoa(c.Info.NumEngines),
			busy,
			formatBytes(resident),
			formatBytes(total),
		}
		for i := range table.Fields {
			table.Fields[i].Values = append(table.Fields[i].Values, values[i])
		}
	}
	return table
}

// EnginesTable lists one row per client engine with busy time, cycles, and
// capacity.
func EnginesTable(clients []*drmclients.Client, interval time.Duration) TableValues {
	table := TableValues{
		Name: "Engines",
		Fields: []Field{
			{Name: "PID"},
			{Name: "Client ID"},
			{Name: "Engine"},
			{Name: "Busy ns"},
			{Name: "Cycles"},
			{Name: "Capacity"},
			{Name: "Busy %"},
		},
	}
	for _, c := range clients {
		for i := 0; i <= c.Info.LastEngineIndex && i < fdinfo.MaxEngines; i++ {
			e := c.Info.Engines[i]
			if e.Capacity == 0 {
				continue // slot never populated
			}
			busy := "-"
			if interval > 0 {
				busy = fmt.Sprintf("%.1f", c.EngineBusyPercent(i, interval))
			}
			name := e.Name
			if name == "" {
				name = strconv.Itoa(i)
			}
			values := []string{
				strconv.Itoa(c.PID),
				strconv.FormatUint(c.ID, 10),
				name,
				formatBytes(e.BusyNS),
				formatBytes(e.Cycles),
				strconv.FormatUint(e.Capacity, 10),
				busy,
			}
			for j := range table.Fields {
				table.Fields[j].Values = append(table.Fields[j].Values, values[j])
			}
		}
	}
	return table
}

// RegionsTable lists one row per client memory region.
func RegionsTable(clients []*drmclients.Client) TableValues {
	table := TableValues{
		Name: "Memory Regions",
		Fields: []Field{
			{Name: "PID"},
			{Name: "Client ID"},
			{Name: "Region"},
			{Name: "Total"},
			{Name: "Shared"},
			{Name: "Resident"},
			{Name: "Purgeable"},
			{Name: "Active"},
		},
	}
	for _, c := range clients {
		for i := 0; i <= c.Info.LastRegionIndex && i < fdinfo.MaxRegions; i++ {
			r := c.Info.Regions[i]
			if r.Name == "" && r.Total == 0 && r.Resident == 0 {
				continue
			}
			name := r.Name
			if name == "" {
				name = strconv.Itoa(i)
			}
			values := []string{
				strconv.Itoa(c.PID),
				strconv.FormatUint(c.ID, 10),
				name,
				formatBytes(r.Total),
				formatBytes(r.Shared),
				formatBytes(r.Resident),
				formatBytes(r.Purgeable),
				formatBytes(r.Active),
			}
			for j := range table.Fields {
				table.Fields[j].Values = append(table.Fields[j].Values, values[j])
			}
		}
	}
	return table
}

// Create renders the tables in the requested format.
func Create(format string, tables []TableValues) ([]byte, error) {
	switch format {
	case FormatTxt:
		return createTextReport(tables)
	case FormatJSON:
		return createJSONReport(tables)
	case FormatXlsx:
		return createXlsxReport(tables)
	default:
		return nil, fmt.Errorf("unsupported report format: %s", format)
	}
}
