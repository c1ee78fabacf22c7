// Copyright (C) 2021-2025 Intel Corporation
// SPDX-License-Identifier: BSD-3-Clause

package report

import (
	"fmt"
	"os"
	"strings"

	"golang.org/x/term"
)

func createTextReport(tables []TableValues) ([]byte, error) {
	var sb strings.Builder
	for _, table := range tables {
		sb.WriteString(table.Name + "\n")
		for range len(table.Name) {
			sb.WriteString("=")
		}
		sb.WriteString("\n")
		if len(table.Fields) == 0 || len(table.Fields[0].Values) == 0 {
			sb.WriteString(noDataFound + "\n\n")
			continue
		}
		sb.WriteString(renderTextTable(table))
		sb.WriteString("\n")
	}
	return []byte(sb.String()), nil
}

func renderTextTable(table TableValues) string {
	var sb strings.Builder
	// column width is the larger of the field name and its longest value,
	// except the last column which is not padded
	maxFieldLen := make(map[string]int)
	for i, field := range table.Fields {
		if i == len(table.Fields)-1 {
			maxFieldLen[field.Name] = 0
			continue
		}
		maxFieldLen[field.Name] = len(field.Name)
		for _, val := range field.Values {
			if len(val) > maxFieldLen[field.Name] {
				maxFieldLen[field.Name] = len(val)
			}
		}
	}
	columnSpacing := 3
	width := terminalWidth()
	for _, field := range table.Fields {
		sb.WriteString(fmt.Sprintf("%-*s", maxFieldLen[field.Name]+columnSpacing, field.Name))
	}
	sb.WriteString("\n")
	for _, field := range table.Fields {
		underline := strings.Repeat("-", len(field.Name))
		sb.WriteString(fmt.Sprintf("%-*s", maxFieldLen[field.Name]+columnSpacing, underline))
	}
	sb.WriteString("\n")
	numRows := len(table.Fields[0].Values)
	for row := range numRows {
		var line strings.Builder
		for _, field := range table.Fields {
			line.WriteString(fmt.Sprintf("%-*s", maxFieldLen[field.Name]+columnSpacing, field.Values[row]))
		}
		sb.WriteString(clipLine(strings.TrimRight(line.String(), " "), width))
		sb.WriteString("\n")
	}
	return sb.String()
}

// terminalWidth returns the width of the attached terminal, or 0 when
// stdout is not a terminal, in which case lines are not clipped.
func terminalWidth() int {
	if !term.IsTerminal(int(os.Stdout.Fd())) {
		return 0
	}
	width, _, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil {
		return 0
	}
	return width
}

func clipLine(line string, width int) string {
	if width <= 0 || len(line) <= width {
		return line
	}
	return line[:width]
}
