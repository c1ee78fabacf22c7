// Copyright (C) 2021-2025 Intel Corporation
// SPDX-License-Identifier: BSD-3-Clause

package report

import (
	"log/slog"

	"github.com/xuri/excelize/v2"
)

const xlsxSheetName = "DRM Clients"

func cellName(col int, row int) (name string) {
	columnName, err := excelize.ColumnNumberToName(col)
	if err != nil {
		return
	}
	name, err = excelize.JoinCellName(columnName, row)
	if err != nil {
		return
	}
	return
}

func createXlsxReport(tables []TableValues) ([]byte, error) {
	f := excelize.NewFile()
	defer func() {
		if err := f.Close(); err != nil {
			slog.Error("failed to close excel file", slog.String("error", err.Error()))
		}
	}()
	if err := f.SetSheetName("Sheet1", xlsxSheetName); err != nil {
		return nil, err
	}
	row := 1
	for _, table := range tables {
		renderXlsxTable(table, f, xlsxSheetName, &row)
	}
	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func renderXlsxTable(table TableValues, f *excelize.File, sheetName string, row *int) {
	col := 1
	tableNameStyle, _ := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{
			Bold: true,
		},
	})
	_ = f.SetCellValue(sheetName, cellName(col, *row), table.Name)
	_ = f.SetCellStyle(sheetName, cellName(col, *row), cellName(col, *row), tableNameStyle)
	*row++
	if len(table.Fields) == 0 || len(table.Fields[0].Values) == 0 {
		_ = f.SetCellValue(sheetName, cellName(col, *row), noDataFound)
		*row += 2
		return
	}
	for i, field := range table.Fields {
		_ = f.SetCellValue(sheetName, cellName(col+i, *row), field.Name)
	}
	*row++
	numRows := len(table.Fields[0].Values)
	for r := range numRows {
		for i, field := range table.Fields {
			_ = f.SetCellValue(sheetName, cellName(col+i, *row), field.Values[r])
		}
		*row++
	}
	*row++
}
