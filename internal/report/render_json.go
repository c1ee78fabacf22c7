// Copyright (C) 2021-2025 Intel Corporation
// SPDX-License-Identifier: BSD-3-Clause

package report

import "encoding/json"

func createJSONReport(tables []TableValues) ([]byte, error) {
	type jsonField struct {
		Name   string   `json:"name"`
		Values []string `json:"values"`
	}
	type jsonTable struct {
		Name   string      `json:"name"`
		Fields []jsonField `json:"fields"`
	}
	out := make([]jsonTable, 0, len(tables))
	for _, table := range tables {
		jt := jsonTable{Name: table.Name}
		for _, field := range table.Fields {
			jt.Fields = append(jt.Fields, jsonField{Name: field.Name, Values: field.Values})
		}
		out = append(out, jt)
	}
	return json.MarshalIndent(out, "", " ")
}
