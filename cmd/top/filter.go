// Copyright (C) 2021-2025 Intel Corporation
// SPDX-License-Identifier: BSD-3-Clause

package top

import (
	"fmt"
	"time"

	"drmspect/internal/drmclients"
	"drmspect/internal/fdinfo"

	"github.com/casbin/govaluate"
)

// clientFilter selects clients by evaluating a user-supplied expression
// against per-client variables.
type clientFilter struct {
	expr *govaluate.EvaluableExpression
}

func newClientFilter(expression string) (*clientFilter, error) {
	expr, err := govaluate.NewEvaluableExpression(expression)
	if err != nil {
		return nil, fmt.Errorf("invalid filter expression: %w", err)
	}
	return &clientFilter{expr: expr}, nil
}

// filterVariables builds the expression variables for one client. Numeric
// values are float64 since that is what the expression evaluator compares.
func filterVariables(c *drmclients.Client, interval time.Duration) map[string]any {
	var resident, total uint64
	for i := 0; i <= c.Info.LastRegionIndex && i < fdinfo.MaxRegions; i++ {
		resident += c.Info.Regions[i].Resident
		total += c.Info.Regions[i].Total
	}
	return map[string]any{
		"pid":       float64(c.PID),
		"name":      c.Comm,
		"driver":    c.Info.Driver,
		"pdev":      c.Info.PDev,
		"minor":     float64(c.Minor),
		"client_id": float64(c.ID),
		"engines":   float64(c.Info.NumEngines),
		"regions":   float64(c.Info.NumRegions),
		"busy_pct":  c.BusyPercent(interval),
		"resident":  float64(resident),
		"total":     float64(total),
	}
}

func (f *clientFilter) matches(c *drmclients.Client, interval time.Duration) (bool, error) {
	result, err := f.expr.Evaluate(filterVariables(c, interval))
	if err != nil {
		return false, fmt.Errorf("failed to evaluate filter expression: %w", err)
	}
	match, ok := result.(bool)
	if !ok {
		return false, fmt.Errorf("filter expression must evaluate to a boolean, got %v", result)
	}
	return match, nil
}
