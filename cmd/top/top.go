// Package top is a subcommand of the root command. It periodically scans
// DRM clients and prints their utilization, optionally filtered and exported
// as Prometheus metrics.
package top

// Copyright (C) 2021-2025 Intel Corporation
// SPDX-License-Identifier: BSD-3-Clause

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"drmspect/internal/common"
	"drmspect/internal/drivers"
	"drmspect/internal/drmclients"
	"drmspect/internal/report"
	"drmspect/internal/util"

	"github.com/spf13/cobra"
)

const cmdName = "top"

var examples = []string{
	fmt.Sprintf("  Watch DRM clients:                 $ %s %s", common.AppName, cmdName),
	fmt.Sprintf("  Sample every 5 seconds, 12 times:  $ %s %s --interval 5 --count 12", common.AppName, cmdName),
	fmt.Sprintf("  Watch only busy clients:           $ %s %s --filter 'busy_pct > 10'", common.AppName, cmdName),
	fmt.Sprintf("  Export Prometheus metrics:         $ %s %s --prometheus 0.0.0.0:9732", common.AppName, cmdName),
}

var Cmd = &cobra.Command{
	Use:           cmdName,
	Short:         "Watch DRM client utilization continuously",
	Example:       strings.Join(examples, "\n"),
	RunE:          runCmd,
	PreRunE:       validateFlags,
	GroupID:       "primary",
	Args:          cobra.NoArgs,
	SilenceErrors: true,
}

var (
	flagInterval   int
	flagCount      int
	flagFilter     string
	flagPrometheus string
	flagEngines    bool
	flagMapsFile   string
	flagDriverMaps bool
	flagProcfs     string
)

const (
	flagIntervalName   = "interval"
	flagCountName      = "count"
	flagFilterName     = "filter"
	flagPrometheusName = "prometheus"
	flagEnginesName    = "engines"
	flagMapsFileName   = "maps"
	flagDriverMapsName = "driver-maps"
	flagProcfsName     = "procfs"
)

func init() {
	Cmd.Flags().IntVar(&flagInterval, flagIntervalName, 2, "seconds between scans")
	Cmd.Flags().IntVar(&flagCount, flagCountName, 0, "number of scans before exiting, 0 runs until interrupted")
	Cmd.Flags().StringVar(&flagFilter, flagFilterName, "", "expression selecting clients to show, e.g. 'driver == \"i915\" && busy_pct > 10'")
	Cmd.Flags().StringVar(&flagPrometheus, flagPrometheusName, "", "address to serve Prometheus metrics on, e.g. 0.0.0.0:9732")
	Cmd.Flags().BoolVar(&flagEngines, flagEnginesName, false, "include the per-engine table")
	Cmd.Flags().StringVar(&flagMapsFile, flagMapsFileName, "", "YAML file with driver engine/region name tables, overrides the built-ins")
	Cmd.Flags().BoolVar(&flagDriverMaps, flagDriverMapsName, true, "use per-driver name tables for fixed engine slot ordering")
	Cmd.Flags().StringVar(&flagProcfs, flagProcfsName, "/proc", "proc filesystem mount point to scan")
	_ = Cmd.Flags().MarkHidden(flagProcfsName)
}

func validateFlags(cmd *cobra.Command, args []string) error {
	if flagInterval < 1 {
		return fmt.Errorf("interval must be at least 1 second")
	}
	if flagCount < 0 {
		return fmt.Errorf("count must not be negative")
	}
	if flagFilter != "" {
		if _, err := newClientFilter(flagFilter); err != nil {
			return err
		}
	}
	if flagMapsFile != "" {
		exists, err := util.FileExists(flagMapsFile)
		if err != nil {
			return err
		}
		if !exists {
			return fmt.Errorf("maps file %s does not exist", flagMapsFile)
		}
	}
	return nil
}

func runCmd(cmd *cobra.Command, args []string) error {
	if flagMapsFile != "" {
		maps, err := drivers.LoadMaps(flagMapsFile)
		if err != nil {
			return err
		}
		drivers.Override(maps)
	}
	var filter *clientFilter
	if flagFilter != "" {
		var err error
		filter, err = newClientFilter(flagFilter)
		if err != nil {
			return err
		}
	}
	if flagPrometheus != "" {
		startPrometheusServer(flagPrometheus)
	}
	scanner := &drmclients.Scanner{
		ProcRoot:      flagProcfs,
		UseDriverMaps: flagDriverMaps,
	}
	// first scan establishes the baseline for deltas
	if _, err := scanner.Scan(); err != nil {
		return err
	}
	ticker := time.NewTicker(time.Duration(flagInterval) * time.Second)
	defer ticker.Stop()
	for i := 0; flagCount == 0 || i < flagCount; i++ {
		<-ticker.C
		clients, err := scanner.Scan()
		if err != nil {
			return err
		}
		interval := scanner.Interval()
		if filter != nil {
			clients, err = filterClients(clients, filter, interval)
			if err != nil {
				return err
			}
		}
		if flagPrometheus != "" {
			updatePrometheusMetrics(clients, interval)
		}
		if err := printClients(clients, interval); err != nil {
			return err
		}
	}
	return nil
}

func filterClients(clients []*drmclients.Client, filter *clientFilter, interval time.Duration) ([]*drmclients.Client, error) {
	selected := make([]*drmclients.Client, 0, len(clients))
	for _, c := range clients {
		match, err := filter.matches(c, interval)
		if err != nil {
			return nil, err
		}
		if match {
			selected = append(selected, c)
		}
	}
	return selected, nil
}

func printClients(clients []*drmclients.Client, interval time.Duration) error {
	tables := []report.TableValues{report.ClientsTable(clients, interval)}
	if flagEngines {
		tables = append(tables, report.EnginesTable(clients, interval))
	}
	out, err := report.Create(report.FormatTxt, tables)
	if err != nil {
		return err
	}
	fmt.Printf("%s\n%s", time.Now().Format(time.TimeOnly), string(out))
	slog.Debug("scan printed", slog.Int("clients", len(clients)))
	return nil
}
