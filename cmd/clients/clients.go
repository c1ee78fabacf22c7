// Package clients is a subcommand of the root command. It reports the DRM
// clients currently present on the system.
package clients

// Copyright (C) 2021-2025 Intel Corporation
// SPDX-License-Identifier: BSD-3-Clause

import (
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"drmspect/internal/common"
	"drmspect/internal/drivers"
	"drmspect/internal/drmclients"
	"drmspect/internal/report"
	"drmspect/internal/util"

	"github.com/spf13/cobra"
)

const cmdName = "clients"

var examples = []string{
	fmt.Sprintf("  List DRM clients:                  $ %s %s", common.AppName, cmdName),
	fmt.Sprintf("  Include busy percentages:          $ %s %s --interval 2", common.AppName, cmdName),
	fmt.Sprintf("  Write a spreadsheet report:        $ %s %s --format xlsx", common.AppName, cmdName),
	fmt.Sprintf("  Use custom driver name tables:     $ %s %s --maps ./maps.yaml", common.AppName, cmdName),
}

var Cmd = &cobra.Command{
	Use:           cmdName,
	Short:         "Report DRM clients and their GPU resource usage",
	Example:       strings.Join(examples, "\n"),
	RunE:          runCmd,
	PreRunE:       validateFlags,
	GroupID:       "primary",
	Args:          cobra.NoArgs,
	SilenceErrors: true,
}

var (
	flagFormat     []string
	flagInterval   int
	flagNoEngines  bool
	flagNoRegions  bool
	flagMapsFile   string
	flagDriverMaps bool
	flagProcfs     string
)

const (
	flagFormatName     = "format"
	flagIntervalName   = "interval"
	flagNoEnginesName  = "no-engines"
	flagNoRegionsName  = "no-regions"
	flagMapsFileName   = "maps"
	flagDriverMapsName = "driver-maps"
	flagProcfsName     = "procfs"
)

func init() {
	Cmd.Flags().StringSliceVar(&flagFormat, flagFormatName, []string{report.FormatTxt}, fmt.Sprintf("report format(s): %s", strings.Join(report.FormatOptions, ", ")))
	Cmd.Flags().IntVar(&flagInterval, flagIntervalName, 0, "seconds between two scans used to compute busy percentages, 0 scans once")
	Cmd.Flags().BoolVar(&flagNoEngines, flagNoEnginesName, false, "omit the per-engine table")
	Cmd.Flags().BoolVar(&flagNoRegions, flagNoRegionsName, false, "omit the memory region table")
	Cmd.Flags().StringVar(&flagMapsFile, flagMapsFileName, "", "YAML file with driver engine/region name tables, overrides the built-ins")
	Cmd.Flags().BoolVar(&flagDriverMaps, flagDriverMapsName, true, "use per-driver name tables for fixed engine slot ordering")
	Cmd.Flags().StringVar(&flagProcfs, flagProcfsName, "/proc", "proc filesystem mount point to scan")
	_ = Cmd.Flags().MarkHidden(flagProcfsName)
}

func validateFlags(cmd *cobra.Command, args []string) error {
	for _, format := range flagFormat {
		if !slices.Contains(report.FormatOptions, format) {
			return fmt.Errorf("format options are %s", strings.Join(report.FormatOptions, ", "))
		}
	}
	if flagInterval < 0 {
		return fmt.Errorf("interval must not be negative")
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
	appContext := cmd.Parent().Context().Value(common.AppContext{}).(common.AppContext)
	if flagMapsFile != "" {
		maps, err := drivers.LoadMaps(flagMapsFile)
		if err != nil {
			return err
		}
		drivers.Override(maps)
	}
	scanner := &drmclients.Scanner{
		ProcRoot:      flagProcfs,
		UseDriverMaps: flagDriverMaps,
	}
	clients, err := scanner.Scan()
	if err != nil {
		return err
	}
	var interval time.Duration
	if flagInterval > 0 {
		time.Sleep(time.Duration(flagInterval) * time.Second)
		clients, err = scanner.Scan()
		if err != nil {
			return err
		}
		interval = scanner.Interval()
	}
	slog.Info("scan complete", slog.Int("clients", len(clients)))

	tables := []report.TableValues{report.ClientsTable(clients, interval)}
	if !flagNoEngines {
		tables = append(tables, report.EnginesTable(clients, interval))
	}
	if !flagNoRegions {
		tables = append(tables, report.RegionsTable(clients))
	}
	for _, format := range flagFormat {
		out, err := report.Create(format, tables)
		if err != nil {
			return err
		}
		if format == report.FormatTxt {
			fmt.Print(string(out))
			continue
		}
		path, err := common.WriteOutputFile(appContext, cmdName+"."+format, out)
		if err != nil {
			return err
		}
		fmt.Printf("%s report written to %s\n", format, path)
	}
	return nil
}
