// Copyright (C) 2021-2025 Intel Corporation
// SPDX-License-Identifier: BSD-3-Clause

package top

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"drmspect/internal/drmclients"
	"drmspect/internal/fdinfo"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var clientLabels = []string{"pid", "name", "driver", "minor", "client_id"}

var busyGaugeVec = prometheus.NewGaugeVec(
	prometheus.GaugeOpts{
		Name: "drmspect_client_busy_percent",
		Help: "Aggregate engine utilization of a DRM client over the last scan interval",
	},
	clientLabels,
)
var engineBusyGaugeVec = prometheus.NewGaugeVec(
	prometheus.GaugeOpts{
		Name: "drmspect_engine_busy_percent",
		Help: "Per-engine utilization of a DRM client over the last scan interval",
	},
	append(clientLabels, "engine"),
)
var residentGaugeVec = prometheus.NewGaugeVec(
	prometheus.GaugeOpts{
		Name: "drmspect_client_resident_bytes",
		Help: "Resident GPU memory of a DRM client across all regions",
	},
	clientLabels,
)
var totalGaugeVec = prometheus.NewGaugeVec(
	prometheus.GaugeOpts{
		Name: "drmspect_client_total_bytes",
		Help: "Total GPU memory of a DRM client across all regions",
	},
	clientLabels,
)

func startPrometheusServer(listenAddr string) {
	prometheus.MustRegister(busyGaugeVec, engineBusyGaugeVec, residentGaugeVec, totalGaugeVec)
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	slog.Info("Starting Prometheus metrics server", slog.String("address", listenAddr))
	go func() {
		server := &http.Server{
			Addr:              listenAddr,
			Handler:           mux,
			ReadHeaderTimeout: 3 * time.Second,
		}
		err := server.ListenAndServe()
		if err != nil && err != http.ErrServerClosed {
			slog.Error("Prometheus HTTP server ListenAndServe error", slog.String("error", err.Error()))
		}
	}()
}

// updatePrometheusMetrics replaces all client series with the latest scan so
// vanished clients do not linger in the export.
func updatePrometheusMetrics(clients []*drmclients.Client, interval time.Duration) {
	busyGaugeVec.Reset()
	engineBusyGaugeVec.Reset()
	residentGaugeVec.Reset()
	totalGaugeVec.Reset()
	for _, c := range clients {
		labels := prometheus.Labels{
			"pid":       strconv.Itoa(c.PID),
			"name":      c.Comm,
			"driver":    c.Info.Driver,
			"minor":     strconv.Itoa(c.Minor),
			"client_id": strconv.FormatUint(c.ID, 10),
		}
		busyGaugeVec.With(labels).Set(c.BusyPercent(interval))
		var resident, total uint64
		for i := 0; i <= c.Info.LastRegionIndex && i < fdinfo.MaxRegions; i++ {
			resident += c.Info.Regions[i].Resident
			total += c.Info.Regions[i].Total
		}
		residentGaugeVec.With(labels).Set(float64(resident))
		totalGaugeVec.With(labels).Set(float64(total))
		for i := 0; i <= c.Info.LastEngineIndex && i < fdinfo.MaxEngines; i++ {
			if c.Info.Engines[i].Capacity == 0 {
				continue
			}
			name := c.Info.Engines[i].Name
			if name == "" {
				name = strconv.Itoa(i)
			}
			engineLabels := prometheus.Labels{"engine": name}
			for k, v := range labels {
				engineLabels[k] = v
			}
			engineBusyGaugeVec.With(engineLabels).Set(c.EngineBusyPercent(i, interval))
		}
	}
}
