/*
 * Copyright (c) mpibind-go contributors.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package telemetry registers the CLI's optional Prometheus metrics:
// Run() latency and per-vendor GPU visibility counts. Grounded on
// mlmon-nvgpu-exporter's gauge-vec registration idiom (one vec keyed by
// a label, registered once at package init and updated per collection).
package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RunDuration observes the wall-clock time of Handle.Run calls.
	RunDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "mpibind",
		Name:      "run_duration_seconds",
		Help:      "Duration of Handle.Run calls.",
		Buckets:   prometheus.DefBuckets,
	})

	// VisibleDevices reports the number of GPU devices made visible to
	// tasks in the most recent run, labeled by vendor.
	VisibleDevices = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "mpibind",
		Name:      "visible_devices",
		Help:      "Number of GPU devices visible to tasks in the most recent run, by vendor.",
	}, []string{"vendor"})

	// Tasks reports the number of task slots computed in the most recent
	// run.
	Tasks = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "mpibind",
		Name:      "tasks",
		Help:      "Number of task slots computed in the most recent run.",
	})

	// RunErrors counts failed Handle.Run calls.
	RunErrors = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "mpibind",
		Name:      "run_errors_total",
		Help:      "Number of Handle.Run calls that returned an error.",
	})
)

// ObserveRun records the outcome of one Handle.Run call.
func ObserveRun(seconds float64, ntasks int, gpusByVendor map[string]int, err error) {
	RunDuration.Observe(seconds)
	if err != nil {
		RunErrors.Inc()
		return
	}
	Tasks.Set(float64(ntasks))
	for vendor, n := range gpusByVendor {
		VisibleDevices.WithLabelValues(vendor).Set(float64(n))
	}
}
