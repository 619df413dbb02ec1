/*
 * Copyright (c) 2019-2021, NVIDIA CORPORATION.  All rights reserved.
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

// Command mpibind-cli is a minimal reference launcher: it builds a
// Handle from flags/env vars/config file, runs it, and prints the
// resulting mapping and/or environment-variable assignments. It stands
// in for "a launcher-side consumer" of spec.md §6.5, not a SPANK/Flux
// plugin itself. Grounded on the teacher's
// cmd/nvidia-device-plugin/main.go urfave/cli app skeleton (flag/env-var
// pairing via Destination, klog setup, c.Action dispatch).
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/urfave/cli/v2"
	"k8s.io/klog/v2"

	"github.com/hpctools/mpibind-go/internal/config"
	"github.com/hpctools/mpibind-go/internal/k8sreport"
	"github.com/hpctools/mpibind-go/internal/telemetry"
	mpibind "github.com/hpctools/mpibind-go"
)

type options struct {
	configFile    string
	ntasks        int
	nthreads      int
	greedy        bool
	gpuOptim      bool
	smt           int
	restrictIDs   string
	restrictKind  string
	deviceIDSpace string
	printEnv      bool
	metricsAddr   string
	watchConfig   bool
	k8sReportNode string
}

func main() {
	o := &options{}
	app := &cli.App{
		Name:  "mpibind-cli",
		Usage: "topology-aware task, thread, and GPU placement",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config-file", Destination: &o.configFile, EnvVars: []string{"MPIBIND_CONFIG_FILE"}},
			&cli.IntFlag{Name: "ntasks", Value: 1, Destination: &o.ntasks, EnvVars: []string{"MPIBIND_NTASKS"}},
			&cli.IntFlag{Name: "nthreads", Value: 0, Destination: &o.nthreads, EnvVars: []string{"MPIBIND_NTHREADS"}},
			&cli.BoolFlag{Name: "greedy", Value: true, Destination: &o.greedy, EnvVars: []string{"MPIBIND_GREEDY"}},
			&cli.BoolFlag{Name: "gpu-optim", Value: true, Destination: &o.gpuOptim, EnvVars: []string{"MPIBIND_GPU_OPTIM"}},
			&cli.IntFlag{Name: "smt", Value: 0, Destination: &o.smt, EnvVars: []string{"MPIBIND_SMT"}},
			&cli.StringFlag{Name: "restrict-ids", Destination: &o.restrictIDs, EnvVars: []string{"MPIBIND_RESTRICT_IDS"}},
			&cli.StringFlag{Name: "restrict-kind", Value: "cpu", Destination: &o.restrictKind, EnvVars: []string{"MPIBIND_RESTRICT_KIND"}, Usage: "cpu or mem"},
			&cli.StringFlag{Name: "device-id-space", Value: "visdevs", Destination: &o.deviceIDSpace, EnvVars: []string{"MPIBIND_DEVICE_ID_SPACE"}, Usage: "visdevs|index|busid|name|uuid"},
			&cli.BoolFlag{Name: "print-env", Value: false, Destination: &o.printEnv, EnvVars: []string{"MPIBIND_PRINT_ENV"}},
			&cli.StringFlag{Name: "metrics-addr", Destination: &o.metricsAddr, EnvVars: []string{"MPIBIND_METRICS_ADDR"}, Usage: "if set, serves /metrics on this address and exits after one run"},
			&cli.BoolFlag{Name: "watch-config", Destination: &o.watchConfig, EnvVars: []string{"MPIBIND_WATCH_CONFIG"}, Usage: "after printing the mapping, block until config-file changes, then exit 0 (for an external supervisor to restart the process and recompute; the engine itself never remaps after a run)"},
			&cli.StringFlag{Name: "k8s-report-node", Destination: &o.k8sReportNode, EnvVars: []string{"MPIBIND_K8S_REPORT_NODE"}, Usage: "if set, publish the computed mapping as an annotation on this Kubernetes node via in-cluster credentials"},
		},
		Action: func(c *cli.Context) error {
			return run(c.Context, o)
		},
	}

	if err := app.Run(os.Args); err != nil {
		klog.Error(err)
		os.Exit(1)
	}
}

func run(ctx context.Context, o *options) error {
	cfg, err := config.Load(o.configFile)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	applyFlagOverrides(cfg, o)

	if o.metricsAddr != "" {
		go func() {
			http.Handle("/metrics", promhttp.Handler())
			klog.Infof("serving metrics on %s", o.metricsAddr)
			if err := http.ListenAndServe(o.metricsAddr, nil); err != nil {
				klog.Errorf("metrics server stopped: %v", err)
			}
		}()
	}

	h := mpibind.NewHandle().
		SetNTasks(cfg.NTasks).
		SetNThreads(cfg.NThreads).
		SetGreedy(cfg.Greedy).
		SetGPUOptim(cfg.GPUOptim).
		SetSMT(cfg.SMT).
		SetDeviceIDSpace(cfg.DeviceIDSpaceValue())

	if cfg.RestrictIDs != "" {
		kind := mpibind.RestrictCPU
		if strings.EqualFold(cfg.RestrictKind, "mem") {
			kind = mpibind.RestrictMEM
		}
		h.SetRestrict(cfg.RestrictIDs, kind)
	}
	defer h.Destroy()

	start := time.Now()
	runErr := h.Run(ctx)
	vendor, _ := h.GPUVendor()
	gpusByVendor := map[string]int{}
	if runErr == nil && vendor != "" {
		total := 0
		for i := 0; i < h.NTasks(); i++ {
			gs, _ := h.GPUSet(i)
			total += len(gs)
		}
		gpusByVendor[vendor] = total
	}
	telemetry.ObserveRun(time.Since(start).Seconds(), h.NTasks(), gpusByVendor, runErr)
	if runErr != nil {
		return fmt.Errorf("run failed: %w", runErr)
	}

	mapping, err := h.MappingString()
	if err != nil {
		return err
	}
	fmt.Print(mapping)

	if o.printEnv {
		printEnv(h)
	}

	if o.k8sReportNode != "" {
		publishK8sReport(ctx, h, o.k8sReportNode)
	}

	if o.watchConfig && o.configFile != "" {
		waitForConfigChange(o.configFile)
	}
	return nil
}

// waitForConfigChange blocks until configFile is written or recreated, then
// returns so the process can exit and be restarted by its supervisor. The
// engine never remaps a job once Run has completed; re-running the process
// is how a changed config takes effect.
func waitForConfigChange(configFile string) {
	stop := make(chan struct{})
	changed := make(chan struct{}, 1)
	if err := config.Watch(configFile, stop, func() {
		select {
		case changed <- struct{}{}:
		default:
		}
	}); err != nil {
		klog.Errorf("watch-config: %v", err)
		return
	}
	klog.Infof("watch-config: blocking until %s changes", configFile)
	<-changed
	close(stop)
}

// publishK8sReport annotates nodeName with a summary of the computed
// mapping, using in-cluster service account credentials. A failure here
// is logged, not fatal: the placement already succeeded and was printed.
func publishK8sReport(ctx context.Context, h *mpibind.Handle, nodeName string) {
	sink, err := k8sreport.NewInClusterSink(nodeName)
	if err != nil {
		klog.Errorf("k8s-report-node: %v", err)
		return
	}
	if err := sink.Publish(ctx, k8sReportSummary(h)); err != nil {
		klog.Errorf("k8s-report-node: %v", err)
	}
}

// k8sReportSummary builds the annotation payload for publishK8sReport from
// a Handle that has already run.
func k8sReportSummary(h *mpibind.Handle) k8sreport.Summary {
	ntasks := h.NTasks()
	summary := k8sreport.Summary{
		NTasks:   ntasks,
		CPUSets:  make([]string, ntasks),
		GPUCount: make([]int, ntasks),
	}
	for i := 0; i < ntasks; i++ {
		cs, err := h.CPUSet(i)
		if err == nil {
			summary.CPUSets[i] = cs.String()
		}
		gs, err := h.GPUSet(i)
		if err == nil {
			summary.GPUCount[i] = len(gs)
		}
	}
	return summary
}

func printEnv(h *mpibind.Handle) {
	vars, err := h.EnvVars()
	if err != nil {
		klog.Errorf("printing env vars: %v", err)
		return
	}
	for _, v := range vars {
		for i, value := range v.Values {
			fmt.Printf("task %d: %s=%s\n", i, v.Name, value)
		}
	}
}

func applyFlagOverrides(cfg *config.Config, o *options) {
	cfg.NTasks = o.ntasks
	cfg.NThreads = o.nthreads
	cfg.Greedy = o.greedy
	cfg.GPUOptim = o.gpuOptim
	cfg.SMT = o.smt
	if o.restrictIDs != "" {
		cfg.RestrictIDs = o.restrictIDs
	}
	if o.restrictKind != "" {
		cfg.RestrictKind = o.restrictKind
	}
	if o.deviceIDSpace != "" {
		cfg.DeviceIDSpace = o.deviceIDSpace
	}
}
