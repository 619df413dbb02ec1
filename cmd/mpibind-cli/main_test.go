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

package main

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes/fake"

	"github.com/hpctools/mpibind-go/internal/config"
	"github.com/hpctools/mpibind-go/internal/k8sreport"
	"github.com/hpctools/mpibind-go/internal/topology"
	mpibind "github.com/hpctools/mpibind-go"
)

func TestApplyFlagOverrides(t *testing.T) {
	cfg := config.Default()
	o := &options{
		ntasks:        4,
		nthreads:      2,
		greedy:        false,
		gpuOptim:      false,
		smt:           2,
		restrictIDs:   "0-7",
		restrictKind:  "mem",
		deviceIDSpace: "uuid",
	}
	applyFlagOverrides(cfg, o)

	require.Equal(t, 4, cfg.NTasks)
	require.Equal(t, 2, cfg.NThreads)
	require.False(t, cfg.Greedy)
	require.False(t, cfg.GPUOptim)
	require.Equal(t, 2, cfg.SMT)
	require.Equal(t, "0-7", cfg.RestrictIDs)
	require.Equal(t, "mem", cfg.RestrictKind)
	require.Equal(t, "uuid", cfg.DeviceIDSpace)
}

func TestApplyFlagOverridesKeepsConfigDefaultsForBlankStrings(t *testing.T) {
	cfg := config.Default()
	cfg.RestrictIDs = "2-3"
	o := &options{restrictKind: "", deviceIDSpace: ""}
	applyFlagOverrides(cfg, o)

	require.Equal(t, "2-3", cfg.RestrictIDs)
	require.Equal(t, "cpu", cfg.RestrictKind)
	require.Equal(t, "visdevs", cfg.DeviceIDSpace)
}

func TestRunEndToEndWithSyntheticTopology(t *testing.T) {
	p := topology.NewSynthetic(1, 2, 2, 1, 0, nil)
	h := mpibind.NewHandle().WithTopology(p).SetNTasks(2).SetNVMLEnrichment(false)
	require.NoError(t, h.Run(context.Background()))

	mapping, err := h.MappingString()
	require.NoError(t, err)
	require.Contains(t, mapping, "task 0:")
	require.Contains(t, mapping, "task 1:")
}

func TestK8sReportSummaryAndPublish(t *testing.T) {
	p := topology.NewSynthetic(1, 2, 2, 1, 0, nil)
	h := mpibind.NewHandle().WithTopology(p).SetNTasks(2).SetNVMLEnrichment(false)
	require.NoError(t, h.Run(context.Background()))

	summary := k8sReportSummary(h)
	require.Equal(t, 2, summary.NTasks)
	require.Len(t, summary.CPUSets, 2)
	require.Len(t, summary.GPUCount, 2)

	node := &corev1.Node{ObjectMeta: metav1.ObjectMeta{Name: "node-a"}}
	client := fake.NewSimpleClientset(node)
	sink := k8sreport.NewSink(client, "node-a")
	require.NoError(t, sink.Publish(context.Background(), summary))
}
