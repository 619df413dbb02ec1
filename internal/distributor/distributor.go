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

// Package distributor is the engine's top-level orchestrator (spec.md
// §4.6): it splits tasks across NUMA domains and invokes the CPU and GPU
// matchers. Grounded on the teacher's internal/rm/rm.go resourceManager
// (iterate candidate resources, invoke a per-resource allocator, assemble
// one response), generalized here from "per Kubernetes resource name" to
// "per NUMA domain."
package distributor

import (
	"fmt"
	"sort"

	"github.com/hpctools/mpibind-go/internal/cpumatch"
	"github.com/hpctools/mpibind-go/internal/cpuset"
	"github.com/hpctools/mpibind-go/internal/distrib"
	"github.com/hpctools/mpibind-go/internal/gpumatch"
	"github.com/hpctools/mpibind-go/internal/inventory"
	"github.com/hpctools/mpibind-go/internal/mpibinderr"
	"github.com/hpctools/mpibind-go/internal/topology"
)

// Inputs bundles the distributor's request (spec.md §6.2 subset that
// affects C6/C4/C5).
type Inputs struct {
	NTasks     int
	NThreadsIn int
	Greedy     bool
	GPUOptim   bool
	SMT        int
}

// Mapping is the full per-task output of Run (spec.md §3 Handle outputs).
type Mapping struct {
	CPUSets  []cpuset.Set
	GPUSets  [][]int // device-table indices, per task
	NThreads []int
}

// Run validates inputs and produces the full task mapping over p and
// table.
func Run(p topology.Provider, table []inventory.Device, in Inputs) (Mapping, error) {
	numas := numaObjects(p)
	if len(numas) == 0 {
		return Mapping{}, fmt.Errorf("%w: topology has no NUMA domains", mpibinderr.ErrTopologyUnusable)
	}
	if in.NTasks <= 0 {
		return Mapping{}, fmt.Errorf("%w: ntasks must be >= 1, got %d", mpibinderr.ErrInvalidInput, in.NTasks)
	}
	if in.NThreadsIn < 0 {
		return Mapping{}, fmt.Errorf("%w: nthreads must be >= 0, got %d", mpibinderr.ErrInvalidInput, in.NThreadsIn)
	}
	hwSMT := topology.HardwareSMT(p)
	if in.SMT < 0 || in.SMT > hwSMT {
		return Mapping{}, fmt.Errorf("%w: smt must be in [0, %d], got %d", mpibinderr.ErrInvalidInput, hwSMT, in.SMT)
	}

	if in.Greedy && in.NTasks < len(numas) {
		return runGreedy(p, table, numas, in)
	}
	return runMemoryHierarchy(p, table, numas, in)
}

func runGreedy(p topology.Provider, table []inventory.Device, numas []topology.Object, in Inputs) (Mapping, error) {
	buckets := distrib.FillBuckets(numas, in.NTasks)

	m := Mapping{
		CPUSets:  make([]cpuset.Set, in.NTasks),
		GPUSets:  make([][]int, in.NTasks),
		NThreads: make([]int, in.NTasks),
	}
	for i, assigned := range buckets {
		cpus := cpuset.Empty()
		var gpus []int
		for _, n := range assigned {
			cpus = cpus.Union(n.CPUSet())
			gpus = append(gpus, inventory.ByAncestor(table, n.ID(), inventory.GPU)...)
		}
		m.CPUSets[i] = cpus
		m.GPUSets[i] = gpus
		m.NThreads[i] = cpus.Cardinality()
	}
	return m, nil
}

func runMemoryHierarchy(p topology.Provider, table []inventory.Device, numas []topology.Object, in Inputs) (Mapping, error) {
	candidates := numas
	if in.GPUOptim && inventory.HasAny(table, inventory.GPU) {
		candidates = filterGPUBearing(table, numas)
	}
	if len(candidates) == 0 {
		return Mapping{}, fmt.Errorf("%w: no candidate NUMA domains (gpu_optim excluded all of them)", mpibinderr.ErrTopologyUnusable)
	}

	counts := distrib.Balanced(in.NTasks, len(candidates))

	m := Mapping{
		CPUSets:  make([]cpuset.Set, in.NTasks),
		GPUSets:  make([][]int, in.NTasks),
		NThreads: make([]int, in.NTasks),
	}

	task := 0
	for i, n := range counts {
		if n == 0 {
			continue
		}
		cand := candidates[i]

		cr, err := cpumatch.Match(p, cand, n, in.NThreadsIn, in.SMT)
		if err != nil {
			return Mapping{}, err
		}
		gr := gpumatch.Match(table, cand.ID(), n)

		for j := 0; j < n; j++ {
			m.CPUSets[task] = cr.CPUSets[j]
			m.GPUSets[task] = gr[j]
			m.NThreads[task] = cr.NThreadsOut
			task++
		}
	}
	return m, nil
}

func numaObjects(p topology.Provider) []topology.Object {
	objs := p.ObjectsByType(topology.ObjNUMANode)
	sort.Slice(objs, func(i, j int) bool { return objs[i].OSIndex() < objs[j].OSIndex() })
	return objs
}

func filterGPUBearing(table []inventory.Device, numas []topology.Object) []topology.Object {
	var out []topology.Object
	for _, n := range numas {
		if len(inventory.ByAncestor(table, n.ID(), inventory.GPU)) > 0 {
			out = append(out, n)
		}
	}
	return out
}
