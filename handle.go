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

// Package mpibind is a topology-aware task, thread, and GPU placement
// engine: given a hardware topology and a task count, it computes
// per-task CPU sets, GPU visibility lists, and thread counts, and
// projects them into the environment variables a launcher hands to each
// task (spec.md §1).
//
// Handle is the engine's opaque configuration and output object, in the
// teacher's api/config/v1.Config idiom: private fields, typed setters,
// and a single validating entry point (here, Run) rather than exported
// mutable state.
package mpibind

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/hpctools/mpibind-go/internal/cpuset"
	"github.com/hpctools/mpibind-go/internal/distributor"
	"github.com/hpctools/mpibind-go/internal/envproj"
	"github.com/hpctools/mpibind-go/internal/inventory"
	"github.com/hpctools/mpibind-go/internal/mpibinderr"
	"github.com/hpctools/mpibind-go/internal/nvmlinfo"
	"github.com/hpctools/mpibind-go/internal/restrict"
	"github.com/hpctools/mpibind-go/internal/topology"
)

// RestrictKind selects whether RestrictIDs is interpreted as a CPU or
// memory (NUMA) restriction (spec.md §6.2).
type RestrictKind = restrict.Kind

const (
	RestrictCPU = restrict.CPU
	RestrictMEM = restrict.MEM
)

// Handle is the mutable mapping job of spec.md §3/§4.7. It is created
// with NewHandle, configured via its setters, run exactly once via Run,
// and read afterward via its getters and environment projection.
type Handle struct {
	mu sync.Mutex

	// inputs, defaults per spec.md §4.7.
	ntasks       int
	nthreadsIn   int
	greedy       bool
	gpuOptim     bool
	smt          int
	restrictIDs  string
	restrictKind RestrictKind
	explicitTopo topology.Provider
	deviceIDSpace envproj.DeviceIDSpace
	enrichNVML   bool

	// state.
	ran       bool
	ownsTopo  bool
	topo      topology.Provider
	devices   []inventory.Device
	mapping   distributor.Mapping
	envVars   []envproj.Var
}

// NewHandle returns an empty Handle with the defaults of spec.md §4.7:
// ntasks=0, nthreads_in=0, greedy=true, gpu_optim=true, smt=0,
// restrict=none, restrict_kind=CPU, topo=none.
func NewHandle() *Handle {
	return &Handle{
		greedy:        true,
		gpuOptim:      true,
		restrictKind:  RestrictCPU,
		deviceIDSpace: envproj.DeviceIDVisdevs,
		enrichNVML:    true,
	}
}

// SetNTasks sets the number of task slots. Required; validated in Run.
func (h *Handle) SetNTasks(n int) *Handle {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.ntasks = n
	return h
}

// SetNThreads fixes the thread count per task; 0 means "engine chooses".
func (h *Handle) SetNThreads(n int) *Handle {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.nthreadsIn = n
	return h
}

// SetGreedy toggles single-task-spans-node behavior (spec.md §6.2).
func (h *Handle) SetGreedy(v bool) *Handle {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.greedy = v
	return h
}

// SetGPUOptim toggles restricting candidate NUMAs to GPU-bearing ones.
func (h *Handle) SetGPUOptim(v bool) *Handle {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.gpuOptim = v
	return h
}

// SetSMT forces a specific PUs-per-core count; 0 means "engine chooses".
func (h *Handle) SetSMT(n int) *Handle {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.smt = n
	return h
}

// SetRestrict sets a restriction spec (inline range list or file path)
// and the kind it is interpreted as (spec.md §4.8).
func (h *Handle) SetRestrict(spec string, kind RestrictKind) *Handle {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.restrictIDs = spec
	h.restrictKind = kind
	return h
}

// RestrictIDs returns the restriction spec set by SetRestrict, or "" if
// none was set.
func (h *Handle) RestrictIDs() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.restrictIDs
}

// RestrictKind returns the restriction kind set by SetRestrict.
func (h *Handle) RestrictKind() RestrictKind {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.restrictKind
}

// WithTopology supplies a pre-loaded topology. The engine does not
// restrict it to the current process's CPU binding and does not own it
// (spec.md §5, §6.1); a restriction set with SetRestrict is still applied
// to it, in place, by Run.
func (h *Handle) WithTopology(p topology.Provider) *Handle {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.explicitTopo = p
	return h
}

// SetDeviceIDSpace selects the identifier space used to render gpuset
// entries in the visibility environment variable (spec.md §6.3). Default
// is DeviceIDVisdevs.
func (h *Handle) SetDeviceIDSpace(space envproj.DeviceIDSpace) *Handle {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.deviceIDSpace = space
	return h
}

// SetNVMLEnrichment toggles the optional NVML enrichment pass over the
// device inventory. Enabled by default; disabling it avoids the NVML
// init cost when callers only need hwloc-reported fields.
func (h *Handle) SetNVMLEnrichment(v bool) *Handle {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.enrichNVML = v
	return h
}

// Run resolves the topology, applies any restriction, builds the device
// inventory, and computes the full task mapping. It may be called
// exactly once per Handle; a second call returns
// mpibinderr.ErrAlreadyRun. ctx is checked once, before the optional NVML
// enrichment pass, which is skipped if ctx is already done; topology
// loading and the distribution itself do not observe ctx.
func (h *Handle) Run(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.ran {
		return mpibinderr.ErrAlreadyRun
	}
	if ctx == nil {
		ctx = context.Background()
	}

	topo, owns, err := topology.Load(topology.LoadOptions{Explicit: h.explicitTopo})
	if err != nil {
		return err
	}

	if h.restrictIDs != "" {
		set, err := restrict.Resolve(h.restrictIDs)
		if err != nil {
			return err
		}
		if err := restrict.Apply(topo, h.restrictKind, set); err != nil {
			return err
		}
	}

	table := inventory.Build(topo)
	if h.enrichNVML && inventory.HasAny(table, inventory.GPU) {
		select {
		case <-ctx.Done():
		default:
			nvmlinfo.Enrich(table)
		}
	}

	mapping, err := distributor.Run(topo, table, distributor.Inputs{
		NTasks:     h.ntasks,
		NThreadsIn: h.nthreadsIn,
		Greedy:     h.greedy,
		GPUOptim:   h.gpuOptim,
		SMT:        h.smt,
	})
	if err != nil {
		return err
	}

	h.topo = topo
	h.ownsTopo = owns
	h.devices = table
	h.mapping = mapping
	h.envVars = envproj.Project(mapping.CPUSets, mapping.GPUSets, mapping.NThreads, table, h.deviceIDSpace)
	h.ran = true
	return nil
}

// NTasks returns the number of computed task slots; 0 before Run.
func (h *Handle) NTasks() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.mapping.CPUSets)
}

// CPUSet returns task i's cpuset. Valid only after a successful Run.
func (h *Handle) CPUSet(i int) (cpuset.Set, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.ran {
		return cpuset.Set{}, mpibinderr.ErrNotRun
	}
	if i < 0 || i >= len(h.mapping.CPUSets) {
		return cpuset.Set{}, fmt.Errorf("%w: task index %d out of range", mpibinderr.ErrInvalidInput, i)
	}
	return h.mapping.CPUSets[i], nil
}

// CPUSetInts returns task i's cpuset as a flat, ascending-order slice of
// PU indices (spec.md §4.7 "cached integer-array view").
func (h *Handle) CPUSetInts(i int) ([]int, error) {
	s, err := h.CPUSet(i)
	if err != nil {
		return nil, err
	}
	return s.List(), nil
}

// GPUSet returns task i's gpuset as device-table indices.
func (h *Handle) GPUSet(i int) ([]int, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.ran {
		return nil, mpibinderr.ErrNotRun
	}
	if i < 0 || i >= len(h.mapping.GPUSets) {
		return nil, fmt.Errorf("%w: task index %d out of range", mpibinderr.ErrInvalidInput, i)
	}
	return append([]int(nil), h.mapping.GPUSets[i]...), nil
}

// GPUSetIDs returns task i's gpuset rendered in the given device-id
// space (spec.md §4.7 "cached string-array view").
func (h *Handle) GPUSetIDs(i int, space envproj.DeviceIDSpace) ([]string, error) {
	idxs, err := h.GPUSet(i)
	if err != nil {
		return nil, err
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]string, len(idxs))
	for j, idx := range idxs {
		out[j] = deviceIDString(h.devices[idx], idx, space)
	}
	return out, nil
}

func deviceIDString(d inventory.Device, index int, space envproj.DeviceIDSpace) string {
	switch space {
	case envproj.DeviceIDBusID:
		return d.PCIBusID
	case envproj.DeviceIDName:
		return d.Name
	case envproj.DeviceIDUUID:
		return d.UUID
	case envproj.DeviceIDIndex:
		return fmt.Sprintf("%d", index)
	default:
		if d.VisdevsID >= 0 {
			return fmt.Sprintf("%d", d.VisdevsID)
		}
		return fmt.Sprintf("%d", index)
	}
}

// ThreadCount returns task i's computed thread count.
func (h *Handle) ThreadCount(i int) (int, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.ran {
		return 0, mpibinderr.ErrNotRun
	}
	if i < 0 || i >= len(h.mapping.NThreads) {
		return 0, fmt.Errorf("%w: task index %d out of range", mpibinderr.ErrInvalidInput, i)
	}
	return h.mapping.NThreads[i], nil
}

// EnvVars returns the projected environment variables of spec.md §6.3.
func (h *Handle) EnvVars() ([]envproj.Var, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.ran {
		return nil, mpibinderr.ErrNotRun
	}
	return h.envVars, nil
}

// Apply binds the calling OS thread's CPU affinity to task taskID's
// cpuset (spec.md §4.7).
func (h *Handle) Apply(taskID int) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.ran {
		return mpibinderr.ErrNotRun
	}
	if taskID < 0 || taskID >= len(h.mapping.CPUSets) {
		return fmt.Errorf("%w: task index %d out of range", mpibinderr.ErrInvalidInput, taskID)
	}
	if err := h.topo.SetCPUBinding(h.mapping.CPUSets[taskID]); err != nil {
		return fmt.Errorf("%w: %v", mpibinderr.ErrApplyFailed, err)
	}
	return nil
}

// Destroy releases the topology if the engine owns it (spec.md §5).
func (h *Handle) Destroy() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.ownsTopo && h.topo != nil {
		h.topo.Destroy()
	}
	h.topo = nil
}

// MappingString renders a human-readable one-line-per-task summary of
// the computed mapping, in the spirit of the original implementation's
// mpibind_print_mapping (spec.md §11 supplemented feature).
func (h *Handle) MappingString() (string, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.ran {
		return "", mpibinderr.ErrNotRun
	}
	var b strings.Builder
	for i := range h.mapping.CPUSets {
		fmt.Fprintf(&b, "task %d: nthreads=%d cpus=%s gpus=%v\n",
			i, h.mapping.NThreads[i], h.mapping.CPUSets[i].String(), h.mapping.GPUSets[i])
	}
	return b.String(), nil
}

// PrintMapping writes the same human-readable summary MappingString
// returns directly to w, in the spirit of the original implementation's
// mpibind_print_mapping (spec.md §11).
func (h *Handle) PrintMapping(w io.Writer) error {
	s, err := h.MappingString()
	if err != nil {
		return err
	}
	_, err = io.WriteString(w, s)
	return err
}

// GPUVendor returns the vendor name ("AMD" or "NVIDIA") of the first GPU
// in the device table whose vendor is recognized, or "" if there is none,
// mirroring the original implementation's
// mpibind_get_gpu_type (spec.md §11 supplemented feature).
func (h *Handle) GPUVendor() (string, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.ran {
		return "", mpibinderr.ErrNotRun
	}
	for _, d := range h.devices {
		if d.Kind != inventory.GPU {
			continue
		}
		switch inventory.GPUVendorString(d.VendorID) {
		case "ROCR":
			return "AMD", nil
		case "CUDA":
			return "NVIDIA", nil
		}
	}
	return "", nil
}
