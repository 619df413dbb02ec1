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

// Package envproj projects a computed task mapping into per-task
// environment variable values (spec.md §6.3). Grounded on the teacher's
// internal/plugin/server.go Envs map[string]string assembly for its
// Allocate RPC response, generalized from a single per-request env map
// into a table covering ntasks values each.
package envproj

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/hpctools/mpibind-go/internal/cpuset"
	"github.com/hpctools/mpibind-go/internal/inventory"
)

// DeviceIDSpace selects the identifier space used to render gpuset
// entries in the visibility variable (spec.md §6.3).
type DeviceIDSpace int

const (
	// DeviceIDVisdevs is the default: the device's application-visible
	// visdevs_id.
	DeviceIDVisdevs DeviceIDSpace = iota
	DeviceIDIndex
	DeviceIDBusID
	DeviceIDName
	DeviceIDUUID
)

const (
	VarNumThreads = "OMP_NUM_THREADS"
	VarPlaces     = "OMP_PLACES"
	VarProcBind   = "OMP_PROC_BIND"
)

// Var is one environment variable name plus its per-task values.
type Var struct {
	Name   string
	Values []string
}

// Project builds the environment variables of spec.md §6.3 for ntasks
// tasks, given their cpusets, gpusets (device-table indices), thread
// counts, the device table, and the selected device-id space.
func Project(cpusets []cpuset.Set, gpusets [][]int, nthreads []int, table []inventory.Device, idSpace DeviceIDSpace) []Var {
	ntasks := len(cpusets)

	numThreads := make([]string, ntasks)
	places := make([]string, ntasks)
	procBind := make([]string, ntasks)
	for i := 0; i < ntasks; i++ {
		numThreads[i] = strconv.Itoa(nthreads[i])
		places[i] = formatPlaces(cpusets[i])
		procBind[i] = "spread"
	}

	vars := []Var{
		{Name: VarNumThreads, Values: numThreads},
		{Name: VarPlaces, Values: places},
		{Name: VarProcBind, Values: procBind},
	}

	if name, values, ok := visibilityVar(gpusets, table, idSpace); ok {
		vars = append(vars, Var{Name: name, Values: values})
	}

	return vars
}

func formatPlaces(s cpuset.Set) string {
	pus := s.List()
	parts := make([]string, len(pus))
	for i, p := range pus {
		parts[i] = fmt.Sprintf("{%d}", p)
	}
	return strings.Join(parts, ",")
}

func visibilityVar(gpusets [][]int, table []inventory.Device, idSpace DeviceIDSpace) (string, []string, bool) {
	vendorID, ok := dominantGPUVendor(gpusets, table)
	if !ok {
		return "", nil, false
	}
	prefix := inventory.GPUVendorString(vendorID)
	if prefix == "" {
		return "", nil, false
	}

	values := make([]string, len(gpusets))
	for i, idxs := range gpusets {
		ids := make([]string, len(idxs))
		for j, idx := range idxs {
			ids[j] = deviceID(table[idx], idx, idSpace)
		}
		values[i] = strings.Join(ids, ",")
	}
	return prefix + "_VISIBLE_DEVICES", values, true
}

// dominantGPUVendor returns the PCI vendor id of the first GPU referenced
// by any task, or false if no GPUs are present at all.
func dominantGPUVendor(gpusets [][]int, table []inventory.Device) (uint16, bool) {
	for _, idxs := range gpusets {
		for _, idx := range idxs {
			return table[idx].VendorID, true
		}
	}
	return 0, false
}

func deviceID(d inventory.Device, index int, space DeviceIDSpace) string {
	switch space {
	case DeviceIDIndex:
		return strconv.Itoa(index)
	case DeviceIDBusID:
		return d.PCIBusID
	case DeviceIDName:
		return d.Name
	case DeviceIDUUID:
		return d.UUID
	default:
		if d.VisdevsID >= 0 {
			return strconv.Itoa(d.VisdevsID)
		}
		return strconv.Itoa(index)
	}
}
