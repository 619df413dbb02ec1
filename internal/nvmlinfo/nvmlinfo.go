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

// Package nvmlinfo is an optional NVML enrichment pass over a device
// inventory: when NVML initializes successfully, it fills Device.UUID for
// NVIDIA GPUs with NVML's authoritative UUID rather than whatever hwloc's
// NVIDIAUUID info key reported. Grounded on the teacher's
// internal/resource/nvml-device.go PCI-bus-id-keyed device lookup
// (GetClass/resolvePCIAddressToClass), generalized here from "per-device
// Kubernetes resource wrapper" to "fill one field of an existing table
// entry, keyed by bus id."
package nvmlinfo

import (
	"strings"

	"github.com/NVIDIA/go-nvml/pkg/nvml"

	"github.com/hpctools/mpibind-go/internal/inventory"
	"github.com/hpctools/mpibind-go/internal/logger"
)

// Enrich fills table's NVIDIA GPU UUIDs from NVML, keyed by PCI bus id.
// Any NVML failure (library absent, init failure, no devices) degrades
// silently and leaves table unchanged, per spec.md §7's "warnings don't
// fail the run" for device-enumeration anomalies.
func Enrich(table []inventory.Device) {
	if ret := nvml.Init(); ret != nvml.SUCCESS {
		logger.Warningf("nvmlinfo: NVML init unavailable, skipping enrichment: %v", nvml.ErrorString(ret))
		return
	}
	defer nvml.Shutdown()

	count, ret := nvml.DeviceGetCount()
	if ret != nvml.SUCCESS {
		logger.Warningf("nvmlinfo: getting device count: %v", nvml.ErrorString(ret))
		return
	}

	byBus := make(map[string]int, len(table))
	for i, d := range table {
		byBus[normalizeBusID(d.PCIBusID)] = i
	}

	for i := 0; i < count; i++ {
		dev, ret := nvml.DeviceGetHandleByIndex(i)
		if ret != nvml.SUCCESS {
			continue
		}
		info, ret := dev.GetPciInfo()
		if ret != nvml.SUCCESS {
			continue
		}
		bus := normalizeBusID(busIDString(info.BusId[:]))
		idx, ok := byBus[bus]
		if !ok {
			continue
		}
		if uuid, ret := dev.GetUUID(); ret == nvml.SUCCESS {
			table[idx].UUID = uuid
		}
	}
}

func busIDString(raw []int8) string {
	var b []byte
	for _, c := range raw {
		if c == 0 {
			break
		}
		b = append(b, byte(c))
	}
	return string(b)
}

func normalizeBusID(s string) string {
	return strings.ToLower(strings.TrimPrefix(s, "0000:"))
}
