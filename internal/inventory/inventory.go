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

// Package inventory builds the engine's Device table from a topology's OS
// devices (spec.md §4.2). It generalizes the teacher's
// internal/rm/devices.go two-resource-class walk (buildGPUDeviceMap /
// buildMigDeviceMap, one pass building the table and a second pass
// decorating it) from "Kubernetes device-plugin resource classes" into
// "PCI bus-id-keyed device table spanning GPU and NIC kinds."
package inventory

import (
	"fmt"
	"strconv"
	"strings"

	"k8s.io/klog/v2"

	"github.com/hpctools/mpibind-go/internal/logger"
	"github.com/hpctools/mpibind-go/internal/topology"
)

// Kind distinguishes the two device kinds the engine tracks.
type Kind int

const (
	GPU Kind = iota
	NIC
)

func (k Kind) String() string {
	if k == NIC {
		return "NIC"
	}
	return "GPU"
}

// Device is one entry of the engine's Device table (spec.md §3).
type Device struct {
	PCIBusID string
	Kind     Kind
	VendorID uint16
	Ancestor topology.ObjectID

	// VisdevsID is the small nonnegative id parsed from the device's
	// application-visible name (cuda<N>, opencl<P>d<D> -> D); -1 if
	// unknown.
	VisdevsID int
	// SMIID is the alternate small id filled in by pass 2 from a
	// GPU-management OS device (rsmi<N>, nvml<N>); -1 if unknown.
	SMIID int
	UUID  string
	Name  string
}

const (
	vendorAMD    = 0x1002
	vendorNVIDIA = 0x10de
)

// Build runs the two-pass scan of spec.md §4.2 over p's OS devices and
// returns the resulting Device table in pass-1 (canonical mpibind
// enumeration) order.
func Build(p topology.Provider) []Device {
	var table []Device
	index := map[string]int{} // PCI bus id -> table index

	for _, dev := range p.OSDevices() {
		if dev.Kind != topology.OSDevCoProcessor && dev.Kind != topology.OSDevOpenFabrics {
			continue
		}
		if !dev.HasPCI {
			logger.Warningf("inventory: device %q has no PCI parent, skipping", dev.Name)
			continue
		}
		if _, exists := index[dev.PCI.BusID]; exists {
			continue
		}

		d := Device{
			PCIBusID:  dev.PCI.BusID,
			VendorID:  dev.PCI.VendorID,
			Name:      dev.Name,
			VisdevsID: -1,
			SMIID:     -1,
		}
		if dev.NonIOAncestor != nil {
			d.Ancestor = dev.NonIOAncestor.ID()
		}
		if dev.Kind == topology.OSDevOpenFabrics {
			d.Kind = NIC
			d.UUID = dev.Info["NodeGUID"]
		} else {
			d.Kind = GPU
			d.VisdevsID = parseVisdevsID(dev.Name)
		}

		index[dev.PCI.BusID] = len(table)
		table = append(table, d)
	}

	for _, dev := range p.OSDevices() {
		if dev.Kind != topology.OSDevGPU {
			continue
		}
		if !dev.HasPCI {
			klog.V(2).Infof("inventory: management device %q has no PCI parent, skipping", dev.Name)
			continue
		}
		idx, ok := index[dev.PCI.BusID]
		if !ok {
			// A management-only view with no Pass 1 peer must not create
			// a new inventory entry (spec.md §4.2).
			continue
		}
		table[idx].SMIID = parseSMIID(dev.Name)
		if uuid := vendorUUID(dev); uuid != "" {
			table[idx].UUID = uuid
		}
	}

	return table
}

// GPUVendorString returns the visibility-variable vendor prefix for a GPU
// vendor id, or "" if unrecognized (spec.md §6.3).
func GPUVendorString(vendorID uint16) string {
	switch vendorID {
	case vendorAMD:
		return "ROCR"
	case vendorNVIDIA:
		return "CUDA"
	default:
		return ""
	}
}

func parseVisdevsID(name string) int {
	switch {
	case strings.HasPrefix(name, "cuda"):
		return atoiOr(-1, strings.TrimPrefix(name, "cuda"))
	case strings.HasPrefix(name, "opencl"):
		if i := strings.Index(name, "d"); i >= 0 {
			return atoiOr(-1, name[i+1:])
		}
		return -1
	default:
		return -1
	}
}

func parseSMIID(name string) int {
	switch {
	case strings.HasPrefix(name, "rsmi"):
		return atoiOr(-1, strings.TrimPrefix(name, "rsmi"))
	case strings.HasPrefix(name, "nvml"):
		return atoiOr(-1, strings.TrimPrefix(name, "nvml"))
	default:
		return -1
	}
}

func vendorUUID(dev topology.OSDevice) string {
	for _, key := range []string{"NVIDIAUUID", "AMDUUID"} {
		if v, ok := dev.Info[key]; ok && v != "" {
			return v
		}
	}
	return ""
}

func atoiOr(fallback int, s string) int {
	v, err := strconv.Atoi(s)
	if err != nil {
		return fallback
	}
	return v
}

// ByAncestor returns the indices into table of every device of the given
// kind whose ancestor is anc, in table order (used by internal/gpumatch).
func ByAncestor(table []Device, anc topology.ObjectID, kind Kind) []int {
	var out []int
	for i, d := range table {
		if d.Kind == kind && d.Ancestor == anc {
			out = append(out, i)
		}
	}
	return out
}

// HasAny reports whether table contains at least one device of kind.
func HasAny(table []Device, kind Kind) bool {
	for _, d := range table {
		if d.Kind == kind {
			return true
		}
	}
	return false
}

// String renders a Device for debugging/logging.
func (d Device) String() string {
	return fmt.Sprintf("%s(bus=%s,vendor=%#04x,visdevs=%d,smi=%d,uuid=%s)",
		d.Kind, d.PCIBusID, d.VendorID, d.VisdevsID, d.SMIID, d.UUID)
}
