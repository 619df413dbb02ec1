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

// Package topology defines the narrow capability interface the engine
// needs over a hardware topology (spec.md §4.1), plus the implementations
// that satisfy it: a live hwloc-backed provider and an in-memory synthetic
// provider used by tests. The teacher's dead root-level topology.go reached
// for the same Go hwloc binding (github.com/gpucloud/gohwloc) to sketch a
// PCI device tree; this package generalizes that sketch into the full
// operation set spec.md §4.1 requires.
package topology

import "github.com/hpctools/mpibind-go/internal/cpuset"

// ObjectType is the normal-object or I/O-device type tag hwloc exposes.
type ObjectType int

const (
	ObjMachine ObjectType = iota
	ObjPackage
	ObjNUMANode
	ObjCore
	ObjPU
	ObjBridge
	ObjPCIDevice
	ObjOSDevice
	ObjGroup
)

func (t ObjectType) String() string {
	switch t {
	case ObjMachine:
		return "Machine"
	case ObjPackage:
		return "Package"
	case ObjNUMANode:
		return "NUMANode"
	case ObjCore:
		return "Core"
	case ObjPU:
		return "PU"
	case ObjBridge:
		return "Bridge"
	case ObjPCIDevice:
		return "PCIDevice"
	case ObjOSDevice:
		return "OSDevice"
	case ObjGroup:
		return "Group"
	default:
		return "Unknown"
	}
}

// OSDeviceKind distinguishes the OS device subtypes the engine cares about.
// Every other OS device kind (block, network, DMA, ...) is ignored.
type OSDeviceKind int

const (
	OSDevOther OSDeviceKind = iota
	OSDevCoProcessor
	OSDevGPU
	OSDevOpenFabrics
)

// ObjectID is an opaque identity for a normal (non-I/O) topology object,
// stable for the lifetime of one loaded topology. The device inventory
// (internal/inventory) stores only this identity for a device's ancestor,
// never a live reference back into the topology (spec.md §9 "no cyclic
// ownership").
type ObjectID uint64

// PUSet is the PU-index bit set of a topology object.
type PUSet = cpuset.Set

// NodeSet is the NUMA os-index bit set of a topology object.
type NodeSet = cpuset.Set

// Object is a read-only view of one normal topology object: Machine,
// Package, NUMA parent, Core, or PU.
type Object interface {
	ID() ObjectID
	Type() ObjectType
	Depth() int
	OSIndex() int
	CPUSet() PUSet
	NodeSet() NodeSet
	Parent() (Object, bool)
	Children() []Object
	Arity() int
}

// PCIInfo holds the PCI attributes of an I/O device's PCI parent.
type PCIInfo struct {
	BusID    string // "dddd:bb:dd.f"
	VendorID uint16
}

// OSDevice is a read-only view of one OS device attached under a PCI
// object.
type OSDevice struct {
	Kind    OSDeviceKind
	Name    string // e.g. "cuda0", "opencl0d1", "rsmi0", "nvml0"
	Subtype string
	PCI     PCIInfo
	HasPCI  bool
	Info    map[string]string // AMDUUID, NVIDIAUUID, NodeGUID, GPUVendor, ...
	// NonIOAncestor is the nearest normal (non-I/O, non-memory) ancestor
	// of this device, used by the device inventory to key GPUs/NICs to a
	// NUMA/package neighborhood.
	NonIOAncestor Object
}

// RestrictKind selects whether a restriction is interpreted as a CPU set
// or a NUMA node set (spec.md §4.8).
type RestrictKind int

const (
	RestrictCPU RestrictKind = iota
	RestrictMEM
)

// Provider is the capability bundle the engine requires from a hardware
// topology (spec.md §4.1). Implementations: the live hwloc-backed provider
// in provider_hwloc.go and the synthetic provider in synthetic.go.
type Provider interface {
	// Version reports the provider's API version string; Load rejects a
	// provider whose version predates what the engine was built against.
	Version() string

	// ObjectsByDepth returns every normal object at the given depth.
	ObjectsByDepth(depth int) []Object
	// ObjectsByType returns every normal object of the given type, in a
	// stable order.
	ObjectsByType(t ObjectType) []Object
	// Depth returns the depth at which objects of type t are found, or
	// -1 if the topology has none (e.g. no explicit Core objects after
	// structural filtering).
	Depth(t ObjectType) int
	// MaxDepth returns the deepest normal-object depth in the topology.
	MaxDepth() int

	// OSDevices enumerates every OS device in the topology, in a stable,
	// provider-defined order (the canonical mpibind enumeration order is
	// derived from this by internal/inventory).
	OSDevices() []OSDevice

	// Restrict prunes the topology in place to the given PU set (kind
	// CPU) or NUMA set (kind MEM), removing cpuless/memless objects.
	Restrict(kind RestrictKind, pus PUSet, nodes NodeSet) error

	// CurrentCPUBinding returns the calling process's current CPU
	// binding, used to restrict a freshly self-discovered topology to
	// the resources actually available to this process (spec.md §9).
	CurrentCPUBinding() (PUSet, error)

	// SetCPUBinding binds the calling thread/process's CPU affinity to
	// the given PU set, used by Handle.Apply.
	SetCPUBinding(set PUSet) error

	// Destroy releases provider-owned resources. Safe to call multiple
	// times.
	Destroy()
}
