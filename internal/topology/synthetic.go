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

package topology

import (
	"fmt"

	"github.com/hpctools/mpibind-go/internal/cpuset"
)

// Synthetic is an in-memory Provider used by unit tests and by the
// scenario suite in internal/distributor to build the exact topologies
// spec.md §8's S1-S5 scenarios describe, without requiring a real
// machine or hwloc to be present. Its GPUs are all NVIDIA (vendor 0x10de).
type Synthetic struct {
	objects   []*synthObject
	osDevices []OSDevice
	byType    map[ObjectType][]*synthObject
	byDepth   map[int][]*synthObject
	maxDepth  int
}

type synthObject struct {
	id       ObjectID
	typ      ObjectType
	depth    int
	osIndex  int
	cpus     cpuset.Set
	nodes    cpuset.Set
	parent   *synthObject
	children []*synthObject
}

func (o *synthObject) ID() ObjectID      { return o.id }
func (o *synthObject) Type() ObjectType  { return o.typ }
func (o *synthObject) Depth() int        { return o.depth }
func (o *synthObject) OSIndex() int      { return o.osIndex }
func (o *synthObject) CPUSet() PUSet     { return o.cpus }
func (o *synthObject) NodeSet() NodeSet  { return o.nodes }
func (o *synthObject) Arity() int        { return len(o.children) }
func (o *synthObject) Parent() (Object, bool) {
	if o.parent == nil {
		return nil, false
	}
	return o.parent, true
}
func (o *synthObject) Children() []Object {
	out := make([]Object, len(o.children))
	for i, c := range o.children {
		out[i] = c
	}
	return out
}

// NewSynthetic builds a synthetic topology of numNUMA NUMA domains, each
// with coresPerNUMA cores of smt PUs each, all under a single Machine and
// numPackages Packages (NUMA domains are split evenly across packages).
// gpusPerNUMA places that many GPU OS devices under each NUMA domain, with
// the NUMA object as their non-I/O ancestor (for gpuNUMAs == nil, every
// NUMA gets gpusPerNUMA GPUs;
// otherwise only the listed NUMA os-indices do).
func NewSynthetic(numPackages, numNUMA, coresPerNUMA, smt int, gpusPerNUMA int, gpuNUMAs []int) *Synthetic {
	s := &Synthetic{byType: make(map[ObjectType][]*synthObject), byDepth: make(map[int][]*synthObject)}
	var nextID ObjectID
	var nextPU int
	id := func() ObjectID { nextID++; return nextID }

	machine := &synthObject{id: id(), typ: ObjMachine, depth: 0}
	s.add(machine)

	numaPerPkg := distributeEven(numNUMA, numPackages)
	numaIdx := 0
	gpuSet := map[int]bool{}
	for _, n := range gpuNUMAs {
		gpuSet[n] = true
	}
	useAllNUMA := gpuNUMAs == nil

	for pkgI := 0; pkgI < numPackages; pkgI++ {
		pkg := &synthObject{id: id(), typ: ObjPackage, depth: 1, osIndex: pkgI, parent: machine}
		machine.children = append(machine.children, pkg)
		s.add(pkg)

		for j := 0; j < numaPerPkg[pkgI]; j++ {
			numa := &synthObject{id: id(), typ: ObjNUMANode, depth: 2, osIndex: numaIdx, parent: pkg}
			pkg.children = append(pkg.children, numa)
			s.add(numa)

			var numaPUs []int
			for c := 0; c < coresPerNUMA; c++ {
				core := &synthObject{id: id(), typ: ObjCore, depth: 3, osIndex: numaIdx*coresPerNUMA + c, parent: numa}
				numa.children = append(numa.children, core)
				s.add(core)

				var corePUs []int
				for k := 0; k < smt; k++ {
					pu := &synthObject{id: id(), typ: ObjPU, depth: 4, osIndex: nextPU, parent: core}
					core.children = append(core.children, pu)
					s.add(pu)
					corePUs = append(corePUs, nextPU)
					numaPUs = append(numaPUs, nextPU)
					nextPU++
				}
				core.cpus = cpuset.New(corePUs...)
				core.nodes = cpuset.New(numa.osIndex)
			}
			numa.cpus = cpuset.New(numaPUs...)
			numa.nodes = cpuset.New(numa.osIndex)

			if useAllNUMA || gpuSet[numaIdx] {
				for g := 0; g < gpusPerNUMA; g++ {
					s.osDevices = append(s.osDevices, OSDevice{
						Kind:          OSDevCoProcessor,
						Name:          fmt.Sprintf("cuda%d", len(s.osDevices)),
						HasPCI:        true,
						PCI:           PCIInfo{BusID: fmt.Sprintf("0000:%02x:00.0", len(s.osDevices)), VendorID: 0x10de},
						Info:          map[string]string{"NVIDIAUUID": fmt.Sprintf("GPU-%d", len(s.osDevices))},
						NonIOAncestor: numa,
					})
				}
			}

			numaIdx++
		}
	}

	// propagate cpusets/nodesets up to package and machine level.
	for _, pkg := range s.byType[ObjPackage] {
		var pus []int
		for _, numa := range pkg.children {
			pus = append(pus, numa.cpus.List()...)
		}
		pkg.cpus = cpuset.New(pus...)
	}
	var allPUs []int
	for _, p := range s.byType[ObjPU] {
		allPUs = append(allPUs, p.osIndex)
	}
	machine.cpus = cpuset.New(allPUs...)
	var allNodes []int
	for _, n := range s.byType[ObjNUMANode] {
		allNodes = append(allNodes, n.osIndex)
	}
	machine.nodes = cpuset.New(allNodes...)

	s.maxDepth = 4
	return s
}

func distributeEven(n, k int) []int {
	out := make([]int, k)
	base, rem := n/k, n%k
	for i := range out {
		out[i] = base
		if i < rem {
			out[i]++
		}
	}
	return out
}

func (s *Synthetic) add(o *synthObject) {
	s.objects = append(s.objects, o)
	s.byType[o.typ] = append(s.byType[o.typ], o)
	s.byDepth[o.depth] = append(s.byDepth[o.depth], o)
}

func (s *Synthetic) Version() string { return "9.9.9" }

func (s *Synthetic) ObjectsByDepth(depth int) []Object {
	objs := s.byDepth[depth]
	out := make([]Object, len(objs))
	for i, o := range objs {
		out[i] = o
	}
	return out
}

func (s *Synthetic) ObjectsByType(t ObjectType) []Object {
	objs := s.byType[t]
	out := make([]Object, len(objs))
	for i, o := range objs {
		out[i] = o
	}
	return out
}

func (s *Synthetic) Depth(t ObjectType) int {
	objs := s.byType[t]
	if len(objs) == 0 {
		return -1
	}
	return objs[0].depth
}

func (s *Synthetic) MaxDepth() int { return s.maxDepth }

func (s *Synthetic) OSDevices() []OSDevice { return s.osDevices }

func (s *Synthetic) Restrict(kind RestrictKind, pus PUSet, nodes NodeSet) error {
	switch kind {
	case RestrictCPU:
		return s.restrictByPUs(pus)
	case RestrictMEM:
		return s.restrictByNodes(nodes)
	default:
		return fmt.Errorf("topology: unknown restrict kind %v", kind)
	}
}

func (s *Synthetic) restrictByPUs(pus PUSet) error {
	var kept []*synthObject
	for _, o := range s.objects {
		if o.typ == ObjPU {
			if !pus.Test(o.osIndex) {
				continue
			}
		} else if !o.cpus.IsEmpty() && o.cpus.Intersect(pus).IsEmpty() {
			continue
		}
		kept = append(kept, o)
	}
	s.rebuild(kept)
	return nil
}

func (s *Synthetic) restrictByNodes(nodes NodeSet) error {
	var kept []*synthObject
	for _, o := range s.objects {
		if o.typ == ObjNUMANode && !nodes.Test(o.osIndex) {
			continue
		}
		if !o.nodes.IsEmpty() && o.nodes.Intersect(nodes).IsEmpty() {
			continue
		}
		kept = append(kept, o)
	}
	s.rebuild(kept)
	return nil
}

func (s *Synthetic) rebuild(kept []*synthObject) {
	keepSet := make(map[ObjectID]bool, len(kept))
	for _, o := range kept {
		keepSet[o.id] = true
	}

	var keptPUs []int
	for _, o := range kept {
		if o.typ == ObjPU {
			keptPUs = append(keptPUs, o.osIndex)
		}
	}
	puMask := cpuset.New(keptPUs...)

	s.objects = kept
	s.byType = make(map[ObjectType][]*synthObject)
	s.byDepth = make(map[int][]*synthObject)
	for _, o := range kept {
		var filtered []*synthObject
		for _, c := range o.children {
			if keepSet[c.id] {
				filtered = append(filtered, c)
			}
		}
		o.children = filtered
		if o.typ != ObjPU {
			o.cpus = o.cpus.Intersect(puMask)
		}
		s.byType[o.typ] = append(s.byType[o.typ], o)
		s.byDepth[o.depth] = append(s.byDepth[o.depth], o)
	}
	var devs []OSDevice
	for _, d := range s.osDevices {
		if anc, ok := d.NonIOAncestor.(*synthObject); ok && keepSet[anc.id] {
			devs = append(devs, d)
		}
	}
	s.osDevices = devs
}

func (s *Synthetic) CurrentCPUBinding() (PUSet, error) {
	if len(s.byType[ObjMachine]) == 0 {
		return cpuset.Empty(), nil
	}
	return s.byType[ObjMachine][0].cpus, nil
}

func (s *Synthetic) SetCPUBinding(set PUSet) error { return nil }

func (s *Synthetic) Destroy() {}
