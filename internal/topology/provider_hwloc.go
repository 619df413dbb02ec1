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
	"strconv"
	"strings"

	hwloc "github.com/gpucloud/gohwloc/topology"

	"github.com/hpctools/mpibind-go/internal/cpuset"
)

// hwlocAPIVersion is reported from Version(): gohwloc exposes no runtime
// hwloc_get_api_version() binding, so this names the hwloc major/minor
// series its cgo headers (hwloc.h, HWLOC_OBJ_* constants) are built against.
const hwlocAPIVersion = "2.0.0"

// hwlocProvider adapts github.com/gpucloud/gohwloc/topology to Provider.
// It is the live counterpart of synthetic.go's in-memory provider, and
// generalizes the teacher's dead root-level topology.go (which only ever
// walked Package objects to sketch a PCI tree) into the full capability
// set Provider requires.
type hwlocProvider struct {
	t *hwloc.Topology
}

func newHwlocProviderDiscover() (Provider, error) {
	t, err := hwloc.NewTopology()
	if err != nil {
		return nil, err
	}
	if err := t.Load(); err != nil {
		t.Destroy()
		return nil, err
	}
	return &hwlocProvider{t: t}, nil
}

func newHwlocProviderFromXMLFile(path string) (Provider, error) {
	t, err := hwloc.NewTopology()
	if err != nil {
		return nil, err
	}
	if err := t.SetXMLFile(path); err != nil {
		t.Destroy()
		return nil, err
	}
	if err := t.Load(); err != nil {
		t.Destroy()
		return nil, err
	}
	return &hwlocProvider{t: t}, nil
}

func (p *hwlocProvider) Version() string {
	return hwlocAPIVersion
}

func (p *hwlocProvider) wrap(o *hwloc.HwlocObject) Object {
	if o == nil {
		return nil
	}
	return &hwlocObject{p: p, raw: o}
}

// objID derives a stable identity from the pair hwloc itself promises is
// unique for the lifetime of a loaded topology: the object's depth (which
// may be a negative virtual depth for NUMA nodes) and its logical index
// within that depth. gohwloc's HwlocObject keeps its underlying hwloc_obj_t
// pointer unexported, so there is no handle to key off directly.
func objID(o *hwloc.HwlocObject) ObjectID {
	return ObjectID(uint64(uint32(int32(o.Depth)))<<32 | uint64(uint32(o.LogicalIndex)))
}

func toObjType(t hwloc.HwlocObjType) ObjectType {
	switch t {
	case hwloc.HwlocObjMachine:
		return ObjMachine
	case hwloc.HwlocObjPackage:
		return ObjPackage
	case hwloc.HwlocObjNumaNode:
		return ObjNUMANode
	case hwloc.HwlocObjCore:
		return ObjCore
	case hwloc.HwlocObjPU:
		return ObjPU
	case hwloc.HwlocObjBridge:
		return ObjBridge
	case hwloc.HwlocObjPCIDevice:
		return ObjPCIDevice
	case hwloc.HwlocObjOSDevice:
		return ObjOSDevice
	default:
		return ObjGroup
	}
}

func fromObjType(t ObjectType) hwloc.HwlocObjType {
	switch t {
	case ObjMachine:
		return hwloc.HwlocObjMachine
	case ObjPackage:
		return hwloc.HwlocObjPackage
	case ObjNUMANode:
		return hwloc.HwlocObjNumaNode
	case ObjCore:
		return hwloc.HwlocObjCore
	case ObjPU:
		return hwloc.HwlocObjPU
	default:
		return hwloc.HwlocObjGroup
	}
}

func (p *hwlocProvider) ObjectsByDepth(depth int) []Object {
	n, err := p.t.GetNbobjsByDepth(depth)
	if err != nil {
		return nil
	}
	out := make([]Object, 0, n)
	for i := uint(0); i < n; i++ {
		o, err := p.t.GetObjByDepth(depth, i)
		if err != nil || o == nil {
			continue
		}
		out = append(out, p.wrap(o))
	}
	return out
}

func (p *hwlocProvider) ObjectsByType(t ObjectType) []Object {
	n, err := p.t.GetNbobjsByType(fromObjType(t))
	if err != nil || n <= 0 {
		return nil
	}
	out := make([]Object, 0, n)
	for i := uint(0); i < uint(n); i++ {
		o, err := p.t.GetObjByType(fromObjType(t), i)
		if err != nil || o == nil {
			continue
		}
		out = append(out, p.wrap(o))
	}
	return out
}

func (p *hwlocProvider) Depth(t ObjectType) int {
	d, err := p.t.GetTypeDepth(fromObjType(t))
	if err != nil {
		return -1
	}
	return d
}

func (p *hwlocProvider) MaxDepth() int {
	d, err := p.t.GetDepth()
	if err != nil {
		return 0
	}
	return d
}

func (p *hwlocProvider) OSDevices() []OSDevice {
	n, err := p.t.GetNbobjsByType(hwloc.HwlocObjOSDevice)
	if err != nil || n <= 0 {
		return nil
	}
	out := make([]OSDevice, 0, n)
	for i := uint(0); i < uint(n); i++ {
		o, err := p.t.GetObjByType(hwloc.HwlocObjOSDevice, i)
		if err != nil || o == nil {
			continue
		}
		out = append(out, p.toOSDevice(o))
	}
	return out
}

func (p *hwlocProvider) toOSDevice(o *hwloc.HwlocObject) OSDevice {
	dev := OSDevice{
		Name:    o.Name,
		Subtype: o.SubType,
		Info:    make(map[string]string, len(o.Infos)),
	}
	if o.Attributes != nil {
		switch o.Attributes.OSDevType {
		case hwloc.HwlocObjOSDevCoproc:
			dev.Kind = OSDevCoProcessor
		case hwloc.HwlocObjOSDevGPU:
			dev.Kind = OSDevGPU
		case hwloc.HwlocObjOSDevOpenFabrics:
			dev.Kind = OSDevOpenFabrics
		default:
			dev.Kind = OSDevOther
		}
	}
	for k, v := range o.Infos {
		dev.Info[k] = v
	}
	if o.Parent != nil && o.Parent.Type == hwloc.HwlocObjPCIDevice && o.Parent.Attributes != nil && o.Parent.Attributes.PCIDev != nil {
		pci := o.Parent.Attributes.PCIDev
		dev.HasPCI = true
		dev.PCI = PCIInfo{
			BusID:    fmt.Sprintf("%04x:%02x:%02x.%01x", pci.Domain, pci.Bus, pci.Dev, pci.Func),
			VendorID: pci.VendorID,
		}
		dev.NonIOAncestor = p.wrap(nonIOAncestor(o.Parent))
	}
	return dev
}

func nonIOAncestor(o *hwloc.HwlocObject) *hwloc.HwlocObject {
	cur := o
	for cur != nil && (cur.Type == hwloc.HwlocObjPCIDevice || cur.Type == hwloc.HwlocObjBridge || cur.Type == hwloc.HwlocObjOSDevice) {
		cur = cur.Parent
	}
	return cur
}

func (p *hwlocProvider) Restrict(kind RestrictKind, pus PUSet, nodes NodeSet) error {
	switch kind {
	case RestrictCPU:
		bm := hwloc.NewBitmap(nil)
		defer bm.Destroy()
		for _, i := range pus.List() {
			bm.Set(uint64(i))
		}
		return p.t.SetRestrict(bm, uint32(hwloc.HwlocRestrictFlagRemoveCPULess))
	case RestrictMEM:
		bm := hwloc.NewBitmap(nil)
		defer bm.Destroy()
		for _, i := range nodes.List() {
			bm.Set(uint64(i))
		}
		return p.t.SetRestrict(bm, uint32(hwloc.HwlocRestrictFlagByNodeSet|hwloc.HwlocRestrictFlagRemoveMemLess))
	default:
		return fmt.Errorf("topology: unknown restrict kind %v", kind)
	}
}

func (p *hwlocProvider) CurrentCPUBinding() (PUSet, error) {
	cs, err := p.t.GetCPUBind(0)
	if err != nil {
		return cpuset.Empty(), err
	}
	return fromHwlocBitmapString(cs.String()), nil
}

func (p *hwlocProvider) SetCPUBinding(set PUSet) error {
	cs := hwloc.NewCPUSet(nil)
	defer cs.Destroy()
	for _, i := range set.List() {
		cs.Set(uint64(i))
	}
	return p.t.SetCPUBind(*cs, 0)
}

func (p *hwlocProvider) Destroy() {
	if p.t != nil {
		p.t.Destroy()
		p.t = nil
	}
}

// fromHwlocBitmapString parses the format hwloc_bitmap_asprintf produces
// (and BitMap.String wraps): comma-separated 32-bit hex words, the
// leftmost word being the most significant, e.g. "0x3,0xf0000000" covers
// bits 28-31 (rightmost word 0) and bits 32-33 (leftmost word 1). This
// is the format hwloc_bitmap_sscanf() parses back; gohwloc does not
// expose hwloc_bitmap_list_asprintf's range-list syntax.
func fromHwlocBitmapString(s string) PUSet {
	if s == "" {
		return cpuset.Empty()
	}
	words := strings.Split(s, ",")
	n := len(words)
	var members []int
	for i, w := range words {
		w = strings.TrimPrefix(strings.TrimSpace(w), "0x")
		v, err := strconv.ParseUint(w, 16, 32)
		if err != nil {
			continue
		}
		wordIndex := n - 1 - i
		for bit := 0; bit < 32; bit++ {
			if v&(1<<uint(bit)) != 0 {
				members = append(members, wordIndex*32+bit)
			}
		}
	}
	return cpuset.New(members...)
}

// hwlocObject adapts *hwloc.HwlocObject to the Object interface.
type hwlocObject struct {
	p   *hwlocProvider
	raw *hwloc.HwlocObject
}

func (o *hwlocObject) ID() ObjectID     { return objID(o.raw) }
func (o *hwlocObject) Type() ObjectType { return toObjType(o.raw.Type) }
func (o *hwlocObject) Depth() int       { return o.raw.Depth }
func (o *hwlocObject) OSIndex() int     { return int(o.raw.OSIndex) }
func (o *hwlocObject) Arity() int       { return len(o.raw.Children) }

func (o *hwlocObject) CPUSet() PUSet {
	if o.raw.CPUSet == nil {
		return cpuset.Empty()
	}
	return fromHwlocBitmapString(o.raw.CPUSet.String())
}

func (o *hwlocObject) NodeSet() NodeSet {
	if o.raw.NodeSet == nil {
		return cpuset.Empty()
	}
	return fromHwlocBitmapString(o.raw.NodeSet.String())
}

func (o *hwlocObject) Parent() (Object, bool) {
	if o.raw.Parent == nil {
		return nil, false
	}
	return o.p.wrap(o.raw.Parent), true
}

func (o *hwlocObject) Children() []Object {
	out := make([]Object, 0, len(o.raw.Children))
	for _, c := range o.raw.Children {
		out = append(out, o.p.wrap(c))
	}
	return out
}
