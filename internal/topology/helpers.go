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
	"os"

	"github.com/hpctools/mpibind-go/internal/cpuset"
	"github.com/hpctools/mpibind-go/internal/mpibinderr"
)

// TopoFileEnvVar is the environment variable a launcher can use to point
// the engine at a pre-restricted XML topology file (spec.md §6.1).
const TopoFileEnvVar = "MPIBIND_TOPOFILE"

// MinSupportedVersion is the oldest provider API version the engine
// supports; Load fails with mpibinderr.ErrTopologyUnusable if a provider
// reports an older one.
const MinSupportedVersion = "2.0.0"

// LoadOptions control how Load resolves a topology source.
type LoadOptions struct {
	// Explicit, caller-supplied provider. When set, Load uses it as-is
	// and does not restrict it further (spec.md §6.1, §9 open question
	// #2): the caller is assumed to have already scoped it to the job.
	Explicit Provider

	// XMLPath is a fallback XML file to load if Explicit is nil and
	// MPIBIND_TOPOFILE is unset.
	XMLPath string
}

// CanonicalCoreDepth returns the depth to use wherever "core" is referenced
// by the engine: the depth of Core objects, or, when the topology has none
// (after structural filtering removed them), the nearest shallower normal
// type that is present (spec.md §4.1).
func CanonicalCoreDepth(p Provider) int {
	if d := p.Depth(ObjCore); d >= 0 {
		return d
	}
	max := p.MaxDepth()
	for d := max; d >= 0; d-- {
		for _, t := range []ObjectType{ObjPackage, ObjNUMANode, ObjMachine} {
			if p.Depth(t) == d {
				return d
			}
		}
	}
	return 0
}

// HardwareSMT returns the hardware SMT level: the arity (child count) of a
// representative Core object, or 1 when no Core object is present.
func HardwareSMT(p Provider) int {
	cores := p.ObjectsByType(ObjCore)
	if len(cores) == 0 {
		return 1
	}
	if a := cores[0].Arity(); a > 0 {
		return a
	}
	return 1
}

// Load resolves the precedence of spec.md §6.1: an explicitly supplied
// provider is used as-is; otherwise MPIBIND_TOPOFILE, if set, is loaded
// from XML; otherwise a fallback XML path (if given) is loaded; otherwise
// the engine performs live system discovery and restricts the result to
// the current process's CPU binding (spec.md §9 open question #2).
func Load(opts LoadOptions) (Provider, bool, error) {
	if opts.Explicit != nil {
		if err := checkVersion(opts.Explicit); err != nil {
			return nil, false, err
		}
		return opts.Explicit, false, nil
	}

	path := os.Getenv(TopoFileEnvVar)
	if path == "" {
		path = opts.XMLPath
	}
	if path != "" {
		p, err := newHwlocProviderFromXMLFile(path)
		if err != nil {
			return nil, false, fmt.Errorf("topology: loading %q: %w", path, err)
		}
		if err := checkVersion(p); err != nil {
			return nil, false, err
		}
		return restrictToCurrentBinding(p)
	}

	p, err := newHwlocProviderDiscover()
	if err != nil {
		return nil, false, fmt.Errorf("topology: live discovery: %w", err)
	}
	if err := checkVersion(p); err != nil {
		return nil, false, err
	}
	return restrictToCurrentBinding(p)
}

func restrictToCurrentBinding(p Provider) (Provider, bool, error) {
	binding, err := p.CurrentCPUBinding()
	if err != nil {
		return nil, false, fmt.Errorf("topology: reading current CPU binding: %w", err)
	}
	if !binding.IsEmpty() {
		if err := p.Restrict(RestrictCPU, binding, cpuset.Empty()); err != nil {
			return nil, false, fmt.Errorf("topology: restricting to current binding: %w", err)
		}
	}
	return p, true, nil
}

func checkVersion(p Provider) error {
	if p.Version() < MinSupportedVersion {
		return fmt.Errorf("%w: provider version %q older than minimum supported %q", mpibinderr.ErrTopologyUnusable, p.Version(), MinSupportedVersion)
	}
	return nil
}
