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

// Package restrict implements spec.md §4.8: applying a caller-supplied
// CPU or memory restriction (inline range list or file path) to a
// topology, plus the cores-to-PUs helper launchers use when they only
// know core indices. Grounded on the teacher's
// internal/flags/device_filter.go comma-separated range selection idiom,
// generalized from "device id filter for a Kubernetes flag" to
// "topology-pruning range spec."
package restrict

import (
	"fmt"
	"os"
	"strings"

	"github.com/hpctools/mpibind-go/internal/cpuset"
	"github.com/hpctools/mpibind-go/internal/mpibinderr"
	"github.com/hpctools/mpibind-go/internal/topology"
)

// Kind selects whether a restriction spec is interpreted as a cpuset or a
// nodeset (spec.md §4.8, mirrors topology.RestrictKind one-to-one).
type Kind = topology.RestrictKind

const (
	CPU = topology.RestrictCPU
	MEM = topology.RestrictMEM
)

// Resolve parses spec as either an inline range list or, if it names an
// existing file, the first non-blank line of that file, which must itself
// be a valid range list (an invalid first line is an error; later lines
// are not tried).
func Resolve(spec string) (cpuset.Set, error) {
	if spec == "" {
		return cpuset.Empty(), nil
	}
	if set, err := cpuset.Parse(spec); err == nil {
		return set, nil
	}
	data, err := os.ReadFile(spec)
	if err != nil {
		return cpuset.Set{}, fmt.Errorf("%w: restriction spec %q is neither a valid range list nor a readable file: %v", mpibinderr.ErrInvalidInput, spec, err)
	}
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		set, err := cpuset.Parse(line)
		if err != nil {
			return cpuset.Set{}, fmt.Errorf("%w: %s: first non-blank line %q is not a valid range list", mpibinderr.ErrInvalidInput, spec, line)
		}
		return set, nil
	}
	return cpuset.Set{}, fmt.Errorf("%w: %s: no parseable line found", mpibinderr.ErrInvalidInput, spec)
}

// Apply restricts p in place to set, interpreted per kind (spec.md §4.8:
// CPU -> restrict by cpuset with "remove cpuless"; MEM -> restrict by
// nodeset with "by-nodeset, remove memless", both delegated to the
// provider which carries the actual hwloc restrict flags).
func Apply(p topology.Provider, kind Kind, set cpuset.Set) error {
	if set.IsEmpty() {
		return nil
	}
	var err error
	switch kind {
	case CPU:
		err = p.Restrict(topology.RestrictCPU, set, cpuset.Empty())
	case MEM:
		err = p.Restrict(topology.RestrictMEM, cpuset.Empty(), set)
	default:
		return fmt.Errorf("restrict: unknown kind %v", kind)
	}
	if err != nil {
		return fmt.Errorf("%w: %v", mpibinderr.ErrTopologyUnusable, err)
	}
	if len(p.ObjectsByType(topology.ObjPU)) == 0 {
		return fmt.Errorf("%w: restriction left an empty cpuset", mpibinderr.ErrTopologyUnusable)
	}
	return nil
}

// CoresToPUs converts a logical-core range list into the union of PU
// indices across the indicated cores at canonical core depth (spec.md
// §4.8, used by launchers that speak core indices).
func CoresToPUs(p topology.Provider, cores cpuset.Set) cpuset.Set {
	depth := topology.CanonicalCoreDepth(p)
	all := p.ObjectsByDepth(depth)
	out := cpuset.Empty()
	for logical, o := range all {
		if cores.Test(logical) {
			out = out.Union(o.CPUSet())
		}
	}
	return out
}
