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

package restrict

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hpctools/mpibind-go/internal/cpuset"
	"github.com/hpctools/mpibind-go/internal/mpibinderr"
	"github.com/hpctools/mpibind-go/internal/topology"
)

func TestResolveInlineRangeList(t *testing.T) {
	set, err := Resolve("6-11")
	require.NoError(t, err)
	require.Equal(t, "6-11", set.String())
}

func TestResolveEmptySpec(t *testing.T) {
	set, err := Resolve("")
	require.NoError(t, err)
	require.True(t, set.IsEmpty())
}

func TestResolveFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "restrict.txt")
	require.NoError(t, os.WriteFile(path, []byte("2-5\n"), 0o644))

	set, err := Resolve(path)
	require.NoError(t, err)
	require.Equal(t, "2-5", set.String())
}

func TestResolveInvalidSpec(t *testing.T) {
	_, err := Resolve("not-a-range-and-not-a-file")
	require.Error(t, err)
	require.True(t, errors.Is(err, mpibinderr.ErrInvalidInput))
}

// TestS5RestrictionByCPUList matches spec.md S5's restriction step: a
// 16-PU topology restricted to "6-11" narrows every surviving object's
// cpuset to its overlap with that range; the combined mapping outcome is
// covered end-to-end in internal/distributor.
func TestS5RestrictionByCPUList(t *testing.T) {
	p := topology.NewSynthetic(2, 2, 4, 2, 0, nil)
	set, err := Resolve("6-11")
	require.NoError(t, err)

	require.NoError(t, Apply(p, CPU, set))

	combined := cpuset.Empty()
	for _, numa := range p.ObjectsByType(topology.ObjNUMANode) {
		combined = combined.Union(numa.CPUSet())
	}
	require.Equal(t, "6-11", combined.String())
}

func TestApplyEmptySetIsNoop(t *testing.T) {
	p := topology.NewSynthetic(1, 1, 1, 1, 0, nil)
	before := len(p.ObjectsByType(topology.ObjPU))
	require.NoError(t, Apply(p, CPU, cpuset.Empty()))
	require.Equal(t, before, len(p.ObjectsByType(topology.ObjPU)))
}

func TestApplyRestrictionYieldingEmptySetFails(t *testing.T) {
	p := topology.NewSynthetic(1, 1, 1, 1, 0, nil)
	err := Apply(p, CPU, cpuset.New(999))
	require.Error(t, err)
	require.True(t, errors.Is(err, mpibinderr.ErrTopologyUnusable))
}

func TestCoresToPUs(t *testing.T) {
	p := topology.NewSynthetic(1, 1, 4, 2, 0, nil)
	// logical cores 0..3, each with 2 PUs.
	got := CoresToPUs(p, cpuset.New(1, 3))
	require.Equal(t, "2-3,6-7", got.String())
}
