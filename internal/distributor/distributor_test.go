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

package distributor

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hpctools/mpibind-go/internal/inventory"
	"github.com/hpctools/mpibind-go/internal/mpibinderr"
	"github.com/hpctools/mpibind-go/internal/restrict"
	"github.com/hpctools/mpibind-go/internal/topology"
)

// twoSocketNode builds the 2-socket, 2-NUMA, 4-core-per-NUMA, SMT-2 node
// that S1-S3 describe.
func twoSocketNode() topology.Provider {
	return topology.NewSynthetic(2, 2, 4, 2, 0, nil)
}

func TestS1TwoTasksPerNUMASplit(t *testing.T) {
	p := twoSocketNode()
	m, err := Run(p, nil, Inputs{NTasks: 2, Greedy: true, GPUOptim: false, SMT: 0})
	require.NoError(t, err)

	require.Equal(t, "0,2,4,6", m.CPUSets[0].String())
	require.Equal(t, "8,10,12,14", m.CPUSets[1].String())
	require.Equal(t, []int{4, 4}, m.NThreads)
}

func TestS2GreedySingleTaskSpansWholeNode(t *testing.T) {
	p := twoSocketNode()
	m, err := Run(p, nil, Inputs{NTasks: 1, Greedy: true, GPUOptim: false, SMT: 0})
	require.NoError(t, err)

	require.Equal(t, "0-15", m.CPUSets[0].String())
	require.Equal(t, []int{16}, m.NThreads)
}

func TestS3SMTForcing(t *testing.T) {
	p := twoSocketNode()
	m, err := Run(p, nil, Inputs{NTasks: 2, Greedy: true, GPUOptim: false, SMT: 2})
	require.NoError(t, err)

	require.Equal(t, "0-7", m.CPUSets[0].String())
	require.Equal(t, "8-15", m.CPUSets[1].String())
	require.Equal(t, []int{8, 8}, m.NThreads)
}

func TestS4GPUOptimRestrictsCandidateNUMAs(t *testing.T) {
	// 4 NUMAs, one core each (SMT 1), GPUs attach only to NUMAs 1 and 3.
	p := topology.NewSynthetic(1, 4, 1, 1, 1, []int{1, 3})
	table := inventory.Build(p)
	numas := p.ObjectsByType(topology.ObjNUMANode)

	m, err := Run(p, table, Inputs{NTasks: 2, Greedy: false, GPUOptim: true, SMT: 0})
	require.NoError(t, err)

	used := map[string]bool{}
	for _, cs := range m.CPUSets {
		used[cs.String()] = true
	}
	require.True(t, used[numas[1].CPUSet().String()])
	require.True(t, used[numas[3].CPUSet().String()])
	require.False(t, used[numas[0].CPUSet().String()])
	require.False(t, used[numas[2].CPUSet().String()])

	for _, gs := range m.GPUSets {
		require.Len(t, gs, 1)
	}
}

// TestS5RestrictionThenGreedySingleTask matches spec.md S5 end-to-end: a
// 16-PU node restricted to "6-11", then one greedy task spanning it.
func TestS5RestrictionThenGreedySingleTask(t *testing.T) {
	p := twoSocketNode()
	set, err := restrict.Resolve("6-11")
	require.NoError(t, err)
	require.NoError(t, restrict.Apply(p, restrict.CPU, set))

	m, err := Run(p, nil, Inputs{NTasks: 1, Greedy: true, SMT: 1})
	require.NoError(t, err)
	require.Equal(t, "6-11", m.CPUSets[0].String())
}

func TestRunRejectsNonPositiveNTasks(t *testing.T) {
	p := twoSocketNode()
	_, err := Run(p, nil, Inputs{NTasks: 0, Greedy: true})
	require.Error(t, err)
	require.True(t, errors.Is(err, mpibinderr.ErrInvalidInput))
}

func TestRunRejectsSMTAboveHardware(t *testing.T) {
	p := twoSocketNode()
	_, err := Run(p, nil, Inputs{NTasks: 1, Greedy: true, SMT: 99})
	require.Error(t, err)
	require.True(t, errors.Is(err, mpibinderr.ErrInvalidInput))
}

func TestRunPropagatesDegenerateMapping(t *testing.T) {
	p := topology.NewSynthetic(1, 1, 1, 1, 0, nil)
	_, err := Run(p, nil, Inputs{NTasks: 2, Greedy: false})
	require.Error(t, err)
	require.True(t, errors.Is(err, mpibinderr.ErrDegenerateMapping))
}
