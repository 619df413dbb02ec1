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

package gpumatch

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hpctools/mpibind-go/internal/inventory"
	"github.com/hpctools/mpibind-go/internal/topology"
)

func TestMatchDistributesGPUsEvenlyAcrossTasks(t *testing.T) {
	p := topology.NewSynthetic(1, 1, 1, 1, 4, nil)
	table := inventory.Build(p)
	numa := p.ObjectsByType(topology.ObjNUMANode)[0]

	got := Match(table, numa.ID(), 2)
	require.Len(t, got, 2)
	require.Len(t, got[0], 2)
	require.Len(t, got[1], 2)
}

func TestMatchMoreTasksThanGPUsReusesLowIndices(t *testing.T) {
	p := topology.NewSynthetic(1, 1, 1, 1, 1, nil)
	table := inventory.Build(p)
	numa := p.ObjectsByType(topology.ObjNUMANode)[0]

	got := Match(table, numa.ID(), 3)
	require.Len(t, got, 3)
	for _, g := range got {
		require.Equal(t, []int{0}, g)
	}
}

func TestMatchNoGPUsReturnsNilPerTask(t *testing.T) {
	p := topology.NewSynthetic(1, 1, 1, 1, 0, nil)
	table := inventory.Build(p)
	numa := p.ObjectsByType(topology.ObjNUMANode)[0]

	got := Match(table, numa.ID(), 2)
	require.Len(t, got, 2)
	require.Nil(t, got[0])
	require.Nil(t, got[1])
}
