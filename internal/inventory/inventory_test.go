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

package inventory

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hpctools/mpibind-go/internal/topology"
)

func TestBuildFindsGPUsUnderTheirNUMA(t *testing.T) {
	p := topology.NewSynthetic(1, 2, 1, 1, 2, []int{0})

	table := Build(p)
	require.Len(t, table, 2)
	for _, d := range table {
		require.Equal(t, GPU, d.Kind)
		require.EqualValues(t, 0x10de, d.VendorID)
	}

	numas := p.ObjectsByType(topology.ObjNUMANode)
	require.Len(t, ByAncestor(table, numas[0].ID(), GPU), 2)
	require.Len(t, ByAncestor(table, numas[1].ID(), GPU), 0)
	require.True(t, HasAny(table, GPU))
	require.False(t, HasAny(table, NIC))
}

func TestGPUVendorString(t *testing.T) {
	require.Equal(t, "CUDA", GPUVendorString(0x10de))
	require.Equal(t, "ROCR", GPUVendorString(0x1002))
	require.Equal(t, "", GPUVendorString(0x1234))
}

func TestParseVisdevsID(t *testing.T) {
	require.Equal(t, 3, parseVisdevsID("cuda3"))
	require.Equal(t, 2, parseVisdevsID("opencl0d2"))
	require.Equal(t, -1, parseVisdevsID("unknown0"))
}

func TestParseSMIID(t *testing.T) {
	require.Equal(t, 1, parseSMIID("rsmi1"))
	require.Equal(t, 4, parseSMIID("nvml4"))
	require.Equal(t, -1, parseSMIID("other"))
}

func TestBuildReturnsEmptyTableWithoutDevices(t *testing.T) {
	p := topology.NewSynthetic(1, 1, 1, 1, 0, nil)
	table := Build(p)
	require.Empty(t, table)
}
