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
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCanonicalCoreDepth(t *testing.T) {
	p := NewSynthetic(1, 1, 2, 2, 0, nil)
	require.Equal(t, 3, CanonicalCoreDepth(p))
}

func TestHardwareSMT(t *testing.T) {
	p := NewSynthetic(1, 1, 1, 4, 0, nil)
	require.Equal(t, 4, HardwareSMT(p))
}

func TestHardwareSMTDefaultsToOneWithoutCores(t *testing.T) {
	p := &Synthetic{byType: make(map[ObjectType][]*synthObject), byDepth: make(map[int][]*synthObject)}
	require.Equal(t, 1, HardwareSMT(p))
}

func TestLoadUsesExplicitProviderAsIs(t *testing.T) {
	p := NewSynthetic(1, 1, 1, 1, 0, nil)
	got, owns, err := Load(LoadOptions{Explicit: p})
	require.NoError(t, err)
	require.False(t, owns)
	require.Same(t, p, got)
}
