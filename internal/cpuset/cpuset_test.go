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

package cpuset

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseAndString(t *testing.T) {
	testCases := []string{
		"0-3,7,9-11",
		"0",
		"",
		"1,3,5",
	}

	for _, tc := range testCases {
		t.Run(tc, func(t *testing.T) {
			s, err := Parse(tc)
			require.NoError(t, err)
			require.Equal(t, tc, s.String())
		})
	}
}

func TestParseInvalid(t *testing.T) {
	_, err := Parse("0-3-7")
	require.Error(t, err)
}

func TestSetOperations(t *testing.T) {
	a := New(0, 1, 2, 3)
	b := New(2, 3, 4, 5)

	require.Equal(t, "0-5", a.Union(b).String())
	require.Equal(t, "2-3", a.Intersect(b).String())
	require.Equal(t, "0-1", a.Difference(b).String())
	require.Equal(t, 4, a.Cardinality())
	require.True(t, a.Test(2))
	require.False(t, a.Test(9))
}

func TestAddClear(t *testing.T) {
	s := Empty().Add(1).Add(3)
	require.Equal(t, "1,3", s.String())
	s = s.Clear(1)
	require.Equal(t, "3", s.String())
}

func TestIsEmpty(t *testing.T) {
	require.True(t, Empty().IsEmpty())
	require.False(t, New(0).IsEmpty())
}

func TestFirstAndNext(t *testing.T) {
	s := New(2, 5, 7)

	first, ok := s.First()
	require.True(t, ok)
	require.Equal(t, 2, first)

	next, ok := s.Next(2)
	require.True(t, ok)
	require.Equal(t, 5, next)

	next, ok = s.Next(7)
	require.False(t, ok)
	require.Equal(t, 0, next)

	_, ok = Empty().First()
	require.False(t, ok)
}

func TestFirstN(t *testing.T) {
	s := New(4, 1, 9, 2)
	require.Equal(t, []int{1, 2}, s.FirstN(2))
	require.Equal(t, []int{1, 2, 4, 9}, s.FirstN(10))
	require.Len(t, Empty().FirstN(3), 0)
}

func TestList(t *testing.T) {
	s := New(5, 1, 3)
	require.Equal(t, []int{1, 3, 5}, s.List())
}
