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

package distrib

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBalanced(t *testing.T) {
	testCases := []struct {
		n, k     int
		expected []int
	}{
		{n: 9, k: 3, expected: []int{3, 3, 3}},
		{n: 10, k: 3, expected: []int{4, 3, 3}},
		{n: 2, k: 5, expected: []int{1, 1, 0, 0, 0}},
		{n: 0, k: 4, expected: []int{0, 0, 0, 0}},
		{n: 1, k: 1, expected: []int{1}},
	}

	for i, tc := range testCases {
		t.Run(fmt.Sprintf("test case %d", i), func(t *testing.T) {
			got := Balanced(tc.n, tc.k)
			require.Equal(t, tc.expected, got)

			sum := 0
			for _, v := range got {
				sum += v
			}
			require.Equal(t, tc.n, sum)
		})
	}
}

func TestBalancedPanicsOnZeroBuckets(t *testing.T) {
	require.Panics(t, func() { Balanced(4, 0) })
}

func TestFillBucketsMoreElementsThanBuckets(t *testing.T) {
	elems := []string{"a", "b", "c", "d", "e"}
	got := FillBuckets(elems, 2)
	require.Len(t, got, 2)
	require.Equal(t, []string{"a", "b", "c"}, got[0])
	require.Equal(t, []string{"d", "e"}, got[1])
}

func TestFillBucketsMoreBucketsThanElements(t *testing.T) {
	elems := []string{"a", "b"}
	got := FillBuckets(elems, 5)
	require.Len(t, got, 5)
	for _, bucket := range got {
		require.Len(t, bucket, 1)
	}
	require.Equal(t, []string{"a"}, got[0])
	require.Equal(t, []string{"a"}, got[1])
	require.Equal(t, []string{"a"}, got[2])
	require.Equal(t, []string{"b"}, got[3])
	require.Equal(t, []string{"b"}, got[4])
}

func TestFillBucketsEmptyElems(t *testing.T) {
	got := FillBuckets([]int(nil), 3)
	require.Len(t, got, 3)
	for _, bucket := range got {
		require.Nil(t, bucket)
	}
}

func TestFillBucketsPanicsOnZeroBuckets(t *testing.T) {
	require.Panics(t, func() { FillBuckets([]int{1}, 0) })
}
