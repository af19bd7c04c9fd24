// Copyright (C) 2022 Sneller, Inc.
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program.  If not, see <http://www.gnu.org/licenses/>.

package cell

import "testing"

func TestBucketForIsLog2(t *testing.T) {
	cases := map[uint64]int{
		0:    0,
		1:    0,
		2:    1,
		3:    1,
		4:    2,
		1023: 9,
		1024: 10,
	}
	for ns, want := range cases {
		if got := bucketFor(ns); got != want {
			t.Errorf("bucketFor(%d) = %d, want %d", ns, got, want)
		}
	}
}

func TestPercentileMedianOfUniformSamples(t *testing.T) {
	var h Histogram
	for i := 0; i < 100; i++ {
		h.Record(1000) // all land in the same bucket
	}
	p50 := h.Percentile(0.5)
	if p50 == 0 {
		t.Fatal("Percentile(0.5) = 0, want nonzero bucket bound")
	}
}

func TestPercentileEmptyHistogramIsZero(t *testing.T) {
	var h Histogram
	if got := h.Percentile(0.99); got != 0 {
		t.Fatalf("Percentile on empty histogram = %d, want 0", got)
	}
}

func TestResetClearsBuckets(t *testing.T) {
	var h Histogram
	h.Record(500)
	h.Record(5000)
	h.Reset()
	if got := h.Percentile(0.5); got != 0 {
		t.Fatalf("Percentile after Reset = %d, want 0", got)
	}
}

func TestPercentileOrderedAcrossBuckets(t *testing.T) {
	var h Histogram
	for i := 0; i < 90; i++ {
		h.Record(100) // bucket 6 (64-128)
	}
	for i := 0; i < 10; i++ {
		h.Record(100000) // bucket 16
	}
	p50 := h.Percentile(0.5)
	p99 := h.Percentile(0.99)
	if p99 < p50 {
		t.Fatalf("p99 (%d) < p50 (%d)", p99, p50)
	}
}
