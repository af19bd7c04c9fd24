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

func TestRingQueueFIFOOrder(t *testing.T) {
	q := newRingQueue[int](8)
	for i := 0; i < 5; i++ {
		if !q.Enqueue(i) {
			t.Fatalf("Enqueue(%d) failed", i)
		}
	}
	for i := 0; i < 5; i++ {
		v, ok := q.Dequeue()
		if !ok || v != i {
			t.Fatalf("Dequeue() = %v,%v want %d,true", v, ok, i)
		}
	}
	if _, ok := q.Dequeue(); ok {
		t.Fatal("Dequeue() on empty queue returned ok=true")
	}
}

func TestRingQueueCapacityRoundsUpToPowerOfTwo(t *testing.T) {
	q := newRingQueue[int](5)
	if len(q.buf) != 8 {
		t.Fatalf("capacity = %d, want 8", len(q.buf))
	}
}

func TestRingQueueFullReturnsFalse(t *testing.T) {
	q := newRingQueue[int](2) // usable capacity is 1 (one slot always kept empty)
	if !q.Enqueue(1) {
		t.Fatal("first Enqueue should succeed")
	}
	if q.Enqueue(2) {
		t.Fatal("Enqueue into a full queue should return false")
	}
	v, ok := q.Dequeue()
	if !ok || v != 1 {
		t.Fatalf("Dequeue() = %v,%v want 1,true", v, ok)
	}
	if !q.Enqueue(3) {
		t.Fatal("Enqueue after drain should succeed")
	}
}
