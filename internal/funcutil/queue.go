// Copyright Amazon.com, Inc. or its affiliates. All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package funcutil

// minCompaction is the number of popped elements below which a Queue never moves its elements
const minCompaction = 64

// Queue is a FIFO queue backed by a slice. Popped elements are released, and the backing array is compacted once
// more than half of it has been popped.
type Queue[T any] struct {
	items []T
	head  int
}

// Push adds x at the back of the queue
func (q *Queue[T]) Push(x T) {
	q.items = append(q.items, x)
}

// Pop removes and returns the element at the front of the queue. It panics if the queue is empty.
func (q *Queue[T]) Pop() T {
	var zero T
	x := q.items[q.head]
	q.items[q.head] = zero
	q.head++
	switch {
	case q.head == len(q.items):
		q.items = q.items[:0]
		q.head = 0
	case q.head >= minCompaction && 2*q.head >= len(q.items):
		n := copy(q.items, q.items[q.head:])
		clear(q.items[n:])
		q.items = q.items[:n]
		q.head = 0
	}
	return x
}

// Len returns the number of elements in the queue
func (q *Queue[T]) Len() int {
	return len(q.items) - q.head
}

// Cap returns the capacity of the backing array
func (q *Queue[T]) Cap() int {
	return cap(q.items)
}
