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

package funcutil_test

import (
	"testing"

	"github.com/awslabs/ar-jvm-tools/internal/funcutil"
)

func TestQueueOrder(t *testing.T) {
	var q funcutil.Queue[int]
	next := 0
	// interleaved pushes and pops exercise the compaction of the backing array
	for i := 0; i < 1000; i++ {
		q.Push(i)
		if i%3 == 2 {
			if x := q.Pop(); x != next {
				t.Fatalf("expected %d, got %d", next, x)
			}
			next++
		}
	}
	for q.Len() > 0 {
		if x := q.Pop(); x != next {
			t.Fatalf("expected %d, got %d", next, x)
		}
		next++
	}
	if next != 1000 {
		t.Errorf("expected 1000 elements, got %d", next)
	}
}

func TestQueueBounded(t *testing.T) {
	var q funcutil.Queue[int]
	// a queue that never holds more than two elements keeps a small backing array
	for i := 0; i < 100000; i++ {
		q.Push(i)
		q.Push(i)
		q.Pop()
		if i%2 == 1 {
			q.Pop()
			q.Pop()
		}
	}
	if q.Cap() > 1024 {
		t.Errorf("the backing array grew to %d", q.Cap())
	}
}
