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

package dataflow_test

import (
	"testing"

	"github.com/awslabs/ar-jvm-tools/analysis/dataflow"
)

func TestAccessPathExtend(t *testing.T) {
	p := dataflow.NewAccessPath("x")
	tests := []struct {
		fields   []string
		k        int
		expected string
		depth    int
	}{
		{nil, 2, "x", 0},
		{[]string{"f"}, 2, "x.f", 1},
		{[]string{"f", "g"}, 2, "x.f.g", 2},
		{[]string{"f", "g", "h"}, 2, "x.f.g.*", 2},
		{[]string{"f", "g", "h", "i"}, 2, "x.f.g.*", 2},
		{[]string{"f", dataflow.ArrayElement}, 1, "x.f.*", 1},
	}
	for _, test := range tests {
		q := p
		for _, f := range test.fields {
			q = q.Extend(f, test.k)
		}
		if q.String() != test.expected {
			t.Errorf("expected %s, got %s", test.expected, q)
		}
		if q.Depth() != test.depth {
			t.Errorf("expected depth %d for %s, got %d", test.depth, q, q.Depth())
		}
		if q.Base() != "x" {
			t.Errorf("expected base x, got %s", q.Base())
		}
	}
}

func path(base string, fields ...string) dataflow.AccessPath {
	p := dataflow.NewAccessPath(base)
	for _, f := range fields {
		p = p.Extend(f, 3)
	}
	return p
}

func TestAccessPathSubsumes(t *testing.T) {
	truncated := path("x", "f", "g", "h", "i")
	tests := []struct {
		a, b     dataflow.AccessPath
		expected bool
	}{
		{path("x"), path("x", "f"), true},
		{path("x", "f"), path("x", "f"), false},
		{path("x", "f"), path("x"), false},
		{path("x", "f"), path("x", "fg"), false},
		{path("x", "f"), path("y", "f"), false},
		{truncated, path("x", "f", "g", "h"), true},
		{path("x", "f", "g", "h"), truncated, false},
		{truncated, truncated, false},
		{path("x", "f", "g"), truncated, true},
		{truncated, path("x", "f", "g"), false},
		{dataflow.NewStaticPath("App", "f"), path("App", "f"), false},
	}
	for _, test := range tests {
		if got := test.a.Subsumes(test.b); got != test.expected {
			t.Errorf("%s subsumes %s: expected %v, got %v", test.a, test.b, test.expected, got)
		}
	}
}

func TestAccessPathSubstitute(t *testing.T) {
	tests := []struct {
		p, from, to dataflow.AccessPath
		k           int
		expected    string
		ok          bool
	}{
		{path("y"), path("y"), path("x"), 3, "x", true},
		{path("y", "f", "g"), path("y"), path("x"), 3, "x.f.g", true},
		{path("y", "f"), path("y"), path("x", "a", "b"), 2, "x.a.b.*", true},
		{path("x", "f", "g"), path("x", "f"), path("z"), 3, "z.g", true},
		{path("x", "g"), path("x", "f"), path("z"), 3, "", false},
		{path("x", "f", "g", "h", "i"), path("x", "f"), path("z"), 3, "z.g.h.*", true},
		{path("x").Extend("f", 0), path("x", "f", "g"), path("z"), 3, "z.*", true},
		{path("xy"), path("x"), path("z"), 3, "", false},
		{dataflow.NewStaticPath("App", "cache"), dataflow.NewStaticPath("App", "cache"), path("%0"), 3, "%0", true},
	}
	for _, test := range tests {
		got, ok := test.p.Substitute(test.from, test.to, test.k)
		if ok != test.ok {
			t.Errorf("substituting %s by %s in %s: expected ok=%v", test.from, test.to, test.p, test.ok)
			continue
		}
		if ok && got.String() != test.expected {
			t.Errorf("substituting %s by %s in %s: expected %s, got %s", test.from, test.to, test.p, test.expected,
				got)
		}
	}
}

func TestStaticPath(t *testing.T) {
	p := dataflow.NewStaticPath("java/lang/System", "out")
	if p.String() != "java/lang/System.out" {
		t.Errorf("unexpected static path %s", p)
	}
	if !p.IsStatic() || p.RootedAt("java/lang/System") || p.Depth() != 1 {
		t.Errorf("a static path is not rooted at a variable")
	}
	if p.Equal(path("java/lang/System", "out")) {
		t.Errorf("a static path is not equal to a local path")
	}
}

func TestFactIdentity(t *testing.T) {
	if !dataflow.Zero.IsZero() {
		t.Errorf("zero fact should be zero")
	}
	f := dataflow.NewFact(path("x"), nil, "secret")
	if f.IsZero() || f.RootedAt("y") || !f.RootedAt("x") {
		t.Errorf("unexpected fact %v", f)
	}
	if f == f.WithPath(path("x", "f")) {
		t.Errorf("facts with different paths should differ")
	}
	if f == dataflow.NewFact(path("x"), nil, "") {
		t.Errorf("facts with different marks should differ")
	}
}
