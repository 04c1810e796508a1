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

package callgraph_test

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/awslabs/ar-jvm-tools/analysis/bytecode"
	"github.com/awslabs/ar-jvm-tools/analysis/callgraph"
	"github.com/awslabs/ar-jvm-tools/analysis/classdb"
	"github.com/awslabs/ar-jvm-tools/analysis/hierarchy"
	"github.com/awslabs/ar-jvm-tools/analysis/ir"
	"github.com/awslabs/ar-jvm-tools/internal/analysistest"
)

func setup(t *testing.T, name string) (*classdb.DB, *ir.Cache, *callgraph.Resolver) {
	db := analysistest.LoadProgram(t, name)
	types := hierarchy.New(db)
	return db, ir.NewCache(db, types), callgraph.NewResolver(db, types)
}

func method(t *testing.T, cache *ir.Cache, s string) *ir.Method {
	ref, err := bytecode.ParseMethodRef(s)
	if err != nil {
		t.Fatal(err)
	}
	m, err := cache.Get(ref)
	if err != nil {
		t.Fatalf("could not build %s: %v", s, err)
	}
	return m
}

func callees(edges []callgraph.Edge) string {
	var s []string
	for _, e := range edges {
		s = append(s, e.Callee.String())
	}
	return strings.Join(s, " ")
}

func TestResolve(t *testing.T) {
	_, cache, r := setup(t, "Shapes")
	m := method(t, cache, "Main.total(LShape;LCircle;)D")
	tests := []struct {
		stmt     int
		callees  string
		dispatch callgraph.Dispatch
	}{
		{0, "Circle.area()D Square.area()D", callgraph.Hierarchy},
		{1, "Circle.area()D", callgraph.Exact},
		{3, "Shape.describe()Ljava/lang/String;", callgraph.Exact},
		{4, "Main.helper()V", callgraph.Exact},
	}
	for _, test := range tests {
		t.Run(fmt.Sprint(test.stmt), func(t *testing.T) {
			edges, err := r.Resolve(m.Statement(test.stmt))
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got := callees(edges); got != test.callees {
				t.Errorf("expected callees %q, got %q", test.callees, got)
			}
			for _, e := range edges {
				if e.Dispatch != test.dispatch {
					t.Errorf("expected %s dispatch for %v", test.dispatch, e)
				}
			}
		})
	}
	for _, stmt := range []int{5, 6} {
		if _, err := r.Resolve(m.Statement(stmt)); !errors.Is(err, callgraph.ErrUnresolvedCallee) {
			t.Errorf("statement %d: expected an unresolved callee, got %v", stmt, err)
		}
	}
	if _, err := r.Resolve(m.Statement(2)); err == nil {
		t.Errorf("resolving a statement that is not a call should fail")
	}
}

func TestResolveMemoized(t *testing.T) {
	_, cache, r := setup(t, "Shapes")
	m := method(t, cache, "Main.total(LShape;LCircle;)D")
	first, _ := r.Resolve(m.Statement(0))
	second, _ := r.Resolve(m.Statement(0))
	if callees(first) != callees(second) {
		t.Errorf("resolution is not stable")
	}
	if hits, misses := r.Stats(); hits != 1 || misses != 1 {
		t.Errorf("expected one hit and one miss, got %d and %d", hits, misses)
	}
}

func TestResolveInterface(t *testing.T) {
	_, cache, r := setup(t, "Taint")
	m := method(t, cache, "App.virtualCall()V")
	var site *ir.Statement
	for _, s := range m.Statements {
		if s.Op == ir.OpInvoke && s.Call.Kind == ir.InvokeInterface {
			site = s
		}
	}
	if site == nil {
		t.Fatal("no interface call in App.virtualCall")
	}
	edges, err := r.Resolve(site)
	if err != nil {
		t.Fatal(err)
	}
	if got := callees(edges); got != "LoggingHandler.handle(Ljava/lang/String;)V NoopHandler.handle(Ljava/lang/String;)V" {
		t.Errorf("unexpected implementations %q", got)
	}
}

func TestBuild(t *testing.T) {
	_, cache, r := setup(t, "Shapes")
	entry, _ := bytecode.ParseMethodRef("Main.total(LShape;LCircle;)D")
	g, err := callgraph.Build(context.Background(), r, cache, []bytecode.MethodRef{entry}, 2)
	if err != nil {
		t.Fatal(err)
	}
	var methods []string
	for _, m := range g.Methods {
		methods = append(methods, m.String())
	}
	expected := "Circle.area()D Main.helper()V Main.ping()V Main.pong()V Main.total(LShape;LCircle;)D " +
		"Shape.describe()Ljava/lang/String; Square.area()D"
	if got := strings.Join(methods, " "); got != expected {
		t.Errorf("expected reachable methods %q, got %q", expected, got)
	}
	if len(g.Unresolved) != 2 {
		t.Errorf("expected two unresolved call sites, got %d", len(g.Unresolved))
	}
	if len(g.Failures) != 0 {
		t.Errorf("unexpected failures %v", g.Failures)
	}
	sccs := g.SCCs()
	if len(sccs) != 1 || len(sccs[0]) != 2 || sccs[0][0].Name != "ping" || sccs[0][1].Name != "pong" {
		t.Errorf("expected ping and pong to be mutually recursive, got %v", sccs)
	}
	cycles := g.Cycles()
	if len(cycles) != 2 {
		t.Fatalf("expected two cycles, got %v", cycles)
	}
	if len(cycles[0]) != 3 || cycles[0][1].Name != "pong" || len(cycles[1]) != 2 || cycles[1][0].Name != "pong" {
		t.Errorf("unexpected cycles %v", cycles)
	}
	callees := g.Callees(entry)
	if len(callees) != 4 {
		t.Errorf("expected 4 callees of the entry, got %v", callees)
	}
	id, ok := g.ID(entry)
	if !ok || g.Digraph().From(id).Len() != 4 {
		t.Errorf("the digraph should have the edges of the entry")
	}
	var b bytes.Buffer
	if err := g.WriteText(&b); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(b.String(), "#0 -> Square.area()D (hierarchy)") {
		t.Errorf("unexpected output:\n%s", b.String())
	}
}
