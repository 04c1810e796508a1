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
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"testing"

	"github.com/awslabs/ar-jvm-tools/analysis/bytecode"
	"github.com/awslabs/ar-jvm-tools/analysis/callgraph"
	"github.com/awslabs/ar-jvm-tools/analysis/config"
	"github.com/awslabs/ar-jvm-tools/analysis/dataflow"
	"github.com/awslabs/ar-jvm-tools/analysis/ir"
	"github.com/awslabs/ar-jvm-tools/internal/analysistest"
)

func TestAddError(t *testing.T) {
	state := newState(t, "Taint")
	state.AddError("b", errors.New("first"))
	state.AddError("b", fmt.Errorf("first"))
	state.AddError("a", errors.New("second"))
	state.AddError("a", nil)
	errs := state.Errors()
	if len(errs) != 2 || len(errs["a"]) != 1 || len(errs["b"]) != 1 {
		t.Errorf("expected one error per key, got %v", errs)
	}
	if !state.HasErrors() {
		t.Errorf("expected errors")
	}
	// Errors returns a copy
	errs["a"] = nil
	if len(state.Errors()["a"]) != 1 {
		t.Errorf("the state errors should not change")
	}
}

func TestMethodErrors(t *testing.T) {
	state := newState(t, "Malformed")
	if _, err := state.Method(bytecode.MethodRef{Class: "Bad", Name: "underflow", Descriptor: "()V"}); err == nil {
		t.Fatalf("expected a stack underflow")
	}
	if _, ok := state.Errors()["Bad.underflow()V"]; !ok {
		t.Errorf("build errors are recorded under the method, got %v", state.Errors())
	}
	taint := newState(t, "Taint")
	if _, err := taint.Method(bytecode.MethodRef{Class: "Source", Name: "source",
		Descriptor: "()Ljava/lang/String;"}); !errors.Is(err, ir.ErrNoBody) {
		t.Errorf("expected a method without body, got %v", err)
	}
	if taint.HasErrors() {
		t.Errorf("methods without body are not errors, got %v", taint.Errors())
	}
}

func TestCallees(t *testing.T) {
	state := newState(t, "Taint")
	m := entry(t, state, "App.virtualCall()V")
	var found bool
	for _, n := range m.Statements {
		if n.Op != ir.OpInvoke || n.Call.Target.Name != "handle" {
			continue
		}
		found = true
		callees, err := state.Callees(n)
		if err != nil {
			t.Fatal(err)
		}
		if len(callees) != 2 {
			t.Errorf("expected both Handler implementations, got %d", len(callees))
		}
	}
	if !found {
		t.Fatalf("no call to handle in %s", m.Ref)
	}
	m = entry(t, state, "App.unresolved()V")
	for _, n := range m.Statements {
		if n.Op == ir.OpInvoke && n.Call.Target.Class == "Unknown" {
			if _, err := state.Callees(n); !errors.Is(err, callgraph.ErrUnresolvedCallee) {
				t.Errorf("expected an unresolved callee, got %v", err)
			}
		}
	}
}

func TestEntryMethods(t *testing.T) {
	cfg := analysistest.LoadConfig(t, "taint")
	db := analysistest.LoadProgram(t, "Taint")
	state := dataflow.NewAnalyzerState(db, config.NewLogGroupWithLevel(config.ErrLevel, io.Discard), cfg)
	entries := state.EntryMethods()
	if len(entries) == 0 {
		t.Fatalf("expected the methods of App")
	}
	for _, e := range entries {
		if e.Class != "App" {
			t.Errorf("unexpected entry %s", e)
		}
	}
	g, err := state.Prebuild(context.Background(), entries)
	if err != nil {
		t.Fatal(err)
	}
	if len(g.Methods) <= len(entries) {
		t.Errorf("expected the callees of App to be reachable, got %d methods", len(g.Methods))
	}
	var unknown bool
	for _, s := range g.Unresolved {
		unknown = unknown || strings.Contains(s.String(), "Unknown.transform")
	}
	if !unknown {
		t.Errorf("expected the call to Unknown.transform to be unresolved, got %v", g.Unresolved)
	}
}

func TestPrebuildOnce(t *testing.T) {
	cfg := analysistest.LoadConfig(t, "taint")
	db := analysistest.LoadProgram(t, "Taint")
	var out strings.Builder
	state := dataflow.NewAnalyzerState(db, config.NewLogGroupWithLevel(config.InfoLevel, &out), cfg)
	entries := state.EntryMethods()
	if len(entries) < 2 {
		t.Fatalf("expected several entry points, got %v", entries)
	}
	g1, err := state.Prebuild(context.Background(), entries)
	if err != nil {
		t.Fatal(err)
	}
	reversed := append([]bytecode.MethodRef(nil), entries...)
	for i, j := 0, len(reversed)-1; i < j; i, j = i+1, j-1 {
		reversed[i], reversed[j] = reversed[j], reversed[i]
	}
	g2, err := state.Prebuild(context.Background(), reversed)
	if err != nil {
		t.Fatal(err)
	}
	if g1 != g2 {
		t.Errorf("the same entry points should return the same call graph")
	}
	g3, err := state.Prebuild(context.Background(), entries[:1])
	if err != nil {
		t.Fatal(err)
	}
	if g3 == g1 {
		t.Errorf("other entry points should build another call graph")
	}
	if n := strings.Count(out.String(), "Built "); n != 2 {
		t.Errorf("expected 2 builds, got %d:\n%s", n, out.String())
	}
}
