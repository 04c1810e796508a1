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

package taint

import (
	"context"
	"io"
	"testing"

	"github.com/awslabs/ar-jvm-tools/analysis/bytecode"
	"github.com/awslabs/ar-jvm-tools/analysis/config"
	"github.com/awslabs/ar-jvm-tools/analysis/dataflow"
	"github.com/awslabs/ar-jvm-tools/analysis/ir"
	"github.com/awslabs/ar-jvm-tools/internal/analysistest"
)

var normalEdge = ir.Edge{Kind: ir.EdgeNormal}

func newTestProblem(t *testing.T, spec config.TaintSpec) *problem {
	t.Helper()
	rs, err := NewRuleSet(spec)
	if err != nil {
		t.Fatal(err)
	}
	return newProblem(nil, rs, 3)
}

func path(base string, fields ...string) dataflow.AccessPath {
	p := dataflow.NewAccessPath(base)
	for _, f := range fields {
		p = p.Extend(f, 3)
	}
	return p
}

func paths(facts []dataflow.Fact) []string {
	var res []string
	for _, f := range facts {
		res = append(res, f.Path.String())
	}
	return res
}

func checkPaths(t *testing.T, what string, facts []dataflow.Fact, want ...string) {
	t.Helper()
	got := paths(facts)
	if len(got) != len(want) {
		t.Errorf("%s: expected %v, got %v", what, want, got)
		return
	}
	for i := range got {
		if got[i] != want[i] {
			t.Errorf("%s: expected %v, got %v", what, want, got)
			return
		}
	}
}

var basicSpec = config.TaintSpec{
	Sources:      []config.RuleSpec{rule("Source", "source")},
	Sinks:        []config.RuleSpec{rule("Sink", "sink")},
	Sanitizers:   []config.RuleSpec{rule("Sanitizer", "clean")},
	PassThroughs: []config.RuleSpec{rule("Util", "wrap")},
}

func TestNormalFlows(t *testing.T) {
	p := newTestProblem(t, basicSpec)
	src := &ir.Statement{}
	fact := func(ap dataflow.AccessPath) dataflow.Fact { return dataflow.NewFact(ap, src, "") }

	copyStmt := &ir.Statement{Op: ir.OpAssign, Lhs: local("local1"),
		Rhs: ir.Expr{Kind: ir.ExprCopy, Operands: []ir.Value{local("local0")}}}
	checkPaths(t, "copy", p.Normal(copyStmt, normalEdge, fact(path("local0", "f"))), "local0.f", "local1.f")
	checkPaths(t, "overwrite", p.Normal(copyStmt, normalEdge, fact(path("local1"))))
	checkPaths(t, "exception edge", p.Normal(copyStmt, ir.Edge{Kind: ir.EdgeException}, fact(path("local1"))),
		"local1")

	binary := &ir.Statement{Op: ir.OpAssign, Lhs: local("local2"),
		Rhs: ir.Expr{Kind: ir.ExprBinary, Operands: []ir.Value{local("local0"), local("local1")}}}
	checkPaths(t, "binary", p.Normal(binary, normalEdge, fact(path("local1"))), "local1", "local2")
	checkPaths(t, "binary on a field", p.Normal(binary, normalEdge, fact(path("local1", "f"))), "local1.f")

	read := &ir.Statement{Op: ir.OpFieldRead, Lhs: local("local1"), Base: local("local0"),
		Field: bytecode.FieldRef{Class: "Box", Name: "val"}}
	checkPaths(t, "field read", p.Normal(read, normalEdge, fact(path("local0", "val", "x"))),
		"local0.val.x", "local1.x")
	checkPaths(t, "other field", p.Normal(read, normalEdge, fact(path("local0", "other"))), "local0.other")

	write := &ir.Statement{Op: ir.OpFieldWrite, Base: local("local0"), Src: local("local1"),
		Field: bytecode.FieldRef{Class: "Box", Name: "val"}}
	checkPaths(t, "field write", p.Normal(write, normalEdge, fact(path("local1"))), "local1", "local0.val")
	checkPaths(t, "strong update", p.Normal(write, normalEdge, fact(path("local0", "val", "x"))))

	arrayWrite := &ir.Statement{Op: ir.OpArrayWrite, Base: local("local0"), Elem: constant("0"),
		Src: local("local1")}
	checkPaths(t, "weak update", p.Normal(arrayWrite, normalEdge, fact(path("local0", dataflow.ArrayElement))),
		"local0.[]")

	static := &ir.Statement{Op: ir.OpStaticWrite, Src: local("local1"),
		Field: bytecode.FieldRef{Class: "App", Name: "cache"}}
	checkPaths(t, "static write", p.Normal(static, normalEdge, fact(path("local1"))), "local1",
		dataflow.NewStaticPath("App", "cache").String())
}

func TestCallToReturnFlows(t *testing.T) {
	p := newTestProblem(t, basicSpec)
	desc := "(Ljava/lang/String;)Ljava/lang/String;"
	source := call("Source", "source", "()Ljava/lang/String;", local("local0"), ir.Value{})
	got := p.CallToReturn(source, normalEdge, dataflow.Zero, nil)
	if len(got) != 2 || !got[0].IsZero() || got[1].Source != source || got[1].Path.String() != "local0" {
		t.Errorf("expected the zero fact and the source fact, got %v", got)
	}
	if p.callInfo(source).opaque() != true {
		t.Errorf("source calls are not analyzed")
	}

	old := dataflow.NewFact(path("local1"), source, "")
	wrap := call("Util", "wrap", desc, local("local2"), ir.Value{}, local("local1"))
	checkPaths(t, "pass-through", p.CallToReturn(wrap, normalEdge, old, nil), "local1", "local2")

	clean := call("Sanitizer", "clean", desc, local("local2"), ir.Value{}, local("local1"))
	checkPaths(t, "sanitizer", p.CallToReturn(clean, normalEdge, old, nil), "local1")

	field := dataflow.NewFact(path("local1", "f"), source, "")
	other := call("App", "update", "(LBox;)V", ir.Value{}, ir.Value{}, local("local1"))
	checkPaths(t, "opaque call", p.CallToReturn(other, normalEdge, field, nil), "local1.f")
	checkPaths(t, "analyzed call", p.CallToReturn(other, normalEdge, field, []*ir.Method{{}}))
}

func TestSanitizerBeforePassThrough(t *testing.T) {
	spec := basicSpec
	spec.Sanitizers = []config.RuleSpec{rule("Util", "wrap")}
	p := newTestProblem(t, spec)
	source := call("Source", "source", "()Ljava/lang/String;", local("local0"), ir.Value{})
	wrap := call("Util", "wrap", "(Ljava/lang/String;)Ljava/lang/String;", local("local2"), ir.Value{},
		local("local1"))
	checkPaths(t, "sanitized pass-through",
		p.CallToReturn(wrap, normalEdge, dataflow.NewFact(path("local1"), source, ""), nil), "local1")
}

func TestTaintSurvivesResourceClose(t *testing.T) {
	db := analysistest.LoadProgram(t, "IRExamples")
	state := dataflow.NewAnalyzerState(db, config.NewLogGroupWithLevel(config.ErrLevel, io.Discard), nil)
	rs, err := NewRuleSet(config.TaintSpec{
		Sources: []config.RuleSpec{rule("java/io/BufferedReader", "readLine")},
		Sinks:   []config.RuleSpec{rule("java/lang/Integer", "parseInt")},
	})
	if err != nil {
		t.Fatal(err)
	}
	ref, err := bytecode.ParseMethodRef("IRExamples.sortTimes(Ljava/lang/String;Ljava/lang/String;)V")
	if err != nil {
		t.Fatal(err)
	}
	m, err := state.Method(ref)
	if err != nil {
		t.Fatal(err)
	}
	p := newProblem(state, rs, config.DefaultMaxAccessPathDepth)
	s := dataflow.NewSolver(p, p, dataflow.SolverOptions{RetainProvenance: true}, state.Logger)
	if err := s.Solve(context.Background(), []*ir.Method{m}); err != nil {
		t.Fatal(err)
	}
	readLine := m.Statement(5)
	want := dataflow.NewFact(dataflow.NewAccessPath("local4"), readLine, "")
	// the return is only reached through the synthetic close of the reader
	found := false
	for _, f := range s.FactsAt(m.Statement(15)) {
		if f == want {
			found = true
		}
	}
	if !found {
		t.Errorf("the line read should still be tainted after the close, got %v", s.FactsAt(m.Statement(15)))
	}
	if !s.Reached(dataflow.PathEdge{Start: m.Statement(m.Entry), StartFact: dataflow.Zero, Node: m.Statement(16),
		Fact: want}) {
		t.Errorf("the close call should be reached with the tainted line")
	}
	// substring is not part of the program and has no rule: its result is not tainted
	if len(p.hits) != 0 {
		t.Errorf("expected no flow, got %v", p.hits)
	}
}

func TestNullFlows(t *testing.T) {
	p := newTestProblem(t, config.TaintSpec{NullDereference: true})
	null := constant("null")

	assign := &ir.Statement{Op: ir.OpAssign, Lhs: local("local0"),
		Rhs: ir.Expr{Kind: ir.ExprCopy, Operands: []ir.Value{null}}}
	got := p.Normal(assign, normalEdge, dataflow.Zero)
	if len(got) != 2 || !got[0].IsZero() || got[1].Mark != NullMark || got[1].Source != assign {
		t.Fatalf("expected the null fact of local0, got %v", got)
	}
	isNullFact := got[1]
	checkPaths(t, "null constant", got[1:], "local0")

	test := &ir.Statement{Op: ir.OpIf, Cond: ir.Condition{Operator: "==", Left: local("local0"), Right: null}}
	checkPaths(t, "null branch", p.Normal(test, ir.Edge{Kind: ir.EdgeTrue}, dataflow.Zero), "", "local0")
	checkPaths(t, "non-null branch", p.Normal(test, ir.Edge{Kind: ir.EdgeFalse}, dataflow.Zero), "")
	checkPaths(t, "refuted", p.Normal(test, ir.Edge{Kind: ir.EdgeFalse}, isNullFact))
	checkPaths(t, "confirmed", p.Normal(test, ir.Edge{Kind: ir.EdgeTrue}, isNullFact), "local0")

	read := &ir.Statement{Op: ir.OpFieldRead, Lhs: local("local1"), Base: local("local0"),
		Field: bytecode.FieldRef{Class: "Box", Name: "val"}}
	checkPaths(t, "dereferenced", p.Normal(read, normalEdge, isNullFact))
	checkPaths(t, "dereference failed", p.Normal(read, ir.Edge{Kind: ir.EdgeException}, isNullFact), "local0")

	hash := call("java/lang/Object", "hashCode", "()I", local("local2"), local("local0"))
	checkPaths(t, "receiver", p.CallToReturn(hash, normalEdge, isNullFact, nil))
	p.Visit(dataflow.PathEdge{Node: hash, Fact: isNullFact})
	p.Visit(dataflow.PathEdge{Node: hash, Fact: dataflow.NewFact(path("local0"), assign, "")})
	if len(p.hits) != 1 || p.hits[0].rule.Kind != Dereference {
		t.Errorf("expected one null dereference, got %v", p.hits)
	}

	use := call("App", "use", "(Ljava/lang/Object;)V", ir.Value{}, ir.Value{}, null)
	callee := &ir.Method{Params: []ir.Value{local("arg0")}}
	got = p.Call(use, callee, dataflow.Zero)
	if len(got) != 2 || !got[0].IsZero() || got[1].Source != use {
		t.Fatalf("expected the null fact of the parameter, got %v", got)
	}
	checkPaths(t, "null argument", got[1:], "arg0")

	ret := &ir.Statement{Op: ir.OpReturn, Src: null}
	get := call("App", "get", "()Ljava/lang/Object;", local("local3"), ir.Value{})
	got = p.Return(get, normalEdge, callee, ret, dataflow.Zero)
	if len(got) != 1 || got[0].Source != ret {
		t.Fatalf("expected the null fact of the result, got %v", got)
	}
	checkPaths(t, "null result", got, "local3")
}

func TestNullFactsIgnoreUnmarkedRules(t *testing.T) {
	spec := basicSpec
	spec.NullDereference = true
	p := newTestProblem(t, spec)
	sink := call("Sink", "sink", "(Ljava/lang/String;)V", ir.Value{}, ir.Value{}, local("local0"))
	p.Visit(dataflow.PathEdge{Node: sink, Fact: dataflow.NewFact(path("local0"), &ir.Statement{}, NullMark)})
	if len(p.hits) != 0 {
		t.Errorf("a null value is not tainted, got %v", p.hits)
	}
	clean := call("Sanitizer", "clean", "(Ljava/lang/String;)Ljava/lang/String;", local("local1"), ir.Value{},
		local("local0"))
	checkPaths(t, "null fact through a sanitizer",
		p.CallToReturn(clean, normalEdge, dataflow.NewFact(path("local0"), &ir.Statement{}, NullMark), nil),
		"local0")
}
