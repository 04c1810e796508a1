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
	"errors"
	"testing"

	"github.com/awslabs/ar-jvm-tools/analysis/bytecode"
	"github.com/awslabs/ar-jvm-tools/analysis/config"
	"github.com/awslabs/ar-jvm-tools/analysis/ir"
)

func local(name string) ir.Value { return ir.Value{Kind: ir.Local, Name: name} }

func constant(lit string) ir.Value { return ir.Value{Kind: ir.Const, Name: lit} }

func call(class, name, desc string, lhs ir.Value, receiver ir.Value, args ...ir.Value) *ir.Statement {
	kind := ir.InvokeStatic
	if !receiver.IsNone() {
		kind = ir.InvokeVirtual
	}
	return &ir.Statement{
		Op:  ir.OpInvoke,
		Lhs: lhs,
		Call: &ir.Call{
			Kind:     kind,
			Target:   bytecode.MethodRef{Class: class, Name: name, Descriptor: desc},
			Receiver: receiver,
			Args:     args,
		},
	}
}

func rule(class, method string) config.RuleSpec {
	return config.RuleSpec{CodeIdentifier: config.CodeIdentifier{Class: class, Method: method}}
}

func TestParsePosition(t *testing.T) {
	tests := []struct {
		in      string
		want    Position
		wantErr bool
	}{
		{in: "this", want: Position{Kind: This, Fields: []string{}}},
		{in: "result", want: Position{Kind: ResultPosition, Fields: []string{}}},
		{in: "arg2", want: Position{Kind: Arg, Arg: 2, Fields: []string{}}},
		{in: "any-arg", want: Position{Kind: AnyArg, Fields: []string{}}},
		{in: "arg0.name.first", want: Position{Kind: Arg, Fields: []string{"name", "first"}}},
		{in: " this.f ", want: Position{Kind: This, Fields: []string{"f"}}},
		{in: "argx", wantErr: true},
		{in: "arg-1", wantErr: true},
		{in: "self", wantErr: true},
		{in: "arg0..f", wantErr: true},
	}
	for _, test := range tests {
		t.Run(test.in, func(t *testing.T) {
			got, err := ParsePosition(test.in)
			if test.wantErr {
				if err == nil {
					t.Errorf("expected an error, got %v", got)
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if got.String() != test.want.String() || got.Kind != test.want.Kind || got.Arg != test.want.Arg {
				t.Errorf("expected %v, got %v", test.want, got)
			}
		})
	}
}

func TestNewRuleSetEmpty(t *testing.T) {
	for name, spec := range map[string]config.TaintSpec{
		"no sink":   {Sources: []config.RuleSpec{rule("Source", "source")}},
		"no source": {Sinks: []config.RuleSpec{rule("Sink", "sink")}},
		"empty":     {},
	} {
		if _, err := NewRuleSet(spec); !errors.Is(err, ErrEmptyRuleSet) {
			t.Errorf("%s: expected an empty rule set error, got %v", name, err)
		}
	}
	entryOnly := config.TaintSpec{
		Sinks:       []config.RuleSpec{rule("Sink", "sink")},
		EntryPoints: []config.RuleSpec{rule("App", "main")},
	}
	if _, err := NewRuleSet(entryOnly); err != nil {
		t.Errorf("entry points are sources: %v", err)
	}
	nulls, err := NewRuleSet(config.TaintSpec{NullDereference: true})
	if err != nil {
		t.Fatalf("null dereferences need no source or sink: %v", err)
	}
	if nulls.Empty() || nulls.NullDereference() == nil || nulls.NullDereference().Name() != "null-dereference" {
		t.Errorf("expected the null dereference rule, got %v", nulls.NullDereference())
	}
	if _, err := NewRuleSet(config.TaintSpec{}); err == nil {
		t.Errorf("expected an error")
	}
}

func TestNewRuleSetInvalid(t *testing.T) {
	bad := rule("Source", "source")
	bad.Positions = []string{"nowhere"}
	spec := config.TaintSpec{Sources: []config.RuleSpec{bad}, Sinks: []config.RuleSpec{rule("Sink", "sink")}}
	if _, err := NewRuleSet(spec); err == nil {
		t.Errorf("expected an invalid position error")
	}
	cond := rule("Env", "get")
	cond.Conditions = []config.ConditionSpec{{ConstantMatches: "(", Position: "arg0"}}
	spec.Sources = []config.RuleSpec{cond}
	if _, err := NewRuleSet(spec); err == nil {
		t.Errorf("expected an invalid regex error")
	}
	field := config.RuleSpec{CodeIdentifier: config.CodeIdentifier{Class: "App", Field: "f"}}
	spec.Sources = []config.RuleSpec{rule("Source", "source")}
	spec.EntryPoints = []config.RuleSpec{field}
	if _, err := NewRuleSet(spec); err == nil {
		t.Errorf("expected an error for a field entry point")
	}
}

func TestRuleDefaults(t *testing.T) {
	rs, err := NewRuleSet(config.TaintSpec{
		Sources:      []config.RuleSpec{rule("Source", "source")},
		Sinks:        []config.RuleSpec{rule("Sink", "sink")},
		Sanitizers:   []config.RuleSpec{rule("Sanitizer", "clean")},
		PassThroughs: []config.RuleSpec{rule("Util", "wrap")},
		EntryPoints:  []config.RuleSpec{rule("App", "main")},
	})
	if err != nil {
		t.Fatal(err)
	}
	want := map[RuleKind]string{Source: "result", Sink: "any-arg", Sanitizer: "result", EntryPoint: "any-arg"}
	for kind, pos := range want {
		rules := rs.Rules(kind)
		if len(rules) != 1 || len(rules[0].Positions) != 1 || rules[0].Positions[0].String() != pos {
			t.Errorf("%s: expected default position %s, got %v", kind, pos, rules)
		}
	}
	pt := rs.Rules(PassThrough)[0]
	if pt.From[0].String() != "any-arg" || pt.To[0].String() != "result" {
		t.Errorf("unexpected pass-through positions %v -> %v", pt.From, pt.To)
	}
	if rs.Len() != 5 {
		t.Errorf("expected 5 rules, got %d", rs.Len())
	}
}

func TestMatchCallOrder(t *testing.T) {
	sink := rule("Sink", ".*")
	sink.CWE = []int{78}
	rs, err := NewRuleSet(config.TaintSpec{
		Sources:    []config.RuleSpec{rule("Sink", "sink"), rule("Source", "source")},
		Sinks:      []config.RuleSpec{sink},
		Sanitizers: []config.RuleSpec{rule("Sink", "sink")},
		Filters:    []config.CodeIdentifier{{Class: "Log"}},
	})
	if err != nil {
		t.Fatal(err)
	}
	n := call("Sink", "sink", "(Ljava/lang/String;)V", ir.Value{}, ir.Value{}, local("local0"))
	got := rs.MatchCall(n)
	if len(got) != 3 || got[0].Kind != Source || got[1].Kind != Sink || got[2].Kind != Sanitizer {
		t.Fatalf("expected the rules in declaration order, got %v", got)
	}
	for i := 1; i < len(got); i++ {
		if got[i-1].Index >= got[i].Index {
			t.Errorf("rule indices should increase: %v", got)
		}
	}
	if rs.IsFiltered(n) {
		t.Errorf("Sink.sink is not filtered")
	}
	if !rs.IsFiltered(call("Log", "info", "()V", ir.Value{}, ir.Value{})) {
		t.Errorf("Log.info is filtered")
	}
}

func TestConditions(t *testing.T) {
	source := rule("Env", "get")
	source.Conditions = []config.ConditionSpec{{ConstantMatches: "SECRET.*", Position: "arg0"}}
	notConst := rule("Env", "lookup")
	notConst.Conditions = []config.ConditionSpec{{IsConstant: "arg0", Not: true}}
	rs, err := NewRuleSet(config.TaintSpec{
		Sources: []config.RuleSpec{source, notConst},
		Sinks:   []config.RuleSpec{rule("Sink", "sink")},
	})
	if err != nil {
		t.Fatal(err)
	}
	desc := "(Ljava/lang/String;)Ljava/lang/String;"
	tests := []struct {
		n    *ir.Statement
		want int
	}{
		{call("Env", "get", desc, local("local0"), ir.Value{}, constant(`"SECRET_KEY"`)), 1},
		{call("Env", "get", desc, local("local0"), ir.Value{}, constant(`"HOME"`)), 0},
		{call("Env", "get", desc, local("local0"), ir.Value{}, local("local1")), 0},
		{call("Env", "lookup", desc, local("local0"), ir.Value{}, local("local1")), 1},
		{call("Env", "lookup", desc, local("local0"), ir.Value{}, constant(`"HOME"`)), 0},
	}
	for i, test := range tests {
		if got := rs.MatchCall(test.n); len(got) != test.want {
			t.Errorf("case %d: expected %d rules, got %v", i, test.want, got)
		}
	}
}

func TestPositionPaths(t *testing.T) {
	n := call("Box", "put", "(Ljava/lang/String;I)V", ir.Value{}, local("local0"), local("local1"),
		constant("3"))
	tests := []struct {
		pos  string
		want []string
	}{
		{"this", []string{"local0"}},
		{"this.val", []string{"local0.val"}},
		{"arg0", []string{"local1"}},
		{"arg1", nil},
		{"any-arg", []string{"local1"}},
		{"result", nil},
		{"arg5", nil},
	}
	for _, test := range tests {
		p, err := ParsePosition(test.pos)
		if err != nil {
			t.Fatal(err)
		}
		paths := p.paths(n, 5)
		if len(paths) != len(test.want) {
			t.Errorf("%s: expected %v, got %v", test.pos, test.want, paths)
			continue
		}
		for i := range paths {
			if paths[i].String() != test.want[i] {
				t.Errorf("%s: expected %v, got %v", test.pos, test.want, paths)
			}
		}
	}
}

func TestWithDoesNotModify(t *testing.T) {
	rs, err := NewRuleSet(config.TaintSpec{
		Sources: []config.RuleSpec{rule("Source", "source")},
		Sinks:   []config.RuleSpec{rule("Sink", "sink")},
	})
	if err != nil {
		t.Fatal(err)
	}
	more, err := rs.With(Sanitizer, rule("Util", "wrap"))
	if err != nil {
		t.Fatal(err)
	}
	if rs.Len() != 2 || more.Len() != 3 || more.Rules(Sanitizer)[0].Index != 2 {
		t.Errorf("unexpected rule sets %d, %d", rs.Len(), more.Len())
	}
}
