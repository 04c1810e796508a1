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

package ir_test

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/awslabs/ar-jvm-tools/analysis/bytecode"
	"github.com/awslabs/ar-jvm-tools/analysis/classdb"
	"github.com/awslabs/ar-jvm-tools/analysis/hierarchy"
	"github.com/awslabs/ar-jvm-tools/analysis/ir"
	"github.com/awslabs/ar-jvm-tools/internal/analysistest"
)

func build(t *testing.T, db *classdb.DB, method string) *ir.Method {
	t.Helper()
	ref, err := bytecode.ParseMethodRef(method)
	if err != nil {
		t.Fatalf("bad method reference %s: %v", method, err)
	}
	body, err := db.ResolveMethodBody(ref.Class, ref.Signature())
	if err != nil {
		t.Fatalf("could not find %s: %v", method, err)
	}
	m, err := ir.Build(body, hierarchy.New(db))
	if err != nil {
		t.Fatalf("could not build %s: %v", method, err)
	}
	return m
}

func checkStatements(t *testing.T, m *ir.Method, expected []string) {
	t.Helper()
	if len(m.Statements) != len(expected) {
		var b bytes.Buffer
		_ = m.WriteText(&b)
		t.Fatalf("expected %d statements, got %d:\n%s", len(expected), len(m.Statements), b.String())
	}
	for i, s := range m.Statements {
		if s.Index != i {
			t.Errorf("statement %d has index %d", i, s.Index)
		}
		if s.String() != expected[i] {
			t.Errorf("statement %d: expected %q, got %q", i, expected[i], s.String())
		}
	}
}

func hasEdge(m *ir.Method, from, to int, kind ir.EdgeKind) bool {
	for _, e := range m.Succs(from) {
		if e.To == to && e.Kind == kind {
			return true
		}
	}
	return false
}

func TestTestPrimitives(t *testing.T) {
	db := analysistest.LoadProgram(t, "IRExamples")
	m := build(t, db, "IRExamples.testPrimitives(II)I")
	checkStatements(t, m, []string{
		"local3 = 0",
		"if arg0 <= arg1 goto 4",
		"local3 = arg0",
		"goto 5",
		"local3 = arg1",
		"local4 = local3",
		"local5 = 0",
		"if local4 <= 100 goto 11",
		"%0 = 100 - local4",
		"local5 = %0",
		"goto 13",
		"%0 = -local4",
		"local5 = %0",
		"return local5",
		"exit",
	})
	// both branches of the first if are in the graph
	succs := m.Succs(1)
	if len(succs) != 2 {
		t.Fatalf("expected two successors of the first if, got %v", succs)
	}
	if succs[0].Kind != ir.EdgeTrue || succs[0].To != 4 {
		t.Errorf("expected a true edge to 4, got %v", succs[0])
	}
	if succs[1].Kind != ir.EdgeFalse || succs[1].To != 2 {
		t.Errorf("expected a false edge to 2, got %v", succs[1])
	}
	if len(m.BackEdges()) != 0 {
		t.Errorf("expected no back edges, got %v", m.BackEdges())
	}
	if m.Entry != 0 || m.UnhandledExit != 14 {
		t.Errorf("unexpected entry %d or unhandled exit %d", m.Entry, m.UnhandledExit)
	}
	if len(m.Exits) != 2 || m.Exits[0] != 13 || m.Exits[1] != 14 {
		t.Errorf("expected exits [13 14], got %v", m.Exits)
	}
	if !m.Reachable(13) || m.Reachable(14) {
		t.Errorf("the return is reachable and the unhandled exit is not")
	}
	if len(m.Params) != 3 || m.Params[0].Name != "this" || m.Params[2].Name != "arg1" {
		t.Errorf("unexpected parameters %v", m.Params)
	}
	if preds := m.Preds(5); len(preds) != 2 {
		t.Errorf("expected the join after the first if to have two predecessors, got %v", preds)
	}
}

func TestRunBinarySearchIteratively(t *testing.T) {
	db := analysistest.LoadProgram(t, "IRExamples")
	m := build(t, db, "IRExamples.runBinarySearchIteratively([IIII)I")
	checkStatements(t, m, []string{
		"local5 = 2147483647",
		"if arg2 > arg3 goto 20",
		"%1 = arg3 - arg2",
		"%1 = %1 / 2",
		"%0 = arg2 + %1",
		"local6 = %0",
		"%0 = arg0[local6]",
		"if %0 >= arg1 goto 11",
		"%0 = local6 + 1",
		"arg2 = %0",
		"goto 1",
		"%0 = arg0[local6]",
		"if %0 <= arg1 goto 16",
		"%0 = local6 - 1",
		"arg3 = %0",
		"goto 1",
		"%0 = arg0[local6]",
		"if %0 != arg1 goto 1",
		"local5 = local6",
		"goto 20",
		"return local5",
		"exit",
	})
	back := m.BackEdges()
	if len(back) != 3 {
		t.Fatalf("expected 3 back edges, got %v", back)
	}
	for _, e := range back {
		if e.To != 1 {
			t.Errorf("back edge %v does not go to the loop condition", e)
		}
	}
	loops := m.Loops()
	if len(loops) != 1 || loops[0][0] != 1 || loops[0][len(loops[0])-1] != 17 {
		t.Errorf("expected one loop from 1 to 17, got %v", loops)
	}
	// divisions and array reads may throw, and nothing catches
	for _, i := range []int{3, 6, 11, 16} {
		if !hasEdge(m, i, m.UnhandledExit, ir.EdgeException) {
			t.Errorf("expected an exception edge from %d to the unhandled exit", i)
		}
	}
	if !m.Reachable(m.UnhandledExit) {
		t.Errorf("the unhandled exit should be reachable")
	}
}

func TestTryWithResources(t *testing.T) {
	db := analysistest.LoadProgram(t, "IRExamples")
	m := build(t, db, "IRExamples.sortTimes(Ljava/lang/String;Ljava/lang/String;)V")
	checkStatements(t, m, []string{
		"%0 = new java/io/BufferedReader",
		"%2 = new java/io/FileReader",
		"invokespecial %2.<init>(arg0) [java/io/FileReader.<init>(Ljava/lang/String;)V]",
		"invokespecial %0.<init>(%2) [java/io/BufferedReader.<init>(Ljava/io/Reader;)V]",
		"local3 = %0",
		"%0 = invokevirtual local3.readLine() [java/io/BufferedReader.readLine()Ljava/lang/String;]",
		"local4 = %0",
		"if %0 == null goto 16",
		"%0 = invokevirtual local4.substring(0, 2) [java/lang/String.substring(II)Ljava/lang/String;]",
		"local2 = %0",
		"%0 = invokestatic java/lang/Integer.parseInt(local2) [java/lang/Integer.parseInt(Ljava/lang/String;)I]",
		"if %0 < 60 goto 5",
		"%0 = new java/lang/NumberFormatException",
		"invokespecial %0.<init>() [java/lang/NumberFormatException.<init>()V]",
		"throw %0",
		"return",
		"invokevirtual local3.close() [java/io/BufferedReader.close()V]",
		"goto 15",
		"$0 = catch any",
		"invokevirtual local3.close() [java/io/BufferedReader.close()V]",
		"throw $0",
		"exit",
	})
	closeCall := m.Statement(16)
	if !closeCall.Synthetic || closeCall.Op != ir.OpInvoke || closeCall.Call.Receiver.Name != "local3" {
		t.Errorf("expected a synthetic close of local3, got %v", closeCall)
	}
	if !hasEdge(m, 16, m.UnhandledExit, ir.EdgeException) {
		t.Errorf("the close call should have its own exception edge")
	}
	if !hasEdge(m, 7, 16, ir.EdgeTrue) || hasEdge(m, 7, 15, ir.EdgeTrue) {
		t.Errorf("leaving the resource scope should go through the close call: %v", m.Succs(7))
	}
	if preds := m.Preds(15); len(preds) != 1 || preds[0].From != 17 {
		t.Errorf("the statement after the scope should only be reached from the close path, got %v", preds)
	}
	for _, i := range []int{5, 8, 10, 12, 13, 14} {
		succs := m.Succs(i)
		exc := 0
		for _, e := range succs {
			if e.Kind == ir.EdgeException {
				exc++
				if e.To != 18 {
					t.Errorf("statement %d: exception edge %v should go to the resource handler", i, e)
				}
			}
		}
		if exc != 1 {
			t.Errorf("statement %d: expected one exception edge, got %v", i, succs)
		}
	}
	if !hasEdge(m, 20, m.UnhandledExit, ir.EdgeException) {
		t.Errorf("the rethrow should leave the method")
	}
	if !m.Reachable(18) || !m.Reachable(15) {
		t.Errorf("handler and exit paths should be reachable")
	}
	if len(m.BackEdges()) != 1 || m.BackEdges()[0].From != 11 {
		t.Errorf("expected the loop back edge from 11, got %v", m.BackEdges())
	}
}

func TestExceptionTableOrder(t *testing.T) {
	db := analysistest.LoadProgram(t, "IRExamples")
	m := build(t, db, "IRExamples.parseOrDefault(Ljava/lang/String;)I")
	if s := m.Statement(5).String(); s != "%0 = catch java/lang/NumberFormatException" {
		t.Errorf("unexpected handler statement %q", s)
	}
	if s := m.Statement(11).String(); s != "%0 = catch any" {
		t.Errorf("unexpected finally statement %q", s)
	}
	var exc []ir.Edge
	for _, e := range m.Succs(0) {
		if e.Kind == ir.EdgeException {
			exc = append(exc, e)
		}
	}
	if len(exc) != 2 {
		t.Fatalf("expected two exception edges from the call, got %v", exc)
	}
	if exc[0].To != 5 || exc[0].CatchType != "java/lang/NumberFormatException" || exc[1].To != 11 || exc[1].CatchType != "" {
		t.Errorf("exception edges do not follow the table order: %v", exc)
	}
	if !hasEdge(m, 3, m.UnhandledExit, ir.EdgeException) {
		t.Errorf("the call outside the protected range should reach the unhandled exit")
	}
	if s := m.Statement(15).String(); s != "throw local1" {
		t.Errorf("unexpected rethrow %q", s)
	}
	if got := len(m.Exits); got != 3 {
		t.Errorf("expected two returns and the unhandled exit, got %v", m.Exits)
	}
}

func TestCategory2Shuffles(t *testing.T) {
	db := analysistest.LoadProgram(t, "IRExamples")
	m := build(t, db, "IRExamples.stackShuffle(JI)J")
	checkStatements(t, m, []string{
		"%1 = i2l(arg1)",
		"%0 = arg0 + %1",
		"return %0",
		"exit",
	})
}

func TestEmptyBody(t *testing.T) {
	db := analysistest.LoadProgram(t, "IRExamples")
	m := build(t, db, "IRExamples.empty()V")
	if len(m.Statements) != 1 || m.Entry != 0 || m.UnhandledExit != 0 || !m.IsExit(m.Entry) {
		t.Errorf("an empty body should have entry == exit, got %d statements", len(m.Statements))
	}
}

func TestUnreachableCode(t *testing.T) {
	db := analysistest.LoadProgram(t, "Malformed")
	m := build(t, db, "Dead.code()V")
	// return, three unreachable instructions and the unhandled exit
	if len(m.Statements) != 5 {
		t.Fatalf("expected one statement per instruction, got %d", len(m.Statements))
	}
	for i, offset := range []int{1, 2, 3} {
		s := m.Statements[i+1]
		if !s.Dead || s.Op != ir.OpNop || s.Offset != offset {
			t.Errorf("expected an unreachable placeholder at offset %d, got %s @%d", offset, s, s.Offset)
		}
		if m.Reachable(s.Index) || len(m.Succs(s.Index)) != 0 || len(m.Preds(s.Index)) != 0 {
			t.Errorf("unreachable statement %d should be disconnected", s.Index)
		}
	}
	if got := m.Statements[2].String(); got != "unreachable pop" {
		t.Errorf("expected the opcode to be kept, got %q", got)
	}
}

func TestMalformed(t *testing.T) {
	db := analysistest.LoadProgram(t, "Malformed")
	for _, name := range []string{"underflow", "badTarget", "fallsOff", "subroutine", "invertedRange", "badHandler",
		"deadRange"} {
		body, err := db.ResolveMethodBody("Bad", bytecode.Signature{Name: name, Descriptor: "()V"})
		if err != nil {
			t.Fatalf("missing method %s: %v", name, err)
		}
		if _, err := ir.Build(body, nil); !errors.Is(err, ir.ErrMalformedBytecode) {
			t.Errorf("%s: expected malformed bytecode, got %v", name, err)
		}
	}
	body, err := db.ResolveMethodBody("Bad", bytecode.Signature{Name: "inconsistent", Descriptor: "(I)V"})
	if err != nil {
		t.Fatal(err)
	}
	_, err = ir.Build(body, nil)
	if !errors.Is(err, ir.ErrMalformedBytecode) || !strings.Contains(err.Error(), "Bad.inconsistent(I)V") {
		t.Errorf("expected malformed bytecode naming the method, got %v", err)
	}
}

func TestCache(t *testing.T) {
	db := analysistest.LoadProgram(t, "Malformed")
	cache := ir.NewCache(db, hierarchy.New(db))
	if err := cache.Prebuild(context.Background(), db.Methods(), 4); err != nil {
		t.Fatalf("prebuild failed: %v", err)
	}
	failures := cache.Failures()
	if len(failures) != 8 {
		t.Errorf("expected 8 failures, got %d: %v", len(failures), failures)
	}
	fine := bytecode.MethodRef{Class: "Bad", Name: "fine", Descriptor: "()V"}
	m1, err := cache.Get(fine)
	if err != nil {
		t.Fatalf("could not build %s: %v", fine, err)
	}
	m2, _ := cache.Get(fine)
	if m1 != m2 {
		t.Errorf("the cache should build methods once")
	}
	if db.Lookups() != len(db.Methods()) {
		t.Errorf("expected one lookup per method, got %d", db.Lookups())
	}
	if _, err := cache.Get(bytecode.MethodRef{Class: "Bad", Name: "nothing", Descriptor: "()V"}); !errors.Is(err, bytecode.ErrMethodNotFound) {
		t.Errorf("expected method not found, got %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := ir.NewCache(db, nil).Prebuild(ctx, db.Methods(), 2); err == nil {
		t.Errorf("expected a cancelled prebuild to fail")
	}
}

func TestNoBody(t *testing.T) {
	db := analysistest.LoadProgram(t, "Shapes")
	body, err := db.ResolveMethodBody("Shape", bytecode.Signature{Name: "area", Descriptor: "()D"})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := ir.Build(body, nil); !errors.Is(err, ir.ErrNoBody) {
		t.Errorf("expected no body, got %v", err)
	}
}

func TestWriteDot(t *testing.T) {
	db := analysistest.LoadProgram(t, "IRExamples")
	m := build(t, db, "IRExamples.runBinarySearchIteratively([IIII)I")
	var b bytes.Buffer
	if err := m.WriteDot(&b); err != nil {
		t.Fatal(err)
	}
	out := b.String()
	if !strings.HasPrefix(out, "digraph") || !strings.Contains(out, "n10 -> n1 [color=red]") {
		t.Errorf("unexpected dot output:\n%s", out)
	}
	if m.Graph().Order() != len(m.Statements) || !m.Graph().HasEdgeFromTo(10, 1) {
		t.Errorf("graph view does not match the statements")
	}
}
