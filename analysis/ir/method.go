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

package ir

import (
	"fmt"
	"io"
	"strconv"

	"github.com/awslabs/ar-jvm-tools/analysis/bytecode"
	"github.com/awslabs/ar-jvm-tools/internal/graphutil"
	"golang.org/x/exp/slices"
	"golang.org/x/tools/container/intsets"
	"gonum.org/v1/gonum/graph"
	"gonum.org/v1/gonum/graph/traverse"
)

// EdgeKind is the kind of a control flow edge
type EdgeKind uint8

// Edge kinds
const (
	EdgeNormal EdgeKind = iota
	EdgeTrue
	EdgeFalse
	EdgeException
)

func (k EdgeKind) String() string {
	switch k {
	case EdgeTrue:
		return "true"
	case EdgeFalse:
		return "false"
	case EdgeException:
		return "exception"
	}
	return "normal"
}

// Edge is a control flow edge between two statements of a method
type Edge struct {
	From, To int
	Kind     EdgeKind
	// CatchType is the type caught by the handler of exception edges; empty for catch-all handlers and for edges to
	// the unhandled exit
	CatchType string
	// Back is set for edges closing a cycle in the depth-first order from the entry
	Back bool
}

func (e Edge) String() string {
	s := fmt.Sprintf("%d -> %d %s", e.From, e.To, e.Kind)
	if e.Kind == EdgeException {
		if e.CatchType == "" {
			s += "(any)"
		} else {
			s += "(" + e.CatchType + ")"
		}
	}
	if e.Back {
		s += " back"
	}
	return s
}

// Method is the control flow graph of a method body in three-address form
type Method struct {
	Ref       bytecode.MethodRef
	Modifiers bytecode.ModBits
	// Params are the locals holding the receiver, if any, and the parameters on entry
	Params     []Value
	Statements []*Statement
	// Entry is the index of the first statement
	Entry int
	// Exits are the indices of the statements leaving the method: returns and the unhandled exception exit
	Exits []int
	// UnhandledExit is the index of the exit statement reached by uncaught exceptions. It is always the last
	// statement.
	UnhandledExit int

	succs     [][]Edge
	preds     [][]Edge
	graph     *graphutil.Digraph
	reachable intsets.Sparse
}

// Statement returns the statement at index i
func (m *Method) Statement(i int) *Statement { return m.Statements[i] }

// Succs returns the outgoing edges of statement i, in the order the builder created them
func (m *Method) Succs(i int) []Edge { return m.succs[i] }

// Preds returns the incoming edges of statement i
func (m *Method) Preds(i int) []Edge { return m.preds[i] }

// Edges returns all the edges of the graph, ordered by source statement
func (m *Method) Edges() []Edge {
	var res []Edge
	for _, out := range m.succs {
		res = append(res, out...)
	}
	return res
}

// BackEdges returns the edges closing cycles
func (m *Method) BackEdges() []Edge {
	var res []Edge
	for _, e := range m.Edges() {
		if e.Back {
			res = append(res, e)
		}
	}
	return res
}

// IsExit returns true if statement i is one of the exits of the method
func (m *Method) IsExit(i int) bool {
	_, found := slices.BinarySearch(m.Exits, i)
	return found
}

// Reachable returns true if statement i is reachable from the entry
func (m *Method) Reachable(i int) bool { return m.reachable.Has(i) }

// Graph returns the statements and edges as a directed graph, with one node per statement index
func (m *Method) Graph() *graphutil.Digraph { return m.graph }

// Param returns the local holding parameter i, where 0 is the receiver of instance methods
func (m *Method) Param(i int) (Value, bool) {
	if i < 0 || i >= len(m.Params) {
		return Value{}, false
	}
	return m.Params[i], true
}

// ParamIndex returns the position of the local named name in the parameters, or -1
func (m *Method) ParamIndex(name string) int {
	for i, p := range m.Params {
		if p.Name == name {
			return i
		}
	}
	return -1
}

// Loops returns the sets of statements forming cycles, each sorted, ordered by their first statement
func (m *Method) Loops() [][]int {
	nodes := make([]int, 0, len(m.Statements))
	for i := range m.Statements {
		if m.Reachable(i) {
			nodes = append(nodes, i)
		}
	}
	loops := graphutil.CyclicComponents(nodes, func(i int) []int {
		var res []int
		for _, e := range m.succs[i] {
			res = append(res, e.To)
		}
		return res
	})
	for _, l := range loops {
		slices.Sort(l)
	}
	slices.SortFunc(loops, func(a, b []int) bool { return a[0] < b[0] })
	return loops
}

// finish computes the predecessor lists, the back edges, the graph view and the reachable statements
func (m *Method) finish() {
	n := len(m.Statements)
	m.preds = make([][]Edge, n)
	m.markBackEdges()
	m.graph = graphutil.NewDigraph(n)
	for i, s := range m.Statements {
		m.graph.AddNode(int64(i), s.String())
	}
	for i, out := range m.succs {
		for _, e := range out {
			m.preds[e.To] = append(m.preds[e.To], e)
			m.graph.AddEdge(int64(i), int64(e.To))
		}
	}
	bfs := traverse.BreadthFirst{Visit: func(node graph.Node) { m.reachable.Insert(int(node.ID())) }}
	bfs.Walk(m.graph, m.graph.Node(int64(m.Entry)), nil)
}

// markBackEdges runs an iterative depth-first search from the entry and marks edges to statements on the stack
func (m *Method) markBackEdges() {
	const (
		unseen = iota
		onStack
		done
	)
	state := make([]int, len(m.Statements))
	type frame struct{ node, next int }
	stack := []frame{{node: m.Entry}}
	state[m.Entry] = onStack
	for len(stack) > 0 {
		top := &stack[len(stack)-1]
		if top.next >= len(m.succs[top.node]) {
			state[top.node] = done
			stack = stack[:len(stack)-1]
			continue
		}
		e := &m.succs[top.node][top.next]
		top.next++
		switch state[e.To] {
		case unseen:
			state[e.To] = onStack
			stack = append(stack, frame{node: e.To})
		case onStack:
			e.Back = true
		}
	}
}

// WriteText writes the statements and their successors, one statement per line
func (m *Method) WriteText(w io.Writer) error {
	if _, err := fmt.Fprintf(w, "%s\n", m.Ref); err != nil {
		return err
	}
	for i, s := range m.Statements {
		line := fmt.Sprintf("  %3d: %s", i, s)
		if s.Offset >= 0 {
			line += "  @" + strconv.Itoa(s.Offset)
		}
		for _, e := range m.succs[i] {
			if e.Kind == EdgeException {
				line += fmt.Sprintf("  !%d", e.To)
			}
		}
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
	}
	return nil
}

// WriteDot writes the control flow graph in graphviz format
func (m *Method) WriteDot(w io.Writer) error {
	if _, err := fmt.Fprintf(w, "digraph %q {\n  node [shape=box];\n", m.Ref.String()); err != nil {
		return err
	}
	for i, s := range m.Statements {
		if _, err := fmt.Fprintf(w, "  n%d [label=%q];\n", i, fmt.Sprintf("%d: %s", i, s)); err != nil {
			return err
		}
	}
	for _, e := range m.Edges() {
		attrs := ""
		switch e.Kind {
		case EdgeTrue:
			attrs = ` [label="T"]`
		case EdgeFalse:
			attrs = ` [label="F"]`
		case EdgeException:
			attrs = fmt.Sprintf(" [style=dashed, label=%q]", e.CatchType)
		}
		if e.Back {
			attrs += " [color=red]"
		}
		if _, err := fmt.Fprintf(w, "  n%d -> n%d%s;\n", e.From, e.To, attrs); err != nil {
			return err
		}
	}
	_, err := fmt.Fprintln(w, "}")
	return err
}
