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

package dataflow

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/awslabs/ar-jvm-tools/analysis/config"
	"github.com/awslabs/ar-jvm-tools/analysis/ir"
	"github.com/awslabs/ar-jvm-tools/internal/funcutil"
	"golang.org/x/tools/container/intsets"
)

// ErrAnalysisIncomplete is returned when a run exceeds its path edge budget. The facts computed so far are not a
// valid result.
var ErrAnalysisIncomplete = errors.New("analysis incomplete")

// cancellationCheckInterval is the number of path edges processed between two checks of the context
const cancellationCheckInterval = 1024

// A Problem defines the flow functions of a distributive data flow problem over Facts. Flow functions must return
// their facts in a deterministic order, and must map the zero fact to a set containing the zero fact, except for
// Call and Return.
type Problem interface {
	// Initial returns the facts holding at the entry of the entry method m, besides the zero fact
	Initial(m *ir.Method) []Fact

	// Normal returns the facts holding after the statement n along the edge e when d holds before n. It is used for
	// every statement that is not a call, and for the exception edges of calls.
	Normal(n *ir.Statement, e ir.Edge, d Fact) []Fact

	// CallToReturn returns the facts holding after the call n along the normal edge e when d holds before n,
	// without going through the callees. callees are the methods the solver descends into.
	CallToReturn(n *ir.Statement, e ir.Edge, d Fact, callees []*ir.Method) []Fact

	// Call returns the facts holding at the entry of callee when d holds before the call n
	Call(n *ir.Statement, callee *ir.Method, d Fact) []Fact

	// Return returns the facts holding after the call n along the edge e when d holds at the exit statement exit of
	// callee
	Return(n *ir.Statement, e ir.Edge, callee *ir.Method, exit *ir.Statement, d Fact) []Fact

	// Visit is called once for every path edge reached by the solver
	Visit(e PathEdge)
}

// Callees resolves the methods the solver descends into at a call statement
type Callees interface {
	// Callees returns the methods analyzed at the call statement n. An error means that the call has no known
	// target; the call is then only analyzed by the call-to-return flow function.
	Callees(n *ir.Statement) ([]*ir.Method, error)
}

// SolverOptions configures a Solver
type SolverOptions struct {
	// RetainProvenance keeps the back-pointers of every path edge, which are needed by Trace
	RetainProvenance bool
	// PathEdgeBudget is the maximum number of path edges processed. If <= 0, it is ignored.
	PathEdgeBudget int
}

// Stats are the statistics of a solver run
type Stats struct {
	// PathEdges is the number of path edges processed
	PathEdges int
	// Reached is the number of distinct path edges reached
	Reached int
	// SummaryEdges is the number of summary edges computed
	SummaryEdges int
	// MethodsVisited is the number of distinct methods analyzed
	MethodsVisited int
	// UnresolvedCalls is the number of call statements reached without any known callee
	UnresolvedCalls int
	Duration        time.Duration
}

// Solver is an IFDS tabulation solver. A Solver is used for one run and is not safe for concurrent use; concurrent
// runs use distinct solvers, which can share the immutable methods.
type Solver struct {
	problem Problem
	callees Callees
	options SolverOptions
	logger  *config.LogGroup

	worklist funcutil.Queue[PathEdge]
	reached  map[PathEdge]link
	// incoming records the path edges at call sites that entered a method with a fact
	incoming map[entryKey]*edgeList
	// summaries records the path edges at the exits of a method analyzed with a fact
	summaries map[entryKey]*edgeList

	methodIDs  map[*ir.Method]int
	visited    intsets.Sparse
	unresolved map[*ir.Statement]bool
	stats      Stats
}

// NewSolver returns a solver for problem, descending into the methods returned by callees
func NewSolver(problem Problem, callees Callees, options SolverOptions, logger *config.LogGroup) *Solver {
	return &Solver{
		problem:    problem,
		callees:    callees,
		options:    options,
		logger:     logger,
		reached:    map[PathEdge]link{},
		incoming:   map[entryKey]*edgeList{},
		summaries:  map[entryKey]*edgeList{},
		methodIDs:  map[*ir.Method]int{},
		unresolved: map[*ir.Statement]bool{},
	}
}

// Solve runs the tabulation from the entries of the entry methods until no new path edge can be reached.
// It returns ErrAnalysisIncomplete when the budget is exceeded, and the error of ctx when it is cancelled; in both
// cases the reached path edges must be discarded.
func (s *Solver) Solve(ctx context.Context, entries []*ir.Method) error {
	start := time.Now()
	defer func() { s.stats.Duration = time.Since(start) }()

	for _, m := range entries {
		entry := m.Statement(m.Entry)
		s.propagate(PathEdge{Start: entry, StartFact: Zero, Node: entry, Fact: Zero}, link{kind: Seed})
		for _, d := range s.problem.Initial(m) {
			s.propagate(PathEdge{Start: entry, StartFact: d, Node: entry, Fact: d}, link{kind: Seed})
		}
	}

	for s.worklist.Len() > 0 {
		if s.options.PathEdgeBudget > 0 && s.stats.PathEdges >= s.options.PathEdgeBudget {
			return fmt.Errorf("%w: exceeded budget of %d path edges (%d pending)", ErrAnalysisIncomplete,
				s.options.PathEdgeBudget, s.worklist.Len())
		}
		if s.stats.PathEdges%cancellationCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}
		e := s.worklist.Pop()
		s.stats.PathEdges++
		s.process(e)
	}
	s.logger.Debugf("Solver reached %d path edges in %d methods (%d summary edges)\n",
		len(s.reached), s.visited.Len(), s.stats.SummaryEdges)
	return nil
}

// Stats returns the statistics of the run
func (s *Solver) Stats() Stats {
	st := s.stats
	st.Reached = len(s.reached)
	st.MethodsVisited = s.visited.Len()
	st.UnresolvedCalls = len(s.unresolved)
	return st
}

// Reached returns true if the path edge e has been reached
func (s *Solver) Reached(e PathEdge) bool {
	_, ok := s.reached[e]
	return ok
}

// FactsAt returns the facts reaching the statement n, from any start fact, in the order they were reached
func (s *Solver) FactsAt(n *ir.Statement) []Fact {
	var edges []PathEdge
	for e := range s.reached {
		if e.Node == n {
			edges = append(edges, e)
		}
	}
	sort.Slice(edges, func(i, j int) bool { return s.reached[edges[i]].seq < s.reached[edges[j]].seq })
	var res []Fact
	seen := map[Fact]bool{}
	for _, e := range edges {
		if !seen[e.Fact] {
			seen[e.Fact] = true
			res = append(res, e.Fact)
		}
	}
	return res
}

func (s *Solver) process(e PathEdge) {
	n := e.Node
	m := n.Method
	switch {
	case n.Op == ir.OpInvoke:
		s.processCall(e)
	case m.IsExit(n.Index):
		s.processExit(e)
	default:
		for _, se := range m.Succs(n.Index) {
			for _, d := range s.problem.Normal(n, se, e.Fact) {
				s.propagate(PathEdge{Start: e.Start, StartFact: e.StartFact, Node: m.Statement(se.To), Fact: d},
					link{kind: Intra, pred: e})
			}
		}
	}
}

func (s *Solver) processCall(e PathEdge) {
	n := e.Node
	m := n.Method
	callees, err := s.callees.Callees(n)
	if err != nil && !s.unresolved[n] {
		s.unresolved[n] = true
		s.logger.Tracef("Unresolved call at %s#%d: %v\n", m.Ref, n.Index, err)
	}
	for _, se := range m.Succs(n.Index) {
		next := m.Statement(se.To)
		if se.Kind == ir.EdgeException {
			for _, d := range s.problem.Normal(n, se, e.Fact) {
				s.propagate(PathEdge{Start: e.Start, StartFact: e.StartFact, Node: next, Fact: d},
					link{kind: Intra, pred: e})
			}
			continue
		}
		for _, d := range s.problem.CallToReturn(n, se, e.Fact, callees) {
			s.propagate(PathEdge{Start: e.Start, StartFact: e.StartFact, Node: next, Fact: d},
				link{kind: CallToReturn, pred: e})
		}
	}
	for _, callee := range callees {
		entry := callee.Statement(callee.Entry)
		for _, d := range s.problem.Call(n, callee, e.Fact) {
			key := entryKey{method: callee, fact: d}
			if s.incoming[key] == nil {
				s.incoming[key] = &edgeList{}
			}
			s.incoming[key].add(e)
			s.propagate(PathEdge{Start: entry, StartFact: d, Node: entry, Fact: d}, link{kind: Call, pred: e})
			// the callee may already have been analyzed with d: its summaries apply to this call
			if exits := s.summaries[key]; exits != nil {
				for _, x := range exits.order {
					s.applyReturn(e, x)
				}
			}
		}
	}
}

func (s *Solver) processExit(e PathEdge) {
	m := e.Node.Method
	key := entryKey{method: m, fact: e.StartFact}
	if s.summaries[key] == nil {
		s.summaries[key] = &edgeList{}
	}
	if !s.summaries[key].add(e) {
		return
	}
	s.stats.SummaryEdges++
	if callers := s.incoming[key]; callers != nil {
		for _, c := range callers.order {
			s.applyReturn(c, e)
		}
	}
}

// applyReturn maps the exit edge x of a callee to the successors of the call edge c. Normal returns flow along the
// normal edges of the call, and the unhandled exception exit along its exception edges.
func (s *Solver) applyReturn(c PathEdge, x PathEdge) {
	call := c.Node
	m := call.Method
	exceptional := x.Node.Op == ir.OpExit
	for _, se := range m.Succs(call.Index) {
		if (se.Kind == ir.EdgeException) != exceptional {
			continue
		}
		for _, d := range s.problem.Return(call, se, x.Node.Method, x.Node, x.Fact) {
			s.propagate(PathEdge{Start: c.Start, StartFact: c.StartFact, Node: m.Statement(se.To), Fact: d},
				link{kind: Return, pred: c, exit: x})
		}
	}
}

func (s *Solver) propagate(e PathEdge, l link) {
	if _, ok := s.reached[e]; ok {
		return
	}
	if !s.options.RetainProvenance {
		l = link{kind: l.kind}
	}
	l.seq = len(s.reached)
	s.reached[e] = l
	s.worklist.Push(e)
	s.visit(e.Node.Method)
	s.problem.Visit(e)
}

func (s *Solver) visit(m *ir.Method) {
	id, ok := s.methodIDs[m]
	if !ok {
		id = len(s.methodIDs)
		s.methodIDs[m] = id
	}
	s.visited.Insert(id)
}
