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
	"github.com/awslabs/ar-jvm-tools/analysis/dataflow"
	"github.com/awslabs/ar-jvm-tools/analysis/ir"
)

// callRules are the rules matching a call statement, by kind
type callRules struct {
	sources      []*Rule
	sinks        []*Rule
	sanitizers   []*Rule
	passThroughs []*Rule
	filtered     bool
}

// opaque returns true if the callees of the call are not analyzed: the rules specify the flows of the call
func (c *callRules) opaque() bool {
	return c.filtered || len(c.sources)+len(c.sanitizers)+len(c.passThroughs) > 0
}

// hit is a path edge reaching a sink
type hit struct {
	edge dataflow.PathEdge
	rule *Rule
}

type hitKey struct {
	source *ir.Statement
	sink   *ir.Statement
}

// problem is the taint problem of a rule set. It implements dataflow.Problem and dataflow.Callees for one run of
// the solver.
type problem struct {
	rules *RuleSet
	state *dataflow.AnalyzerState
	k     int

	calls  map[*ir.Statement]*callRules
	fields map[*ir.Statement][]*Rule
	hits   []hit
	seen   map[hitKey]bool
}

func newProblem(state *dataflow.AnalyzerState, rules *RuleSet, k int) *problem {
	return &problem{
		rules:  rules,
		state:  state,
		k:      k,
		calls:  map[*ir.Statement]*callRules{},
		fields: map[*ir.Statement][]*Rule{},
		seen:   map[hitKey]bool{},
	}
}

func (p *problem) callInfo(n *ir.Statement) *callRules {
	if c, ok := p.calls[n]; ok {
		return c
	}
	c := &callRules{filtered: p.rules.IsFiltered(n)}
	for _, r := range p.rules.MatchCall(n) {
		switch r.Kind {
		case Source:
			c.sources = append(c.sources, r)
		case Sink:
			c.sinks = append(c.sinks, r)
		case Sanitizer:
			c.sanitizers = append(c.sanitizers, r)
		case PassThrough:
			c.passThroughs = append(c.passThroughs, r)
		}
	}
	p.calls[n] = c
	return c
}

func (p *problem) fieldRules(n *ir.Statement) []*Rule {
	if r, ok := p.fields[n]; ok {
		return r
	}
	r := p.rules.MatchField(n)
	p.fields[n] = r
	return r
}

// Callees returns the methods analyzed at the call n. Calls whose flows are given by rules are not analyzed.
func (p *problem) Callees(n *ir.Statement) ([]*ir.Method, error) {
	if p.callInfo(n).opaque() {
		return nil, nil
	}
	return p.state.Callees(n)
}

func (p *problem) path(v ir.Value) dataflow.AccessPath {
	return dataflow.NewAccessPath(v.Name)
}

func appendFact(facts []dataflow.Fact, f dataflow.Fact) []dataflow.Fact {
	for _, g := range facts {
		if g == f {
			return facts
		}
	}
	return append(facts, f)
}

// Initial taints the parameters of m designated by the entry point rules matching m
func (p *problem) Initial(m *ir.Method) []dataflow.Fact {
	var res []dataflow.Fact
	entry := m.Statement(m.Entry)
	for _, r := range p.rules.MatchEntry(m) {
		for _, pos := range r.Positions {
			for _, path := range pos.paramPaths(m, p.k) {
				res = appendFact(res, dataflow.NewFact(path, entry, r.Mark))
			}
		}
	}
	return res
}

// Normal is the flow function of the statements that are not calls.
// Assignments kill the facts of their left-hand side; field writes kill the facts of the written field.
func (p *problem) Normal(n *ir.Statement, e ir.Edge, d dataflow.Fact) []dataflow.Fact {
	if e.Kind == ir.EdgeException {
		// the statement did not complete
		return []dataflow.Fact{d}
	}
	if d.IsZero() {
		res := append([]dataflow.Fact{d}, p.fieldSources(n)...)
		for _, f := range p.nullSources(n, e) {
			res = appendFact(res, f)
		}
		return res
	}
	if p.dereferenced(n, d) || p.nonNull(n, e, d) {
		return nil
	}
	switch n.Op {
	case ir.OpAssign:
		return p.assign(n, d)
	case ir.OpFieldRead:
		if !n.Base.IsVar() {
			return p.kill(n, d)
		}
		return p.load(n, d, p.path(n.Base).Extend(n.Field.Name, p.k))
	case ir.OpStaticRead:
		return p.load(n, d, dataflow.NewStaticPath(n.Field.Class, n.Field.Name))
	case ir.OpArrayRead:
		if !n.Base.IsVar() {
			return p.kill(n, d)
		}
		return p.load(n, d, p.path(n.Base).Extend(dataflow.ArrayElement, p.k))
	case ir.OpFieldWrite:
		if !n.Base.IsVar() {
			return []dataflow.Fact{d}
		}
		return p.store(n, d, p.path(n.Base).Extend(n.Field.Name, p.k), true)
	case ir.OpStaticWrite:
		return p.store(n, d, dataflow.NewStaticPath(n.Field.Class, n.Field.Name), true)
	case ir.OpArrayWrite:
		if !n.Base.IsVar() {
			return []dataflow.Fact{d}
		}
		// the written element is unknown
		return p.store(n, d, p.path(n.Base).Extend(dataflow.ArrayElement, p.k), false)
	case ir.OpCatch:
		return p.kill(n, d)
	}
	return []dataflow.Fact{d}
}

// kill removes d if it is rooted at the left-hand side of n
func (p *problem) kill(n *ir.Statement, d dataflow.Fact) []dataflow.Fact {
	if !n.Lhs.IsNone() && d.RootedAt(n.Lhs.Name) {
		return nil
	}
	return []dataflow.Fact{d}
}

func (p *problem) assign(n *ir.Statement, d dataflow.Fact) []dataflow.Fact {
	res := p.kill(n, d)
	lhs := p.path(n.Lhs)
	switch {
	case n.Rhs.PreservesIdentity():
		if op := n.Rhs.Operands[0]; op.IsVar() {
			if q, ok := d.Path.Substitute(p.path(op), lhs, p.k); ok {
				res = appendFact(res, d.WithPath(q))
			}
		}
	case n.Rhs.Kind == ir.ExprBinary || n.Rhs.Kind == ir.ExprUnary || n.Rhs.Kind == ir.ExprConvert:
		for _, op := range n.Rhs.Operands {
			if op.IsVar() && d.Path == p.path(op) {
				res = appendFact(res, d.WithPath(lhs))
				break
			}
		}
	}
	return res
}

// load propagates the facts of the location from to the left-hand side of n
func (p *problem) load(n *ir.Statement, d dataflow.Fact, from dataflow.AccessPath) []dataflow.Fact {
	res := p.kill(n, d)
	if q, ok := d.Path.Substitute(from, p.path(n.Lhs), p.k); ok {
		res = appendFact(res, d.WithPath(q))
	}
	return res
}

// store propagates the facts of the source of n to the location to. Strong updates kill the previous facts of
// the location.
func (p *problem) store(n *ir.Statement, d dataflow.Fact, to dataflow.AccessPath, strong bool) []dataflow.Fact {
	var res []dataflow.Fact
	if !strong || !d.Path.HasPrefix(to) {
		res = append(res, d)
	}
	if n.Src.IsVar() {
		if q, ok := d.Path.Substitute(p.path(n.Src), to, p.k); ok {
			res = appendFact(res, d.WithPath(q))
		}
	}
	return res
}

// fieldSources returns the facts generated by the field source rules at the field access n
func (p *problem) fieldSources(n *ir.Statement) []dataflow.Fact {
	var res []dataflow.Fact
	for _, r := range p.fieldRules(n) {
		if r.Kind != Source {
			continue
		}
		var path dataflow.AccessPath
		switch n.Op {
		case ir.OpFieldRead, ir.OpStaticRead:
			path = p.path(n.Lhs)
		case ir.OpFieldWrite:
			if !n.Base.IsVar() {
				continue
			}
			path = p.path(n.Base).Extend(n.Field.Name, p.k)
		case ir.OpStaticWrite:
			path = dataflow.NewStaticPath(n.Field.Class, n.Field.Name)
		}
		res = appendFact(res, dataflow.NewFact(path, n, r.Mark))
	}
	return res
}

func isNull(v ir.Value) bool {
	return v.Kind == ir.Const && v.Name == "null"
}

// nullFact returns the null fact of v generated at n
func (p *problem) nullFact(v ir.Value, n *ir.Statement) dataflow.Fact {
	return dataflow.NewFact(p.path(v), n, NullMark)
}

// nullSources returns the null facts generated at n along the edge e: the locations assigned a null constant, and
// the value compared to null on the branch where it is null
func (p *problem) nullSources(n *ir.Statement, e ir.Edge) []dataflow.Fact {
	if p.rules.deref == nil {
		return nil
	}
	switch n.Op {
	case ir.OpAssign:
		if n.Rhs.PreservesIdentity() && isNull(n.Rhs.Operands[0]) && n.Lhs.IsVar() {
			return []dataflow.Fact{p.nullFact(n.Lhs, n)}
		}
	case ir.OpFieldWrite:
		if isNull(n.Src) && n.Base.IsVar() {
			return []dataflow.Fact{dataflow.NewFact(p.path(n.Base).Extend(n.Field.Name, p.k), n, NullMark)}
		}
	case ir.OpStaticWrite:
		if isNull(n.Src) {
			return []dataflow.Fact{dataflow.NewFact(dataflow.NewStaticPath(n.Field.Class, n.Field.Name), n, NullMark)}
		}
	case ir.OpIf:
		if v, ok := nullTest(n.Cond); ok && e.Kind == nullBranch(n.Cond) {
			return []dataflow.Fact{p.nullFact(v, n)}
		}
	}
	return nil
}

// nullTest returns the variable compared to null by c
func nullTest(c ir.Condition) (ir.Value, bool) {
	if c.Operator != "==" && c.Operator != "!=" {
		return ir.Value{}, false
	}
	switch {
	case isNull(c.Right) && c.Left.IsVar():
		return c.Left, true
	case isNull(c.Left) && c.Right.IsVar():
		return c.Right, true
	}
	return ir.Value{}, false
}

// nullBranch returns the kind of the edge taken when the null test c holds
func nullBranch(c ir.Condition) ir.EdgeKind {
	if c.Operator == "==" {
		return ir.EdgeTrue
	}
	return ir.EdgeFalse
}

// nullRoot returns true if d is the null fact of the variable v itself
func (p *problem) nullRoot(d dataflow.Fact, v ir.Value) bool {
	return d.Mark == NullMark && v.IsVar() && d.Path == p.path(v)
}

// nonNull returns true if the null fact d is refuted along the edge e of a null test
func (p *problem) nonNull(n *ir.Statement, e ir.Edge, d dataflow.Fact) bool {
	if n.Op != ir.OpIf || d.Mark != NullMark {
		return false
	}
	v, ok := nullTest(n.Cond)
	return ok && e.Kind != nullBranch(n.Cond) && p.nullRoot(d, v)
}

// dereference returns the value dereferenced by n, if any
func dereference(n *ir.Statement) (ir.Value, bool) {
	switch n.Op {
	case ir.OpInvoke:
		if n.Call.HasReceiver() {
			return n.Call.Receiver, true
		}
	case ir.OpFieldRead, ir.OpFieldWrite, ir.OpArrayRead, ir.OpArrayWrite:
		return n.Base, true
	case ir.OpThrow, ir.OpMonitor:
		return n.Src, true
	case ir.OpAssign:
		if n.Rhs.Kind == ir.ExprLength {
			return n.Rhs.Operands[0], true
		}
	}
	return ir.Value{}, false
}

// dereferenced returns true if n completes only when the null fact d does not hold: the value of d is
// dereferenced by n
func (p *problem) dereferenced(n *ir.Statement, d dataflow.Fact) bool {
	if p.rules.deref == nil || d.Mark != NullMark {
		return false
	}
	v, ok := dereference(n)
	return ok && p.nullRoot(d, v)
}

// CallToReturn generates the facts of source rules, applies sanitizers and pass-through rules, and keeps the facts
// that the callees cannot change. When the callees are analyzed, the facts of static fields and of the fields of
// the operands go through the callees instead.
func (p *problem) CallToReturn(n *ir.Statement, _ ir.Edge, d dataflow.Fact, callees []*ir.Method) []dataflow.Fact {
	info := p.callInfo(n)
	if d.IsZero() {
		res := []dataflow.Fact{d}
		for _, r := range info.sources {
			for _, pos := range r.Positions {
				for _, path := range pos.paths(n, p.k) {
					res = appendFact(res, dataflow.NewFact(path, n, r.Mark))
				}
			}
		}
		return res
	}
	if p.dereferenced(n, d) {
		return nil
	}
	killed := !n.Lhs.IsNone() && d.RootedAt(n.Lhs.Name)
	if len(callees) > 0 {
		if d.Path.IsStatic() {
			killed = true
		}
		for _, v := range n.Call.Operands() {
			if v.IsVar() && d.RootedAt(v.Name) && (d.Path.Depth() > 0 || d.Path.Truncated()) {
				killed = true
			}
		}
	}
	var res []dataflow.Fact
	if !killed && !p.sanitized(info, n, d.Path, d) {
		res = append(res, d)
	}
	for _, r := range info.passThroughs {
		if !r.appliesTo(d) {
			continue
		}
		for _, from := range r.From {
			for _, fp := range from.paths(n, p.k) {
				for _, to := range r.To {
					for _, tp := range to.paths(n, p.k) {
						q, ok := d.Path.Substitute(fp, tp, p.k)
						// sanitizers take precedence over pass-through rules
						if ok && !p.sanitized(info, n, q, d) {
							res = appendFact(res, d.WithPath(q))
						}
					}
				}
			}
		}
	}
	return res
}

// sanitized returns true if a sanitizer of the call n cleans the path for the fact d
func (p *problem) sanitized(info *callRules, n *ir.Statement, path dataflow.AccessPath, d dataflow.Fact) bool {
	for _, r := range info.sanitizers {
		if !r.appliesTo(d) {
			continue
		}
		for _, pos := range r.Positions {
			for _, sp := range pos.paths(n, p.k) {
				if path.HasPrefix(sp) || sp.Subsumes(path) {
					return true
				}
			}
		}
	}
	return false
}

// Call binds the facts of the operands of n to the parameters of callee. Static fields are visible in the callee.
// Null constants passed to the callee generate the null facts of their parameters.
func (p *problem) Call(n *ir.Statement, callee *ir.Method, d dataflow.Fact) []dataflow.Fact {
	if d.IsZero() {
		res := []dataflow.Fact{d}
		if p.rules.deref == nil {
			return res
		}
		for i, v := range n.Call.Operands() {
			if param, ok := callee.Param(i); ok && isNull(v) {
				res = appendFact(res, p.nullFact(param, n))
			}
		}
		return res
	}
	if d.Path.IsStatic() {
		return []dataflow.Fact{d}
	}
	var res []dataflow.Fact
	for i, v := range n.Call.Operands() {
		if !v.IsVar() || !d.RootedAt(v.Name) {
			continue
		}
		param, ok := callee.Param(i)
		if !ok {
			continue
		}
		if q, ok := d.Path.Substitute(p.path(v), p.path(param), p.k); ok {
			res = appendFact(res, d.WithPath(q))
		}
	}
	return res
}

// Return binds the facts at an exit of callee to the caller: the returned value to the left-hand side of the call,
// and the fields of the parameters to the fields of the operands. Parameters themselves are passed by value.
func (p *problem) Return(n *ir.Statement, _ ir.Edge, callee *ir.Method, exit *ir.Statement,
	d dataflow.Fact) []dataflow.Fact {
	if d.IsZero() {
		// a returned null constant generates the null fact of the result
		if p.rules.deref != nil && exit.Op == ir.OpReturn && isNull(exit.Src) && n.Lhs.IsVar() {
			return []dataflow.Fact{p.nullFact(n.Lhs, exit)}
		}
		return nil
	}
	if d.Path.IsStatic() {
		return []dataflow.Fact{d}
	}
	var res []dataflow.Fact
	if exit.Op == ir.OpReturn && exit.Src.IsVar() && !n.Lhs.IsNone() && d.RootedAt(exit.Src.Name) {
		if q, ok := d.Path.Substitute(p.path(exit.Src), p.path(n.Lhs), p.k); ok {
			res = appendFact(res, d.WithPath(q))
		}
	}
	if d.Path.Depth() == 0 && !d.Path.Truncated() {
		return res
	}
	for i, param := range callee.Params {
		if !d.RootedAt(param.Name) {
			continue
		}
		v, ok := n.Call.Operand(i)
		if !ok || !v.IsVar() || (!n.Lhs.IsNone() && v.Name == n.Lhs.Name) {
			continue
		}
		if q, ok := d.Path.Substitute(p.path(param), p.path(v), p.k); ok {
			res = appendFact(res, d.WithPath(q))
		}
	}
	return res
}

// Visit records the path edges reaching a sink
func (p *problem) Visit(e dataflow.PathEdge) {
	d := e.Fact
	if d.IsZero() {
		return
	}
	n := e.Node
	if p.dereferenced(n, d) {
		p.report(e, p.rules.deref)
	}
	switch n.Op {
	case ir.OpInvoke:
		for _, r := range p.callInfo(n).sinks {
			if !r.appliesTo(d) {
				continue
			}
			for _, pos := range r.Positions {
				for _, sp := range pos.paths(n, p.k) {
					if d.Path.MayAlias(sp) {
						p.report(e, r)
					}
				}
			}
		}
	case ir.OpFieldWrite, ir.OpStaticWrite:
		for _, r := range p.fieldRules(n) {
			if r.Kind == Sink && r.appliesTo(d) && n.Src.IsVar() && d.RootedAt(n.Src.Name) {
				p.report(e, r)
			}
		}
	}
}

func (p *problem) report(e dataflow.PathEdge, r *Rule) {
	key := hitKey{source: e.Fact.Source, sink: e.Node}
	if p.seen[key] {
		return
	}
	p.seen[key] = true
	p.hits = append(p.hits, hit{edge: e, rule: r})
}
