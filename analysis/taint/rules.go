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
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/awslabs/ar-jvm-tools/analysis/config"
	"github.com/awslabs/ar-jvm-tools/analysis/dataflow"
	"github.com/awslabs/ar-jvm-tools/analysis/ir"
	"github.com/awslabs/ar-jvm-tools/internal/funcutil"
)

// ErrEmptyRuleSet is returned when a taint problem has no source or no sink
var ErrEmptyRuleSet = errors.New("empty rule set")

// RuleKind is the role of a rule in a taint problem
type RuleKind uint8

const (
	// Source rules taint their positions
	Source RuleKind = iota
	// Sink rules report the taint reaching their positions
	Sink
	// Sanitizer rules remove the taint at their positions
	Sanitizer
	// PassThrough rules propagate the taint from their From positions to their To positions, in place of the
	// analysis of the callee
	PassThrough
	// EntryPoint rules taint the parameters of entry methods
	EntryPoint
	// Dereference is the rule of the null values reaching the receiver of a call, the base of a field or array
	// access, a throw or a monitor
	Dereference
)

// NullMark is the mark of the facts of values that may be null. Only the rules restricted to that mark apply to
// them.
const NullMark = "null"

func (k RuleKind) String() string {
	switch k {
	case Source:
		return "source"
	case Sink:
		return "sink"
	case Sanitizer:
		return "sanitizer"
	case PassThrough:
		return "pass-through"
	case EntryPoint:
		return "entry-point"
	case Dereference:
		return "null-dereference"
	}
	return fmt.Sprintf("rule(%d)", k)
}

// PositionKind identifies the operand of a call a position refers to
type PositionKind uint8

const (
	// This is the receiver of an instance call
	This PositionKind = iota
	// ResultPosition is the value returned by the call
	ResultPosition
	// Arg is one of the declared arguments
	Arg
	// AnyArg is every declared argument
	AnyArg
)

// A Position is an operand of a call, optionally followed by a field path
type Position struct {
	Kind PositionKind
	// Arg is the index of the argument for Arg positions
	Arg    int
	Fields []string
}

// ParsePosition parses positions of the form this, result, argN and any-arg, optionally followed by fields
// separated by dots
func ParsePosition(s string) (Position, error) {
	parts := strings.Split(strings.TrimSpace(s), ".")
	p := Position{Fields: parts[1:]}
	switch head := parts[0]; {
	case head == "this":
		p.Kind = This
	case head == "result":
		p.Kind = ResultPosition
	case head == "any-arg":
		p.Kind = AnyArg
	case strings.HasPrefix(head, "arg"):
		n, err := strconv.Atoi(head[3:])
		if err != nil || n < 0 {
			return p, fmt.Errorf("invalid argument position %q", s)
		}
		p.Kind = Arg
		p.Arg = n
	default:
		return p, fmt.Errorf("invalid position %q", s)
	}
	for _, f := range p.Fields {
		if f == "" {
			return p, fmt.Errorf("invalid field path in position %q", s)
		}
	}
	return p, nil
}

func (p Position) String() string {
	var s string
	switch p.Kind {
	case This:
		s = "this"
	case ResultPosition:
		s = "result"
	case Arg:
		s = "arg" + strconv.Itoa(p.Arg)
	case AnyArg:
		s = "any-arg"
	}
	for _, f := range p.Fields {
		s += "." + f
	}
	return s
}

// values returns the variables of the call n at the position
func (p Position) values(n *ir.Statement) []ir.Value {
	var vals []ir.Value
	switch p.Kind {
	case This:
		if n.Call.HasReceiver() {
			vals = append(vals, n.Call.Receiver)
		}
	case ResultPosition:
		vals = append(vals, n.Lhs)
	case Arg:
		if p.Arg < len(n.Call.Args) {
			vals = append(vals, n.Call.Args[p.Arg])
		}
	case AnyArg:
		vals = append(vals, n.Call.Args...)
	}
	var res []ir.Value
	for _, v := range vals {
		if v.IsVar() {
			res = append(res, v)
		}
	}
	return res
}

// paths returns the access paths of the position at the call n
func (p Position) paths(n *ir.Statement, k int) []dataflow.AccessPath {
	var res []dataflow.AccessPath
	for _, v := range p.values(n) {
		res = append(res, p.extend(dataflow.NewAccessPath(v.Name), k))
	}
	return res
}

// paramPaths returns the access paths of the position at the entry of m
func (p Position) paramPaths(m *ir.Method, k int) []dataflow.AccessPath {
	offset := 0
	if len(m.Params) > 0 && m.Params[0].Name == "this" {
		offset = 1
	}
	var params []ir.Value
	switch p.Kind {
	case This:
		if offset == 1 {
			params = append(params, m.Params[0])
		}
	case Arg:
		if v, ok := m.Param(p.Arg + offset); ok {
			params = append(params, v)
		}
	case AnyArg:
		params = append(params, m.Params[offset:]...)
	}
	return funcutil.Map(params, func(v ir.Value) dataflow.AccessPath {
		return p.extend(dataflow.NewAccessPath(v.Name), k)
	})
}

func (p Position) extend(path dataflow.AccessPath, k int) dataflow.AccessPath {
	for _, f := range p.Fields {
		path = path.Extend(f, k)
	}
	return path
}

// A Condition restricts a rule to the calls where an argument is a constant, optionally matching a regex
type Condition struct {
	Position Position
	Regex    *regexp.Regexp
	Not      bool
}

func (c Condition) holds(n *ir.Statement) bool {
	var v ir.Value
	switch c.Position.Kind {
	case This:
		v = n.Call.Receiver
	case Arg:
		if c.Position.Arg < len(n.Call.Args) {
			v = n.Call.Args[c.Position.Arg]
		}
	}
	ok := v.Kind == ir.Const
	if ok && c.Regex != nil {
		ok = c.Regex.MatchString(unquote(v.Name))
	}
	return ok != c.Not
}

func unquote(s string) string {
	if strings.HasPrefix(s, "\"") {
		if u, err := strconv.Unquote(s); err == nil {
			return u
		}
	}
	return s
}

// A Rule is a code identifier with the positions it applies to
type Rule struct {
	Kind RuleKind
	ID   config.CodeIdentifier
	// Positions are the positions of sources, sinks, sanitizers and entry points
	Positions []Position
	// From and To are the positions of pass-through rules
	From, To   []Position
	Mark       string
	CWE        []int
	Note       string
	Conditions []Condition
	// Index is the declaration order of the rule in its rule set
	Index int
}

// IsField returns true if the rule applies to field accesses rather than calls
func (r *Rule) IsField() bool { return r.ID.Field != "" }

func (r *Rule) matchesCall(n *ir.Statement) bool {
	if r.IsField() || n.Op != ir.OpInvoke {
		return false
	}
	t := n.Call.Target
	if !(config.CodeIdentifier{Class: t.Class, Method: t.Name, Descriptor: t.Descriptor}).MatchedBy(r.ID) {
		return false
	}
	for _, c := range r.Conditions {
		if !c.holds(n) {
			return false
		}
	}
	return true
}

func (r *Rule) matchesField(n *ir.Statement) bool {
	if !r.IsField() {
		return false
	}
	switch n.Op {
	case ir.OpFieldRead, ir.OpFieldWrite, ir.OpStaticRead, ir.OpStaticWrite:
		return config.CodeIdentifier{Class: n.Field.Class, Field: n.Field.Name}.MatchedBy(r.ID)
	}
	return false
}

// appliesTo returns true if the rule is not restricted to another mark than the mark of f
func (r *Rule) appliesTo(f dataflow.Fact) bool {
	if f.Mark == NullMark {
		return r.Mark == NullMark
	}
	return r.Mark == "" || r.Mark == f.Mark
}

// Name identifies the rule in reports
func (r *Rule) Name() string {
	if r.Kind == Dereference {
		return r.Kind.String()
	}
	return r.ID.String()
}

func (r *Rule) String() string {
	if r.Kind == Dereference {
		return r.Kind.String()
	}
	return fmt.Sprintf("%s %s", r.Kind, r.ID)
}

// A RuleSet holds the rules of a taint problem. Rule sets are immutable values: concurrent analyses with different
// rule sets do not interfere.
type RuleSet struct {
	Name    string
	rules   []*Rule
	filters []config.CodeIdentifier
	// deref is the null dereference rule, nil when null dereferences are not reported
	deref *Rule
}

// NewRuleSet compiles the rules of the taint specification. It fails with ErrEmptyRuleSet when the specification
// has no sink, or neither sources nor entry points, unless it reports null dereferences.
func NewRuleSet(spec config.TaintSpec) (*RuleSet, error) {
	if !spec.NullDereference && (len(spec.Sinks) == 0 || len(spec.Sources)+len(spec.EntryPoints) == 0) {
		return nil, fmt.Errorf("%w: problem %q needs sources and sinks", ErrEmptyRuleSet, spec.Name)
	}
	rs := &RuleSet{Name: spec.Name}
	for _, group := range []struct {
		kind  RuleKind
		specs []config.RuleSpec
	}{
		{Source, spec.Sources},
		{Sink, spec.Sinks},
		{Sanitizer, spec.Sanitizers},
		{PassThrough, spec.PassThroughs},
		{EntryPoint, spec.EntryPoints},
	} {
		for _, s := range group.specs {
			r, err := newRule(group.kind, s)
			if err != nil {
				return nil, fmt.Errorf("problem %q: %s rule %s: %w", spec.Name, group.kind, s.CodeIdentifier, err)
			}
			r.Index = len(rs.rules)
			rs.rules = append(rs.rules, r)
		}
	}
	for _, f := range spec.Filters {
		rs.filters = append(rs.filters, config.CompileRegexes(f))
	}
	if spec.NullDereference {
		rs.deref = &Rule{Kind: Dereference, Mark: NullMark, CWE: []int{476}, Note: "null pointer dereference",
			Index: len(rs.rules)}
	}
	return rs, nil
}

// defaultPositions are the positions of rules that do not list any
var defaultPositions = map[RuleKind]string{
	Source:     "result",
	Sink:       "any-arg",
	Sanitizer:  "result",
	EntryPoint: "any-arg",
}

func newRule(kind RuleKind, s config.RuleSpec) (*Rule, error) {
	r := &Rule{
		Kind: kind,
		ID:   config.CompileRegexes(s.CodeIdentifier),
		Mark: s.Mark,
		CWE:  s.CWE,
		Note: s.Note,
	}
	parse := func(specs []string, def string) ([]Position, error) {
		if len(specs) == 0 && def != "" {
			specs = []string{def}
		}
		var res []Position
		for _, p := range specs {
			pos, err := ParsePosition(p)
			if err != nil {
				return nil, err
			}
			res = append(res, pos)
		}
		return res, nil
	}
	var err error
	if kind == PassThrough {
		if r.From, err = parse(s.From, "any-arg"); err != nil {
			return nil, err
		}
		if r.To, err = parse(s.To, "result"); err != nil {
			return nil, err
		}
	} else if !r.IsField() {
		if r.Positions, err = parse(s.Positions, defaultPositions[kind]); err != nil {
			return nil, err
		}
	}
	if kind == EntryPoint && r.IsField() {
		return nil, fmt.Errorf("entry points cannot be fields")
	}
	for _, c := range s.Conditions {
		cond, err := newCondition(c)
		if err != nil {
			return nil, err
		}
		r.Conditions = append(r.Conditions, cond)
	}
	return r, nil
}

func newCondition(c config.ConditionSpec) (Condition, error) {
	pos := c.Position
	if c.IsConstant != "" {
		pos = c.IsConstant
	}
	p, err := ParsePosition(pos)
	if err != nil {
		return Condition{}, fmt.Errorf("invalid condition: %w", err)
	}
	if p.Kind != This && p.Kind != Arg {
		return Condition{}, fmt.Errorf("invalid condition position %s", p)
	}
	cond := Condition{Position: p, Not: c.Not}
	if c.ConstantMatches != "" {
		cond.Regex, err = regexp.Compile(c.ConstantMatches)
		if err != nil {
			return Condition{}, fmt.Errorf("invalid condition regex: %w", err)
		}
	}
	return cond, nil
}

// Rules returns the rules of kind, in declaration order
func (rs *RuleSet) Rules(kind RuleKind) []*Rule {
	var res []*Rule
	for _, r := range rs.rules {
		if r.Kind == kind {
			res = append(res, r)
		}
	}
	return res
}

// Len returns the number of rules
func (rs *RuleSet) Len() int { return len(rs.rules) }

// Empty returns true if the rule set reports nothing
func (rs *RuleSet) Empty() bool { return len(rs.rules) == 0 && rs.deref == nil }

// NullDereference returns the null dereference rule, or nil if null dereferences are not reported
func (rs *RuleSet) NullDereference() *Rule { return rs.deref }

// MatchCall returns the rules matching the call n, in declaration order
func (rs *RuleSet) MatchCall(n *ir.Statement) []*Rule {
	var res []*Rule
	for _, r := range rs.rules {
		if r.Kind != EntryPoint && r.matchesCall(n) {
			res = append(res, r)
		}
	}
	return res
}

// MatchField returns the rules matching the field access n, in declaration order
func (rs *RuleSet) MatchField(n *ir.Statement) []*Rule {
	var res []*Rule
	for _, r := range rs.rules {
		if r.matchesField(n) {
			res = append(res, r)
		}
	}
	return res
}

// MatchEntry returns the entry point rules matching the method m
func (rs *RuleSet) MatchEntry(m *ir.Method) []*Rule {
	cid := config.CodeIdentifier{Class: m.Ref.Class, Method: m.Ref.Name, Descriptor: m.Ref.Descriptor}
	var res []*Rule
	for _, r := range rs.rules {
		if r.Kind == EntryPoint && cid.MatchedBy(r.ID) {
			res = append(res, r)
		}
	}
	return res
}

// IsFiltered returns true if calls to the target of n are never analyzed
func (rs *RuleSet) IsFiltered(n *ir.Statement) bool {
	t := n.Call.Target
	return config.TaintSpec{Filters: rs.filters}.IsFiltered(
		config.CodeIdentifier{Class: t.Class, Method: t.Name, Descriptor: t.Descriptor})
}

// With returns a copy of the rule set with the additional rule spec of kind appended to its rules
func (rs *RuleSet) With(kind RuleKind, spec config.RuleSpec) (*RuleSet, error) {
	r, err := newRule(kind, spec)
	if err != nil {
		return nil, err
	}
	res := &RuleSet{Name: rs.Name, filters: rs.filters, deref: rs.deref}
	res.rules = append(append([]*Rule(nil), rs.rules...), r)
	r.Index = len(res.rules) - 1
	return res, nil
}
