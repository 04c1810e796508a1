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
	"errors"
	"fmt"

	"github.com/awslabs/ar-jvm-tools/analysis/bytecode"
	"github.com/awslabs/ar-jvm-tools/analysis/config"
	"github.com/awslabs/ar-jvm-tools/analysis/dataflow"
	"github.com/awslabs/ar-jvm-tools/analysis/ir"
	"github.com/awslabs/ar-jvm-tools/internal/funcutil"
	"github.com/google/uuid"
	"golang.org/x/exp/slices"
	"golang.org/x/sync/errgroup"
)

// ErrNoEntryPoint is returned when no method of the program matches the entry points of the config
var ErrNoEntryPoint = errors.New("no entry point")

// Options are the options of one taint analysis run
type Options struct {
	// MaxDepthK bounds the number of fields of access paths. If 0, config.DefaultMaxAccessPathDepth is used.
	MaxDepthK int
	// RetainProvenance keeps the back-pointers of the solver, and computes the trace of every flow
	RetainProvenance bool
	// PathEdgeBudget is the maximum number of path edges processed. If <= 0, it is ignored.
	PathEdgeBudget int
	// MaxAlarms is the maximum number of flows reported. If <= 0, it is ignored.
	MaxAlarms int
}

// OptionsOf returns the run options set by the config
func OptionsOf(cfg *config.Config) Options {
	return Options{
		MaxDepthK:        cfg.MaxAccessPathDepth,
		RetainProvenance: cfg.RetainProvenance,
		PathEdgeBudget:   cfg.PathEdgeBudget,
		MaxAlarms:        cfg.MaxAlarms,
	}
}

// Stats are the statistics of a run
type Stats struct {
	dataflow.Stats
	// RunID identifies the run in logs and report files
	RunID uuid.UUID
	// Problem is the name of the rule set
	Problem string
}

// Result is the result of a taint analysis run
type Result struct {
	// Flows are the flows from a source to a sink, sorted by source and then sink
	Flows []Flow

	Stats Stats

	// Errors are the errors recorded in the analyzer state, keyed by method
	Errors map[string][]error

	// Partial is set when the run was stopped by its budget. It then holds no flow.
	Partial bool
}

// A Flow is a fact generated at Source that reaches the statement Sink
type Flow struct {
	// Source is the statement where the fact was generated: a call, a field access or the entry of an entry point
	Source *ir.Statement
	// Sink is the statement where the fact is consumed
	Sink *ir.Statement
	// Fact is the fact holding at the sink
	Fact dataflow.Fact
	// Rule is the sink rule that matched
	Rule *Rule
	// Trace is the path from the source to the sink. It is nil when provenance is not retained.
	Trace dataflow.Trace
}

// Records returns the records of the trace of the flow
func (f Flow) Records() []dataflow.Record {
	if f.Trace == nil {
		return nil
	}
	return f.Trace.Records()
}

// Report returns one line per trace node, of the form Class.method(desc)#index access-path
func (f Flow) Report() []string {
	return funcutil.Map(f.Records(), dataflow.Record.String)
}

func (f Flow) String() string {
	return fmt.Sprintf("%s#%d -> %s#%d", f.Source.Method.Ref, f.Source.Index, f.Sink.Method.Ref, f.Sink.Index)
}

func stmtLess(a, b *ir.Statement) bool {
	if a.Method.Ref != b.Method.Ref {
		return a.Method.Ref.Less(b.Method.Ref)
	}
	return a.Index < b.Index
}

func flowLess(a, b Flow) bool {
	if a.Source != b.Source {
		return stmtLess(a.Source, b.Source)
	}
	if a.Sink != b.Sink {
		return stmtLess(a.Sink, b.Sink)
	}
	return a.Rule.Index < b.Rule.Index
}

// Analyze runs the taint analysis of rules from the entry methods entries. Methods that cannot be built are recorded
// in Result.Errors and treated as opaque. When the budget is exceeded, Analyze returns a partial result together with
// an error wrapping dataflow.ErrAnalysisIncomplete.
func Analyze(ctx context.Context, state *dataflow.AnalyzerState, entries []bytecode.MethodRef, rules *RuleSet,
	opts Options) (*Result, error) {
	k := opts.MaxDepthK
	if k == 0 {
		k = config.DefaultMaxAccessPathDepth
	}
	if err := config.ValidateDepth(k); err != nil {
		return nil, err
	}
	if rules == nil || rules.Empty() {
		return nil, ErrEmptyRuleSet
	}
	logger := state.Logger
	stats := Stats{RunID: uuid.New(), Problem: rules.Name}
	logger.Infof("Starting taint analysis %s of %q from %d entry points (K = %d)\n",
		stats.RunID, rules.Name, len(entries), k)

	if _, err := state.Prebuild(ctx, entries); err != nil {
		return nil, err
	}
	var methods []*ir.Method
	for _, ref := range entries {
		m, err := state.Method(ref)
		if err != nil {
			logger.Warnf("Entry point %s is not analyzed: %v\n", ref, err)
			continue
		}
		methods = append(methods, m)
	}

	p := newProblem(state, rules, k)
	solver := dataflow.NewSolver(p, p, dataflow.SolverOptions{
		RetainProvenance: opts.RetainProvenance,
		PathEdgeBudget:   opts.PathEdgeBudget,
	}, logger)
	err := solver.Solve(ctx, methods)
	stats.Stats = solver.Stats()
	res := &Result{Stats: stats, Errors: state.Errors()}
	if err != nil {
		if errors.Is(err, dataflow.ErrAnalysisIncomplete) {
			res.Partial = true
			return res, fmt.Errorf("taint analysis %q: %w", rules.Name, err)
		}
		return nil, err
	}

	for _, h := range p.hits {
		flow := Flow{Source: h.edge.Fact.Source, Sink: h.edge.Node, Fact: h.edge.Fact, Rule: h.rule}
		if opts.RetainProvenance {
			trace, err := solver.Trace(h.edge)
			if err != nil {
				state.AddError(h.edge.Node.Method.Ref.String(), err)
			} else {
				flow.Trace = trace
			}
		}
		res.Flows = append(res.Flows, flow)
	}
	slices.SortFunc(res.Flows, flowLess)
	if opts.MaxAlarms > 0 && len(res.Flows) > opts.MaxAlarms {
		logger.Warnf("%d flows found, only %d reported\n", len(res.Flows), opts.MaxAlarms)
		res.Flows = res.Flows[:opts.MaxAlarms]
	}
	res.Errors = state.Errors()
	logger.Infof("Taint analysis %s done in %.2f s: %d flows, %d path edges, %d methods\n",
		stats.RunID, stats.Duration.Seconds(), len(res.Flows), stats.PathEdges, stats.MethodsVisited)
	return res, nil
}

// AnalyzeConfig runs every taint tracking problem of cfg on the program db, from the entry points of cfg. The
// problems run concurrently and share the control flow graphs of the methods. The results are in the order of the
// problems; the result of a problem that failed is nil, unless it is partial. The errors of all the problems are
// joined.
func AnalyzeConfig(ctx context.Context, cfg *config.Config, db dataflow.Program,
	logger *config.LogGroup) ([]*Result, error) {
	state := dataflow.NewAnalyzerState(db, logger, cfg)
	rules := make([]*RuleSet, len(cfg.TaintTrackingProblems))
	for i, spec := range cfg.TaintTrackingProblems {
		rs, err := NewRuleSet(spec)
		if err != nil {
			return nil, fmt.Errorf("taint tracking problem %d: %w", i, err)
		}
		rules[i] = rs
	}
	if len(rules) == 0 {
		return nil, fmt.Errorf("no taint tracking problem: %w", ErrEmptyRuleSet)
	}
	entries := state.EntryMethods()
	if len(entries) == 0 {
		return nil, ErrNoEntryPoint
	}
	if _, err := state.Prebuild(ctx, entries); err != nil {
		return nil, err
	}

	results := make([]*Result, len(rules))
	errs := make([]error, len(rules))
	opts := OptionsOf(cfg)
	var g errgroup.Group
	if cfg.Parallelism > 0 {
		g.SetLimit(cfg.Parallelism)
	}
	for i := range rules {
		i := i
		g.Go(func() error {
			results[i], errs[i] = Analyze(ctx, state, entries, rules[i], opts)
			return nil
		})
	}
	_ = g.Wait()
	return results, errors.Join(errs...)
}
