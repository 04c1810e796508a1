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
	"strings"
	"sync"

	"github.com/awslabs/ar-jvm-tools/analysis/bytecode"
	"github.com/awslabs/ar-jvm-tools/analysis/callgraph"
	"github.com/awslabs/ar-jvm-tools/analysis/config"
	"github.com/awslabs/ar-jvm-tools/analysis/hierarchy"
	"github.com/awslabs/ar-jvm-tools/analysis/ir"
	"github.com/awslabs/ar-jvm-tools/internal/funcutil"
	"golang.org/x/exp/slices"
)

// Program is a class database that can enumerate the methods it declares
type Program interface {
	bytecode.Database
	Methods() []bytecode.MethodRef
}

// AnalyzerState holds the information shared by the analyses of a program: the program, its type hierarchy, the
// control flow graphs of its methods and the resolution of its calls. The state is safe for concurrent use by
// several analysis runs.
type AnalyzerState struct {
	// The logger used during the analysis
	Logger *config.LogGroup

	// The configuration of the analysis
	Config *config.Config

	// The program to be analyzed
	Program Program

	// Hierarchy is the type hierarchy index of the program
	Hierarchy *hierarchy.Index

	// Cache holds the control flow graphs of the methods, built on demand
	Cache *ir.Cache

	// Resolver resolves the callees of call statements
	Resolver *callgraph.Resolver

	// Stored errors
	errors     map[string][]error
	errorMutex sync.Mutex

	// call graphs built by Prebuild, keyed by their sorted entry points
	prebuilt      map[string]*callgraph.Graph
	prebuildMutex sync.Mutex
}

// NewAnalyzerState returns a state for program. The config may be nil, in which case the default config is used.
func NewAnalyzerState(program Program, logger *config.LogGroup, cfg *config.Config) *AnalyzerState {
	if cfg == nil {
		cfg = config.NewDefault()
	}
	if logger == nil {
		logger = config.NewLogGroup(cfg)
	}
	types := hierarchy.New(program)
	return &AnalyzerState{
		Logger:    logger,
		Config:    cfg,
		Program:   program,
		Hierarchy: types,
		Cache:     ir.NewCache(program, types),
		Resolver:  callgraph.NewResolver(program, types),
		errors:    map[string][]error{},
		prebuilt:  map[string]*callgraph.Graph{},
	}
}

// AddError adds an error with key and error e to the state.
func (s *AnalyzerState) AddError(key string, e error) {
	s.errorMutex.Lock()
	defer s.errorMutex.Unlock()
	if e == nil {
		return
	}
	for _, prev := range s.errors[key] {
		if prev.Error() == e.Error() {
			return
		}
	}
	s.errors[key] = append(s.errors[key], e)
}

// HasErrors returns true if the state has recorded an error
func (s *AnalyzerState) HasErrors() bool {
	s.errorMutex.Lock()
	defer s.errorMutex.Unlock()
	for _, errs := range s.errors {
		if len(errs) > 0 {
			return true
		}
	}
	return false
}

// Errors returns a copy of the errors recorded so far, by key
func (s *AnalyzerState) Errors() map[string][]error {
	s.errorMutex.Lock()
	defer s.errorMutex.Unlock()
	res := make(map[string][]error, len(s.errors))
	for k, errs := range s.errors {
		res[k] = append([]error(nil), errs...)
	}
	return res
}

// Method returns the control flow graph of ref. Build failures are recorded in the state under the method's name.
func (s *AnalyzerState) Method(ref bytecode.MethodRef) (*ir.Method, error) {
	m, err := s.Cache.Get(ref)
	if err != nil && !errors.Is(err, ir.ErrNoBody) {
		s.AddError(ref.String(), err)
	}
	return m, err
}

// Callees returns the methods with a body that the call statement n may invoke. Methods without a body and
// methods that cannot be built are skipped. The error wraps callgraph.ErrUnresolvedCallee when the call has no
// known target.
func (s *AnalyzerState) Callees(n *ir.Statement) ([]*ir.Method, error) {
	edges, err := s.Resolver.Resolve(n)
	if err != nil {
		return nil, err
	}
	var res []*ir.Method
	for _, e := range edges {
		if m, err := s.Method(e.Callee); err == nil {
			res = append(res, m)
		}
	}
	return res, nil
}

// EntryMethods returns the methods of the program matched by the entry points of the config, sorted
func (s *AnalyzerState) EntryMethods() []bytecode.MethodRef {
	var res []bytecode.MethodRef
	for _, m := range s.Program.Methods() {
		if s.Config.IsEntryPoint(config.CodeIdentifier{Class: m.Class, Method: m.Name, Descriptor: m.Descriptor}) {
			res = append(res, m)
		}
	}
	return res
}

// Prebuild builds the control flow graphs of the methods reachable from entries in parallel, and returns the call
// graph. Methods that cannot be built are recorded as errors. The graph is built once per set of entries: later
// calls with the same entries return the same graph.
func (s *AnalyzerState) Prebuild(ctx context.Context, entries []bytecode.MethodRef) (*callgraph.Graph, error) {
	refs := funcutil.Map(entries, bytecode.MethodRef.String)
	slices.Sort(refs)
	key := strings.Join(refs, "\n")

	s.prebuildMutex.Lock()
	defer s.prebuildMutex.Unlock()
	if g, ok := s.prebuilt[key]; ok {
		return g, nil
	}
	g, err := callgraph.Build(ctx, s.Resolver, s.Cache, entries, s.Config.Parallelism)
	if err != nil {
		return nil, fmt.Errorf("could not build the call graph: %w", err)
	}
	for ref, err := range g.Failures {
		s.AddError(ref.String(), err)
	}
	s.prebuilt[key] = g
	s.Logger.Infof("Built %d reachable methods (%d call sites without callee)\n", len(g.Methods), len(g.Unresolved))
	return g, nil
}
