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

package callgraph

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/awslabs/ar-jvm-tools/analysis/bytecode"
	"github.com/awslabs/ar-jvm-tools/analysis/ir"
	"github.com/awslabs/ar-jvm-tools/internal/graphutil"
	"golang.org/x/exp/slices"
)

// Graph is the call graph reachable from a set of entry methods
type Graph struct {
	// Entries are the methods the graph was built from
	Entries []bytecode.MethodRef
	// Methods are all the reachable methods, sorted. Their ids in the Digraph are their indices.
	Methods []bytecode.MethodRef
	// Out maps each reachable method to its outgoing edges, in statement order
	Out map[bytecode.MethodRef][]Edge
	// Unresolved are the call sites without any known target
	Unresolved []*ir.Statement
	// Failures are the reachable methods whose body could not be built, with their error. Methods without code
	// are not failures.
	Failures map[bytecode.MethodRef]error

	ids     map[bytecode.MethodRef]int64
	digraph *graphutil.Digraph
}

// Build computes the call graph reachable from entries. Each level of the breadth-first exploration is built in
// parallel with at most workers goroutines.
func Build(ctx context.Context, r *Resolver, cache *ir.Cache, entries []bytecode.MethodRef, workers int) (*Graph, error) {
	g := &Graph{
		Entries:  entries,
		Out:      map[bytecode.MethodRef][]Edge{},
		Failures: map[bytecode.MethodRef]error{},
	}
	seen := map[bytecode.MethodRef]bool{}
	frontier := []bytecode.MethodRef{}
	for _, e := range entries {
		if !seen[e] {
			seen[e] = true
			frontier = append(frontier, e)
		}
	}
	for len(frontier) > 0 {
		if err := cache.Prebuild(ctx, frontier, workers); err != nil {
			return nil, err
		}
		var next []bytecode.MethodRef
		for _, ref := range frontier {
			g.Methods = append(g.Methods, ref)
			m, err := cache.Get(ref)
			if err != nil {
				if !errors.Is(err, ir.ErrNoBody) {
					g.Failures[ref] = err
				}
				continue
			}
			for _, s := range m.Statements {
				if s.Op != ir.OpInvoke {
					continue
				}
				edges, err := r.Resolve(s)
				if err != nil {
					g.Unresolved = append(g.Unresolved, s)
					continue
				}
				g.Out[ref] = append(g.Out[ref], edges...)
				for _, e := range edges {
					if !seen[e.Callee] {
						seen[e.Callee] = true
						next = append(next, e.Callee)
					}
				}
			}
		}
		frontier = next
	}
	slices.SortFunc(g.Methods, bytecode.MethodRef.Less)
	g.ids = make(map[bytecode.MethodRef]int64, len(g.Methods))
	g.digraph = graphutil.NewDigraph(len(g.Methods))
	for i, m := range g.Methods {
		g.ids[m] = int64(i)
		g.digraph.AddNode(int64(i), m.String())
	}
	for caller, edges := range g.Out {
		for _, e := range edges {
			g.digraph.AddEdge(g.ids[caller], g.ids[e.Callee])
		}
	}
	return g, nil
}

// Callees returns the distinct methods called by m, sorted
func (g *Graph) Callees(m bytecode.MethodRef) []bytecode.MethodRef {
	var res []bytecode.MethodRef
	for _, e := range g.Out[m] {
		if !slices.Contains(res, e.Callee) {
			res = append(res, e.Callee)
		}
	}
	slices.SortFunc(res, bytecode.MethodRef.Less)
	return res
}

// Digraph returns the graph over method ids, which are the indices of the methods in Methods
func (g *Graph) Digraph() *graphutil.Digraph { return g.digraph }

// ID returns the id of m in the Digraph
func (g *Graph) ID(m bytecode.MethodRef) (int64, bool) {
	id, ok := g.ids[m]
	return id, ok
}

func (g *Graph) refs(ids []int64) []bytecode.MethodRef {
	res := make([]bytecode.MethodRef, len(ids))
	for i, id := range ids {
		res[i] = g.Methods[id]
	}
	return res
}

// SCCs returns the recursive components of the graph: mutually recursive methods, and methods calling themselves
func (g *Graph) SCCs() [][]bytecode.MethodRef {
	var res [][]bytecode.MethodRef
	for _, c := range graphutil.StrongComponents(g.digraph) {
		res = append(res, g.refs(c))
	}
	return res
}

// Cycles returns the elementary cycles of the graph. Each cycle starts and ends with the same method.
func (g *Graph) Cycles() [][]bytecode.MethodRef {
	var res [][]bytecode.MethodRef
	for _, c := range graphutil.FindAllElementaryCycles(g.digraph) {
		res = append(res, g.refs(c))
	}
	return res
}

// WriteText prints the edges of the graph, grouped by caller
func (g *Graph) WriteText(w io.Writer) error {
	for _, m := range g.Methods {
		edges := g.Out[m]
		if len(edges) == 0 {
			continue
		}
		if _, err := fmt.Fprintf(w, "%s\n", m); err != nil {
			return err
		}
		for _, e := range edges {
			if _, err := fmt.Fprintf(w, "  #%d -> %s (%s)\n", e.Site.Index, e.Callee, e.Dispatch); err != nil {
				return err
			}
		}
	}
	return nil
}
