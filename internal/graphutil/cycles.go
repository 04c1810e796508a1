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

package graphutil

import (
	"github.com/yourbasic/graph"
	"golang.org/x/exp/slices"
)

// StrongComponents returns the strongly connected components of g with at least two nodes, or with a single node
// that has an edge to itself. Each component is sorted by node id and components are sorted by their smallest id.
func StrongComponents(g *Digraph) [][]int64 {
	var res [][]int64
	for _, component := range graph.StrongComponents(g) {
		if len(component) == 1 {
			id := int64(component[0])
			if _, ok := g.Labels[id]; !ok || !g.HasEdgeFromTo(id, id) {
				continue
			}
		}
		ids := make([]int64, len(component))
		for i, c := range component {
			ids[i] = int64(c)
		}
		slices.Sort(ids)
		res = append(res, ids)
	}
	slices.SortFunc(res, func(a, b []int64) bool { return a[0] < b[0] })
	return res
}

// FindAllElementaryCycles finds all elementary cycles in the graph g
// This uses Donald B. Johnson's algorithm presented in
// "Finding All The Elementary Circuits of a Directed Graph", 1975
// Every cycle starts and ends with its smallest node id.
func FindAllElementaryCycles(g *Digraph) [][]int64 {
	s := &state{
		blocked: map[int64]bool{},
		blist:   map[int64]map[int64]bool{},
		stack:   []int64{},
		cycles:  [][]int64{},
	}
	for i, start := range g.Keys {
		if g.HasEdgeFromTo(start, start) {
			s.cycles = append(s.cycles, []int64{start, start})
		}
		fg := Subgraph(g, g.Keys[i:])
		for _, component := range graph.StrongComponents(fg) {
			if len(component) < 2 || !slices.Contains(component, int(start)) {
				continue
			}
			s.stack = []int64{}
			s.blocked = map[int64]bool{}
			s.blist = map[int64]map[int64]bool{}
			s.circuit(start, start, restrict(fg, component))
		}
	}
	return s.cycles
}

func restrict(g *Digraph, component []int) *Digraph {
	ids := make([]int64, len(component))
	for i, c := range component {
		ids[i] = int64(c)
	}
	return Subgraph(g, ids)
}

type state struct {
	blocked map[int64]bool
	blist   map[int64]map[int64]bool
	stack   []int64
	cycles  [][]int64
}

func (s *state) unblock(u int64) {
	s.blocked[u] = false
	for w := range s.blist[u] {
		if s.blocked[w] {
			s.unblock(w)
		}
	}
	delete(s.blist, u)
}

func (s *state) circuit(v int64, start int64, g *Digraph) bool {
	f := false
	s.stack = append(s.stack, v)
	s.blocked[v] = true
	for _, w := range g.Edges[v] {
		if w == v {
			continue // self loops are reported separately
		}
		if w == start {
			cycle := slices.Clone(s.stack)
			s.cycles = append(s.cycles, append(cycle, w))
			f = true
		} else if !s.blocked[w] {
			if s.circuit(w, start, g) {
				f = true
			}
		}
	}

	if f {
		s.unblock(v)
	} else {
		for _, w := range g.Edges[v] {
			if s.blist[w] == nil {
				s.blist[w] = map[int64]bool{}
			}
			s.blist[w][v] = true
		}
	}
	s.stack = s.stack[:len(s.stack)-1]
	return f
}
