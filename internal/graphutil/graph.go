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
	"golang.org/x/exp/slices"
	"gonum.org/v1/gonum/graph"
)

// Digraph is a directed graph over integer node ids in [0, order) to work with existing graph libraries. It
// implements the methods to satisfy yourbasic's graph.Iterator and Gonum's graph.Directed.
// Successor lists are kept sorted so that every traversal of a Digraph is deterministic.
type Digraph struct {
	// The order of the graph
	order int

	// Labels maps node ids to a printable label
	Labels map[int64]string

	// Keys are all the node IDs, in increasing order
	Keys []int64

	// Edges maps a node id to the sorted ids of its successors
	Edges map[int64][]int64

	// preds maps a node id to the sorted ids of its predecessors
	preds map[int64][]int64
}

// NewDigraph returns an empty graph that can hold up to order nodes
func NewDigraph(order int) *Digraph {
	return &Digraph{
		order:  order,
		Labels: map[int64]string{},
		Edges:  map[int64][]int64{},
		preds:  map[int64][]int64{},
	}
}

// AddNode adds the node with the given id and label to the graph. Adding a node twice updates its label.
func (g *Digraph) AddNode(id int64, label string) {
	if _, ok := g.Labels[id]; !ok {
		idx, _ := slices.BinarySearch(g.Keys, id)
		g.Keys = slices.Insert(g.Keys, idx, id)
	}
	g.Labels[id] = label
}

// AddEdge adds a directed edge between from and to. Both nodes must have been added before.
func (g *Digraph) AddEdge(from, to int64) {
	g.Edges[from] = insertSorted(g.Edges[from], to)
	g.preds[to] = insertSorted(g.preds[to], from)
}

func insertSorted(a []int64, x int64) []int64 {
	idx, found := slices.BinarySearch(a, x)
	if found {
		return a
	}
	return slices.Insert(a, idx, x)
}

// Subgraph returns a new graph that is the original graph with only the nodes in include. Only the edges that have
// both the origin and destination nodes in the include nodes are kept in the resulting graph.
// The subgraph's order and labels are the same as in origin, meaning that node indices will stay consistent
// across subgraphs.
func Subgraph(original *Digraph, include []int64) *Digraph {
	sub := &Digraph{
		order:  original.order,
		Labels: original.Labels,
		Keys:   slices.Clone(include),
		Edges:  make(map[int64][]int64, len(include)),
		preds:  make(map[int64][]int64, len(include)),
	}
	slices.Sort(sub.Keys)
	for _, i := range include {
		for _, e := range original.Edges[i] {
			if _, found := slices.BinarySearch(sub.Keys, e); found {
				sub.AddEdge(i, e)
			}
		}
	}
	return sub
}

// Order implements the order of the graph.Iterator interface for the Digraph
func (g *Digraph) Order() int {
	return g.order
}

// Visit implements the graph.Iterator interface for the Digraph
func (g *Digraph) Visit(v int, do func(w int, c int64) (skip bool)) (aborted bool) {
	for _, w := range g.Edges[int64(v)] {
		if do(int(w), 1) {
			return true
		}
	}
	return false
}

// *************** Graph interface implementation **********************

// Node implements the Graph interface
func (g *Digraph) Node(id int64) graph.Node {
	label, ok := g.Labels[id]
	if !ok {
		return nil
	}
	return DNode{id: id, label: label}
}

// Nodes returns the set of nodes in the graph
func (g *Digraph) Nodes() graph.Nodes {
	return g.nodeSet(g.Keys)
}

// From returns the set of nodes reachable from the id
func (g *Digraph) From(id int64) graph.Nodes {
	return g.nodeSet(g.Edges[id])
}

// To returns the set of nodes that have an edge to the id
func (g *Digraph) To(id int64) graph.Nodes {
	return g.nodeSet(g.preds[id])
}

// HasEdgeBetween returns a boolean indicating whether an edge exists between the two node identifiers
func (g *Digraph) HasEdgeBetween(xid, yid int64) bool {
	return g.HasEdgeFromTo(xid, yid) || g.HasEdgeFromTo(yid, xid)
}

// HasEdgeFromTo returns whether a directed edge from uid to vid exists
func (g *Digraph) HasEdgeFromTo(uid, vid int64) bool {
	_, found := slices.BinarySearch(g.Edges[uid], vid)
	return found
}

// Edge returns the edge between the two identifiers (nil if none exists)
func (g *Digraph) Edge(uid, vid int64) graph.Edge {
	if g.HasEdgeFromTo(uid, vid) {
		return DEdge{from: DNode{uid, g.Labels[uid]}, to: DNode{vid, g.Labels[vid]}}
	}
	return nil
}

func (g *Digraph) nodeSet(ids []int64) *NodeSet {
	return &NodeSet{labels: g.Labels, ids: ids, cur: -1}
}

// *************** Nodes implementation **********************

// DNode is a labelled node that implements the graph.Node interface
type DNode struct {
	id    int64
	label string
}

// ID returns the id of the node
func (n DNode) ID() int64 {
	return n.id
}

func (n DNode) String() string {
	return n.label
}

// NodeSet implements the graph.Nodes interface, an iterator over a set of nodes
type NodeSet struct {
	labels map[int64]string

	// ids is the set of node ids in the iterator
	ids []int64

	// cur is the current index of the iterator, -1 before the first call to Next
	cur int
}

// Next moves the current node to the next, and returns true if such a node exists. Otherwise, returns false
// and the current node has not changed.
func (ns *NodeSet) Next() bool {
	if ns.cur < len(ns.ids)-1 {
		ns.cur++
		return true
	}
	return false
}

// Len returns the number of nodes remaining in the iterator
func (ns *NodeSet) Len() int {
	return len(ns.ids) - ns.cur - 1
}

// Reset resets the id of the current node in the set
func (ns *NodeSet) Reset() {
	ns.cur = -1
}

// Node return the current node in the set
func (ns *NodeSet) Node() graph.Node {
	if ns.cur < 0 || ns.cur >= len(ns.ids) {
		return nil
	}
	id := ns.ids[ns.cur]
	return DNode{id: id, label: ns.labels[id]}
}

// *************** Edge implementation **********************

// DEdge implements the graph.Edge interface
type DEdge struct {
	from DNode
	to   DNode
}

// From returns the origin of the edge
func (e DEdge) From() graph.Node {
	return e.from
}

// To returns the destination of the edge
func (e DEdge) To() graph.Node {
	return e.to
}

// ReversedEdge returns a new value representing the reversed edge
func (e DEdge) ReversedEdge() graph.Edge {
	return DEdge{from: e.to, to: e.from}
}
