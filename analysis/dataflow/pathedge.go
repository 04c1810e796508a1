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
	"fmt"

	"github.com/awslabs/ar-jvm-tools/analysis/ir"
)

// EdgeKind is the kind of an edge of the exploded supergraph
type EdgeKind uint8

const (
	// Seed edges start the analysis at an entry method
	Seed EdgeKind = iota
	// Intra edges follow an edge of the control flow graph of a method
	Intra
	// CallToReturn edges go from a call to its successors without entering the callees
	CallToReturn
	// Call edges go from a call to the entry of a callee
	Call
	// Return edges go from an exit of a callee to a successor of its call
	Return
)

func (k EdgeKind) String() string {
	switch k {
	case Seed:
		return "seed"
	case Intra:
		return "intra"
	case CallToReturn:
		return "call-to-return"
	case Call:
		return "call"
	case Return:
		return "return"
	}
	return fmt.Sprintf("edge(%d)", k)
}

// A PathEdge states that Fact holds before Node when StartFact holds at Start, the entry of the method of Node
type PathEdge struct {
	Start     *ir.Statement
	StartFact Fact
	Node      *ir.Statement
	Fact      Fact
}

// Method returns the method the edge is in
func (e PathEdge) Method() *ir.Method { return e.Node.Method }

func (e PathEdge) String() string {
	return fmt.Sprintf("(%s#%d, %s) -> (#%d, %s)", e.Start.Method.Ref, e.Start.Index, e.StartFact, e.Node.Index,
		e.Fact)
}

// link is the back-pointer of a path edge to the edges it was derived from
type link struct {
	kind EdgeKind
	// seq is the number of path edges reached before this one
	seq int
	// pred is the predecessor in the same method for intra and call-to-return edges, and the edge at the call
	// site for call and return edges
	pred PathEdge
	// exit is the edge at the exit of the callee for return edges
	exit PathEdge
}

// entryKey identifies the analysis of a method for an entry fact
type entryKey struct {
	method *ir.Method
	fact   Fact
}

// edgeList is a set of path edges that remembers insertion order
type edgeList struct {
	set   map[PathEdge]bool
	order []PathEdge
}

func (l *edgeList) add(e PathEdge) bool {
	if l.set == nil {
		l.set = map[PathEdge]bool{}
	}
	if l.set[e] {
		return false
	}
	l.set[e] = true
	l.order = append(l.order, e)
	return true
}
