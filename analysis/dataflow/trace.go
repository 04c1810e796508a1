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
	"errors"
	"fmt"
	"strings"

	"github.com/awslabs/ar-jvm-tools/analysis/ir"
	"github.com/awslabs/ar-jvm-tools/internal/funcutil"
)

// ErrIncompleteProvenance is returned when a trace is requested from a run that did not retain back-pointers
var ErrIncompleteProvenance = errors.New("incomplete provenance")

// TraceNode is a statement of a trace with the fact holding when it is reached. The fact of the first node of a
// trace is the fact generated by the source statement.
type TraceNode struct {
	Statement *ir.Statement
	Fact      Fact
}

// Trace is a path of the exploded supergraph from a source statement to a statement where a fact holds
type Trace []TraceNode

// Record is the externally visible form of a trace node
type Record struct {
	Class      string `json:"class" yaml:"class"`
	Method     string `json:"method" yaml:"method"`
	Index      int    `json:"index" yaml:"index"`
	AccessPath string `json:"access-path" yaml:"access-path"`
}

func (r Record) String() string {
	return fmt.Sprintf("%s.%s#%d %s", r.Class, r.Method, r.Index, r.AccessPath)
}

// Records returns the records of the trace, in order
func (t Trace) Records() []Record {
	return funcutil.Map(t, func(n TraceNode) Record {
		ref := n.Statement.Method.Ref
		return Record{
			Class:      ref.Class,
			Method:     ref.Name + ref.Descriptor,
			Index:      n.Statement.Index,
			AccessPath: n.Fact.Path.String(),
		}
	})
}

func (t Trace) String() string {
	return strings.Join(funcutil.Map(t.Records(), Record.String), "\n")
}

// Trace reconstructs the path from the statement where the fact of e was generated to e. Calls are matched with
// their returns: a trace that returns from a callee goes back to the call site the callee was entered from.
func (s *Solver) Trace(e PathEdge) (Trace, error) {
	if !s.options.RetainProvenance {
		return nil, fmt.Errorf("%w: back-pointers were not retained", ErrIncompleteProvenance)
	}
	if e.Fact.IsZero() {
		return nil, fmt.Errorf("no trace for the zero fact at %s#%d", e.Node.Method.Ref, e.Node.Index)
	}
	var (
		nodes Trace
		calls []PathEdge
		cur   = e
	)
	// each step moves to an edge reached earlier, the bound only protects against corrupted links
	for steps := 0; steps <= len(s.reached); steps++ {
		l, ok := s.reached[cur]
		if !ok {
			return nil, fmt.Errorf("%w: %s was not reached", ErrIncompleteProvenance, cur)
		}
		nodes = append(nodes, TraceNode{Statement: cur.Node, Fact: cur.Fact})
		switch l.kind {
		case Seed:
			funcutil.Reverse(nodes)
			return nodes, nil
		case Intra, CallToReturn:
			if l.pred.Fact.IsZero() {
				// the fact was generated at the predecessor
				nodes = append(nodes, TraceNode{Statement: l.pred.Node, Fact: cur.Fact})
				funcutil.Reverse(nodes)
				return nodes, nil
			}
			cur = l.pred
		case Return:
			if l.exit.Fact.IsZero() {
				// the fact was generated at the exit of the callee
				nodes = append(nodes, TraceNode{Statement: l.exit.Node, Fact: cur.Fact})
				funcutil.Reverse(nodes)
				return nodes, nil
			}
			calls = append(calls, l.pred)
			cur = l.exit
		case Call:
			next := l.pred
			if len(calls) > 0 {
				next = calls[len(calls)-1]
				calls = calls[:len(calls)-1]
			}
			if next.Fact.IsZero() {
				// the fact was generated at the call site
				nodes = append(nodes, TraceNode{Statement: next.Node, Fact: cur.Fact})
				funcutil.Reverse(nodes)
				return nodes, nil
			}
			cur = next
		}
	}
	return nil, fmt.Errorf("%w: cyclic back-pointers from %s", ErrIncompleteProvenance, e)
}
