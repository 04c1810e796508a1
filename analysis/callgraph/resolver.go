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

// Package callgraph resolves the targets of call statements over the declared type hierarchy, and builds the call
// graph reachable from entry methods.
package callgraph

import (
	"errors"
	"fmt"
	"sync"

	"github.com/awslabs/ar-jvm-tools/analysis/bytecode"
	"github.com/awslabs/ar-jvm-tools/analysis/hierarchy"
	"github.com/awslabs/ar-jvm-tools/analysis/ir"
	"golang.org/x/exp/slices"
)

// ErrUnresolvedCallee is returned when no implementation of a called method can be found in the database
var ErrUnresolvedCallee = errors.New("unresolved callee")

// Dispatch tells how the callee of an edge was determined
type Dispatch uint8

const (
	// Exact edges are the only possible target of their call site
	Exact Dispatch = iota
	// Hierarchy edges are one of the implementations visible from the static receiver type
	Hierarchy
)

func (d Dispatch) String() string {
	if d == Exact {
		return "exact"
	}
	return "hierarchy"
}

// Edge is a call graph edge from a call statement to one of its possible callees
type Edge struct {
	Site     *ir.Statement
	Callee   bytecode.MethodRef
	Dispatch Dispatch
}

func (e Edge) String() string {
	return fmt.Sprintf("%s#%d -> %s (%s)", e.Site.Method.Ref, e.Site.Index, e.Callee, e.Dispatch)
}

type key struct {
	class, name, desc string
	kind              ir.InvokeKind
}

type resolution struct {
	callees  []bytecode.MethodRef
	dispatch Dispatch
	err      error
}

// Resolver resolves call sites by class hierarchy analysis. Results are memoized per static receiver type, method
// signature and invoke kind. It is safe for concurrent use.
type Resolver struct {
	db    bytecode.Database
	types *hierarchy.Index

	mu     sync.RWMutex
	memo   map[key]resolution
	hits   int
	misses int
}

// NewResolver returns a resolver over the methods of db and the hierarchy types
func NewResolver(db bytecode.Database, types *hierarchy.Index) *Resolver {
	return &Resolver{db: db, types: types, memo: map[key]resolution{}}
}

// Resolve returns the call graph edges of the call statement site, ordered by callee. The error wraps
// ErrUnresolvedCallee when the call has no known target.
func (r *Resolver) Resolve(site *ir.Statement) ([]Edge, error) {
	if site.Op != ir.OpInvoke {
		return nil, fmt.Errorf("statement %d of %s is not a call", site.Index, site.Method.Ref)
	}
	callees, dispatch, err := r.ResolveCall(site.Call)
	if err != nil {
		return nil, fmt.Errorf("%s#%d: %w", site.Method.Ref, site.Index, err)
	}
	edges := make([]Edge, len(callees))
	for i, c := range callees {
		edges[i] = Edge{Site: site, Callee: c, Dispatch: dispatch}
	}
	return edges, nil
}

// ResolveCall returns the possible targets of call, sorted
func (r *Resolver) ResolveCall(call *ir.Call) ([]bytecode.MethodRef, Dispatch, error) {
	k := key{class: call.Target.Class, name: call.Target.Name, desc: call.Target.Descriptor, kind: call.Kind}
	r.mu.RLock()
	res, ok := r.memo[k]
	r.mu.RUnlock()
	if ok {
		r.mu.Lock()
		r.hits++
		r.mu.Unlock()
		return res.callees, res.dispatch, res.err
	}
	res = r.resolve(call)
	r.mu.Lock()
	r.misses++
	r.memo[k] = res
	r.mu.Unlock()
	return res.callees, res.dispatch, res.err
}

// Stats returns the number of memoized and computed resolutions
func (r *Resolver) Stats() (hits int, misses int) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.hits, r.misses
}

func (r *Resolver) resolve(call *ir.Call) resolution {
	sig := call.Target.Signature()
	switch call.Kind {
	case ir.InvokeStatic, ir.InvokeSpecial:
		if ref, ok := r.lookupUp(call.Target.Class, sig, false); ok {
			return resolution{callees: []bytecode.MethodRef{ref}, dispatch: Exact}
		}
	case ir.InvokeVirtual, ir.InvokeInterface:
		var callees []bytecode.MethodRef
		for _, c := range r.types.ConcreteSubtypes(call.Target.Class) {
			if ref, ok := r.lookupUp(c, sig, true); ok && !slices.Contains(callees, ref) {
				callees = append(callees, ref)
			}
		}
		if len(callees) == 0 {
			// receiver types outside of the database may still inherit a declared implementation
			if ref, ok := r.lookupUp(call.Target.Class, sig, true); ok {
				callees = append(callees, ref)
			}
		}
		if len(callees) > 0 {
			slices.SortFunc(callees, bytecode.MethodRef.Less)
			dispatch := Hierarchy
			if len(callees) == 1 && len(r.types.Subtypes(call.Target.Class)) == 0 {
				dispatch = Exact
			}
			return resolution{callees: callees, dispatch: dispatch}
		}
	}
	return resolution{err: fmt.Errorf("%w: %s %s", ErrUnresolvedCallee, call.Kind, call.Target)}
}

// lookupUp finds the method declared in class or its nearest superclass. When concrete is set, abstract declarations
// are skipped and default methods of the interfaces are considered after the superclasses.
func (r *Resolver) lookupUp(class string, sig bytecode.Signature, concrete bool) (bytecode.MethodRef, bool) {
	for c := class; c != ""; {
		if body, err := r.db.ResolveMethodBody(c, sig); err == nil && (!concrete || !body.Modifiers.Abstract()) {
			return sig.In(c), true
		}
		h, ok := r.types.Lookup(c)
		if !ok {
			break
		}
		c = h.Superclass
	}
	if !concrete {
		return bytecode.MethodRef{}, false
	}
	for _, s := range r.types.Supertypes(class) {
		if !r.types.IsInterface(s) {
			continue
		}
		if body, err := r.db.ResolveMethodBody(s, sig); err == nil && !body.Modifiers.Abstract() {
			return sig.In(s), true
		}
	}
	return bytecode.MethodRef{}, false
}
