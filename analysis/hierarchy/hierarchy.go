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

// Package hierarchy indexes the type hierarchy of a class database: transitive supertypes and subtypes, and subtype
// tests. Classes are loaded lazily from the database and cached.
package hierarchy

import (
	"errors"
	"sync"

	"github.com/awslabs/ar-jvm-tools/analysis/bytecode"
	"github.com/awslabs/ar-jvm-tools/internal/funcutil"
	"golang.org/x/exp/slices"
)

type entry struct {
	h     bytecode.Hierarchy
	known bool
	// supers are all the transitive supertypes, nearest first, computed on demand
	supers []string
	// subs are all the transitive subtypes, sorted, computed on demand
	subs []string
}

// Index is a cache over the type hierarchy of a database. It is safe for concurrent use.
type Index struct {
	db      bytecode.Database
	mu      sync.RWMutex
	entries map[string]*entry
}

// New returns an empty index over db
func New(db bytecode.Database) *Index {
	return &Index{db: db, entries: map[string]*entry{}}
}

func (x *Index) get(class string) *entry {
	x.mu.RLock()
	e, ok := x.entries[class]
	x.mu.RUnlock()
	if ok {
		return e
	}
	h, err := x.db.TypeHierarchy(class)
	e = &entry{h: h, known: err == nil}
	if err != nil && !errors.Is(err, bytecode.ErrClassNotFound) {
		e.known = false
	}
	x.mu.Lock()
	defer x.mu.Unlock()
	if prev, ok := x.entries[class]; ok {
		return prev
	}
	x.entries[class] = e
	return e
}

// Knows returns true if the database knows the class, either because it declares it or because some declared class
// extends it
func (x *Index) Knows(class string) bool {
	return x.get(class).known
}

// Lookup returns the direct hierarchy of class
func (x *Index) Lookup(class string) (bytecode.Hierarchy, bool) {
	e := x.get(class)
	return e.h, e.known
}

// IsInterface returns true if class is a known interface
func (x *Index) IsInterface(class string) bool {
	return x.get(class).h.Modifiers.Interface()
}

// Supertypes returns the transitive supertypes of class, excluding class itself, in breadth-first order: the
// superclass chain is visited before the interfaces at each level.
func (x *Index) Supertypes(class string) []string {
	e := x.get(class)
	x.mu.RLock()
	supers := e.supers
	x.mu.RUnlock()
	if supers != nil {
		return supers
	}
	seen := map[string]bool{class: true}
	queue := []string{class}
	res := []string{}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, s := range x.get(cur).h.Supertypes() {
			if !seen[s] {
				seen[s] = true
				res = append(res, s)
				queue = append(queue, s)
			}
		}
	}
	x.mu.Lock()
	e.supers = res
	x.mu.Unlock()
	return res
}

// Subtypes returns the transitive subtypes of class, excluding class itself, sorted by name
func (x *Index) Subtypes(class string) []string {
	e := x.get(class)
	x.mu.RLock()
	subs := e.subs
	x.mu.RUnlock()
	if subs != nil {
		return subs
	}
	seen := map[string]bool{class: true}
	stack := []string{class}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for _, s := range x.get(cur).h.Subtypes {
			if !seen[s] {
				seen[s] = true
				stack = append(stack, s)
			}
		}
	}
	delete(seen, class)
	res := funcutil.SetToOrderedSlice(seen)
	x.mu.Lock()
	e.subs = res
	x.mu.Unlock()
	return res
}

// IsSubtype returns true if sub is super, or if super is a transitive supertype of sub. Every class is a subtype of
// java/lang/Object.
func (x *Index) IsSubtype(sub, super string) bool {
	if sub == super || super == bytecode.JavaLangObject {
		return true
	}
	return slices.Contains(x.Supertypes(sub), super)
}

// ConcreteSubtypes returns class and its transitive subtypes that are neither abstract nor interfaces, sorted
func (x *Index) ConcreteSubtypes(class string) []string {
	var res []string
	for _, c := range append([]string{class}, x.Subtypes(class)...) {
		e := x.get(c)
		if e.known && e.h.Class != "" && !e.h.Modifiers.Abstract() && !e.h.Modifiers.Interface() &&
			(e.h.Superclass != "" || c == bytecode.JavaLangObject) {
			res = append(res, c)
		}
	}
	slices.Sort(res)
	return res
}
