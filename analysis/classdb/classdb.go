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

// Package classdb implements an in-memory class database, loaded from program files in yaml or msgpack format.
// It is the database used by the jargot command and by the tests of the analyses.
package classdb

import (
	"fmt"
	"sync"

	"github.com/awslabs/ar-jvm-tools/analysis/bytecode"
	"github.com/awslabs/ar-jvm-tools/internal/funcutil"
	"golang.org/x/exp/slices"
)

// Program is the content of a program file
type Program struct {
	Classes []*Class `yaml:"classes" msgpack:"classes"`
}

// Class is a class or interface of a program
type Class struct {
	Name       string           `yaml:"name" msgpack:"name"`
	Super      string           `yaml:"super,omitempty" msgpack:"super,omitempty"`
	Interfaces []string         `yaml:"interfaces,omitempty" msgpack:"interfaces,omitempty"`
	Flags      bytecode.ModBits `yaml:"flags,omitempty" msgpack:"flags,omitempty"`
	Methods    []*Method        `yaml:"methods,omitempty" msgpack:"methods,omitempty"`
}

// Method is a method of a class. Abstract and native methods have no code.
type Method struct {
	Name                string           `yaml:"name" msgpack:"name"`
	Descriptor          string           `yaml:"descriptor" msgpack:"descriptor"`
	Flags               bytecode.ModBits `yaml:"flags,omitempty" msgpack:"flags,omitempty"`
	bytecode.MethodBody `yaml:",inline" msgpack:",inline"`
}

// DB is a class database built from a Program. It is safe for concurrent use.
type DB struct {
	classes  map[string]*Class
	subtypes map[string][]string
	bodies   map[bytecode.MethodRef]*bytecode.MethodBody

	// lookups counts the calls to ResolveMethodBody, for tests and statistics
	mu      sync.Mutex
	lookups int
}

// New builds a database from the program. It fails if a class or a method is declared twice or if a method
// descriptor is malformed.
func New(p *Program) (*DB, error) {
	db := &DB{
		classes:  map[string]*Class{},
		subtypes: map[string][]string{},
		bodies:   map[bytecode.MethodRef]*bytecode.MethodBody{},
	}
	for _, c := range p.Classes {
		if c.Name == "" {
			return nil, fmt.Errorf("class without a name")
		}
		if _, ok := db.classes[c.Name]; ok {
			return nil, fmt.Errorf("class %s is declared twice", c.Name)
		}
		if c.Super == "" && c.Name != bytecode.JavaLangObject && !c.Flags.Interface() {
			c.Super = bytecode.JavaLangObject
		}
		db.classes[c.Name] = c
		for _, super := range append([]string{c.Super}, c.Interfaces...) {
			if super != "" {
				db.subtypes[super] = append(db.subtypes[super], c.Name)
			}
		}
		for _, m := range c.Methods {
			ref := bytecode.MethodRef{Class: c.Name, Name: m.Name, Descriptor: m.Descriptor}
			if _, err := bytecode.ParseMethodDescriptor(m.Descriptor); err != nil {
				return nil, fmt.Errorf("method %s: %w", ref, err)
			}
			if _, ok := db.bodies[ref]; ok {
				return nil, fmt.Errorf("method %s is declared twice", ref)
			}
			body := m.MethodBody
			body.Ref = ref
			body.Modifiers = m.Flags
			if c.Flags.Interface() && len(body.Instructions) == 0 && !m.Flags.Static() {
				body.Modifiers |= bytecode.ModAbstract
			}
			body.Instructions = funcutil.Map(body.Instructions, bytecode.Instruction.Normalize)
			db.bodies[ref] = &body
		}
	}
	for _, subs := range db.subtypes {
		slices.Sort(subs)
	}
	return db, nil
}

// ResolveMethodBody returns the body of the method declared in class with the given signature
func (db *DB) ResolveMethodBody(class string, sig bytecode.Signature) (*bytecode.MethodBody, error) {
	db.mu.Lock()
	db.lookups++
	db.mu.Unlock()
	if _, ok := db.classes[class]; !ok {
		return nil, fmt.Errorf("%w: %s", bytecode.ErrClassNotFound, class)
	}
	body, ok := db.bodies[sig.In(class)]
	if !ok {
		return nil, fmt.Errorf("%w: %s", bytecode.ErrMethodNotFound, sig.In(class))
	}
	return body, nil
}

// TypeHierarchy returns the direct supertypes and subtypes of the class. Classes that are not declared but are the
// supertype of a declared class (e.g. java/lang/Object) have a hierarchy with only subtypes.
func (db *DB) TypeHierarchy(class string) (bytecode.Hierarchy, error) {
	c, ok := db.classes[class]
	subs := db.subtypes[class]
	if !ok {
		if len(subs) == 0 {
			return bytecode.Hierarchy{}, fmt.Errorf("%w: %s", bytecode.ErrClassNotFound, class)
		}
		return bytecode.Hierarchy{Class: class, Subtypes: slices.Clone(subs)}, nil
	}
	return bytecode.Hierarchy{
		Class:      class,
		Modifiers:  c.Flags,
		Superclass: c.Super,
		Interfaces: slices.Clone(c.Interfaces),
		Subtypes:   slices.Clone(subs),
	}, nil
}

// Classes returns the names of the declared classes, sorted
func (db *DB) Classes() []string {
	return funcutil.SortedKeys(db.classes)
}

// Methods returns the references of all the methods declared in the program, sorted
func (db *DB) Methods() []bytecode.MethodRef {
	refs := make([]bytecode.MethodRef, 0, len(db.bodies))
	for ref := range db.bodies {
		refs = append(refs, ref)
	}
	slices.SortFunc(refs, bytecode.MethodRef.Less)
	return refs
}

// Lookups returns the number of calls to ResolveMethodBody made so far
func (db *DB) Lookups() int {
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.lookups
}
