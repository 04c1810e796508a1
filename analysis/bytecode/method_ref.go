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

package bytecode

import (
	"fmt"
	"strings"
)

// Signature identifies a method within a class
type Signature struct {
	Name       string
	Descriptor string
}

func (s Signature) String() string {
	return s.Name + s.Descriptor
}

// In returns the reference to the method with this signature in class
func (s Signature) In(class string) MethodRef {
	return MethodRef{Class: class, Name: s.Name, Descriptor: s.Descriptor}
}

// MethodRef identifies a method: declaring class (internal form), name and descriptor
type MethodRef struct {
	Class      string `yaml:"class" msgpack:"class"`
	Name       string `yaml:"name" msgpack:"name"`
	Descriptor string `yaml:"descriptor" msgpack:"descriptor"`
}

// Signature returns the name and descriptor of the method
func (m MethodRef) Signature() Signature {
	return Signature{Name: m.Name, Descriptor: m.Descriptor}
}

// IsConstructor returns true for instance initializers
func (m MethodRef) IsConstructor() bool {
	return m.Name == "<init>"
}

// IsStaticInitializer returns true for class initializers
func (m MethodRef) IsStaticInitializer() bool {
	return m.Name == "<clinit>"
}

// String returns the method in the form Class.name(descriptor)
func (m MethodRef) String() string {
	return m.Class + "." + m.Name + m.Descriptor
}

// Less orders method references by class, name and descriptor
func (m MethodRef) Less(o MethodRef) bool {
	if m.Class != o.Class {
		return m.Class < o.Class
	}
	if m.Name != o.Name {
		return m.Name < o.Name
	}
	return m.Descriptor < o.Descriptor
}

// ParseMethodRef parses a method reference written Class.name(descriptor), as returned by MethodRef.String
func ParseMethodRef(s string) (MethodRef, error) {
	paren := strings.IndexByte(s, '(')
	if paren < 0 {
		return MethodRef{}, fmt.Errorf("method reference %q has no descriptor", s)
	}
	dot := strings.LastIndexByte(s[:paren], '.')
	if dot <= 0 || dot == paren-1 {
		return MethodRef{}, fmt.Errorf("method reference %q should be of the form Class.name(descriptor)", s)
	}
	ref := MethodRef{Class: s[:dot], Name: s[dot+1 : paren], Descriptor: s[paren:]}
	if _, err := ParseMethodDescriptor(ref.Descriptor); err != nil {
		return MethodRef{}, err
	}
	return ref, nil
}

// FieldRef identifies a field: declaring class, name and type descriptor
type FieldRef struct {
	Class      string
	Name       string
	Descriptor string
}

func (f FieldRef) String() string {
	return f.Class + "." + f.Name
}
