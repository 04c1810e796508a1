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

import "errors"

// Well-known classes
const (
	JavaLangObject    = "java/lang/Object"
	JavaLangThrowable = "java/lang/Throwable"
	JavaLangString    = "java/lang/String"
)

var (
	// ErrClassNotFound is returned by a Database when the class is not known
	ErrClassNotFound = errors.New("class not found")

	// ErrMethodNotFound is returned by a Database when the class does not declare the method
	ErrMethodNotFound = errors.New("method not found")
)

// Hierarchy is the position of a class in the type hierarchy
type Hierarchy struct {
	Class      string
	Modifiers  ModBits
	Superclass string
	Interfaces []string
	// Subtypes are the direct subclasses and sub-interfaces, and the direct implementations of an interface
	Subtypes []string
}

// Supertypes returns the direct supertypes of the class: its superclass first, then its interfaces
func (h Hierarchy) Supertypes() []string {
	var res []string
	if h.Superclass != "" {
		res = append(res, h.Superclass)
	}
	return append(res, h.Interfaces...)
}

// A Database provides the method bodies and the type hierarchy of the program under analysis. Implementations must
// be safe for concurrent use; both methods are read-only.
type Database interface {
	// ResolveMethodBody returns the body of the method declared in class with the given signature. The error wraps
	// ErrClassNotFound or ErrMethodNotFound when the class or the method is not known.
	ResolveMethodBody(class string, sig Signature) (*MethodBody, error)

	// TypeHierarchy returns the direct supertypes and subtypes of class. The error wraps ErrClassNotFound when the
	// class is not known.
	TypeHierarchy(class string) (Hierarchy, error)
}
