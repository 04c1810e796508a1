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

package ir

import (
	"fmt"
	"strings"

	"github.com/awslabs/ar-jvm-tools/analysis/bytecode"
)

// ValueKind distinguishes the operands of statements
type ValueKind uint8

const (
	// NoValue is the zero Value, for statements without a left-hand side or without a returned value
	NoValue ValueKind = iota
	// Local is a local variable of the method, including parameters and this
	Local
	// Temp is a temporary holding an operand stack slot
	Temp
	// Const is a constant
	Const
)

// Value is an operand of a statement: a local variable, a stack temporary or a constant.
// Locals and temporaries are identified by their name within a method.
type Value struct {
	Kind ValueKind
	// Name is the name of the local or temporary, or the literal of a constant
	Name string
	// Type is the type descriptor of the value, when known
	Type string
}

// IsNone returns true for the zero Value
func (v Value) IsNone() bool { return v.Kind == NoValue }

// IsVar returns true for locals and temporaries, the values that can hold taint
func (v Value) IsVar() bool { return v.Kind == Local || v.Kind == Temp }

// IsReference returns true if the value is known to hold a reference
func (v Value) IsReference() bool {
	return v.Type != "" && bytecode.KindOf(v.Type) == bytecode.KindReference
}

func (v Value) String() string {
	if v.Kind == NoValue {
		return "_"
	}
	return v.Name
}

// ExprKind is the kind of the right-hand side of an assignment
type ExprKind uint8

const (
	// ExprCopy is a copy of its single operand
	ExprCopy ExprKind = iota
	// ExprBinary is an arithmetic or bitwise operation
	ExprBinary
	// ExprUnary is a negation
	ExprUnary
	// ExprConvert is a primitive conversion
	ExprConvert
	// ExprCompare is a long, float or double comparison
	ExprCompare
	// ExprCast is a reference cast; the value keeps its identity
	ExprCast
	// ExprNew is an object allocation
	ExprNew
	// ExprNewArray is an array allocation; the operands are the dimensions
	ExprNewArray
	// ExprLength is an array length
	ExprLength
	// ExprInstanceOf is a type test
	ExprInstanceOf
)

// Expr is the right-hand side of an assignment
type Expr struct {
	Kind     ExprKind
	Operator string
	Operands []Value
	// Type is the type of the result
	Type string
}

// PreservesIdentity returns true if the expression evaluates to its operand itself: copies and casts.
// The fields of the operand are then the fields of the result.
func (e Expr) PreservesIdentity() bool {
	return e.Kind == ExprCopy || e.Kind == ExprCast
}

func (e Expr) String() string {
	ops := make([]string, len(e.Operands))
	for i, o := range e.Operands {
		ops[i] = o.String()
	}
	switch e.Kind {
	case ExprCopy:
		return ops[0]
	case ExprBinary:
		return fmt.Sprintf("%s %s %s", ops[0], e.Operator, ops[1])
	case ExprUnary:
		return fmt.Sprintf("-%s", ops[0])
	case ExprConvert:
		return fmt.Sprintf("%s(%s)", e.Operator, ops[0])
	case ExprCompare:
		return fmt.Sprintf("%s(%s, %s)", e.Operator, ops[0], ops[1])
	case ExprCast:
		return fmt.Sprintf("(%s) %s", bytecode.ClassOf(e.Type), ops[0])
	case ExprNew:
		return fmt.Sprintf("new %s", bytecode.ClassOf(e.Type))
	case ExprNewArray:
		return fmt.Sprintf("newarray %s[%s]", e.Type, strings.Join(ops, "]["))
	case ExprLength:
		return fmt.Sprintf("length(%s)", ops[0])
	case ExprInstanceOf:
		return fmt.Sprintf("%s instanceof %s", ops[0], e.Operator)
	}
	return "?"
}
