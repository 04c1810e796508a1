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

// Instruction is a raw JVM instruction with symbolic operands. Only the operands relevant to the opcode are set.
type Instruction struct {
	// Offset is the bytecode offset (pc) of the instruction in its method
	Offset int `yaml:"pc" msgpack:"pc"`
	Op     Opcode `yaml:"op" msgpack:"op"`

	// Var is the local variable index of loads, stores, iinc and ret
	Var int `yaml:"var,omitempty" msgpack:"var,omitempty"`

	// Int is the immediate of bipush, sipush, iinc (increment) and newarray (array type code)
	Int int64 `yaml:"int,omitempty" msgpack:"int,omitempty"`

	// Const is the constant loaded by ldc, ldc_w and ldc2_w
	Const *Constant `yaml:"const,omitempty" msgpack:"const,omitempty"`

	// Target is the offset of a branch target
	Target int `yaml:"target,omitempty" msgpack:"target,omitempty"`

	// Targets, Keys and Default are the operands of switches. For tableswitch, Keys holds the low key only.
	Targets []int   `yaml:"targets,omitempty" msgpack:"targets,omitempty"`
	Keys    []int32 `yaml:"keys,omitempty" msgpack:"keys,omitempty"`
	Default int     `yaml:"default,omitempty" msgpack:"default,omitempty"`

	// Owner, Name and Desc identify the field or method of field accesses and invocations
	Owner string `yaml:"owner,omitempty" msgpack:"owner,omitempty"`
	Name  string `yaml:"name,omitempty" msgpack:"name,omitempty"`
	Desc  string `yaml:"desc,omitempty" msgpack:"desc,omitempty"`

	// Type is the class operand of new, anewarray, checkcast, instanceof and multianewarray
	Type string `yaml:"type,omitempty" msgpack:"type,omitempty"`

	// Dims is the number of dimensions of multianewarray
	Dims int `yaml:"dims,omitempty" msgpack:"dims,omitempty"`
}

// Normalize returns the instruction in general form: short forms like aload_1 become aload with Var 1
func (ins Instruction) Normalize() Instruction {
	if op, v, ok := ins.Op.Canonical(); ok {
		ins.Op = op
		ins.Var = v
	}
	return ins
}

// MethodRef returns the method invoked by an invoke instruction
func (ins Instruction) MethodRef() MethodRef {
	return MethodRef{Class: ins.Owner, Name: ins.Name, Descriptor: ins.Desc}
}

// FieldRef returns the field accessed by a field instruction
func (ins Instruction) FieldRef() FieldRef {
	return FieldRef{Class: ins.Owner, Name: ins.Name, Descriptor: ins.Desc}
}

func (ins Instruction) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%d: %s", ins.Offset, ins.Op)
	switch {
	case ins.Op.IsLoad() || ins.Op.IsStore() || ins.Op == Ret:
		fmt.Fprintf(&b, " %d", ins.Var)
	case ins.Op == Iinc:
		fmt.Fprintf(&b, " %d %d", ins.Var, ins.Int)
	case ins.Op == Bipush || ins.Op == Sipush || ins.Op == Newarray:
		fmt.Fprintf(&b, " %d", ins.Int)
	case ins.Const != nil:
		fmt.Fprintf(&b, " %s", ins.Const)
	case ins.Op.IsConditional() || ins.Op.IsGoto():
		fmt.Fprintf(&b, " %d", ins.Target)
	case ins.Op.IsSwitch():
		fmt.Fprintf(&b, " %v default %d", ins.Targets, ins.Default)
	case ins.Owner != "":
		fmt.Fprintf(&b, " %s.%s:%s", ins.Owner, ins.Name, ins.Desc)
	case ins.Type != "":
		fmt.Fprintf(&b, " %s", ins.Type)
	}
	return b.String()
}

// ConstKind is the kind of a constant pool entry loaded by ldc
type ConstKind string

// Constant kinds
const (
	ConstString ConstKind = "string"
	ConstInt    ConstKind = "int"
	ConstLong   ConstKind = "long"
	ConstFloat  ConstKind = "float"
	ConstDouble ConstKind = "double"
	ConstClass  ConstKind = "class"
)

// Constant is a constant loaded from the constant pool. An empty kind is a string.
type Constant struct {
	Kind  ConstKind `yaml:"kind,omitempty" msgpack:"kind,omitempty"`
	Value string    `yaml:"value" msgpack:"value"`
}

// Type returns the type descriptor of the constant
func (c Constant) Type() string {
	switch c.Kind {
	case ConstInt:
		return "I"
	case ConstLong:
		return "J"
	case ConstFloat:
		return "F"
	case ConstDouble:
		return "D"
	case ConstClass:
		return "Ljava/lang/Class;"
	}
	return "Ljava/lang/String;"
}

func (c Constant) String() string {
	if c.Kind == "" || c.Kind == ConstString {
		return fmt.Sprintf("%q", c.Value)
	}
	return c.Value
}

// ExceptionEntry is an entry of the exception table of a method: instructions with an offset in [Start, End) are
// protected by the handler at offset Handler for exceptions of type CatchType. An empty CatchType catches
// everything (finally blocks).
type ExceptionEntry struct {
	Start     int    `yaml:"start" msgpack:"start"`
	End       int    `yaml:"end" msgpack:"end"`
	Handler   int    `yaml:"handler" msgpack:"handler"`
	CatchType string `yaml:"type,omitempty" msgpack:"type,omitempty"`
}

// Covers returns true if the entry protects the offset
func (e ExceptionEntry) Covers(offset int) bool {
	return e.Start <= offset && offset < e.End
}

// ResourceScope describes a resource-scoped block (try-with-resources) that has not been desugared: the resource
// stored in local Var must be closed when control leaves the instructions in [Start, End), normally or by an
// exception. Normal exits continue at offset End.
type ResourceScope struct {
	Var   int    `yaml:"var" msgpack:"var"`
	Start int    `yaml:"start" msgpack:"start"`
	End   int    `yaml:"end" msgpack:"end"`
	Type  string `yaml:"type" msgpack:"type"`
}

// MethodBody is the raw body of a method, as provided by the class database
type MethodBody struct {
	Ref            MethodRef        `yaml:"-" msgpack:"-"`
	Modifiers      ModBits          `yaml:"-" msgpack:"-"`
	MaxLocals      int              `yaml:"max-locals" msgpack:"max-locals"`
	Instructions   []Instruction    `yaml:"code" msgpack:"code"`
	ExceptionTable []ExceptionEntry `yaml:"exception-table,omitempty" msgpack:"exception-table,omitempty"`
	Resources      []ResourceScope  `yaml:"resources,omitempty" msgpack:"resources,omitempty"`
}

// HasCode returns false for abstract and native methods
func (b *MethodBody) HasCode() bool {
	return !b.Modifiers.Abstract() && !b.Modifiers.Native()
}
