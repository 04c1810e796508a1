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

// Op is the kind of a statement
type Op uint8

// Statement kinds
const (
	OpNop Op = iota
	// OpAssign is Lhs = Rhs
	OpAssign
	// OpFieldRead is Lhs = Base.Field
	OpFieldRead
	// OpFieldWrite is Base.Field = Src
	OpFieldWrite
	// OpStaticRead is Lhs = Field.Class.Field
	OpStaticRead
	// OpStaticWrite is Field.Class.Field = Src
	OpStaticWrite
	// OpArrayRead is Lhs = Base[Elem]
	OpArrayRead
	// OpArrayWrite is Base[Elem] = Src
	OpArrayWrite
	// OpInvoke is [Lhs =] Call
	OpInvoke
	// OpIf branches on Cond
	OpIf
	// OpSwitch branches on Src
	OpSwitch
	OpGoto
	// OpReturn returns Src, if any
	OpReturn
	// OpThrow throws Src
	OpThrow
	// OpCatch receives the exception in Lhs at the start of a handler
	OpCatch
	// OpMonitor enters or exits the monitor of Src
	OpMonitor
	// OpExit is the unique exit of exceptions that are not caught in the method
	OpExit
)

var opNames = [...]string{"nop", "assign", "field-read", "field-write", "static-read", "static-write",
	"array-read", "array-write", "invoke", "if", "switch", "goto", "return", "throw", "catch", "monitor", "exit"}

func (op Op) String() string {
	if int(op) < len(opNames) {
		return opNames[op]
	}
	return fmt.Sprintf("op(%d)", op)
}

// InvokeKind is the dispatch kind of a call
type InvokeKind uint8

// Invocation kinds, one per invoke opcode
const (
	InvokeVirtual InvokeKind = iota
	InvokeSpecial
	InvokeStatic
	InvokeInterface
	InvokeDynamic
)

var invokeNames = [...]string{"invokevirtual", "invokespecial", "invokestatic", "invokeinterface", "invokedynamic"}

func (k InvokeKind) String() string { return invokeNames[k] }

// IsDispatched returns true for the calls whose target depends on the runtime type of the receiver
func (k InvokeKind) IsDispatched() bool { return k == InvokeVirtual || k == InvokeInterface }

// Call is the call site of an invoke statement
type Call struct {
	Kind InvokeKind
	// Target is the method named by the instruction
	Target bytecode.MethodRef
	// Receiver is the receiver of instance calls, NoValue for static and dynamic calls
	Receiver Value
	Args     []Value
}

// HasReceiver returns true for instance calls
func (c *Call) HasReceiver() bool { return !c.Receiver.IsNone() }

// Operand returns the value at position i of the call: 0 is the receiver of instance calls, followed by the
// arguments. For static calls, position 0 is the first argument.
func (c *Call) Operand(i int) (Value, bool) {
	if c.HasReceiver() {
		if i == 0 {
			return c.Receiver, true
		}
		i--
	}
	if i < 0 || i >= len(c.Args) {
		return Value{}, false
	}
	return c.Args[i], true
}

// Operands returns the receiver, if any, followed by the arguments
func (c *Call) Operands() []Value {
	if !c.HasReceiver() {
		return c.Args
	}
	return append([]Value{c.Receiver}, c.Args...)
}

func (c *Call) String() string {
	args := make([]string, len(c.Args))
	for i, a := range c.Args {
		args[i] = a.String()
	}
	recv := c.Target.Class
	if c.HasReceiver() {
		recv = c.Receiver.String()
	}
	return fmt.Sprintf("%s %s.%s(%s) [%s]", c.Kind, recv, c.Target.Name, strings.Join(args, ", "), c.Target)
}

// Condition is the condition of an if statement
type Condition struct {
	Operator    string
	Left, Right Value
}

// Negate returns the operator of the negated condition
func (c Condition) Negate() string {
	switch c.Operator {
	case "==":
		return "!="
	case "!=":
		return "=="
	case "<":
		return ">="
	case ">=":
		return "<"
	case ">":
		return "<="
	case "<=":
		return ">"
	}
	return c.Operator
}

func (c Condition) String() string {
	return fmt.Sprintf("%s %s %s", c.Left, c.Operator, c.Right)
}

// Statement is a three-address statement of the control flow graph of a method. Only the fields relevant to the
// Op are set.
type Statement struct {
	Method *Method
	// Index is the position of the statement in the method's statements
	Index int
	// Offset is the bytecode offset of the instruction the statement was lowered from, -1 for synthetic statements
	Offset int
	Op     Op

	Lhs   Value
	Rhs   Expr
	Base  Value
	Elem  Value
	Src   Value
	Field bytecode.FieldRef
	Call  *Call
	Cond  Condition
	// CatchType is the caught type of a catch statement, empty for catch-all handlers
	CatchType string
	// Targets are the statement indices of the branch targets of if, goto and switch statements
	Targets []int
	// Synthetic is set for statements that do not correspond to a bytecode instruction
	Synthetic bool
	// Dead marks the nop placeholder of an unreachable instruction, whose opcode is Opcode
	Dead   bool
	Opcode bytecode.Opcode
}

// Uses returns the variables read by the statement
func (s *Statement) Uses() []Value {
	var vals []Value
	switch s.Op {
	case OpAssign:
		vals = append(vals, s.Rhs.Operands...)
	case OpFieldRead:
		vals = append(vals, s.Base)
	case OpFieldWrite:
		vals = append(vals, s.Base, s.Src)
	case OpArrayRead:
		vals = append(vals, s.Base, s.Elem)
	case OpArrayWrite:
		vals = append(vals, s.Base, s.Elem, s.Src)
	case OpStaticWrite, OpSwitch, OpReturn, OpThrow, OpMonitor:
		vals = append(vals, s.Src)
	case OpInvoke:
		vals = append(vals, s.Call.Operands()...)
	case OpIf:
		vals = append(vals, s.Cond.Left, s.Cond.Right)
	}
	res := vals[:0]
	for _, v := range vals {
		if v.IsVar() {
			res = append(res, v)
		}
	}
	return res
}

// MayThrow returns true if the statement may raise an exception
func (s *Statement) MayThrow() bool {
	switch s.Op {
	case OpFieldRead, OpFieldWrite, OpStaticRead, OpStaticWrite, OpArrayRead, OpArrayWrite, OpInvoke, OpThrow,
		OpMonitor:
		return true
	case OpAssign:
		switch s.Rhs.Kind {
		case ExprBinary:
			return s.Rhs.Operator == "/" || s.Rhs.Operator == "%"
		case ExprCast, ExprNew, ExprNewArray, ExprLength:
			return true
		}
	}
	return false
}

// IsExit returns true for statements that leave the method
func (s *Statement) IsExit() bool {
	return s.Op == OpReturn || s.Op == OpExit
}

func (s *Statement) String() string {
	lhs := ""
	if !s.Lhs.IsNone() {
		lhs = s.Lhs.String() + " = "
	}
	switch s.Op {
	case OpNop:
		if s.Dead {
			return "unreachable " + s.Opcode.String()
		}
		return "nop"
	case OpAssign:
		return lhs + s.Rhs.String()
	case OpFieldRead:
		return fmt.Sprintf("%s%s.%s", lhs, s.Base, s.Field.Name)
	case OpFieldWrite:
		return fmt.Sprintf("%s.%s = %s", s.Base, s.Field.Name, s.Src)
	case OpStaticRead:
		return fmt.Sprintf("%s%s.%s", lhs, s.Field.Class, s.Field.Name)
	case OpStaticWrite:
		return fmt.Sprintf("%s.%s = %s", s.Field.Class, s.Field.Name, s.Src)
	case OpArrayRead:
		return fmt.Sprintf("%s%s[%s]", lhs, s.Base, s.Elem)
	case OpArrayWrite:
		return fmt.Sprintf("%s[%s] = %s", s.Base, s.Elem, s.Src)
	case OpInvoke:
		return lhs + s.Call.String()
	case OpIf:
		return fmt.Sprintf("if %s goto %s", s.Cond, targets(s.Targets))
	case OpSwitch:
		return fmt.Sprintf("switch %s goto %s", s.Src, targets(s.Targets))
	case OpGoto:
		return "goto " + targets(s.Targets)
	case OpReturn:
		if s.Src.IsNone() {
			return "return"
		}
		return "return " + s.Src.String()
	case OpThrow:
		return "throw " + s.Src.String()
	case OpCatch:
		t := s.CatchType
		if t == "" {
			t = "any"
		}
		return fmt.Sprintf("%scatch %s", lhs, t)
	case OpMonitor:
		return "monitor " + s.Src.String()
	case OpExit:
		return "exit"
	}
	return s.Op.String()
}

func targets(t []int) string {
	s := make([]string, len(t))
	for i, x := range t {
		s[i] = fmt.Sprint(x)
	}
	return strings.Join(s, ", ")
}
