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

	"gopkg.in/yaml.v3"
)

var opcodesByName = func() map[string]Opcode {
	m := make(map[string]Opcode, len(opcodeNames))
	for i, name := range opcodeNames {
		m[name] = Opcode(i)
	}
	return m
}()

// ParseOpcode returns the opcode with the given mnemonic
func ParseOpcode(mnemonic string) (Opcode, bool) {
	op, ok := opcodesByName[mnemonic]
	return op, ok
}

// Valid returns true if the opcode is defined by the JVM specification
func (op Opcode) Valid() bool {
	return int(op) < len(opcodeNames)
}

func (op Opcode) String() string {
	if op.Valid() {
		return opcodeNames[op]
	}
	return fmt.Sprintf("opcode(%d)", uint8(op))
}

// UnmarshalYAML reads an opcode from its mnemonic
func (op *Opcode) UnmarshalYAML(value *yaml.Node) error {
	var name string
	if err := value.Decode(&name); err != nil {
		return err
	}
	parsed, ok := ParseOpcode(name)
	if !ok {
		return fmt.Errorf("line %d: unknown opcode %q", value.Line, name)
	}
	*op = parsed
	return nil
}

// MarshalYAML writes the mnemonic of the opcode
func (op Opcode) MarshalYAML() (interface{}, error) {
	return op.String(), nil
}

// Canonical returns the general form of short-form local variable instructions along with the local index
// they encode: iload_2 is iload with index 2. The last result is false for other opcodes.
func (op Opcode) Canonical() (Opcode, int, bool) {
	switch {
	case op >= Iload0 && op <= Aload3:
		n := int(op - Iload0)
		return Iload + Opcode(n/4), n % 4, true
	case op >= Istore0 && op <= Astore3:
		n := int(op - Istore0)
		return Istore + Opcode(n/4), n % 4, true
	}
	return op, 0, false
}

// IsLoad returns true for the local variable load instructions (general form)
func (op Opcode) IsLoad() bool { return op >= Iload && op <= Aload }

// IsStore returns true for the local variable store instructions (general form)
func (op Opcode) IsStore() bool { return op >= Istore && op <= Astore }

// IsConditional returns true for the conditional branches
func (op Opcode) IsConditional() bool {
	return (op >= Ifeq && op <= IfAcmpne) || op == Ifnull || op == Ifnonnull
}

// IsGoto returns true for unconditional jumps
func (op Opcode) IsGoto() bool { return op == Goto || op == GotoW }

// IsSwitch returns true for the table and lookup switches
func (op Opcode) IsSwitch() bool { return op == Tableswitch || op == Lookupswitch }

// IsReturn returns true for the return instructions
func (op Opcode) IsReturn() bool { return op >= Ireturn && op <= Return }

// IsInvoke returns true for the method invocation instructions
func (op Opcode) IsInvoke() bool { return op >= Invokevirtual && op <= Invokedynamic }

// IsSubroutine returns true for the obsolete subroutine instructions, which are not supported
func (op Opcode) IsSubroutine() bool { return op == Jsr || op == JsrW || op == Ret }

// EndsBlock returns true if the instruction never falls through to the next instruction
func (op Opcode) EndsBlock() bool {
	return op.IsGoto() || op.IsSwitch() || op.IsReturn() || op == Athrow
}

// BranchTargets returns the offsets the instruction may jump to, not including fall-through
func (ins Instruction) BranchTargets() []int {
	switch {
	case ins.Op.IsConditional() || ins.Op.IsGoto():
		return []int{ins.Target}
	case ins.Op.IsSwitch():
		targets := make([]int, 0, len(ins.Targets)+1)
		targets = append(targets, ins.Targets...)
		return append(targets, ins.Default)
	}
	return nil
}
