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
	"errors"
	"fmt"
	"strconv"

	"github.com/awslabs/ar-jvm-tools/analysis/bytecode"
	"golang.org/x/exp/slices"
)

var (
	// ErrMalformedBytecode is returned when a method body cannot be lowered: invalid or unsupported opcodes, branch
	// targets outside of the code, inconsistent operand stack heights, or code falling off the end of the method.
	ErrMalformedBytecode = errors.New("malformed bytecode")

	// ErrNoBody is returned when building an abstract or native method
	ErrNoBody = errors.New("method has no code")
)

func malformed(ref bytecode.MethodRef, offset int, format string, args ...any) error {
	return fmt.Errorf("%w: %s at offset %d: %s", ErrMalformedBytecode, ref, offset, fmt.Sprintf(format, args...))
}

// TypeOracle answers the subtype queries needed to match exceptions with handlers
type TypeOracle interface {
	// Knows returns true if the class is part of the known type hierarchy
	Knows(class string) bool
	// IsSubtype returns true if sub is super or a transitive subtype of super
	IsSubtype(sub, super string) bool
}

type block struct {
	start, end int // instruction indices, end excluded
	entry      []slot
	seen       bool
	// catches is set for exception handler blocks; catchType is the type received by the handler
	catches   bool
	catchType string
	// first and last are the indices of the first and last statements lowered from the block
	first, last int
}

type slot struct {
	kind bytecode.Kind
	typ  string
	val  Value
}

type builder struct {
	body    *bytecode.MethodBody
	ref     bytecode.MethodRef
	types   TypeOracle
	m       *Method
	index   map[int]int // offset to instruction index
	blocks  []*block
	blockAt map[int]*block // leader instruction index to block
	locals  map[int]Value  // parameter slots
	scopes  []*scope
	scratch int
	// fixups are the branch statements and the offsets of their targets
	fixups map[*Statement][]int
}

// Build lowers a method body to its control flow graph. Exception handlers are matched against thrown types with
// types, which may be nil when no hierarchy is available.
func Build(body *bytecode.MethodBody, types TypeOracle) (*Method, error) {
	if !body.HasCode() {
		return nil, fmt.Errorf("%w: %s", ErrNoBody, body.Ref)
	}
	b := &builder{
		body:    body,
		ref:     body.Ref,
		types:   types,
		m:       &Method{Ref: body.Ref, Modifiers: body.Modifiers},
		index:   map[int]int{},
		blockAt: map[int]*block{},
		locals:  map[int]Value{},
		fixups:  map[*Statement][]int{},
	}
	if err := b.params(); err != nil {
		return nil, err
	}
	if len(body.Instructions) == 0 {
		b.m.Statements = append(b.m.Statements, &Statement{Method: b.m, Op: OpExit, Offset: -1, Synthetic: true})
		b.m.Exits = []int{0}
		b.m.succs = make([][]Edge, 1)
		b.m.finish()
		return b.m, nil
	}
	if err := b.validate(); err != nil {
		return nil, err
	}
	b.partition()
	if err := b.shapes(); err != nil {
		return nil, err
	}
	if err := b.checkRanges(); err != nil {
		return nil, err
	}
	if err := b.emit(); err != nil {
		return nil, err
	}
	b.connect()
	b.m.finish()
	return b.m, nil
}

func (b *builder) params() error {
	md, err := bytecode.ParseMethodDescriptor(b.ref.Descriptor)
	if err != nil {
		return malformed(b.ref, 0, "%v", err)
	}
	s := 0
	if !b.body.Modifiers.Static() {
		this := Value{Kind: Local, Name: "this", Type: bytecode.DescriptorOf(b.ref.Class)}
		b.locals[0] = this
		b.m.Params = append(b.m.Params, this)
		s = 1
	}
	for i, p := range md.Params {
		v := Value{Kind: Local, Name: "arg" + strconv.Itoa(i), Type: p}
		b.locals[s] = v
		b.m.Params = append(b.m.Params, v)
		s += bytecode.KindOf(p).Category()
	}
	return nil
}

func (b *builder) local(i int, typ string) Value {
	if v, ok := b.locals[i]; ok {
		if typ != "" {
			v.Type = typ
		}
		return v
	}
	return Value{Kind: Local, Name: "local" + strconv.Itoa(i), Type: typ}
}

func (b *builder) validate() error {
	code := b.body.Instructions
	for i, ins := range code {
		if i > 0 && ins.Offset <= code[i-1].Offset {
			return malformed(b.ref, ins.Offset, "offsets are not increasing")
		}
		if ins.Offset < 0 {
			return malformed(b.ref, ins.Offset, "negative offset")
		}
		b.index[ins.Offset] = i
	}
	for _, ins := range code {
		switch {
		case !ins.Op.Valid():
			return malformed(b.ref, ins.Offset, "invalid opcode %d", ins.Op)
		case ins.Op.IsSubroutine():
			return malformed(b.ref, ins.Offset, "subroutines are not supported (%s)", ins.Op)
		case ins.Op == bytecode.Wide:
			return malformed(b.ref, ins.Offset, "wide must be folded into the modified instruction")
		}
		for _, t := range ins.BranchTargets() {
			if _, ok := b.index[t]; !ok {
				return malformed(b.ref, ins.Offset, "branch target %d is not an instruction", t)
			}
		}
	}
	last := code[len(code)-1]
	if !last.Op.EndsBlock() {
		return malformed(b.ref, last.Offset, "execution falls off the end of the code")
	}
	for _, e := range b.body.ExceptionTable {
		_, startOk := b.index[e.Start]
		_, endOk := b.index[e.End]
		_, handlerOk := b.index[e.Handler]
		switch {
		case !startOk || e.End <= e.Start:
			return malformed(b.ref, e.Start, "invalid exception range [%d, %d)", e.Start, e.End)
		case !endOk && e.End <= last.Offset:
			return malformed(b.ref, e.End, "exception range end is not an instruction")
		case !handlerOk:
			return malformed(b.ref, e.Handler, "exception handler is not an instruction")
		}
	}
	for _, r := range b.body.Resources {
		_, startOk := b.index[r.Start]
		_, endOk := b.index[r.End]
		if !startOk || !endOk || r.End <= r.Start || r.Var < 0 {
			return malformed(b.ref, r.Start, "invalid resource scope [%d, %d) on local %d", r.Start, r.End, r.Var)
		}
	}
	return nil
}

// partition splits the instructions into basic blocks
func (b *builder) partition() {
	code := b.body.Instructions
	leaders := map[int]bool{0: true}
	for i, ins := range code {
		for _, t := range ins.BranchTargets() {
			leaders[b.index[t]] = true
		}
		if (ins.Op.IsConditional() || ins.Op.EndsBlock()) && i+1 < len(code) {
			leaders[i+1] = true
		}
	}
	for _, e := range b.body.ExceptionTable {
		leaders[b.index[e.Handler]] = true
	}
	for _, r := range b.body.Resources {
		leaders[b.index[r.End]] = true
	}
	starts := make([]int, 0, len(leaders))
	for l := range leaders {
		starts = append(starts, l)
	}
	slices.Sort(starts)
	for i, s := range starts {
		end := len(code)
		if i+1 < len(starts) {
			end = starts[i+1]
		}
		blk := &block{start: s, end: end}
		b.blocks = append(b.blocks, blk)
		b.blockAt[s] = blk
	}
	for _, e := range b.body.ExceptionTable {
		blk := b.blockAt[b.index[e.Handler]]
		t := e.CatchType
		if t == "" {
			t = bytecode.JavaLangThrowable
		}
		if blk.catches && blk.catchType != t {
			t = bytecode.JavaLangThrowable
		}
		blk.catches = true
		blk.catchType = t
	}
}

func (b *builder) blockOf(offset int) *block {
	return b.blockAt[b.index[offset]]
}

// successors returns the blocks control can reach from blk without exceptions
func (b *builder) successors(blk *block) []*block {
	ins := b.body.Instructions[blk.end-1]
	var res []*block
	for _, t := range ins.BranchTargets() {
		res = append(res, b.blockOf(t))
	}
	if !ins.Op.EndsBlock() {
		res = append(res, b.blockAt[blk.end])
	}
	return res
}

// shapes computes the height and kinds of the operand stack at the entry of every block
func (b *builder) shapes() error {
	var work []*block
	enter := func(blk *block, stack []slot) error {
		if !blk.seen {
			blk.seen = true
			blk.entry = make([]slot, len(stack))
			for i, s := range stack {
				blk.entry[i] = slot{kind: s.kind, typ: s.typ}
			}
			work = append(work, blk)
			return nil
		}
		if len(blk.entry) != len(stack) {
			return malformed(b.ref, b.body.Instructions[blk.start].Offset,
				"inconsistent stack heights %d and %d", len(blk.entry), len(stack))
		}
		changed := false
		for i, s := range stack {
			if blk.entry[i].kind != s.kind {
				return malformed(b.ref, b.body.Instructions[blk.start].Offset,
					"inconsistent stack kinds %s and %s", blk.entry[i].kind, s.kind)
			}
			if blk.entry[i].typ != s.typ && blk.entry[i].typ != "" {
				blk.entry[i].typ = ""
				changed = true
			}
		}
		if changed {
			work = append(work, blk)
		}
		return nil
	}
	if err := enter(b.blocks[0], nil); err != nil {
		return err
	}
	for _, blk := range b.blocks {
		if blk.catches {
			if blk == b.blocks[0] {
				return malformed(b.ref, 0, "exception handler at method entry")
			}
			exc := slot{kind: bytecode.KindReference, typ: bytecode.DescriptorOf(blk.catchType)}
			if err := enter(blk, []slot{exc}); err != nil {
				return err
			}
		}
	}
	for len(work) > 0 {
		blk := work[0]
		work = work[1:]
		out, err := b.exec(blk, false)
		if err != nil {
			return err
		}
		for _, succ := range b.successors(blk) {
			if err := enter(succ, out); err != nil {
				return err
			}
		}
	}
	return nil
}

// checkRanges rejects exception table entries that only protect unreachable instructions
func (b *builder) checkRanges() error {
	for _, e := range b.body.ExceptionTable {
		live := false
		for _, blk := range b.blocks {
			if !blk.seen {
				continue
			}
			for _, ins := range b.body.Instructions[blk.start:blk.end] {
				if e.Start <= ins.Offset && ins.Offset < e.End {
					live = true
					break
				}
			}
			if live {
				break
			}
		}
		if !live {
			return malformed(b.ref, e.Start, "exception range [%d, %d) is unreachable", e.Start, e.End)
		}
	}
	return nil
}

// emit lowers every block to statements
func (b *builder) emit() error {
	b.scratch = 0
	for _, blk := range b.blocks {
		blk.first = len(b.m.Statements)
		if !blk.seen {
			// unreachable instructions are kept as disconnected placeholders
			for _, ins := range b.body.Instructions[blk.start:blk.end] {
				b.m.Statements = append(b.m.Statements, &Statement{Method: b.m, Index: len(b.m.Statements),
					Op: OpNop, Offset: ins.Offset, Dead: true, Opcode: ins.Op})
			}
		} else if _, err := b.exec(blk, true); err != nil {
			return err
		}
		if len(b.m.Statements) == blk.first {
			b.m.Statements = append(b.m.Statements, &Statement{Method: b.m, Index: blk.first, Op: OpNop,
				Offset: b.body.Instructions[blk.start].Offset})
		}
		blk.last = len(b.m.Statements) - 1
	}
	for s, offsets := range b.fixups {
		for _, o := range offsets {
			s.Targets = append(s.Targets, b.blockOf(o).first)
		}
	}
	return nil
}
