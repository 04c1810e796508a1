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
	"strconv"

	"github.com/awslabs/ar-jvm-tools/analysis/bytecode"
)

const (
	intT    = "I"
	longT   = "J"
	floatT  = "F"
	doubleT = "D"
)

// sim simulates the operand stack over one block. When emit is false, only the shape of the stack is computed and
// no statement is produced.
type sim struct {
	b     *builder
	blk   *block
	stack []slot
	emit  bool
	ins   *bytecode.Instruction
	// types are the types of locals stored in the block
	types map[int]string
}

func temp(depth int, typ string) Value {
	return Value{Kind: Temp, Name: "%" + strconv.Itoa(depth), Type: typ}
}

func constant(lit string, typ string) Value {
	return Value{Kind: Const, Name: lit, Type: typ}
}

func sameVar(a, b Value) bool {
	return a.IsVar() && a.Kind == b.Kind && a.Name == b.Name
}

// exec runs the instructions of blk from its entry stack and returns the stack at its exit. In emit mode, the exit
// stack holds the canonical temporaries %0 to %n-1.
func (b *builder) exec(blk *block, emit bool) ([]slot, error) {
	s := &sim{b: b, blk: blk, emit: emit, types: map[int]string{}}
	for i, e := range blk.entry {
		s.stack = append(s.stack, slot{kind: e.kind, typ: e.typ, val: temp(i, e.typ)})
	}
	code := b.body.Instructions
	if blk.catches {
		s.ins = &code[blk.start]
		s.add(&Statement{Op: OpCatch, Lhs: temp(0, s.stack[0].typ), CatchType: catchTypeOf(b.body, s.ins.Offset)})
	}
	for i := blk.start; i < blk.end; i++ {
		s.ins = &code[i]
		if err := s.step(i == blk.end-1); err != nil {
			return nil, err
		}
	}
	last := code[blk.end-1]
	if !last.Op.EndsBlock() && !last.Op.IsConditional() {
		s.normalize(nil)
	}
	return s.stack, nil
}

func catchTypeOf(body *bytecode.MethodBody, handler int) string {
	t, found := "", false
	for _, e := range body.ExceptionTable {
		if e.Handler != handler {
			continue
		}
		if found && t != e.CatchType {
			return ""
		}
		t, found = e.CatchType, true
	}
	return t
}

func (s *sim) add(st *Statement) {
	if !s.emit {
		return
	}
	st.Method = s.b.m
	st.Index = len(s.b.m.Statements)
	st.Offset = s.ins.Offset
	s.b.m.Statements = append(s.b.m.Statements, st)
}

func (s *sim) branch(st *Statement, targets []int) {
	s.add(st)
	if s.emit {
		s.b.fixups[st] = targets
	}
}

func (s *sim) push(kind bytecode.Kind, typ string, v Value) {
	s.stack = append(s.stack, slot{kind: kind, typ: typ, val: v})
}

func (s *sim) pop() (slot, error) {
	if len(s.stack) == 0 {
		return slot{}, malformed(s.b.ref, s.ins.Offset, "operand stack underflow")
	}
	top := s.stack[len(s.stack)-1]
	s.stack = s.stack[:len(s.stack)-1]
	return top, nil
}

func (s *sim) popN(n int) ([]slot, error) {
	res := make([]slot, n)
	for i := n - 1; i >= 0; i-- {
		v, err := s.pop()
		if err != nil {
			return nil, err
		}
		res[i] = v
	}
	return res, nil
}

// popWords pops the slots making up the given number of words; a long or a double is two words
func (s *sim) popWords(words int) ([]slot, error) {
	var res []slot
	for words > 0 {
		v, err := s.pop()
		if err != nil {
			return nil, err
		}
		words -= v.kind.Category()
		res = append([]slot{v}, res...)
	}
	if words < 0 {
		return nil, malformed(s.b.ref, s.ins.Offset, "%s splits a category 2 value", s.ins.Op)
	}
	return res, nil
}

func (s *sim) newScratch(typ string) Value {
	v := Value{Kind: Temp, Name: "$" + strconv.Itoa(s.b.scratch), Type: typ}
	s.b.scratch++
	return v
}

// protect copies the slots holding v to fresh temporaries, before v is overwritten
func (s *sim) protect(v Value) {
	var saved Value
	for i := range s.stack {
		if !sameVar(s.stack[i].val, v) {
			continue
		}
		if saved.IsNone() {
			saved = s.newScratch(s.stack[i].typ)
			s.add(&Statement{Op: OpAssign, Lhs: saved, Rhs: Expr{Kind: ExprCopy, Operands: []Value{v}, Type: v.Type}})
		}
		s.stack[i].val = saved
	}
}

// result returns the temporary receiving a value pushed on the current top of the stack
func (s *sim) result(typ string) Value {
	t := temp(len(s.stack), typ)
	s.protect(t)
	return t
}

func (s *sim) assign(kind bytecode.Kind, e Expr) {
	t := s.result(e.Type)
	s.add(&Statement{Op: OpAssign, Lhs: t, Rhs: e})
	s.push(kind, e.Type, t)
}

// normalize assigns every slot to its canonical temporary. The values in keep are read after the assignments and
// are returned, renamed when their temporary is overwritten.
func (s *sim) normalize(keep []Value) []Value {
	dests := map[string]bool{}
	for i, sl := range s.stack {
		if t := temp(i, sl.typ); !sameVar(sl.val, t) {
			dests[t.Name] = true
		}
	}
	saved := map[string]Value{}
	save := func(v Value) Value {
		if v.Kind != Temp || !dests[v.Name] {
			return v
		}
		if c, ok := saved[v.Name]; ok {
			return c
		}
		c := s.newScratch(v.Type)
		s.add(&Statement{Op: OpAssign, Lhs: c, Rhs: Expr{Kind: ExprCopy, Operands: []Value{v}, Type: v.Type}})
		saved[v.Name] = c
		return c
	}
	for i, sl := range s.stack {
		if t := temp(i, sl.typ); !sameVar(sl.val, t) {
			s.stack[i].val = save(sl.val)
		}
	}
	for i := range keep {
		keep[i] = save(keep[i])
	}
	for i, sl := range s.stack {
		if t := temp(i, sl.typ); !sameVar(sl.val, t) {
			s.add(&Statement{Op: OpAssign, Lhs: t, Rhs: Expr{Kind: ExprCopy, Operands: []Value{sl.val}, Type: sl.typ}})
			s.stack[i].val = t
		}
	}
	return keep
}

var loadKinds = map[bytecode.Opcode]bytecode.Kind{
	bytecode.Iload: bytecode.KindInt, bytecode.Lload: bytecode.KindLong, bytecode.Fload: bytecode.KindFloat,
	bytecode.Dload: bytecode.KindDouble, bytecode.Aload: bytecode.KindReference,
}

var kindTypes = map[bytecode.Kind]string{
	bytecode.KindInt: intT, bytecode.KindLong: longT, bytecode.KindFloat: floatT, bytecode.KindDouble: doubleT,
}

var arrayElems = [...]string{intT, longT, floatT, doubleT, "", "B", "C", "S"}

var binaryOps = [...]string{"+", "-", "*", "/", "%"}

var conversions = map[bytecode.Opcode]string{
	bytecode.I2l: longT, bytecode.I2f: floatT, bytecode.I2d: doubleT,
	bytecode.L2i: intT, bytecode.L2f: floatT, bytecode.L2d: doubleT,
	bytecode.F2i: intT, bytecode.F2l: longT, bytecode.F2d: doubleT,
	bytecode.D2i: intT, bytecode.D2l: longT, bytecode.D2f: floatT,
	bytecode.I2b: "B", bytecode.I2c: "C", bytecode.I2s: "S",
}

var conditions = [...]string{"==", "!=", "<", ">=", ">", "<="}

var newarrayTypes = map[int64]string{4: "Z", 5: "C", 6: "F", 7: "D", 8: "B", 9: "S", 10: "I", 11: "J"}

// step simulates one instruction. Branches and the last instruction of a block normalize the stack first.
func (s *sim) step(last bool) error {
	ins := s.ins
	op := ins.Op
	switch {
	case op == bytecode.Nop:
	case op == bytecode.AconstNull:
		s.push(bytecode.KindReference, "", constant("null", ""))
	case op >= bytecode.IconstM1 && op <= bytecode.Iconst5:
		s.push(bytecode.KindInt, intT, constant(strconv.Itoa(int(op)-int(bytecode.Iconst0)), intT))
	case op == bytecode.Lconst0 || op == bytecode.Lconst1:
		s.push(bytecode.KindLong, longT, constant(strconv.Itoa(int(op-bytecode.Lconst0))+"L", longT))
	case op >= bytecode.Fconst0 && op <= bytecode.Fconst2:
		s.push(bytecode.KindFloat, floatT, constant(strconv.Itoa(int(op-bytecode.Fconst0))+".0f", floatT))
	case op == bytecode.Dconst0 || op == bytecode.Dconst1:
		s.push(bytecode.KindDouble, doubleT, constant(strconv.Itoa(int(op-bytecode.Dconst0))+".0", doubleT))
	case op == bytecode.Bipush || op == bytecode.Sipush:
		s.push(bytecode.KindInt, intT, constant(strconv.FormatInt(ins.Int, 10), intT))
	case op == bytecode.Ldc || op == bytecode.LdcW || op == bytecode.Ldc2W:
		if ins.Const == nil {
			return malformed(s.b.ref, ins.Offset, "%s without a constant", op)
		}
		t := ins.Const.Type()
		s.push(bytecode.KindOf(t), t, constant(ins.Const.String(), t))
	case op.IsLoad():
		kind := loadKinds[op]
		typ := s.types[ins.Var]
		v := s.b.local(ins.Var, typ)
		if typ == "" {
			typ = v.Type
		}
		if typ == "" {
			typ = kindTypes[kind]
		}
		s.push(kind, typ, v)
	case op.IsStore():
		v, err := s.pop()
		if err != nil {
			return err
		}
		l := s.b.local(ins.Var, v.typ)
		s.protect(l)
		s.types[ins.Var] = v.typ
		s.add(&Statement{Op: OpAssign, Lhs: l, Rhs: Expr{Kind: ExprCopy, Operands: []Value{v.val}, Type: v.typ}})
	case op >= bytecode.Iaload && op <= bytecode.Saload:
		vals, err := s.popN(2)
		if err != nil {
			return err
		}
		arr, idx := vals[0], vals[1]
		typ := arrayElems[op-bytecode.Iaload]
		if op == bytecode.Aaload && len(arr.typ) > 1 && arr.typ[0] == '[' {
			typ = arr.typ[1:]
		}
		kind := bytecode.KindOf(typ)
		t := s.result(typ)
		s.add(&Statement{Op: OpArrayRead, Lhs: t, Base: arr.val, Elem: idx.val})
		s.push(kind, typ, t)
	case op >= bytecode.Iastore && op <= bytecode.Sastore:
		vals, err := s.popN(3)
		if err != nil {
			return err
		}
		s.add(&Statement{Op: OpArrayWrite, Base: vals[0].val, Elem: vals[1].val, Src: vals[2].val})
	case op == bytecode.Pop:
		if _, err := s.popWords(1); err != nil {
			return err
		}
	case op == bytecode.Pop2:
		if _, err := s.popWords(2); err != nil {
			return err
		}
	case op >= bytecode.Dup && op <= bytecode.Dup2X2:
		words := [...][2]int{{1, 0}, {1, 1}, {1, 2}, {2, 0}, {2, 1}, {2, 2}}[op-bytecode.Dup]
		top, err := s.popWords(words[0])
		if err != nil {
			return err
		}
		below, err := s.popWords(words[1])
		if err != nil {
			return err
		}
		s.stack = append(s.stack, top...)
		s.stack = append(s.stack, below...)
		s.stack = append(s.stack, top...)
	case op == bytecode.Swap:
		vals, err := s.popN(2)
		if err != nil {
			return err
		}
		s.stack = append(s.stack, vals[1], vals[0])
	case op >= bytecode.Iadd && op <= bytecode.Drem:
		vals, err := s.popN(2)
		if err != nil {
			return err
		}
		kind := vals[0].kind
		s.assign(kind, Expr{Kind: ExprBinary, Operator: binaryOps[(op-bytecode.Iadd)/4],
			Operands: []Value{vals[0].val, vals[1].val}, Type: kindTypes[kind]})
	case op >= bytecode.Ineg && op <= bytecode.Dneg:
		v, err := s.pop()
		if err != nil {
			return err
		}
		s.assign(v.kind, Expr{Kind: ExprUnary, Operator: "-", Operands: []Value{v.val}, Type: kindTypes[v.kind]})
	case op >= bytecode.Ishl && op <= bytecode.Lxor:
		vals, err := s.popN(2)
		if err != nil {
			return err
		}
		kind := vals[0].kind
		operator := [...]string{"<<", ">>", ">>>", "&", "|", "^"}[(op-bytecode.Ishl)/2]
		s.assign(kind, Expr{Kind: ExprBinary, Operator: operator,
			Operands: []Value{vals[0].val, vals[1].val}, Type: kindTypes[kind]})
	case op == bytecode.Iinc:
		l := s.b.local(ins.Var, intT)
		s.protect(l)
		s.add(&Statement{Op: OpAssign, Lhs: l, Rhs: Expr{Kind: ExprBinary, Operator: "+",
			Operands: []Value{l, constant(strconv.FormatInt(ins.Int, 10), intT)}, Type: intT}})
	case conversions[op] != "":
		v, err := s.pop()
		if err != nil {
			return err
		}
		typ := conversions[op]
		s.assign(bytecode.KindOf(typ), Expr{Kind: ExprConvert, Operator: op.String(), Operands: []Value{v.val},
			Type: typ})
	case op >= bytecode.Lcmp && op <= bytecode.Dcmpg:
		vals, err := s.popN(2)
		if err != nil {
			return err
		}
		s.assign(bytecode.KindInt, Expr{Kind: ExprCompare, Operator: op.String(),
			Operands: []Value{vals[0].val, vals[1].val}, Type: intT})
	case op.IsConditional():
		return s.conditional()
	case op.IsGoto():
		s.normalize(nil)
		s.branch(&Statement{Op: OpGoto}, []int{ins.Target})
	case op.IsSwitch():
		key, err := s.pop()
		if err != nil {
			return err
		}
		k := s.normalize([]Value{key.val})
		s.branch(&Statement{Op: OpSwitch, Src: k[0]}, ins.BranchTargets())
	case op.IsReturn():
		st := &Statement{Op: OpReturn}
		if op != bytecode.Return {
			v, err := s.pop()
			if err != nil {
				return err
			}
			st.Src = v.val
		}
		s.add(st)
	case op == bytecode.Getstatic:
		t := s.result(ins.Desc)
		s.add(&Statement{Op: OpStaticRead, Lhs: t, Field: ins.FieldRef()})
		s.push(bytecode.KindOf(ins.Desc), ins.Desc, t)
	case op == bytecode.Putstatic:
		v, err := s.pop()
		if err != nil {
			return err
		}
		s.add(&Statement{Op: OpStaticWrite, Field: ins.FieldRef(), Src: v.val})
	case op == bytecode.Getfield:
		base, err := s.pop()
		if err != nil {
			return err
		}
		t := s.result(ins.Desc)
		s.add(&Statement{Op: OpFieldRead, Lhs: t, Base: base.val, Field: ins.FieldRef()})
		s.push(bytecode.KindOf(ins.Desc), ins.Desc, t)
	case op == bytecode.Putfield:
		vals, err := s.popN(2)
		if err != nil {
			return err
		}
		s.add(&Statement{Op: OpFieldWrite, Base: vals[0].val, Field: ins.FieldRef(), Src: vals[1].val})
	case op.IsInvoke():
		return s.invoke()
	case op == bytecode.New:
		s.assign(bytecode.KindReference, Expr{Kind: ExprNew, Type: bytecode.DescriptorOf(ins.Type)})
	case op == bytecode.Newarray || op == bytecode.Anewarray || op == bytecode.Multianewarray:
		dims := 1
		typ := "[" + newarrayTypes[ins.Int]
		switch op {
		case bytecode.Anewarray:
			typ = "[" + bytecode.DescriptorOf(ins.Type)
		case bytecode.Multianewarray:
			dims = ins.Dims
			typ = ins.Type
		}
		if dims < 1 || typ == "[" {
			return malformed(s.b.ref, ins.Offset, "invalid array allocation")
		}
		vals, err := s.popN(dims)
		if err != nil {
			return err
		}
		counts := make([]Value, dims)
		for i, v := range vals {
			counts[i] = v.val
		}
		s.assign(bytecode.KindReference, Expr{Kind: ExprNewArray, Operands: counts, Type: typ})
	case op == bytecode.Arraylength:
		v, err := s.pop()
		if err != nil {
			return err
		}
		s.assign(bytecode.KindInt, Expr{Kind: ExprLength, Operands: []Value{v.val}, Type: intT})
	case op == bytecode.Athrow:
		v, err := s.pop()
		if err != nil {
			return err
		}
		s.add(&Statement{Op: OpThrow, Src: v.val})
	case op == bytecode.Checkcast:
		v, err := s.pop()
		if err != nil {
			return err
		}
		s.assign(bytecode.KindReference, Expr{Kind: ExprCast, Operands: []Value{v.val},
			Type: bytecode.DescriptorOf(ins.Type)})
	case op == bytecode.Instanceof:
		v, err := s.pop()
		if err != nil {
			return err
		}
		s.assign(bytecode.KindInt, Expr{Kind: ExprInstanceOf, Operator: ins.Type, Operands: []Value{v.val},
			Type: intT})
	case op == bytecode.Monitorenter || op == bytecode.Monitorexit:
		v, err := s.pop()
		if err != nil {
			return err
		}
		s.add(&Statement{Op: OpMonitor, Src: v.val})
	default:
		return malformed(s.b.ref, ins.Offset, "unsupported instruction %s", op)
	}
	return nil
}

func (s *sim) conditional() error {
	ins := s.ins
	op := ins.Op
	var cond Condition
	switch {
	case op >= bytecode.Ifeq && op <= bytecode.Ifle:
		v, err := s.pop()
		if err != nil {
			return err
		}
		cond = Condition{Operator: conditions[op-bytecode.Ifeq], Left: v.val, Right: constant("0", intT)}
	case op >= bytecode.IfIcmpeq && op <= bytecode.IfAcmpne:
		vals, err := s.popN(2)
		if err != nil {
			return err
		}
		i := op - bytecode.IfIcmpeq
		if op >= bytecode.IfAcmpeq {
			i = op - bytecode.IfAcmpeq
		}
		cond = Condition{Operator: conditions[i], Left: vals[0].val, Right: vals[1].val}
	default:
		v, err := s.pop()
		if err != nil {
			return err
		}
		operator := "=="
		if op == bytecode.Ifnonnull {
			operator = "!="
		}
		cond = Condition{Operator: operator, Left: v.val, Right: constant("null", "")}
	}
	k := s.normalize([]Value{cond.Left, cond.Right})
	cond.Left, cond.Right = k[0], k[1]
	s.branch(&Statement{Op: OpIf, Cond: cond}, []int{ins.Target})
	return nil
}

func (s *sim) invoke() error {
	ins := s.ins
	md, err := bytecode.ParseMethodDescriptor(ins.Desc)
	if err != nil {
		return malformed(s.b.ref, ins.Offset, "%v", err)
	}
	call := &Call{Kind: InvokeKind(ins.Op - bytecode.Invokevirtual), Target: ins.MethodRef()}
	args, err := s.popN(len(md.Params))
	if err != nil {
		return err
	}
	for _, a := range args {
		call.Args = append(call.Args, a.val)
	}
	if call.Kind != InvokeStatic && call.Kind != InvokeDynamic {
		recv, err := s.pop()
		if err != nil {
			return err
		}
		call.Receiver = recv.val
	}
	st := &Statement{Op: OpInvoke, Call: call}
	if md.Return != "V" {
		st.Lhs = s.result(md.Return)
	}
	s.add(st)
	if md.Return != "V" {
		s.push(bytecode.KindOf(md.Return), md.Return, st.Lhs)
	}
	return nil
}
