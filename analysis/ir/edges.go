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
	"golang.org/x/exp/slices"
)

const javaLangAutoCloseable = "java/lang/AutoCloseable"

// scope is a resource scope and the statements synthesized to close its resource
type scope struct {
	bytecode.ResourceScope
	// closeNormal and gotoEnd close the resource on normal exits; catch, closeExc and rethrow close it when an
	// exception leaves the scope
	closeNormal, gotoEnd, catch, closeExc, rethrow int
}

func (sc *scope) within(o *scope) bool {
	return o.Start <= sc.Start && sc.End <= o.End
}

type handler struct {
	start, end int
	catchType  string
	target     int
}

type matchKind int

const (
	noMatch matchKind = iota
	mayMatch
	mustMatch
)

// connect creates the synthetic statements and all the edges of the graph
func (b *builder) connect() {
	m := b.m
	synth := map[int]*scope{}
	for i := range b.body.Resources {
		b.scopes = append(b.scopes, &scope{ResourceScope: b.body.Resources[i]})
	}
	slices.SortStableFunc(b.scopes, func(x, y *scope) bool { return x.End-x.Start < y.End-y.Start })
	for _, sc := range b.scopes {
		for _, i := range b.lowerScope(sc) {
			synth[i] = sc
		}
	}
	exit := &Statement{Method: m, Index: len(m.Statements), Op: OpExit, Offset: -1, Synthetic: true}
	m.Statements = append(m.Statements, exit)
	m.UnhandledExit = exit.Index
	m.succs = make([][]Edge, len(m.Statements))

	for _, blk := range b.blocks {
		if !blk.seen {
			continue
		}
		for i := blk.first; i < blk.last; i++ {
			b.edge(i, i+1, EdgeNormal, "")
		}
		last := m.Statements[blk.last]
		ins := b.body.Instructions[blk.end-1]
		switch {
		case ins.Op.IsConditional():
			b.edge(blk.last, last.Targets[0], EdgeTrue, "")
			b.edge(blk.last, b.blockAt[blk.end].first, EdgeFalse, "")
		case ins.Op.IsGoto() || ins.Op.IsSwitch():
			for _, t := range last.Targets {
				b.edge(blk.last, t, EdgeNormal, "")
			}
		case ins.Op.IsReturn() || ins.Op == bytecode.Athrow:
		default:
			b.edge(blk.last, b.blockAt[blk.end].first, EdgeNormal, "")
		}
	}

	inScope := func(i int, sc *scope) bool {
		if owner, ok := synth[i]; ok {
			return owner != sc && owner.within(sc)
		}
		off := m.Statements[i].Offset
		return off >= 0 && sc.Start <= off && off < sc.End
	}
	for _, sc := range b.scopes {
		end := b.blockOf(sc.End).first
		for from := range m.succs {
			if !inScope(from, sc) {
				continue
			}
			for k := range m.succs[from] {
				if e := &m.succs[from][k]; e.To == end && e.Kind != EdgeException {
					e.To = sc.closeNormal
				}
			}
			st := m.Statements[from]
			for k, t := range st.Targets {
				if t == end {
					st.Targets[k] = sc.closeNormal
				}
			}
		}
		b.edge(sc.closeNormal, sc.gotoEnd, EdgeNormal, "")
		b.edge(sc.gotoEnd, m.Statements[sc.gotoEnd].Targets[0], EdgeNormal, "")
		b.edge(sc.catch, sc.closeExc, EdgeNormal, "")
		b.edge(sc.closeExc, sc.rethrow, EdgeNormal, "")
	}

	for i, st := range m.Statements {
		if !st.MayThrow() {
			continue
		}
		raised := bytecode.JavaLangThrowable
		if st.Op == OpThrow {
			if c := bytecode.ClassOf(st.Src.Type); c != "" {
				raised = c
			}
		}
		caught := false
		for _, h := range b.handlersFor(st, synth[i]) {
			switch b.match(raised, h.catchType) {
			case mustMatch:
				caught = true
				b.edge(i, h.target, EdgeException, h.catchType)
			case mayMatch:
				b.edge(i, h.target, EdgeException, h.catchType)
			}
			if caught {
				break
			}
		}
		if !caught {
			b.edge(i, exit.Index, EdgeException, "")
		}
	}

	for i, st := range m.Statements {
		if st.Op == OpReturn {
			m.Exits = append(m.Exits, i)
		}
	}
	m.Exits = append(m.Exits, exit.Index)
}

func (b *builder) edge(from, to int, kind EdgeKind, catchType string) {
	for _, e := range b.m.succs[from] {
		if e.To == to && e.Kind == kind {
			return
		}
	}
	b.m.succs[from] = append(b.m.succs[from], Edge{From: from, To: to, Kind: kind, CatchType: catchType})
}

// lowerScope appends the statements closing the resource of sc and returns their indices
func (b *builder) lowerScope(sc *scope) []int {
	m := b.m
	cls, kind := sc.Type, InvokeVirtual
	if cls == "" {
		cls, kind = javaLangAutoCloseable, InvokeInterface
	}
	recv := b.local(sc.Var, bytecode.DescriptorOf(cls))
	target := bytecode.MethodRef{Class: cls, Name: "close", Descriptor: "()V"}
	var added []int
	add := func(st *Statement) int {
		st.Method = m
		st.Index = len(m.Statements)
		st.Offset = -1
		st.Synthetic = true
		m.Statements = append(m.Statements, st)
		added = append(added, st.Index)
		return st.Index
	}
	sc.closeNormal = add(&Statement{Op: OpInvoke, Call: &Call{Kind: kind, Target: target, Receiver: recv}})
	sc.gotoEnd = add(&Statement{Op: OpGoto, Targets: []int{b.blockOf(sc.End).first}})
	exc := Value{Kind: Temp, Name: "$" + strconv.Itoa(b.scratch), Type: bytecode.DescriptorOf(bytecode.JavaLangThrowable)}
	b.scratch++
	sc.catch = add(&Statement{Op: OpCatch, Lhs: exc})
	sc.closeExc = add(&Statement{Op: OpInvoke, Call: &Call{Kind: kind, Target: target, Receiver: recv}})
	sc.rethrow = add(&Statement{Op: OpThrow, Src: exc})
	return added
}

// handlersFor returns the handlers that may receive an exception raised by st, innermost first. Exception table
// entries keep their table order; the handler closing a resource is placed after the entries nested in its scope.
// Statements synthesized for a scope are only protected by the handlers enclosing that scope.
func (b *builder) handlersFor(st *Statement, owner *scope) []handler {
	offset := st.Offset
	if owner != nil {
		offset = owner.Start
	}
	var hs []handler
	for _, e := range b.body.ExceptionTable {
		if !e.Covers(offset) {
			continue
		}
		if owner != nil && owner.Start <= e.Start && e.End <= owner.End {
			continue
		}
		hs = append(hs, handler{start: e.Start, end: e.End, catchType: e.CatchType, target: b.blockOf(e.Handler).first})
	}
	for _, sc := range b.scopes {
		if offset < sc.Start || offset >= sc.End || (owner != nil && sc.within(owner)) {
			continue
		}
		pos := 0
		for k, h := range hs {
			if sc.Start <= h.start && h.end <= sc.End {
				pos = k + 1
			}
		}
		hs = slices.Insert(hs, pos, handler{start: sc.Start, end: sc.End, target: sc.catch})
	}
	return hs
}

// match tells whether a handler for catchType catches an exception of static type raised
func (b *builder) match(raised, catchType string) matchKind {
	if catchType == "" || catchType == bytecode.JavaLangThrowable || catchType == raised {
		return mustMatch
	}
	if b.types == nil || !b.types.Knows(raised) || !b.types.Knows(catchType) {
		return mayMatch
	}
	if b.types.IsSubtype(raised, catchType) {
		return mustMatch
	}
	if b.types.IsSubtype(catchType, raised) {
		return mayMatch
	}
	return noMatch
}
