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

package dataflow

import (
	"strings"
)

// ArrayElement is the pseudo-field of the elements of an array
const ArrayElement = "[]"

// truncationMarker is appended to the string of truncated paths
const truncationMarker = ".*"

// An AccessPath is a variable or a static field, followed by a chain of at most K field selectors.
// Paths that would be deeper than K keep their first K fields and are marked truncated: they stand for every path
// they are a prefix of.
//
// AccessPath is comparable; two paths are equal iff their bases, fields and truncation markers are equal.
type AccessPath struct {
	base string
	// fields holds each field prefixed by a '.'
	fields    string
	depth     int
	static    bool
	truncated bool
}

// NewAccessPath returns the path of the local variable or temporary named base
func NewAccessPath(base string) AccessPath {
	return AccessPath{base: base}
}

// NewStaticPath returns the path of the static field class.field
func NewStaticPath(class string, field string) AccessPath {
	return AccessPath{base: class, fields: "." + field, depth: 1, static: true}
}

// Base returns the variable at the root of the path, or the class of a static field
func (p AccessPath) Base() string { return p.base }

// IsStatic returns true if the path starts with a static field
func (p AccessPath) IsStatic() bool { return p.static }

// IsEmpty returns true for the zero AccessPath
func (p AccessPath) IsEmpty() bool { return p.base == "" }

// Truncated returns true if fields were dropped from the path
func (p AccessPath) Truncated() bool { return p.truncated }

// Depth returns the number of fields of the path. The field of a static path counts.
func (p AccessPath) Depth() int { return p.depth }

// Fields returns the field chain of the path
func (p AccessPath) Fields() []string {
	if p.fields == "" {
		return nil
	}
	return strings.Split(p.fields[1:], ".")
}

// RootedAt returns true if p starts at the variable named v
func (p AccessPath) RootedAt(v string) bool {
	return !p.static && p.base == v
}

// Extend returns the path p.field. If the result would have more than k fields, p is returned truncated.
func (p AccessPath) Extend(field string, k int) AccessPath {
	if p.truncated {
		return p
	}
	if p.depth >= k {
		p.truncated = true
		return p
	}
	p.fields += "." + field
	p.depth++
	return p
}

// Truncate returns p truncated to at most k fields
func (p AccessPath) Truncate(k int) AccessPath {
	if p.depth <= k {
		return p
	}
	fields := p.Fields()
	p.fields = ""
	if k > 0 {
		p.fields = "." + strings.Join(fields[:k], ".")
	}
	p.depth = k
	p.truncated = true
	return p
}

// HasPrefix returns true if the fields of q are a prefix of the fields of p, on the same base.
// A truncated q is never a prefix of a longer path than itself.
func (p AccessPath) HasPrefix(q AccessPath) bool {
	if p.base != q.base || p.static != q.static || q.depth > p.depth {
		return false
	}
	if !strings.HasPrefix(p.fields, q.fields) {
		return false
	}
	if len(p.fields) > len(q.fields) && p.fields[len(q.fields)] != '.' {
		return false
	}
	return !q.truncated || (q.depth == p.depth && p.truncated)
}

// Subsumes returns true if every location denoted by other is also denoted by p: p is a strict prefix of other, or
// p is truncated and its fields are a prefix of other's.
func (p AccessPath) Subsumes(other AccessPath) bool {
	if p == other {
		return false
	}
	q := p
	q.truncated = false
	if !other.HasPrefix(q) {
		return false
	}
	if p.truncated {
		return true
	}
	return p.depth < other.depth
}

// MayAlias returns true if p and q may denote overlapping locations: one is a prefix of the other, or a truncated
// path covers the other.
func (p AccessPath) MayAlias(q AccessPath) bool {
	return p == q || p.HasPrefix(q) || q.HasPrefix(p) || p.Subsumes(q) || q.Subsumes(p)
}

// Substitute rebases p from the path from onto the path to: if p is from.g.h, the result is to.g.h, truncated
// to k fields. If p is a truncated prefix of from, it may denote from and the result is to, truncated.
// The boolean is false when p is not related to from.
func (p AccessPath) Substitute(from AccessPath, to AccessPath, k int) (AccessPath, bool) {
	if p.HasPrefix(from) {
		res := to
		rest := p.fields[len(from.fields):]
		if rest != "" {
			for _, f := range strings.Split(rest[1:], ".") {
				res = res.Extend(f, k)
			}
		}
		if p.truncated {
			res.truncated = true
		}
		return res.Truncate(k), true
	}
	if p.truncated && p.Subsumes(from) {
		res := to
		res.truncated = true
		return res.Truncate(k), true
	}
	return AccessPath{}, false
}

// Equal returns true if p and q are the same path
func (p AccessPath) Equal(q AccessPath) bool { return p == q }

func (p AccessPath) String() string {
	if p.truncated {
		return p.base + p.fields + truncationMarker
	}
	return p.base + p.fields
}
