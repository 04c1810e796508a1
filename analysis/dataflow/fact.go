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
	"fmt"

	"github.com/awslabs/ar-jvm-tools/analysis/ir"
)

// A Fact is either the zero fact, which holds everywhere, or a tainted access path together with the statement
// that generated the taint and the taint mark. Facts are comparable, and the provenance and the mark are part of
// their identity: the same path tainted by two sources is two facts.
type Fact struct {
	Path AccessPath
	// Source is the statement that generated the taint, nil for the zero fact
	Source *ir.Statement
	// Mark is the kind of taint, empty for the default mark
	Mark string
}

// Zero is the zero fact
var Zero = Fact{}

// NewFact returns the fact of path tainted at source with mark
func NewFact(path AccessPath, source *ir.Statement, mark string) Fact {
	return Fact{Path: path, Source: source, Mark: mark}
}

// IsZero returns true for the zero fact
func (f Fact) IsZero() bool { return f == Zero }

// WithPath returns the fact with the same provenance and mark on a different path
func (f Fact) WithPath(p AccessPath) Fact {
	f.Path = p
	return f
}

// RootedAt returns true if the fact is about the variable named v or one of its fields
func (f Fact) RootedAt(v string) bool {
	return !f.IsZero() && f.Path.RootedAt(v)
}

func (f Fact) String() string {
	if f.IsZero() {
		return "<0>"
	}
	s := fmt.Sprintf("%s from %s#%d", f.Path, f.Source.Method.Ref, f.Source.Index)
	if f.Mark != "" {
		s += " [" + f.Mark + "]"
	}
	return s
}
