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

// Package analysistest loads the program fixtures of testdata/programs and the expectations annotated in them.
//
// An instruction of a fixture can be annotated with a comment "@Source(id1, id2)" or "@Sink(id1, id2)". A sink
// annotated with id is expected to be reached by the sources annotated with the same id.
package analysistest

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"
	"testing"

	"github.com/awslabs/ar-jvm-tools/analysis/bytecode"
	"github.com/awslabs/ar-jvm-tools/analysis/classdb"
	"gopkg.in/yaml.v3"
)

// Match annotations of the form "@Source(id1, id2, id3)"
var SourceRegex = regexp.MustCompile(`#.*@Source\(((?:\s*\w+\s*,?)+)\)`)
var SinkRegex = regexp.MustCompile(`#.*@Sink\(((?:\s*\w+\s*,?)+)\)`)

// ProgramDir returns the directory holding the program fixtures
func ProgramDir() string {
	_, filename, _, _ := runtime.Caller(0)
	return filepath.Join(filepath.Dir(filename), "..", "..", "testdata", "programs")
}

// ProgramPath returns the path of the fixture name
func ProgramPath(name string) string {
	return filepath.Join(ProgramDir(), name+".yaml")
}

// LoadProgram loads the fixture name into a class database, failing the test on errors
func LoadProgram(t *testing.T, name string) *classdb.DB {
	t.Helper()
	db, err := classdb.Load(ProgramPath(name))
	if err != nil {
		t.Fatalf("error loading program %s: %v", name, err)
	}
	return db
}

// LPos is the position of an instruction in a fixture
type LPos struct {
	Method bytecode.MethodRef
	Offset int
}

func (p LPos) String() string {
	return fmt.Sprintf("%s@%d", p.Method, p.Offset)
}

// GetExpectedSourceToSink reads the annotations of the fixture name and returns the expected flows, as a map from
// sink positions to the source positions that reach that sink
func GetExpectedSourceToSink(t *testing.T, name string) map[LPos]map[LPos]bool {
	t.Helper()
	b, err := os.ReadFile(ProgramPath(name))
	if err != nil {
		t.Fatalf("error reading program %s: %v", name, err)
	}
	var doc yaml.Node
	if err := yaml.Unmarshal(b, &doc); err != nil {
		t.Fatalf("error parsing program %s: %v", name, err)
	}
	sourceIds := map[string][]LPos{}
	sinks := map[LPos][]string{}
	visitInstructions(&doc, func(pos LPos, comment string) {
		if a := SourceRegex.FindStringSubmatch(comment); len(a) > 1 {
			for _, ident := range strings.Split(a[1], ",") {
				id := strings.TrimSpace(ident)
				sourceIds[id] = append(sourceIds[id], pos)
			}
		}
		if a := SinkRegex.FindStringSubmatch(comment); len(a) > 1 {
			for _, ident := range strings.Split(a[1], ",") {
				sinks[pos] = append(sinks[pos], strings.TrimSpace(ident))
			}
		}
	})
	source2sink := map[LPos]map[LPos]bool{}
	for sink, ids := range sinks {
		for _, id := range ids {
			for _, source := range sourceIds[id] {
				if _, ok := source2sink[sink]; !ok {
					source2sink[sink] = map[LPos]bool{}
				}
				source2sink[sink][source] = true
			}
		}
	}
	return source2sink
}

// visitInstructions calls f on every instruction of the program document with the comments attached to it
func visitInstructions(doc *yaml.Node, f func(LPos, string)) {
	if doc.Kind != yaml.DocumentNode || len(doc.Content) == 0 {
		return
	}
	for _, class := range seq(field(doc.Content[0], "classes")) {
		className := scalar(field(class, "name"))
		for _, method := range seq(field(class, "methods")) {
			ref := bytecode.MethodRef{
				Class:      className,
				Name:       scalar(field(method, "name")),
				Descriptor: scalar(field(method, "descriptor")),
			}
			for _, ins := range seq(field(method, "code")) {
				var offset int
				if pc := field(ins, "pc"); pc == nil || pc.Decode(&offset) != nil {
					continue
				}
				if c := comments(ins); c != "" {
					f(LPos{Method: ref, Offset: offset}, c)
				}
			}
		}
	}
}

func field(n *yaml.Node, key string) *yaml.Node {
	if n == nil || n.Kind != yaml.MappingNode {
		return nil
	}
	for i := 0; i+1 < len(n.Content); i += 2 {
		if n.Content[i].Value == key {
			return n.Content[i+1]
		}
	}
	return nil
}

func seq(n *yaml.Node) []*yaml.Node {
	if n == nil || n.Kind != yaml.SequenceNode {
		return nil
	}
	return n.Content
}

func scalar(n *yaml.Node) string {
	if n == nil {
		return ""
	}
	return n.Value
}

// comments returns the line comments of n and its children
func comments(n *yaml.Node) string {
	var parts []string
	if n.LineComment != "" {
		parts = append(parts, n.LineComment)
	}
	for _, c := range n.Content {
		if s := comments(c); s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, " ")
}
