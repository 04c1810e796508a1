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

package config

import (
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
)

//go:embed testdata
var testfsys embed.FS

func checkEqualOnNonEmptyFields(t *testing.T, cid1 CodeIdentifier, cid2 CodeIdentifier) {
	cid2c := CompileRegexes(cid2)
	if !cid1.equalOnNonEmptyFields(cid2c) {
		t.Errorf("%v should be equal modulo empty fields to %v", cid1, cid2)
	}
}

func checkNotEqualOnNonEmptyFields(t *testing.T, cid1 CodeIdentifier, cid2 CodeIdentifier) {
	cid2c := CompileRegexes(cid2)
	if cid1.equalOnNonEmptyFields(cid2c) {
		t.Errorf("%v should not be equal modulo empty fields to %v", cid1, cid2)
	}
}

func TestCodeIdentifier_equalOnNonEmptyFields_selfEquals(t *testing.T) {
	cid1 := CodeIdentifier{Class: "a", Method: "b"}
	checkEqualOnNonEmptyFields(t, cid1, cid1)
}

func TestCodeIdentifier_equalOnNonEmptyFields_emptyMatchesAny(t *testing.T) {
	cid1 := CodeIdentifier{Class: "a", Method: "b", Descriptor: "()V"}
	cid2 := CodeIdentifier{Class: "de", Method: "234jbn", Field: "ef"}
	cidEmpty := CodeIdentifier{}
	checkEqualOnNonEmptyFields(t, cid1, cidEmpty)
	checkEqualOnNonEmptyFields(t, cid2, cidEmpty)
}

func TestCodeIdentifier_equalOnNonEmptyFields_oneDiff(t *testing.T) {
	cid1 := CodeIdentifier{Class: "a", Method: "b"}
	cid2 := CodeIdentifier{Class: "a"}
	checkEqualOnNonEmptyFields(t, cid1, cid2)
	checkNotEqualOnNonEmptyFields(t, cid2, cid1)
}

func TestCodeIdentifier_equalOnNonEmptyFields_regexes(t *testing.T) {
	cid1 := CodeIdentifier{Class: "java/io/PrintStream", Method: "println"}
	cid1bis := CodeIdentifier{Class: "java/io/PrintWriter", Method: "println"}
	cid2 := CodeIdentifier{Class: "java/io/Print(Stream|Writer)", Method: "print.*"}
	checkEqualOnNonEmptyFields(t, cid1, cid2)
	checkEqualOnNonEmptyFields(t, cid1bis, cid2)
	// regexes are anchored
	checkNotEqualOnNonEmptyFields(t, CodeIdentifier{Class: "java/io/PrintStreamX", Method: "println"}, cid2)
}

func TestCodeIdentifier_descriptorIsLiteral(t *testing.T) {
	cid := CodeIdentifier{Class: "A", Method: "m", Descriptor: "(Ljava/lang/String;)V"}
	checkEqualOnNonEmptyFields(t, cid, CodeIdentifier{Descriptor: "(Ljava/lang/String;)V"})
	checkNotEqualOnNonEmptyFields(t, cid, CodeIdentifier{Descriptor: "(I)V"})
}

func TestCodeIdentifier_MatchedBy_fieldsAndMethodsAreDistinct(t *testing.T) {
	fieldRule := CompileRegexes(CodeIdentifier{Class: "ExampleWithField", Field: "f"})
	methodRule := CompileRegexes(CodeIdentifier{Class: "ExampleWithField"})
	field := CodeIdentifier{Class: "ExampleWithField", Field: "f"}
	method := CodeIdentifier{Class: "ExampleWithField", Method: "getF", Descriptor: "()I"}
	if !field.MatchedBy(fieldRule) {
		t.Errorf("%v should match %v", field, fieldRule)
	}
	if method.MatchedBy(fieldRule) {
		t.Errorf("%v should not match the field rule %v", method, fieldRule)
	}
	if field.MatchedBy(methodRule) {
		t.Errorf("%v should not match the method rule %v", field, methodRule)
	}
	if !method.MatchedBy(methodRule) {
		t.Errorf("%v should match %v", method, methodRule)
	}
}

func loadFromTestDir(filename string) (string, *Config, error) {
	filename = filepath.Join("testdata", filename)
	b, err := testfsys.ReadFile(filename)
	if err != nil {
		return "", nil, fmt.Errorf("failed to read file %v: %v", filename, err)
	}
	config, err := LoadBytes(filename, b)
	if err != nil {
		return filename, nil, fmt.Errorf("failed to load file %v: %w", filename, err)
	}
	return filename, config, err
}

func TestNewDefault(t *testing.T) {
	c := NewDefault()
	if c.MaxAccessPathDepth != DefaultMaxAccessPathDepth {
		t.Errorf("Default for MaxAccessPathDepth should be %d", DefaultMaxAccessPathDepth)
	}
	if !c.RetainProvenance {
		t.Errorf("Default for RetainProvenance should be true")
	}
	if c.PathEdgeBudget != 0 {
		t.Errorf("Default for PathEdgeBudget should be unlimited")
	}
	if err := c.Validate(); err != nil {
		t.Errorf("Default config should be valid: %v", err)
	}
}

func TestLoadNonExistentFileReturnsError(t *testing.T) {
	c, err := Load(filepath.Join("testdata", "does-not-exist.yaml"))
	if c != nil || err == nil {
		t.Errorf("Expected error and nil value when trying to load non existent file.")
	}
}

func TestLoadBadFormatFileReturnsError(t *testing.T) {
	_, config, err := loadFromTestDir("bad_format.yaml")
	if config != nil || err == nil {
		t.Errorf("Expected error and nil value when trying to load a badly formatted file.")
	}
}

func TestLoadBadDepthReturnsError(t *testing.T) {
	_, config, err := loadFromTestDir("bad_depth.yaml")
	if config != nil || !errors.Is(err, ErrInvalidDepth) {
		t.Errorf("Expected ErrInvalidDepth, got %v", err)
	}
}

func TestValidateDepth(t *testing.T) {
	for _, k := range []int{-1, 0, MaxAccessPathDepthLimit + 1} {
		if err := ValidateDepth(k); !errors.Is(err, ErrInvalidDepth) {
			t.Errorf("depth %d should be invalid", k)
		}
	}
	for _, k := range []int{1, 5, MaxAccessPathDepthLimit} {
		if err := ValidateDepth(k); err != nil {
			t.Errorf("depth %d should be valid: %v", k, err)
		}
	}
}

func TestLoadWithReports(t *testing.T) {
	fileName, config, err := loadFromTestDir("config_with_reports.yaml")
	if err != nil {
		t.Fatalf("Could not load %q: %v", fileName, err)
	}
	defer os.RemoveAll(config.ReportsDir)
	if !config.ReportPaths {
		t.Errorf("Expected report-paths to be true in %q", fileName)
	}
	if config.ReportsDir == "" {
		t.Errorf("Expected reports-dir to be non-empty after loading config %q", fileName)
	}
}

func TestLoadMisc(t *testing.T) {
	_, config, err := loadFromTestDir("config.yaml")
	if err != nil {
		t.Fatal(err)
	}
	if len(config.TaintTrackingProblems) != 1 {
		t.Fatalf("expected one problem")
	}
	p := config.TaintTrackingProblems[0]
	if len(p.Sources) != 1 || p.Sources[0].Method != "readLine" || p.Sources[0].Positions[0] != "result" {
		t.Errorf("unexpected sources %v", p.Sources)
	}
	if len(p.Sinks) != 1 || len(p.Sinks[0].Conditions) != 1 {
		t.Fatalf("unexpected sinks %v", p.Sinks)
	}
	cond := p.Sinks[0].Conditions[0]
	if cond.ConstantMatches != "^/bin/.*" || cond.Position != "arg0" || !cond.Not {
		t.Errorf("unexpected condition %+v", cond)
	}
	if config.LogLevel != int(InfoLevel) {
		t.Errorf("log level should default to info")
	}
	if config.MaxAccessPathDepth != DefaultMaxAccessPathDepth {
		t.Errorf("max-access-path-depth should default to %d", DefaultMaxAccessPathDepth)
	}
}

//gocyclo:ignore
func TestLoadFullConfig(t *testing.T) {
	fileName, config, err := loadFromTestDir("full-config.yaml")
	if config == nil || err != nil {
		t.Fatalf("Could not load %s: %v", fileName, err)
	}
	if config.LogLevel != int(TraceLevel) {
		t.Error("full config should have set trace")
	}
	if config.MaxAccessPathDepth != 3 {
		t.Error("full config should set max-access-path-depth to 3")
	}
	if config.RetainProvenance {
		t.Error("full config should disable provenance")
	}
	if config.PathEdgeBudget != 5000 {
		t.Error("full config should set path-edge-budget to 5000")
	}
	if config.Parallelism != 2 {
		t.Error("full config should set parallelism to 2")
	}
	if config.MaxAlarms != 16 {
		t.Error("full config should set MaxAlarms to 16")
	}
	if !config.SilenceWarn {
		t.Error("full config should have silence-warn set to true")
	}
	if config.ProgramPath() != filepath.Join("testdata", "programs", "example.yaml") {
		t.Errorf("program path should be relative to the config, got %s", config.ProgramPath())
	}
	if !config.IsEntryPoint(CodeIdentifier{Class: "FieldWriteSlice", Method: "main", Descriptor: "([Ljava/lang/String;)V"}) {
		t.Error("FieldWriteSlice.main should be an entry point")
	}
	if len(config.TaintTrackingProblems) != 1 {
		t.Fatalf("full config should have one taint problem")
	}
	p := config.TaintTrackingProblems[0]
	if p.Name != "field-slice" || p.RuleCount() != 4 {
		t.Errorf("unexpected problem %q with %d rules", p.Name, p.RuleCount())
	}
	if p.Sources[0].Mark != "write" || p.Sources[0].Field != "f" {
		t.Errorf("unexpected source %+v", p.Sources[0])
	}
	if p.Sinks[0].Note == "" || len(p.Sinks[0].CWE) != 1 || p.Sinks[0].CWE[0] != 200 {
		t.Errorf("unexpected sink %+v", p.Sinks[0])
	}
	if len(p.PassThroughs[0].To) != 2 {
		t.Errorf("unexpected pass-through %+v", p.PassThroughs[0])
	}
	if !p.IsFiltered(CodeIdentifier{Class: "java/util/ArrayList", Method: "add"}) {
		t.Errorf("java/util classes should be filtered")
	}
	if p.IsFiltered(CodeIdentifier{Class: "java/io/PrintStream", Method: "println"}) {
		t.Errorf("java/io classes should not be filtered")
	}
}
