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
	"errors"
	"fmt"
	"os"
	"path"
	"runtime"

	"github.com/awslabs/ar-jvm-tools/internal/funcutil"
	"gopkg.in/yaml.v3"
)

// ErrInvalidDepth is returned when the maximum access path depth is out of bounds
var ErrInvalidDepth = errors.New("invalid maximum access path depth")

// Config contains the entry points, rules and options of the analyses.
// To add elements to a config file, add fields to this struct.
// If some field is not defined in the config file, it will be empty/zero in the struct.
// private fields are not populated from a yaml file, but computed after initialization
type Config struct {
	Options

	sourceFile string

	// Program is the path to the program database (yaml or msgpack), relative to the config file
	Program string `yaml:"program"`

	// EntryPoints identifies the methods the analyses start from
	EntryPoints []CodeIdentifier `yaml:"entry-points"`

	// TaintTrackingProblems lists the taint tracking specifications
	TaintTrackingProblems []TaintSpec `yaml:"taint-tracking-problems"`
}

// TaintSpec contains the rules that identify a specific taint tracking problem. The order of the rules in each
// list is the order in which they are applied.
type TaintSpec struct {
	// Name is an optional name for the problem, used in reports
	Name string `yaml:"name"`

	// Sources is the list of sources for the taint analysis
	Sources []RuleSpec `yaml:"sources"`

	// Sinks is the list of sinks for the taint analysis
	Sinks []RuleSpec `yaml:"sinks"`

	// Sanitizers is the list of sanitizers for the taint analysis
	Sanitizers []RuleSpec `yaml:"sanitizers"`

	// PassThroughs is the list of methods whose flows are specified instead of analyzed
	PassThroughs []RuleSpec `yaml:"pass-throughs"`

	// EntryPoints lists the methods whose parameters are tainted when they are analyzed as entry points
	EntryPoints []RuleSpec `yaml:"entry-points"`

	// Filters contains a list of methods that are never analyzed: calls to them are opaque
	Filters []CodeIdentifier `yaml:"filters"`

	// NullDereference reports the values that may be null when they are dereferenced: null constants, values
	// compared to null and values with the mark "null". A problem with this option needs no sink.
	NullDereference bool `yaml:"null-dereference"`
}

// RuleSpec is a CodeIdentifier along with the positions the rule applies to.
// Positions are "this", "result", "argN" or "any-arg", optionally followed by a field path, e.g. "arg0.name".
type RuleSpec struct {
	CodeIdentifier `yaml:",inline"`

	// Positions lists the positions tainted by a source, checked by a sink or cleaned by a sanitizer.
	Positions []string `yaml:"positions"`

	// From and To are the positions of a pass-through: taint at From[i] flows to every position in To
	From []string `yaml:"from"`
	To   []string `yaml:"to"`

	// Mark is the taint mark generated by a source, or the mark a sink or sanitizer is restricted to
	Mark string `yaml:"mark"`

	// CWE and Note describe the issue reported by a sink
	CWE  []int  `yaml:"cwe"`
	Note string `yaml:"note"`

	// Conditions must all hold at the call for the rule to apply
	Conditions []ConditionSpec `yaml:"conditions"`
}

// ConditionSpec is a condition on the arguments of a call
type ConditionSpec struct {
	// IsConstant holds when the position is a constant
	IsConstant string `yaml:"is-constant"`

	// ConstantMatches holds when the argument at Position is a constant matching the regex
	ConstantMatches string `yaml:"constant-matches"`
	Position        string `yaml:"position"`

	// Not negates the condition
	Not bool `yaml:"not"`
}

// Options holds the global options of the analyses
type Options struct {
	// ReportsDir is the directory where all the reports will be stored. If the yaml config file this config struct has
	// been loaded does not specify a ReportsDir but sets any Report* option to true, then ReportsDir will be created
	// in the folder of the config file.
	ReportsDir string `yaml:"reports-dir"`

	// ReportPaths specifies whether the taint flows should be reported in separate files. For each taint flow, a new
	// file named taint-*.out will be generated with the trace from source to sink
	ReportPaths bool `yaml:"report-paths"`

	// MaxAccessPathDepth is the maximum number of fields in an access path. Deeper paths are truncated.
	MaxAccessPathDepth int `yaml:"max-access-path-depth"`

	// RetainProvenance keeps the back-pointers needed to reconstruct traces. Defaults to true.
	RetainProvenance bool `yaml:"retain-provenance"`

	// PathEdgeBudget caps the number of path edges processed by one analysis run. If <= 0, it is ignored.
	PathEdgeBudget int `yaml:"path-edge-budget"`

	// Parallelism is the number of workers used to build the control flow graphs. Defaults to the number of CPUs.
	Parallelism int `yaml:"parallelism"`

	// MaxAlarms sets a limit for the number of alarms reported by an analysis.  If MaxAlarms > 0, then at most
	// MaxAlarms will be reported. Otherwise, if MaxAlarms <= 0, it is ignored.
	MaxAlarms int `yaml:"max-alarms"`

	// Loglevel controls the verbosity of the tool
	LogLevel int `yaml:"log-level"`

	// Suppress warnings
	SilenceWarn bool `yaml:"silence-warn"`
}

// NewDefault returns an empty default config.
func NewDefault() *Config {
	return &Config{
		Options: Options{
			MaxAccessPathDepth: DefaultMaxAccessPathDepth,
			RetainProvenance:   true,
			PathEdgeBudget:     0,
			Parallelism:        runtime.NumCPU(),
			LogLevel:           int(InfoLevel),
		},
	}
}

// Load reads a configuration from a file
func Load(filename string) (*Config, error) {
	b, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("could not read config file: %w", err)
	}
	return LoadBytes(filename, b)
}

// LoadBytes reads a configuration from its contents. The filename is used to resolve relative paths.
func LoadBytes(filename string, b []byte) (*Config, error) {
	cfg := NewDefault()
	if err := yaml.Unmarshal(b, cfg); err != nil {
		return nil, fmt.Errorf("could not unmarshal config file %s: %w", filename, err)
	}
	cfg.sourceFile = filename

	if cfg.ReportPaths {
		if err := setReportsDir(cfg, filename); err != nil {
			return nil, err
		}
	}

	// If logLevel has not been specified (i.e. it is 0) set the default to Info
	if cfg.LogLevel == 0 {
		cfg.LogLevel = int(InfoLevel)
	}

	if cfg.MaxAccessPathDepth == 0 {
		cfg.MaxAccessPathDepth = DefaultMaxAccessPathDepth
	}

	if cfg.Parallelism <= 0 {
		cfg.Parallelism = runtime.NumCPU()
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	funcutil.MapInPlace(cfg.EntryPoints, CompileRegexes)
	for i := range cfg.TaintTrackingProblems {
		tSpec := &cfg.TaintTrackingProblems[i]
		for _, rules := range [][]RuleSpec{tSpec.Sources, tSpec.Sinks, tSpec.Sanitizers, tSpec.PassThroughs,
			tSpec.EntryPoints} {
			funcutil.MapInPlace(rules, func(r RuleSpec) RuleSpec {
				r.CodeIdentifier = CompileRegexes(r.CodeIdentifier)
				return r
			})
		}
		funcutil.MapInPlace(tSpec.Filters, CompileRegexes)
	}

	return cfg, nil
}

// Validate checks that the options are within bounds
func (c Config) Validate() error {
	return ValidateDepth(c.MaxAccessPathDepth)
}

// ValidateDepth returns an error wrapping ErrInvalidDepth if k is not a valid access path depth
func ValidateDepth(k int) error {
	if k < 1 || k > MaxAccessPathDepthLimit {
		return fmt.Errorf("%w: %d is not in [1, %d]", ErrInvalidDepth, k, MaxAccessPathDepthLimit)
	}
	return nil
}

func setReportsDir(c *Config, filename string) error {
	if c.ReportsDir == "" {
		tmpdir, err := os.MkdirTemp(path.Dir(filename), "*-report")
		if err != nil {
			return fmt.Errorf("could not create temp dir for reports: %w", err)
		}
		c.ReportsDir = tmpdir
	} else {
		err := os.Mkdir(c.ReportsDir, 0750)
		if err != nil {
			if !os.IsExist(err) {
				return fmt.Errorf("could not create directory %s", c.ReportsDir)
			}
		}
	}
	return nil
}

// RelPath returns filename path relative to the config source file
func (c Config) RelPath(filename string) string {
	if path.IsAbs(filename) {
		return filename
	}
	return path.Join(path.Dir(c.sourceFile), filename)
}

// ProgramPath returns the path of the program database, relative to the config file
func (c Config) ProgramPath() string {
	if c.Program == "" {
		return ""
	}
	return c.RelPath(c.Program)
}

// IsEntryPoint returns true if the code identifier matches an entry point of the config
func (c Config) IsEntryPoint(cid CodeIdentifier) bool {
	return ExistsCid(c.EntryPoints, cid.equalOnNonEmptyFields)
}

// IsFiltered returns true if the code identifier matches a filter of the taint spec
func (ts TaintSpec) IsFiltered(cid CodeIdentifier) bool {
	return ExistsCid(ts.Filters, cid.equalOnNonEmptyFields)
}

// RuleCount returns the total number of rules in the spec
func (ts TaintSpec) RuleCount() int {
	return len(ts.Sources) + len(ts.Sinks) + len(ts.Sanitizers) + len(ts.PassThroughs) + len(ts.EntryPoints)
}

// Verbose returns true is the configuration verbosity setting is larger than Info (i.e. Debug or Trace)
func (c Config) Verbose() bool {
	return c.LogLevel >= int(DebugLevel)
}
