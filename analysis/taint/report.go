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

package taint

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/awslabs/ar-jvm-tools/analysis/config"
	"github.com/awslabs/ar-jvm-tools/analysis/dataflow"
	"github.com/awslabs/ar-jvm-tools/internal/formatutil"
	"gopkg.in/yaml.v3"
)

// FlowReport is the serialized form of a flow
type FlowReport struct {
	Source string            `yaml:"source"`
	Sink   string            `yaml:"sink"`
	Path   string            `yaml:"access-path"`
	Mark   string            `yaml:"mark,omitempty"`
	Rule   string            `yaml:"rule"`
	CWE    []int             `yaml:"cwe,omitempty"`
	Note   string            `yaml:"note,omitempty"`
	Trace  []dataflow.Record `yaml:"trace,omitempty"`
}

// ResultReport is the serialized form of a result
type ResultReport struct {
	RunID   string       `yaml:"run-id"`
	Problem string       `yaml:"problem,omitempty"`
	Partial bool         `yaml:"partial,omitempty"`
	Flows   []FlowReport `yaml:"flows"`
	Errors  []string     `yaml:"errors,omitempty"`
}

// ReportOf returns the serialized form of res
func ReportOf(res *Result) ResultReport {
	r := ResultReport{RunID: res.Stats.RunID.String(), Problem: res.Stats.Problem, Partial: res.Partial}
	for _, f := range res.Flows {
		r.Flows = append(r.Flows, FlowReport{
			Source: fmt.Sprintf("%s#%d", f.Source.Method.Ref, f.Source.Index),
			Sink:   fmt.Sprintf("%s#%d", f.Sink.Method.Ref, f.Sink.Index),
			Path:   f.Fact.Path.String(),
			Mark:   f.Fact.Mark,
			Rule:   f.Rule.Name(),
			CWE:    f.Rule.CWE,
			Note:   f.Rule.Note,
			Trace:  f.Records(),
		})
	}
	for key, errs := range res.Errors {
		for _, err := range errs {
			r.Errors = append(r.Errors, fmt.Sprintf("%s: %v", key, err))
		}
	}
	sort.Strings(r.Errors)
	return r
}

// WriteYAML writes the report of res to w
func WriteYAML(w io.Writer, res *Result) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(ReportOf(res)); err != nil {
		return fmt.Errorf("could not encode report: %w", err)
	}
	return enc.Close()
}

// LogFlows prints the flows of res with the logger
func LogFlows(logger *config.LogGroup, res *Result) {
	if res.Partial {
		logger.Warnf("Analysis %s of %q is partial: the path edge budget was exceeded\n", res.Stats.RunID,
			res.Stats.Problem)
	}
	for _, f := range res.Flows {
		logger.Infof(" 💀 Sink reached at %s\n", formatutil.Red(fmt.Sprintf("%s#%d", f.Sink.Method.Ref, f.Sink.Index)))
		logger.Infof(" Add new path from %s to %s <== \n",
			formatutil.Green(formatutil.SanitizeRepr(f.Source)), formatutil.Red(formatutil.SanitizeRepr(f.Sink)))
		if f.Rule.Note != "" || len(f.Rule.CWE) > 0 {
			logger.Infof(" %s %s (CWE %v)\n", formatutil.Yellow("Note:"), f.Rule.Note, f.Rule.CWE)
		}
		for _, line := range f.Report() {
			logger.Debugf("TRACE: %s\n", line)
		}
	}
	for key, errs := range res.Errors {
		for _, err := range errs {
			logger.Warnf("%s: %v\n", formatutil.Yellow(key), err)
		}
	}
}

// WriteFlowReports writes one file per flow in dir, named after the run id of res, and returns the names of the
// files written
func WriteFlowReports(dir string, res *Result) ([]string, error) {
	var files []string
	for i, f := range res.Flows {
		name := filepath.Join(dir, fmt.Sprintf("taint-%s-%d.out", res.Stats.RunID, i))
		var b strings.Builder
		fmt.Fprintf(&b, "Source: %s\n", f.Source)
		fmt.Fprintf(&b, "At: %s#%d\n", f.Source.Method.Ref, f.Source.Index)
		fmt.Fprintf(&b, "Sink: %s\n", f.Sink)
		fmt.Fprintf(&b, "At: %s#%d\n", f.Sink.Method.Ref, f.Sink.Index)
		fmt.Fprintf(&b, "Rule: %s\n", f.Rule)
		b.WriteString("Trace:\n")
		for _, line := range f.Report() {
			b.WriteString(line + "\n")
		}
		if err := os.WriteFile(name, []byte(b.String()), 0600); err != nil {
			return files, fmt.Errorf("could not write report: %w", err)
		}
		files = append(files, name)
	}
	return files, nil
}

// Report logs the flows of res and writes the flow reports when the config asks for them
func Report(cfg *config.Config, logger *config.LogGroup, res *Result) error {
	LogFlows(logger, res)
	if !cfg.ReportPaths || cfg.ReportsDir == "" {
		return nil
	}
	files, err := WriteFlowReports(cfg.ReportsDir, res)
	for _, f := range files {
		logger.Infof("Report in %s\n", f)
	}
	return err
}
