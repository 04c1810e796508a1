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

package main

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/awslabs/ar-jvm-tools/analysis/bytecode"
	"github.com/awslabs/ar-jvm-tools/analysis/classdb"
	"github.com/awslabs/ar-jvm-tools/analysis/config"
	"github.com/awslabs/ar-jvm-tools/analysis/dataflow"
	"github.com/awslabs/ar-jvm-tools/analysis/metrics"
	"github.com/awslabs/ar-jvm-tools/internal/formatutil"
	"github.com/awslabs/ar-jvm-tools/internal/funcutil"
	"github.com/spf13/cobra"
)

type callgraphFlags struct {
	programPath string
	entries     []string
	parallelism int
	metricsPath string
}

func newCallgraphCmd() *cobra.Command {
	flags := &callgraphFlags{}
	cmd := &cobra.Command{
		Use:   "callgraph --program program.yaml --entry Class.method(desc)",
		Short: "Print the call graph reachable from entry methods",
		Long: `Prints the call edges reachable from the entry methods, grouped by caller, followed by the strongly
connected components and the elementary cycles of the graph.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCallgraph(cmd.Context(), cmd.OutOrStdout(), flags)
		},
	}
	cmd.Flags().StringVar(&flags.programPath, "program", "", "program file")
	cmd.Flags().StringArrayVar(&flags.entries, "entry", nil, "entry method, can be repeated")
	cmd.Flags().IntVar(&flags.parallelism, "parallelism", 0, "number of workers building methods (0: number of CPUs)")
	cmd.Flags().StringVar(&flags.metricsPath, "metrics", "", "write prometheus metrics to this file")
	_ = cmd.MarkFlagRequired("program")
	_ = cmd.MarkFlagRequired("entry")
	return cmd
}

func runCallgraph(ctx context.Context, out io.Writer, flags *callgraphFlags) error {
	if ctx == nil {
		ctx = context.Background()
	}
	db, err := classdb.Load(flags.programPath)
	if err != nil {
		return err
	}
	var entries []bytecode.MethodRef
	for _, s := range flags.entries {
		ref, err := bytecode.ParseMethodRef(s)
		if err != nil {
			return err
		}
		entries = append(entries, ref)
	}
	cfg := config.NewDefault()
	cfg.LogLevel = int(config.WarnLevel)
	if flags.parallelism > 0 {
		cfg.Parallelism = flags.parallelism
	}
	logger := config.NewLogGroup(cfg)
	logger.SetAllOutput(out)
	state := dataflow.NewAnalyzerState(db, logger, cfg)
	g, err := state.Prebuild(ctx, entries)
	if err != nil {
		return err
	}

	if err := g.WriteText(out); err != nil {
		return err
	}
	names := func(refs []bytecode.MethodRef) string {
		return strings.Join(funcutil.Map(refs, bytecode.MethodRef.String), ", ")
	}
	fmt.Fprintf(out, "%s\n", formatutil.Bold("Strongly connected components:"))
	for _, scc := range g.SCCs() {
		fmt.Fprintf(out, "  [%s]\n", names(scc))
	}
	fmt.Fprintf(out, "%s\n", formatutil.Bold("Cycles:"))
	for _, c := range g.Cycles() {
		fmt.Fprintf(out, "  %s\n", strings.Join(funcutil.Map(c, bytecode.MethodRef.String), " -> "))
	}
	if len(g.Unresolved) > 0 {
		fmt.Fprintf(out, "%s\n", formatutil.Yellow(fmt.Sprintf("%d call sites without callee", len(g.Unresolved))))
		for _, s := range g.Unresolved {
			fmt.Fprintf(out, "  %s#%d: %s\n", s.Method.Ref, s.Index, s)
		}
	}
	for ref, err := range g.Failures {
		logger.Warnf("%s: %v\n", ref, err)
	}

	if flags.metricsPath != "" {
		m := metrics.New()
		m.ObserveState(state)
		return m.WriteToTextfile(flags.metricsPath)
	}
	return nil
}
