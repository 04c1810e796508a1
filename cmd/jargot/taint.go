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
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/awslabs/ar-jvm-tools/analysis/classdb"
	"github.com/awslabs/ar-jvm-tools/analysis/config"
	"github.com/awslabs/ar-jvm-tools/analysis/dataflow"
	"github.com/awslabs/ar-jvm-tools/analysis/metrics"
	"github.com/awslabs/ar-jvm-tools/analysis/taint"
	"github.com/awslabs/ar-jvm-tools/internal/formatutil"
	"github.com/spf13/cobra"
)

type taintFlags struct {
	configPath  string
	programPath string
	metricsPath string
	format      string
	verbose     bool
	maxDepth    int
}

func newTaintCmd() *cobra.Command {
	flags := &taintFlags{}
	cmd := &cobra.Command{
		Use:   "taint --config config.yaml",
		Short: "Run the taint analysis problems of a config file",
		Long: `Runs every taint tracking problem of the config from every entry point of the config, and prints the
flows found. When report-paths is set in the config, one report per flow is written in reports-dir.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTaint(cmd.Context(), cmd.OutOrStdout(), flags)
		},
	}
	cmd.Flags().StringVar(&flags.configPath, "config", "", "path to the config file")
	cmd.Flags().StringVar(&flags.programPath, "program", "", "program file, overrides the program of the config")
	cmd.Flags().StringVar(&flags.metricsPath, "metrics", "", "write prometheus metrics to this file")
	cmd.Flags().StringVar(&flags.format, "format", "text", "output format: text or yaml")
	cmd.Flags().BoolVar(&flags.verbose, "verbose", false, "verbose mode, overrides the log level of the config")
	cmd.Flags().IntVar(&flags.maxDepth, "max-depth", 0, "override the maximum access path depth of the config")
	_ = cmd.MarkFlagRequired("config")
	return cmd
}

func runTaint(ctx context.Context, out io.Writer, flags *taintFlags) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if flags.format != "text" && flags.format != "yaml" {
		return fmt.Errorf("unknown format %q", flags.format)
	}
	cfg, err := config.Load(flags.configPath)
	if err != nil {
		return err
	}
	if flags.verbose {
		cfg.LogLevel = int(config.DebugLevel)
	}
	if flags.maxDepth != 0 {
		if err := config.ValidateDepth(flags.maxDepth); err != nil {
			return err
		}
		cfg.MaxAccessPathDepth = flags.maxDepth
	}
	logger := config.NewLogGroup(cfg)
	logger.SetAllOutput(out)

	programPath := flags.programPath
	if programPath == "" {
		programPath = cfg.ProgramPath()
	}
	if programPath == "" {
		return errors.New("no program: set program in the config or use --program")
	}
	logger.Infof("%s\n", formatutil.Faint("Jargot taint tool - "+version))
	logger.Infof("%s\n", formatutil.Faint("Reading program "+programPath))
	db, err := classdb.Load(programPath)
	if err != nil {
		return err
	}

	start := time.Now()
	results, analysisErr := taint.AnalyzeConfig(ctx, cfg, db, logger)
	logger.Infof("Analysis took %3.4f s\n", time.Since(start).Seconds())

	m := metrics.New()
	nflows := 0
	for i, res := range results {
		name := cfg.TaintTrackingProblems[i].Name
		if res == nil {
			m.ObserveRun(name, dataflow.Stats{}, 0, errors.New("failed"))
			continue
		}
		var runErr error
		if res.Partial {
			runErr = dataflow.ErrAnalysisIncomplete
		}
		m.ObserveRun(name, res.Stats.Stats, len(res.Flows), runErr)
		nflows += len(res.Flows)
		if flags.format == "yaml" {
			if err := taint.WriteYAML(out, res); err != nil {
				return err
			}
		} else if err := taint.Report(cfg, logger, res); err != nil {
			return err
		}
	}
	if flags.metricsPath != "" {
		if err := m.WriteToTextfile(flags.metricsPath); err != nil {
			return err
		}
	}
	if analysisErr != nil {
		return analysisErr
	}
	logger.Infof("%s\n", strings.Repeat("*", 80))
	if nflows == 0 {
		logger.Infof("RESULT:\n\t\t%s\n", formatutil.Green("No taint flows detected ✓"))
	} else {
		logger.Errorf("RESULT:\n\t\t%s\n", formatutil.Red(fmt.Sprintf("%d taint flows detected!", nflows)))
	}
	return nil
}
