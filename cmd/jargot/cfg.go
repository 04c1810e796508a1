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
	"fmt"
	"io"

	"github.com/awslabs/ar-jvm-tools/analysis/bytecode"
	"github.com/awslabs/ar-jvm-tools/analysis/classdb"
	"github.com/awslabs/ar-jvm-tools/analysis/hierarchy"
	"github.com/awslabs/ar-jvm-tools/analysis/ir"
	"github.com/spf13/cobra"
)

func newCfgCmd() *cobra.Command {
	var (
		programPath string
		dot         bool
	)
	cmd := &cobra.Command{
		Use:   "cfg --program program.yaml Class.method(desc)...",
		Short: "Print the control flow graph of methods",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCfg(cmd.OutOrStdout(), programPath, args, dot)
		},
	}
	cmd.Flags().StringVar(&programPath, "program", "", "program file")
	cmd.Flags().BoolVar(&dot, "dot", false, "print the graphs in the dot format")
	_ = cmd.MarkFlagRequired("program")
	return cmd
}

func runCfg(out io.Writer, programPath string, methods []string, dot bool) error {
	db, err := classdb.Load(programPath)
	if err != nil {
		return err
	}
	cache := ir.NewCache(db, hierarchy.New(db))
	for _, s := range methods {
		ref, err := bytecode.ParseMethodRef(s)
		if err != nil {
			return err
		}
		m, err := cache.Get(ref)
		if err != nil {
			return fmt.Errorf("could not build %s: %w", ref, err)
		}
		if dot {
			err = m.WriteDot(out)
		} else {
			err = m.WriteText(out)
		}
		if err != nil {
			return err
		}
	}
	return nil
}
