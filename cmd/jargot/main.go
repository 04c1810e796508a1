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

// Jargot runs the analyses of JVM programs from the command line.
//
// Usage:
//
//	jargot taint --config config.yaml [--program program.yaml] [--metrics out.prom]
//	jargot cfg --program program.yaml [--dot] Class.method(desc)
//	jargot callgraph --program program.yaml --entry Class.method(desc)
//	jargot convert in.yaml out.msgpack
package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

var version = "dev"

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "jargot",
		Short: "Jargot: automated reasoning tools for JVM bytecode",
		Long: `Jargot analyzes programs given as class databases (YAML or msgpack program files).

Commands:
  taint       runs the taint analysis problems of a config file
  cfg         prints the control flow graph of a method
  callgraph   prints the call graph reachable from entry methods
  convert     re-encodes a program file`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newTaintCmd(), newCfgCmd(), newCallgraphCmd(), newConvertCmd())
	return root
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		errExit(err)
	}
}

func errExit(err error) {
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	if hint := hintFor(err.Error()); hint != "" {
		fmt.Fprintf(os.Stderr, "Hint: %s\n", hint)
	}
	os.Exit(2)
}

// hintFor returns a hint for common error messages
func hintFor(msg string) string {
	switch {
	case strings.Contains(msg, "unknown program file extension"):
		return "program files must end with .yaml, .yml, .msgpack or .mp"
	case strings.Contains(msg, "invalid maximum access path depth"):
		return "set max-access-path-depth between 1 and 32 in the options of the config"
	case strings.Contains(msg, "no entry point"):
		return "check the entry-points of the config against the classes of the program"
	case strings.Contains(msg, "analysis incomplete"):
		return "increase path-edge-budget in the options of the config, or set it to 0"
	}
	return ""
}
