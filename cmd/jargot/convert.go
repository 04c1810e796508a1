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

	"github.com/awslabs/ar-jvm-tools/analysis/classdb"
	"github.com/spf13/cobra"
)

func newConvertCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "convert in.yaml out.msgpack",
		Short: "Re-encode a program file in the format given by the extension of the output",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConvert(args[0], args[1])
		},
	}
}

func runConvert(in, out string) error {
	p, err := classdb.ReadProgram(in)
	if err != nil {
		return err
	}
	// the database rejects inconsistent programs
	if _, err := classdb.New(p); err != nil {
		return fmt.Errorf("%s: %w", in, err)
	}
	return classdb.WriteProgram(out, p)
}
