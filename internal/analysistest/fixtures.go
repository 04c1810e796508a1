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

package analysistest

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/awslabs/ar-jvm-tools/analysis/config"
)

func testdataDir(sub string) string {
	return filepath.Join(filepath.Dir(ProgramDir()), sub)
}

// LoadConfig loads the config file testdata/configs/name.yaml, failing the test on errors
func LoadConfig(t *testing.T, name string) *config.Config {
	t.Helper()
	cfg, err := config.Load(filepath.Join(testdataDir("configs"), name+".yaml"))
	if err != nil {
		t.Fatalf("error loading config %s: %v", name, err)
	}
	return cfg
}

// CheckGolden compares lines with the golden file testdata/golden/name.golden, ignoring trailing blank lines
func CheckGolden(t *testing.T, name string, lines []string) {
	t.Helper()
	b, err := os.ReadFile(filepath.Join(testdataDir("golden"), name+".golden"))
	if err != nil {
		t.Fatalf("error reading golden file %s: %v", name, err)
	}
	want := strings.Split(strings.TrimRight(string(b), "\n"), "\n")
	if len(want) != len(lines) {
		t.Errorf("golden %s: expected %d lines, got %d:\n%s", name, len(want), len(lines), strings.Join(lines, "\n"))
		return
	}
	for i := range want {
		if want[i] != lines[i] {
			t.Errorf("golden %s, line %d: expected %q, got %q", name, i+1, want[i], lines[i])
		}
	}
}
