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

package bytecode

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// ModBits represents the access flags of a class, method or field.
type ModBits int

// Access flags
const (
	ModPublic       = ModBits(0x0001)
	ModPrivate      = ModBits(0x0002)
	ModProtected    = ModBits(0x0004)
	ModStatic       = ModBits(0x0008)
	ModFinal        = ModBits(0x0010)
	ModSynchronized = ModBits(0x0020)
	ModNative       = ModBits(0x0100)
	ModInterface    = ModBits(0x0200)
	ModAbstract     = ModBits(0x0400)
	ModSynthetic    = ModBits(0x1000)
)

var modNames = []struct {
	bit  ModBits
	name string
}{
	{ModPublic, "public"},
	{ModPrivate, "private"},
	{ModProtected, "protected"},
	{ModStatic, "static"},
	{ModFinal, "final"},
	{ModSynchronized, "synchronized"},
	{ModNative, "native"},
	{ModInterface, "interface"},
	{ModAbstract, "abstract"},
	{ModSynthetic, "synthetic"},
}

func (m ModBits) String() string {
	var parts []string
	for _, mn := range modNames {
		if m&mn.bit != 0 {
			parts = append(parts, mn.name)
		}
	}
	return strings.Join(parts, " ")
}

// ParseModBits returns the flags named in names
func ParseModBits(names []string) (ModBits, error) {
	var m ModBits
	for _, name := range names {
		found := false
		for _, mn := range modNames {
			if mn.name == name {
				m |= mn.bit
				found = true
				break
			}
		}
		if !found {
			return 0, fmt.Errorf("unknown modifier %q", name)
		}
	}
	return m, nil
}

// UnmarshalYAML reads the flags from a list of names
func (m *ModBits) UnmarshalYAML(value *yaml.Node) error {
	var names []string
	if err := value.Decode(&names); err != nil {
		return err
	}
	parsed, err := ParseModBits(names)
	if err != nil {
		return fmt.Errorf("line %d: %w", value.Line, err)
	}
	*m = parsed
	return nil
}

// MarshalYAML writes the flags as a list of names
func (m ModBits) MarshalYAML() (interface{}, error) {
	if m == 0 {
		return []string{}, nil
	}
	return strings.Split(m.String(), " "), nil
}

func (m ModBits) Public() bool    { return m&ModPublic != 0 }
func (m ModBits) Private() bool   { return m&ModPrivate != 0 }
func (m ModBits) Static() bool    { return m&ModStatic != 0 }
func (m ModBits) Final() bool     { return m&ModFinal != 0 }
func (m ModBits) Native() bool    { return m&ModNative != 0 }
func (m ModBits) Interface() bool { return m&ModInterface != 0 }
func (m ModBits) Abstract() bool  { return m&ModAbstract != 0 }
