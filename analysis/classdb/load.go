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

package classdb

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/vmihailenco/msgpack/v5"
	"gopkg.in/yaml.v3"
)

// Format is the encoding of a program file
type Format int

const (
	// FormatYAML is the human-readable format used for test programs
	FormatYAML Format = iota
	// FormatMsgpack is the binary format, faster to load
	FormatMsgpack
)

// FormatOf returns the format of a file from its extension
func FormatOf(filename string) (Format, error) {
	switch filepath.Ext(filename) {
	case ".yaml", ".yml":
		return FormatYAML, nil
	case ".msgpack", ".mp":
		return FormatMsgpack, nil
	}
	return 0, fmt.Errorf("unknown program file extension for %s (expected .yaml, .yml, .msgpack or .mp)", filename)
}

// Decode reads a program from r
func Decode(r io.Reader, format Format) (*Program, error) {
	p := &Program{}
	var err error
	switch format {
	case FormatYAML:
		dec := yaml.NewDecoder(r)
		dec.KnownFields(true)
		err = dec.Decode(p)
	case FormatMsgpack:
		err = msgpack.NewDecoder(r).Decode(p)
	default:
		err = fmt.Errorf("unknown format %d", format)
	}
	if err != nil {
		return nil, fmt.Errorf("could not decode program: %w", err)
	}
	return p, nil
}

// Encode writes the program to w
func Encode(w io.Writer, p *Program, format Format) error {
	switch format {
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(p); err != nil {
			return err
		}
		return enc.Close()
	case FormatMsgpack:
		return msgpack.NewEncoder(w).Encode(p)
	}
	return fmt.Errorf("unknown format %d", format)
}

// ReadProgram reads a program file, in the format given by its extension
func ReadProgram(filename string) (*Program, error) {
	format, err := FormatOf(filename)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("could not open program file: %w", err)
	}
	defer f.Close()
	p, err := Decode(bufio.NewReader(f), format)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", filename, err)
	}
	return p, nil
}

// WriteProgram writes a program file, in the format given by its extension
func WriteProgram(filename string, p *Program) error {
	format, err := FormatOf(filename)
	if err != nil {
		return err
	}
	f, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("could not create program file: %w", err)
	}
	w := bufio.NewWriter(f)
	if err := Encode(w, p, format); err != nil {
		f.Close()
		return fmt.Errorf("could not encode program: %w", err)
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// Load reads a program file and builds its database
func Load(filename string) (*DB, error) {
	p, err := ReadProgram(filename)
	if err != nil {
		return nil, err
	}
	db, err := New(p)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", filename, err)
	}
	return db, nil
}
