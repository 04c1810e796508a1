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
)

// Kind is the computational kind of a JVM value
type Kind uint8

// Value kinds
const (
	KindVoid Kind = iota
	KindInt
	KindLong
	KindFloat
	KindDouble
	KindReference
)

// Category returns 2 for values that take two slots (long and double), 1 otherwise
func (k Kind) Category() int {
	if k == KindLong || k == KindDouble {
		return 2
	}
	return 1
}

func (k Kind) String() string {
	switch k {
	case KindVoid:
		return "void"
	case KindInt:
		return "int"
	case KindLong:
		return "long"
	case KindFloat:
		return "float"
	case KindDouble:
		return "double"
	default:
		return "reference"
	}
}

// KindOf returns the kind of a field type descriptor. Booleans, bytes, chars and shorts are ints.
func KindOf(desc string) Kind {
	if desc == "" {
		return KindReference
	}
	switch desc[0] {
	case 'V':
		return KindVoid
	case 'Z', 'B', 'C', 'S', 'I':
		return KindInt
	case 'J':
		return KindLong
	case 'F':
		return KindFloat
	case 'D':
		return KindDouble
	}
	return KindReference
}

// ClassOf returns the class named by a reference descriptor: java/lang/String for Ljava/lang/String;. Array
// descriptors are returned as is. The empty string is returned for primitive types.
func ClassOf(desc string) string {
	if strings.HasPrefix(desc, "L") && strings.HasSuffix(desc, ";") {
		return desc[1 : len(desc)-1]
	}
	if strings.HasPrefix(desc, "[") {
		return desc
	}
	return ""
}

// DescriptorOf returns the descriptor of a class name as it appears in instruction operands: array types are
// already descriptors, other classes are wrapped in L...;
func DescriptorOf(class string) string {
	if strings.HasPrefix(class, "[") {
		return class
	}
	return "L" + class + ";"
}

// MethodDescriptor is a parsed method descriptor
type MethodDescriptor struct {
	Params []string
	Return string
}

// ParseMethodDescriptor parses a method descriptor like (ILjava/lang/String;)V
func ParseMethodDescriptor(desc string) (MethodDescriptor, error) {
	var md MethodDescriptor
	if len(desc) == 0 || desc[0] != '(' {
		return md, fmt.Errorf("method descriptor %q does not start with '('", desc)
	}
	offset := 1
	for offset < len(desc) && desc[offset] != ')' {
		param, err := parseFieldType(desc, &offset)
		if err != nil {
			return md, fmt.Errorf("method descriptor %q: %w", desc, err)
		}
		if param == "V" {
			return md, fmt.Errorf("method descriptor %q: void parameter", desc)
		}
		md.Params = append(md.Params, param)
	}
	if offset >= len(desc) {
		return md, fmt.Errorf("method descriptor %q is missing ')'", desc)
	}
	offset++
	ret, err := parseFieldType(desc, &offset)
	if err != nil {
		return md, fmt.Errorf("method descriptor %q: %w", desc, err)
	}
	if offset != len(desc) {
		return md, fmt.Errorf("method descriptor %q has trailing characters", desc)
	}
	md.Return = ret
	return md, nil
}

// parseFieldType returns the type descriptor starting at offset.
// offset will be modified so that it is one byte beyond the end of the parsed string.
func parseFieldType(sig string, offset *int) (string, error) {
	if *offset >= len(sig) {
		return "", fmt.Errorf("unexpected end of descriptor")
	}
	start := *offset
	r := sig[*offset]
	*offset++
	switch r {
	case 'V', 'Z', 'B', 'C', 'S', 'I', 'J', 'F', 'D':
		return sig[start:*offset], nil
	case 'L':
		for *offset < len(sig) {
			r := sig[*offset]
			*offset++
			if r == ';' {
				if *offset-start == 2 {
					return "", fmt.Errorf("empty class name")
				}
				return sig[start:*offset], nil
			}
		}
		return "", fmt.Errorf("fully qualified class missing terminating ';'")
	case '[':
		el, err := parseFieldType(sig, offset)
		if err != nil {
			return "", err
		}
		if el == "V" {
			return "", fmt.Errorf("array of void")
		}
		return sig[start:*offset], nil
	default:
		return "", fmt.Errorf("unknown type tag '%c'", r)
	}
}

// ArgSlots returns the number of local variable slots taken by the parameters, not including the receiver
func (md MethodDescriptor) ArgSlots() int {
	n := 0
	for _, p := range md.Params {
		n += KindOf(p).Category()
	}
	return n
}
