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

package config

import (
	"fmt"
	"regexp"
	"strings"
)

// A CodeIdentifier identifies a code element that is a source, sink, sanitizer, etc..
// A code identifier can be identified from its class, method, descriptor or field, or any combination of those.
// Classes use the internal JVM form (java/lang/String). Class, method and field are treated as regexes when they
// compile as ones; descriptors are matched literally.
type CodeIdentifier struct {
	Class      string `yaml:"class"`
	Method     string `yaml:"method"`
	Descriptor string `yaml:"descriptor"`
	Field      string `yaml:"field"`
	// This will not be part of the yaml config
	computedRegexs *CodeIdentifierRegex
}

// CodeIdentifierRegex holds the compiled regexes of a CodeIdentifier
type CodeIdentifierRegex struct {
	classRegex      *regexp.Regexp
	methodRegex     *regexp.Regexp
	descriptorRegex *regexp.Regexp
	fieldRegex      *regexp.Regexp
}

// CompileRegexes compiles the strings in the code identifier into regexes. It compiles all identifiers into regexes
// or none. Regexes are anchored: "get" does not match "getName".
func CompileRegexes(cid CodeIdentifier) CodeIdentifier {
	compile := func(s string) (*regexp.Regexp, error) { return regexp.Compile("^(?:" + s + ")$") }
	classRegex, err := compile(cid.Class)
	if err != nil {
		return cid
	}
	methodRegex, err := compile(cid.Method)
	if err != nil {
		return cid
	}
	descriptorRegex, err := compile(regexp.QuoteMeta(cid.Descriptor))
	if err != nil {
		return cid
	}
	fieldRegex, err := compile(cid.Field)
	if err != nil {
		return cid
	}
	cid.computedRegexs = &CodeIdentifierRegex{
		classRegex,
		methodRegex,
		descriptorRegex,
		fieldRegex,
	}
	return cid
}

// equalOnNonEmptyFields returns true if each of the receiver's fields are either equal to the corresponding
// argument's field, or the argument's field is empty
func (cid *CodeIdentifier) equalOnNonEmptyFields(cidRef CodeIdentifier) bool {
	if cidRef.computedRegexs != nil {
		return (cidRef.Class == "" || cidRef.computedRegexs.classRegex.MatchString(cid.Class)) &&
			(cidRef.Method == "" || cidRef.computedRegexs.methodRegex.MatchString(cid.Method)) &&
			(cidRef.Descriptor == "" || cidRef.computedRegexs.descriptorRegex.MatchString(cid.Descriptor)) &&
			(cidRef.Field == "" || cidRef.computedRegexs.fieldRegex.MatchString(cid.Field))
	}
	return (cidRef.Class == "" || cid.Class == cidRef.Class) &&
		(cidRef.Method == "" || cid.Method == cidRef.Method) &&
		(cidRef.Descriptor == "" || cid.Descriptor == cidRef.Descriptor) &&
		(cidRef.Field == "" || cid.Field == cidRef.Field)
}

// MatchedBy returns true if the rule identifier ref matches cid: every non-empty field of ref matches the
// corresponding field of cid. A method rule never matches a field access and vice versa.
func (cid CodeIdentifier) MatchedBy(ref CodeIdentifier) bool {
	if (ref.Field == "") != (cid.Field == "") {
		return false
	}
	return cid.equalOnNonEmptyFields(ref)
}

func (cid CodeIdentifier) String() string {
	var parts []string
	if cid.Class != "" {
		parts = append(parts, "class:"+cid.Class)
	}
	if cid.Method != "" {
		parts = append(parts, "method:"+cid.Method)
	}
	if cid.Descriptor != "" {
		parts = append(parts, "descriptor:"+cid.Descriptor)
	}
	if cid.Field != "" {
		parts = append(parts, "field:"+cid.Field)
	}
	return fmt.Sprintf("{%s}", strings.Join(parts, " "))
}

// ExistsCid is true if there is some x in a such that f(x) is true.
func ExistsCid(a []CodeIdentifier, f func(identifier CodeIdentifier) bool) bool {
	for _, x := range a {
		if f(x) {
			return true
		}
	}
	return false
}
