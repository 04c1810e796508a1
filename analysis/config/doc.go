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

/*
Package config provides a simple way to manage configuration files.

Use [Load](filename) to load a configuration from a specific filename.

A config file should be in yaml format. The top-level fields can be any of the fields defined in the Config
struct type. The other fields are defined by the types of the fields of [Config] and nested struct types.
For example, a valid config file is as follows:

	options:
	  log-level: 4
	  max-access-path-depth: 3
	  path-edge-budget: 100000

	program: program.yaml

	entry-points:
	  - class: FieldWriteSlice
	    method: main

	taint-tracking-problems:
	  - sources:
	      - class: ExampleWithField
	        field: f
	    sinks:
	      - class: java/io/PrintStream
	        method: println
	        positions: [arg0]

# Identifying code elements

The config uses [CodeIdentifier] to identify specific code entities. For example, sinks and sources are
CodeIdentifiers which identify specific methods in specific classes, or fields. The class, method and field
specifications are seen as regexes if they can be compiled to regexes, otherwise they are strings.

# Positions

Rules refer to the values of a call with positions: "this", "result", "arg0", "arg1", ... or "any-arg". A position
can be followed by a field path, as in "arg0.buffer", to designate a field of the value.
*/
package config
