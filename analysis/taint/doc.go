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
Package taint implements the taint analysis of JVM bytecode on top of the tabulation solver of the dataflow package.
The main entry point of the analysis is the [Analyze] function, which runs the taint problem of a [RuleSet] from a set
of entry methods and returns a [Result] containing all the taint flows discovered with their traces.
[AnalyzeConfig] runs every taint tracking problem of a configuration concurrently.

Rules are matched at calls and at field accesses. Calls matched by a source, sanitizer or pass-through rule, and
calls to filtered methods, are not analyzed: their flows are given by the rules. Sanitizers take precedence over
pass-through rules for the same access path.
*/
package taint
