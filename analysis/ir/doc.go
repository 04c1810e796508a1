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

// Package ir lowers JVM method bodies to control flow graphs of three-address statements.
//
// The operand stack is simulated to name every intermediate value: loads push the local itself, and every other
// value pushed on the stack is assigned to a temporary named after its depth (%0, %1, ...). A local is copied
// before being overwritten while the stack still refers to it, and the stack is stored to its canonical
// temporaries at the end of each basic block, so that predecessors of a block agree on the names of its entry
// stack. Temporaries introduced by these copies are named $0, $1, ...
//
// The graph has one node per statement. Exception edges go from every statement that may throw to the handlers
// that may catch it, following the exception table in order, and to the synthetic exit statement when no handler
// definitely catches the exception. Resource scopes (try-with-resources blocks) are lowered to an explicit call to
// close on normal exits, and to a catch-all handler closing the resource and rethrowing.
package ir
