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

package ir

import (
	"context"
	"fmt"
	"sync"

	"github.com/awslabs/ar-jvm-tools/analysis/bytecode"
	"golang.org/x/sync/errgroup"
)

type cached struct {
	once   sync.Once
	method *Method
	err    error
}

// Cache builds the control flow graphs of the methods of a database on demand, once per method. It is safe for
// concurrent use.
type Cache struct {
	db    bytecode.Database
	types TypeOracle
	mu    sync.Mutex
	built map[bytecode.MethodRef]*cached
}

// NewCache returns a cache of the methods of db, matching exception handlers with types
func NewCache(db bytecode.Database, types TypeOracle) *Cache {
	return &Cache{db: db, types: types, built: map[bytecode.MethodRef]*cached{}}
}

// Get returns the graph of the method declared exactly at ref. The error wraps ErrMalformedBytecode, ErrNoBody, or
// the database's errors.
func (c *Cache) Get(ref bytecode.MethodRef) (*Method, error) {
	c.mu.Lock()
	e, ok := c.built[ref]
	if !ok {
		e = &cached{}
		c.built[ref] = e
	}
	c.mu.Unlock()
	e.once.Do(func() {
		body, err := c.db.ResolveMethodBody(ref.Class, ref.Signature())
		if err != nil {
			e.err = err
			return
		}
		e.method, e.err = Build(body, c.types)
	})
	return e.method, e.err
}

// Prebuild builds the methods in refs with at most workers goroutines. Methods that fail to build are not an error
// of Prebuild; their errors are returned by Get and Failures. Prebuild stops early when ctx is done.
func (c *Cache) Prebuild(ctx context.Context, refs []bytecode.MethodRef, workers int) error {
	g, gctx := errgroup.WithContext(ctx)
	if workers > 0 {
		g.SetLimit(workers)
	}
	for _, ref := range refs {
		ref := ref
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			_, _ = c.Get(ref)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return fmt.Errorf("prebuilding methods: %w", err)
	}
	return ctx.Err()
}

// Failures returns the methods that could not be built and their errors
func (c *Cache) Failures() map[bytecode.MethodRef]error {
	c.mu.Lock()
	defer c.mu.Unlock()
	res := map[bytecode.MethodRef]error{}
	for ref, e := range c.built {
		if e.method == nil && e.err != nil {
			res[ref] = e.err
		}
	}
	return res
}

// Size returns the number of methods requested so far
func (c *Cache) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.built)
}
