// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package promise

import (
	"context"
	"sync/atomic"
)

// Counting wraps a Library and counts the Futures it constructs and the Awaits performed on them.
// Futures it returns are of type *CountedFuture.
type Counting struct {
	Base Library

	created int64
	awaited int64
}

// NewCounting returns a Counting library wrapping base. A nil base wraps Goroutine.
func NewCounting(base Library) *Counting {
	if base == nil {
		base = Goroutine
	}
	return &Counting{Base: base}
}

// Name implements Library.
func (c *Counting) Name() string { return "counting(" + c.Base.Name() + ")" }

// Go implements Library.
func (c *Counting) Go(ctx context.Context, task Task) Future {
	atomic.AddInt64(&c.created, 1)
	return &CountedFuture{Future: c.Base.Go(ctx, task), owner: c}
}

// Settled implements Library.
func (c *Counting) Settled(value interface{}, err error) Future {
	atomic.AddInt64(&c.created, 1)
	return &CountedFuture{Future: c.Base.Settled(value, err), owner: c}
}

// Created returns the number of Futures constructed so far.
func (c *Counting) Created() int64 { return atomic.LoadInt64(&c.created) }

// Awaited returns the number of Await calls made on Futures of this library.
func (c *Counting) Awaited() int64 { return atomic.LoadInt64(&c.awaited) }

// CountedFuture is the Future returned by Counting.
type CountedFuture struct {
	Future
	owner *Counting
}

// Await implements Future.
func (f *CountedFuture) Await(ctx context.Context) (interface{}, error) {
	atomic.AddInt64(&f.owner.awaited, 1)
	return f.Future.Await(ctx)
}

// Library returns the Counting library that built f.
func (f *CountedFuture) Library() *Counting { return f.owner }
