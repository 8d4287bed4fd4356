// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package promise

import (
	"context"
	"fmt"
)

// Goroutine is the default Library. Each task runs on its own goroutine.
var Goroutine Library = goroutineLibrary{}

// Inline runs every task synchronously inside Go, so the returned Future is always settled.
var Inline Library = inlineLibrary{}

type goroutineLibrary struct{}

func (goroutineLibrary) Name() string { return "goroutine" }

func (goroutineLibrary) Go(ctx context.Context, task Task) Future {
	f := newChannelFuture()
	go func() {
		v, err := run(ctx, task)
		f.settle(v, err)
	}()
	return f
}

func (goroutineLibrary) Settled(value interface{}, err error) Future { return settled(value, err) }

type inlineLibrary struct{}

func (inlineLibrary) Name() string { return "inline" }

func (inlineLibrary) Go(ctx context.Context, task Task) Future {
	return settled(run(ctx, task))
}

func (inlineLibrary) Settled(value interface{}, err error) Future { return settled(value, err) }

// run executes task and converts a panic into an error so a broken task cannot leave a Future
// unsettled.
func run(ctx context.Context, task Task) (v interface{}, err error) {
	defer func() {
		if r := recover(); r != nil {
			v, err = nil, fmt.Errorf("promise: task panicked: %v", r)
		}
	}()
	if ctx == nil {
		ctx = context.Background()
	}
	return task(ctx)
}
