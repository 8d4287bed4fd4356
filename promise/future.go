// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package promise

import (
	"context"
	"sync"
)

// channelFuture is the Future shared by the built-in libraries.
type channelFuture struct {
	done  chan struct{}
	once  sync.Once
	value interface{}
	err   error
}

func newChannelFuture() *channelFuture {
	return &channelFuture{done: make(chan struct{})}
}

func settled(value interface{}, err error) *channelFuture {
	f := newChannelFuture()
	f.settle(value, err)
	return f
}

func (f *channelFuture) settle(value interface{}, err error) {
	f.once.Do(func() {
		f.value, f.err = value, err
		close(f.done)
	})
}

func (f *channelFuture) Done() <-chan struct{} { return f.done }

func (f *channelFuture) Await(ctx context.Context) (interface{}, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	// prefer a settled value over an expired context
	select {
	case <-f.done:
		return f.value, f.err
	default:
	}
	select {
	case <-f.done:
		return f.value, f.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
