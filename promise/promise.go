// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

// Package promise holds the asynchronous primitive used by every suspending cursor operation and
// the process-wide registry that selects which implementation is active.
//
// A Library constructs Futures. Cursors never construct a Future directly; they ask the active
// Library (see Get and Set) or the Library injected through cursor options. Replacing the active
// Library changes the primitive returned by every later suspension without touching call sites.
package promise // import "github.com/ikmak/mongo-async-cursor/promise"

import (
	"context"
)

// Task is the body of a suspension. The value it returns settles the Future built around it.
type Task func(ctx context.Context) (interface{}, error)

// Future is a handle to a value that may not be available yet.
type Future interface {
	// Await blocks until the Future settles or ctx is done. A ctx expiry does not cancel the
	// underlying task; it only stops waiting for it.
	Await(ctx context.Context) (interface{}, error)

	// Done is closed once the Future has settled.
	Done() <-chan struct{}
}

// Library constructs Futures.
type Library interface {
	// Name identifies the implementation, mostly for logging.
	Name() string

	// Go starts task and returns a Future settled with its outcome.
	Go(ctx context.Context, task Task) Future

	// Settled returns a Future that is already settled with value and err.
	Settled(value interface{}, err error) Future
}

// Of is a typed view over a Future.
type Of[T any] struct {
	Future
}

// Typed wraps f so that Await returns a T.
func Typed[T any](f Future) Of[T] {
	return Of[T]{Future: f}
}

// Await waits for the Future and asserts its value to T. A nil value yields the zero T.
func (o Of[T]) Await(ctx context.Context) (T, error) {
	var zero T
	v, err := o.Future.Await(ctx)
	if err != nil {
		return zero, err
	}
	if v == nil {
		return zero, nil
	}
	t, ok := v.(T)
	if !ok {
		return zero, ErrUnexpectedValue{Value: v}
	}
	return t, nil
}

// ErrUnexpectedValue is returned by Of.Await when a Library settles a Future with a value of a
// different type than the one requested.
type ErrUnexpectedValue struct {
	Value interface{}
}

func (e ErrUnexpectedValue) Error() string {
	return "promise: future settled with unexpected value type"
}
