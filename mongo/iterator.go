// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package mongo

import (
	"context"
	"iter"
	"sync/atomic"

	"github.com/ikmak/mongo-async-cursor/promise"
	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/bson"
)

// Step is one result of Iterator.Advance. Value is nil whenever Done is true.
type Step struct {
	Value bson.Raw
	Done  bool
}

// Decode unmarshals the produced value into val.
func (s Step) Decode(val interface{}) error {
	if s.Done || s.Value == nil {
		return ErrNoDocuments
	}
	return errors.Wrap(bson.Unmarshal(s.Value, val), "decoding document")
}

// Iterator is the pull-protocol view of a Cursor. It moves forward only and cannot be rewound; once it has
// reported Done it keeps doing so without touching the cursor.
type Iterator struct {
	cursor   *Cursor
	finished atomic.Bool
}

// Iterator returns the cursor's Iterator. Every call returns the same Iterator.
func (c *Cursor) Iterator() *Iterator {
	c.iterOnce.Do(func() {
		c.iter = &Iterator{cursor: c}
	})
	return c.iter
}

// Advance returns a Future for the next step. It is the only suspending operation of the Iterator; All is built on
// it, so draining an Iterator by hand and with a range loop yields the same sequence.
func (it *Iterator) Advance(ctx context.Context) promise.Of[Step] {
	lib := it.cursor.library()
	if it.finished.Load() {
		return promise.Typed[Step](lib.Settled(Step{Done: true}, nil))
	}

	return promise.Typed[Step](it.cursor.next(ctx, lib, func(r Result) interface{} {
		if r.Done {
			it.finished.Store(true)
			return Step{Done: true}
		}
		return Step{Value: r.Document}
	}))
}

// All returns a sequence over the remaining documents for use with a range loop. A failed Advance is yielded as
// the error of the final pair. Stopping the loop early leaves the cursor open.
func (it *Iterator) All(ctx context.Context) iter.Seq2[bson.Raw, error] {
	return func(yield func(bson.Raw, error) bool) {
		for {
			step, err := it.Advance(ctx).Await(ctx)
			if err != nil {
				yield(nil, err)
				return
			}
			if step.Done || !yield(step.Value, nil) {
				return
			}
		}
	}
}
