// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package options

import (
	"github.com/ikmak/mongo-async-cursor/event"
	"github.com/ikmak/mongo-async-cursor/promise"
)

// CursorOptions represent all possible options for cursors opened by Find, Aggregate, ListIndexes and
// ListCollections.
type CursorOptions struct {
	BatchSize      *int32               // Specifies the number of documents to request in every batch.
	Limit          *int32               // Sets a limit on the number of results to return. Applies to Find.
	PromiseLibrary promise.Library      // Constructs every suspension of the cursor. Nil uses the process-wide library.
	Monitor        *event.CursorMonitor // Receives fetch and release events.
}

// Cursor creates a new CursorOptions instance.
func Cursor() *CursorOptions {
	return &CursorOptions{}
}

// SetBatchSize sets the number of documents to request in each batch. Zero lets the server decide.
func (c *CursorOptions) SetBatchSize(i int32) *CursorOptions {
	c.BatchSize = &i
	return c
}

// SetLimit specifies a limit on the number of results.
func (c *CursorOptions) SetLimit(i int32) *CursorOptions {
	c.Limit = &i
	return c
}

// SetPromiseLibrary pins the cursor to lib instead of consulting the process-wide registry at each suspension.
func (c *CursorOptions) SetPromiseLibrary(lib promise.Library) *CursorOptions {
	c.PromiseLibrary = lib
	return c
}

// SetMonitor specifies a monitor for cursor events.
func (c *CursorOptions) SetMonitor(m *event.CursorMonitor) *CursorOptions {
	c.Monitor = m
	return c
}

// MergeCursorOptions combines the given *CursorOptions into a single *CursorOptions in a last one wins fashion.
func MergeCursorOptions(opts ...*CursorOptions) *CursorOptions {
	co := Cursor()
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if opt.BatchSize != nil {
			co.BatchSize = opt.BatchSize
		}
		if opt.Limit != nil {
			co.Limit = opt.Limit
		}
		if opt.PromiseLibrary != nil {
			co.PromiseLibrary = opt.PromiseLibrary
		}
		if opt.Monitor != nil {
			co.Monitor = opt.Monitor
		}
	}

	return co
}
