// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

// Package driver defines the server-facing collaborator contract that cursors are built on. A
// Deployment runs the cursor-creating command, returns batches for an open cursor, and releases
// cursors on the server. Connection handling and wire encoding live behind it.
package driver // import "github.com/ikmak/mongo-async-cursor/x/mongo/driver"

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/x/bsonx/bsoncore"
)

// CursorID identifies a result set held by the server. Zero means the server holds nothing.
type CursorID int64

// Kind is the command that produced a cursor.
type Kind string

// These are the supported cursor-creating commands.
const (
	KindFind            Kind = "find"
	KindAggregate       Kind = "aggregate"
	KindListIndexes     Kind = "listIndexes"
	KindListCollections Kind = "listCollections"
)

// Command describes the operation that opens a cursor.
type Command struct {
	Kind       Kind
	Database   string
	Collection string

	// Filter applies to find and listCollections.
	Filter bsoncore.Document
	// Pipeline applies to aggregate.
	Pipeline []bsoncore.Document
	// Limit caps the number of documents for find. Zero means no limit.
	Limit int32
}

// Namespace returns the "db.collection" form of the command target.
func (c Command) Namespace() string {
	if c.Collection == "" {
		return c.Database
	}
	return fmt.Sprintf("%s.%s", c.Database, c.Collection)
}

// Batch is a group of documents returned by one round trip.
type Batch struct {
	// Documents are in server delivery order.
	Documents []bsoncore.Document
	// Exhausted is true once the server has no further batches for the cursor. The server handle
	// is gone at that point and must not be released again.
	Exhausted bool
}

// Deployment is implemented by types that can open, advance and release server cursors.
// Implementations must be safe for concurrent use by different cursors. For a single cursor at most
// one FetchBatch runs at a time, but Release may run while that FetchBatch is in flight.
type Deployment interface {
	// Open runs cmd and returns the new cursor's ID and its first batch. batchSize is a hint;
	// zero lets the server decide.
	Open(ctx context.Context, cmd Command, batchSize int32) (CursorID, Batch, error)

	// FetchBatch returns up to n documents from the cursor identified by id. n of zero lets the
	// server decide.
	FetchBatch(ctx context.Context, id CursorID, n int32) (Batch, error)

	// Release tells the server to drop the cursor identified by id. A FetchBatch for the same id that
	// is in flight must still return, and may report ErrCursorNotFound.
	Release(ctx context.Context, id CursorID) error
}
