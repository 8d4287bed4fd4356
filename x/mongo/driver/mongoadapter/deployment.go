// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

// Package mongoadapter implements driver.Deployment on top of a connected mongo.Client, so cursors can walk
// results held by a real server.
package mongoadapter // import "github.com/ikmak/mongo-async-cursor/x/mongo/driver/mongoadapter"

import (
	"context"
	"sync"

	"github.com/ikmak/mongo-async-cursor/x/mongo/driver"
	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/x/bsonx/bsoncore"
)

// Deployment runs cursor commands through a mongo.Client. Each open server cursor is held as a *mongo.Cursor
// keyed by its server ID until it is exhausted or released.
type Deployment struct {
	client *mongo.Client
	owned  bool

	mu      sync.Mutex
	cursors map[driver.CursorID]*heldCursor
}

// heldCursor is a *mongo.Cursor with its in-flight state. The flags are guarded by Deployment.mu; cur is only
// touched by the goroutine that set fetching, or by whoever removed an idle entry from the map.
type heldCursor struct {
	cur      *mongo.Cursor
	fetching bool
	released bool
}

var _ driver.Deployment = (*Deployment)(nil)

// New returns a Deployment over client. The caller keeps ownership of client.
func New(client *mongo.Client) *Deployment {
	return &Deployment{client: client, cursors: make(map[driver.CursorID]*heldCursor)}
}

// Connect connects to the deployment at uri. Disconnect must be called to release the connection pool.
func Connect(ctx context.Context, uri string) (*Deployment, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, errors.Wrapf(err, "connecting to %s", uri)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, translateError(err)
	}

	d := New(client)
	d.owned = true
	return d, nil
}

// Disconnect closes every cursor still held and, if the Deployment created the client, disconnects it. Cursors
// with a getMore in flight are closed when it returns.
func (d *Deployment) Disconnect(ctx context.Context) error {
	d.mu.Lock()
	idle := make([]*mongo.Cursor, 0, len(d.cursors))
	for _, h := range d.cursors {
		if h.fetching {
			h.released = true
			continue
		}
		idle = append(idle, h.cur)
	}
	d.cursors = make(map[driver.CursorID]*heldCursor)
	d.mu.Unlock()

	for _, cur := range idle {
		_ = cur.Close(ctx)
	}
	if !d.owned {
		return nil
	}
	return d.client.Disconnect(ctx)
}

// Open implements driver.Deployment.
func (d *Deployment) Open(ctx context.Context, cmd driver.Command, batchSize int32) (driver.CursorID, driver.Batch, error) {
	cur, err := d.run(ctx, cmd, batchSize)
	if err != nil {
		return 0, driver.Batch{}, translateError(err)
	}

	docs, err := drainBatch(ctx, cur, nil)
	if err != nil {
		_ = cur.Close(ctx)
		return 0, driver.Batch{}, translateError(err)
	}

	id := driver.CursorID(cur.ID())
	if id == 0 {
		_ = cur.Close(ctx)
		return 0, driver.Batch{Documents: docs, Exhausted: true}, nil
	}

	d.mu.Lock()
	d.cursors[id] = &heldCursor{cur: cur}
	d.mu.Unlock()
	return id, driver.Batch{Documents: docs}, nil
}

// FetchBatch implements driver.Deployment. It issues at most one getMore. If the cursor is released while the
// getMore is in flight, the cursor is closed once the getMore returns and the batch is dropped.
func (d *Deployment) FetchBatch(ctx context.Context, id driver.CursorID, n int32) (driver.Batch, error) {
	h, err := d.acquire(id)
	if err != nil {
		return driver.Batch{}, err
	}

	batch, err := getMore(ctx, h.cur, n)
	drop, released := d.finish(id, h, err == nil && batch.Exhausted)
	if drop {
		_ = h.cur.Close(context.WithoutCancel(ctx))
	}
	if released {
		return driver.Batch{}, driver.ErrCursorNotFound
	}
	return batch, err
}

// Release implements driver.Deployment. It may run while a FetchBatch for the same cursor is in flight, in which
// case the cursor is closed by that FetchBatch when its getMore returns.
func (d *Deployment) Release(ctx context.Context, id driver.CursorID) error {
	d.mu.Lock()
	h, ok := d.cursors[id]
	delete(d.cursors, id)
	if ok && h.fetching {
		h.released = true
		ok = false
	}
	d.mu.Unlock()

	if !ok {
		return nil
	}
	return translateError(h.cur.Close(ctx))
}

// acquire marks the cursor identified by id as having a getMore in flight.
func (d *Deployment) acquire(id driver.CursorID) (*heldCursor, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	h, ok := d.cursors[id]
	if !ok {
		return nil, driver.ErrCursorNotFound
	}
	if h.fetching {
		return nil, errors.Errorf("cursor %d already has a getMore in flight", id)
	}
	h.fetching = true
	return h, nil
}

// finish clears the in-flight mark. drop reports whether the caller must close the cursor, either because the
// server exhausted it or because it was released during the getMore.
func (d *Deployment) finish(id driver.CursorID, h *heldCursor, exhausted bool) (drop, released bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	h.fetching = false
	if h.released {
		return true, true
	}
	if exhausted {
		delete(d.cursors, id)
	}
	return exhausted, false
}

func getMore(ctx context.Context, cur *mongo.Cursor, n int32) (driver.Batch, error) {
	if n > 0 {
		cur.SetBatchSize(n)
	}

	var docs []bsoncore.Document
	if cur.TryNext(ctx) {
		var err error
		if docs, err = drainBatch(ctx, cur, copyDocument(cur.Current)); err != nil {
			return driver.Batch{}, translateError(err)
		}
	} else if err := cur.Err(); err != nil {
		return driver.Batch{}, translateError(err)
	}
	return driver.Batch{Documents: docs, Exhausted: cur.ID() == 0}, nil
}

func (d *Deployment) run(ctx context.Context, cmd driver.Command, batchSize int32) (*mongo.Cursor, error) {
	db := d.client.Database(cmd.Database)

	switch cmd.Kind {
	case driver.KindFind:
		opts := options.Find()
		if batchSize > 0 {
			opts.SetBatchSize(batchSize)
		}
		if cmd.Limit > 0 {
			opts.SetLimit(int64(cmd.Limit))
		}
		return db.Collection(cmd.Collection).Find(ctx, filterOf(cmd.Filter), opts)
	case driver.KindAggregate:
		opts := options.Aggregate()
		if batchSize > 0 {
			opts.SetBatchSize(batchSize)
		}
		pipeline := make(bson.A, 0, len(cmd.Pipeline))
		for _, stage := range cmd.Pipeline {
			pipeline = append(pipeline, bson.Raw(stage))
		}
		return db.Collection(cmd.Collection).Aggregate(ctx, pipeline, opts)
	case driver.KindListIndexes:
		opts := options.ListIndexes()
		if batchSize > 0 {
			opts.SetBatchSize(batchSize)
		}
		return db.Collection(cmd.Collection).Indexes().List(ctx, opts)
	case driver.KindListCollections:
		opts := options.ListCollections()
		if batchSize > 0 {
			opts.SetBatchSize(batchSize)
		}
		return db.ListCollections(ctx, filterOf(cmd.Filter), opts)
	default:
		return nil, errors.Errorf("unsupported cursor command %q", cmd.Kind)
	}
}

func filterOf(filter bsoncore.Document) interface{} {
	if len(filter) == 0 {
		return bson.D{}
	}
	return bson.Raw(filter)
}

// drainBatch appends the documents left in the cursor's current batch to docs without issuing a getMore.
func drainBatch(ctx context.Context, cur *mongo.Cursor, first bsoncore.Document) ([]bsoncore.Document, error) {
	docs := make([]bsoncore.Document, 0, cur.RemainingBatchLength()+1)
	if first != nil {
		docs = append(docs, first)
	}
	for cur.RemainingBatchLength() > 0 {
		if !cur.Next(ctx) {
			return nil, cur.Err()
		}
		docs = append(docs, copyDocument(cur.Current))
	}
	return docs, nil
}

// copyDocument detaches doc from the cursor's batch buffer.
func copyDocument(doc bson.Raw) bsoncore.Document {
	return append(bsoncore.Document(nil), doc...)
}

func translateError(err error) error {
	if err == nil {
		return nil
	}
	if mongo.IsNetworkError(err) || mongo.IsTimeout(err) {
		return driver.NetworkError{Wrapped: err}
	}

	var ce mongo.CommandError
	if errors.As(err, &ce) {
		return driver.ServerError{Code: ce.Code, Name: ce.Name, Message: ce.Message}
	}
	return err
}
