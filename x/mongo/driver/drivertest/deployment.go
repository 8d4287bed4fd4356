// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

// Package drivertest provides an in-memory driver.Deployment for tests and demos.
package drivertest // import "github.com/ikmak/mongo-async-cursor/x/mongo/driver/drivertest"

import (
	"context"
	"sort"
	"sync"

	"github.com/ikmak/mongo-async-cursor/x/mongo/driver"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/x/bsonx/bsoncore"
)

// DefaultBatchSize is the number of documents returned when a request leaves the batch size to the server.
const DefaultBatchSize = 101

// FetchHook runs before every batch is produced, outside of the deployment's lock. cmd is the command name
// ("find", "aggregate", "listIndexes", "listCollections" or "getMore") and id is zero for the opening command.
// A non-nil error fails the request with that error and leaves the server cursor untouched.
type FetchHook func(ctx context.Context, cmd string, id driver.CursorID) error

type collection struct {
	docs    []bsoncore.Document
	indexes []bsoncore.Document
}

type serverCursor struct {
	cmd       driver.Command
	remaining []bsoncore.Document
}

// Deployment is an in-memory driver.Deployment. Server cursors hold a snapshot of their result set taken when
// the cursor is opened.
type Deployment struct {
	// BatchSize is used when a request does not specify one. Zero means DefaultBatchSize.
	BatchSize int32

	mu          sync.Mutex
	databases   map[string]map[string]*collection
	cursors     map[driver.CursorID]*serverCursor
	nextID      driver.CursorID
	hook        FetchHook
	fetchErrs   []error
	releaseErrs []error

	opens, fetches, releases int
}

var _ driver.Deployment = (*Deployment)(nil)

// NewDeployment returns an empty Deployment.
func NewDeployment() *Deployment {
	return &Deployment{
		databases: make(map[string]map[string]*collection),
		cursors:   make(map[driver.CursorID]*serverCursor),
	}
}

// Insert adds documents to db.coll, creating the collection and its _id index if needed. Documents without an
// _id are given an ObjectID.
func (d *Deployment) Insert(db, coll string, docs ...interface{}) error {
	encoded := make([]bsoncore.Document, 0, len(docs))
	for _, doc := range docs {
		raw, err := bson.Marshal(doc)
		if err != nil {
			return err
		}
		withID, err := ensureID(raw)
		if err != nil {
			return err
		}
		encoded = append(encoded, withID)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	c := d.collectionLocked(db, coll)
	c.docs = append(c.docs, encoded...)
	return nil
}

// DeleteMany removes every document of db.coll and returns how many were removed. Open cursors keep their
// snapshot.
func (d *Deployment) DeleteMany(db, coll string) int {
	d.mu.Lock()
	defer d.mu.Unlock()

	c, ok := d.databases[db][coll]
	if !ok {
		return 0
	}
	n := len(c.docs)
	c.docs = nil
	return n
}

// CreateIndex adds an index named name with the given keys to db.coll.
func (d *Deployment) CreateIndex(db, coll, name string, keys bson.D) error {
	keyDoc, err := bson.Marshal(keys)
	if err != nil {
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	c := d.collectionLocked(db, coll)
	c.indexes = append(c.indexes, indexSpec(name, keyDoc))
	return nil
}

// SetFetchHook installs h, replacing any previous hook. A nil h removes it.
func (d *Deployment) SetFetchHook(h FetchHook) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.hook = h
}

// FailNextFetch makes the next Open or FetchBatch call fail with err.
func (d *Deployment) FailNextFetch(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.fetchErrs = append(d.fetchErrs, err)
}

// FailNextRelease makes the next Release call fail with err. The server cursor is kept.
func (d *Deployment) FailNextRelease(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.releaseErrs = append(d.releaseErrs, err)
}

// OpenCount returns the number of Open calls that produced a batch.
func (d *Deployment) OpenCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.opens
}

// FetchCount returns the number of FetchBatch calls that produced a batch.
func (d *Deployment) FetchCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.fetches
}

// ReleaseCount returns the number of successful Release calls.
func (d *Deployment) ReleaseCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.releases
}

// OpenCursors returns the number of cursors the deployment currently holds.
func (d *Deployment) OpenCursors() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.cursors)
}

// Open implements driver.Deployment.
func (d *Deployment) Open(ctx context.Context, cmd driver.Command, batchSize int32) (driver.CursorID, driver.Batch, error) {
	if err := d.before(ctx, string(cmd.Kind), 0); err != nil {
		return 0, driver.Batch{}, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	results, err := d.runLocked(cmd)
	if err != nil {
		return 0, driver.Batch{}, err
	}

	sc := &serverCursor{cmd: cmd, remaining: results}
	batch := d.takeLocked(sc, batchSize)
	d.opens++
	if batch.Exhausted {
		return 0, batch, nil
	}

	d.nextID++
	d.cursors[d.nextID] = sc
	return d.nextID, batch, nil
}

// FetchBatch implements driver.Deployment.
func (d *Deployment) FetchBatch(ctx context.Context, id driver.CursorID, n int32) (driver.Batch, error) {
	if err := d.before(ctx, "getMore", id); err != nil {
		return driver.Batch{}, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	sc, ok := d.cursors[id]
	if !ok {
		return driver.Batch{}, driver.ErrCursorNotFound
	}

	batch := d.takeLocked(sc, n)
	if batch.Exhausted {
		delete(d.cursors, id)
	}
	d.fetches++
	return batch, nil
}

// Release implements driver.Deployment. Releasing an unknown cursor succeeds, as killCursors does.
func (d *Deployment) Release(ctx context.Context, id driver.CursorID) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if len(d.releaseErrs) > 0 {
		err := d.releaseErrs[0]
		d.releaseErrs = d.releaseErrs[1:]
		return err
	}

	delete(d.cursors, id)
	d.releases++
	return nil
}

// before runs the injected failure and hook for a request.
func (d *Deployment) before(ctx context.Context, cmd string, id driver.CursorID) error {
	d.mu.Lock()
	hook := d.hook
	var injected error
	if len(d.fetchErrs) > 0 {
		injected = d.fetchErrs[0]
		d.fetchErrs = d.fetchErrs[1:]
	}
	d.mu.Unlock()

	if injected != nil {
		return injected
	}
	if hook != nil {
		if err := hook(ctx, cmd, id); err != nil {
			return err
		}
	}
	return ctx.Err()
}

func (d *Deployment) takeLocked(sc *serverCursor, n int32) driver.Batch {
	if n <= 0 {
		n = d.BatchSize
	}
	if n <= 0 {
		n = DefaultBatchSize
	}

	count := int(n)
	if count > len(sc.remaining) {
		count = len(sc.remaining)
	}

	batch := driver.Batch{Documents: sc.remaining[:count:count]}
	sc.remaining = sc.remaining[count:]
	batch.Exhausted = len(sc.remaining) == 0
	return batch
}

func (d *Deployment) collectionLocked(db, coll string) *collection {
	colls, ok := d.databases[db]
	if !ok {
		colls = make(map[string]*collection)
		d.databases[db] = colls
	}
	c, ok := colls[coll]
	if !ok {
		idKey := bsoncore.BuildDocumentFromElements(nil, bsoncore.AppendInt32Element(nil, "_id", 1))
		c = &collection{indexes: []bsoncore.Document{indexSpec("_id_", idKey)}}
		colls[coll] = c
	}
	return c
}

func (d *Deployment) runLocked(cmd driver.Command) ([]bsoncore.Document, error) {
	switch cmd.Kind {
	case driver.KindFind:
		c := d.databases[cmd.Database][cmd.Collection]
		if c == nil {
			return nil, nil
		}
		docs, err := filterDocuments(c.docs, cmd.Filter)
		if err != nil {
			return nil, err
		}
		if cmd.Limit > 0 && int(cmd.Limit) < len(docs) {
			docs = docs[:cmd.Limit]
		}
		return docs, nil
	case driver.KindAggregate:
		var docs []bsoncore.Document
		if c := d.databases[cmd.Database][cmd.Collection]; c != nil {
			docs = append(docs, c.docs...)
		}
		return runPipeline(docs, cmd.Pipeline)
	case driver.KindListIndexes:
		c := d.databases[cmd.Database][cmd.Collection]
		if c == nil {
			return nil, driver.ServerError{
				Code:    driver.CodeNamespaceNotFound,
				Name:    "NamespaceNotFound",
				Message: "ns does not exist: " + cmd.Namespace(),
			}
		}
		return append([]bsoncore.Document(nil), c.indexes...), nil
	case driver.KindListCollections:
		names := make([]string, 0, len(d.databases[cmd.Database]))
		for name := range d.databases[cmd.Database] {
			names = append(names, name)
		}
		sort.Strings(names)

		docs := make([]bsoncore.Document, 0, len(names))
		for _, name := range names {
			docs = append(docs, bsoncore.BuildDocumentFromElements(nil,
				bsoncore.AppendStringElement(nil, "name", name),
				bsoncore.AppendStringElement(nil, "type", "collection"),
			))
		}
		return filterDocuments(docs, cmd.Filter)
	default:
		return nil, driver.ServerError{Code: 59, Name: "CommandNotFound", Message: "no such command: " + string(cmd.Kind)}
	}
}

func indexSpec(name string, keys bsoncore.Document) bsoncore.Document {
	return bsoncore.BuildDocumentFromElements(nil,
		bsoncore.AppendInt32Element(nil, "v", 2),
		bsoncore.AppendDocumentElement(nil, "key", keys),
		bsoncore.AppendStringElement(nil, "name", name),
	)
}

func ensureID(raw []byte) (bsoncore.Document, error) {
	doc := bsoncore.Document(raw)
	if _, err := doc.LookupErr("_id"); err == nil {
		return doc, nil
	}

	elems, err := doc.Elements()
	if err != nil {
		return nil, err
	}

	out := [][]byte{bsoncore.AppendObjectIDElement(nil, "_id", primitive.NewObjectID())}
	for _, elem := range elems {
		out = append(out, elem)
	}
	return bsoncore.BuildDocumentFromElements(nil, out...), nil
}
