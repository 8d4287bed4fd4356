// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package mongo

import (
	"context"
	"reflect"
	"sync"
	"time"

	"github.com/go-stack/stack"
	"github.com/ikmak/mongo-async-cursor/event"
	"github.com/ikmak/mongo-async-cursor/internal/logger"
	"github.com/ikmak/mongo-async-cursor/mongo/options"
	"github.com/ikmak/mongo-async-cursor/promise"
	"github.com/ikmak/mongo-async-cursor/x/mongo/driver"
	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/x/bsonx/bsoncore"
	"golang.org/x/sync/semaphore"
)

// Result is the outcome of Cursor.PullNext. Document is nil when Done is true.
type Result struct {
	Document bson.Raw
	Done     bool
}

// Decode unmarshals the pulled document into val.
func (r Result) Decode(val interface{}) error {
	if r.Done || r.Document == nil {
		return ErrNoDocuments
	}
	return errors.Wrap(bson.Unmarshal(r.Document, val), "decoding document")
}

// Cursor is used to iterate a server-held result set one document at a time. Documents are fetched in batches
// through the Deployment the cursor was opened on; the first batch is requested by the first pull.
//
// Pulls must not overlap: a pull started while another is in flight fails with a ConcurrentAccessError. Close
// may be called at any time from any goroutine.
//
// A typical usage of the Cursor type would be:
//
//	cur, err := coll.Find(bson.D{})
//	if err != nil { log.Fatal(err) }
//	defer cur.Close(ctx).Await(ctx)
//
//	for {
//		res, err := cur.PullNext(ctx).Await(ctx)
//		if err != nil { log.Fatal(err) }
//		if res.Done { break }
//		// do something with res.Document....
//	}
type Cursor struct {
	deployment driver.Deployment
	cmd        driver.Command
	lib        promise.Library
	monitor    *event.CursorMonitor
	logger     *logger.Logger
	pulling    *semaphore.Weighted
	iterOnce   sync.Once
	iter       *Iterator

	mu            sync.Mutex
	id            driver.CursorID
	opened        bool
	released      bool
	buffer        []bsoncore.Document
	exhausted     bool
	closed        bool
	batchSize     int32
	limit         int32
	numReturned   int32
	inFlightSince stack.Call
	lastLibrary   string
	stats         fetchStats
}

func newCursor(d driver.Deployment, cmd driver.Command, l *logger.Logger, opts *options.CursorOptions) (*Cursor, error) {
	if d == nil {
		return nil, errors.New("deployment must not be nil")
	}

	c := &Cursor{
		deployment: d,
		cmd:        cmd,
		lib:        opts.PromiseLibrary,
		monitor:    opts.Monitor,
		logger:     l,
		pulling:    semaphore.NewWeighted(1),
	}
	if opts.BatchSize != nil {
		if *opts.BatchSize < 0 {
			return nil, errors.Errorf("batch size must not be negative, got %d", *opts.BatchSize)
		}
		c.batchSize = *opts.BatchSize
	}
	if opts.Limit != nil && cmd.Kind == driver.KindFind {
		if *opts.Limit < 0 {
			return nil, errors.Errorf("limit must not be negative, got %d", *opts.Limit)
		}
		c.limit = *opts.Limit
		c.cmd.Limit = c.limit
	}
	return c, nil
}

// ID returns the ID of this cursor. It is zero until the first batch has been fetched, once the server has
// exhausted the cursor, and after Close has released the server cursor.
func (c *Cursor) ID() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.released {
		return 0
	}
	return int64(c.id)
}

// Kind returns the command that produced this cursor.
func (c *Cursor) Kind() driver.Kind { return c.cmd.Kind }

// SetBatchSize sets the number of documents requested by the following fetches. Zero lets the server decide.
func (c *Cursor) SetBatchSize(batchSize int32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.batchSize = batchSize
}

// RemainingBatchLength returns the number of buffered documents that can be pulled without a round trip.
func (c *Cursor) RemainingBatchLength() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.buffer)
}

// Closed reports whether Close has been called.
func (c *Cursor) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// PullNext returns a Future for the next document. The Future settles with Done once the cursor is exhausted or
// closed, and keeps doing so for every later pull. ctx bounds the fetch performed for this pull, if any.
//
// A failed fetch settles the Future with a FetchError and leaves the cursor unchanged, so the pull can be
// retried.
func (c *Cursor) PullNext(ctx context.Context) promise.Of[Result] {
	return promise.Typed[Result](c.next(ctx, c.library(), func(r Result) interface{} { return r }))
}

// Close marks the cursor closed, discards any buffered documents and asks the server to release its cursor. The
// local close takes effect before Close returns; the Future settles when the server has answered. A release
// failure settles the Future with a ReleaseError but the cursor stays closed. Closing a closed or exhausted
// cursor is a no-op.
func (c *Cursor) Close(ctx context.Context) promise.Of[struct{}] {
	lib := c.library()

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return promise.Typed[struct{}](lib.Settled(struct{}{}, nil))
	}

	c.closed = true
	c.buffer = nil
	id := c.id
	release := c.opened && !c.released && id != 0
	if release {
		c.released = true
	}
	c.mu.Unlock()

	c.logger.Print(logger.InfoLevel, c.message(logger.CursorMessageClosed, id))

	if !release {
		return promise.Typed[struct{}](lib.Settled(struct{}{}, nil))
	}
	return promise.Typed[struct{}](lib.Go(ctx, func(ctx context.Context) (interface{}, error) {
		return struct{}{}, c.release(ctx, id)
	}))
}

// All iterates the cursor and decodes each document into results. The results parameter must be a pointer to a
// slice. The slice pointed to by results will be completely overwritten. The cursor is closed when All returns.
func (c *Cursor) All(ctx context.Context, results interface{}) error {
	resultsVal := reflect.ValueOf(results)
	if resultsVal.Kind() != reflect.Ptr {
		return errors.Errorf("results argument must be a pointer to a slice, but was a %s", resultsVal.Kind())
	}

	sliceVal := resultsVal.Elem()
	if sliceVal.Kind() == reflect.Interface {
		sliceVal = sliceVal.Elem()
	}
	if sliceVal.Kind() != reflect.Slice {
		return errors.Errorf("results argument must be a pointer to a slice, but was a pointer to %s", sliceVal.Kind())
	}

	defer func() {
		_, _ = c.Close(ctx).Await(ctx)
	}()

	elementType := sliceVal.Type().Elem()
	var index int
	for doc, err := range c.Iterator().All(ctx) {
		if err != nil {
			return err
		}

		if sliceVal.Len() == index {
			// slice is full
			newElem := reflect.New(elementType)
			sliceVal = reflect.Append(sliceVal, newElem.Elem())
			sliceVal = sliceVal.Slice(0, sliceVal.Cap())
		}

		currElem := sliceVal.Index(index).Addr().Interface()
		if err := bson.Unmarshal(doc, currElem); err != nil {
			return errors.Wrapf(err, "decoding document %d", index)
		}
		index++
	}

	resultsVal.Elem().Set(sliceVal.Slice(0, index))
	return nil
}

// library returns the Library for a new suspension: the injected one, or the registry's current choice.
func (c *Cursor) library() promise.Library {
	lib := promise.Resolve(c.lib)

	c.mu.Lock()
	previous := c.lastLibrary
	c.lastLibrary = lib.Name()
	c.mu.Unlock()

	if previous != "" && previous != lib.Name() {
		c.logger.Print(logger.DebugLevel, &logger.PromiseMessage{
			MessageLiteral: logger.PromiseMessageLibraryChange,
			Previous:       previous,
			Current:        lib.Name(),
		})
	}
	return lib
}

// next is the single pull path shared by PullNext and Iterator.Advance. wrap converts the Result into the value
// the Future settles with.
func (c *Cursor) next(ctx context.Context, lib promise.Library, wrap func(Result) interface{}) promise.Future {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return lib.Settled(wrap(Result{Done: true}), nil)
	}

	if !c.pulling.TryAcquire(1) {
		err := ConcurrentAccessError{CursorID: int64(c.id), InFlightSince: c.inFlightSince}
		c.mu.Unlock()
		return lib.Settled(nil, err)
	}

	if doc, ok := c.popLocked(); ok {
		c.pulling.Release(1)
		c.mu.Unlock()
		return lib.Settled(wrap(Result{Document: bson.Raw(doc)}), nil)
	}
	if c.exhausted {
		c.pulling.Release(1)
		c.mu.Unlock()
		return lib.Settled(wrap(Result{Done: true}), nil)
	}

	c.inFlightSince = stack.Caller(2)
	c.mu.Unlock()

	return lib.Go(ctx, func(ctx context.Context) (interface{}, error) {
		defer c.pulling.Release(1)

		res, err := c.fetch(ctx)
		if err != nil {
			return nil, err
		}
		return wrap(res), nil
	})
}

// fetch requests batches until a document can be delivered, the cursor runs out, or the cursor is closed.
// The caller holds the pulling semaphore, so at most one fetch per cursor is in flight.
func (c *Cursor) fetch(ctx context.Context) (Result, error) {
	for {
		c.mu.Lock()
		if c.closed {
			c.mu.Unlock()
			return Result{Done: true}, nil
		}
		size, ok := driver.CalcBatchSize(c.batchSize, c.limit, c.numReturned)
		if !ok {
			c.exhausted = true
			c.mu.Unlock()
			return Result{Done: true}, nil
		}
		opened, id := c.opened, c.id
		c.mu.Unlock()

		c.started(ctx, id, size, !opened)
		start := time.Now()

		var batch driver.Batch
		var err error
		if opened {
			batch, err = c.deployment.FetchBatch(ctx, id, size)
		} else {
			id, batch, err = c.deployment.Open(ctx, c.cmd, size)
		}
		duration := time.Since(start)

		if err != nil {
			c.failed(ctx, id, duration, err)
			if c.Closed() {
				return Result{Done: true}, nil
			}
			return Result{}, FetchError{CursorID: int64(id), Kind: string(c.cmd.Kind), Wrapped: err}
		}

		out := c.accept(id, batch, duration)
		c.succeeded(ctx, id, batch, duration, out.discarded)

		if out.release {
			// failures are logged by release; the pull itself has what it needs
			_ = c.release(ctx, id)
		}
		if out.done {
			return out.res, nil
		}
	}
}

// fetchOutcome is what accept decided about a completed fetch.
type fetchOutcome struct {
	res Result
	// done is false when the batch was empty and the cursor is still live.
	done bool
	// discarded is true when the cursor was closed while the fetch was in flight.
	discarded bool
	// release is true when the fetching suspension must release the server cursor itself.
	release bool
}

func (c *Cursor) accept(id driver.CursorID, batch driver.Batch, duration time.Duration) fetchOutcome {
	c.mu.Lock()

	firstOpen := !c.opened
	if firstOpen {
		c.opened = true
		c.id = id
	}

	if c.closed {
		// Close could only release the handle if it already knew the ID.
		live := firstOpen && !batch.Exhausted && id != 0
		if live {
			c.released = true
		}
		c.mu.Unlock()
		c.logger.Print(logger.DebugLevel, c.message(logger.CursorMessageLateBatch, id))
		return fetchOutcome{res: Result{Done: true}, done: true, discarded: true, release: live}
	}

	docs := batch.Documents
	if c.limit > 0 && c.numReturned+int32(len(docs)) > c.limit {
		docs = docs[:c.limit-c.numReturned]
	}
	c.numReturned += int32(len(docs))
	c.buffer = append(c.buffer, docs...)
	c.stats.add(duration, len(docs))

	var out fetchOutcome
	switch {
	case batch.Exhausted || id == 0:
		c.exhausted = true
		c.released = true
	case c.limit > 0 && c.numReturned >= c.limit:
		c.exhausted = true
		c.released = true
		out.release = true
	}
	exhausted := c.exhausted

	if doc, ok := c.popLocked(); ok {
		out.res, out.done = Result{Document: bson.Raw(doc)}, true
	} else if exhausted {
		out.res, out.done = Result{Done: true}, true
	}
	c.mu.Unlock()

	if c.logger.LevelComponentEnabled(logger.DebugLevel, logger.ComponentCursor) {
		msg := &logger.CursorBatchMessage{
			CursorMessage: *c.message(logger.CursorMessageBatchFetched, id),
			BatchSize:     int32(len(batch.Documents)),
			Documents:     len(docs),
			Exhausted:     exhausted,
			Duration:      duration,
		}
		if len(docs) > 0 {
			msg.FirstDocument = logger.FormatDocument(bson.Raw(docs[0]), c.logger.MaxDocumentLength)
		}
		c.logger.Print(logger.DebugLevel, msg)
	}
	if exhausted {
		c.logger.Print(logger.InfoLevel, c.message(logger.CursorMessageExhausted, id))
	}

	return out
}

func (c *Cursor) popLocked() (bsoncore.Document, bool) {
	if len(c.buffer) == 0 {
		return nil, false
	}
	doc := c.buffer[0]
	c.buffer[0] = nil
	c.buffer = c.buffer[1:]
	return doc, true
}

func (c *Cursor) release(ctx context.Context, id driver.CursorID) error {
	err := c.deployment.Release(ctx, id)

	if c.monitor != nil && c.monitor.Released != nil {
		c.monitor.Released(ctx, &event.CursorReleasedEvent{CursorEvent: c.event(id), Failure: err})
	}
	if err != nil {
		rerr := ReleaseError{CursorID: int64(id), Wrapped: err}
		c.logger.Error(rerr, c.message(logger.CursorMessageReleaseFailed, id))
		return rerr
	}
	return nil
}

func (c *Cursor) message(literal string, id driver.CursorID) *logger.CursorMessage {
	return &logger.CursorMessage{
		MessageLiteral: literal,
		CursorID:       int64(id),
		Kind:           string(c.cmd.Kind),
		Namespace:      c.cmd.Namespace(),
	}
}

func (c *Cursor) event(id driver.CursorID) event.CursorEvent {
	return event.CursorEvent{CursorID: int64(id), Kind: string(c.cmd.Kind), Namespace: c.cmd.Namespace()}
}

func (c *Cursor) started(ctx context.Context, id driver.CursorID, size int32, initial bool) {
	if c.monitor == nil || c.monitor.Started == nil {
		return
	}
	c.monitor.Started(ctx, &event.FetchStartedEvent{CursorEvent: c.event(id), RequestedBatchSize: size, Initial: initial})
}

func (c *Cursor) succeeded(ctx context.Context, id driver.CursorID, batch driver.Batch, d time.Duration, discarded bool) {
	if c.monitor == nil || c.monitor.Succeeded == nil {
		return
	}
	c.monitor.Succeeded(ctx, &event.FetchSucceededEvent{
		FetchFinishedEvent: event.FetchFinishedEvent{CursorEvent: c.event(id), Duration: d},
		Documents:          len(batch.Documents),
		Exhausted:          batch.Exhausted,
		Discarded:          discarded,
	})
}

func (c *Cursor) failed(ctx context.Context, id driver.CursorID, d time.Duration, err error) {
	c.logger.Error(err, c.message(logger.CursorMessageFetchFailed, id))

	if c.monitor == nil || c.monitor.Failed == nil {
		return
	}
	c.monitor.Failed(ctx, &event.FetchFailedEvent{
		FetchFinishedEvent: event.FetchFinishedEvent{CursorEvent: c.event(id), Duration: d},
		Failure:            err,
	})
}
