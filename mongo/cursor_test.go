// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package mongo

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/ikmak/mongo-async-cursor/event"
	"github.com/ikmak/mongo-async-cursor/mongo/options"
	"github.com/ikmak/mongo-async-cursor/promise"
	"github.com/ikmak/mongo-async-cursor/x/mongo/driver"
	"github.com/ikmak/mongo-async-cursor/x/mongo/driver/drivertest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/x/bsonx/bsoncore"
)

const testCursorID driver.CursorID = 10

// testDeployment serves a fixed list of batches for a single cursor, ignoring requested batch sizes.
type testDeployment struct {
	mu       sync.Mutex
	batches  [][]bsoncore.Document
	opens    int
	fetches  int
	releases int
}

var _ driver.Deployment = (*testDeployment)(nil)

func newTestDeployment(numBatches, batchSize int) *testDeployment {
	batches := make([][]bsoncore.Document, 0, numBatches)

	counter := 0
	for batch := 0; batch < numBatches; batch++ {
		var docs []bsoncore.Document
		for doc := 0; doc < batchSize; doc++ {
			elem := bsoncore.AppendInt32Element(nil, "foo", int32(counter))
			counter++
			docs = append(docs, bsoncore.BuildDocumentFromElements(nil, elem))
		}
		batches = append(batches, docs)
	}

	return &testDeployment{batches: batches}
}

func (td *testDeployment) next() driver.Batch {
	if len(td.batches) == 0 {
		return driver.Batch{Exhausted: true}
	}
	batch := driver.Batch{Documents: td.batches[0]}
	td.batches = td.batches[1:]
	batch.Exhausted = len(td.batches) == 0
	return batch
}

func (td *testDeployment) Open(context.Context, driver.Command, int32) (driver.CursorID, driver.Batch, error) {
	td.mu.Lock()
	defer td.mu.Unlock()

	td.opens++
	batch := td.next()
	if batch.Exhausted {
		return 0, batch, nil
	}
	return testCursorID, batch, nil
}

func (td *testDeployment) FetchBatch(_ context.Context, id driver.CursorID, _ int32) (driver.Batch, error) {
	td.mu.Lock()
	defer td.mu.Unlock()

	if id != testCursorID {
		return driver.Batch{}, driver.ErrCursorNotFound
	}
	td.fetches++
	return td.next(), nil
}

func (td *testDeployment) Release(context.Context, driver.CursorID) error {
	td.mu.Lock()
	defer td.mu.Unlock()

	td.releases++
	return nil
}

func newTestCursor(t *testing.T, d driver.Deployment, opts ...*options.CursorOptions) *Cursor {
	t.Helper()

	cmd := driver.Command{Kind: driver.KindFind, Database: "db", Collection: "coll"}
	c, err := newCursor(d, cmd, nil, options.MergeCursorOptions(opts...))
	require.NoError(t, err, "newCursor error: %v", err)
	return c
}

// pullAll pulls until Done and returns the foo values in delivery order.
func pullAll(t *testing.T, c *Cursor) []int32 {
	t.Helper()

	ctx := context.Background()
	var got []int32
	for {
		res, err := c.PullNext(ctx).Await(ctx)
		require.NoError(t, err, "PullNext error: %v", err)
		if res.Done {
			assert.Nil(t, res.Document, "expected no document with Done")
			return got
		}
		got = append(got, res.Document.Lookup("foo").Int32())
	}
}

func sequence(n int) []int32 {
	seq := make([]int32, n)
	for i := range seq {
		seq[i] = int32(i)
	}
	return seq
}

func seedFoo(t *testing.T, d *drivertest.Deployment, n int) {
	t.Helper()

	docs := make([]interface{}, n)
	for i := range docs {
		docs[i] = bson.D{{"foo", int32(i)}, {"bar", 1}}
	}
	require.NoError(t, d.Insert("db", "coll", docs...))
}

func TestCursor(t *testing.T) {
	t.Run("exhaustion completeness and order for any batch size", func(t *testing.T) {
		t.Parallel()

		for _, batchSize := range []int32{0, 1, 2, 3, 7, 10, 11, 500} {
			d := drivertest.NewDeployment()
			seedFoo(t, d, 10)

			c := newTestCursor(t, d, options.Cursor().SetBatchSize(batchSize))
			got := pullAll(t, c)

			if diff := cmp.Diff(sequence(10), got); diff != "" {
				t.Errorf("batch size %d: documents differ (-want +got):\n%s", batchSize, diff)
			}
			assert.Equal(t, 0, d.OpenCursors(), "batch size %d: expected server cursor to be gone", batchSize)
		}
	})

	t.Run("completion is sticky", func(t *testing.T) {
		t.Parallel()

		td := newTestDeployment(2, 2)
		c := newTestCursor(t, td)
		assert.Len(t, pullAll(t, c), 4)

		for i := 0; i < 3; i++ {
			res, err := c.PullNext(context.Background()).Await(context.Background())
			require.NoError(t, err)
			assert.True(t, res.Done)
			assert.Nil(t, res.Document)
		}
		assert.Equal(t, 1, td.fetches, "expected no fetch after exhaustion")
	})

	t.Run("no request until the first pull", func(t *testing.T) {
		t.Parallel()

		td := newTestDeployment(1, 5)
		c := newTestCursor(t, td)
		assert.Equal(t, 0, td.opens)
		assert.EqualValues(t, 0, c.ID())

		_, err := c.PullNext(context.Background()).Await(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 1, td.opens)
		assert.Equal(t, 4, c.RemainingBatchLength())
	})

	t.Run("empty batches are skipped", func(t *testing.T) {
		t.Parallel()

		td := newTestDeployment(3, 2)
		td.batches = [][]bsoncore.Document{td.batches[0], nil, nil, td.batches[1], td.batches[2]}

		c := newTestCursor(t, td)
		if diff := cmp.Diff(sequence(6), pullAll(t, c)); diff != "" {
			t.Errorf("documents differ (-want +got):\n%s", diff)
		}
	})

	t.Run("close stops delivery and discards the buffer", func(t *testing.T) {
		t.Parallel()

		td := newTestDeployment(2, 5)
		c := newTestCursor(t, td)
		ctx := context.Background()

		res, err := c.PullNext(ctx).Await(ctx)
		require.NoError(t, err)
		assert.False(t, res.Done)
		assert.EqualValues(t, testCursorID, c.ID())

		_, err = c.Close(ctx).Await(ctx)
		require.NoError(t, err)
		assert.True(t, c.Closed())
		assert.Equal(t, 0, c.RemainingBatchLength())
		assert.Equal(t, 1, td.releases)
		assert.EqualValues(t, 0, c.ID(), "expected no ID once the server cursor is released")

		res, err = c.PullNext(ctx).Await(ctx)
		require.NoError(t, err)
		assert.True(t, res.Done, "expected Done after close")
		assert.Equal(t, 0, td.fetches, "expected no fetch after close")
	})

	t.Run("close is idempotent", func(t *testing.T) {
		t.Parallel()

		td := newTestDeployment(2, 5)
		c := newTestCursor(t, td)
		ctx := context.Background()

		_, err := c.PullNext(ctx).Await(ctx)
		require.NoError(t, err)

		for i := 0; i < 3; i++ {
			_, err = c.Close(ctx).Await(ctx)
			assert.NoError(t, err, "close %d", i)
		}
		assert.Equal(t, 1, td.releases)
	})

	t.Run("close without a server cursor does not release", func(t *testing.T) {
		t.Parallel()

		ctx := context.Background()

		unopened := newTestDeployment(2, 5)
		_, err := newTestCursor(t, unopened).Close(ctx).Await(ctx)
		require.NoError(t, err)
		assert.Equal(t, 0, unopened.releases)
		assert.Equal(t, 0, unopened.opens)

		exhausted := newTestDeployment(2, 5)
		c := newTestCursor(t, exhausted)
		pullAll(t, c)
		_, err = c.Close(ctx).Await(ctx)
		require.NoError(t, err)
		assert.Equal(t, 0, exhausted.releases)
	})

	t.Run("fetch failure leaves the cursor unchanged", func(t *testing.T) {
		t.Parallel()

		d := drivertest.NewDeployment()
		seedFoo(t, d, 6)
		c := newTestCursor(t, d, options.Cursor().SetBatchSize(2))
		ctx := context.Background()

		var got []int32
		for i := 0; i < 2; i++ {
			res, err := c.PullNext(ctx).Await(ctx)
			require.NoError(t, err)
			got = append(got, res.Document.Lookup("foo").Int32())
		}

		boom := driver.NetworkError{Address: "localhost:27017", Wrapped: io.ErrUnexpectedEOF}
		d.FailNextFetch(boom)

		_, err := c.PullNext(ctx).Await(ctx)
		var fe FetchError
		require.True(t, errors.As(err, &fe), "expected FetchError, got %v", err)
		assert.Equal(t, boom, fe.Cause())
		assert.True(t, errors.Is(err, io.ErrUnexpectedEOF))
		assert.False(t, c.Closed())

		got = append(got, pullAll(t, c)...)
		if diff := cmp.Diff(sequence(6), got); diff != "" {
			t.Errorf("documents differ after retry (-want +got):\n%s", diff)
		}
	})

	t.Run("failed initial fetch can be retried", func(t *testing.T) {
		t.Parallel()

		d := drivertest.NewDeployment()
		seedFoo(t, d, 3)
		d.FailNextFetch(driver.ServerError{Code: 11600, Name: "InterruptedAtShutdown", Message: "shutting down"})

		c := newTestCursor(t, d)
		_, err := c.PullNext(context.Background()).Await(context.Background())
		var fe FetchError
		require.True(t, errors.As(err, &fe), "expected FetchError, got %v", err)
		assert.Equal(t, int64(0), fe.CursorID)
		assert.Equal(t, "find", fe.Kind)

		assert.Len(t, pullAll(t, c), 3)
	})

	t.Run("release failure still closes", func(t *testing.T) {
		t.Parallel()

		d := drivertest.NewDeployment()
		seedFoo(t, d, 10)
		c := newTestCursor(t, d, options.Cursor().SetBatchSize(2))
		ctx := context.Background()

		_, err := c.PullNext(ctx).Await(ctx)
		require.NoError(t, err)

		d.FailNextRelease(driver.ServerError{Code: 50, Name: "MaxTimeMSExpired", Message: "operation exceeded time limit"})
		_, err = c.Close(ctx).Await(ctx)
		var re ReleaseError
		require.True(t, errors.As(err, &re), "expected ReleaseError, got %v", err)
		assert.True(t, c.Closed())

		res, err := c.PullNext(ctx).Await(ctx)
		require.NoError(t, err)
		assert.True(t, res.Done)

		_, err = c.Close(ctx).Await(ctx)
		assert.NoError(t, err, "expected second close to be a no-op")
	})

	t.Run("overlapping pulls are rejected", func(t *testing.T) {
		t.Parallel()

		d := drivertest.NewDeployment()
		seedFoo(t, d, 4)

		entered := make(chan struct{})
		unblock := make(chan struct{})
		d.SetFetchHook(func(context.Context, string, driver.CursorID) error {
			close(entered)
			<-unblock
			return nil
		})

		c := newTestCursor(t, d, options.Cursor().SetPromiseLibrary(promise.Goroutine))
		ctx := context.Background()

		first := c.PullNext(ctx)
		<-entered

		_, err := c.PullNext(ctx).Await(ctx)
		var cae ConcurrentAccessError
		require.True(t, errors.As(err, &cae), "expected ConcurrentAccessError, got %v", err)
		assert.Contains(t, cae.Error(), "cursor_test.go")

		close(unblock)
		res, err := first.Await(ctx)
		require.NoError(t, err)
		assert.Equal(t, int32(0), res.Document.Lookup("foo").Int32())

		d.SetFetchHook(nil)
		assert.Equal(t, []int32{1, 2, 3}, pullAll(t, c))
	})

	t.Run("close during the opening fetch", func(t *testing.T) {
		t.Parallel()

		d := drivertest.NewDeployment()
		seedFoo(t, d, 10)

		entered := make(chan struct{})
		unblock := make(chan struct{})
		d.SetFetchHook(func(context.Context, string, driver.CursorID) error {
			close(entered)
			<-unblock
			return nil
		})

		var discarded bool
		monitor := &event.CursorMonitor{
			Succeeded: func(_ context.Context, evt *event.FetchSucceededEvent) { discarded = evt.Discarded },
		}
		c := newTestCursor(t, d, options.Cursor().
			SetBatchSize(2).
			SetMonitor(monitor).
			SetPromiseLibrary(promise.Goroutine))
		ctx := context.Background()

		inFlight := c.PullNext(ctx)
		<-entered

		_, err := c.Close(ctx).Await(ctx)
		require.NoError(t, err)
		close(unblock)

		res, err := inFlight.Await(ctx)
		require.NoError(t, err)
		assert.True(t, res.Done, "expected the in-flight pull to observe the close")
		assert.True(t, discarded, "expected the late batch to be discarded")
		assert.Equal(t, 0, d.OpenCursors(), "expected the orphaned server cursor to be released")

		res, err = c.PullNext(ctx).Await(ctx)
		require.NoError(t, err)
		assert.True(t, res.Done)
	})

	t.Run("close during a getMore", func(t *testing.T) {
		t.Parallel()

		d := drivertest.NewDeployment()
		seedFoo(t, d, 10)
		c := newTestCursor(t, d, options.Cursor().SetBatchSize(1).SetPromiseLibrary(promise.Goroutine))
		ctx := context.Background()

		_, err := c.PullNext(ctx).Await(ctx)
		require.NoError(t, err)

		entered := make(chan struct{})
		unblock := make(chan struct{})
		d.SetFetchHook(func(context.Context, string, driver.CursorID) error {
			close(entered)
			<-unblock
			return nil
		})

		inFlight := c.PullNext(ctx)
		<-entered
		_, err = c.Close(ctx).Await(ctx)
		require.NoError(t, err)
		close(unblock)

		res, err := inFlight.Await(ctx)
		require.NoError(t, err, "expected the cursor-not-found failure of the late getMore to be masked by the close")
		assert.True(t, res.Done)
		assert.Equal(t, 1, d.ReleaseCount())
	})

	t.Run("await deadline then close", func(t *testing.T) {
		t.Parallel()

		d := drivertest.NewDeployment()
		seedFoo(t, d, 3)

		unblock := make(chan struct{})
		d.SetFetchHook(func(context.Context, string, driver.CursorID) error {
			<-unblock
			return nil
		})

		c := newTestCursor(t, d, options.Cursor().SetPromiseLibrary(promise.Goroutine))
		pull := c.PullNext(context.Background())

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
		defer cancel()
		_, err := pull.Await(ctx)
		assert.Equal(t, context.DeadlineExceeded, err)

		_, err = c.Close(context.Background()).Await(context.Background())
		require.NoError(t, err)
		close(unblock)

		res, err := pull.Await(context.Background())
		require.NoError(t, err)
		assert.True(t, res.Done, "expected the late result to be discarded")
	})

	t.Run("limit", func(t *testing.T) {
		t.Parallel()

		d := drivertest.NewDeployment()
		seedFoo(t, d, 10)
		c := newTestCursor(t, d, options.Cursor().SetBatchSize(2).SetLimit(5))

		assert.Equal(t, sequence(5), pullAll(t, c))
		assert.Equal(t, 0, d.OpenCursors())
	})

	t.Run("negative options are rejected", func(t *testing.T) {
		t.Parallel()

		cmd := driver.Command{Kind: driver.KindFind}
		_, err := newCursor(newTestDeployment(1, 1), cmd, nil, options.Cursor().SetBatchSize(-1))
		assert.Error(t, err)
		_, err = newCursor(newTestDeployment(1, 1), cmd, nil, options.Cursor().SetLimit(-1))
		assert.Error(t, err)
		_, err = newCursor(nil, cmd, nil, options.Cursor())
		assert.Error(t, err)
	})

	t.Run("monitor and stats", func(t *testing.T) {
		t.Parallel()

		var mu sync.Mutex
		var started, succeeded, released int
		monitor := &event.CursorMonitor{
			Started: func(context.Context, *event.FetchStartedEvent) {
				mu.Lock()
				defer mu.Unlock()
				started++
			},
			Succeeded: func(context.Context, *event.FetchSucceededEvent) {
				mu.Lock()
				defer mu.Unlock()
				succeeded++
			},
			Released: func(_ context.Context, evt *event.CursorReleasedEvent) {
				mu.Lock()
				defer mu.Unlock()
				released++
				assert.NoError(t, evt.Failure)
			},
		}

		td := newTestDeployment(3, 4)
		c := newTestCursor(t, td, options.Cursor().SetMonitor(monitor))
		ctx := context.Background()

		for i := 0; i < 6; i++ {
			_, err := c.PullNext(ctx).Await(ctx)
			require.NoError(t, err)
		}
		_, err := c.Close(ctx).Await(ctx)
		require.NoError(t, err)

		mu.Lock()
		defer mu.Unlock()
		assert.Equal(t, 2, started)
		assert.Equal(t, 2, succeeded)
		assert.Equal(t, 1, released)

		stats := c.Stats()
		assert.Equal(t, 2, stats.Batches)
		assert.Equal(t, 8, stats.Documents)
		assert.GreaterOrEqual(t, stats.P90Fetch, stats.MedianFetch)
	})

	t.Run("decode", func(t *testing.T) {
		t.Parallel()

		c := newTestCursor(t, newTestDeployment(1, 1))
		res, err := c.PullNext(context.Background()).Await(context.Background())
		require.NoError(t, err)

		var doc struct {
			Foo int32 `bson:"foo"`
		}
		require.NoError(t, res.Decode(&doc))
		assert.Equal(t, int32(0), doc.Foo)

		assert.Equal(t, ErrNoDocuments, Result{Done: true}.Decode(&doc))
	})
}

func TestCursorAll(t *testing.T) {
	t.Run("errors if argument is not pointer to slice", func(t *testing.T) {
		cursor := newTestCursor(t, newTestDeployment(1, 5))
		err := cursor.All(context.Background(), []bson.D{})
		assert.Error(t, err, "expected error, got nil")

		var notSlice int
		err = cursor.All(context.Background(), &notSlice)
		assert.Error(t, err, "expected error, got nil")
	})

	t.Run("fills slice with all documents", func(t *testing.T) {
		cursor := newTestCursor(t, newTestDeployment(1, 5))

		var docs []bson.D
		err := cursor.All(context.Background(), &docs)
		require.NoError(t, err, "All error: %v", err)
		assert.Len(t, docs, 5, "expected 5 docs, got %v", len(docs))

		for index, doc := range docs {
			expected := bson.D{{"foo", int32(index)}}
			assert.Equal(t, expected, doc, "expected doc %v, got %v", expected, doc)
		}
	})

	t.Run("nil slice", func(t *testing.T) {
		cursor := newTestCursor(t, newTestDeployment(0, 0))

		var docs []bson.D
		err := cursor.All(context.Background(), &docs)
		require.NoError(t, err, "All error: %v", err)
		assert.Nil(t, docs, "expected nil docs")
	})

	t.Run("empty slice overwritten", func(t *testing.T) {
		cursor := newTestCursor(t, newTestDeployment(0, 0))

		docs := []bson.D{{{"foo", "bar"}}, {{"hello", "world"}, {"pi", 3.14159}}}
		err := cursor.All(context.Background(), &docs)
		require.NoError(t, err, "All error: %v", err)
		assert.NotNil(t, docs, "expected non-nil docs")
		assert.Len(t, docs, 0, "expected 0 docs, got %v", len(docs))
	})

	t.Run("decodes each document into slice type", func(t *testing.T) {
		cursor := newTestCursor(t, newTestDeployment(1, 5))

		type Document struct {
			Foo int32 `bson:"foo"`
		}
		var docs []Document
		err := cursor.All(context.Background(), &docs)
		require.NoError(t, err, "All error: %v", err)
		assert.Len(t, docs, 5, "expected 5 documents, got %v", len(docs))

		for index, doc := range docs {
			expected := Document{Foo: int32(index)}
			assert.Equal(t, expected, doc, "expected doc %v, got %v", expected, doc)
		}
	})

	t.Run("multiple batches are included", func(t *testing.T) {
		cursor := newTestCursor(t, newTestDeployment(2, 5))

		var docs []bson.D
		err := cursor.All(context.Background(), &docs)
		require.NoError(t, err, "All error: %v", err)
		assert.Len(t, docs, 10, "expected 10 docs, got %v", len(docs))

		for index, doc := range docs {
			expected := bson.D{{"foo", int32(index)}}
			assert.Equal(t, expected, doc, "expected doc %v, got %v", expected, doc)
		}
	})

	t.Run("cursor is closed after All is called", func(t *testing.T) {
		cursor := newTestCursor(t, newTestDeployment(1, 5))

		var docs []bson.D
		err := cursor.All(context.Background(), &docs)
		require.NoError(t, err, "All error: %v", err)
		assert.True(t, cursor.Closed(), "expected cursor to be closed")
	})
}
