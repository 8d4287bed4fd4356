// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package mongo

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/ikmak/mongo-async-cursor/mongo/options"
	"github.com/ikmak/mongo-async-cursor/promise"
	"github.com/ikmak/mongo-async-cursor/x/mongo/driver"
	"github.com/ikmak/mongo-async-cursor/x/mongo/driver/drivertest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func advanceAll(t *testing.T, it *Iterator) []int32 {
	t.Helper()

	ctx := context.Background()
	var got []int32
	for {
		step, err := it.Advance(ctx).Await(ctx)
		require.NoError(t, err, "Advance error: %v", err)
		if step.Done {
			assert.Nil(t, step.Value, "expected no value with Done")
			return got
		}
		got = append(got, step.Value.Lookup("foo").Int32())
	}
}

func TestIterator(t *testing.T) {
	t.Run("same instance", func(t *testing.T) {
		t.Parallel()

		c := newTestCursor(t, newTestDeployment(1, 1))
		assert.Same(t, c.Iterator(), c.Iterator())
	})

	t.Run("manual and range iteration agree", func(t *testing.T) {
		t.Parallel()

		for _, batchSize := range []int32{1, 4, 0} {
			d := drivertest.NewDeployment()
			seedFoo(t, d, 25)
			opts := options.Cursor().SetBatchSize(batchSize)

			manual := advanceAll(t, newTestCursor(t, d, opts).Iterator())

			var ranged []int32
			for doc, err := range newTestCursor(t, d, opts).Iterator().All(context.Background()) {
				require.NoError(t, err)
				ranged = append(ranged, doc.Lookup("foo").Int32())
			}

			if diff := cmp.Diff(manual, ranged); diff != "" {
				t.Errorf("batch size %d: sequences differ (-manual +range):\n%s", batchSize, diff)
			}
			assert.Equal(t, sequence(25), manual)
		}
	})

	t.Run("done is sticky", func(t *testing.T) {
		t.Parallel()

		td := newTestDeployment(1, 2)
		it := newTestCursor(t, td).Iterator()
		assert.Len(t, advanceAll(t, it), 2)

		for i := 0; i < 3; i++ {
			step, err := it.Advance(context.Background()).Await(context.Background())
			require.NoError(t, err)
			assert.True(t, step.Done)
			assert.Nil(t, step.Value)
		}
		assert.Equal(t, 1, td.opens)
		assert.Equal(t, 0, td.fetches)
	})

	t.Run("close ends iteration", func(t *testing.T) {
		t.Parallel()

		d := drivertest.NewDeployment()
		seedFoo(t, d, 20)
		c := newTestCursor(t, d, options.Cursor().SetBatchSize(5))
		ctx := context.Background()

		var count int
		for _, err := range c.Iterator().All(ctx) {
			require.NoError(t, err)
			count++
			_, err = c.Close(ctx).Await(ctx)
			require.NoError(t, err)
		}
		assert.Equal(t, 1, count)
		assert.Equal(t, 0, d.OpenCursors())
	})

	t.Run("breaking out leaves the cursor open", func(t *testing.T) {
		t.Parallel()

		c := newTestCursor(t, newTestDeployment(2, 3))
		ctx := context.Background()

		var first []int32
		for doc, err := range c.Iterator().All(ctx) {
			require.NoError(t, err)
			first = append(first, doc.Lookup("foo").Int32())
			if len(first) == 2 {
				break
			}
		}
		assert.False(t, c.Closed())
		assert.Equal(t, []int32{2, 3, 4, 5}, advanceAll(t, c.Iterator()))
	})

	t.Run("fetch errors are yielded", func(t *testing.T) {
		t.Parallel()

		d := drivertest.NewDeployment()
		seedFoo(t, d, 3)
		d.FailNextFetch(driver.ErrCursorNotFound)
		c := newTestCursor(t, d)

		var errs []error
		for _, err := range c.Iterator().All(context.Background()) {
			if err != nil {
				errs = append(errs, err)
			}
		}
		require.Len(t, errs, 1)
		var fe FetchError
		assert.True(t, errors.As(errs[0], &fe))
		assert.True(t, errors.Is(errs[0], driver.ErrCursorNotFound))

		// the failure is not terminal
		assert.Len(t, advanceAll(t, c.Iterator()), 3)
	})

	t.Run("shares the pull guard with the cursor", func(t *testing.T) {
		t.Parallel()

		d := drivertest.NewDeployment()
		seedFoo(t, d, 2)
		entered := make(chan struct{})
		unblock := make(chan struct{})
		d.SetFetchHook(func(context.Context, string, driver.CursorID) error {
			close(entered)
			<-unblock
			return nil
		})

		c := newTestCursor(t, d, options.Cursor().SetPromiseLibrary(promise.Goroutine))
		ctx := context.Background()

		pull := c.PullNext(ctx)
		<-entered
		_, err := c.Iterator().Advance(ctx).Await(ctx)
		var cae ConcurrentAccessError
		assert.True(t, errors.As(err, &cae), "expected ConcurrentAccessError, got %v", err)

		close(unblock)
		_, err = pull.Await(ctx)
		require.NoError(t, err)
	})
}

// Tests in this function replace the process-wide library and must not run in parallel.
func TestIteratorPromiseLibrary(t *testing.T) {
	t.Cleanup(func() { promise.Set(nil) })

	t.Run("every step uses the registered library", func(t *testing.T) {
		counting := promise.NewCounting(promise.Inline)
		promise.Set(counting)
		defer promise.Set(nil)

		c := newTestCursor(t, newTestDeployment(2, 2))
		ctx := context.Background()

		var steps int
		for {
			adv := c.Iterator().Advance(ctx)
			cf, ok := adv.Future.(*promise.CountedFuture)
			require.True(t, ok, "expected *promise.CountedFuture, got %T", adv.Future)
			assert.Same(t, counting, cf.Library())

			step, err := adv.Await(ctx)
			require.NoError(t, err)
			steps++
			if step.Done {
				assert.Nil(t, step.Value)
				break
			}
		}
		assert.Equal(t, 5, steps)
		assert.EqualValues(t, steps, counting.Created())
		assert.EqualValues(t, steps, counting.Awaited())

		closed := c.Close(ctx)
		_, ok := closed.Future.(*promise.CountedFuture)
		assert.True(t, ok, "expected close to use the registered library")
	})

	t.Run("resetting restores the default", func(t *testing.T) {
		promise.Set(promise.NewCounting(nil))
		promise.Set(nil)

		c := newTestCursor(t, newTestDeployment(1, 1))
		adv := c.Iterator().Advance(context.Background())
		_, ok := adv.Future.(*promise.CountedFuture)
		assert.False(t, ok, "expected the default library after reset")
		_, err := adv.Await(context.Background())
		require.NoError(t, err)
	})

	t.Run("library is resolved at each step", func(t *testing.T) {
		c := newTestCursor(t, newTestDeployment(1, 3))
		ctx := context.Background()

		_, err := c.Iterator().Advance(ctx).Await(ctx)
		require.NoError(t, err)

		counting := promise.NewCounting(promise.Inline)
		promise.Set(counting)
		defer promise.Set(nil)

		adv := c.Iterator().Advance(ctx)
		_, ok := adv.Future.(*promise.CountedFuture)
		assert.True(t, ok, "expected the replacement to apply to the next step")
		_, err = adv.Await(ctx)
		require.NoError(t, err)
	})

	t.Run("injected library wins over the registry", func(t *testing.T) {
		promise.Set(promise.NewCounting(nil))
		defer promise.Set(nil)

		injected := promise.NewCounting(promise.Inline)
		c := newTestCursor(t, newTestDeployment(1, 1), options.Cursor().SetPromiseLibrary(injected))

		adv := c.Iterator().Advance(context.Background())
		cf, ok := adv.Future.(*promise.CountedFuture)
		require.True(t, ok)
		assert.Same(t, injected, cf.Library())
		_, err := adv.Await(context.Background())
		require.NoError(t, err)
	})
}
