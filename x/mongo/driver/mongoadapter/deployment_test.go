// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package mongoadapter

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/ikmak/mongo-async-cursor/x/mongo/driver"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

func TestTranslateError(t *testing.T) {
	assert.Nil(t, translateError(nil))

	notFound := mongo.CommandError{Code: 43, Name: "CursorNotFound", Message: "cursor id 12 not found"}
	err := translateError(notFound)
	assert.True(t, errors.Is(err, driver.ErrCursorNotFound), "expected CursorNotFound, got %v", err)
	assert.Equal(t, "(CursorNotFound) cursor id 12 not found", err.Error())

	network := mongo.CommandError{Code: 6, Name: "HostUnreachable", Labels: []string{"NetworkError"}}
	var ne driver.NetworkError
	assert.True(t, errors.As(translateError(network), &ne))

	other := errors.New("boom")
	assert.Equal(t, other, translateError(other))
}

func TestDeploymentUnknownCursor(t *testing.T) {
	d := New(nil)

	_, err := d.FetchBatch(context.Background(), 99, 1)
	assert.Equal(t, driver.ErrCursorNotFound, err)
	assert.NoError(t, d.Release(context.Background(), 99))
	assert.NoError(t, d.Disconnect(context.Background()))
}

func heldFromDocuments(t *testing.T, docs ...interface{}) *heldCursor {
	t.Helper()

	cur, err := mongo.NewCursorFromDocuments(docs, nil, nil)
	require.NoError(t, err)
	return &heldCursor{cur: cur}
}

func TestDeploymentFetchLifecycle(t *testing.T) {
	ctx := context.Background()

	t.Run("exhausted by the server", func(t *testing.T) {
		d := New(nil)
		d.cursors[5] = heldFromDocuments(t, bson.D{{"n", int32(1)}})

		batch, err := d.FetchBatch(ctx, 5, 0)
		require.NoError(t, err)
		assert.True(t, batch.Exhausted)
		require.Len(t, batch.Documents, 1)
		assert.Equal(t, int32(1), batch.Documents[0].Lookup("n").Int32())
		assert.Empty(t, d.cursors)
	})

	t.Run("release during getMore", func(t *testing.T) {
		d := New(nil)
		d.cursors[5] = heldFromDocuments(t, bson.D{{"n", int32(1)}})

		h, err := d.acquire(5)
		require.NoError(t, err)
		_, err = d.acquire(5)
		assert.Error(t, err, "expected a second getMore on the same cursor to be rejected")

		require.NoError(t, d.Release(ctx, 5))
		assert.True(t, h.released)
		assert.Empty(t, d.cursors)

		_, err = d.FetchBatch(ctx, 5, 0)
		assert.Equal(t, driver.ErrCursorNotFound, err)

		drop, released := d.finish(5, h, false)
		assert.True(t, drop, "expected the fetching goroutine to close a released cursor")
		assert.True(t, released)
		require.NoError(t, h.cur.Close(ctx))
	})

	t.Run("release when idle", func(t *testing.T) {
		d := New(nil)
		h := heldFromDocuments(t, bson.D{{"n", int32(1)}})
		d.cursors[5] = h

		require.NoError(t, d.Release(ctx, 5))
		assert.False(t, h.released)
		assert.Empty(t, d.cursors)
	})

	t.Run("disconnect during getMore", func(t *testing.T) {
		d := New(nil)
		d.cursors[5] = heldFromDocuments(t, bson.D{{"n", int32(1)}})
		d.cursors[6] = heldFromDocuments(t, bson.D{{"n", int32(2)}})

		h, err := d.acquire(5)
		require.NoError(t, err)
		require.NoError(t, d.Disconnect(ctx))
		assert.True(t, h.released)
		assert.Empty(t, d.cursors)

		drop, released := d.finish(5, h, false)
		assert.True(t, drop)
		assert.True(t, released)
	})
}

func TestDeploymentIntegration(t *testing.T) {
	uri := os.Getenv("MONGODB_URI")
	if uri == "" {
		t.Skip("MONGODB_URI is not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	d, err := Connect(ctx, uri)
	require.NoError(t, err)
	defer func() { _ = d.Disconnect(ctx) }()

	coll := d.client.Database("cursorwalk_test").Collection(t.Name())
	require.NoError(t, coll.Drop(ctx))
	defer func() { _ = coll.Drop(ctx) }()

	docs := make([]interface{}, 10)
	for i := range docs {
		docs[i] = bson.D{{"n", int32(i)}}
	}
	_, err = coll.InsertMany(ctx, docs)
	require.NoError(t, err)

	cmd := driver.Command{Kind: driver.KindFind, Database: "cursorwalk_test", Collection: t.Name()}
	id, batch, err := d.Open(ctx, cmd, 3)
	require.NoError(t, err)
	require.NotZero(t, id)
	assert.Len(t, batch.Documents, 3)

	batch, err = d.FetchBatch(ctx, id, 4)
	require.NoError(t, err)
	assert.Len(t, batch.Documents, 4)
	assert.False(t, batch.Exhausted)

	require.NoError(t, d.Release(ctx, id))
	_, err = d.FetchBatch(ctx, id, 4)
	assert.Equal(t, driver.ErrCursorNotFound, err)

	cmd.Kind = driver.KindListIndexes
	_, batch, err = d.Open(ctx, cmd, 0)
	require.NoError(t, err)
	assert.True(t, batch.Exhausted)
	assert.Len(t, batch.Documents, 1)
}
