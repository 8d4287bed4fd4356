// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package mongo

import (
	"github.com/ikmak/mongo-async-cursor/internal/logger"
	"github.com/ikmak/mongo-async-cursor/mongo/options"
	"github.com/ikmak/mongo-async-cursor/x/mongo/driver"
)

// Client opens cursors on a Deployment. It is safe for concurrent use by multiple goroutines.
type Client struct {
	deployment     driver.Deployment
	logger         *logger.Logger
	cursorDefaults *options.CursorOptions
}

// NewClient creates a new client over deployment.
func NewClient(deployment driver.Deployment, opts ...*options.ClientOptions) *Client {
	clientOpts := options.MergeClientOptions(opts...)

	return &Client{
		deployment:     deployment,
		logger:         options.NewLogger(clientOpts.LoggerOptions),
		cursorDefaults: clientOpts.CursorDefaults(),
	}
}

// Database returns a handle for the database with the given name.
func (c *Client) Database(name string) *Database {
	return &Database{client: c, name: name}
}

func (c *Client) openCursor(cmd driver.Command, opts ...*options.CursorOptions) (*Cursor, error) {
	merged := options.MergeCursorOptions(append([]*options.CursorOptions{c.cursorDefaults}, opts...)...)
	return newCursor(c.deployment, cmd, c.logger, merged)
}

// Database is a handle to a database.
type Database struct {
	client *Client
	name   string
}

// Name returns the name of the database.
func (db *Database) Name() string { return db.name }

// Client returns the Client the database was created from.
func (db *Database) Client() *Client { return db.client }

// Collection returns a handle for the collection with the given name.
func (db *Database) Collection(name string) *Collection {
	return &Collection{db: db, name: name}
}

// ListCollections returns a cursor over the collections of the database that match filter. No request is made
// until the first document is pulled.
func (db *Database) ListCollections(filter interface{}, opts ...*options.CursorOptions) (*Cursor, error) {
	f, err := transformDocument(filter)
	if err != nil {
		return nil, err
	}

	return db.client.openCursor(driver.Command{
		Kind:     driver.KindListCollections,
		Database: db.name,
		Filter:   f,
	}, opts...)
}

// Collection is a handle to a collection.
type Collection struct {
	db   *Database
	name string
}

// Name returns the name of the collection.
func (coll *Collection) Name() string { return coll.name }

// Database returns the Database the collection belongs to.
func (coll *Collection) Database() *Database { return coll.db }

// Find returns a cursor over the documents of the collection that match filter. No request is made until the
// first document is pulled.
func (coll *Collection) Find(filter interface{}, opts ...*options.CursorOptions) (*Cursor, error) {
	f, err := transformDocument(filter)
	if err != nil {
		return nil, err
	}

	return coll.db.client.openCursor(driver.Command{
		Kind:       driver.KindFind,
		Database:   coll.db.name,
		Collection: coll.name,
		Filter:     f,
	}, opts...)
}

// Aggregate returns a cursor over the results of running pipeline against the collection. The pipeline must be
// a slice of stage documents. No request is made until the first document is pulled.
func (coll *Collection) Aggregate(pipeline interface{}, opts ...*options.CursorOptions) (*Cursor, error) {
	stages, err := transformPipeline(pipeline)
	if err != nil {
		return nil, err
	}

	return coll.db.client.openCursor(driver.Command{
		Kind:       driver.KindAggregate,
		Database:   coll.db.name,
		Collection: coll.name,
		Pipeline:   stages,
	}, opts...)
}

// ListIndexes returns a cursor over the index specifications of the collection. No request is made until the
// first document is pulled.
func (coll *Collection) ListIndexes(opts ...*options.CursorOptions) (*Cursor, error) {
	return coll.db.client.openCursor(driver.Command{
		Kind:       driver.KindListIndexes,
		Database:   coll.db.name,
		Collection: coll.name,
	}, opts...)
}
