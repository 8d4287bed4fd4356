// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

// cursorwalk opens a cursor and walks it document by document, either against an in-memory deployment seeded
// with generated documents or against a MongoDB deployment.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"

	"github.com/davecgh/go-spew/spew"
	"github.com/ikmak/mongo-async-cursor/event"
	"github.com/ikmak/mongo-async-cursor/mongo"
	"github.com/ikmak/mongo-async-cursor/mongo/options"
	"github.com/ikmak/mongo-async-cursor/promise"
	"github.com/ikmak/mongo-async-cursor/x/mongo/driver"
	"github.com/ikmak/mongo-async-cursor/x/mongo/driver/drivertest"
	"github.com/ikmak/mongo-async-cursor/x/mongo/driver/mongoadapter"
	krpretty "github.com/kr/pretty"
	"github.com/pkg/errors"
	"github.com/tidwall/pretty"
	"go.mongodb.org/mongo-driver/bson"
	"golang.org/x/sync/errgroup"
)

func main() {
	cfg, err := loadConfig(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	if cfg == nil {
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := run(ctx, cfg, os.Stdout, os.Stderr); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// lockedWriter serializes writes from concurrent walkers.
type lockedWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (lw *lockedWriter) Write(p []byte) (int, error) {
	lw.mu.Lock()
	defer lw.mu.Unlock()
	return lw.w.Write(p)
}

func run(ctx context.Context, cfg *config, stdout, stderr io.Writer) error {
	out := &lockedWriter{w: stdout}

	deployment, cleanup, err := openDeployment(ctx, cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	lib, err := promiseLibrary(cfg.Promise)
	if err != nil {
		return err
	}
	promise.Set(lib)
	defer promise.Set(nil)

	clientOpts := options.Client().SetBatchSize(cfg.BatchSize)
	if cfg.LogLevel != "off" {
		level := options.InfoLogLevel
		if cfg.LogLevel == "debug" {
			level = options.DebugLogLevel
		}
		clientOpts.SetLoggerOptions(options.Logger().
			SetComponentLevel(options.AllLogComponent, level).
			SetOutput(stderr))
	}
	if cfg.Events {
		clientOpts.SetMonitor(printingMonitor(out))
	}

	db := mongo.NewClient(deployment, clientOpts).Database(cfg.Database)

	var g errgroup.Group
	for i := 0; i < cfg.Parallel; i++ {
		prefix := ""
		if cfg.Parallel > 1 {
			prefix = fmt.Sprintf("[%d] ", i)
		}
		g.Go(func() error {
			return walk(ctx, cfg, db, out, prefix)
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	if counting, ok := lib.(*promise.Counting); ok {
		fmt.Fprintf(out, "futures created: %d, awaited: %d\n", counting.Created(), counting.Awaited())
	}
	return nil
}

func openDeployment(ctx context.Context, cfg *config) (driver.Deployment, func(), error) {
	if cfg.URI != "" {
		d, err := mongoadapter.Connect(ctx, cfg.URI)
		if err != nil {
			return nil, nil, err
		}
		return d, func() { _ = d.Disconnect(context.Background()) }, nil
	}

	d := drivertest.NewDeployment()
	docs := make([]interface{}, cfg.Seed)
	for i := range docs {
		docs[i] = bson.D{
			{"n", int32(i)},
			{"group", int32(i % 10)},
			{"name", fmt.Sprintf("doc-%04d", i)},
		}
	}
	if err := d.Insert(cfg.Database, cfg.Collection, docs...); err != nil {
		return nil, nil, errors.Wrap(err, "seeding in-memory deployment")
	}
	if err := d.CreateIndex(cfg.Database, cfg.Collection, "group_1", bson.D{{"group", 1}}); err != nil {
		return nil, nil, errors.Wrap(err, "seeding in-memory deployment")
	}
	return d, func() {}, nil
}

func promiseLibrary(name string) (promise.Library, error) {
	switch name {
	case "", "goroutine":
		return promise.Goroutine, nil
	case "inline":
		return promise.Inline, nil
	case "counting":
		return promise.NewCounting(promise.Goroutine), nil
	default:
		return nil, errors.Errorf("unknown promise library %q", name)
	}
}

func openCursor(cfg *config, db *mongo.Database) (*mongo.Cursor, error) {
	var cursorOpts []*options.CursorOptions
	if cfg.Limit > 0 {
		cursorOpts = append(cursorOpts, options.Cursor().SetLimit(cfg.Limit))
	}

	switch cfg.Command {
	case "", "find":
		filter, err := parseFilter(cfg.Filter)
		if err != nil {
			return nil, err
		}
		return db.Collection(cfg.Collection).Find(filter, cursorOpts...)
	case "aggregate":
		pipeline, err := parsePipeline(cfg.Pipeline)
		if err != nil {
			return nil, err
		}
		return db.Collection(cfg.Collection).Aggregate(pipeline, cursorOpts...)
	case "listIndexes":
		return db.Collection(cfg.Collection).ListIndexes(cursorOpts...)
	case "listCollections":
		filter, err := parseFilter(cfg.Filter)
		if err != nil {
			return nil, err
		}
		return db.ListCollections(filter, cursorOpts...)
	default:
		return nil, errors.Errorf("unknown command %q", cfg.Command)
	}
}

func parseFilter(text string) (bson.D, error) {
	filter := bson.D{}
	if text == "" {
		return filter, nil
	}
	if err := bson.UnmarshalExtJSON([]byte(text), false, &filter); err != nil {
		return nil, errors.Wrap(err, "parsing --filter")
	}
	return filter, nil
}

func parsePipeline(text string) ([]bson.D, error) {
	if text == "" {
		return []bson.D{}, nil
	}

	// a top-level array is not a document, so wrap it in one
	var wrapped struct {
		Pipeline []bson.D `bson:"pipeline"`
	}
	if err := bson.UnmarshalExtJSON([]byte(`{"pipeline":`+text+`}`), false, &wrapped); err != nil {
		return nil, errors.Wrap(err, "parsing --pipeline")
	}
	return wrapped.Pipeline, nil
}

func walk(ctx context.Context, cfg *config, db *mongo.Database, out io.Writer, prefix string) error {
	cursor, err := openCursor(cfg, db)
	if err != nil {
		return err
	}
	defer func() {
		_, _ = cursor.Close(ctx).Await(ctx)
	}()

	var count int
	for doc, err := range cursor.Iterator().All(ctx) {
		if err != nil {
			return err
		}
		count++

		if !cfg.Quiet {
			fmt.Fprintf(out, "%s%s\n", prefix, formatDocument(doc, cfg.Pretty))
		}
		if cfg.CloseAfter > 0 && count == cfg.CloseAfter {
			if _, err := cursor.Close(ctx).Await(ctx); err != nil {
				return err
			}
		}
	}

	fmt.Fprintf(out, "%swalked %d documents\n", prefix, count)
	if cfg.Dump {
		fmt.Fprint(out, prefix)
		spew.Fdump(out, cursor.Stats())
	}
	return nil
}

func formatDocument(doc bson.Raw, indent bool) []byte {
	if indent {
		return pretty.Pretty([]byte(doc.String()))
	}
	return pretty.Ugly([]byte(doc.String()))
}

func printingMonitor(out io.Writer) *event.CursorMonitor {
	return &event.CursorMonitor{
		Started: func(_ context.Context, evt *event.FetchStartedEvent) {
			krpretty.Fprintf(out, "started %# v\n", evt)
		},
		Succeeded: func(_ context.Context, evt *event.FetchSucceededEvent) {
			krpretty.Fprintf(out, "succeeded %# v\n", evt)
		},
		Failed: func(_ context.Context, evt *event.FetchFailedEvent) {
			krpretty.Fprintf(out, "failed %# v\n", evt)
		},
		Released: func(_ context.Context, evt *event.CursorReleasedEvent) {
			krpretty.Fprintf(out, "released %# v\n", evt)
		},
	}
}
