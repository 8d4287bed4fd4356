// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

// Package mongo provides asynchronous cursors over server-held result sets.
//
// A Client wraps a driver.Deployment, the collaborator that runs commands and returns batches. The Database and
// Collection types open cursors lazily; no request is made until the first document is pulled:
//
//	coll := mongo.NewClient(deployment).Database("baz").Collection("qux")
//	cur, err := coll.Find(bson.D{{"bar", 1}})
//	if err != nil { log.Fatal(err) }
//	defer cur.Close(context.Background()).Await(context.Background())
//
// Every suspending operation returns a Future built by the active promise library. Documents can be pulled one
// at a time:
//
//	res, err := cur.PullNext(ctx).Await(ctx)
//	if err != nil { log.Fatal(err) }
//	if !res.Done {
//		// do something with res.Document....
//	}
//
// or consumed with a range loop, which is driven by the same Advance calls as manual iteration:
//
//	for doc, err := range cur.Iterator().All(ctx) {
//		if err != nil { log.Fatal(err) }
//		// do something with doc....
//	}
//
// Closing a cursor stops delivery at once. Documents buffered but not yet delivered are discarded, and a batch
// that arrives after the close is dropped.
package mongo // import "github.com/ikmak/mongo-async-cursor/mongo"
