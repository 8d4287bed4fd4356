// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package mongo

import (
	"reflect"

	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/x/bsonx/bsoncore"
)

// ErrNilDocument is returned when a nil document is passed where one is required.
var ErrNilDocument = errors.New("document is nil")

// transformDocument marshals document into BSON. A nil document becomes the empty document.
func transformDocument(document interface{}) (bsoncore.Document, error) {
	switch t := document.(type) {
	case nil:
		return bsoncore.BuildDocument(nil, nil), nil
	case bsoncore.Document:
		return t, t.Validate()
	case bson.Raw:
		return bsoncore.Document(t), t.Validate()
	case []byte:
		return bsoncore.Document(t), bsoncore.Document(t).Validate()
	}

	raw, err := bson.Marshal(document)
	if err != nil {
		return nil, errors.Wrap(err, "marshalling document")
	}
	return bsoncore.Document(raw), nil
}

// transformPipeline marshals each stage of pipeline, which must be a slice or array of documents.
func transformPipeline(pipeline interface{}) ([]bsoncore.Document, error) {
	if pipeline == nil {
		return nil, nil
	}
	if _, ok := pipeline.(bson.D); ok {
		return nil, errors.New("pipeline must be a slice of stages, not a single bson.D")
	}

	val := reflect.ValueOf(pipeline)
	if val.Kind() != reflect.Slice && val.Kind() != reflect.Array {
		return nil, errors.Errorf("can only transform slices and arrays into aggregation pipelines, but got %v", val.Kind())
	}

	stages := make([]bsoncore.Document, 0, val.Len())
	for i := 0; i < val.Len(); i++ {
		stage := val.Index(i).Interface()
		if stage == nil {
			return nil, errors.Wrapf(ErrNilDocument, "pipeline stage %d", i)
		}
		doc, err := transformDocument(stage)
		if err != nil {
			return nil, errors.Wrapf(err, "pipeline stage %d", i)
		}
		stages = append(stages, doc)
	}
	return stages, nil
}
