// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package drivertest

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/ikmak/mongo-async-cursor/x/mongo/driver"
	"go.mongodb.org/mongo-driver/bson/bsontype"
	"go.mongodb.org/mongo-driver/x/bsonx/bsoncore"
)

// codeBadValue is the server code for malformed command arguments.
const codeBadValue int32 = 2

func badValue(format string, args ...interface{}) error {
	return driver.ServerError{Code: codeBadValue, Name: "BadValue", Message: fmt.Sprintf(format, args...)}
}

// filterDocuments returns the documents matching filter. Only top-level equality is supported and query operators
// are rejected. Numbers compare by value across int32, int64 and double.
func filterDocuments(docs []bsoncore.Document, filter bsoncore.Document) ([]bsoncore.Document, error) {
	if len(filter) == 0 {
		return append([]bsoncore.Document(nil), docs...), nil
	}

	conds, err := filter.Elements()
	if err != nil {
		return nil, err
	}
	for _, cond := range conds {
		if strings.HasPrefix(cond.Key(), "$") {
			return nil, badValue("unknown top level operator: %s", cond.Key())
		}
		if sub, ok := cond.Value().DocumentOK(); ok {
			if first, err := sub.IndexErr(0); err == nil && strings.HasPrefix(first.Key(), "$") {
				return nil, badValue("unsupported query operator %s on field %s", first.Key(), cond.Key())
			}
		}
	}

	var out []bsoncore.Document
	for _, doc := range docs {
		if matches(doc, conds) {
			out = append(out, doc)
		}
	}
	return out, nil
}

func matches(doc bsoncore.Document, conds []bsoncore.Element) bool {
	for _, cond := range conds {
		v, err := doc.LookupErr(cond.Key())
		if err != nil || !equalValues(v, cond.Value()) {
			return false
		}
	}
	return true
}

func equalValues(a, b bsoncore.Value) bool {
	if af, ok := number(a); ok {
		bf, ok := number(b)
		return ok && af == bf
	}
	return a.Type == b.Type && bytes.Equal(a.Data, b.Data)
}

func number(v bsoncore.Value) (float64, bool) {
	switch v.Type {
	case bsontype.Int32:
		return float64(v.Int32()), true
	case bsontype.Int64:
		return float64(v.Int64()), true
	case bsontype.Double:
		return v.Double(), true
	default:
		return 0, false
	}
}

// runPipeline applies the supported aggregation stages: $match, $skip, $limit, $project (inclusion) and $count.
func runPipeline(docs []bsoncore.Document, pipeline []bsoncore.Document) ([]bsoncore.Document, error) {
	for _, stage := range pipeline {
		elems, err := stage.Elements()
		if err != nil {
			return nil, err
		}
		if len(elems) != 1 {
			return nil, badValue("a pipeline stage specification object must contain exactly one field")
		}

		name, arg := elems[0].Key(), elems[0].Value()
		switch name {
		case "$match":
			filter, ok := arg.DocumentOK()
			if !ok {
				return nil, badValue("the match filter must be an expression in an object")
			}
			if docs, err = filterDocuments(docs, filter); err != nil {
				return nil, err
			}
		case "$skip", "$limit":
			n, ok := number(arg)
			if !ok || n < 0 {
				return nil, badValue("invalid argument to %s stage", name)
			}
			count := int(n)
			if count > len(docs) {
				count = len(docs)
			}
			if name == "$skip" {
				docs = docs[count:]
			} else {
				docs = docs[:count]
			}
		case "$project":
			spec, ok := arg.DocumentOK()
			if !ok {
				return nil, badValue("$project specification must be an object")
			}
			if docs, err = project(docs, spec); err != nil {
				return nil, err
			}
		case "$count":
			field, ok := arg.StringValueOK()
			if !ok || field == "" {
				return nil, badValue("the count field must be a non-empty string")
			}
			docs = []bsoncore.Document{bsoncore.BuildDocumentFromElements(nil,
				bsoncore.AppendInt32Element(nil, field, int32(len(docs))),
			)}
		default:
			return nil, badValue("unrecognized pipeline stage name: '%s'", name)
		}
	}
	return docs, nil
}

func project(docs []bsoncore.Document, spec bsoncore.Document) ([]bsoncore.Document, error) {
	fields, err := spec.Elements()
	if err != nil {
		return nil, err
	}

	include := map[string]bool{"_id": true}
	for _, f := range fields {
		on := f.Value().Type == bsontype.Boolean && f.Value().Boolean()
		if n, ok := number(f.Value()); ok {
			on = n != 0
		}
		if !on && f.Key() != "_id" {
			return nil, badValue("exclusion projections other than _id are not supported")
		}
		include[f.Key()] = on
	}

	out := make([]bsoncore.Document, 0, len(docs))
	for _, doc := range docs {
		elems, err := doc.Elements()
		if err != nil {
			return nil, err
		}
		var kept [][]byte
		for _, elem := range elems {
			if include[elem.Key()] {
				kept = append(kept, elem)
			}
		}
		out = append(out, bsoncore.BuildDocumentFromElements(nil, kept...))
	}
	return out, nil
}
