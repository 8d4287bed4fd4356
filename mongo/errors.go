// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package mongo

import (
	"fmt"

	"github.com/go-stack/stack"
	"github.com/pkg/errors"
)

// ErrNoDocuments is returned by Result.Decode and Step.Decode when there is no document to decode.
var ErrNoDocuments = errors.New("mongo: no documents in result")

// FetchError is returned when a cursor fails to retrieve a batch. The cursor is left as it was, so the pull may
// be retried.
type FetchError struct {
	CursorID int64
	Kind     string
	Wrapped  error
}

func (fe FetchError) Error() string {
	return fmt.Sprintf("%s cursor %d: fetching batch: %v", fe.Kind, fe.CursorID, fe.Wrapped)
}

// Unwrap returns the underlying error.
func (fe FetchError) Unwrap() error { return fe.Wrapped }

// Cause returns the root cause of the failure.
func (fe FetchError) Cause() error { return errors.Cause(fe.Wrapped) }

// ReleaseError is returned when the server fails to release a cursor. The cursor is closed locally regardless.
type ReleaseError struct {
	CursorID int64
	Wrapped  error
}

func (re ReleaseError) Error() string {
	return fmt.Sprintf("cursor %d: releasing server cursor: %v", re.CursorID, re.Wrapped)
}

// Unwrap returns the underlying error.
func (re ReleaseError) Unwrap() error { return re.Wrapped }

// Cause returns the root cause of the failure.
func (re ReleaseError) Cause() error { return errors.Cause(re.Wrapped) }

// ConcurrentAccessError is returned when a pull is started while another pull on the same cursor is still in
// flight. Pulls on a cursor must be serialized by the caller.
type ConcurrentAccessError struct {
	CursorID int64
	// InFlightSince is the call site that started the pull still in flight.
	InFlightSince stack.Call
}

func (cae ConcurrentAccessError) Error() string {
	return fmt.Sprintf("cursor %d: pull attempted while the pull started at %v is in flight", cae.CursorID, cae.InFlightSince)
}
