// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package driver

import (
	"errors"
	"fmt"
)

// Well-known server error codes.
const (
	CodeNamespaceNotFound int32 = 26
	CodeCursorNotFound    int32 = 43
)

// ServerError is an error reported by the server in a command reply.
type ServerError struct {
	Code    int32
	Name    string
	Message string
}

func (e ServerError) Error() string {
	if e.Name != "" {
		return fmt.Sprintf("(%s) %s", e.Name, e.Message)
	}
	return e.Message
}

// Is reports whether target is a ServerError with the same code.
func (e ServerError) Is(target error) bool {
	var other ServerError
	if !errors.As(target, &other) {
		return false
	}
	return e.Code == other.Code
}

// NetworkError is a failure to reach the server or to complete a round trip with it.
type NetworkError struct {
	Address string
	Wrapped error
}

func (e NetworkError) Error() string {
	if e.Address == "" {
		return fmt.Sprintf("network error: %v", e.Wrapped)
	}
	return fmt.Sprintf("network error communicating with %s: %v", e.Address, e.Wrapped)
}

// Unwrap returns the underlying error.
func (e NetworkError) Unwrap() error { return e.Wrapped }

// ErrCursorNotFound is returned when a command names a cursor the server does not hold.
var ErrCursorNotFound = ServerError{Code: CodeCursorNotFound, Name: "CursorNotFound", Message: "cursor not found"}
