// Copyright (C) MongoDB, Inc. 2023-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package logger

import (
	"time"
)

const (
	CursorMessageBatchFetched   = "Cursor batch fetched"
	CursorMessageFetchFailed    = "Cursor batch fetch failed"
	CursorMessageExhausted      = "Cursor exhausted"
	CursorMessageClosed         = "Cursor closed"
	CursorMessageReleaseFailed  = "Cursor release failed"
	CursorMessageLateBatch      = "Cursor discarded batch fetched after close"
	PromiseMessageLibraryChange = "Promise library changed"
)

// CursorMessage contains data that all cursor log messages contain.
type CursorMessage struct {
	MessageLiteral string
	CursorID       int64
	Kind           string
	Namespace      string
}

// Component implements ComponentMessage.
func (*CursorMessage) Component() Component {
	return ComponentCursor
}

// Message implements ComponentMessage.
func (msg *CursorMessage) Message() string {
	return msg.MessageLiteral
}

// Serialize implements ComponentMessage.
func (msg *CursorMessage) Serialize() []interface{} {
	return []interface{}{
		KeyMessage, msg.MessageLiteral,
		"cursorId", msg.CursorID,
		"kind", msg.Kind,
		"namespace", msg.Namespace,
	}
}

// CursorBatchMessage is logged for every completed fetch.
type CursorBatchMessage struct {
	CursorMessage

	BatchSize int32
	Documents int
	Exhausted bool
	Duration  time.Duration

	// FirstDocument is the rendered first document of the batch, if any.
	FirstDocument string
}

// Serialize implements ComponentMessage.
func (msg *CursorBatchMessage) Serialize() []interface{} {
	return append(msg.CursorMessage.Serialize(),
		"batchSize", msg.BatchSize,
		"documents", msg.Documents,
		"exhausted", msg.Exhausted,
		"durationMS", int64(msg.Duration/time.Millisecond),
		"firstDocument", msg.FirstDocument,
	)
}

// PromiseMessage is logged when the process-wide promise library is replaced.
type PromiseMessage struct {
	MessageLiteral string
	Previous       string
	Current        string
}

// Component implements ComponentMessage.
func (*PromiseMessage) Component() Component {
	return ComponentPromise
}

// Message implements ComponentMessage.
func (msg *PromiseMessage) Message() string {
	return msg.MessageLiteral
}

// Serialize implements ComponentMessage.
func (msg *PromiseMessage) Serialize() []interface{} {
	return []interface{}{
		KeyMessage, msg.MessageLiteral,
		"previous", msg.Previous,
		"current", msg.Current,
	}
}
