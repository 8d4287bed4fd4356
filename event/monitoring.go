// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

// Package event contains the monitoring hooks cursors report to.
package event // import "github.com/ikmak/mongo-async-cursor/event"

import (
	"context"
	"time"
)

// CursorEvent holds the fields shared by every cursor event.
type CursorEvent struct {
	// CursorID is zero for the fetch that opens the cursor.
	CursorID  int64
	Kind      string
	Namespace string
}

// FetchStartedEvent represents an event generated when a cursor requests a batch.
type FetchStartedEvent struct {
	CursorEvent
	RequestedBatchSize int32
	// Initial is true for the command that opens the cursor and false for getMore requests.
	Initial bool
}

// FetchFinishedEvent represents a generic fetch finishing.
type FetchFinishedEvent struct {
	CursorEvent
	Duration time.Duration
}

// FetchSucceededEvent represents an event generated when a batch arrives.
type FetchSucceededEvent struct {
	FetchFinishedEvent
	Documents int
	Exhausted bool
	// Discarded is true when the cursor was closed while the fetch was in flight and the batch was dropped.
	Discarded bool
}

// FetchFailedEvent represents an event generated when a fetch fails.
type FetchFailedEvent struct {
	FetchFinishedEvent
	Failure error
}

// CursorReleasedEvent represents an event generated when a cursor has asked the server to drop its handle.
// Failure is nil when the server acknowledged the release.
type CursorReleasedEvent struct {
	CursorEvent
	Failure error
}

// CursorMonitor represents a monitor that is triggered for different cursor events. Any callback may be nil.
type CursorMonitor struct {
	Started   func(context.Context, *FetchStartedEvent)
	Succeeded func(context.Context, *FetchSucceededEvent)
	Failed    func(context.Context, *FetchFailedEvent)
	Released  func(context.Context, *CursorReleasedEvent)
}
