// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package options

import (
	"github.com/ikmak/mongo-async-cursor/event"
	"github.com/ikmak/mongo-async-cursor/promise"
)

// ClientOptions contains options to configure a Client. Cursor defaults set here apply to every cursor the
// client opens unless the cursor's own options override them.
type ClientOptions struct {
	BatchSize      *int32
	LoggerOptions  *LoggerOptions
	Monitor        *event.CursorMonitor
	PromiseLibrary promise.Library
}

// Client creates a new ClientOptions instance.
func Client() *ClientOptions {
	return &ClientOptions{}
}

// SetBatchSize specifies the default batch size for cursors.
func (c *ClientOptions) SetBatchSize(i int32) *ClientOptions {
	c.BatchSize = &i
	return c
}

// SetLoggerOptions specifies a LoggerOptions containing options for configuring a logger.
func (c *ClientOptions) SetLoggerOptions(opts *LoggerOptions) *ClientOptions {
	c.LoggerOptions = opts
	return c
}

// SetMonitor specifies a CursorMonitor to receive events from every cursor.
func (c *ClientOptions) SetMonitor(m *event.CursorMonitor) *ClientOptions {
	c.Monitor = m
	return c
}

// SetPromiseLibrary pins every cursor of the client to lib.
func (c *ClientOptions) SetPromiseLibrary(lib promise.Library) *ClientOptions {
	c.PromiseLibrary = lib
	return c
}

// CursorDefaults returns the cursor options implied by the client options.
func (c *ClientOptions) CursorDefaults() *CursorOptions {
	return &CursorOptions{
		BatchSize:      c.BatchSize,
		PromiseLibrary: c.PromiseLibrary,
		Monitor:        c.Monitor,
	}
}

// MergeClientOptions combines the given *ClientOptions into a single *ClientOptions in a last one wins fashion.
func MergeClientOptions(opts ...*ClientOptions) *ClientOptions {
	c := Client()
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if opt.BatchSize != nil {
			c.BatchSize = opt.BatchSize
		}
		if opt.LoggerOptions != nil {
			c.LoggerOptions = opt.LoggerOptions
		}
		if opt.Monitor != nil {
			c.Monitor = opt.Monitor
		}
		if opt.PromiseLibrary != nil {
			c.PromiseLibrary = opt.PromiseLibrary
		}
	}
	return c
}
