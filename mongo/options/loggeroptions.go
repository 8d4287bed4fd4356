// Copyright (C) MongoDB, Inc. 2023-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package options

import (
	"io"

	"github.com/ikmak/mongo-async-cursor/internal/logger"
)

// LogLevel is an enumeration representing the supported log severity levels.
type LogLevel int

const (
	// InfoLogLevel enables logging of informational messages. Example: a cursor being released.
	InfoLogLevel LogLevel = LogLevel(logger.InfoLevel)

	// DebugLogLevel enables logging of debug messages. These logs can be voluminous and are intended for detailed
	// information that may be helpful when debugging an application. Example: every batch a cursor fetches.
	DebugLogLevel LogLevel = LogLevel(logger.DebugLevel)
)

// LogComponent is an enumeration representing the "components" which can be logged against. A LogLevel can be
// configured on a per-component basis.
type LogComponent int

const (
	// AllLogComponent enables logging for all components.
	AllLogComponent LogComponent = LogComponent(logger.ComponentAll)

	// CursorLogComponent enables cursor lifecycle logging.
	CursorLogComponent LogComponent = LogComponent(logger.ComponentCursor)

	// PromiseLogComponent enables promise library logging.
	PromiseLogComponent LogComponent = LogComponent(logger.ComponentPromise)
)

// LogSink is an interface that can be implemented to provide a custom sink for logs. Any logr.LogSink satisfies
// it.
type LogSink interface {
	// Info logs a non-error message with the given key/value pairs. The level argument is provided for optional
	// logging.
	Info(level int, message string, keysAndValues ...interface{})

	// Error logs an error, with the given message and key/value pairs.
	Error(err error, message string, keysAndValues ...interface{})
}

// ComponentLevels maps components to the level enabled for them.
type ComponentLevels map[LogComponent]LogLevel

// LoggerOptions represent options used to configure logging.
type LoggerOptions struct {
	// ComponentLevels is a map of LogComponent to LogLevel. The LogLevel for a given LogComponent will be used to
	// determine if a log message should be logged.
	ComponentLevels ComponentLevels

	// Sink is the LogSink that will be used to log messages. If this is nil, logrus is used.
	Sink LogSink

	// Output is the writer to write logs to. If nil, the default is os.Stderr. Output is ignored if Sink is set.
	Output io.Writer

	// MaxDocumentLength is the maximum length of a document rendered into a log message. Zero means the default of
	// 1000 bytes.
	MaxDocumentLength uint
}

// Logger creates a new LoggerOptions instance.
func Logger() *LoggerOptions {
	return &LoggerOptions{
		ComponentLevels: ComponentLevels{},
	}
}

// SetComponentLevel sets the LogLevel value for a LogComponent.
func (opts *LoggerOptions) SetComponentLevel(component LogComponent, level LogLevel) *LoggerOptions {
	if opts.ComponentLevels == nil {
		opts.ComponentLevels = ComponentLevels{}
	}
	opts.ComponentLevels[component] = level

	return opts
}

// SetMaxDocumentLength sets the maximum length of a document rendered into a log message.
func (opts *LoggerOptions) SetMaxDocumentLength(maxDocumentLength uint) *LoggerOptions {
	opts.MaxDocumentLength = maxDocumentLength

	return opts
}

// SetSink sets the LogSink to use for logging.
func (opts *LoggerOptions) SetSink(sink LogSink) *LoggerOptions {
	opts.Sink = sink

	return opts
}

// SetOutput sets the writer used by the default sink.
func (opts *LoggerOptions) SetOutput(w io.Writer) *LoggerOptions {
	opts.Output = w

	return opts
}

// NewLogger builds the logger described by opts. A nil opts still honours the MONGODB_LOG_* environment
// variables.
func NewLogger(opts *LoggerOptions) *logger.Logger {
	if opts == nil {
		opts = Logger()
	}

	levels := make(map[logger.Component]logger.Level, len(opts.ComponentLevels))
	for component, level := range opts.ComponentLevels {
		levels[logger.Component(component)] = logger.Level(level)
	}

	if opts.Sink != nil {
		return logger.New(opts.Sink, opts.MaxDocumentLength, levels)
	}
	return logger.NewWithWriter(opts.Output, opts.MaxDocumentLength, levels)
}
