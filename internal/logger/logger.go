// Copyright (C) MongoDB, Inc. 2023-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

// Package logger is the component/level logger used by cursors. Messages are only built and handed to the sink when
// the level is enabled for their component.
package logger

import (
	"io"
)

// DefaultMaxDocumentLength is the default maximum number of bytes of a document rendered into a log message.
const DefaultMaxDocumentLength = 1000

// TruncationSuffix is appended to documents cut short by the max document length.
const TruncationSuffix = "..."

// KeyMessage is the key under which sinks receive the message text.
const KeyMessage = "message"

// LogSink is an interface that can be implemented to provide a custom sink for logs. It follows the shape of the
// logr.LogSink methods used here.
type LogSink interface {
	// Info logs a non-error message with the given key/value pairs. The level is logr verbosity, with 0 being Info.
	Info(level int, msg string, keysAndValues ...interface{})

	// Error logs an error, with the given message and key/value pairs.
	Error(err error, msg string, keysAndValues ...interface{})
}

// Logger routes component messages to a LogSink when their level is enabled.
type Logger struct {
	ComponentLevels   map[Component]Level
	Sink              LogSink
	MaxDocumentLength uint
}

// New will construct a new logger with the given LogSink. If the given LogSink is nil, then the logger will log using
// logrus with output to os.Stderr.
//
// The "componentLevels" parameter is variadic with the latest value taking precedence. Levels sourced from the
// environment apply to any component the parameter leaves unset.
func New(sink LogSink, maxDocumentLength uint, componentLevels ...map[Component]Level) *Logger {
	if sink == nil {
		sink = NewLogrusSink(nil)
	}
	if maxDocumentLength == 0 {
		maxDocumentLength = DefaultMaxDocumentLength
	}

	return &Logger{
		ComponentLevels: mergeComponentLevels(
			getEnvComponentLevels(),
			mergeComponentLevels(componentLevels...),
		),
		Sink:              sink,
		MaxDocumentLength: maxDocumentLength,
	}
}

// NewWithWriter will construct a new logger writing to w through a logrus sink.
func NewWithWriter(w io.Writer, maxDocumentLength uint, componentLevels ...map[Component]Level) *Logger {
	return New(NewLogrusSink(w), maxDocumentLength, componentLevels...)
}

// LevelComponentEnabled will return true if the given Level is enabled for the given Component. A nil logger has
// nothing enabled.
func (logger *Logger) LevelComponentEnabled(level Level, component Component) bool {
	if logger == nil || level == OffLevel {
		return false
	}
	return logger.ComponentLevels[component] >= level
}

// Print will print the given message to the sink if the level is enabled for its component.
func (logger *Logger) Print(level Level, msg ComponentMessage) {
	if !logger.LevelComponentEnabled(level, msg.Component()) {
		return
	}

	logger.Sink.Info(int(level)-DiffToInfo, msg.Message(), msg.Serialize()...)
}

// Error will print err to the sink if InfoLevel is enabled for the message's component.
func (logger *Logger) Error(err error, msg ComponentMessage) {
	if !logger.LevelComponentEnabled(InfoLevel, msg.Component()) {
		return
	}

	logger.Sink.Error(err, msg.Message(), msg.Serialize()...)
}
