// Copyright (C) MongoDB, Inc. 2023-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package logger

import (
	"fmt"
	"io"
	"os"

	"github.com/sirupsen/logrus"
)

// LogrusSink writes messages as structured logrus entries and is the default sink for the logger, with the default
// output being os.Stderr.
type LogrusSink struct {
	log *logrus.Logger
}

// Compile-time check to ensure LogrusSink implements the LogSink interface.
var _ LogSink = &LogrusSink{}

// NewLogrusSink will create a new LogrusSink that writes JSON entries to out. A nil out writes to os.Stderr.
func NewLogrusSink(out io.Writer) *LogrusSink {
	if out == nil {
		out = os.Stderr
	}

	log := logrus.New()
	log.SetOutput(out)
	log.SetFormatter(&logrus.JSONFormatter{})
	log.SetLevel(logrus.DebugLevel)

	return &LogrusSink{log: log}
}

// NewLogrusSinkFromLogger wraps an existing logrus logger.
func NewLogrusSinkFromLogger(log *logrus.Logger) *LogrusSink {
	return &LogrusSink{log: log}
}

// Info writes msg with the key-value pairs as fields. Verbosity above 0 is logged at debug level.
func (sink *LogrusSink) Info(level int, msg string, keysAndValues ...interface{}) {
	entry := sink.log.WithFields(fields(keysAndValues))
	if level > 0 {
		entry.Debug(msg)
		return
	}
	entry.Info(msg)
}

// Error writes msg and err with the key-value pairs as fields.
func (sink *LogrusSink) Error(err error, msg string, keysAndValues ...interface{}) {
	sink.log.WithFields(fields(keysAndValues)).WithError(err).Error(msg)
}

func fields(keysAndValues []interface{}) logrus.Fields {
	f := make(logrus.Fields, len(keysAndValues)/2)
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		key, ok := keysAndValues[i].(string)
		if !ok {
			key = fmt.Sprint(keysAndValues[i])
		}
		f[key] = keysAndValues[i+1]
	}
	return f
}
