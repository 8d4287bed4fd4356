// Copyright (C) MongoDB, Inc. 2023-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package logger

import (
	"unicode/utf8"

	"github.com/tidwall/pretty"
	"go.mongodb.org/mongo-driver/bson"
)

// FormatDocument renders doc as compact extended JSON, cut to at most width bytes plus the truncation suffix.
// Truncation never splits a multi-byte rune.
func FormatDocument(doc bson.Raw, width uint) string {
	if len(doc) == 0 {
		return "{}"
	}

	str := string(pretty.Ugly([]byte(doc.String())))
	return truncate(str, width)
}

func truncate(str string, width uint) string {
	if width == 0 || uint(len(str)) <= width {
		return str
	}

	// back off to the start of a rune
	cut := int(width)
	for cut > 0 && !utf8.RuneStart(str[cut]) {
		cut--
	}

	return str[:cut] + TruncationSuffix
}
