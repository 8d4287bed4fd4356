// Copyright (C) MongoDB, Inc. 2022-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package driver

// CalcBatchSize returns the number of documents to request in the next getMore for a cursor with
// the given batch size and limit that has already returned numReturned documents. ok is false
// once the limit has been reached and no further batch should be requested.
func CalcBatchSize(batchSize, limit, numReturned int32) (size int32, ok bool) {
	size = batchSize
	if limit != 0 && numReturned+batchSize >= limit {
		size = limit - numReturned
		if size <= 0 {
			return size, false
		}
	}
	return size, true
}
