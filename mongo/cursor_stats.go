// Copyright (C) MongoDB, Inc. 2017-present.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may
// not use this file except in compliance with the License. You may obtain
// a copy of the License at http://www.apache.org/licenses/LICENSE-2.0

package mongo

import (
	"time"

	"github.com/montanaflynn/stats"
)

// CursorStats summarizes the batches a cursor has fetched. Batches dropped because the cursor was closed are not
// counted.
type CursorStats struct {
	Batches   int
	Documents int

	MeanFetch   time.Duration
	MedianFetch time.Duration
	P90Fetch    time.Duration
}

type fetchStats struct {
	durations stats.Float64Data
	documents int
}

func (fs *fetchStats) add(d time.Duration, docs int) {
	fs.durations = append(fs.durations, float64(d))
	fs.documents += docs
}

func (fs *fetchStats) summary() CursorStats {
	cs := CursorStats{Batches: len(fs.durations), Documents: fs.documents}
	if len(fs.durations) == 0 {
		return cs
	}

	// errors are only returned for empty input
	mean, _ := fs.durations.Mean()
	median, _ := fs.durations.Median()
	p90, _ := fs.durations.Percentile(90)

	cs.MeanFetch = time.Duration(mean)
	cs.MedianFetch = time.Duration(median)
	cs.P90Fetch = time.Duration(p90)
	return cs
}

// Stats returns fetch statistics for the cursor.
func (c *Cursor) Stats() CursorStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats.summary()
}
