// Itemwise - Incremental Item-Based Collaborative Filtering Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/itemwise

package cf

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ErrCorruptHistory reports a persisted user-history string with the
// wrong field count. Malformed history is data corruption and fails
// loudly at decode time rather than silently truncating.
var ErrCorruptHistory = errors.New("corrupt user rating history")

const (
	// historyRecordSep separates records in the persisted form.
	historyRecordSep = ";"

	// historyFieldSep separates the fields of one record.
	historyFieldSep = ":"

	// historyEpochSeconds is the fixed epoch the persisted relative
	// timestamp counts from (2020-01-01T00:00:00Z). Changing it breaks
	// compatibility with already-persisted histories.
	historyEpochSeconds int64 = 1577836800
)

// RatingRecord is one user's observed preference for one item.
// A zero Timestamp means no timestamp was recorded.
type RatingRecord struct {
	ItemID    string
	Rating    float64
	Timestamp time.Time
}

// EncodeHistory renders rating records into the persisted wire form:
// itemId:rating:relativeSeconds records joined by ";". The relative
// timestamp counts seconds since the fixed epoch and is empty for
// records without a timestamp. The encoding is bit-exact for
// compatibility across backends.
func EncodeHistory(records []RatingRecord) string {
	if len(records) == 0 {
		return ""
	}

	var b strings.Builder
	for i, r := range records {
		if i > 0 {
			b.WriteString(historyRecordSep)
		}
		b.WriteString(r.ItemID)
		b.WriteString(historyFieldSep)
		b.WriteString(strconv.FormatFloat(r.Rating, 'g', -1, 64))
		b.WriteString(historyFieldSep)
		if !r.Timestamp.IsZero() {
			b.WriteString(strconv.FormatInt(r.Timestamp.Unix()-historyEpochSeconds, 10))
		}
	}
	return b.String()
}

// DecodeHistory parses the persisted wire form back into rating
// records. An empty overall string produces an empty list. A record
// with the wrong field count returns ErrCorruptHistory.
func DecodeHistory(s string) ([]RatingRecord, error) {
	if s == "" {
		return []RatingRecord{}, nil
	}

	parts := strings.Split(s, historyRecordSep)
	records := make([]RatingRecord, 0, len(parts))

	for _, part := range parts {
		fields := strings.Split(part, historyFieldSep)
		if len(fields) != 3 {
			return nil, fmt.Errorf("%w: record %q has %d fields, want 3", ErrCorruptHistory, part, len(fields))
		}

		rating, err := strconv.ParseFloat(fields[1], 64)
		if err != nil {
			return nil, fmt.Errorf("%w: record %q: %v", ErrCorruptHistory, part, err)
		}

		rec := RatingRecord{ItemID: fields[0], Rating: rating}
		if fields[2] != "" {
			rel, err := strconv.ParseInt(fields[2], 10, 64)
			if err != nil {
				return nil, fmt.Errorf("%w: record %q: %v", ErrCorruptHistory, part, err)
			}
			rec.Timestamp = time.Unix(rel+historyEpochSeconds, 0).UTC()
		}

		records = append(records, rec)
	}

	return records, nil
}
