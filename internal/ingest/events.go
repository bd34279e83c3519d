// Itemwise - Incremental Item-Based Collaborative Filtering Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/itemwise

// Package ingest moves rating events from the API surface to the
// single training writer over a Watermill pub/sub channel. Buffered
// events are flushed into the incremental trainer by batch size or
// interval, whichever comes first.
package ingest

import (
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/itemwise/internal/cf"
)

// RatingsTopic carries rating events from publishers to the training
// service.
const RatingsTopic = "itemwise.ratings"

// RatingEvent is one user-item rating observation on the wire. Item
// identifiers must not contain "-": it is the pair key separator, so
// ids carrying it would mis-key persisted scores.
type RatingEvent struct {
	UserID string  `json:"user_id" validate:"required"`
	ItemID string  `json:"item_id" validate:"required,excludes=-"`
	Rating float64 `json:"rating"`

	// Timestamp is when the rating happened. Zero means unknown; decay
	// weighting then treats the rating as fresh.
	Timestamp time.Time `json:"timestamp,omitempty"`
}

// Record converts the event to its training form.
func (e RatingEvent) Record() cf.RatingRecord {
	return cf.RatingRecord{ItemID: e.ItemID, Rating: e.Rating, Timestamp: e.Timestamp}
}

// Marshal encodes the event for transport.
func (e RatingEvent) Marshal() ([]byte, error) {
	return json.Marshal(e)
}

// UnmarshalRatingEvent decodes one transported event.
func UnmarshalRatingEvent(payload []byte) (RatingEvent, error) {
	var event RatingEvent
	err := json.Unmarshal(payload, &event)
	return event, err
}
