// Itemwise - Incremental Item-Based Collaborative Filtering Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/itemwise

package ingest

import (
	"fmt"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/google/uuid"
)

// Publisher sends rating events onto the pipeline.
type Publisher struct {
	pub message.Publisher
}

// NewPublisher wraps a Watermill publisher.
func NewPublisher(pub message.Publisher) *Publisher {
	return &Publisher{pub: pub}
}

// PublishRatings publishes each event as its own message. Events
// published before the first failure stay published; the pipeline
// tolerates partial batches.
func (p *Publisher) PublishRatings(events []RatingEvent) error {
	for _, event := range events {
		payload, err := event.Marshal()
		if err != nil {
			return fmt.Errorf("marshal rating event: %w", err)
		}
		msg := message.NewMessage(uuid.NewString(), payload)
		if err := p.pub.Publish(RatingsTopic, msg); err != nil {
			return fmt.Errorf("publish rating event: %w", err)
		}
	}
	return nil
}
