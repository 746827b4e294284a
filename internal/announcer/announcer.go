// Copyright 2025 Esteban Alvarez. All Rights Reserved.
//
// Created: October 2025
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package announcer publishes segment lifecycle events. spec.md names
// "the segment announcer" as an out-of-scope external collaborator the
// sink registry calls on creation; this package gives it the shape of a
// pluggable message producer, the way the teacher published idempotent
// commit records to a message bus in its persistence/kafka.go adapter —
// repurposed here for segment announcements instead of per-key commits.
package announcer

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"appenderator/pkg/segment"
)

// Announcer tells an external coordination system (e.g. a metadata
// catalog, a message bus, ZooKeeper in the original system this spec was
// distilled from) that a segment now exists. Registry.GetOrCreate treats
// a failure here as non-fatal (spec §4.1: "errors from announce are
// logged but non-fatal — the sink is still registered").
type Announcer interface {
	Announce(ctx context.Context, id segment.Identifier) error
}

// Producer is the minimal abstraction over a message-bus client an
// Announcer publishes through. Mirrors the teacher's KafkaProducer
// interface shape so a real broker client can be dropped in without
// changing Announcer's callers.
type Producer interface {
	Produce(ctx context.Context, topic string, key []byte, value []byte) error
}

// Message is the JSON payload published for a segment announcement.
type Message struct {
	Identifier segment.Identifier `json:"identifier"`
	Event      string             `json:"event"`
	TsUnixMs   int64              `json:"ts_unix_ms"`
}

// TopicAnnouncer publishes a Message per segment to a fixed topic via a
// Producer, defaulting to a 5s send timeout the way the teacher's
// KafkaPersister defaulted to 10s.
type TopicAnnouncer struct {
	producer       Producer
	topic          string
	defaultTimeout time.Duration
}

// NewTopicAnnouncer constructs a TopicAnnouncer publishing to topic.
func NewTopicAnnouncer(producer Producer, topic string) *TopicAnnouncer {
	return &TopicAnnouncer{producer: producer, topic: topic, defaultTimeout: 5 * time.Second}
}

func (a *TopicAnnouncer) Announce(ctx context.Context, id segment.Identifier) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if _, ok := ctx.Deadline(); !ok && a.defaultTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.defaultTimeout)
		defer cancel()
	}
	msg := Message{Identifier: id, Event: "segment_created", TsUnixMs: time.Now().UnixMilli()}
	b, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal announcement: %w", err)
	}
	if err := a.producer.Produce(ctx, a.topic, []byte(id.DirName()), b); err != nil {
		return fmt.Errorf("announce %s: %w", id, err)
	}
	return nil
}

// LoggingProducer is a dependency-free Producer that records each
// announcement it would have sent, for tests and single-node demos where
// no message bus is configured. Mirrors the teacher's LoggingKafkaProducer.
type LoggingProducer struct {
	mu   chan struct{}
	sent []Record
}

// Record captures one produced message for later inspection.
type Record struct {
	Topic string
	Key   string
	Value []byte
}

// NewLoggingProducer returns a ready-to-use LoggingProducer.
func NewLoggingProducer() *LoggingProducer {
	return &LoggingProducer{mu: make(chan struct{}, 1)}
}

func (p *LoggingProducer) Produce(ctx context.Context, topic string, key []byte, value []byte) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}
	p.mu <- struct{}{}
	p.sent = append(p.sent, Record{Topic: topic, Key: string(key), Value: append([]byte(nil), value...)})
	<-p.mu
	return nil
}

// Sent returns a snapshot of every message produced so far.
func (p *LoggingProducer) Sent() []Record {
	p.mu <- struct{}{}
	out := make([]Record, len(p.sent))
	copy(out, p.sent)
	<-p.mu
	return out
}

// NoopAnnouncer never fails; used where no announcement sink is wired.
type NoopAnnouncer struct{}

func (NoopAnnouncer) Announce(ctx context.Context, id segment.Identifier) error { return nil }
