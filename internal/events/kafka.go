// Package events publishes order events to Kafka.
package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/go-faster/errors"
	"github.com/segmentio/kafka-go"

	"github.com/xenking/quickeats/internal/domain/order"
)

// Writer is the subset of *kafka.Writer used by Publisher.
type Writer interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

var _ Writer = (*kafka.Writer)(nil)

// NewWriter returns a writer for topic. Messages are partitioned by key so
// the events of one order stay in order.
func NewWriter(brokers []string, topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireOne,
		BatchTimeout:           10 * time.Millisecond,
		AllowAutoTopicCreation: true,
	}
}

var _ order.Publisher = (*Publisher)(nil)

// Publisher writes order events as JSON keyed by order id.
type Publisher struct {
	w Writer
}

// NewPublisher wraps w.
func NewPublisher(w Writer) *Publisher {
	return &Publisher{w: w}
}

// Publish sends e.
func (p *Publisher) Publish(ctx context.Context, e order.Event) error {
	value, err := json.Marshal(e)
	if err != nil {
		return errors.Wrap(err, "marshal event")
	}
	msg := kafka.Message{
		Key:   []byte(e.OrderID),
		Value: value,
		Headers: []kafka.Header{
			{Key: "type", Value: []byte(e.Type)},
		},
		Time: time.UnixMilli(e.At),
	}
	if err := p.w.WriteMessages(ctx, msg); err != nil {
		return errors.Wrap(err, "write message")
	}
	return nil
}

// Close flushes pending messages.
func (p *Publisher) Close() error {
	return p.w.Close()
}

// Ping dials the first reachable broker.
func Ping(ctx context.Context, brokers []string) error {
	var lastErr error
	for _, b := range brokers {
		conn, err := kafka.DialContext(ctx, "tcp", b)
		if err != nil {
			lastErr = err
			continue
		}
		return conn.Close()
	}
	if lastErr == nil {
		return errors.New("no brokers")
	}
	return errors.Wrap(lastErr, "dial kafka")
}

// Nop discards events. It is used when no brokers are configured.
type Nop struct{}

var _ order.Publisher = Nop{}

func (Nop) Publish(context.Context, order.Event) error { return nil }
