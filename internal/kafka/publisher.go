package kafka

import (
	"context"
	"fmt"
	"strconv"

	"github.com/segmentio/kafka-go"
)

// TopicPublisher routes encoded envelopes to the producer of their topic.
type TopicPublisher struct {
	producers map[string]*Producer
}

// NewTopicPublisher starts every producer it is given. Start is idempotent,
// so producers the caller already started are fine.
func NewTopicPublisher(producers ...*Producer) *TopicPublisher {
	m := make(map[string]*Producer, len(producers))
	for _, p := range producers {
		p.Start()
		m[p.Topic()] = p
	}
	return &TopicPublisher{producers: m}
}

func (t *TopicPublisher) Publish(ctx context.Context, topic string, key, value []byte) error {
	p, ok := t.producers[topic]
	if !ok {
		return fmt.Errorf("kafka: no producer for topic %q", topic)
	}
	var headers []kafka.Header
	if meta, err := PeekMeta(value); err == nil {
		headers = append(headers,
			kafka.Header{Key: "x-event-type", Value: []byte(meta.EventType)},
			kafka.Header{Key: "x-event-version", Value: []byte(strconv.Itoa(meta.EventVersion))},
		)
	}
	return p.Publish(ctx, key, value, headers...)
}

func (t *TopicPublisher) Close() {
	for _, p := range t.producers {
		p.Close()
	}
}
