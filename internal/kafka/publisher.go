package kafka

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/modadz/marketplace/internal/orders"
)

// Publisher owns one buffered Producer per topic and speaks the order
// event envelope.
type Publisher struct {
	producers map[string]*Producer
}

func NewPublisher(brokers []string, buf int, topics ...string) *Publisher {
	ps := make(map[string]*Producer, len(topics))
	for _, t := range topics {
		ps[t] = NewProducer(brokers, t, buf)
	}
	return &Publisher{producers: ps}
}

func (p *Publisher) Start(ctx context.Context) {
	for _, prod := range p.producers {
		prod.Start(ctx)
	}
}

func (p *Publisher) Publish(_ context.Context, topic string, env orders.Envelope) error {
	prod, ok := p.producers[topic]
	if !ok {
		return fmt.Errorf("no producer for topic %s", topic)
	}
	b, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}
	prod.Publish(orders.PartitionKey(env.CorrelationID), b)
	return nil
}

func (p *Publisher) Close() {
	for _, prod := range p.producers {
		prod.Close()
	}
}

func (p *Publisher) WaitClosed() {
	for _, prod := range p.producers {
		prod.WaitClosed()
	}
}

var _ orders.Publisher = (*Publisher)(nil)
