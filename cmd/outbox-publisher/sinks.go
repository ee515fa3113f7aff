package main

import (
	"context"
	"errors"
	"fmt"
	"sync"

	gcppubsub "cloud.google.com/go/pubsub/v2"

	"github.com/angelmondragon/freightmarket-backend/pkg/outbox/registry"
)

// message is the transport-neutral form of one outbox row.
type message struct {
	Key        string
	Data       []byte
	Attributes map[string]string
}

type sink interface {
	Name() string
	Ping(context.Context) error
	Publish(ctx context.Context, topic string, msg message) error
}

type pubSubClient interface {
	Ping(context.Context) error
	Publisher(name string) *gcppubsub.Publisher
}

type publisherFactory func(topic string) publisher

type publisher interface {
	Publish(context.Context, *gcppubsub.Message) publishResult
}

type publishResult interface {
	Get(context.Context) (string, error)
}

// pubSubSink publishes to Google Pub/Sub, caching one publisher per topic.
type pubSubSink struct {
	client  pubSubClient
	factory publisherFactory

	mu         sync.Mutex
	publishers map[string]publisher
}

func newPubSubSink(client pubSubClient) *pubSubSink {
	s := &pubSubSink{client: client, publishers: map[string]publisher{}}
	s.factory = func(topic string) publisher {
		return newGCPPubPublisher(client.Publisher(topic))
	}
	return s
}

func (s *pubSubSink) Name() string { return "pubsub" }

func (s *pubSubSink) Ping(ctx context.Context) error {
	return s.client.Ping(ctx)
}

func (s *pubSubSink) Publish(ctx context.Context, topic string, msg message) error {
	pub := s.publisher(topic)
	if pub == nil {
		return registry.NewNonRetryableError(fmt.Errorf("publisher not configured for topic %s", topic))
	}
	result := pub.Publish(ctx, &gcppubsub.Message{Data: msg.Data, Attributes: msg.Attributes})
	if result == nil {
		return registry.NewNonRetryableError(fmt.Errorf("publisher returned nil for topic %s", topic))
	}
	_, err := result.Get(ctx)
	return err
}

func (s *pubSubSink) publisher(topic string) publisher {
	s.mu.Lock()
	defer s.mu.Unlock()
	if pub, ok := s.publishers[topic]; ok {
		return pub
	}
	pub := s.factory(topic)
	if pub != nil {
		s.publishers[topic] = pub
	}
	return pub
}

func newGCPPubPublisher(p *gcppubsub.Publisher) publisher {
	if p == nil {
		return nil
	}
	return &gcpPublisher{Publisher: p}
}

type gcpPublisher struct {
	*gcppubsub.Publisher
}

func (p *gcpPublisher) Publish(ctx context.Context, msg *gcppubsub.Message) publishResult {
	if p == nil || p.Publisher == nil {
		return nil
	}
	return &gcpPublishResult{PublishResult: p.Publisher.Publish(ctx, msg)}
}

type gcpPublishResult struct {
	*gcppubsub.PublishResult
}

func (r *gcpPublishResult) Get(ctx context.Context) (string, error) {
	if r == nil || r.PublishResult == nil {
		return "", errors.New("publish result is nil")
	}
	return r.PublishResult.Get(ctx)
}

type kafkaProducer interface {
	Ping(context.Context) error
	Publish(ctx context.Context, topic string, key, value []byte, headers map[string]string) error
}

// kafkaSink keys every message by aggregate id.
type kafkaSink struct {
	producer kafkaProducer
}

func (s *kafkaSink) Name() string { return "kafka" }

func (s *kafkaSink) Ping(ctx context.Context) error {
	return s.producer.Ping(ctx)
}

func (s *kafkaSink) Publish(ctx context.Context, topic string, msg message) error {
	return s.producer.Publish(ctx, topic, []byte(msg.Key), msg.Data, msg.Attributes)
}
