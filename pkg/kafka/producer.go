package kafka

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/angelmondragon/freightmarket-backend/pkg/config"
	"github.com/angelmondragon/freightmarket-backend/pkg/logger"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type dialFunc func(ctx context.Context, network, address string) (*kafka.Conn, error)

// Producer writes outbox events to Kafka. The topic is chosen per message so
// one writer serves every event stream.
type Producer struct {
	writer  messageWriter
	brokers []string
	dial    dialFunc
}

// NewProducer builds a writer keyed by aggregate id so one aggregate's events
// stay ordered within a partition.
func NewProducer(ctx context.Context, cfg config.KafkaConfig, logg *logger.Logger) (*Producer, error) {
	brokers := cfg.Brokers()
	if len(brokers) == 0 {
		return nil, errors.New("kafka brokers are required")
	}
	writeTimeout := cfg.WriteTimeout
	if writeTimeout <= 0 {
		writeTimeout = 10 * time.Second
	}
	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		WriteTimeout: writeTimeout,
		BatchTimeout: 50 * time.Millisecond,
		Transport:    &kafka.Transport{ClientID: cfg.ClientID},
	}
	if logg != nil {
		logg.Info(logg.WithField(ctx, "brokers", strings.Join(brokers, ",")), "kafka producer initialized")
	}
	return &Producer{writer: writer, brokers: brokers, dial: kafka.DialContext}, nil
}

// Publish writes one message. Headers are sorted by name for stable output.
func (p *Producer) Publish(ctx context.Context, topic string, key, value []byte, headers map[string]string) error {
	if p == nil || p.writer == nil {
		return errors.New("kafka producer not initialized")
	}
	if strings.TrimSpace(topic) == "" {
		return errors.New("kafka topic is required")
	}
	msg := kafka.Message{Topic: topic, Key: key, Value: value}
	names := make([]string, 0, len(headers))
	for name := range headers {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		msg.Headers = append(msg.Headers, kafka.Header{Key: name, Value: []byte(headers[name])})
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("write kafka message to %s: %w", topic, err)
	}
	return nil
}

// Ping dials the first reachable broker.
func (p *Producer) Ping(ctx context.Context) error {
	if p == nil {
		return errors.New("kafka producer not initialized")
	}
	var lastErr error
	for _, broker := range p.brokers {
		conn, err := p.dial(ctx, "tcp", broker)
		if err != nil {
			lastErr = err
			continue
		}
		return conn.Close()
	}
	if lastErr == nil {
		lastErr = errors.New("no kafka brokers configured")
	}
	return fmt.Errorf("dial kafka: %w", lastErr)
}

func (p *Producer) Close() error {
	if p == nil || p.writer == nil {
		return nil
	}
	return p.writer.Close()
}
