package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// Publisher is the part of *amqp.Channel the AMQP sink uses.
type Publisher interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

// AMQPConfig names the broker and the exchange events are published to.
type AMQPConfig struct {
	URL          string
	Exchange     string
	ExchangeType string
	// RoutingPrefix is prepended to the event type to form the routing key.
	RoutingPrefix  string
	PublishTimeout time.Duration
}

// AMQPSink publishes each event as a persistent JSON message with the event
// type as routing key. Publish failures are logged and dropped.
type AMQPSink struct {
	pub     Publisher
	cfg     AMQPConfig
	logger  *zap.Logger
	mu      sync.Mutex
	closers []func() error
}

// NewAMQPSink wraps an already opened channel.
func NewAMQPSink(pub Publisher, cfg AMQPConfig, logger *zap.Logger) *AMQPSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.PublishTimeout <= 0 {
		cfg.PublishTimeout = 5 * time.Second
	}
	return &AMQPSink{pub: pub, cfg: cfg, logger: logger}
}

// DialAMQP connects to the broker, declares a durable exchange and returns a
// sink that owns the connection.
func DialAMQP(cfg AMQPConfig, logger *zap.Logger) (*AMQPSink, error) {
	if cfg.ExchangeType == "" {
		cfg.ExchangeType = "topic"
	}

	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("dial amqp: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open amqp channel: %w", err)
	}
	if err := ch.ExchangeDeclare(cfg.Exchange, cfg.ExchangeType, true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("declare exchange %q: %w", cfg.Exchange, err)
	}

	s := NewAMQPSink(ch, cfg, logger)
	s.closers = []func() error{ch.Close, conn.Close}
	return s, nil
}

func (s *AMQPSink) routingKey(event Event) string {
	return s.cfg.RoutingPrefix + event.EventType
}

func (s *AMQPSink) Emit(ctx context.Context, event Event) {
	if s == nil || s.pub == nil {
		return
	}
	body, err := json.Marshal(event)
	if err != nil {
		return
	}

	ctx, cancel := context.WithTimeout(ctx, s.cfg.PublishTimeout)
	defer cancel()

	s.mu.Lock()
	defer s.mu.Unlock()

	err = s.pub.PublishWithContext(ctx, s.cfg.Exchange, s.routingKey(event), false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    event.Timestamp,
		Type:         event.EventType,
		Body:         body,
	})
	if err != nil {
		s.logger.Warn("audit publish failed",
			zap.String("event_type", event.EventType),
			zap.Error(err),
		)
	}
}

// Close releases the channel and connection opened by DialAMQP.
func (s *AMQPSink) Close() error {
	if s == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	var first error
	for _, c := range s.closers {
		if err := c(); err != nil && first == nil {
			first = err
		}
	}
	s.closers = nil
	return first
}
