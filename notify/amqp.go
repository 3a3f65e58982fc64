package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Publisher is the part of *amqp.Channel the sink needs.
type Publisher interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

// AMQPSink publishes messages to a durable direct exchange; the routing key is the audience.
// The chat bot binds one queue per audience.
type AMQPSink struct {
	mu       sync.Mutex
	conn     *amqp.Connection
	pub      Publisher
	open     func() (Publisher, error)
	exchange string
}

func NewAMQPSink(url, exchange string) (*AMQPSink, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial amqp: %w", err)
	}

	s := &AMQPSink{conn: conn, exchange: exchange}
	s.open = s.openChannel

	pub, err := s.openChannel()
	if err != nil {
		conn.Close()
		return nil, err
	}
	s.pub = pub
	return s, nil
}

// NewAMQPSinkWithPublisher wraps an existing channel. open may be nil; when
// set it replaces the channel after the broker closes it.
func NewAMQPSinkWithPublisher(pub Publisher, exchange string, open func() (Publisher, error)) *AMQPSink {
	return &AMQPSink{pub: pub, exchange: exchange, open: open}
}

func (s *AMQPSink) openChannel() (Publisher, error) {
	ch, err := s.conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("open channel: %w", err)
	}
	if err := ch.ExchangeDeclare(s.exchange, "direct", true, false, false, false, nil); err != nil {
		ch.Close()
		return nil, fmt.Errorf("declare exchange %s: %w", s.exchange, err)
	}
	return ch, nil
}

func (s *AMQPSink) Name() string { return "amqp" }

// Send publishes msg. A channel-level error closes the channel on the broker
// side; the sink then opens a fresh one and retries once.
func (s *AMQPSink) Send(ctx context.Context, msg Message) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	publishing := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    msg.RunID.String(),
		Timestamp:    msg.SentAt,
		Body:         body,
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	err = s.pub.PublishWithContext(ctx, s.exchange, string(msg.Audience), false, false, publishing)
	if err == nil || !errors.Is(err, amqp.ErrClosed) || s.open == nil {
		return err
	}

	log.Printf("AMQP: channel closed, reopening: %v", err)
	pub, openErr := s.open()
	if openErr != nil {
		return fmt.Errorf("reopen channel: %w", openErr)
	}
	s.pub = pub
	return s.pub.PublishWithContext(ctx, s.exchange, string(msg.Audience), false, false, publishing)
}

func (s *AMQPSink) Close() error {
	if s.conn == nil {
		return nil
	}
	return s.conn.Close()
}
