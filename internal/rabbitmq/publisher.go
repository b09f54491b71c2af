package rabbitmq

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
)

// Publisher publishes JSON events to a topic exchange.
type Publisher interface {
	Publish(ctx context.Context, routingKey string, event any) error
	PublishJSON(ctx context.Context, routingKey string, event any, headers map[string]string) error
	Close() error
}

// Options configures the bus connection.
type Options struct {
	URL      string
	Exchange string
	// AppID stamps every publishing and names the connection in the broker UI.
	AppID string
}

// NewPublisher connects to the broker and declares the exchange. When the URL
// is empty or the first connection fails it returns a noop publisher, so chat
// keeps working without a bus.
func NewPublisher(opts Options, log *slog.Logger) Publisher {
	if log == nil {
		log = slog.Default()
	}
	if opts.URL == "" {
		log.Info("rabbitmq.disabled", "reason", "empty amqp url")
		return noopPublisher{reason: "empty amqp url", log: log}
	}

	p := &amqpPublisher{opts: opts, log: log}
	if err := p.connect(); err != nil {
		log.Warn("rabbitmq.disabled", "reason", err)
		return noopPublisher{reason: err.Error(), log: log}
	}

	log.Info("rabbitmq.connected", "exchange", opts.Exchange, "app_id", opts.AppID)
	return p
}

type amqpPublisher struct {
	opts Options
	log  *slog.Logger

	// guards conn and ch; amqp channels are not safe for concurrent publishing.
	mu     sync.Mutex
	conn   *amqp.Connection
	ch     *amqp.Channel
	closed bool
}

// connect dials and declares the exchange. Callers hold mu or own p exclusively.
func (p *amqpPublisher) connect() error {
	conn, err := amqp.DialConfig(p.opts.URL, amqp.Config{
		Properties: amqp.Table{"connection_name": p.opts.AppID},
	})
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return fmt.Errorf("open channel: %w", err)
	}
	if err := ch.ExchangeDeclare(p.opts.Exchange, amqp.ExchangeTopic, true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return fmt.Errorf("declare exchange %s: %w", p.opts.Exchange, err)
	}
	p.conn, p.ch = conn, ch
	return nil
}

func (p *amqpPublisher) Publish(ctx context.Context, routingKey string, event any) error {
	return p.PublishJSON(ctx, routingKey, event, nil)
}

func (p *amqpPublisher) PublishJSON(ctx context.Context, routingKey string, event any, headers map[string]string) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode %s: %w", routingKey, err)
	}
	msg := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    uuid.NewString(),
		AppId:        p.opts.AppID,
		Timestamp:    time.Now().UTC(),
		Headers:      toTable(headers),
		Body:         body,
	}
	if id := headers["x-request-id"]; id != "" {
		msg.CorrelationId = id
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return amqp.ErrClosed
	}

	err = p.publishLocked(ctx, routingKey, msg)
	if errors.Is(err, amqp.ErrClosed) {
		p.log.Info("rabbitmq.reconnect", "routing_key", routingKey)
		if err = p.connect(); err == nil {
			err = p.publishLocked(ctx, routingKey, msg)
		}
	}
	if err != nil {
		p.log.Warn("rabbitmq.publish.fail", "routing_key", routingKey, "message_id", msg.MessageId, "err", err)
	}
	return err
}

func (p *amqpPublisher) publishLocked(ctx context.Context, routingKey string, msg amqp.Publishing) error {
	if p.ch == nil || p.ch.IsClosed() {
		return amqp.ErrClosed
	}
	return p.ch.PublishWithContext(ctx, p.opts.Exchange, routingKey, false, false, msg)
}

func (p *amqpPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	if p.ch != nil {
		_ = p.ch.Close()
	}
	if p.conn != nil && !p.conn.IsClosed() {
		return p.conn.Close()
	}
	return nil
}

func toTable(headers map[string]string) amqp.Table {
	if len(headers) == 0 {
		return nil
	}
	table := make(amqp.Table, len(headers))
	for k, v := range headers {
		table[k] = v
	}
	return table
}

type noopPublisher struct {
	reason string
	log    *slog.Logger
}

func (n noopPublisher) Publish(ctx context.Context, routingKey string, event any) error {
	return n.PublishJSON(ctx, routingKey, event, nil)
}

func (n noopPublisher) PublishJSON(_ context.Context, routingKey string, _ any, headers map[string]string) error {
	n.log.Debug("rabbitmq.noop.publish", "routing_key", routingKey, "request_id", headers["x-request-id"])
	return nil
}

func (noopPublisher) Close() error {
	return nil
}

// PublisherMode reports the publisher mode for logging.
func PublisherMode(p Publisher) string {
	switch p.(type) {
	case *amqpPublisher:
		return "amqp"
	case noopPublisher:
		return "noop"
	default:
		return "unknown"
	}
}

// PublisherNoopReason explains why the noop publisher is in use.
func PublisherNoopReason(p Publisher) string {
	if publisher, ok := p.(noopPublisher); ok {
		return publisher.reason
	}
	return ""
}
