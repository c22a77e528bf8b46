package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
)

// ErrBrokerUnavailable is returned without dialling while the publisher
// waits out the retry delay after a failed connect.
var ErrBrokerUnavailable = errors.New("rabbitmq: broker unavailable")

// PublisherOptions bounds the time a publish may spend reaching the broker.
type PublisherOptions struct {
	DialTimeout time.Duration // TCP connect plus AMQP handshake
	RetryAfter  time.Duration // no redial before this much time has passed since a failure
}

// Publisher publishes reservation events to RabbitMQ.  The connection is
// opened lazily on first use and re-opened after any failure, so a broker
// outage never blocks the service from starting.  After a failed connect
// publishes fail fast until RetryAfter has elapsed.
type Publisher struct {
	url  string
	opts PublisherOptions
	log  zerolog.Logger
	now  func() time.Time

	mu         sync.Mutex
	conn       *amqp.Connection
	ch         *amqp.Channel
	nextDialAt time.Time
}

// NewPublisher returns a publisher for the broker at url.
func NewPublisher(url string, opts PublisherOptions, log zerolog.Logger) *Publisher {
	if opts.DialTimeout <= 0 {
		opts.DialTimeout = 2 * time.Second
	}
	if opts.RetryAfter <= 0 {
		opts.RetryAfter = 10 * time.Second
	}
	return &Publisher{
		url:  url,
		opts: opts,
		log:  log.With().Str("component", "publisher").Logger(),
		now:  time.Now,
	}
}

// Publish sends ev to the reservation.events queue as a persistent JSON
// message.  Errors are logged and returned so the caller can choose to
// ignore them.
func (p *Publisher) Publish(ctx context.Context, ev ReservationEvent) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	ch, err := p.channel()
	if errors.Is(err, ErrBrokerUnavailable) {
		return err
	}
	if err != nil {
		p.log.Error().Err(err).Str("event", ev.Type).Dur("retry_after", p.opts.RetryAfter).Msg("rabbitmq: connect failed")
		return err
	}

	pub := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent, // store on disk
		MessageId:    ev.ID,
		Type:         ev.Type,
		Timestamp:    time.Now().UTC(),
		Body:         body,
	}
	if err := ch.PublishWithContext(ctx,
		"",        // default exchange
		QueueName, // routing key = queue name
		false,     // mandatory
		false,     // immediate
		pub,
	); err != nil {
		p.log.Error().Err(err).Str("event", ev.Type).Msg("rabbitmq: publish failed")
		p.reset()
		return err
	}
	return nil
}

// channel returns the open channel, dialling when needed.  p.mu must be held.
func (p *Publisher) channel() (*amqp.Channel, error) {
	if p.ch != nil && !p.ch.IsClosed() {
		return p.ch, nil
	}
	p.reset()
	if p.now().Before(p.nextDialAt) {
		return nil, ErrBrokerUnavailable
	}

	ch, err := p.open()
	if err != nil {
		p.nextDialAt = p.now().Add(p.opts.RetryAfter)
		return nil, err
	}
	p.nextDialAt = time.Time{}
	return ch, nil
}

func (p *Publisher) open() (*amqp.Channel, error) {
	// DefaultDial applies the timeout to the handshake as well, so a broker
	// that accepts but never answers cannot stall the caller.
	conn, err := amqp.DialConfig(p.url, amqp.Config{
		Heartbeat: 10 * time.Second,
		Locale:    "en_US",
		Dial:      amqp.DefaultDial(p.opts.DialTimeout),
	})
	if err != nil {
		return nil, fmt.Errorf("dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("channel open: %w", err)
	}
	// Ensure the queue exists (idempotent). Durable so messages survive broker restarts.
	if _, err := ch.QueueDeclare(QueueName, true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("queue declare: %w", err)
	}
	p.conn, p.ch = conn, ch
	return ch, nil
}

func (p *Publisher) reset() {
	if p.ch != nil {
		_ = p.ch.Close()
		p.ch = nil
	}
	if p.conn != nil {
		_ = p.conn.Close()
		p.conn = nil
	}
}

// Close releases the broker connection.
func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.reset()
	return nil
}

// NopPublisher discards every event.  It is used when EVENTS_ENABLED=false.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, ReservationEvent) error { return nil }
