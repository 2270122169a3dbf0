package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/DukeRupert/fixiepixie/internal/metrics"
	"github.com/avast/retry-go"
	amqp "github.com/rabbitmq/amqp091-go"
)

const (
	// DefaultExchange is the topic exchange outcome events are published to.
	DefaultExchange = "fixiepixie.reports"

	publishTimeout  = 5 * time.Second
	connectAttempts = 5
	reconnectDelay  = 5 * time.Second
	initialDelay    = 1 * time.Second
	maxDelay        = 30 * time.Second
)

// ErrNotConnected is returned when publishing without an open channel.
var ErrNotConnected = errors.New("rabbitmq channel not available")

// Config contains broker settings.
type Config struct {
	URL      string
	Exchange string
	Attempts uint // Connect attempts at startup; defaults to 5
}

// RabbitPublisher publishes events to a RabbitMQ topic exchange and
// reconnects in the background when the connection drops.
type RabbitPublisher struct {
	config Config
	logger *slog.Logger

	mu      sync.RWMutex
	conn    *amqp.Connection
	channel *amqp.Channel
	done    chan struct{}
	once    sync.Once
}

// Connect dials the broker, retrying with backoff, and declares the exchange.
func Connect(ctx context.Context, config Config, logger *slog.Logger) (*RabbitPublisher, error) {
	if config.Exchange == "" {
		config.Exchange = DefaultExchange
	}
	if config.Attempts == 0 {
		config.Attempts = connectAttempts
	}

	p := &RabbitPublisher{
		config: config,
		logger: logger,
		done:   make(chan struct{}),
	}

	err := retry.Do(
		p.connect,
		retry.Context(ctx),
		retry.Attempts(config.Attempts),
		retry.Delay(initialDelay),
		retry.MaxDelay(maxDelay),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			logger.Warn("rabbitmq connect failed, retrying", "attempt", n+1, "error", err)
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect rabbitmq: %w", err)
	}

	go p.handleReconnect()

	logger.Info("rabbitmq publisher connected", "exchange", config.Exchange)
	return p, nil
}

func (p *RabbitPublisher) connect() error {
	conn, err := amqp.Dial(p.config.URL)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return fmt.Errorf("channel: %w", err)
	}

	err = ch.ExchangeDeclare(
		p.config.Exchange,
		"topic",
		true,  // durable
		false, // auto-deleted
		false, // internal
		false, // no-wait
		nil,
	)
	if err != nil {
		conn.Close()
		return fmt.Errorf("exchange declare: %w", err)
	}

	p.mu.Lock()
	p.conn = conn
	p.channel = ch
	p.mu.Unlock()
	return nil
}

func (p *RabbitPublisher) handleReconnect() {
	for {
		p.mu.RLock()
		conn := p.conn
		p.mu.RUnlock()

		select {
		case <-p.done:
			return
		case err, ok := <-conn.NotifyClose(make(chan *amqp.Error, 1)):
			if !ok && err == nil {
				// Closed by us.
				select {
				case <-p.done:
					return
				default:
				}
			}
			p.logger.Warn("rabbitmq disconnected", "error", err)

			p.mu.Lock()
			p.channel = nil
			p.mu.Unlock()

			if !p.reconnect() {
				return
			}
			p.logger.Info("rabbitmq reconnected")
		}
	}
}

// reconnect retries until connected or closed. It returns false once the
// publisher is closed.
func (p *RabbitPublisher) reconnect() bool {
	for {
		err := p.connect()
		if err == nil {
			return true
		}
		p.logger.Warn("rabbitmq reconnect failed", "error", err)

		select {
		case <-p.done:
			return false
		case <-time.After(reconnectDelay):
		}
	}
}

// Publish sends one persistent JSON message. It waits at most five seconds.
func (p *RabbitPublisher) Publish(ctx context.Context, event Event) error {
	err := p.publish(ctx, event)
	metrics.EventPublished(err)
	return err
}

func (p *RabbitPublisher) publish(ctx context.Context, event Event) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.channel == nil {
		return ErrNotConnected
	}

	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	err = p.channel.PublishWithContext(
		ctx,
		p.config.Exchange,
		event.RoutingKey(),
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			MessageId:    event.ReportID,
			Timestamp:    event.Timestamp,
			Body:         body,
		},
	)
	if err != nil {
		return fmt.Errorf("publish: %w", err)
	}
	return nil
}

// Close stops reconnecting and closes the connection.
func (p *RabbitPublisher) Close() error {
	p.once.Do(func() { close(p.done) })

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.channel != nil {
		p.channel.Close()
		p.channel = nil
	}
	if p.conn != nil {
		return p.conn.Close()
	}
	return nil
}

var _ Publisher = (*RabbitPublisher)(nil)
