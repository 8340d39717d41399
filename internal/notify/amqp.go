// Package notify implements the outbound sinks the ticket engine hands side effects to.
package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/spec-kit/condo-service/internal/events"
)

// Publisher sends a JSON payload under a routing key.
type Publisher interface {
	Publish(ctx context.Context, routingKey string, payload any) error
}

// amqpChannel is the part of *amqp.Channel the publisher relies on.
type amqpChannel interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	NotifyClose(receiver chan *amqp.Error) chan *amqp.Error
	IsClosed() bool
	Close() error
}

// dialer opens a connection plus one channel on it. closeConn tears down the connection.
type dialer func(url string) (ch amqpChannel, closeConn func() error, err error)

func dialRabbit(url string) (amqpChannel, func() error, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, nil, err
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, nil, err
	}
	return ch, conn.Close, nil
}

// RabbitPublisher publishes JSON events to a RabbitMQ topic exchange. A channel closed by the
// broker or the network is replaced on the next Publish.
type RabbitPublisher struct {
	mu        sync.Mutex
	url       string
	exchange  string
	dial      dialer
	channel   amqpChannel
	closeConn func() error
	closed    chan *amqp.Error
	logger    *zap.Logger
}

// NewRabbitPublisher dials url and declares a durable topic exchange.
func NewRabbitPublisher(url, exchange string, logger *zap.Logger) (*RabbitPublisher, error) {
	return newRabbitPublisher(url, exchange, dialRabbit, logger)
}

func newRabbitPublisher(url, exchange string, dial dialer, logger *zap.Logger) (*RabbitPublisher, error) {
	p := &RabbitPublisher{url: url, exchange: exchange, dial: dial, logger: logger}
	if err := p.connect(); err != nil {
		return nil, err
	}
	logger.Info("connected to rabbitmq", zap.String("exchange", exchange))
	return p, nil
}

// connect must run with mu held or before the publisher is shared.
func (p *RabbitPublisher) connect() error {
	ch, closeConn, err := p.dial(p.url)
	if err != nil {
		return err
	}
	if err := ch.ExchangeDeclare(p.exchange, "topic", true, false, false, false, nil); err != nil {
		_ = closeConn()
		return err
	}
	p.channel = ch
	p.closeConn = closeConn
	p.closed = ch.NotifyClose(make(chan *amqp.Error, 1))
	return nil
}

func (p *RabbitPublisher) stale() bool {
	if p.channel == nil || p.channel.IsClosed() {
		return true
	}
	select {
	case <-p.closed:
		return true
	default:
		return false
	}
}

func (p *RabbitPublisher) drop() {
	if p.closeConn != nil {
		_ = p.closeConn()
	}
	p.channel = nil
	p.closeConn = nil
	p.closed = nil
}

func (p *RabbitPublisher) redial(cause string) error {
	p.logger.Warn("amqp channel lost; redialing", zap.String("exchange", p.exchange), zap.String("cause", cause))
	p.drop()
	if err := p.connect(); err != nil {
		return fmt.Errorf("amqp redial: %w", err)
	}
	return nil
}

// Publish serializes the payload to JSON and sends it to the exchange, redialing once when the
// channel turns out to be closed.
func (p *RabbitPublisher) Publish(ctx context.Context, routingKey string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	msg := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now().UTC(),
		Body:         body,
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stale() {
		if err := p.redial("channel closed"); err != nil {
			return err
		}
	}
	err = p.channel.PublishWithContext(ctx, p.exchange, routingKey, false, false, msg)
	if !errors.Is(err, amqp.ErrClosed) {
		return err
	}
	if err := p.redial("publish on closed channel"); err != nil {
		return err
	}
	return p.channel.PublishWithContext(ctx, p.exchange, routingKey, false, false, msg)
}

// Close terminates the connection.
func (p *RabbitPublisher) Close() error {
	if p == nil {
		return nil
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.channel == nil {
		return nil
	}
	if err := p.channel.Close(); err != nil {
		p.logger.Warn("close amqp channel", zap.Error(err))
	}
	closeConn := p.closeConn
	p.channel = nil
	p.closeConn = nil
	return closeConn()
}

// AMQPNotifier forwards ticket events under "ticket.<event>" routing keys.
type AMQPNotifier struct {
	publisher Publisher
}

// NewAMQPNotifier wraps publisher.
func NewAMQPNotifier(publisher Publisher) *AMQPNotifier {
	return &AMQPNotifier{publisher: publisher}
}

// Notify publishes the event.
func (n *AMQPNotifier) Notify(ctx context.Context, event events.Event) error {
	return n.publisher.Publish(ctx, TicketRoutingKey(event.Type), event)
}

// AMQPGamification forwards awards under "gamification.<kind>" routing keys.
type AMQPGamification struct {
	publisher Publisher
}

// NewAMQPGamification wraps publisher.
func NewAMQPGamification(publisher Publisher) *AMQPGamification {
	return &AMQPGamification{publisher: publisher}
}

// Award publishes one achievement trigger.
func (g *AMQPGamification) Award(ctx context.Context, userID, organizationID string, kind events.AwardKind, ticketID string) error {
	return g.publisher.Publish(ctx, "gamification."+string(kind), events.AwardPayload{
		UserID:         userID,
		OrganizationID: organizationID,
		Kind:           kind,
		TicketID:       ticketID,
	})
}

// TicketRoutingKey maps ticket_status_changed to ticket.status_changed.
func TicketRoutingKey(eventType events.EventType) string {
	return "ticket." + strings.TrimPrefix(string(eventType), "ticket_")
}
