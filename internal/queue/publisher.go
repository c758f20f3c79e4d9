package queue

import (
    "context"
    "encoding/json"
    "fmt"
    "time"

    amqp "github.com/rabbitmq/amqp091-go"
    "go.uber.org/zap"
)

// Publisher sends reservation events to a durable topic exchange.  A
// connection is opened per publish; event volume is a handful per
// reservation so there is no pool to manage.
type Publisher struct {
    url      string
    exchange string
    log      *zap.Logger
    dial     func(url string) (*amqp.Connection, error)
}

// NewPublisher returns a Publisher for the broker at url.
func NewPublisher(url, exchange string, log *zap.Logger) *Publisher {
    if log == nil {
        log = zap.NewNop()
    }
    return &Publisher{url: url, exchange: exchange, log: log, dial: amqp.Dial}
}

// declareExchange makes sure the topic exchange exists (idempotent).
func declareExchange(ch *amqp.Channel, name string) error {
    return ch.ExchangeDeclare(
        name,    // name
        "topic", // kind
        true,    // durable
        false,   // autoDelete
        false,   // internal
        false,   // noWait
        nil,     // args
    )
}

// Notify publishes ev under its routing key.  Messages are persistent.
// Errors are returned for the caller to log; the workflow never fails
// because of them.
func (p *Publisher) Notify(ctx context.Context, ev ReservationEvent) error {
    conn, err := p.dial(p.url)
    if err != nil {
        return fmt.Errorf("rabbitmq dial: %w", err)
    }
    defer func() { _ = conn.Close() }()

    ch, err := conn.Channel()
    if err != nil {
        return fmt.Errorf("rabbitmq channel: %w", err)
    }
    defer func() { _ = ch.Close() }()

    if err := declareExchange(ch, p.exchange); err != nil {
        return fmt.Errorf("rabbitmq exchange declare: %w", err)
    }

    body, err := json.Marshal(ev)
    if err != nil {
        return fmt.Errorf("marshal event: %w", err)
    }
    pub := amqp.Publishing{
        ContentType:  "application/json",
        DeliveryMode: amqp.Persistent,
        MessageId:    ev.EventID,
        Type:         ev.Type,
        Timestamp:    time.Now().UTC(),
        Body:         body,
    }
    if err := ch.PublishWithContext(ctx, p.exchange, ev.RoutingKey(), false, false, pub); err != nil {
        return fmt.Errorf("rabbitmq publish: %w", err)
    }
    p.log.Debug("reservation event published",
        zap.String("event_id", ev.EventID), zap.String("routing_key", ev.RoutingKey()))
    return nil
}
