package queue

import (
    "context"
    "encoding/json"
    "errors"
    "fmt"
    "io"
    "strings"
    "sync"
    "time"

    amqp "github.com/rabbitmq/amqp091-go"
    "go.uber.org/zap"
)

// BindingKey matches every reservation event.
const BindingKey = "reservation.#"

// Consumer drains the notification queue into a sink.  Delivery to people
// (email, SMS) happens downstream of the sink; this process only records
// what should be sent.
type Consumer struct {
    URL      string
    Exchange string
    Queue    string
    Prefetch int
    Sink     io.Writer
    Log      *zap.Logger

    mu sync.Mutex
}

// Run connects to the broker and consumes until ctx is cancelled.  Lost
// connections are re-established with exponential backoff capped at 30s.
func (c *Consumer) Run(ctx context.Context) error {
    log := c.Log
    if log == nil {
        log = zap.NewNop()
    }
    backoff := time.Second
    for {
        conn, err := amqp.Dial(c.URL)
        if err != nil {
            log.Warn("notification consumer: dial failed", zap.Error(err), zap.Duration("retry_in", backoff))
            if !sleepCtx(ctx, backoff) {
                return ctx.Err()
            }
            if backoff < 30*time.Second {
                backoff *= 2
            }
            continue
        }
        backoff = time.Second

        err = c.consume(ctx, conn, log)
        _ = conn.Close()
        if ctx.Err() != nil {
            return ctx.Err()
        }
        log.Warn("notification consumer: consume loop ended; reconnecting", zap.Error(err))
        if !sleepCtx(ctx, 2*time.Second) {
            return ctx.Err()
        }
    }
}

func (c *Consumer) consume(ctx context.Context, conn *amqp.Connection, log *zap.Logger) error {
    ch, err := conn.Channel()
    if err != nil {
        return fmt.Errorf("channel open: %w", err)
    }
    defer func() { _ = ch.Close() }()

    prefetch := c.Prefetch
    if prefetch <= 0 {
        prefetch = 50
    }
    if err := ch.Qos(prefetch, 0, false); err != nil {
        log.Warn("notification consumer: set QoS failed", zap.Error(err))
    }
    if err := declareExchange(ch, c.Exchange); err != nil {
        return fmt.Errorf("exchange declare: %w", err)
    }
    if _, err := ch.QueueDeclare(c.Queue, true, false, false, false, nil); err != nil {
        return fmt.Errorf("queue declare: %w", err)
    }
    if err := ch.QueueBind(c.Queue, BindingKey, c.Exchange, false, nil); err != nil {
        return fmt.Errorf("queue bind: %w", err)
    }
    msgs, err := ch.Consume(c.Queue, "", false, false, false, false, nil)
    if err != nil {
        return fmt.Errorf("queue consume: %w", err)
    }
    log.Info("notification consumer: consuming", zap.String("queue", c.Queue), zap.String("exchange", c.Exchange))

    for {
        select {
        case <-ctx.Done():
            return ctx.Err()
        case d, ok := <-msgs:
            if !ok {
                return errors.New("deliveries channel closed")
            }
            if err := c.Handle(d.Body); err != nil {
                log.Error("notification consumer: handle message failed", zap.Error(err),
                    zap.String("message_id", d.MessageId))
                _ = d.Nack(false, false) // reject, do not requeue to avoid tight loops
                continue
            }
            _ = d.Ack(false)
        }
    }
}

// Handle decodes one message body and appends it to the sink.
func (c *Consumer) Handle(body []byte) error {
    var ev ReservationEvent
    if err := json.Unmarshal(body, &ev); err != nil {
        return fmt.Errorf("unmarshal: %w", err)
    }
    if ev.Type == "" || ev.ReservationID == 0 {
        return errors.New("event without type or reservation id")
    }
    c.mu.Lock()
    defer c.mu.Unlock()
    if _, err := io.WriteString(c.Sink, FormatEvent(ev)); err != nil {
        return fmt.Errorf("write sink: %w", err)
    }
    return nil
}

// FormatEvent renders ev as one human-readable line.
func FormatEvent(ev ReservationEvent) string {
    var b strings.Builder
    fmt.Fprintf(&b, "[%s] %s -> %s | event_id=%s | reservation_id=%d | lab=%q | requester_id=%d | actor_id=%d | date=%s | time=%s-%s | status=%s",
        ev.OccurredAt, ev.Type, ev.Audience, ev.EventID, ev.ReservationID, ev.LabName, ev.RequesterID,
        ev.ActorID, ev.Date, ev.StartTime, ev.EndTime, ev.Status)
    if ev.Reason != "" {
        fmt.Fprintf(&b, " | reason=%q", ev.Reason)
    }
    b.WriteByte('\n')
    return b.String()
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
    t := time.NewTimer(d)
    defer t.Stop()
    select {
    case <-ctx.Done():
        return false
    case <-t.C:
        return true
    }
}
