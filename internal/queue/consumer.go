package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

const auditQueueName = "tickets.audit"

// AuditConsumer appends every ledger event on the tickets exchange to a log
// file, one line per event.
type AuditConsumer struct {
	url  string
	path string
}

// NewAuditConsumer returns a consumer that writes to path.
func NewAuditConsumer(url, path string) *AuditConsumer {
	if url == "" {
		url = DefaultURL
	}
	if path == "" {
		path = filepath.Join("logs", "booking.log")
	}
	return &AuditConsumer{url: url, path: path}
}

// Run connects to RabbitMQ, binds the durable audit queue to every routing
// key on the exchange and consumes until ctx is cancelled.  Broker failures
// are retried with exponential backoff capped at 30s.  Messages that cannot
// be handled are rejected without requeue.
func (c *AuditConsumer) Run(ctx context.Context) error {
	backoff := time.Second
	for {
		conn, err := dial(c.url)
		if err != nil {
			log.Printf("audit-consumer: failed to dial broker: %v; retrying in %s", err, backoff)
			if !sleep(ctx, backoff) {
				return ctx.Err()
			}
			if backoff < 30*time.Second {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second

		err = c.consume(ctx, conn)
		_ = conn.Close()
		if ctx.Err() != nil {
			return ctx.Err()
		}
		log.Printf("audit-consumer: consume loop ended: %v; reconnecting", err)
		if !sleep(ctx, 2*time.Second) {
			return ctx.Err()
		}
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

func (c *AuditConsumer) consume(ctx context.Context, conn *amqp.Connection) error {
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("channel open: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if err := ch.Qos(50, 0, false); err != nil {
		log.Printf("audit-consumer: set QoS failed: %v", err)
	}
	if err := declareExchange(ch); err != nil {
		return err
	}
	if _, err := ch.QueueDeclare(auditQueueName, true, false, false, false, nil); err != nil {
		return fmt.Errorf("queue declare: %w", err)
	}
	if err := ch.QueueBind(auditQueueName, "#", ExchangeName, false, nil); err != nil {
		return fmt.Errorf("queue bind: %w", err)
	}

	msgs, err := ch.Consume(auditQueueName, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("queue consume: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-msgs:
			if !ok {
				return errors.New("deliveries channel closed")
			}
			if err := c.handle(d.RoutingKey, d.Body); err != nil {
				log.Printf("audit-consumer: handle message failed: %v", err)
				_ = d.Nack(false, false)
				continue
			}
			_ = d.Ack(false)
		}
	}
}

func (c *AuditConsumer) handle(routingKey string, body []byte) error {
	line, err := FormatAuditLine(routingKey, body)
	if err != nil {
		return err
	}
	return appendLine(c.path, line)
}

func appendLine(path, line string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("mkdir %s: %w", filepath.Dir(path), err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	defer f.Close()
	if _, err := f.WriteString(line); err != nil {
		return fmt.Errorf("write log: %w", err)
	}
	return nil
}

// FormatAuditLine renders one event as a single newline-terminated log line.
// Unknown routing keys are rejected.
func FormatAuditLine(routingKey string, body []byte) (string, error) {
	switch routingKey {
	case RoutingBookingCreated:
		var ev BookingCreatedEvent
		if err := json.Unmarshal(body, &ev); err != nil {
			return "", fmt.Errorf("unmarshal %s: %w", routingKey, err)
		}
		return fmt.Sprintf("[%s] Booking created | booking_id=%s | tickets=%s | total_tickets=%d | total=%d cents\n",
			ev.BookedAt, ev.BookingID, formatLines(ev.Tickets), ev.TotalTickets, ev.PriceSummaryCents), nil
	case RoutingBookingAmended:
		var ev BookingAmendedEvent
		if err := json.Unmarshal(body, &ev); err != nil {
			return "", fmt.Errorf("unmarshal %s: %w", routingKey, err)
		}
		return fmt.Sprintf("[%s] Booking amended | booking_id=%s | tickets=%s | booking_removed=%t\n",
			ev.AmendedAt, ev.BookingID, formatLines(ev.Tickets), ev.BookingRemoved), nil
	case RoutingTicketRevoked:
		var ev TicketRevokedEvent
		if err := json.Unmarshal(body, &ev); err != nil {
			return "", fmt.Errorf("unmarshal %s: %w", routingKey, err)
		}
		return fmt.Sprintf("[%s] Ticket revoked | booking_id=%s | ticket_code=%s | quantity=%d | quantity_left=%d | booking_removed=%t\n",
			ev.RevokedAt, ev.BookingID, ev.TicketCode, ev.Quantity, ev.QuantityLeft, ev.BookingRemoved), nil
	default:
		return "", fmt.Errorf("unknown routing key %q", routingKey)
	}
}

func formatLines(lines []TicketLine) string {
	parts := make([]string, 0, len(lines))
	for _, l := range lines {
		parts = append(parts, fmt.Sprintf("%s:%d", l.TicketCode, l.Quantity))
	}
	return "[" + strings.Join(parts, ",") + "]"
}
