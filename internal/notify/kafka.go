package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"tile-depot/internal/model"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
)

// EventOrderStatusChanged is the event type published for every notification.
const EventOrderStatusChanged = "order.status_changed"

// Envelope wraps every published event.
type Envelope struct {
	EventID       string          `json:"event_id"`
	EventType     string          `json:"event_type"`
	EventVersion  int             `json:"event_version"`
	OccurredAt    time.Time       `json:"occurred_at"`
	Producer      string          `json:"producer"`
	CorrelationID string          `json:"correlation_id,omitempty"`
	Payload       json.RawMessage `json:"payload"`
}

// StatusPayload is the body of an order.status_changed event.
type StatusPayload struct {
	OrderID string `json:"order_id"`
	UserID  string `json:"user_id"`
	Status  string `json:"status"`
	Title   string `json:"title"`
	Message string `json:"message"`
}

// MessageWriter is satisfied by *kafka.Writer.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaNotifier publishes notifications as order events keyed by order id.
type KafkaNotifier struct {
	w        MessageWriter
	producer string
	now      func() time.Time
}

// NewKafkaWriter builds a synchronous writer; BestEffort bounds its latency.
func NewKafkaWriter(brokers []string, topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireAll,
		AllowAutoTopicCreation: true,
		BatchTimeout:           10 * time.Millisecond,
	}
}

func NewKafkaNotifier(w MessageWriter, producer string) *KafkaNotifier {
	return &KafkaNotifier{w: w, producer: producer, now: time.Now}
}

func (k *KafkaNotifier) Notify(ctx context.Context, n model.Notification) error {
	payload, err := json.Marshal(StatusPayload{
		OrderID: n.OrderID.String(),
		UserID:  n.UserID,
		Status:  string(n.Status),
		Title:   n.Title,
		Message: n.Message,
	})
	if err != nil {
		return fmt.Errorf("failed to encode payload: %w", err)
	}

	env := Envelope{
		EventID:       uuid.NewString(),
		EventType:     EventOrderStatusChanged,
		EventVersion:  1,
		OccurredAt:    k.now().UTC(),
		Producer:      k.producer,
		CorrelationID: n.OrderID.String(),
		Payload:       payload,
	}
	value, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("failed to encode envelope: %w", err)
	}

	msg := kafka.Message{
		Key:   []byte(n.OrderID.String()),
		Value: value,
		Time:  env.OccurredAt,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(env.EventType)},
		},
	}
	if err := k.w.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("failed to publish order event: %w", err)
	}
	return nil
}

// Close flushes and closes the writer.
func (k *KafkaNotifier) Close() error {
	return k.w.Close()
}
