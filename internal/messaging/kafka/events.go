package kafka

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/IBM/sarama"

	"github.com/gwatkins2090/portfolio/internal/domain"
)

// Topics для Kafka
const (
	TopicCartEvents        = "portfolio.cart.events"
	TopicCartDLQ           = "portfolio.cart.dlq"
	TopicContentRevalidate = "portfolio.content.revalidate"
	TopicContentDLQ        = "portfolio.content.dlq"
)

// Kafka headers
const (
	HeaderEventType     = "x-event-type"
	HeaderSessionID     = "x-session-id"
	HeaderRetryCount    = "x-retry-count"
	HeaderOriginalTopic = "x-original-topic"
	HeaderErrorMessage  = "x-error-message"
	HeaderFailedAt      = "x-failed-at"
)

// CartEventEnvelope — сообщение топика событий корзины.
type CartEventEnvelope struct {
	ID            string          `json:"id"`
	AggregateType string          `json:"aggregate_type"`
	SessionID     string          `json:"session_id"`
	EventType     string          `json:"event_type"`
	Payload       json.RawMessage `json:"payload"`
	PublishedAt   time.Time       `json:"published_at"`
}

// CartEvent разбирает полезную нагрузку конверта.
func (e CartEventEnvelope) CartEvent() (domain.CartEvent, error) {
	var event domain.CartEvent
	if err := json.Unmarshal(e.Payload, &event); err != nil {
		return domain.CartEvent{}, fmt.Errorf("failed to unmarshal cart event: %w", err)
	}
	return event, nil
}

// RevalidateEvent рассылает ревалидацию кэша контента всем экземплярам сервиса.
type RevalidateEvent struct {
	Tags        []string  `json:"tags"`
	Origin      string    `json:"origin"`
	RequestedAt time.Time `json:"requested_at"`
}

// ParseCartEventEnvelope парсит конверт события корзины из сообщения.
func ParseCartEventEnvelope(message *sarama.ConsumerMessage) (*CartEventEnvelope, error) {
	var envelope CartEventEnvelope
	if err := json.Unmarshal(message.Value, &envelope); err != nil {
		return nil, fmt.Errorf("failed to unmarshal cart event envelope: %w", err)
	}
	return &envelope, nil
}

// ParseRevalidateEvent парсит событие ревалидации из сообщения.
func ParseRevalidateEvent(message *sarama.ConsumerMessage) (*RevalidateEvent, error) {
	var event RevalidateEvent
	if err := json.Unmarshal(message.Value, &event); err != nil {
		return nil, fmt.Errorf("failed to unmarshal revalidate event: %w", err)
	}
	return &event, nil
}

func header(key, value string) sarama.RecordHeader {
	return sarama.RecordHeader{Key: []byte(key), Value: []byte(value)}
}

func headerValue(message *sarama.ConsumerMessage, key string) (string, bool) {
	for _, h := range message.Headers {
		if h != nil && string(h.Key) == key {
			return string(h.Value), true
		}
	}
	return "", false
}
