package kafka

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/gwatkins2090/portfolio/internal/domain"
)

var errPublisherNotInitialized = errors.New("kafka publisher is not initialized")

// OutboxTopicPublisher публикует события корзин из outbox в заданный topic.
// Ключом сообщения служит идентификатор сессии, поэтому события одной корзины идут по порядку.
type OutboxTopicPublisher struct {
	producer *Producer
	topic    string
	now      func() time.Time
}

// NewOutboxPublisher создаёт Kafka-паблишер для outbox.
func NewOutboxPublisher(producer *Producer, topic string) *OutboxTopicPublisher {
	if topic == "" {
		topic = TopicCartEvents
	}
	return &OutboxTopicPublisher{
		producer: producer,
		topic:    topic,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (p *OutboxTopicPublisher) Publish(event domain.OutboxMessage) error {
	if p == nil || p.producer == nil {
		return errPublisherNotInitialized
	}

	key := event.AggregateID
	if key == "" {
		key = event.ID
	}

	payload := json.RawMessage(event.Payload)
	if len(payload) == 0 {
		payload = json.RawMessage("null")
	}

	envelope := CartEventEnvelope{
		ID:            event.ID,
		AggregateType: event.AggregateType,
		SessionID:     event.AggregateID,
		EventType:     event.EventType,
		Payload:       payload,
		PublishedAt:   p.now(),
	}

	return p.producer.PublishEvent(p.topic, key, envelope,
		header(HeaderEventType, event.EventType),
		header(HeaderSessionID, event.AggregateID),
	)
}

var _ domain.OutboxPublisher = (*OutboxTopicPublisher)(nil)
