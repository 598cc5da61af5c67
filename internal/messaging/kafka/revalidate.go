package kafka

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/IBM/sarama"
	log "github.com/sirupsen/logrus"
)

// Revalidator инвалидирует локальный кэш контента по тегам.
type Revalidator interface {
	Revalidate(tags ...string) int
}

// RevalidationBroadcaster рассылает ревалидацию другим экземплярам сервиса.
type RevalidationBroadcaster struct {
	producer *Producer
	topic    string
	origin   string
	now      func() time.Time
}

// NewRevalidationBroadcaster создаёт рассыльщик. origin задаёт идентификатор текущего экземпляра.
func NewRevalidationBroadcaster(producer *Producer, origin string) *RevalidationBroadcaster {
	return &RevalidationBroadcaster{
		producer: producer,
		topic:    TopicContentRevalidate,
		origin:   origin,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Broadcast публикует теги. Ключом сообщения служит origin, поэтому события одного экземпляра не переупорядочиваются.
func (b *RevalidationBroadcaster) Broadcast(_ context.Context, tags []string) error {
	if b == nil || b.producer == nil {
		return errPublisherNotInitialized
	}
	if len(tags) == 0 {
		return nil
	}
	return b.producer.PublishEvent(b.topic, b.origin, RevalidateEvent{
		Tags:        tags,
		Origin:      b.origin,
		RequestedAt: b.now(),
	}, header(HeaderEventType, "content.revalidate"))
}

var errRevalidatorRequired = errors.New("revalidator is required")

// NewRevalidationHandler применяет чужие ревалидации к локальному кэшу.
// Собственные события экземпляра пропускаются: они уже применены при приёме запроса.
func NewRevalidationHandler(cache Revalidator, origin string, logger *log.Entry) MessageHandler {
	if logger == nil {
		logger = log.WithField("component", "content-revalidation-consumer")
	}
	return func(_ context.Context, message *sarama.ConsumerMessage) error {
		if cache == nil {
			return errRevalidatorRequired
		}
		event, err := ParseRevalidateEvent(message)
		if err != nil {
			return fmt.Errorf("parse revalidate event: %w", err)
		}
		if event.Origin != "" && event.Origin == origin {
			return nil
		}

		purged := cache.Revalidate(event.Tags...)
		logger.WithFields(log.Fields{
			"origin": event.Origin,
			"tags":   event.Tags,
			"purged": purged,
		}).Info("applied remote content revalidation")
		return nil
	}
}
