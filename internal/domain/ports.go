package domain

import (
	"context"
	"time"
)

// CartStorage хранит сериализованную корзину сессии одним блобом.
type CartStorage interface {
	// Load возвращает блоб сессии или ErrCartNotFound.
	Load(ctx context.Context, sessionID string) ([]byte, error)
	// Save целиком перезаписывает блоб сессии.
	Save(ctx context.Context, sessionID string, blob []byte) error
	// Delete удаляет блоб; отсутствие записи не считается ошибкой.
	Delete(ctx context.Context, sessionID string) error
	// DeleteStale удаляет до limit блобов, не обновлявшихся с момента before.
	DeleteStale(ctx context.Context, before time.Time, limit int) (int, error)
}

// OutboxPublisher публикует события из transactional outbox.
type OutboxPublisher interface {
	// Publish передаёт событие наружу; должен быть идемпотентным.
	Publish(event OutboxMessage) error
}

// OutboxRepository позволяет сохранять события для последующей публикации.
type OutboxRepository interface {
	Enqueue(msg OutboxMessage) (OutboxMessage, error)
	PullPending(limit int) ([]OutboxMessage, error)
	Stats() (OutboxStats, error)
	MarkSent(id string) error
	MarkFailed(id string) error
}

// OutboxMessage хранит данные для публикуемого события.
type OutboxMessage struct {
	ID            string
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
}

// OutboxStats описывает текущее состояние backlog transactional outbox.
type OutboxStats struct {
	PendingCount    int
	OldestPendingAt time.Time
}
