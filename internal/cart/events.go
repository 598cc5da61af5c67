package cart

import (
	"encoding/json"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/gwatkins2090/portfolio/internal/domain"
)

// EventRecorder складывает изменения корзины в outbox для последующей публикации.
// Как и Persister, он не влияет на мутацию: ошибки только логируются.
type EventRecorder struct {
	outbox    domain.OutboxRepository
	sessionID string
	logger    *log.Entry
	now       func() time.Time
}

// NewEventRecorder создаёт recorder для сессии.
func NewEventRecorder(outbox domain.OutboxRepository, sessionID string, logger *log.Entry) *EventRecorder {
	if logger == nil {
		logger = log.WithField("component", "cart-events")
	}
	return &EventRecorder{
		outbox:    outbox,
		sessionID: sessionID,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Attach подписывает recorder на изменения стора.
func (r *EventRecorder) Attach(store *Store) (detach func()) {
	return store.Subscribe(r.OnChange)
}

// OnChange превращает изменение в CartEvent и ставит его в outbox.
func (r *EventRecorder) OnChange(change Change) {
	if r == nil || r.outbox == nil {
		return
	}

	totals := change.Snapshot.Totals
	if change.Final != nil {
		totals = change.Final.Totals
	}

	event := domain.CartEvent{
		SessionID:  r.sessionID,
		Type:       change.Type,
		Version:    change.Snapshot.Version,
		ArtworkID:  change.ArtworkID,
		Quantity:   change.Quantity,
		Totals:     totals,
		OccurredAt: r.now(),
	}

	fields := log.Fields{"session_id": r.sessionID, "event": change.Type}

	payload, err := json.Marshal(event)
	if err != nil {
		r.logger.WithError(err).WithFields(fields).Error("failed to encode cart event")
		return
	}

	if _, err := r.outbox.Enqueue(domain.OutboxMessage{
		AggregateType: domain.CartAggregateType,
		AggregateID:   r.sessionID,
		EventType:     string(change.Type),
		Payload:       payload,
	}); err != nil {
		r.logger.WithError(err).WithFields(fields).Warn("failed to enqueue cart event")
	}
}
