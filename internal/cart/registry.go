package cart

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/gwatkins2090/portfolio/internal/domain"
)

// ErrSessionRequired — обращение к корзине без идентификатора сессии.
var ErrSessionRequired = errors.New("cart session id is required")

// Metrics описывает метрики, которые пишет Registry.
type Metrics interface {
	RecordMutation(eventType string)
	RecordPersist(err error)
	RecordCheckout(totalMinor int64)
	SetActiveSessions(count int)
}

type nopMetrics struct{}

func (nopMetrics) RecordMutation(string) {}
func (nopMetrics) RecordPersist(error)   {}
func (nopMetrics) RecordCheckout(int64)  {}
func (nopMetrics) SetActiveSessions(int) {}

// RegistryOption настраивает Registry.
type RegistryOption func(*Registry)

// WithStorage включает сохранение корзин.
func WithStorage(storage domain.CartStorage) RegistryOption {
	return func(r *Registry) {
		r.storage = storage
	}
}

// WithOutbox включает запись событий корзины в outbox.
func WithOutbox(outbox domain.OutboxRepository) RegistryOption {
	return func(r *Registry) {
		r.outbox = outbox
	}
}

// WithMetrics задаёт метрики.
func WithMetrics(metrics Metrics) RegistryOption {
	return func(r *Registry) {
		if metrics != nil {
			r.metrics = metrics
		}
	}
}

// WithRegistryLogger задаёт logger.
func WithRegistryLogger(logger *log.Entry) RegistryOption {
	return func(r *Registry) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithPersistTimeout ограничивает время записи блоба.
func WithPersistTimeout(timeout time.Duration) RegistryOption {
	return func(r *Registry) {
		r.saveTimeout = timeout
	}
}

type session struct {
	id        string
	store     *Store
	lastSeen  time.Time
	persister *Persister
	recorder  *EventRecorder
	detach    []func()
}

// Registry держит корзины активных сессий в памяти и лениво поднимает их из хранилища.
type Registry struct {
	policy      domain.PricingPolicy
	storage     domain.CartStorage
	outbox      domain.OutboxRepository
	metrics     Metrics
	logger      *log.Entry
	saveTimeout time.Duration
	now         func() time.Time

	// detached вызывается после отписки кандидата на выгрузку; используется в тестах.
	detached func(sessionID string)

	mu       sync.Mutex
	sessions map[string]*session
}

// NewRegistry создаёт реестр корзин с общей политикой цен.
func NewRegistry(policy domain.PricingPolicy, options ...RegistryOption) *Registry {
	r := &Registry{
		policy:   policy,
		metrics:  nopMetrics{},
		logger:   log.WithField("component", "cart-registry"),
		now:      func() time.Time { return time.Now().UTC() },
		sessions: make(map[string]*session),
	}
	for _, option := range options {
		option(r)
	}
	return r
}

// Policy возвращает политику цен, которой считаются все корзины.
func (r *Registry) Policy() domain.PricingPolicy {
	return r.policy
}

// Get возвращает корзину сессии, при первом обращении загружая её из хранилища.
func (r *Registry) Get(ctx context.Context, sessionID string) (*Store, error) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return nil, ErrSessionRequired
	}

	r.mu.Lock()
	if sess, ok := r.sessions[sessionID]; ok {
		sess.lastSeen = r.now()
		r.mu.Unlock()
		return sess.store, nil
	}
	r.mu.Unlock()

	// Загрузка идёт без блокировки реестра: медленное хранилище не должно тормозить другие сессии.
	logger := r.logger.WithField("session_id", sessionID)
	store := LoadStore(ctx, r.storage, sessionID, r.policy, logger)

	r.mu.Lock()
	defer r.mu.Unlock()

	if sess, ok := r.sessions[sessionID]; ok {
		sess.lastSeen = r.now()
		return sess.store, nil
	}

	sess := &session{id: sessionID, store: store, lastSeen: r.now()}
	if r.storage != nil {
		sess.persister = NewPersister(r.storage, sessionID,
			WithSaveTimeout(r.saveTimeout),
			WithPersistObserver(r.metrics.RecordPersist),
			WithPersistLogger(logger),
		)
	}
	if r.outbox != nil {
		sess.recorder = NewEventRecorder(r.outbox, sessionID, logger)
	}
	r.attachLocked(sess)

	r.sessions[sessionID] = sess
	r.metrics.SetActiveSessions(len(r.sessions))
	return store, nil
}

// Checkout оформляет корзину сессии: фиксирует итог, публикует событие и очищает корзину.
func (r *Registry) Checkout(ctx context.Context, sessionID string) (domain.Totals, error) {
	store, err := r.Get(ctx, sessionID)
	if err != nil {
		return domain.Totals{}, err
	}

	final, err := store.Checkout()
	if err != nil {
		return domain.Totals{}, err
	}

	r.metrics.RecordCheckout(final.Totals.Total.AmountMinor)
	r.logger.WithFields(log.Fields{
		"session_id": sessionID,
		"items":      final.Totals.ItemCount,
		"total":      final.Totals.Total.String(),
	}).Info("cart checkout requested")
	return final.Totals, nil
}

// Drop выгружает сессию из памяти. Сохранённый блоб не трогается.
func (r *Registry) Drop(sessionID string) {
	r.mu.Lock()
	sess, ok := r.sessions[sessionID]
	if ok {
		delete(r.sessions, sessionID)
	}
	count := len(r.sessions)
	r.mu.Unlock()

	if !ok {
		return
	}
	sess.close()
	r.metrics.SetActiveSessions(count)
}

// EvictIdle выгружает сессии, к которым не обращались с момента before.
// Сессия, которую успели прочитать или изменить во время выгрузки, остаётся в памяти,
// а пропущенное состояние сразу сохраняется.
func (r *Registry) EvictIdle(before time.Time) int {
	type candidate struct {
		sess    *session
		version uint64
	}

	r.mu.Lock()
	var candidates []candidate
	for _, sess := range r.sessions {
		if sess.lastSeen.Before(before) {
			candidates = append(candidates, candidate{sess: sess, version: sess.store.Version()})
		}
	}
	r.mu.Unlock()

	evicted := 0
	for _, c := range candidates {
		c.sess.close()
		if r.detached != nil {
			r.detached(c.sess.id)
		}

		r.mu.Lock()
		if current, ok := r.sessions[c.sess.id]; !ok || current != c.sess {
			r.mu.Unlock()
			continue
		}
		version := c.sess.store.Version()
		if c.sess.lastSeen.Before(before) && version == c.version {
			delete(r.sessions, c.sess.id)
			evicted++
			r.mu.Unlock()
			continue
		}
		r.attachLocked(c.sess)
		r.mu.Unlock()

		if version != c.version {
			r.logger.WithFields(log.Fields{
				"session_id": c.sess.id,
				"version":    version,
			}).Warn("cart changed during eviction, keeping session")
			c.sess.flush()
		}
	}

	if evicted > 0 {
		r.metrics.SetActiveSessions(r.Len())
	}
	return evicted
}

// Len возвращает количество сессий в памяти.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// attachLocked подписывает метрики, сохранение и outbox на стор сессии.
// Любое изменение продлевает жизнь сессии так же, как обращение через Get.
func (r *Registry) attachLocked(sess *session) {
	sess.detach = sess.detach[:0]
	sess.detach = append(sess.detach, sess.store.Subscribe(func(change Change) {
		r.metrics.RecordMutation(string(change.Type))
		r.mu.Lock()
		sess.lastSeen = r.now()
		r.mu.Unlock()
	}))
	if sess.persister != nil {
		sess.detach = append(sess.detach, sess.persister.Attach(sess.store))
	}
	if sess.recorder != nil {
		sess.detach = append(sess.detach, sess.recorder.Attach(sess.store))
	}
}

func (s *session) close() {
	for _, detach := range s.detach {
		detach()
	}
}

// flush сохраняет текущее состояние, если изменения прошли мимо отписанного Persister.
func (s *session) flush() {
	if s.persister == nil {
		return
	}
	s.persister.OnChange(Change{Snapshot: s.store.Snapshot()})
}
