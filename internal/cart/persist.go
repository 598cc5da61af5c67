package cart

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/gwatkins2090/portfolio/internal/domain"
)

const (
	blobVersion        = 1
	defaultSaveTimeout = 2 * time.Second
)

// ErrBlobCorrupted — сохранённый блоб не удалось разобрать.
var ErrBlobCorrupted = errors.New("cart blob is corrupted")

type persistedItem struct {
	Artwork  domain.Artwork `json:"artwork"`
	Quantity int            `json:"quantity"`
}

type persistedCart struct {
	Version int             `json:"version"`
	Items   []persistedItem `json:"items"`
	SavedAt time.Time       `json:"saved_at"`
}

// EncodeItems сериализует позиции в JSON-блоб сессии.
func EncodeItems(items []domain.LineItem, savedAt time.Time) ([]byte, error) {
	payload := persistedCart{
		Version: blobVersion,
		Items:   make([]persistedItem, 0, len(items)),
		SavedAt: savedAt.UTC(),
	}
	for _, item := range items {
		payload.Items = append(payload.Items, persistedItem{Artwork: item.Artwork, Quantity: item.Quantity})
	}
	return json.Marshal(payload)
}

// DecodeItems разбирает блоб. Неизвестная версия или битый JSON дают ErrBlobCorrupted.
func DecodeItems(blob []byte) ([]domain.LineItem, error) {
	var payload persistedCart
	if err := json.Unmarshal(blob, &payload); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBlobCorrupted, err)
	}
	if payload.Version != blobVersion {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrBlobCorrupted, payload.Version)
	}

	items := make([]domain.LineItem, 0, len(payload.Items))
	for _, item := range payload.Items {
		items = append(items, domain.LineItem{Artwork: item.Artwork, Quantity: item.Quantity})
	}
	return items, nil
}

// PersistObserver получает результат каждой попытки сохранения (используется метриками).
type PersistObserver func(err error)

// Persister сохраняет корзину сессии после каждой мутации.
// Ошибки сохранения логируются и дальше не передаются: корзина продолжает работать в памяти.
type Persister struct {
	storage   domain.CartStorage
	sessionID string
	logger    *log.Entry
	timeout   time.Duration
	observe   PersistObserver
	now       func() time.Time

	mu          sync.Mutex
	lastVersion uint64
}

// PersisterOption настраивает Persister.
type PersisterOption func(*Persister)

// WithSaveTimeout ограничивает время одной записи.
func WithSaveTimeout(timeout time.Duration) PersisterOption {
	return func(p *Persister) {
		if timeout > 0 {
			p.timeout = timeout
		}
	}
}

// WithPersistObserver задаёт наблюдателя за результатами записи.
func WithPersistObserver(observe PersistObserver) PersisterOption {
	return func(p *Persister) {
		p.observe = observe
	}
}

// WithPersistLogger задаёт logger.
func WithPersistLogger(logger *log.Entry) PersisterOption {
	return func(p *Persister) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// NewPersister создаёт адаптер сохранения для сессии.
func NewPersister(storage domain.CartStorage, sessionID string, options ...PersisterOption) *Persister {
	p := &Persister{
		storage:   storage,
		sessionID: sessionID,
		logger:    log.WithField("component", "cart-persister"),
		timeout:   defaultSaveTimeout,
		now:       func() time.Time { return time.Now().UTC() },
	}
	for _, option := range options {
		option(p)
	}
	return p
}

// Attach подписывает Persister на изменения стора.
func (p *Persister) Attach(store *Store) (detach func()) {
	return store.Subscribe(p.OnChange)
}

// OnChange перезаписывает блоб сессии. Устаревшие снимки (пришедшие после более новых) пропускаются.
func (p *Persister) OnChange(change Change) {
	if p == nil || p.storage == nil {
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if change.Snapshot.Version <= p.lastVersion {
		return
	}

	err := p.save(change.Snapshot)
	if p.observe != nil {
		p.observe(err)
	}
	if err != nil {
		p.logger.WithError(err).WithFields(log.Fields{
			"session_id": p.sessionID,
			"version":    change.Snapshot.Version,
		}).Warn("failed to persist cart, continuing in memory")
		return
	}
	p.lastVersion = change.Snapshot.Version
}

func (p *Persister) save(snapshot Snapshot) error {
	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	defer cancel()

	if len(snapshot.Items) == 0 {
		if err := p.storage.Delete(ctx, p.sessionID); err != nil {
			return fmt.Errorf("delete cart blob: %w", err)
		}
		return nil
	}

	blob, err := EncodeItems(snapshot.Items, p.now())
	if err != nil {
		return fmt.Errorf("encode cart blob: %w", err)
	}
	if err := p.storage.Save(ctx, p.sessionID, blob); err != nil {
		return fmt.Errorf("save cart blob: %w", err)
	}
	return nil
}

// LoadStore восстанавливает корзину сессии из хранилища.
// Отсутствие, недоступность хранилища или битый блоб дают пустую корзину.
func LoadStore(ctx context.Context, storage domain.CartStorage, sessionID string, policy domain.PricingPolicy, logger *log.Entry) *Store {
	if logger == nil {
		logger = log.WithField("component", "cart-loader")
	}
	store := NewStore(policy, WithLogger(logger))
	if storage == nil {
		return store
	}

	fields := log.Fields{"session_id": sessionID}

	blob, err := storage.Load(ctx, sessionID)
	if err != nil {
		if !errors.Is(err, domain.ErrCartNotFound) {
			logger.WithError(err).WithFields(fields).Warn("failed to load cart, starting empty")
		}
		return store
	}

	items, err := DecodeItems(blob)
	if err != nil {
		logger.WithError(err).WithFields(fields).Warn("stored cart is corrupted, starting empty")
		return store
	}

	if dropped := store.Restore(items); dropped > 0 {
		logger.WithFields(fields).WithField("dropped", dropped).Warn("dropped invalid items from stored cart")
	}
	return store
}
