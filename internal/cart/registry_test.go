package cart

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/gwatkins2090/portfolio/internal/domain"
)

type fakeOutbox struct {
	mu       sync.Mutex
	messages []domain.OutboxMessage
}

func (f *fakeOutbox) Enqueue(msg domain.OutboxMessage) (domain.OutboxMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.messages = append(f.messages, msg)
	return msg, nil
}

func (f *fakeOutbox) PullPending(int) ([]domain.OutboxMessage, error) { return nil, nil }
func (f *fakeOutbox) Stats() (domain.OutboxStats, error)              { return domain.OutboxStats{}, nil }
func (f *fakeOutbox) MarkSent(string) error                           { return nil }
func (f *fakeOutbox) MarkFailed(string) error                         { return nil }

func (f *fakeOutbox) events(t *testing.T) []domain.CartEvent {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()

	events := make([]domain.CartEvent, 0, len(f.messages))
	for _, msg := range f.messages {
		require.Equal(t, domain.CartAggregateType, msg.AggregateType)
		var event domain.CartEvent
		require.NoError(t, json.Unmarshal(msg.Payload, &event))
		events = append(events, event)
	}
	return events
}

type recordingMetrics struct {
	mu        sync.Mutex
	mutations []string
	checkouts []int64
	active    int
}

func (m *recordingMetrics) RecordMutation(eventType string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.mutations = append(m.mutations, eventType)
}

func (m *recordingMetrics) RecordPersist(error) {}

func (m *recordingMetrics) RecordCheckout(totalMinor int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.checkouts = append(m.checkouts, totalMinor)
}

func (m *recordingMetrics) SetActiveSessions(count int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.active = count
}

func TestRegistry_GetReturnsSameStore(t *testing.T) {
	registry := NewRegistry(domain.DefaultPricingPolicy(), WithRegistryLogger(quietLogger()))

	first, err := registry.Get(context.Background(), "s1")
	require.NoError(t, err)
	second, err := registry.Get(context.Background(), " s1 ")
	require.NoError(t, err)

	require.Same(t, first, second)
	require.Equal(t, 1, registry.Len())

	_, err = registry.Get(context.Background(), "")
	require.ErrorIs(t, err, ErrSessionRequired)
}

func TestRegistry_SurvivesEviction(t *testing.T) {
	storage := newFakeStorage()
	registry := NewRegistry(domain.DefaultPricingPolicy(),
		WithStorage(storage),
		WithRegistryLogger(quietLogger()),
	)

	store, err := registry.Get(context.Background(), "s1")
	require.NoError(t, err)
	require.NoError(t, store.AddItem(artwork("w1", 12000), 2))
	require.NoError(t, store.AddItem(artwork("w2", 4550), 1))

	require.Equal(t, 1, registry.EvictIdle(time.Now().Add(time.Minute)))
	require.Equal(t, 0, registry.Len())

	restored, err := registry.Get(context.Background(), "s1")
	require.NoError(t, err)
	require.NotSame(t, store, restored)
	require.Equal(t, int64(33405), restored.Total().AmountMinor)

	// Отписанный старый стор больше не пишет в хранилище.
	saves := storage.saves
	require.NoError(t, store.AddItem(artwork("w3", 100), 1))
	require.Equal(t, saves, storage.saves)
}

func TestRegistry_EvictIdleKeepsRecentSessions(t *testing.T) {
	registry := NewRegistry(domain.DefaultPricingPolicy(), WithRegistryLogger(quietLogger()))
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	registry.now = func() time.Time { return now.Add(-time.Hour) }
	_, err := registry.Get(context.Background(), "old")
	require.NoError(t, err)

	registry.now = func() time.Time { return now }
	_, err = registry.Get(context.Background(), "fresh")
	require.NoError(t, err)

	require.Equal(t, 1, registry.EvictIdle(now.Add(-time.Minute)))
	require.Equal(t, 1, registry.Len())
}

func TestRegistry_EvictIdleKeepsSessionChangedWhileDetaching(t *testing.T) {
	storage := newFakeStorage()
	registry := NewRegistry(domain.DefaultPricingPolicy(),
		WithStorage(storage),
		WithRegistryLogger(quietLogger()),
	)

	store, err := registry.Get(context.Background(), "s1")
	require.NoError(t, err)
	require.NoError(t, store.AddItem(artwork("w1", 12000), 1))

	registry.detached = func(string) {
		// Обработчик, получивший стор до выгрузки, меняет корзину.
		require.NoError(t, store.AddItem(artwork("w2", 4550), 1))
	}
	require.Zero(t, registry.EvictIdle(time.Now().Add(time.Minute)))
	registry.detached = nil
	require.Equal(t, 1, registry.Len())

	blob, ok := storage.blob("s1")
	require.True(t, ok)
	items, err := DecodeItems(blob)
	require.NoError(t, err)
	require.Len(t, items, 2, "change made while detached must be saved")

	// Подписки восстановлены: дальнейшие изменения снова сохраняются.
	require.NoError(t, store.AddItem(artwork("w3", 100), 1))
	blob, _ = storage.blob("s1")
	items, err = DecodeItems(blob)
	require.NoError(t, err)
	require.Len(t, items, 3)

	same, err := registry.Get(context.Background(), "s1")
	require.NoError(t, err)
	require.Same(t, store, same)
}

func TestRegistry_EvictIdleKeepsSessionReadWhileDetaching(t *testing.T) {
	registry := NewRegistry(domain.DefaultPricingPolicy(), WithRegistryLogger(quietLogger()))
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	registry.now = func() time.Time { return now.Add(-time.Hour) }
	store, err := registry.Get(context.Background(), "s1")
	require.NoError(t, err)

	registry.now = func() time.Time { return now }
	registry.detached = func(id string) {
		_, err := registry.Get(context.Background(), id)
		require.NoError(t, err)
	}
	require.Zero(t, registry.EvictIdle(now.Add(-time.Minute)))
	registry.detached = nil

	same, err := registry.Get(context.Background(), "s1")
	require.NoError(t, err)
	require.Same(t, store, same)
}

func TestRegistry_MutationExtendsSessionLifetime(t *testing.T) {
	registry := NewRegistry(domain.DefaultPricingPolicy(), WithRegistryLogger(quietLogger()))
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	registry.now = func() time.Time { return now.Add(-time.Hour) }
	store, err := registry.Get(context.Background(), "s1")
	require.NoError(t, err)

	registry.now = func() time.Time { return now }
	require.NoError(t, store.AddItem(artwork("w1", 100), 1))

	require.Zero(t, registry.EvictIdle(now.Add(-time.Minute)))
	require.Equal(t, 1, registry.Len())
}

func TestRegistry_Checkout(t *testing.T) {
	outbox := &fakeOutbox{}
	metrics := &recordingMetrics{}
	registry := NewRegistry(domain.DefaultPricingPolicy(),
		WithOutbox(outbox),
		WithMetrics(metrics),
		WithRegistryLogger(quietLogger()),
	)
	ctx := context.Background()

	_, err := registry.Checkout(ctx, "s1")
	require.ErrorIs(t, err, domain.ErrCartEmpty)

	store, err := registry.Get(ctx, "s1")
	require.NoError(t, err)
	require.NoError(t, store.AddItem(artwork("w1", 12000), 2))
	require.NoError(t, store.AddItem(artwork("w2", 4550), 1))

	totals, err := registry.Checkout(ctx, "s1")
	require.NoError(t, err)
	require.Equal(t, int64(33405), totals.Total.AmountMinor)
	require.True(t, store.IsEmpty())

	events := outbox.events(t)
	require.Len(t, events, 3)
	require.Equal(t, domain.CartEventItemAdded, events[0].Type)
	require.Equal(t, "w1", events[0].ArtworkID)
	last := events[2]
	require.Equal(t, domain.CartEventCheckoutRequested, last.Type)
	require.Equal(t, "s1", last.SessionID)
	require.Equal(t, int64(33405), last.Totals.Total.AmountMinor)
	require.Equal(t, 3, last.Quantity)

	require.Equal(t, []int64{33405}, metrics.checkouts)
	require.Equal(t, []string{"item_added", "item_added", "checkout_requested"}, metrics.mutations)
	require.Equal(t, 1, metrics.active)
}

func TestRegistry_Drop(t *testing.T) {
	metrics := &recordingMetrics{}
	registry := NewRegistry(domain.DefaultPricingPolicy(), WithMetrics(metrics), WithRegistryLogger(quietLogger()))

	_, err := registry.Get(context.Background(), "s1")
	require.NoError(t, err)
	registry.Drop("s1")
	registry.Drop("unknown")

	require.Equal(t, 0, registry.Len())
	require.Equal(t, 0, metrics.active)
}
