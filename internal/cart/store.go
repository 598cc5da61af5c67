package cart

import (
	"fmt"
	"maps"
	"slices"
	"strings"
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/gwatkins2090/portfolio/internal/domain"
)

// Snapshot — неизменяемое состояние корзины после мутации.
type Snapshot struct {
	Items   []domain.LineItem
	Totals  domain.Totals
	Version uint64
}

// Change описывает завершённую мутацию и состояние после неё.
type Change struct {
	Type      domain.CartEventType
	ArtworkID string
	Quantity  int
	Snapshot  Snapshot
	// Final заполняется только для оформления: состояние корзины до очистки.
	Final *Snapshot

	seq uint64
}

// Option настраивает Store.
type Option func(*Store)

// WithLogger задаёт logger для стора.
func WithLogger(logger *log.Entry) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// Store — контейнер состояния корзины одной сессии.
//
// Мутации сериализуются мьютексом: каждая полностью завершается до начала следующей.
// Подписчики вызываются синхронно после мутации, уже без удержания блокировки,
// и получают изменения строго в порядке мутаций. Подписчик не должен менять тот же Store.
type Store struct {
	mu      sync.Mutex
	policy  domain.PricingPolicy
	items   []domain.LineItem
	version uint64

	// seq нумерует изменения для доставки; Restore его не двигает.
	seq uint64

	deliverMu sync.Mutex
	turn      *sync.Cond
	delivered uint64

	subsMu  sync.RWMutex
	subs    map[uint64]func(Change)
	nextSub uint64

	logger *log.Entry
}

// NewStore создаёт пустую корзину с заданной политикой цен.
func NewStore(policy domain.PricingPolicy, options ...Option) *Store {
	policy.Currency = strings.ToUpper(strings.TrimSpace(policy.Currency))
	s := &Store{
		policy: policy,
		subs:   make(map[uint64]func(Change)),
		logger: log.WithField("component", "cart-store"),
	}
	s.turn = sync.NewCond(&s.deliverMu)
	for _, option := range options {
		option(s)
	}
	return s
}

// Policy возвращает политику цен корзины.
func (s *Store) Policy() domain.PricingPolicy {
	return s.policy
}

// AddItem добавляет работу в корзину. Количество меньше 1 поднимается до 1.
// Если работа уже в корзине, её количество увеличивается; дубликатов не бывает.
// Некорректный снимок работы считается ошибкой вызывающего кода, состояние не меняется.
func (s *Store) AddItem(artwork domain.Artwork, quantity int) error {
	if err := artwork.Validate(); err != nil {
		return fmt.Errorf("add item: %w", err)
	}
	if !strings.EqualFold(artwork.Price.Currency, s.policy.Currency) {
		return fmt.Errorf("add item %s: %w", artwork.ID, domain.ErrCurrencyMismatch)
	}
	if quantity < 1 {
		quantity = 1
	}

	s.mu.Lock()
	if idx := s.indexOf(artwork.ID); idx >= 0 {
		s.items[idx].Quantity += quantity
	} else {
		s.items = append(s.items, domain.LineItem{Artwork: artwork, Quantity: quantity})
	}
	change := s.commitLocked(domain.CartEventItemAdded, artwork.ID, quantity)
	s.mu.Unlock()

	s.notify(change)
	return nil
}

// RemoveItem удаляет позицию. Отсутствие позиции не считается ошибкой.
func (s *Store) RemoveItem(artworkID string) {
	s.mu.Lock()
	idx := s.indexOf(artworkID)
	if idx < 0 {
		s.mu.Unlock()
		return
	}
	removed := s.items[idx].Quantity
	s.items = append(s.items[:idx], s.items[idx+1:]...)
	change := s.commitLocked(domain.CartEventItemRemoved, artworkID, removed)
	s.mu.Unlock()

	s.notify(change)
}

// UpdateQuantity задаёт точное количество. quantity <= 0 удаляет позицию.
func (s *Store) UpdateQuantity(artworkID string, quantity int) {
	if quantity <= 0 {
		s.RemoveItem(artworkID)
		return
	}

	s.mu.Lock()
	idx := s.indexOf(artworkID)
	if idx < 0 || s.items[idx].Quantity == quantity {
		s.mu.Unlock()
		return
	}
	s.items[idx].Quantity = quantity
	change := s.commitLocked(domain.CartEventQuantityUpdated, artworkID, quantity)
	s.mu.Unlock()

	s.notify(change)
}

// Clear очищает корзину. Повторный вызов на пустой корзине ничего не меняет.
func (s *Store) Clear() {
	s.mu.Lock()
	if len(s.items) == 0 {
		s.mu.Unlock()
		return
	}
	s.items = nil
	change := s.commitLocked(domain.CartEventCleared, "", 0)
	s.mu.Unlock()

	s.notify(change)
}

// Checkout атомарно забирает содержимое корзины и очищает её.
// Заказ не создаётся: вызывающий код получает итоговое состояние, а подписчики получают событие оформления.
func (s *Store) Checkout() (Snapshot, error) {
	s.mu.Lock()
	if len(s.items) == 0 {
		s.mu.Unlock()
		return Snapshot{}, domain.ErrCartEmpty
	}
	final := s.snapshotLocked()
	s.items = nil
	change := s.commitLocked(domain.CartEventCheckoutRequested, "", final.Totals.ItemCount)
	change.Final = &final
	s.mu.Unlock()

	s.notify(change)
	return final, nil
}

// Restore заменяет состояние данными из хранилища без уведомления подписчиков.
// Невалидные позиции и позиции в чужой валюте отбрасываются, дубликаты сливаются,
// количество поднимается до 1. Возвращает число отброшенных позиций.
func (s *Store) Restore(items []domain.LineItem) int {
	normalized := make([]domain.LineItem, 0, len(items))
	index := make(map[string]int, len(items))
	dropped := 0

	for _, item := range items {
		if item.Artwork.Validate() != nil || !strings.EqualFold(item.Artwork.Price.Currency, s.policy.Currency) {
			dropped++
			continue
		}
		if item.Quantity < 1 {
			item.Quantity = 1
		}
		if pos, ok := index[item.Artwork.ID]; ok {
			normalized[pos].Quantity += item.Quantity
			continue
		}
		index[item.Artwork.ID] = len(normalized)
		normalized = append(normalized, item)
	}

	s.mu.Lock()
	s.items = normalized
	s.version++
	s.mu.Unlock()

	return dropped
}

// Items возвращает копию позиций в порядке добавления.
func (s *Store) Items() []domain.LineItem {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.copyItemsLocked()
}

// Len возвращает количество позиций (а не единиц товара).
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}

// IsEmpty сообщает, что в корзине нет позиций.
func (s *Store) IsEmpty() bool {
	return s.Len() == 0
}

// Totals пересчитывает все суммы за одно чтение состояния.
func (s *Store) Totals() domain.Totals {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.policy.Price(s.items)
}

// Subtotal — сумма стоимостей позиций до налога и доставки.
func (s *Store) Subtotal() domain.Money { return s.Totals().Subtotal }

// Tax — налог с подытога, округлённый до центов.
func (s *Store) Tax() domain.Money { return s.Totals().Tax }

// Shipping — стоимость доставки с учётом порога бесплатной доставки.
func (s *Store) Shipping() domain.Money { return s.Totals().Shipping }

// Total складывает подытог, налог и доставку.
func (s *Store) Total() domain.Money { return s.Totals().Total }

// TotalItems — суммарное количество единиц во всех позициях.
func (s *Store) TotalItems() int { return s.Totals().ItemCount }

// Version возвращает номер последней мутации.
func (s *Store) Version() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.version
}

// Snapshot возвращает текущее состояние целиком.
func (s *Store) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// Subscribe регистрирует обработчик изменений и возвращает функцию отписки.
func (s *Store) Subscribe(fn func(Change)) (unsubscribe func()) {
	if fn == nil {
		return func() {}
	}

	s.subsMu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	s.subsMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.subsMu.Lock()
			delete(s.subs, id)
			s.subsMu.Unlock()
		})
	}
}

func (s *Store) indexOf(artworkID string) int {
	for i := range s.items {
		if s.items[i].Artwork.ID == artworkID {
			return i
		}
	}
	return -1
}

func (s *Store) commitLocked(eventType domain.CartEventType, artworkID string, quantity int) Change {
	s.version++
	s.seq++
	return Change{
		Type:      eventType,
		ArtworkID: artworkID,
		Quantity:  quantity,
		Snapshot:  s.snapshotLocked(),
		seq:       s.seq,
	}
}

func (s *Store) snapshotLocked() Snapshot {
	items := s.copyItemsLocked()
	return Snapshot{
		Items:   items,
		Totals:  s.policy.Price(items),
		Version: s.version,
	}
}

func (s *Store) copyItemsLocked() []domain.LineItem {
	items := make([]domain.LineItem, len(s.items))
	copy(items, s.items)
	return items
}

// notify ждёт, пока будут доставлены все предыдущие изменения, и только потом вызывает подписчиков.
func (s *Store) notify(change Change) {
	s.deliverMu.Lock()
	defer s.deliverMu.Unlock()
	for s.delivered+1 != change.seq {
		s.turn.Wait()
	}
	defer func() {
		s.delivered = change.seq
		s.turn.Broadcast()
	}()

	// Идентификаторы подписок растут монотонно: сортировка даёт порядок регистрации.
	s.subsMu.RLock()
	ids := slices.Sorted(maps.Keys(s.subs))
	handlers := make([]func(Change), 0, len(ids))
	for _, id := range ids {
		handlers = append(handlers, s.subs[id])
	}
	s.subsMu.RUnlock()

	for _, fn := range handlers {
		s.deliver(fn, change)
	}
}

func (s *Store) deliver(fn func(Change), change Change) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.WithFields(log.Fields{
				"event": change.Type,
				"panic": r,
			}).Error("cart subscriber panicked")
		}
	}()
	fn(change)
}
