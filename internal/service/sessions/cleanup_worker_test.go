package sessions

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/gwatkins2090/portfolio/internal/domain"
)

var _ domain.CartStorage = (*stubCartStorage)(nil)

func TestCleanupWorker_DeleteStale_Batches(t *testing.T) {
	t.Parallel()

	storage := &stubCartStorage{deleteResults: []int{2, 2, 1}}
	worker := NewCleanupWorker(storage, nil, WithBatchSize(2))

	deleted, err := worker.DeleteStale(context.Background(), time.Now().UTC())
	require.NoError(t, err)
	require.Equal(t, 5, deleted)
	require.Equal(t, 3, storage.calls())
}

func TestCleanupWorker_DeleteStale_Error(t *testing.T) {
	t.Parallel()

	storage := &stubCartStorage{deleteErrors: []error{errors.New("boom")}}
	worker := NewCleanupWorker(storage, nil, WithBatchSize(10))

	deleted, err := worker.DeleteStale(context.Background(), time.Now().UTC())
	require.Error(t, err)
	require.Zero(t, deleted)
}

func TestCleanupWorker_DeleteStale_UsesRetention(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	storage := &stubCartStorage{}
	worker := NewCleanupWorker(storage, nil, WithRetention(48*time.Hour))
	worker.now = func() time.Time { return now }

	_, err := worker.DeleteStale(context.Background(), time.Time{})
	require.NoError(t, err)
	require.Equal(t, now.Add(-48*time.Hour), storage.lastBefore())
}

func TestCleanupWorker_CleanupEvictsIdleCarts(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	evictor := &stubEvictor{result: 3}
	worker := NewCleanupWorker(nil, evictor, WithIdleTTL(time.Hour), WithRegisterer(prometheus.NewRegistry()))
	worker.now = func() time.Time { return now }

	worker.cleanup(context.Background())

	require.Equal(t, []time.Time{now.Add(-time.Hour)}, evictor.cutoffs())
}

func TestCleanupWorker_Run_StopsOnContextCancel(t *testing.T) {
	defer goleak.VerifyNone(t)

	storage := &stubCartStorage{deleteResults: []int{0, 0, 0}}
	evictor := &stubEvictor{}
	worker := NewCleanupWorker(storage, evictor,
		WithInterval(5*time.Millisecond),
		WithBatchSize(10),
	)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		worker.Run(ctx)
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("worker did not stop on context cancel")
	}

	require.NotZero(t, storage.calls())
	require.NotEmpty(t, evictor.cutoffs())
}

func TestCleanupWorker_RunDisabledWithoutTargets(t *testing.T) {
	t.Parallel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		NewCleanupWorker(nil, nil).Run(context.Background())
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("disabled worker must return immediately")
	}
}

type stubCartStorage struct {
	mu sync.Mutex

	deleteResults []int
	deleteErrors  []error
	callCount     int
	before        time.Time
}

func (s *stubCartStorage) Load(context.Context, string) ([]byte, error) {
	return nil, domain.ErrCartNotFound
}

func (s *stubCartStorage) Save(context.Context, string, []byte) error { return nil }

func (s *stubCartStorage) Delete(context.Context, string) error { return nil }

func (s *stubCartStorage) DeleteStale(_ context.Context, before time.Time, _ int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.callCount++
	s.before = before

	if len(s.deleteErrors) > 0 {
		err := s.deleteErrors[0]
		s.deleteErrors = s.deleteErrors[1:]
		if err != nil {
			return 0, err
		}
	}

	if len(s.deleteResults) == 0 {
		return 0, nil
	}
	result := s.deleteResults[0]
	s.deleteResults = s.deleteResults[1:]
	return result, nil
}

func (s *stubCartStorage) calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.callCount
}

func (s *stubCartStorage) lastBefore() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.before
}

type stubEvictor struct {
	mu      sync.Mutex
	result  int
	befores []time.Time
}

func (s *stubEvictor) EvictIdle(before time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.befores = append(s.befores, before)
	return s.result
}

func (s *stubEvictor) cutoffs() []time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]time.Time(nil), s.befores...)
}
