package sessions

import (
	"context"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	log "github.com/sirupsen/logrus"

	"github.com/gwatkins2090/portfolio/internal/domain"
)

const (
	defaultCleanupInterval  = 10 * time.Minute
	defaultCleanupBatchSize = 500
	defaultIdleTTL          = 30 * time.Minute
	defaultRetention        = 30 * 24 * time.Hour
)

// Evictor выгружает из памяти корзины, к которым давно не обращались.
type Evictor interface {
	EvictIdle(before time.Time) int
}

type cleanupMetrics struct {
	runs        *prometheus.CounterVec
	deleted     prometheus.Counter
	lastDeleted prometheus.Gauge
	evicted     prometheus.Counter
}

func newCleanupMetrics(registerer prometheus.Registerer) *cleanupMetrics {
	factory := promauto.With(registerer)
	return &cleanupMetrics{
		runs: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "portfolio_session_cleanup_runs_total",
			Help: "Total number of cart session cleanup runs grouped by result.",
		}, []string{"result"}),
		deleted: factory.NewCounter(prometheus.CounterOpts{
			Name: "portfolio_session_cleanup_deleted_total",
			Help: "Total number of deleted stale persisted carts.",
		}),
		lastDeleted: factory.NewGauge(prometheus.GaugeOpts{
			Name: "portfolio_session_cleanup_last_deleted",
			Help: "Number of persisted carts deleted during the last cleanup run.",
		}),
		evicted: factory.NewCounter(prometheus.CounterOpts{
			Name: "portfolio_session_cleanup_evicted_total",
			Help: "Total number of idle carts evicted from memory.",
		}),
	}
}

// CleanupOptions задает параметры воркера очистки сессий.
type CleanupOptions struct {
	Logger     *log.Entry
	Interval   time.Duration
	BatchSize  int
	IdleTTL    time.Duration
	Retention  time.Duration
	Registerer prometheus.Registerer
}

// CleanupOption настраивает CleanupWorker.
type CleanupOption func(*CleanupOptions)

// WithLogger задает logger для воркера.
func WithLogger(logger *log.Entry) CleanupOption {
	return func(opts *CleanupOptions) {
		opts.Logger = logger
	}
}

// WithInterval задает интервал между cleanup-циклами.
func WithInterval(interval time.Duration) CleanupOption {
	return func(opts *CleanupOptions) {
		opts.Interval = interval
	}
}

// WithBatchSize задает размер batch для одного удаления.
func WithBatchSize(batchSize int) CleanupOption {
	return func(opts *CleanupOptions) {
		opts.BatchSize = batchSize
	}
}

// WithIdleTTL задает, через сколько без обращений корзина выгружается из памяти.
func WithIdleTTL(ttl time.Duration) CleanupOption {
	return func(opts *CleanupOptions) {
		opts.IdleTTL = ttl
	}
}

// WithRetention задает срок хранения сохранённых корзин.
func WithRetention(retention time.Duration) CleanupOption {
	return func(opts *CleanupOptions) {
		opts.Retention = retention
	}
}

// WithRegisterer задает реестр метрик.
func WithRegisterer(registerer prometheus.Registerer) CleanupOption {
	return func(opts *CleanupOptions) {
		opts.Registerer = registerer
	}
}

// CleanupWorker выгружает простаивающие корзины и удаляет устаревшие сохранённые.
type CleanupWorker struct {
	storage   domain.CartStorage
	evictor   Evictor
	logger    *log.Entry
	metrics   *cleanupMetrics
	interval  time.Duration
	batchSize int
	idleTTL   time.Duration
	retention time.Duration
	now       func() time.Time
}

// NewCleanupWorker создает воркер. Любой из storage и evictor может быть nil.
func NewCleanupWorker(storage domain.CartStorage, evictor Evictor, options ...CleanupOption) *CleanupWorker {
	opts := CleanupOptions{
		Interval:  defaultCleanupInterval,
		BatchSize: defaultCleanupBatchSize,
		IdleTTL:   defaultIdleTTL,
		Retention: defaultRetention,
	}
	for _, option := range options {
		option(&opts)
	}

	logger := opts.Logger
	if logger == nil {
		logger = log.WithField("component", "session-cleanup-worker")
	}

	if opts.Interval <= 0 {
		opts.Interval = defaultCleanupInterval
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = defaultCleanupBatchSize
	}
	if opts.IdleTTL <= 0 {
		opts.IdleTTL = defaultIdleTTL
	}
	if opts.Retention <= 0 {
		opts.Retention = defaultRetention
	}

	return &CleanupWorker{
		storage:   storage,
		evictor:   evictor,
		logger:    logger,
		metrics:   newCleanupMetrics(opts.Registerer),
		interval:  opts.Interval,
		batchSize: opts.BatchSize,
		idleTTL:   opts.IdleTTL,
		retention: opts.Retention,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Run запускает периодическую очистку до отмены ctx.
func (w *CleanupWorker) Run(ctx context.Context) {
	if w.storage == nil && w.evictor == nil {
		w.logger.Warn("session cleanup worker is disabled: nothing to clean")
		return
	}

	w.cleanup(ctx)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.cleanup(ctx)
		}
	}
}

func (w *CleanupWorker) cleanup(ctx context.Context) {
	now := w.now()

	if w.evictor != nil {
		if evicted := w.evictor.EvictIdle(now.Add(-w.idleTTL)); evicted > 0 {
			w.metrics.evicted.Add(float64(evicted))
			w.logger.WithField("evicted", evicted).Debug("idle carts evicted")
		}
	}

	if w.storage == nil {
		return
	}

	deleted, err := w.DeleteStale(ctx, now.Add(-w.retention))
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		w.metrics.runs.WithLabelValues("error").Inc()
		w.logger.WithError(err).Warn("session cleanup run failed")
		return
	}

	w.metrics.runs.WithLabelValues("ok").Inc()
	w.metrics.lastDeleted.Set(float64(deleted))
	if deleted > 0 {
		w.logger.WithField("deleted", deleted).Info("session cleanup completed")
	}
}

// DeleteStale удаляет сохранённые корзины с updated_at < before порциями batchSize.
func (w *CleanupWorker) DeleteStale(ctx context.Context, before time.Time) (int, error) {
	if w.storage == nil {
		return 0, nil
	}
	if before.IsZero() {
		before = w.now().Add(-w.retention)
	}

	totalDeleted := 0
	for {
		if err := ctx.Err(); err != nil {
			return totalDeleted, err
		}

		deleted, err := w.storage.DeleteStale(ctx, before, w.batchSize)
		if err != nil {
			return totalDeleted, err
		}

		totalDeleted += deleted
		if deleted > 0 {
			w.metrics.deleted.Add(float64(deleted))
		}

		if deleted < w.batchSize {
			break
		}
	}

	return totalDeleted, nil
}
