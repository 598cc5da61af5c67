package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	promgrpc "github.com/grpc-ecosystem/go-grpc-prometheus"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/gwatkins2090/portfolio/internal/cart"
	"github.com/gwatkins2090/portfolio/internal/content"
	healthcheck "github.com/gwatkins2090/portfolio/internal/health"
	"github.com/gwatkins2090/portfolio/internal/httpapi"
	"github.com/gwatkins2090/portfolio/internal/messaging/kafka"
	"github.com/gwatkins2090/portfolio/internal/metrics"
	grpcsvc "github.com/gwatkins2090/portfolio/internal/service/grpc"
	"github.com/gwatkins2090/portfolio/internal/service/outbox"
	"github.com/gwatkins2090/portfolio/internal/service/sessions"
	"github.com/gwatkins2090/portfolio/internal/version"
)

// application — собранный сервер до запуска слушателей.
type application struct {
	cfg    Config
	logger *log.Entry

	registry      *prometheus.Registry
	carts         *cart.Registry
	content       contentDependencies
	revalidation  *content.Revalidation
	apiHandler    http.Handler
	grpcServer    *grpc.Server
	grpcHealth    *health.Server
	healthHandler *healthcheck.Handler

	storage  runtimeDependencies
	producer *kafka.Producer
	consumer *kafka.Consumer

	outboxWorker  *outbox.Worker
	cleanupWorker *sessions.CleanupWorker
}

// Run собирает зависимости, запускает HTTP API, gRPC, метрики и воркеры и ждёт отмены ctx.
func Run(ctx context.Context, cfg Config) error {
	a, err := build(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.close()
	return a.serve(ctx)
}

func build(ctx context.Context, cfg Config) (*application, error) {
	logger := log.WithField("component", "app")

	policy, err := cfg.PricingPolicy()
	if err != nil {
		return nil, err
	}
	cfg.Currency = policy.Currency

	storage, err := initRuntimeDependencies(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	a := &application{cfg: cfg, logger: logger, storage: storage, registry: newMetricsRegistry()}
	cartMetrics := metrics.NewCartMetricsWithRegisterer(a.registry)
	contentMetrics := metrics.NewContentMetricsWithRegisterer(a.registry)

	a.content, err = initContent(cfg, contentMetrics, logger)
	if err != nil {
		a.close()
		return nil, err
	}

	// Ошибка Kafka не останавливает сервер: события и рассылка ревалидации отключаются.
	a.producer, _ = initKafkaProducer(cfg.KafkaBrokers, cfg.KafkaClientID, logger)

	var broadcaster content.Broadcaster
	if a.producer != nil {
		broadcaster = kafka.NewRevalidationBroadcaster(a.producer, cfg.InstanceID)
	}
	a.revalidation = content.NewRevalidation(a.content.cache, broadcaster, contentMetrics, logger.WithField("component", "content-revalidation"))

	registryOptions := []cart.RegistryOption{
		cart.WithStorage(storage.cartStorage),
		cart.WithMetrics(cartMetrics),
		cart.WithRegistryLogger(logger.WithField("component", "cart-registry")),
	}
	if a.producer != nil {
		// Без брокера outbox некому разгребать, события не записываются.
		registryOptions = append(registryOptions, cart.WithOutbox(storage.outboxRepo))
		a.outboxWorker = outbox.NewWorker(storage.outboxRepo,
			kafka.NewOutboxPublisher(a.producer, kafka.TopicCartEvents),
			outbox.WithDLQPublisher(kafka.NewOutboxPublisher(a.producer, kafka.TopicCartDLQ)),
			outbox.WithLogger(logger.WithField("component", "outbox-worker")),
			outbox.WithPollInterval(cfg.OutboxPollInterval),
			outbox.WithBatchSize(cfg.OutboxBatchSize),
			outbox.WithMaxAttempts(cfg.OutboxMaxAttempts),
			outbox.WithRetryBaseDelay(cfg.OutboxRetryDelay),
			outbox.WithRegisterer(a.registry),
		)
		a.consumer, err = kafka.NewConsumer(cfg.KafkaBrokers, revalidationGroupID(cfg.KafkaClientID, cfg.InstanceID),
			[]string{kafka.TopicContentRevalidate},
			kafka.NewRevalidationHandler(a.content.cache, cfg.InstanceID, logger.WithField("component", "revalidation-consumer")),
			kafka.WithDLQ(a.producer, kafka.TopicContentDLQ),
			kafka.WithConsumerLogger(logger.WithField("component", "kafka-consumer")),
		)
		if err != nil {
			logger.WithError(err).Warn("failed to create revalidation consumer, remote revalidations are disabled")
		}
	}
	a.carts = cart.NewRegistry(policy, registryOptions...)

	a.cleanupWorker = sessions.NewCleanupWorker(storage.cartStorage, a.carts,
		sessions.WithLogger(logger.WithField("component", "session-cleanup")),
		sessions.WithInterval(cfg.SessionCleanupInterval),
		sessions.WithIdleTTL(cfg.SessionIdleTTL),
		sessions.WithRetention(cfg.SessionRetention),
		sessions.WithRegisterer(a.registry),
	)

	a.apiHandler = httpapi.NewHandler(httpapi.Config{
		Carts:            a.carts,
		Catalog:          a.content.catalog,
		Draft:            a.content.draft,
		Revalidator:      a.revalidation,
		RevalidateSecret: cfg.RevalidateSecret,
		SecureCookies:    cfg.SecureCookies,
		RequestTimeout:   cfg.RequestTimeout,
		Logger:           logger.WithField("component", "http-api"),
	})

	grpcMetrics := promgrpc.NewServerMetrics()
	a.registry.MustRegister(grpcMetrics)
	a.grpcServer = grpc.NewServer(grpc.ChainUnaryInterceptor(grpcMetrics.UnaryServerInterceptor()))
	serviceLogger := logger.WithField("layer", "grpc")
	grpcsvc.RegisterCartService(a.grpcServer, grpcsvc.NewCartService(a.carts, a.content.catalog, a.content.draft, serviceLogger))
	grpcsvc.RegisterContentService(a.grpcServer, grpcsvc.NewContentService(a.content.source, a.content.draft, serviceLogger))
	a.grpcHealth = health.NewServer()
	healthpb.RegisterHealthServer(a.grpcServer, a.grpcHealth)
	grpcMetrics.InitializeMetrics(a.grpcServer)

	a.healthHandler = healthcheck.NewHandler(version.Version())
	a.healthHandler.RegisterChecker("storage", storage.storageChecker)
	a.healthHandler.RegisterChecker("content", a.content.checker)

	return a, nil
}

func newMetricsRegistry() *prometheus.Registry {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		version.BuildInfoCollector(),
	)
	return registry
}

func (a *application) serve(ctx context.Context) error {
	logger := a.logger

	grpcListener, err := net.Listen("tcp", a.cfg.GRPCAddr)
	if err != nil {
		return fmt.Errorf("listen grpc %s: %w", a.cfg.GRPCAddr, err)
	}
	apiListener, err := net.Listen("tcp", a.cfg.HTTPAddr)
	if err != nil {
		_ = grpcListener.Close()
		return fmt.Errorf("listen http %s: %w", a.cfg.HTTPAddr, err)
	}

	workerCtx, cancelWorkers := context.WithCancel(ctx)
	var workers sync.WaitGroup
	startWorker := func(run func(context.Context)) {
		workers.Add(1)
		go func() {
			defer workers.Done()
			run(workerCtx)
		}()
	}
	if a.outboxWorker != nil {
		startWorker(a.outboxWorker.Run)
	}
	startWorker(a.cleanupWorker.Run)
	if a.consumer != nil {
		if err := a.consumer.Start(workerCtx); err != nil {
			logger.WithError(err).Warn("failed to start revalidation consumer")
		}
	}

	metricsSrv := startMetricsServer(ctx, a.cfg.MetricsAddr, logger, a.registry, a.healthHandler)
	apiSrv := &http.Server{Handler: a.apiHandler, ReadHeaderTimeout: 10 * time.Second}

	errCh := make(chan error, 2)
	go func() {
		logger.Infof("gRPC сервер слушает %s", grpcListener.Addr())
		errCh <- a.grpcServer.Serve(grpcListener)
	}()
	go func() {
		logger.Infof("HTTP API слушает %s", apiListener.Addr())
		errCh <- apiSrv.Serve(apiListener)
	}()
	a.grpcHealth.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)

	var serveErr error
	select {
	case <-ctx.Done():
		logger.Info("получен сигнал остановки, останавливаем серверы")
		serveErr = ctx.Err()
	case err := <-errCh:
		if !errors.Is(err, grpc.ErrServerStopped) && !errors.Is(err, http.ErrServerClosed) {
			serveErr = err
		}
	}

	a.grpcHealth.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
	shutdownGRPC(a.grpcServer, a.cfg.ShutdownTimeout, logger)
	shutdownHTTP(apiSrv, a.cfg.ShutdownTimeout, logger)
	shutdownHTTP(metricsSrv, a.cfg.ShutdownTimeout, logger)

	cancelWorkers()
	workers.Wait()
	if a.consumer != nil {
		if err := a.consumer.Stop(); err != nil {
			logger.WithError(err).Warn("failed to stop revalidation consumer")
		}
	}

	return serveErr
}

// close освобождает хранилище и Kafka. Повторный вызов безопасен.
func (a *application) close() {
	closeKafka(a.producer, a.logger)
	a.producer = nil
	if a.storage.closeFn != nil {
		if err := a.storage.closeFn(); err != nil {
			a.logger.WithError(err).Warn("failed to close storage")
		}
		a.storage.closeFn = nil
	}
}

func shutdownGRPC(server *grpc.Server, timeout time.Duration, logger *log.Entry) {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	stopped := make(chan struct{})
	go func() {
		server.GracefulStop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-time.After(timeout):
		logger.Warn("graceful stop превысил таймаут, принудительно останавливаем")
		server.Stop()
	}
}

// startMetricsServer запускает HTTP-обработчик /metrics и health-пробы.
func startMetricsServer(ctx context.Context, addr string, logger *log.Entry, gatherer prometheus.Gatherer, healthHandler *healthcheck.Handler) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	mux.Handle("/healthz", healthHandler)
	mux.HandleFunc("/readyz", healthHandler.ReadinessHandler)
	mux.HandleFunc("/livez", healthcheck.LivenessHandler)

	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		logger.Infof("метрики доступны по адресу %s/metrics", addr)
		logger.Infof("health checks: %s/healthz, %s/readyz, %s/livez", addr, addr, addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Warn("metrics server failed")
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownHTTP(srv, 5*time.Second, logger)
	}()

	return srv
}

// shutdownHTTP аккуратно останавливает HTTP-сервер.
func shutdownHTTP(srv *http.Server, timeout time.Duration, logger *log.Entry) {
	if srv == nil {
		return
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.WithError(err).Warn("http shutdown with error")
	}
}
