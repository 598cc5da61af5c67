package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"strings"
	"syscall"

	log "github.com/sirupsen/logrus"

	"github.com/gwatkins2090/portfolio/internal/app"
	"github.com/gwatkins2090/portfolio/internal/version"
)

const envLogLevel = "PORTFOLIO_LOG_LEVEL"

// setupLogger настраивает формат и уровень логирования. Неизвестный уровень оставляет info.
func setupLogger(getenv func(string) string) {
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	level := log.InfoLevel
	if raw := strings.TrimSpace(getenv(envLogLevel)); raw != "" {
		parsed, err := log.ParseLevel(raw)
		if err != nil {
			log.WithError(err).Warnf("invalid %s, using info", envLogLevel)
		} else {
			level = parsed
		}
	}
	log.SetLevel(level)
}

func main() {
	setupLogger(os.Getenv)

	cfg, err := app.LoadConfigFromEnv(os.Getenv)
	if err != nil {
		log.WithError(err).Fatal("некорректная конфигурация")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.WithFields(log.Fields{
		"version":        version.String(),
		"http_addr":      cfg.HTTPAddr,
		"grpc_addr":      cfg.GRPCAddr,
		"metrics_addr":   cfg.MetricsAddr,
		"storage_driver": cfg.StorageDriver,
		"content_remote": cfg.ContentBaseURL != "",
		"kafka_enabled":  len(cfg.KafkaBrokers) > 0,
	}).Info("запускаем сервер витрины")

	if err := app.Run(ctx, cfg); err != nil && !errors.Is(err, context.Canceled) {
		log.WithError(err).Fatal("приложение завершилось с ошибкой")
	}

	log.Info("сервер витрины остановлен")
}
