package app

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/gwatkins2090/portfolio/internal/domain"
)

// Драйверы хранилища корзин.
const (
	StorageDriverMemory   = "memory"
	StorageDriverPostgres = "postgres"
)

// Config описывает настройки запуска сервера витрины.
type Config struct {
	HTTPAddr    string
	GRPCAddr    string
	MetricsAddr string

	StorageDriver       string
	PostgresDSN         string
	PostgresAutoMigrate bool

	Currency                   string
	TaxRatePercent             string
	ShippingMinor              int64
	FreeShippingThresholdMinor int64

	ContentBaseURL      string
	ContentDataset      string
	ContentAPIVersion   string
	ContentReadToken    string
	ContentCacheTTL     time.Duration
	FallbackCatalogPath string

	DraftSecret      string
	RevalidateSecret string
	SecureCookies    bool
	RequestTimeout   time.Duration

	KafkaBrokers  []string
	KafkaClientID string
	// InstanceID отличает экземпляры при рассылке ревалидации.
	InstanceID string

	OutboxPollInterval time.Duration
	OutboxBatchSize    int
	OutboxMaxAttempts  int
	OutboxRetryDelay   time.Duration

	SessionIdleTTL         time.Duration
	SessionRetention       time.Duration
	SessionCleanupInterval time.Duration

	ShutdownTimeout time.Duration
}

// DefaultConfig возвращает настройки для локального запуска без внешних зависимостей.
func DefaultConfig() Config {
	policy := domain.DefaultPricingPolicy()
	return Config{
		HTTPAddr:    ":8080",
		GRPCAddr:    ":50051",
		MetricsAddr: ":9090",

		StorageDriver:       StorageDriverMemory,
		PostgresAutoMigrate: true,

		Currency:                   policy.Currency,
		TaxRatePercent:             "8.25",
		ShippingMinor:              policy.DomesticShippingMinor,
		FreeShippingThresholdMinor: policy.FreeShippingThresholdMinor,

		ContentDataset:    "production",
		ContentAPIVersion: "2024-01-01",
		ContentCacheTTL:   60 * time.Second,

		RequestTimeout: 30 * time.Second,

		KafkaClientID: "portfolio-server",
		InstanceID:    defaultInstanceID(),

		OutboxPollInterval: time.Second,
		OutboxBatchSize:    100,
		OutboxMaxAttempts:  3,
		OutboxRetryDelay:   50 * time.Millisecond,

		SessionIdleTTL:         30 * time.Minute,
		SessionRetention:       30 * 24 * time.Hour,
		SessionCleanupInterval: 10 * time.Minute,

		ShutdownTimeout: 5 * time.Second,
	}
}

func defaultInstanceID() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "portfolio"
	}
	return host + "-" + uuid.NewString()[:8]
}

// PricingPolicy собирает и проверяет политику цен.
func (c Config) PricingPolicy() (domain.PricingPolicy, error) {
	rate, err := domain.TaxRateFromPercent(c.TaxRatePercent)
	if err != nil {
		return domain.PricingPolicy{}, fmt.Errorf("%w: %v", domain.ErrPricingPolicyInvalid, err)
	}
	policy := domain.PricingPolicy{
		Currency:                   strings.ToUpper(strings.TrimSpace(c.Currency)),
		TaxRate:                    rate,
		DomesticShippingMinor:      c.ShippingMinor,
		FreeShippingThresholdMinor: c.FreeShippingThresholdMinor,
	}
	if err := policy.Validate(); err != nil {
		return domain.PricingPolicy{}, err
	}
	return policy, nil
}

// Validate проверяет согласованность настроек.
func (c Config) Validate() error {
	var errs []error
	switch c.StorageDriver {
	case StorageDriverMemory:
	case StorageDriverPostgres:
		if strings.TrimSpace(c.PostgresDSN) == "" {
			errs = append(errs, errors.New("PORTFOLIO_POSTGRES_DSN is required for postgres storage"))
		}
	default:
		errs = append(errs, fmt.Errorf("unsupported storage driver: %q", c.StorageDriver))
	}
	if _, err := c.PricingPolicy(); err != nil {
		errs = append(errs, err)
	}
	if c.ContentBaseURL != "" && strings.TrimSpace(c.ContentDataset) == "" {
		errs = append(errs, errors.New("PORTFOLIO_CONTENT_DATASET is required with a content base url"))
	}
	return errors.Join(errs...)
}

// LoadConfigFromEnv накладывает переменные PORTFOLIO_* на DefaultConfig.
// Все ошибки разбора возвращаются сразу, чтобы оператор видел полный список.
func LoadConfigFromEnv(getenv func(string) string) (Config, error) {
	cfg := DefaultConfig()
	r := envReader{getenv: getenv}

	r.str("PORTFOLIO_HTTP_ADDR", &cfg.HTTPAddr)
	r.str("PORTFOLIO_GRPC_ADDR", &cfg.GRPCAddr)
	r.str("PORTFOLIO_METRICS_ADDR", &cfg.MetricsAddr)

	r.str("PORTFOLIO_STORAGE_DRIVER", &cfg.StorageDriver)
	cfg.StorageDriver = strings.ToLower(cfg.StorageDriver)
	r.str("PORTFOLIO_POSTGRES_DSN", &cfg.PostgresDSN)
	r.boolean("PORTFOLIO_POSTGRES_AUTO_MIGRATE", &cfg.PostgresAutoMigrate)

	r.str("PORTFOLIO_CURRENCY", &cfg.Currency)
	r.str("PORTFOLIO_TAX_RATE_PERCENT", &cfg.TaxRatePercent)
	r.nonNegative("PORTFOLIO_SHIPPING_MINOR", &cfg.ShippingMinor)
	r.nonNegative("PORTFOLIO_FREE_SHIPPING_THRESHOLD_MINOR", &cfg.FreeShippingThresholdMinor)

	r.str("PORTFOLIO_CONTENT_BASE_URL", &cfg.ContentBaseURL)
	r.str("PORTFOLIO_CONTENT_DATASET", &cfg.ContentDataset)
	r.str("PORTFOLIO_CONTENT_API_VERSION", &cfg.ContentAPIVersion)
	r.str("PORTFOLIO_CONTENT_READ_TOKEN", &cfg.ContentReadToken)
	r.duration("PORTFOLIO_CONTENT_CACHE_TTL", &cfg.ContentCacheTTL)
	r.str("PORTFOLIO_FALLBACK_CATALOG", &cfg.FallbackCatalogPath)

	r.str("PORTFOLIO_DRAFT_SECRET", &cfg.DraftSecret)
	r.str("PORTFOLIO_REVALIDATE_SECRET", &cfg.RevalidateSecret)
	r.boolean("PORTFOLIO_SECURE_COOKIES", &cfg.SecureCookies)
	r.duration("PORTFOLIO_REQUEST_TIMEOUT", &cfg.RequestTimeout)

	r.list("PORTFOLIO_KAFKA_BROKERS", &cfg.KafkaBrokers)
	r.str("PORTFOLIO_KAFKA_CLIENT_ID", &cfg.KafkaClientID)
	r.str("PORTFOLIO_INSTANCE_ID", &cfg.InstanceID)

	r.duration("PORTFOLIO_OUTBOX_POLL_INTERVAL", &cfg.OutboxPollInterval)
	r.positiveInt("PORTFOLIO_OUTBOX_BATCH_SIZE", &cfg.OutboxBatchSize)
	r.positiveInt("PORTFOLIO_OUTBOX_MAX_ATTEMPTS", &cfg.OutboxMaxAttempts)
	r.duration("PORTFOLIO_OUTBOX_RETRY_DELAY", &cfg.OutboxRetryDelay)

	r.duration("PORTFOLIO_SESSION_IDLE_TTL", &cfg.SessionIdleTTL)
	r.duration("PORTFOLIO_SESSION_RETENTION", &cfg.SessionRetention)
	r.duration("PORTFOLIO_SESSION_CLEANUP_INTERVAL", &cfg.SessionCleanupInterval)

	r.duration("PORTFOLIO_SHUTDOWN_TIMEOUT", &cfg.ShutdownTimeout)

	if err := errors.Join(r.errs...); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

type envReader struct {
	getenv func(string) string
	errs   []error
}

func (r *envReader) lookup(key string) (string, bool) {
	value := strings.TrimSpace(r.getenv(key))
	return value, value != ""
}

func (r *envReader) fail(key, value string, err error) {
	r.errs = append(r.errs, fmt.Errorf("%s=%q: %w", key, value, err))
}

func (r *envReader) str(key string, dst *string) {
	if value, ok := r.lookup(key); ok {
		*dst = value
	}
}

func (r *envReader) list(key string, dst *[]string) {
	value, ok := r.lookup(key)
	if !ok {
		return
	}
	var items []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	*dst = items
}

func (r *envReader) boolean(key string, dst *bool) {
	value, ok := r.lookup(key)
	if !ok {
		return
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		r.fail(key, value, err)
		return
	}
	*dst = parsed
}

func (r *envReader) nonNegative(key string, dst *int64) {
	value, ok := r.lookup(key)
	if !ok {
		return
	}
	parsed, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		r.fail(key, value, err)
		return
	}
	if parsed < 0 {
		r.fail(key, value, errors.New("must be non-negative"))
		return
	}
	*dst = parsed
}

func (r *envReader) positiveInt(key string, dst *int) {
	value, ok := r.lookup(key)
	if !ok {
		return
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		r.fail(key, value, err)
		return
	}
	if parsed <= 0 {
		r.fail(key, value, errors.New("must be positive"))
		return
	}
	*dst = parsed
}

func (r *envReader) duration(key string, dst *time.Duration) {
	value, ok := r.lookup(key)
	if !ok {
		return
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		r.fail(key, value, err)
		return
	}
	if parsed < 0 {
		r.fail(key, value, errors.New("must be non-negative"))
		return
	}
	*dst = parsed
}
