package content

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/gwatkins2090/portfolio/internal/domain"
)

const (
	defaultAPIVersion     = "2024-01-01"
	defaultRequestTimeout = 5 * time.Second
	maxErrorBodyBytes     = 4 << 10
)

// ClientConfig описывает подключение к удалённому хранилищу документов.
type ClientConfig struct {
	BaseURL    string
	Dataset    string
	APIVersion string
}

// ClientOption настраивает Client.
type ClientOption func(*Client)

// WithHTTPClient задаёт HTTP-клиент.
func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *Client) {
		if httpClient != nil {
			c.httpClient = httpClient
		}
	}
}

// WithClientMetrics задаёт метрики запросов.
func WithClientMetrics(metrics Metrics) ClientOption {
	return func(c *Client) {
		if metrics != nil {
			c.metrics = metrics
		}
	}
}

// WithClientLogger задаёт logger.
func WithClientLogger(logger *log.Entry) ClientOption {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithQueries задаёт набор именованных запросов.
func WithQueries(queries *QuerySet) ClientOption {
	return func(c *Client) {
		if queries != nil {
			c.queries = queries
		}
	}
}

// Client читает документы через HTTP query API хранилища.
type Client struct {
	endpoint   string
	httpClient *http.Client
	queries    *QuerySet
	metrics    Metrics
	logger     *log.Entry
}

// NewClient создаёт клиент. BaseURL и Dataset обязательны.
func NewClient(cfg ClientConfig, options ...ClientOption) (*Client, error) {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		return nil, errors.New("content base url is required")
	}
	if _, err := url.Parse(base); err != nil {
		return nil, fmt.Errorf("parse content base url: %w", err)
	}
	dataset := strings.TrimSpace(cfg.Dataset)
	if dataset == "" {
		return nil, errors.New("content dataset is required")
	}
	apiVersion := strings.TrimPrefix(strings.TrimSpace(cfg.APIVersion), "v")
	if apiVersion == "" {
		apiVersion = defaultAPIVersion
	}

	c := &Client{
		endpoint:   fmt.Sprintf("%s/v%s/data/query/%s", base, apiVersion, url.PathEscape(dataset)),
		httpClient: &http.Client{Timeout: defaultRequestTimeout},
		queries:    DefaultQueries(),
		metrics:    nopMetrics{},
		logger:     log.WithField("component", "content-client"),
	}
	for _, option := range options {
		option(c)
	}
	return c, nil
}

type queryEnvelope struct {
	Result json.RawMessage `json:"result"`
}

// Fetch выполняет именованный запрос в перспективе access.
// Пустой результат и 404 возвращают domain.ErrContentNotFound.
func (c *Client) Fetch(ctx context.Context, q Query, access Access) (json.RawMessage, error) {
	def, err := c.queries.Lookup(q.Name)
	if err != nil {
		return nil, err
	}
	if access.IsPreview() && access.Token() == "" {
		return nil, domain.ErrPreviewTokenRequired
	}

	perspective := string(access.Perspective())
	started := time.Now()
	result, err := c.do(ctx, def, q.Params, access)
	c.metrics.RecordFetch(perspective, time.Since(started), ignoreNotFound(err))
	if err != nil {
		c.logger.WithError(err).WithFields(log.Fields{
			"query":       q.Name,
			"perspective": perspective,
		}).Debug("content query failed")
		return nil, err
	}
	return result, nil
}

func (c *Client) do(ctx context.Context, def Definition, params map[string]any, access Access) (json.RawMessage, error) {
	values := url.Values{}
	values.Set("query", def.Text)
	values.Set("perspective", string(access.Perspective()))
	for name, value := range params {
		encoded, err := json.Marshal(value)
		if err != nil {
			return nil, fmt.Errorf("encode query param %s: %w", name, err)
		}
		values.Set("$"+name, string(encoded))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint+"?"+values.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("build content request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if access.IsPreview() {
		req.Header.Set("Authorization", "Bearer "+access.Token())
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("content request %s: %w", def.Name, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, fmt.Errorf("%w: %s", domain.ErrContentNotFound, def.Name)
	case resp.StatusCode >= http.StatusBadRequest:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
		return nil, fmt.Errorf("content store returned %d for %s: %s", resp.StatusCode, def.Name, strings.TrimSpace(string(body)))
	}

	var envelope queryEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return nil, fmt.Errorf("decode content response %s: %w", def.Name, err)
	}
	if len(envelope.Result) == 0 || string(envelope.Result) == "null" {
		return nil, fmt.Errorf("%w: %s", domain.ErrContentNotFound, def.Name)
	}
	return envelope.Result, nil
}

// Ping проверяет доступность хранилища запросом количества работ.
// Запрос не зависит от набора зарегистрированных запросов и не попадает в метрики чтений.
func (c *Client) Ping(ctx context.Context) error {
	raw, err := c.do(ctx, Definition{Name: QueryArtworkCount, Text: artworkCountQuery}, nil, Published())
	if err != nil {
		return err
	}
	var count int64
	if err := json.Unmarshal(raw, &count); err != nil {
		return fmt.Errorf("decode %s: %w", QueryArtworkCount, err)
	}
	return nil
}

func ignoreNotFound(err error) error {
	if errors.Is(err, domain.ErrContentNotFound) {
		return nil
	}
	return err
}

var _ Source = (*Client)(nil)
