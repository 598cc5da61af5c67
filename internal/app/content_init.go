package app

import (
	log "github.com/sirupsen/logrus"

	"github.com/gwatkins2090/portfolio/internal/content"
	healthcheck "github.com/gwatkins2090/portfolio/internal/health"
)

// contentDependencies — граница с хранилищем контента.
type contentDependencies struct {
	source  content.Source
	cache   *content.Cache
	catalog *content.Catalog
	draft   *content.DraftMode
	checker healthcheck.Checker
}

// initContent выбирает удалённое хранилище или встроенный каталог и оборачивает источник кэшем.
func initContent(cfg Config, metrics content.Metrics, logger *log.Entry) (contentDependencies, error) {
	var (
		source  content.Source
		checker healthcheck.Checker
	)

	if cfg.ContentBaseURL == "" {
		fallback, err := content.LoadFallbackSource(cfg.FallbackCatalogPath, metrics)
		if err != nil {
			return contentDependencies{}, err
		}
		logger.WithField("artworks", fallback.Len()).Warn("content base url is not set, serving fallback catalog")
		source = fallback
		checker = healthcheck.Static(healthcheck.StatusDegraded, "serving fallback catalog")
	} else {
		client, err := content.NewClient(content.ClientConfig{
			BaseURL:    cfg.ContentBaseURL,
			Dataset:    cfg.ContentDataset,
			APIVersion: cfg.ContentAPIVersion,
		},
			content.WithClientMetrics(metrics),
			content.WithClientLogger(logger.WithField("component", "content-client")),
		)
		if err != nil {
			return contentDependencies{}, err
		}
		source = client
		checker = healthcheck.CheckFunc(client.Ping)
	}

	cache := content.NewCache(cfg.ContentCacheTTL)
	cached := content.NewCachedSource(source, cache, metrics)

	return contentDependencies{
		source:  cached,
		cache:   cache,
		catalog: content.NewCatalog(cached, cfg.Currency),
		draft: content.NewDraftMode(content.DraftConfig{
			Secret:       cfg.DraftSecret,
			ReadToken:    cfg.ContentReadToken,
			SecureCookie: cfg.SecureCookies,
		}),
		checker: checker,
	}, nil
}
