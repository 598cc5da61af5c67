// Package httpapi обслуживает JSON API витрины: корзину сессии, каталог и режим черновиков.
package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	log "github.com/sirupsen/logrus"

	"github.com/gwatkins2090/portfolio/internal/cart"
	"github.com/gwatkins2090/portfolio/internal/content"
	"github.com/gwatkins2090/portfolio/internal/domain"
)

const (
	defaultRequestTimeout = 30 * time.Second
	maxBodyBytes          = 1 << 20
)

// Carts выдаёт корзину сессии и оформляет заказ.
type Carts interface {
	Get(ctx context.Context, sessionID string) (*cart.Store, error)
	Checkout(ctx context.Context, sessionID string) (domain.Totals, error)
}

// Catalog разрешает снимки работ.
type Catalog interface {
	Artwork(ctx context.Context, id string, access content.Access) (domain.Artwork, error)
	Artworks(ctx context.Context, access content.Access) ([]domain.Artwork, error)
}

// DraftToggle переключает режим черновиков.
type DraftToggle interface {
	Enable(w http.ResponseWriter, secret string) error
	Disable(w http.ResponseWriter)
	AccessFromRequest(r *http.Request) content.Access
}

// Revalidator применяет ревалидацию кэша контента.
type Revalidator interface {
	Apply(ctx context.Context, tags []string) int
}

// Config описывает зависимости API.
type Config struct {
	Carts            Carts
	Catalog          Catalog
	Draft            DraftToggle
	Revalidator      Revalidator
	RevalidateSecret string
	SecureCookies    bool
	RequestTimeout   time.Duration
	Logger           *log.Entry
}

type api struct {
	carts            Carts
	catalog          Catalog
	draft            DraftToggle
	revalidator      Revalidator
	revalidateSecret string
	secureCookies    bool
	logger           *log.Entry
}

// NewHandler собирает роутер API.
func NewHandler(cfg Config) http.Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = log.WithField("component", "http-api")
	}
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}

	a := &api{
		carts:            cfg.Carts,
		catalog:          cfg.Catalog,
		draft:            cfg.Draft,
		revalidator:      cfg.Revalidator,
		revalidateSecret: cfg.RevalidateSecret,
		secureCookies:    cfg.SecureCookies,
		logger:           logger,
	}

	router := chi.NewRouter()
	router.Use(chimw.RequestID)
	router.Use(chimw.RealIP)
	router.Use(requestLogger(logger))
	router.Use(chimw.Recoverer)
	router.Use(chimw.Timeout(timeout))

	router.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeAPIError(w, r, errorf(http.StatusNotFound, "not_found", "route not found"))
	})
	router.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeAPIError(w, r, errorf(http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed"))
	})

	router.Route("/api", func(r chi.Router) {
		r.Route("/cart", func(r chi.Router) {
			r.Use(a.sessionMiddleware)
			r.Get("/", a.getCart)
			r.Delete("/", a.clearCart)
			r.Post("/items", a.addItem)
			r.Patch("/items/{artworkID}", a.updateItem)
			r.Delete("/items/{artworkID}", a.removeItem)
			r.Post("/checkout", a.checkout)
		})

		r.Get("/artworks", a.listArtworks)
		r.Get("/artworks/{artworkID}", a.getArtwork)

		r.Get("/draft", a.draftStatus)
		r.Get("/draft/enable", a.enableDraft)
		r.Get("/draft/disable", a.disableDraft)

		r.Post("/revalidate", a.revalidate)
	})

	return router
}

func requestLogger(logger *log.Entry) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			started := time.Now()
			ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			entry := logger.WithFields(log.Fields{
				"method":      r.Method,
				"path":        r.URL.Path,
				"status":      status,
				"duration_ms": time.Since(started).Milliseconds(),
				"request_id":  chimw.GetReqID(r.Context()),
			})
			if status >= http.StatusInternalServerError {
				entry.Warn("http request failed")
				return
			}
			entry.Debug("http request")
		})
	}
}
