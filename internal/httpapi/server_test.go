package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"testing"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/gwatkins2090/portfolio/internal/cart"
	"github.com/gwatkins2090/portfolio/internal/content"
	"github.com/gwatkins2090/portfolio/internal/domain"
)

const (
	draftSecret      = "preview-secret"
	revalidateSecret = "hook-secret"
)

type testEnv struct {
	server   *httptest.Server
	client   *http.Client
	registry *cart.Registry
	cache    *content.Cache
}

func quietLogger() *log.Entry {
	logger := log.New()
	logger.SetOutput(io.Discard)
	return log.NewEntry(logger)
}

func newTestEnv(t *testing.T, catalog Catalog) *testEnv {
	t.Helper()

	cache := content.NewCache(time.Hour)
	if catalog == nil {
		source, err := content.LoadFallbackSource("", nil)
		require.NoError(t, err)
		catalog = content.NewCatalog(content.NewCachedSource(source, cache, nil), "USD")
	}

	registry := cart.NewRegistry(domain.DefaultPricingPolicy(), cart.WithRegistryLogger(quietLogger()))
	handler := NewHandler(Config{
		Carts:            registry,
		Catalog:          catalog,
		Draft:            content.NewDraftMode(content.DraftConfig{Secret: draftSecret, ReadToken: "viewer"}),
		Revalidator:      content.NewRevalidation(cache, nil, nil, quietLogger()),
		RevalidateSecret: revalidateSecret,
		Logger:           quietLogger(),
	})

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	client := server.Client()
	client.Jar = jar
	client.CheckRedirect = func(*http.Request, []*http.Request) error { return http.ErrUseLastResponse }

	return &testEnv{server: server, client: client, registry: registry, cache: cache}
}

func (e *testEnv) do(t *testing.T, method, path string, body any, headers ...string) (*http.Response, []byte) {
	t.Helper()

	var reader io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		reader = bytes.NewBufferString(b)
	default:
		encoded, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequest(method, e.server.URL+path, reader)
	require.NoError(t, err)
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}

	resp, err := e.client.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, raw
}

func decodeCart(t *testing.T, raw []byte) cartResponse {
	t.Helper()
	var body cartResponse
	require.NoError(t, json.Unmarshal(raw, &body))
	return body
}

func errorCode(t *testing.T, raw []byte) string {
	t.Helper()
	var body errorBody
	require.NoError(t, json.Unmarshal(raw, &body))
	return body.Error.Code
}

func TestCartScenario(t *testing.T) {
	env := newTestEnv(t, nil)

	resp, raw := env.do(t, http.MethodGet, "/api/cart", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Empty(t, decodeCart(t, raw).Items)
	require.Equal(t, SessionCookieName, resp.Cookies()[0].Name)

	resp, _ = env.do(t, http.MethodPost, "/api/cart/items", map[string]any{"artwork_id": "harbor-at-dawn", "quantity": 2})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp, raw = env.do(t, http.MethodPost, "/api/cart/items", map[string]any{"artwork_id": "quiet-field"})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body := decodeCart(t, raw)
	require.Len(t, body.Items, 2)
	require.Equal(t, int64(28550), body.Totals.Subtotal.AmountMinor)
	require.Equal(t, "23.55", body.Totals.Tax.Amount)
	require.Equal(t, "25.00", body.Totals.Shipping.Amount)
	require.Equal(t, "334.05", body.Totals.Total.Amount)
	require.Equal(t, int64(33405), body.Totals.Total.AmountMinor)
	require.Equal(t, 3, body.Totals.ItemCount)
	require.Empty(t, body.Items[0].Artwork.Description)

	resp, raw = env.do(t, http.MethodPatch, "/api/cart/items/harbor-at-dawn", map[string]any{"quantity": 0})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body = decodeCart(t, raw)
	require.Len(t, body.Items, 1)
	require.Equal(t, int64(4550), body.Totals.Subtotal.AmountMinor)
	require.Equal(t, 1, body.Totals.ItemCount)

	resp, raw = env.do(t, http.MethodDelete, "/api/cart/items/quiet-field", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body = decodeCart(t, raw)
	require.Empty(t, body.Items)
	require.Zero(t, body.Totals.Shipping.AmountMinor)

	require.Equal(t, 1, env.registry.Len(), "all requests share one session")
}

func TestCart_ClearAndCheckout(t *testing.T) {
	env := newTestEnv(t, nil)

	resp, raw := env.do(t, http.MethodPost, "/api/cart/checkout", nil)
	require.Equal(t, http.StatusConflict, resp.StatusCode)
	require.Equal(t, "cart_empty", errorCode(t, raw))

	env.do(t, http.MethodPost, "/api/cart/items", map[string]any{"artwork_id": "harbor-at-dawn", "quantity": 2})
	env.do(t, http.MethodPost, "/api/cart/items", map[string]any{"artwork_id": "quiet-field", "quantity": 1})

	resp, raw = env.do(t, http.MethodPost, "/api/cart/checkout", nil)
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	var checkout checkoutResponse
	require.NoError(t, json.Unmarshal(raw, &checkout))
	require.Equal(t, "checkout_requested", checkout.Status)
	require.Equal(t, int64(33405), checkout.Totals.Total.AmountMinor)

	_, raw = env.do(t, http.MethodGet, "/api/cart", nil)
	require.Empty(t, decodeCart(t, raw).Items)

	env.do(t, http.MethodPost, "/api/cart/items", map[string]any{"artwork_id": "study-in-blue", "quantity": 3})
	resp, raw = env.do(t, http.MethodDelete, "/api/cart", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Empty(t, decodeCart(t, raw).Items)
}

func TestCart_RequestValidation(t *testing.T) {
	env := newTestEnv(t, nil)

	cases := []struct {
		name   string
		method string
		path   string
		body   any
		status int
		code   string
	}{
		{name: "unknown artwork", method: http.MethodPost, path: "/api/cart/items", body: map[string]any{"artwork_id": "missing"}, status: http.StatusNotFound, code: "not_found"},
		{name: "missing artwork id", method: http.MethodPost, path: "/api/cart/items", body: map[string]any{"quantity": 1}, status: http.StatusBadRequest, code: "invalid_request"},
		{name: "quantity too large", method: http.MethodPost, path: "/api/cart/items", body: map[string]any{"artwork_id": "quiet-field", "quantity": MaxQuantity + 1}, status: http.StatusBadRequest, code: "invalid_quantity"},
		{name: "unknown field", method: http.MethodPost, path: "/api/cart/items", body: map[string]any{"artwork_id": "quiet-field", "price": 1}, status: http.StatusBadRequest, code: "invalid_json"},
		{name: "broken json", method: http.MethodPost, path: "/api/cart/items", body: "{", status: http.StatusBadRequest, code: "invalid_json"},
		{name: "patch without quantity", method: http.MethodPatch, path: "/api/cart/items/quiet-field", body: map[string]any{}, status: http.StatusBadRequest, code: "invalid_quantity"},
		{name: "patch too large", method: http.MethodPatch, path: "/api/cart/items/quiet-field", body: map[string]any{"quantity": 10000}, status: http.StatusBadRequest, code: "invalid_quantity"},
		{name: "unknown route", method: http.MethodGet, path: "/api/orders", status: http.StatusNotFound, code: "not_found"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			resp, raw := env.do(t, tc.method, tc.path, tc.body)
			require.Equal(t, tc.status, resp.StatusCode)
			require.Equal(t, tc.code, errorCode(t, raw))
		})
	}

	_, raw := env.do(t, http.MethodGet, "/api/cart", nil)
	require.Empty(t, decodeCart(t, raw).Items, "rejected requests must not change the cart")
}

func TestCart_InvalidSessionCookieIsReplaced(t *testing.T) {
	env := newTestEnv(t, nil)

	resp, _ := env.do(t, http.MethodGet, "/api/cart", nil, "Cookie", SessionCookieName+"=not-a-uuid")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	cookies := resp.Cookies()
	require.Len(t, cookies, 1)
	require.NotEqual(t, "not-a-uuid", cookies[0].Value)
}

type stubCatalog struct {
	artwork domain.Artwork
	err     error
}

func (s stubCatalog) Artwork(context.Context, string, content.Access) (domain.Artwork, error) {
	return s.artwork, s.err
}

func (s stubCatalog) Artworks(context.Context, content.Access) ([]domain.Artwork, error) {
	if s.err != nil {
		return nil, s.err
	}
	return []domain.Artwork{s.artwork}, nil
}

func TestErrorMapping(t *testing.T) {
	t.Run("upstream failure", func(t *testing.T) {
		env := newTestEnv(t, stubCatalog{err: errors.New("dial tcp: connection refused")})

		resp, raw := env.do(t, http.MethodGet, "/api/artworks", nil)
		require.Equal(t, http.StatusBadGateway, resp.StatusCode)
		require.Equal(t, "content_unavailable", errorCode(t, raw))

		resp, _ = env.do(t, http.MethodPost, "/api/cart/items", map[string]any{"artwork_id": "w1"})
		require.Equal(t, http.StatusBadGateway, resp.StatusCode)
	})

	t.Run("invalid snapshot", func(t *testing.T) {
		env := newTestEnv(t, stubCatalog{artwork: domain.Artwork{ID: "w1", Price: domain.NewMoney(100, "EUR")}})

		resp, raw := env.do(t, http.MethodPost, "/api/cart/items", map[string]any{"artwork_id": "w1"})
		require.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
		require.Equal(t, "invalid_artwork", errorCode(t, raw))
	})
}

func TestArtworks(t *testing.T) {
	env := newTestEnv(t, nil)

	resp, raw := env.do(t, http.MethodGet, "/api/artworks", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var list struct {
		Artworks []artworkResponse `json:"artworks"`
	}
	require.NoError(t, json.Unmarshal(raw, &list))
	require.Len(t, list.Artworks, 3)

	resp, raw = env.do(t, http.MethodGet, "/api/artworks/quiet-field", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var artwork artworkResponse
	require.NoError(t, json.Unmarshal(raw, &artwork))
	require.Equal(t, "45.50", artwork.Price.Amount)

	resp, _ = env.do(t, http.MethodGet, "/api/artworks/nope", nil)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestDraftMode(t *testing.T) {
	env := newTestEnv(t, nil)

	resp, raw := env.do(t, http.MethodGet, "/api/draft/enable?secret=wrong", nil)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	require.Equal(t, "unauthorized", errorCode(t, raw))

	resp, _ = env.do(t, http.MethodGet, "/api/draft/enable?secret="+draftSecret+"&redirect=/gallery", nil)
	require.Equal(t, http.StatusTemporaryRedirect, resp.StatusCode)
	require.Equal(t, "/gallery", resp.Header.Get("Location"))

	_, raw = env.do(t, http.MethodGet, "/api/draft", nil)
	require.JSONEq(t, `{"enabled":true,"perspective":"drafts"}`, string(raw))

	resp, _ = env.do(t, http.MethodGet, "/api/draft/disable?redirect=https://evil.example", nil)
	require.Equal(t, http.StatusTemporaryRedirect, resp.StatusCode)
	require.Equal(t, "/", resp.Header.Get("Location"))

	_, raw = env.do(t, http.MethodGet, "/api/draft", nil)
	require.JSONEq(t, `{"enabled":false,"perspective":"published"}`, string(raw))
}

func TestRevalidate(t *testing.T) {
	env := newTestEnv(t, nil)

	env.do(t, http.MethodGet, "/api/artworks", nil)
	env.do(t, http.MethodGet, "/api/artworks/quiet-field", nil)
	require.Equal(t, 2, env.cache.Len())

	resp, raw := env.do(t, http.MethodPost, "/api/revalidate", map[string]any{"tags": []string{"artwork"}})
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	require.Equal(t, "unauthorized", errorCode(t, raw))

	resp, _ = env.do(t, http.MethodPost, "/api/revalidate", `{"tags":[]}`, content.RevalidateSecretHeader, revalidateSecret)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, raw = env.do(t, http.MethodPost, "/api/revalidate", map[string]any{"tags": []string{"artwork:quiet-field"}},
		content.RevalidateSecretHeader, revalidateSecret)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.JSONEq(t, `{"revalidated":true,"tags":["artwork:quiet-field"],"evicted":1}`, string(raw))
	require.Equal(t, 1, env.cache.Len())
}
