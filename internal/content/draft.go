package content

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v4"

	"github.com/gwatkins2090/portfolio/internal/domain"
)

const (
	// DraftCookieName — cookie с подписанным флагом режима черновиков.
	DraftCookieName = "portfolio_draft"

	defaultDraftTTL = time.Hour
	draftIssuer     = "portfolio"
	draftSubject    = "draft-mode"
)

var errDraftTokenInvalid = errors.New("draft token is invalid")

// DraftConfig описывает режим черновиков.
type DraftConfig struct {
	// Secret сверяется с секретом из ссылки включения. Пустой секрет отключает режим.
	Secret string
	// SigningKey подписывает cookie; по умолчанию используется Secret.
	SigningKey []byte
	// ReadToken даёт доступ к черновикам в хранилище.
	ReadToken    string
	TTL          time.Duration
	SecureCookie bool
}

// DraftMode включает и выключает перспективу черновиков через подписанную cookie.
type DraftMode struct {
	secret    string
	key       []byte
	readToken string
	ttl       time.Duration
	secure    bool
	now       func() time.Time
}

// NewDraftMode создаёт переключатель режима черновиков.
func NewDraftMode(cfg DraftConfig) *DraftMode {
	key := cfg.SigningKey
	if len(key) == 0 {
		key = []byte(cfg.Secret)
	}
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = defaultDraftTTL
	}
	return &DraftMode{
		secret:    cfg.Secret,
		key:       key,
		readToken: cfg.ReadToken,
		ttl:       ttl,
		secure:    cfg.SecureCookie,
		now:       time.Now,
	}
}

// Enable проверяет секрет и выставляет cookie режима черновиков.
func (d *DraftMode) Enable(w http.ResponseWriter, secret string) error {
	if d.secret == "" || subtle.ConstantTimeCompare([]byte(secret), []byte(d.secret)) != 1 {
		return domain.ErrDraftSecretInvalid
	}
	if d.readToken == "" {
		return domain.ErrPreviewTokenRequired
	}

	token, expiresAt, err := d.issue()
	if err != nil {
		return err
	}
	http.SetCookie(w, &http.Cookie{
		Name:     DraftCookieName,
		Value:    token,
		Path:     "/",
		Expires:  expiresAt,
		HttpOnly: true,
		Secure:   d.secure,
		SameSite: http.SameSiteLaxMode,
	})
	return nil
}

// Disable удаляет cookie, чтения возвращаются к опубликованной перспективе.
func (d *DraftMode) Disable(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     DraftCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		Expires:  time.Unix(0, 0),
		HttpOnly: true,
		Secure:   d.secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// AccessFromRequest возвращает доступ к черновикам, только если cookie подписана и не истекла.
func (d *DraftMode) AccessFromRequest(r *http.Request) Access {
	cookie, err := r.Cookie(DraftCookieName)
	if err != nil {
		return Published()
	}
	return d.AccessFromToken(cookie.Value)
}

// AccessFromToken проверяет значение cookie, переданное вне HTTP (например, в gRPC metadata).
func (d *DraftMode) AccessFromToken(raw string) Access {
	if d == nil || d.readToken == "" || strings.TrimSpace(raw) == "" {
		return Published()
	}
	if err := d.verify(raw); err != nil {
		return Published()
	}
	return previewAccess(d.readToken)
}

func (d *DraftMode) issue() (string, time.Time, error) {
	issuedAt := d.now()
	expiresAt := issuedAt.Add(d.ttl)
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Issuer:    draftIssuer,
		Subject:   draftSubject,
		IssuedAt:  jwt.NewNumericDate(issuedAt),
		ExpiresAt: jwt.NewNumericDate(expiresAt),
	})
	signed, err := token.SignedString(d.key)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign draft token: %w", err)
	}
	return signed, expiresAt, nil
}

func (d *DraftMode) verify(raw string) error {
	if len(d.key) == 0 {
		return errDraftTokenInvalid
	}
	claims := &jwt.RegisteredClaims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return d.key, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return fmt.Errorf("%w: %v", errDraftTokenInvalid, err)
	}
	if !token.Valid || claims.Subject != draftSubject || claims.Issuer != draftIssuer {
		return errDraftTokenInvalid
	}
	return nil
}

// SafeRedirect оставляет только относительные пути внутри сайта.
func SafeRedirect(target string) string {
	target = strings.TrimSpace(target)
	if !strings.HasPrefix(target, "/") || strings.HasPrefix(target, "//") || strings.HasPrefix(target, "/\\") {
		return "/"
	}
	return target
}
