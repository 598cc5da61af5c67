package content

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	log "github.com/sirupsen/logrus"
)

// RevalidateSecretHeader — заголовок с секретом вебхука ревалидации.
const RevalidateSecretHeader = "X-Revalidate-Secret"

const maxRevalidateBodyBytes = 64 << 10

var (
	// ErrRevalidateUnauthorized — неверный или отсутствующий секрет вебхука.
	ErrRevalidateUnauthorized = errors.New("revalidate secret is invalid")
	// ErrRevalidateInvalid — тело вебхука не содержит тегов.
	ErrRevalidateInvalid = errors.New("revalidate request is invalid")
)

// RevalidateRequest — принятый запрос ревалидации.
type RevalidateRequest struct {
	Tags []string
}

type revalidateBody struct {
	Tags []string `json:"tags"`
	// Вебхук хранилища присылает тип и id изменённого документа.
	Type string `json:"_type"`
	ID   string `json:"_id"`
}

// ParseRevalidateRequest проверяет секрет и извлекает теги.
// Если теги не переданы явно, они выводятся из _type и _id документа.
func ParseRevalidateRequest(r *http.Request, secret string) (RevalidateRequest, error) {
	provided := r.Header.Get(RevalidateSecretHeader)
	if secret == "" || subtle.ConstantTimeCompare([]byte(provided), []byte(secret)) != 1 {
		return RevalidateRequest{}, ErrRevalidateUnauthorized
	}

	var body revalidateBody
	decoder := json.NewDecoder(io.LimitReader(r.Body, maxRevalidateBodyBytes))
	if err := decoder.Decode(&body); err != nil {
		return RevalidateRequest{}, fmt.Errorf("%w: %v", ErrRevalidateInvalid, err)
	}

	tags := normalizeTags(body.Tags)
	if len(tags) == 0 && strings.TrimSpace(body.Type) != "" {
		docType := strings.TrimSpace(body.Type)
		tags = []string{docType}
		if id := strings.TrimSpace(body.ID); id != "" {
			tags = append(tags, docType+":"+strings.TrimPrefix(id, "drafts."))
		}
	}
	if len(tags) == 0 {
		return RevalidateRequest{}, fmt.Errorf("%w: no tags", ErrRevalidateInvalid)
	}
	return RevalidateRequest{Tags: tags}, nil
}

func normalizeTags(tags []string) []string {
	seen := make(map[string]bool, len(tags))
	out := make([]string, 0, len(tags))
	for _, tag := range tags {
		tag = strings.TrimSpace(tag)
		if tag == "" || seen[tag] {
			continue
		}
		seen[tag] = true
		out = append(out, tag)
	}
	return out
}

// Broadcaster рассылает ревалидацию другим экземплярам.
type Broadcaster interface {
	Broadcast(ctx context.Context, tags []string) error
}

// Revalidation применяет ревалидацию к локальному кэшу и рассылает её дальше.
type Revalidation struct {
	cache       *Cache
	broadcaster Broadcaster
	metrics     Metrics
	logger      *log.Entry
}

// NewRevalidation создаёт обработчик ревалидации. broadcaster может быть nil.
func NewRevalidation(cache *Cache, broadcaster Broadcaster, metrics Metrics, logger *log.Entry) *Revalidation {
	if metrics == nil {
		metrics = nopMetrics{}
	}
	if logger == nil {
		logger = log.WithField("component", "content-revalidation")
	}
	return &Revalidation{cache: cache, broadcaster: broadcaster, metrics: metrics, logger: logger}
}

// Apply вытесняет записи с тегами. Ошибка рассылки логируется и не отменяет локальную ревалидацию.
func (r *Revalidation) Apply(ctx context.Context, tags []string) int {
	r.metrics.RecordRevalidation()

	evicted := 0
	if r.cache != nil {
		evicted = r.cache.Revalidate(tags...)
	}
	if r.broadcaster != nil {
		if err := r.broadcaster.Broadcast(ctx, tags); err != nil {
			r.logger.WithError(err).WithField("tags", tags).Warn("failed to broadcast content revalidation")
		}
	}

	r.logger.WithFields(log.Fields{"tags": tags, "evicted": evicted}).Info("content revalidated")
	return evicted
}
