package domain

import "errors"

var (
	// Ошибка отсутствующего идентификатора работы.
	ErrArtworkIDRequired = errors.New("artwork id is required")
	// Ошибка отсутствующей цены (не указана валюта).
	ErrArtworkPriceRequired = errors.New("artwork price is required")
	// Ошибка отрицательной цены работы.
	ErrArtworkPriceInvalid = errors.New("artwork price must be non-negative")
	// Ошибка несовпадения валюты работы и валюты корзины.
	ErrCurrencyMismatch = errors.New("artwork currency does not match cart currency")
	// Ошибка некорректной политики ценообразования.
	ErrPricingPolicyInvalid = errors.New("pricing policy is invalid")
	// ErrCartNotFound возвращается хранилищем, если сохранённой корзины нет.
	ErrCartNotFound = errors.New("cart not found")
	// ErrCartEmpty — оформление пустой корзины.
	ErrCartEmpty = errors.New("cart is empty")
	// ErrArtworkNotFound — работа отсутствует в каталоге.
	ErrArtworkNotFound = errors.New("artwork not found")
	// ErrContentNotFound — документ не найден в контент-хранилище.
	ErrContentNotFound = errors.New("content not found")
	// ErrUnknownQuery — запрошен незарегистрированный именованный запрос.
	ErrUnknownQuery = errors.New("unknown content query")
	// ErrPreviewTokenRequired — чтение черновиков без токена доступа.
	ErrPreviewTokenRequired = errors.New("preview token is required for drafts perspective")
	// ErrDraftSecretInvalid — неверный секрет включения режима черновиков.
	ErrDraftSecretInvalid = errors.New("draft mode secret is invalid")
	// ErrOutboxPublish — ошибка при публикации сообщения из outbox.
	ErrOutboxPublish = errors.New("outbox publish failed")
)

// IsPrecondition сообщает, что ошибка вызвана некорректным снимком работы от вызывающего кода.
func IsPrecondition(err error) bool {
	return errors.Is(err, ErrArtworkIDRequired) ||
		errors.Is(err, ErrArtworkPriceRequired) ||
		errors.Is(err, ErrArtworkPriceInvalid) ||
		errors.Is(err, ErrCurrencyMismatch)
}
