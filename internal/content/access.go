package content

// Perspective определяет, какие версии документов видит чтение.
type Perspective string

const (
	// PerspectivePublished — опубликованные документы, чтения кэшируются.
	PerspectivePublished Perspective = "published"
	// PerspectiveDrafts — черновики поверх опубликованного, кэш не используется.
	PerspectiveDrafts Perspective = "drafts"
)

// Access — право на чтение, которое передаётся в каждый запрос явно.
// Нулевое значение означает опубликованную перспективу без токена.
// Доступ к черновикам выдаёт только DraftMode.
type Access struct {
	preview bool
	token   string
}

// Published возвращает доступ без привилегий.
func Published() Access {
	return Access{}
}

func previewAccess(token string) Access {
	return Access{preview: true, token: token}
}

// Perspective возвращает перспективу чтения.
func (a Access) Perspective() Perspective {
	if a.preview {
		return PerspectiveDrafts
	}
	return PerspectivePublished
}

// IsPreview сообщает, что чтение идёт в режиме черновиков и должно обходить кэш.
func (a Access) IsPreview() bool {
	return a.preview
}

// Token возвращает токен чтения черновиков; для опубликованной перспективы пуст.
func (a Access) Token() string {
	return a.token
}
