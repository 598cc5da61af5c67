package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/gwatkins2090/portfolio/internal/content"
)

func (a *api) listArtworks(w http.ResponseWriter, r *http.Request) {
	artworks, err := a.catalog.Artworks(r.Context(), a.draft.AccessFromRequest(r))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	items := make([]artworkResponse, 0, len(artworks))
	for _, artwork := range artworks {
		items = append(items, newArtworkResponse(artwork))
	}
	writeJSON(w, http.StatusOK, map[string]any{"artworks": items})
}

func (a *api) getArtwork(w http.ResponseWriter, r *http.Request) {
	artwork, err := a.catalog.Artwork(r.Context(), chi.URLParam(r, "artworkID"), a.draft.AccessFromRequest(r))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newArtworkResponse(artwork))
}

func (a *api) draftStatus(w http.ResponseWriter, r *http.Request) {
	access := a.draft.AccessFromRequest(r)
	writeJSON(w, http.StatusOK, map[string]any{
		"enabled":     access.IsPreview(),
		"perspective": access.Perspective(),
	})
}

func (a *api) enableDraft(w http.ResponseWriter, r *http.Request) {
	if err := a.draft.Enable(w, r.URL.Query().Get("secret")); err != nil {
		a.writeError(w, r, err)
		return
	}
	http.Redirect(w, r, content.SafeRedirect(r.URL.Query().Get("redirect")), http.StatusTemporaryRedirect)
}

func (a *api) disableDraft(w http.ResponseWriter, r *http.Request) {
	a.draft.Disable(w)
	http.Redirect(w, r, content.SafeRedirect(r.URL.Query().Get("redirect")), http.StatusTemporaryRedirect)
}

func (a *api) revalidate(w http.ResponseWriter, r *http.Request) {
	req, err := content.ParseRevalidateRequest(r, a.revalidateSecret)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	evicted := 0
	if a.revalidator != nil {
		evicted = a.revalidator.Apply(r.Context(), req.Tags)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"revalidated": true,
		"tags":        req.Tags,
		"evicted":     evicted,
	})
}
