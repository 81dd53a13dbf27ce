// Package markdownhttp serves the localized welcome document over HTTP.
package markdownhttp

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"golang.org/x/text/language"

	"github.com/keithlinneman/linnemanlabs-welcome/internal/httpmw"
	"github.com/keithlinneman/linnemanlabs-welcome/internal/log"
	"github.com/keithlinneman/linnemanlabs-welcome/internal/markdown"
)

// MaxLanguageLen bounds the language tag taken from the request.
const MaxLanguageLen = 64

// Getter is the part of *markdown.Resolver the handlers need.
type Getter interface {
	Get(ctx context.Context, language string) (markdown.Document, bool, error)
}

type Handler struct {
	docs            Getter
	defaultLanguage string
}

// New returns handlers reading from docs. defaultLanguage is used when the
// request names no language at all.
func New(docs Getter, defaultLanguage string) *Handler {
	return &Handler{docs: docs, defaultLanguage: defaultLanguage}
}

// RegisterRoutes mounts the document endpoints on r.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/project/markdown", func(r chi.Router) {
		r.Use(httpmw.Scope("markdown"))
		r.Get("/", h.serveJSON)
		r.Head("/", h.serveJSON)
		r.Get("/raw", h.serveRaw)
		r.Head("/raw", h.serveRaw)
	})
}

type response struct {
	Language string  `json:"language"`
	Tier     string  `json:"tier"`
	Markdown *string `json:"markdown"`
}

func (h *Handler) serveJSON(w http.ResponseWriter, r *http.Request) {
	lang, ok := h.language(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid language")
		return
	}

	doc, found, err := h.docs.Get(r.Context(), lang)
	if err != nil {
		log.FromContext(r.Context()).Error(r.Context(), err, "resolve markdown", "language", lang)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	resp := response{Language: lang, Tier: markdown.TierDefault.String()}
	if found {
		resp.Tier = doc.Tier.String()
		resp.Markdown = &doc.Content
	}
	w.Header().Set("Cache-Control", "no-cache")
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) serveRaw(w http.ResponseWriter, r *http.Request) {
	lang, ok := h.language(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid language")
		return
	}

	doc, found, err := h.docs.Get(r.Context(), lang)
	if err != nil {
		log.FromContext(r.Context()).Error(r.Context(), err, "resolve markdown", "language", lang)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	if !found {
		writeError(w, http.StatusNotFound, "no markdown document")
		return
	}

	hdr := w.Header()
	hdr.Set("Content-Type", "text/markdown; charset=utf-8")
	hdr.Set("Cache-Control", "no-cache")
	switch doc.Tier {
	case markdown.TierSpecific:
		hdr.Set("Content-Language", lang)
	case markdown.TierGeneral:
		hdr.Set("Content-Language", markdown.GeneralLanguage(lang))
	}
	w.WriteHeader(http.StatusOK)
	if r.Method != http.MethodHead {
		_, _ = w.Write([]byte(doc.Content))
	}
}

// language picks the query parameter, then the preferred Accept-Language
// tag, then the default. The query value is passed through untouched so
// the resolver sees exactly what the client sent.
func (h *Handler) language(r *http.Request) (string, bool) {
	if q := r.URL.Query().Get("language"); q != "" {
		return q, len(q) <= MaxLanguageLen
	}
	if tag, ok := preferred(r.Header.Get("Accept-Language")); ok {
		return tag, true
	}
	return h.defaultLanguage, true
}

func preferred(header string) (string, bool) {
	if header == "" || len(header) > 1024 {
		return "", false
	}
	tags, _, err := language.ParseAcceptLanguage(header)
	if err != nil {
		return "", false
	}
	for _, t := range tags {
		if t == language.Und {
			continue
		}
		if s := t.String(); len(s) <= MaxLanguageLen && !strings.ContainsAny(s, `/\`) {
			return s, true
		}
	}
	return "", false
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
