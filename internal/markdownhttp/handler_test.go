package markdownhttp

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keithlinneman/linnemanlabs-welcome/internal/markdown"
)

func newRouter(t *testing.T, files map[string]string) (http.Handler, string) {
	t.Helper()
	root := t.TempDir()
	for name, content := range files {
		require.NoError(t, os.WriteFile(filepath.Join(root, name), []byte(content), 0o644))
	}
	r := chi.NewRouter()
	New(markdown.New(markdown.Options{Root: root}), "en-US").RegisterRoutes(r)
	return r, root
}

func get(h http.Handler, target string, hdr map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, target, nil)
	for k, v := range hdr {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var m map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &m), rec.Body.String())
	return m
}

func TestJSON_Tiers(t *testing.T) {
	h, _ := newRouter(t, map[string]string{
		"chainlit.md":       "default",
		"chainlit_fr.md":    "general",
		"chainlit_pt-BR.md": "specific",
	})

	tests := []struct {
		lang, tier, body string
	}{
		{"pt-BR", "specific", "specific"},
		{"fr-CA", "general", "general"},
		{"de-DE", "default", "default"},
	}
	for _, tt := range tests {
		t.Run(tt.lang, func(t *testing.T) {
			rec := get(h, "/project/markdown?language="+tt.lang, nil)
			require.Equal(t, http.StatusOK, rec.Code)
			assert.Equal(t, "no-cache", rec.Header().Get("Cache-Control"))
			m := decode(t, rec)
			assert.Equal(t, tt.lang, m["language"])
			assert.Equal(t, tt.tier, m["tier"])
			assert.Equal(t, tt.body, m["markdown"])
		})
	}
}

func TestJSON_NothingResolves(t *testing.T) {
	h, _ := newRouter(t, nil)
	rec := get(h, "/project/markdown?language=fr-FR", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	m := decode(t, rec)
	v, present := m["markdown"]
	assert.True(t, present)
	assert.Nil(t, v)
	assert.Equal(t, "default", m["tier"])
}

func TestJSON_TraversalFallsBackToDefault(t *testing.T) {
	h, root := newRouter(t, map[string]string{"chainlit.md": "default"})
	require.NoError(t, os.Mkdir(filepath.Join(root, "chainlit_x"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(filepath.Dir(root), "secret.md"), []byte("secret"), 0o644))
	t.Cleanup(func() { os.Remove(filepath.Join(filepath.Dir(root), "secret.md")) })

	rec := get(h, "/project/markdown?language=x/../../secret", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "default", decode(t, rec)["markdown"])
}

func TestLanguageSelection(t *testing.T) {
	h, _ := newRouter(t, map[string]string{
		"chainlit.md":       "default",
		"chainlit_en-US.md": "english",
		"chainlit_fr-FR.md": "french",
	})

	m := decode(t, get(h, "/project/markdown", map[string]string{"Accept-Language": "fr-fr;q=0.9, de;q=0.5"}))
	assert.Equal(t, "fr-FR", m["language"])
	assert.Equal(t, "french", m["markdown"])

	m = decode(t, get(h, "/project/markdown", nil))
	assert.Equal(t, "en-US", m["language"], "configured default")
	assert.Equal(t, "english", m["markdown"])

	m = decode(t, get(h, "/project/markdown?language=fr-FR", map[string]string{"Accept-Language": "en-US"}))
	assert.Equal(t, "fr-FR", m["language"], "query wins over header")

	m = decode(t, get(h, "/project/markdown", map[string]string{"Accept-Language": "!!!"}))
	assert.Equal(t, "en-US", m["language"], "unparseable header falls back")
}

func TestLanguageTooLong(t *testing.T) {
	h, _ := newRouter(t, map[string]string{"chainlit.md": "default"})
	rec := get(h, "/project/markdown?language="+strings.Repeat("a", MaxLanguageLen+1), nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = get(h, "/project/markdown/raw?language="+strings.Repeat("a", MaxLanguageLen+1), nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRaw(t *testing.T) {
	h, _ := newRouter(t, map[string]string{
		"chainlit.md":    "# default",
		"chainlit_es.md": "# hola",
	})

	rec := get(h, "/project/markdown/raw?language=es-MX", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/markdown; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.Equal(t, "es", rec.Header().Get("Content-Language"))
	assert.Equal(t, "# hola", rec.Body.String())

	rec = get(h, "/project/markdown/raw?language=ja", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Header().Get("Content-Language"))
	assert.Equal(t, "# default", rec.Body.String())
}

func TestRaw_NotFound(t *testing.T) {
	h, _ := newRouter(t, nil)
	rec := get(h, "/project/markdown/raw?language=es", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRaw_Head(t *testing.T) {
	h, _ := newRouter(t, map[string]string{"chainlit.md": "# default"})
	req := httptest.NewRequest(http.MethodHead, "/project/markdown/raw", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Body.String())
}

type failingGetter struct{}

func (failingGetter) Get(context.Context, string) (markdown.Document, bool, error) {
	return markdown.Document{}, false, errors.New("disk on fire")
}

func TestResolveError(t *testing.T) {
	r := chi.NewRouter()
	New(failingGetter{}, "en").RegisterRoutes(r)

	for _, p := range []string{"/project/markdown", "/project/markdown/raw"} {
		rec := get(r, p, nil)
		assert.Equal(t, http.StatusInternalServerError, rec.Code, p)
		assert.NotContains(t, rec.Body.String(), "disk on fire", p)
	}
}

func TestPreferred(t *testing.T) {
	tests := []struct {
		header string
		want   string
		ok     bool
	}{
		{"", "", false},
		{"de-CH, de;q=0.8", "de-CH", true},
		{"en;q=0.1, ja", "ja", true},
		{strings.Repeat("a,", 600), "", false},
	}
	for _, tt := range tests {
		got, ok := preferred(tt.header)
		assert.Equal(t, tt.ok, ok, tt.header)
		assert.Equal(t, tt.want, got, tt.header)
	}
}
