package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tendant/manual-asset-pipeline/internal/config"
	"github.com/tendant/manual-asset-pipeline/internal/convention"
	"github.com/tendant/manual-asset-pipeline/internal/resolver"
	"github.com/tendant/manual-asset-pipeline/pkg/pipeline"
)

func newResolveHandler() *ResolveHandler {
	return NewResolveHandler(resolver.New(convention.Default(), config.Default().Sizes))
}

func TestHandleResolve(t *testing.T) {
	h := newResolveHandler()

	q := url.Values{"path": {"manuais/sox406/images/equipment/sox406-main.jpg"}, "size": {"small"}}
	rec := httptest.NewRecorder()
	h.HandleResolve(rec, httptest.NewRequest(http.MethodGet, "/v1/resolve?"+q.Encode(), nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var resp pipeline.ResolveResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "manuais/sox406/images/optimized/equipment/sox406-main-small.webp", resp.Path)
	assert.Equal(t, "convention", resp.Source)
}

func TestHandleResolveMissingPath(t *testing.T) {
	rec := httptest.NewRecorder()
	newResolveHandler().HandleResolve(rec, httptest.NewRequest(http.MethodGet, "/v1/resolve", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandlePicture(t *testing.T) {
	h := newResolveHandler()

	q := url.Values{"path": {"assets/images/logo.png"}, "alt": {"Logo"}, "lazy": {"false"}, "class": {"brand"}}
	rec := httptest.NewRecorder()
	h.HandlePicture(rec, httptest.NewRequest(http.MethodGet, "/v1/picture?"+q.Encode(), nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/html; charset=utf-8", rec.Header().Get("Content-Type"))
	body := rec.Body.String()
	assert.Contains(t, body, `<picture class="brand">`)
	assert.Contains(t, body, `alt="Logo"`)
	assert.Contains(t, body, "assets/images/optimized/logo-medium.jpg")
	assert.NotContains(t, body, "loading=")
}

func TestHandlePictureBadLazy(t *testing.T) {
	rec := httptest.NewRecorder()
	newResolveHandler().HandlePicture(rec, httptest.NewRequest(http.MethodGet, "/v1/picture?path=a.png&lazy=maybe", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleHealth(t *testing.T) {
	rec := httptest.NewRecorder()
	HandleHealth(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"healthy"}`, rec.Body.String())
}
