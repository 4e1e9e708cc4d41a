package handlers

import (
	"net/http"
	"strconv"

	"github.com/tendant/manual-asset-pipeline/internal/resolver"
	"github.com/tendant/manual-asset-pipeline/pkg/pipeline"
)

// ResolveHandler exposes the variant resolver over HTTP
type ResolveHandler struct {
	resolver *resolver.Resolver
}

// NewResolveHandler creates a resolve handler
func NewResolveHandler(r *resolver.Resolver) *ResolveHandler {
	return &ResolveHandler{resolver: r}
}

// HandleResolve handles GET /v1/resolve?path=&size=&format=
func (h *ResolveHandler) HandleResolve(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	q := r.URL.Query()
	path := q.Get("path")
	if path == "" {
		http.Error(w, "path is required", http.StatusBadRequest)
		return
	}

	res := h.resolver.Lookup(path, q.Get("size"), q.Get("format"))
	writeJSON(w, http.StatusOK, pipeline.ResolveResponse{
		Path:   res.Path,
		Source: string(res.Source),
	})
}

// HandlePicture handles GET /v1/picture?path=&alt=&sizes=&class=&lazy=
// and returns a <picture> fragment
func (h *ResolveHandler) HandlePicture(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	q := r.URL.Query()
	path := q.Get("path")
	if path == "" {
		http.Error(w, "path is required", http.StatusBadRequest)
		return
	}

	opts := []resolver.PictureOption{resolver.WithAlt(q.Get("alt"))}
	if v := q.Get("sizes"); v != "" {
		opts = append(opts, resolver.WithSizes(v))
	}
	if v := q.Get("class"); v != "" {
		opts = append(opts, resolver.WithClass(v))
	}
	if v := q.Get("lazy"); v != "" {
		lazy, err := strconv.ParseBool(v)
		if err != nil {
			http.Error(w, "lazy must be a boolean", http.StatusBadRequest)
			return
		}
		opts = append(opts, resolver.WithLazy(lazy))
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(h.resolver.Picture(path, opts...)))
}
