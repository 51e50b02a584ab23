package api

import (
	"bytes"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"path"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/starford/keyshift/internal/chartservice"
)

const maxBodyBytes = 10 << 20

// Handler holds API route handlers.
type Handler struct {
	svc *chartservice.Service
}

// NewHandler creates a new Handler.
func NewHandler(svc *chartservice.Service) *Handler {
	return &Handler{svc: svc}
}

// chartPath extracts the chart path from the URL (everything after the
// route prefix). Supports encoded slashes from OpenAPI clients
// (e.g. packs%2Fsong.yaml).
func chartPath(r *http.Request) string {
	raw := strings.TrimPrefix(chi.URLParam(r, "*"), "/")
	if raw == "" {
		return ""
	}
	decoded, err := url.PathUnescape(raw)
	if err != nil {
		return raw
	}
	return decoded
}

// ListCharts handles GET /api/charts.
//
//	@Summary		List charts with optional pagination and key-mode filter
//	@Tags			charts
//	@Produce		json
//	@Param			limit	query		int		false	"Page size"
//	@Param			offset	query		int		false	"Page offset"
//	@Param			keys	query		int		false	"Filter by key count"
//	@Param			sort	query		string	false	"Sort field"	Enums(path, title, keys, notes, updated_at)
//	@Success		200		{object}	ChartListResponse
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/charts [get]
func (h *Handler) ListCharts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	offset, _ := strconv.Atoi(q.Get("offset"))
	keys, _ := strconv.Atoi(q.Get("keys"))

	items, total, err := h.svc.ListCharts(r.Context(), limit, offset, keys, q.Get("sort"))
	if err != nil {
		writeServiceError(w, err, "list charts", "")
		return
	}
	if items == nil {
		items = []ChartListItem{}
	}
	writeJSON(w, http.StatusOK, ChartListResponse{Charts: items, Total: total})
}

// GetChart handles GET /api/charts/*.
//
//	@Summary		Get a single chart by path
//	@Tags			charts
//	@Produce		json
//	@Param			path	path		string	true	"Chart path"
//	@Success		200		{object}	ChartDetail
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/charts/{path} [get]
func (h *Handler) GetChart(w http.ResponseWriter, r *http.Request) {
	p := chartPath(r)
	if p == "" {
		writeError(w, http.StatusBadRequest, "path is required")
		return
	}
	d, err := h.svc.GetChart(r.Context(), p)
	if err != nil {
		writeServiceError(w, err, "get chart", p)
		return
	}
	w.Header().Set("ETag", `"`+d.Checksum+`"`)
	writeJSON(w, http.StatusOK, d)
}

// CreateChart handles POST /api/charts.
//
//	@Summary		Create a new chart
//	@Tags			charts
//	@Accept			json
//	@Produce		json
//	@Param			body	body		CreateChartRequest	true	"Chart to create"
//	@Success		201		{object}	ChartDetail
//	@Failure		400		{object}	errResponse
//	@Failure		409		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/charts [post]
func (h *Handler) CreateChart(w http.ResponseWriter, r *http.Request) {
	var req CreateChartRequest
	if !readJSON(w, r, &req) {
		return
	}
	if req.Path == "" || req.Content == "" {
		writeError(w, http.StatusBadRequest, "path and content are required")
		return
	}
	d, err := h.svc.CreateChart(r.Context(), req.Path, []byte(req.Content))
	if err != nil {
		writeServiceError(w, err, "create chart", req.Path)
		return
	}
	writeJSON(w, http.StatusCreated, d)
}

// PutChart handles PUT /api/charts/*.
//
//	@Summary		Create or replace a chart with optimistic concurrency
//	@Tags			charts
//	@Accept			json
//	@Produce		json
//	@Param			path		path		string				true	"Chart path"
//	@Param			If-Match	header		string				false	"SHA-256 checksum for optimistic concurrency"
//	@Param			body		body		UpdateChartRequest	true	"Chart document"
//	@Success		200			{object}	ChartDetail
//	@Success		201			{object}	ChartDetail
//	@Failure		400			{object}	errResponse
//	@Failure		404			{object}	errResponse
//	@Failure		409			{object}	errResponse
//	@Security		BearerAuth
//	@Router			/charts/{path} [put]
func (h *Handler) PutChart(w http.ResponseWriter, r *http.Request) {
	p := chartPath(r)
	if p == "" {
		writeError(w, http.StatusBadRequest, "path is required")
		return
	}
	var req UpdateChartRequest
	if !readJSON(w, r, &req) {
		return
	}
	if req.Content == "" {
		writeError(w, http.StatusBadRequest, "content is required")
		return
	}

	// Strip surrounding quotes if present (standard ETag format).
	ifMatch := strings.Trim(r.Header.Get("If-Match"), `"`)

	d, created, err := h.svc.PutChart(r.Context(), p, []byte(req.Content), ifMatch)
	if err != nil {
		writeServiceError(w, err, "put chart", p)
		return
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	w.Header().Set("ETag", `"`+d.Checksum+`"`)
	writeJSON(w, status, d)
}

// DeleteChart handles DELETE /api/charts/*.
//
//	@Summary		Delete a chart
//	@Tags			charts
//	@Param			path	path	string	true	"Chart path"
//	@Success		204		"Chart deleted"
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/charts/{path} [delete]
func (h *Handler) DeleteChart(w http.ResponseWriter, r *http.Request) {
	p := chartPath(r)
	if p == "" {
		writeError(w, http.StatusBadRequest, "path is required")
		return
	}
	if err := h.svc.DeleteChart(r.Context(), p); err != nil {
		writeServiceError(w, err, "delete chart", p)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Search handles GET /api/search.
//
//	@Summary		Full-text search across chart metadata
//	@Tags			search
//	@Produce		json
//	@Param			q		query		string	true	"Search query"
//	@Param			limit	query		int		false	"Max results"
//	@Success		200		{object}	SearchResponse
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/search [get]
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	if q == "" {
		writeError(w, http.StatusBadRequest, "query parameter 'q' is required")
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	results, err := h.svc.Search(r.Context(), q, limit)
	if err != nil {
		slog.Error("search failed", slog.String("query", q), slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	resp := SearchResponse{Results: make([]SearchResult, len(results))}
	for i, res := range results {
		resp.Results[i] = SearchResult{Path: res.Path, Title: res.Title, Snippet: res.Snippet}
	}
	writeJSON(w, http.StatusOK, resp)
}

// Convert handles POST /api/convert.
//
//	@Summary		Run one conversion
//	@Tags			convert
//	@Accept			json
//	@Produce		json
//	@Param			body	body		ConvertRequest	true	"Conversion request"
//	@Success		201		{object}	ConvertResult
//	@Failure		400		{object}	errResponse
//	@Failure		404		{object}	errResponse
//	@Failure		409		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/convert [post]
func (h *Handler) Convert(w http.ResponseWriter, r *http.Request) {
	var req ConvertRequest
	if !readJSON(w, r, &req) {
		return
	}
	res, err := h.svc.Convert(r.Context(), req)
	if err != nil {
		writeServiceError(w, err, "convert", req.Source)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

// ConvertBatch handles POST /api/convert/batch.
//
//	@Summary		Run several conversions concurrently
//	@Tags			convert
//	@Accept			json
//	@Produce		json
//	@Param			body	body		ConvertBatchRequest	true	"Conversion requests"
//	@Success		200		{object}	ConvertBatchResponse
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/convert/batch [post]
func (h *Handler) ConvertBatch(w http.ResponseWriter, r *http.Request) {
	var req ConvertBatchRequest
	if !readJSON(w, r, &req) {
		return
	}
	if len(req.Requests) == 0 {
		writeError(w, http.StatusBadRequest, "requests are required")
		return
	}
	items, err := h.svc.ConvertBatch(r.Context(), req.Requests, req.Workers)
	if err != nil {
		slog.Warn("batch convert had failures", slog.String("error", err.Error()))
	}
	failed := 0
	for _, it := range items {
		if it.Error != "" {
			failed++
		}
	}
	writeJSON(w, http.StatusOK, ConvertBatchResponse{Items: items, Failed: failed})
}

// Conversions handles GET /api/conversions.
//
//	@Summary		List conversion history, newest first
//	@Tags			convert
//	@Produce		json
//	@Param			source	query		string	false	"Filter by source chart"
//	@Param			limit	query		int		false	"Max entries"
//	@Success		200		{object}	ConversionListResponse
//	@Security		BearerAuth
//	@Router			/conversions [get]
func (h *Handler) Conversions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	list, err := h.svc.Conversions(r.Context(), q.Get("source"), limit)
	if err != nil {
		writeServiceError(w, err, "list conversions", q.Get("source"))
		return
	}
	if list == nil {
		list = []Conversion{}
	}
	writeJSON(w, http.StatusOK, ConversionListResponse{Conversions: list})
}

// Layout handles GET /api/layouts/{keys}.
//
//	@Summary		Column layout of a key mode
//	@Tags			charts
//	@Produce		json
//	@Param			keys	path		int	true	"Key count"
//	@Success		200		{object}	LayoutResponse
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/layouts/{keys} [get]
func (h *Handler) Layout(w http.ResponseWriter, r *http.Request) {
	keys, err := strconv.Atoi(chi.URLParam(r, "keys"))
	if err != nil || keys < 1 {
		writeError(w, http.StatusBadRequest, "keys must be a positive integer")
		return
	}
	writeJSON(w, http.StatusOK, LayoutResponse{Keys: keys, Columns: h.svc.Layout(keys)})
}

// ExportMIDI handles GET /api/export/midi/*.
//
//	@Summary		Export a chart as a Standard MIDI File
//	@Tags			charts
//	@Produce		audio/midi
//	@Param			path	path	string	true	"Chart path"
//	@Success		200
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/export/midi/{path} [get]
func (h *Handler) ExportMIDI(w http.ResponseWriter, r *http.Request) {
	p := chartPath(r)
	if p == "" {
		writeError(w, http.StatusBadRequest, "path is required")
		return
	}
	var buf bytes.Buffer
	if err := h.svc.ExportMIDI(r.Context(), p, &buf); err != nil {
		writeServiceError(w, err, "export midi", p)
		return
	}
	base := path.Base(p)
	name := strings.TrimSuffix(base, path.Ext(base)) + ".mid"
	w.Header().Set("Content-Type", "audio/midi")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	w.WriteHeader(http.StatusOK)
	_, _ = buf.WriteTo(w)
}
