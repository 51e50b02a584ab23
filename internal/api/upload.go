package api

import (
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"

	"github.com/starford/keyshift/internal/chartfile"
	"github.com/starford/keyshift/internal/chartservice"
)

const maxUploadBytes = 10 << 20 // 10 MB

// UploadHandler accepts chart documents as multipart uploads.
type UploadHandler struct {
	svc *chartservice.Service
}

// NewUploadHandler creates an upload handler backed by svc.
func NewUploadHandler(svc *chartservice.Service) *UploadHandler {
	return &UploadHandler{svc: svc}
}

// safeName validates that name is a plain chart file name (no path
// separators, no traversal) and joins it under dir.
func safeName(dir, name string) (string, error) {
	if name == "" {
		return "", fmt.Errorf("filename is required")
	}
	if strings.ContainsAny(name, `/\`) || name == "." || name == ".." || strings.HasPrefix(name, ".") {
		return "", fmt.Errorf("invalid filename: %s", name)
	}
	if !chartfile.IsChartPath(name) {
		return "", fmt.Errorf("unsupported chart extension: %s", name)
	}
	dir = strings.Trim(path.Clean("/"+dir), "/")
	if dir == "" {
		return name, nil
	}
	return dir + "/" + name, nil
}

// Upload handles POST /api/charts/upload (multipart/form-data, field "file",
// optional field "dir").
//
//	@Summary		Upload a chart document
//	@Tags			charts
//	@Accept			multipart/form-data
//	@Produce		json
//	@Param			file	formData	file	true	"Chart document"
//	@Param			dir		formData	string	false	"Library sub-directory"
//	@Success		201		{object}	ChartUploadResponse
//	@Failure		400		{object}	errResponse
//	@Failure		409		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/charts/upload [post]
func (h *UploadHandler) Upload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)

	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeError(w, http.StatusBadRequest, "file too large or invalid multipart")
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "missing 'file' field in multipart form")
		return
	}
	defer file.Close()

	p, err := safeName(r.FormValue("dir"), header.Filename)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to read file")
		return
	}

	d, err := h.svc.CreateChart(r.Context(), p, data)
	if err != nil {
		writeServiceError(w, err, "upload chart", p)
		return
	}

	writeJSON(w, http.StatusCreated, ChartUploadResponse{
		Path:     d.Path,
		Size:     int64(len(data)),
		Checksum: d.Checksum,
		Keys:     d.Keys,
		Notes:    d.Notes,
	})
}
