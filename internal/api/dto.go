package api

import (
	"github.com/starford/keyshift/internal/chartservice"
	"github.com/starford/keyshift/internal/keymode"
)

// CreateChartRequest is the request body for creating a chart.
type CreateChartRequest struct {
	Path    string `json:"path" example:"packs/song.yaml" validate:"required"`
	Content string `json:"content" example:"title: Song\nkeys: 4\nnotes: []" validate:"required"`
}

// UpdateChartRequest is the request body for replacing a chart.
type UpdateChartRequest struct {
	Content string `json:"content" example:"title: Song\nkeys: 7\nnotes: []" validate:"required"`
}

// ChartDetail is the full chart response type (aliased from the domain layer).
type ChartDetail = chartservice.ChartDetail

// ChartListItem is a lightweight item in a list response (aliased from the domain layer).
type ChartListItem = chartservice.ChartListItem

// ChartListResponse wraps paginated chart listings.
type ChartListResponse struct {
	Charts []ChartListItem `json:"charts" validate:"required"`
	Total  int             `json:"total" example:"42" validate:"required"`
}

// SearchResult is a single search hit in the API response.
type SearchResult struct {
	Path    string `json:"path" example:"packs/song.yaml" validate:"required"`
	Title   string `json:"title" example:"Song" validate:"required"`
	Snippet string `json:"snippet" example:"Artist - 7K Hard" validate:"required"`
}

// SearchResponse wraps search results.
type SearchResponse struct {
	Results []SearchResult `json:"results" validate:"required"`
}

// ConvertRequest is the request body for one conversion.
type ConvertRequest = chartservice.Request

// ConvertResult is the response of one conversion.
type ConvertResult = chartservice.Result

// Conversion is one history entry.
type Conversion = chartservice.Conversion

// ConvertBatchRequest is the request body for a batch conversion.
type ConvertBatchRequest struct {
	Requests []ConvertRequest `json:"requests" validate:"required"`
	Workers  int              `json:"workers,omitempty" example:"4"`
}

// ConvertBatchResponse reports every batch item in request order.
type ConvertBatchResponse struct {
	Items  []chartservice.BatchItem `json:"items" validate:"required"`
	Failed int                      `json:"failed" example:"0" validate:"required"`
}

// ConversionListResponse wraps conversion history.
type ConversionListResponse struct {
	Conversions []Conversion `json:"conversions" validate:"required"`
}

// LayoutResponse describes the columns of a key mode.
type LayoutResponse struct {
	Keys    int                  `json:"keys" example:"7" validate:"required"`
	Columns []keymode.ColumnType `json:"columns" validate:"required"`
}

// ChartUploadResponse is returned after a successful chart upload.
type ChartUploadResponse struct {
	Path     string `json:"path" example:"packs/song.yaml" validate:"required"`
	Size     int64  `json:"size" example:"12345" validate:"required"`
	Checksum string `json:"checksum" validate:"required"`
	Keys     int    `json:"keys" example:"7" validate:"required"`
	Notes    int    `json:"notes" example:"512" validate:"required"`
}
