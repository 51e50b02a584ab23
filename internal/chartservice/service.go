// Package chartservice coordinates the chart library, the index and the
// converters.
package chartservice

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/starford/keyshift/internal/apperr"
	"github.com/starford/keyshift/internal/chart"
	"github.com/starford/keyshift/internal/chartfile"
	"github.com/starford/keyshift/internal/checksum"
	"github.com/starford/keyshift/internal/index"
	"github.com/starford/keyshift/internal/keymode"
	"github.com/starford/keyshift/internal/midiexport"
	"github.com/starford/keyshift/internal/storage"
)

// DefaultOutputSuffix is inserted before the extension of derived targets.
const DefaultOutputSuffix = ".keyshift"

// Notifier receives library and conversion events. sse.Broker implements it.
type Notifier interface {
	PublishChartEvent(kind, path string)
	PublishConversion(id, kind, source, target string)
}

// ChartDetail is the full representation of a chart.
type ChartDetail struct {
	Path      string               `json:"path"`
	Title     string               `json:"title"`
	Artist    string               `json:"artist"`
	Version   string               `json:"version"`
	Keys      int                  `json:"keys"`
	Notes     int                  `json:"notes"`
	Holds     int                  `json:"holds"`
	Checksum  string               `json:"checksum"`
	Layout    []keymode.ColumnType `json:"layout"`
	Content   string               `json:"content"`
	Chart     chartfile.Document   `json:"chart"`
	UpdatedAt time.Time            `json:"updated_at"`
}

// ChartListItem is a lightweight item in a list response.
type ChartListItem struct {
	Path      string    `json:"path"`
	Title     string    `json:"title"`
	Artist    string    `json:"artist"`
	Version   string    `json:"version"`
	Keys      int       `json:"keys"`
	Notes     int       `json:"notes"`
	Holds     int       `json:"holds"`
	Checksum  string    `json:"checksum"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Service coordinates storage, index and conversion operations.
type Service struct {
	store    storage.Provider
	db       *index.DB
	layouts  *keymode.Cache
	notifier Notifier
	suffix   string
	workers  int

	// claims holds paths with a create in flight.
	claimMu sync.Mutex
	claims  map[string]struct{}
}

// Option configures a Service.
type Option func(*Service)

// WithNotifier sets the event sink for chart and conversion events.
func WithNotifier(n Notifier) Option {
	return func(s *Service) { s.notifier = n }
}

// WithOutputSuffix sets the suffix used to derive conversion targets.
func WithOutputSuffix(suffix string) Option {
	return func(s *Service) {
		if suffix != "" {
			s.suffix = suffix
		}
	}
}

// WithWorkers sets the default batch conversion concurrency.
func WithWorkers(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.workers = n
		}
	}
}

// WithLayouts shares a key-mode cache with the service.
func WithLayouts(c *keymode.Cache) Option {
	return func(s *Service) {
		if c != nil {
			s.layouts = c
		}
	}
}

// NewService creates a new chart service.
func NewService(store storage.Provider, db *index.DB, opts ...Option) *Service {
	s := &Service{
		store:   store,
		db:      db,
		layouts: keymode.NewCache(),
		suffix:  DefaultOutputSuffix,
		workers: 4,
		claims:  make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// GetChart reads and decodes a chart from the library.
func (s *Service) GetChart(_ context.Context, path string) (*ChartDetail, error) {
	data, err := s.read(path)
	if err != nil {
		return nil, err
	}
	c, err := chartfile.Decode(data)
	if err != nil {
		return nil, err
	}
	return s.buildDetail(path, data, c), nil
}

// CreateChart writes a new chart and indexes it. It fails with
// apperr.ErrAlreadyExists when path is taken.
func (s *Service) CreateChart(_ context.Context, path string, content []byte) (*ChartDetail, error) {
	if !chartfile.IsChartPath(path) {
		return nil, fmt.Errorf("%w: unsupported extension for %s", apperr.ErrInvalidChart, path)
	}
	release, ok := s.claim(path)
	if !ok {
		return nil, apperr.ErrAlreadyExists
	}
	defer release()
	if _, err := s.store.Read(path); err == nil {
		return nil, apperr.ErrAlreadyExists
	}
	return s.write(path, content, "created")
}

// PutChart creates or replaces a chart. A non-empty ifMatch must equal the
// checksum of the current content; it also requires the chart to exist.
func (s *Service) PutChart(_ context.Context, path string, content []byte, ifMatch string) (*ChartDetail, bool, error) {
	if !chartfile.IsChartPath(path) {
		return nil, false, fmt.Errorf("%w: unsupported extension for %s", apperr.ErrInvalidChart, path)
	}
	existing, err := s.read(path)
	created := errors.Is(err, apperr.ErrNotFound)
	switch {
	case created && ifMatch != "":
		return nil, false, apperr.ErrNotFound
	case err != nil && !created:
		return nil, false, err
	case !created && !checksum.Match(existing, ifMatch):
		return nil, false, fmt.Errorf("checksum mismatch: %w", apperr.ErrConflict)
	}
	kind := "updated"
	if created {
		kind = "created"
	}
	d, err := s.write(path, content, kind)
	if err != nil {
		return nil, false, err
	}
	return d, created, nil
}

// DeleteChart removes a chart from storage and index.
func (s *Service) DeleteChart(_ context.Context, path string) error {
	if err := s.store.Delete(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return apperr.ErrNotFound
		}
		return err
	}
	if err := s.db.DeleteChart(path); err != nil {
		return err
	}
	s.notifyChart("deleted", path)
	return nil
}

// ListCharts returns paginated charts, optionally filtered by key mode.
func (s *Service) ListCharts(_ context.Context, limit, offset, keys int, sort string) ([]ChartListItem, int, error) {
	rows, total, err := s.db.ListCharts(limit, offset, keys, sort)
	if err != nil {
		return nil, 0, err
	}
	items := make([]ChartListItem, len(rows))
	for i, r := range rows {
		items[i] = ChartListItem{
			Path:      r.Path,
			Title:     r.Title,
			Artist:    r.Artist,
			Version:   r.Version,
			Keys:      r.Keys,
			Notes:     r.Notes,
			Holds:     r.Holds,
			Checksum:  r.Checksum,
			UpdatedAt: r.UpdatedAt,
		}
	}
	return items, total, nil
}

// Search delegates full-text search to the index.
func (s *Service) Search(_ context.Context, query string, limit int) ([]index.SearchResult, error) {
	return s.db.Search(query, limit)
}

// Layout returns the column layout of a key mode.
func (s *Service) Layout(keys int) []keymode.ColumnType {
	return s.layouts.Layout(keys)
}

// ExportMIDI writes the chart at path to w as a Standard MIDI File.
func (s *Service) ExportMIDI(_ context.Context, path string, w io.Writer) error {
	data, err := s.read(path)
	if err != nil {
		return err
	}
	c, err := chartfile.Decode(data)
	if err != nil {
		return err
	}
	return midiexport.Write(w, c)
}

// IndexFile decodes data and upserts it into the index.
// Exported so that callers outside the request path can reuse it.
func (s *Service) IndexFile(path string, data []byte) error {
	_, err := index.IndexFile(s.db, path, data)
	return err
}

// claim reserves path from the existence check until the write lands, so
// two creates of one path cannot both pass the check. It reports false when
// path is already claimed; the returned func gives the claim back.
func (s *Service) claim(path string) (func(), bool) {
	s.claimMu.Lock()
	defer s.claimMu.Unlock()
	if _, ok := s.claims[path]; ok {
		return nil, false
	}
	s.claims[path] = struct{}{}
	return func() {
		s.claimMu.Lock()
		delete(s.claims, path)
		s.claimMu.Unlock()
	}, true
}

func (s *Service) read(path string) ([]byte, error) {
	data, err := s.store.Read(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, apperr.ErrNotFound
		}
		return nil, err
	}
	return data, nil
}

// write validates content, stores it and indexes it.
func (s *Service) write(path string, content []byte, kind string) (*ChartDetail, error) {
	c, err := chartfile.Decode(content)
	if err != nil {
		return nil, err
	}
	if err := s.store.Write(path, content); err != nil {
		return nil, err
	}
	if _, err := index.IndexFile(s.db, path, content); err != nil {
		return nil, err
	}
	s.notifyChart(kind, path)
	return s.buildDetail(path, content, c), nil
}

func (s *Service) notifyChart(kind, path string) {
	if s.notifier != nil {
		s.notifier.PublishChartEvent(kind, path)
	}
}

// buildDetail constructs a ChartDetail from raw data without re-reading the file.
func (s *Service) buildDetail(path string, data []byte, c *chart.Chart) *ChartDetail {
	sum := chartfile.Summarize(c, path)
	return &ChartDetail{
		Path:      path,
		Title:     sum.Title,
		Artist:    sum.Artist,
		Version:   sum.Version,
		Keys:      sum.Keys,
		Notes:     sum.Notes,
		Holds:     sum.Holds,
		Checksum:  checksum.Sum(data),
		Layout:    s.layouts.Layout(c.Keys),
		Content:   string(data),
		Chart:     chartfile.FromChart(c),
		UpdatedAt: time.Now().UTC(),
	}
}
