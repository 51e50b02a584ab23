package chartservice

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/starford/keyshift/internal/apperr"
	"github.com/starford/keyshift/internal/chart"
	"github.com/starford/keyshift/internal/chartfile"
	"github.com/starford/keyshift/internal/convutil"
	"github.com/starford/keyshift/internal/doubleplay"
	"github.com/starford/keyshift/internal/index"
	"github.com/starford/keyshift/internal/keycount"
	"github.com/starford/keyshift/internal/longnote"
)

// Kind names a converter.
type Kind string

const (
	KindKeys       Kind = "keys"
	KindDoublePlay Kind = "doubleplay"
	KindLongNote   Kind = "longnote"
)

// Kinds lists every converter in display order.
var Kinds = []Kind{KindKeys, KindDoublePlay, KindLongNote}

// Request describes one conversion. Options is the JSON form of the
// converter's options; omitted fields keep their defaults. An empty Target
// is derived from Source.
type Request struct {
	Kind      Kind            `json:"kind"`
	Source    string          `json:"source"`
	Target    string          `json:"target,omitempty"`
	Options   json.RawMessage `json:"options,omitempty"`
	Overwrite bool            `json:"overwrite,omitempty"`
}

// Validate checks the request envelope. Options are checked by Convert.
func (r *Request) Validate() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.Kind, validation.Required, validation.In(KindKeys, KindDoublePlay, KindLongNote)),
		validation.Field(&r.Source, validation.Required),
	)
}

// Conversion is one entry of the conversion history.
type Conversion struct {
	ID        string          `json:"id"`
	Kind      Kind            `json:"kind"`
	Source    string          `json:"source"`
	Target    string          `json:"target"`
	Seed      int64           `json:"seed"`
	Options   json.RawMessage `json:"options"`
	CreatedAt time.Time       `json:"created_at"`
}

// Result is the outcome of a conversion.
type Result struct {
	Conversion
	Chart *ChartDetail `json:"chart"`
}

// BatchItem pairs a batch request with its outcome.
type BatchItem struct {
	Request Request `json:"request"`
	Result  *Result `json:"result,omitempty"`
	Error   string  `json:"error,omitempty"`
}

// plan is a resolved conversion: options with defaults and seed applied.
type plan struct {
	tag   string
	label string
	seed  int64
	opts  any
	run   func(*chart.Chart) error
}

// Convert runs one conversion: the source chart is converted, written to
// the target, indexed and recorded in the history. The seed used is always
// recorded, so any entry can be replayed.
func (s *Service) Convert(ctx context.Context, req Request) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", apperr.ErrInvalidOptions, err)
	}

	data, err := s.read(req.Source)
	if err != nil {
		return nil, err
	}
	src, err := chartfile.Decode(data)
	if err != nil {
		return nil, err
	}
	p, err := planFor(req.Kind, req.Options, src)
	if err != nil {
		return nil, err
	}

	target := req.Target
	if target == "" {
		target = s.TargetPath(req.Source, p.tag)
	}
	if !chartfile.IsChartPath(target) {
		return nil, fmt.Errorf("%w: unsupported target extension for %s", apperr.ErrInvalidOptions, target)
	}
	release, ok := s.claim(target)
	if !ok {
		if !req.Overwrite {
			return nil, fmt.Errorf("%s: %w", target, apperr.ErrAlreadyExists)
		}
		return nil, fmt.Errorf("%s: conversion in progress: %w", target, apperr.ErrConflict)
	}
	defer release()

	kind := "created"
	if _, err := s.store.Read(target); err == nil {
		if !req.Overwrite {
			return nil, fmt.Errorf("%s: %w", target, apperr.ErrAlreadyExists)
		}
		kind = "updated"
	}

	out := src.Clone()
	if err := p.run(out); err != nil {
		return nil, fmt.Errorf("chartservice: convert %s: %w", req.Source, err)
	}
	out.Version = strings.TrimSpace(out.Version + " [" + p.label + "]")

	content, err := chartfile.Encode(out)
	if err != nil {
		return nil, err
	}
	if err := s.store.Write(target, content); err != nil {
		return nil, err
	}
	if _, err := index.IndexFile(s.db, target, content); err != nil {
		return nil, err
	}

	optsJSON, err := json.Marshal(p.opts)
	if err != nil {
		return nil, fmt.Errorf("chartservice: encode options: %w", err)
	}
	conv := Conversion{
		ID:        uuid.NewString(),
		Kind:      req.Kind,
		Source:    req.Source,
		Target:    target,
		Seed:      p.seed,
		Options:   optsJSON,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.db.RecordConversion(index.ConversionRow{
		ID:        conv.ID,
		Kind:      string(conv.Kind),
		Source:    conv.Source,
		Target:    conv.Target,
		Seed:      conv.Seed,
		Options:   string(optsJSON),
		CreatedAt: conv.CreatedAt,
	}); err != nil {
		return nil, err
	}

	s.notifyChart(kind, target)
	if s.notifier != nil {
		s.notifier.PublishConversion(conv.ID, string(conv.Kind), conv.Source, conv.Target)
	}
	return &Result{Conversion: conv, Chart: s.buildDetail(target, content, out)}, nil
}

// ConvertBatch runs reqs with at most workers conversions in flight
// (workers <= 0 uses the service default). Items keep request order; the
// returned error joins every failure.
func (s *Service) ConvertBatch(ctx context.Context, reqs []Request, workers int) ([]BatchItem, error) {
	if workers <= 0 {
		workers = s.workers
	}
	items := make([]BatchItem, len(reqs))
	errs := make([]error, len(reqs))

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, req := range reqs {
		items[i].Request = req
		g.Go(func() error {
			res, err := s.Convert(gCtx, req)
			if err != nil {
				errs[i] = fmt.Errorf("%s: %w", req.Source, err)
				items[i].Error = err.Error()
				return nil
			}
			items[i].Result = res
			return nil
		})
	}
	_ = g.Wait()
	return items, errors.Join(errs...)
}

// Conversions returns the newest history entries, optionally for one source.
func (s *Service) Conversions(_ context.Context, source string, limit int) ([]Conversion, error) {
	rows, err := s.db.ListConversions(source, limit)
	if err != nil {
		return nil, err
	}
	out := make([]Conversion, len(rows))
	for i, r := range rows {
		out[i] = Conversion{
			ID:        r.ID,
			Kind:      Kind(r.Kind),
			Source:    r.Source,
			Target:    r.Target,
			Seed:      r.Seed,
			Options:   json.RawMessage(r.Options),
			CreatedAt: r.CreatedAt,
		}
	}
	return out, nil
}

// TargetPath derives the output path of a conversion:
// "pack/song.yaml" with tag "7k" becomes "pack/song<suffix>-7k.yaml".
func (s *Service) TargetPath(source, tag string) string {
	ext := path.Ext(source)
	return strings.TrimSuffix(source, ext) + s.suffix + "-" + tag + ext
}

func planFor(kind Kind, raw json.RawMessage, c *chart.Chart) (*plan, error) {
	resolve := func(seed **int64) int64 {
		if *seed == nil {
			v := convutil.ResolveSeed(nil, len(c.Notes), c.Keys)
			*seed = &v
		}
		return **seed
	}

	switch kind {
	case KindKeys:
		opts := keycount.DefaultOptions(0)
		opts.MaxKeys = 0
		if err := decodeOptions(raw, &opts); err != nil {
			return nil, err
		}
		if opts.MaxKeys == 0 {
			opts.MaxKeys = opts.TargetKeys
		}
		if err := opts.Validate(); err != nil {
			return nil, fmt.Errorf("%w: %v", apperr.ErrInvalidOptions, err)
		}
		seed := resolve(&opts.Seed)
		return &plan{
			tag:   fmt.Sprintf("%dk", opts.TargetKeys),
			label: fmt.Sprintf("%dK", opts.TargetKeys),
			seed:  seed,
			opts:  opts,
			run:   func(c *chart.Chart) error { return keycount.Convert(c, opts) },
		}, nil

	case KindDoublePlay:
		var opts doubleplay.Options
		if err := decodeOptions(raw, &opts); err != nil {
			return nil, err
		}
		if err := opts.Validate(); err != nil {
			return nil, fmt.Errorf("%w: %v", apperr.ErrInvalidOptions, err)
		}
		seed := resolve(&opts.Seed)
		return &plan{
			tag:   "dp",
			label: "DP",
			seed:  seed,
			opts:  opts,
			run:   func(c *chart.Chart) error { return doubleplay.Convert(c, opts) },
		}, nil

	case KindLongNote:
		opts := longnote.DefaultOptions()
		if err := decodeOptions(raw, &opts); err != nil {
			return nil, err
		}
		if err := opts.Validate(); err != nil {
			return nil, fmt.Errorf("%w: %v", apperr.ErrInvalidOptions, err)
		}
		seed := resolve(&opts.Seed)
		return &plan{
			tag:   "ln",
			label: "LN",
			seed:  seed,
			opts:  opts,
			run:   func(c *chart.Chart) error { return longnote.Convert(c, opts) },
		}, nil
	}
	return nil, fmt.Errorf("%w: unknown kind %q", apperr.ErrInvalidOptions, kind)
}

// decodeOptions overlays raw onto dst. Unknown fields are rejected.
func decodeOptions(raw json.RawMessage, dst any) error {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("%w: %v", apperr.ErrInvalidOptions, err)
	}
	return nil
}
