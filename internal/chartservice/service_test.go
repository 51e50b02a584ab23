package chartservice

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/starford/keyshift/internal/apperr"
	"github.com/starford/keyshift/internal/checksum"
	"github.com/starford/keyshift/internal/index"
	"github.com/starford/keyshift/internal/testutil"
)

type recorder struct {
	mu          sync.Mutex
	charts      []string
	conversions []string
}

func (r *recorder) PublishChartEvent(kind, path string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.charts = append(r.charts, kind+":"+path)
}

func (r *recorder) PublishConversion(_, kind, source, target string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.conversions = append(r.conversions, kind+":"+source+"->"+target)
}

func newTestService(t *testing.T) (*Service, *index.DB, *recorder, string) {
	t.Helper()
	dir, store := testutil.TestLibrary(t)
	db := testutil.TestDB(t)
	rec := &recorder{}
	return NewService(store, db, WithNotifier(rec), WithWorkers(2)), db, rec, dir
}

func seedSample(t *testing.T, svc *Service, path string) {
	t.Helper()
	if _, err := svc.CreateChart(context.Background(), path, []byte(testutil.SampleChart)); err != nil {
		t.Fatalf("CreateChart: %v", err)
	}
}

func TestCreateAndGetChart(t *testing.T) {
	svc, _, rec, _ := newTestService(t)
	ctx := context.Background()
	seedSample(t, svc, "pack/sample.yaml")

	d, err := svc.GetChart(ctx, "pack/sample.yaml")
	if err != nil {
		t.Fatalf("GetChart: %v", err)
	}
	if d.Title != "Sample" || d.Keys != 4 || d.Notes != 9 || d.Holds != 1 {
		t.Errorf("detail = %+v", d)
	}
	if len(d.Layout) != 4 {
		t.Errorf("layout = %v", d.Layout)
	}
	if d.Checksum != checksum.Sum([]byte(testutil.SampleChart)) {
		t.Error("checksum does not match content")
	}
	if len(rec.charts) != 1 || rec.charts[0] != "created:pack/sample.yaml" {
		t.Errorf("events = %v", rec.charts)
	}

	if _, err := svc.CreateChart(ctx, "pack/sample.yaml", []byte(testutil.SampleChart)); !errors.Is(err, apperr.ErrAlreadyExists) {
		t.Errorf("duplicate create err = %v", err)
	}
	if _, err := svc.GetChart(ctx, "missing.yaml"); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("missing err = %v", err)
	}
	if _, err := svc.CreateChart(ctx, "notes.txt", []byte(testutil.SampleChart)); !errors.Is(err, apperr.ErrInvalidChart) {
		t.Errorf("bad extension err = %v", err)
	}
}

func TestPutChart(t *testing.T) {
	svc, db, _, _ := newTestService(t)
	ctx := context.Background()

	if _, _, err := svc.PutChart(ctx, "p.yaml", []byte(testutil.SampleChart), "deadbeef"); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("If-Match on missing chart: err = %v", err)
	}

	d, created, err := svc.PutChart(ctx, "p.yaml", []byte(testutil.SampleChart), "")
	if err != nil || !created {
		t.Fatalf("PutChart create: created=%v err=%v", created, err)
	}

	updated := []byte("title: Updated\nkeys: 7\nnotes: [{time: 0, column: 6}]\n")
	if _, _, err := svc.PutChart(ctx, "p.yaml", updated, "stale"); !errors.Is(err, apperr.ErrConflict) {
		t.Errorf("stale checksum err = %v", err)
	}
	d2, created, err := svc.PutChart(ctx, "p.yaml", updated, d.Checksum)
	if err != nil || created {
		t.Fatalf("PutChart update: created=%v err=%v", created, err)
	}
	if d2.Keys != 7 || d2.Title != "Updated" {
		t.Errorf("updated detail = %+v", d2)
	}
	row, err := db.GetChart("p.yaml")
	if err != nil || row.Keys != 7 {
		t.Errorf("index row = %+v, %v", row, err)
	}

	if _, _, err := svc.PutChart(ctx, "p.yaml", []byte("keys: 0\n"), ""); !errors.Is(err, apperr.ErrInvalidChart) {
		t.Errorf("invalid content err = %v", err)
	}
	got, _ := svc.GetChart(ctx, "p.yaml")
	if got.Title != "Updated" {
		t.Error("invalid content overwrote the chart")
	}
}

func TestDeleteChart(t *testing.T) {
	svc, db, rec, _ := newTestService(t)
	ctx := context.Background()
	seedSample(t, svc, "d.yaml")

	if err := svc.DeleteChart(ctx, "d.yaml"); err != nil {
		t.Fatalf("DeleteChart: %v", err)
	}
	if cs, _ := db.GetChecksum("d.yaml"); cs != "" {
		t.Error("chart still indexed")
	}
	if err := svc.DeleteChart(ctx, "d.yaml"); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("second delete err = %v", err)
	}
	if rec.charts[len(rec.charts)-1] != "deleted:d.yaml" {
		t.Errorf("events = %v", rec.charts)
	}
}

func TestListAndSearch(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	ctx := context.Background()
	seedSample(t, svc, "a.yaml")
	if _, err := svc.CreateChart(ctx, "b.yaml", []byte("title: Other Song\nkeys: 7\nnotes: []\n")); err != nil {
		t.Fatal(err)
	}

	items, total, err := svc.ListCharts(ctx, 10, 0, 7, "")
	if err != nil {
		t.Fatalf("ListCharts: %v", err)
	}
	if total != 1 || len(items) != 1 || items[0].Path != "b.yaml" {
		t.Errorf("7K charts = %+v", items)
	}

	results, err := svc.Search(ctx, "other", 10)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 1 || results[0].Path != "b.yaml" {
		t.Errorf("search = %+v", results)
	}
}

func TestConvert_Keys(t *testing.T) {
	svc, db, rec, _ := newTestService(t)
	ctx := context.Background()
	seedSample(t, svc, "pack/song.yaml")

	req := Request{Kind: KindKeys, Source: "pack/song.yaml", Options: json.RawMessage(`{"target_keys": 7}`)}
	res, err := svc.Convert(ctx, req)
	if err != nil {
		t.Fatalf("Convert: %v", err)
	}
	if res.Target != "pack/song.keyshift-7k.yaml" {
		t.Errorf("target = %q", res.Target)
	}
	if res.Chart.Keys != 7 || res.Chart.Version != "4K Normal [7K]" {
		t.Errorf("chart = %+v", res.Chart)
	}
	// 9 notes in 4 columns: 9 xor 4.
	if res.Seed != 13 {
		t.Errorf("seed = %d, want 13", res.Seed)
	}
	if cs, _ := db.GetChecksum(res.Target); cs != res.Chart.Checksum {
		t.Errorf("index checksum = %q, want %q", cs, res.Chart.Checksum)
	}

	hist, err := svc.Conversions(ctx, "pack/song.yaml", 10)
	if err != nil {
		t.Fatalf("Conversions: %v", err)
	}
	if len(hist) != 1 || hist[0].ID != res.ID || hist[0].Seed != 13 {
		t.Errorf("history = %+v", hist)
	}
	if len(rec.conversions) != 1 || rec.conversions[0] != "keys:pack/song.yaml->pack/song.keyshift-7k.yaml" {
		t.Errorf("conversion events = %v", rec.conversions)
	}

	if _, err := svc.Convert(ctx, req); !errors.Is(err, apperr.ErrAlreadyExists) {
		t.Errorf("existing target err = %v", err)
	}

	req.Overwrite = true
	again, err := svc.Convert(ctx, req)
	if err != nil {
		t.Fatalf("Convert overwrite: %v", err)
	}
	if again.Chart.Checksum != res.Chart.Checksum {
		t.Error("same seed produced a different chart")
	}
}

func TestConvert_ReplayFromHistory(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	ctx := context.Background()
	seedSample(t, svc, "song.yaml")

	first, err := svc.Convert(ctx, Request{Kind: KindLongNote, Source: "song.yaml"})
	if err != nil {
		t.Fatalf("Convert: %v", err)
	}
	replay, err := svc.Convert(ctx, Request{
		Kind:    KindLongNote,
		Source:  "song.yaml",
		Target:  "replay.yaml",
		Options: first.Options,
	})
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if replay.Seed != first.Seed || replay.Chart.Checksum != first.Chart.Checksum {
		t.Errorf("replay differs: seed %d vs %d", replay.Seed, first.Seed)
	}
}

func TestConvert_DoublePlay(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	seedSample(t, svc, "song.yaml")

	res, err := svc.Convert(context.Background(), Request{
		Kind:    KindDoublePlay,
		Source:  "song.yaml",
		Options: json.RawMessage(`{"right_mirror": true, "seed": 7}`),
	})
	if err != nil {
		t.Fatalf("Convert: %v", err)
	}
	if res.Chart.Keys != 8 || res.Chart.Notes != 18 || res.Seed != 7 {
		t.Errorf("result = %+v", res.Chart)
	}
}

func TestConvert_Errors(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	ctx := context.Background()
	seedSample(t, svc, "song.yaml")

	cases := map[string]struct {
		req  Request
		want error
	}{
		"unknown kind":    {Request{Kind: "mirror", Source: "song.yaml"}, apperr.ErrInvalidOptions},
		"no source":       {Request{Kind: KindKeys}, apperr.ErrInvalidOptions},
		"missing source":  {Request{Kind: KindKeys, Source: "nope.yaml", Options: json.RawMessage(`{"target_keys":7}`)}, apperr.ErrNotFound},
		"no target keys":  {Request{Kind: KindKeys, Source: "song.yaml"}, apperr.ErrInvalidOptions},
		"unknown option":  {Request{Kind: KindKeys, Source: "song.yaml", Options: json.RawMessage(`{"target_keys":7,"speed":2}`)}, apperr.ErrInvalidOptions},
		"bad range":       {Request{Kind: KindLongNote, Source: "song.yaml", Options: json.RawMessage(`{"long_percentage":150}`)}, apperr.ErrInvalidOptions},
		"bad target ext":  {Request{Kind: KindKeys, Source: "song.yaml", Target: "out.txt", Options: json.RawMessage(`{"target_keys":7}`)}, apperr.ErrInvalidOptions},
		"density min>max": {Request{Kind: KindDoublePlay, Source: "song.yaml", Options: json.RawMessage(`{"left_density":{"max":1,"min":3}}`)}, apperr.ErrInvalidOptions},
	}
	for name, tc := range cases {
		if _, err := svc.Convert(ctx, tc.req); !errors.Is(err, tc.want) {
			t.Errorf("%s: err = %v, want %v", name, err, tc.want)
		}
	}
}

func TestConvertBatch(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	ctx := context.Background()
	seedSample(t, svc, "a.yaml")
	seedSample(t, svc, "b.yaml")

	reqs := []Request{
		{Kind: KindKeys, Source: "a.yaml", Options: json.RawMessage(`{"target_keys":6}`)},
		{Kind: KindKeys, Source: "missing.yaml", Options: json.RawMessage(`{"target_keys":6}`)},
		{Kind: KindLongNote, Source: "b.yaml"},
	}
	items, err := svc.ConvertBatch(ctx, reqs, 0)
	if err == nil || !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("batch err = %v, want joined ErrNotFound", err)
	}
	if len(items) != 3 {
		t.Fatalf("items = %d", len(items))
	}
	if items[0].Result == nil || items[0].Result.Target != "a.keyshift-6k.yaml" {
		t.Errorf("item 0 = %+v", items[0])
	}
	if items[1].Result != nil || items[1].Error == "" {
		t.Errorf("item 1 = %+v", items[1])
	}
	if items[2].Result == nil || items[2].Request.Source != "b.yaml" {
		t.Errorf("item 2 = %+v", items[2])
	}

	hist, _ := svc.Conversions(ctx, "", 10)
	if len(hist) != 2 {
		t.Errorf("history = %d entries, want 2", len(hist))
	}
}

func TestConvertBatch_SameTargetOnce(t *testing.T) {
	for i := 0; i < 20; i++ {
		svc, _, _, _ := newTestService(t)
		ctx := context.Background()
		seedSample(t, svc, "pack/sample.yaml")

		req := Request{Kind: KindKeys, Source: "pack/sample.yaml", Options: json.RawMessage(`{"target_keys":7}`)}
		items, err := svc.ConvertBatch(ctx, []Request{req, req}, 2)
		if !errors.Is(err, apperr.ErrAlreadyExists) {
			t.Fatalf("batch err = %v, want ErrAlreadyExists", err)
		}

		ok := 0
		for _, it := range items {
			if it.Result != nil {
				ok++
			}
		}
		if ok != 1 {
			t.Fatalf("run %d: %d conversions succeeded, want 1", i, ok)
		}
		hist, _ := svc.Conversions(ctx, "pack/sample.yaml", 10)
		if len(hist) != 1 {
			t.Fatalf("run %d: history = %d entries, want 1", i, len(hist))
		}
	}
}

func TestClaim(t *testing.T) {
	svc, _, _, _ := newTestService(t)

	release, ok := svc.claim("a.yaml")
	if !ok {
		t.Fatal("first claim refused")
	}
	if _, ok := svc.claim("a.yaml"); ok {
		t.Fatal("second claim of a held path granted")
	}
	if _, err := svc.CreateChart(context.Background(), "a.yaml", []byte(testutil.SampleChart)); !errors.Is(err, apperr.ErrAlreadyExists) {
		t.Errorf("CreateChart on claimed path: err = %v, want ErrAlreadyExists", err)
	}
	release()
	if _, err := svc.CreateChart(context.Background(), "a.yaml", []byte(testutil.SampleChart)); err != nil {
		t.Errorf("CreateChart after release: %v", err)
	}
}

func TestExportMIDI(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	seedSample(t, svc, "song.yaml")

	var buf bytes.Buffer
	if err := svc.ExportMIDI(context.Background(), "song.yaml", &buf); err != nil {
		t.Fatalf("ExportMIDI: %v", err)
	}
	if !bytes.HasPrefix(buf.Bytes(), []byte("MThd")) {
		t.Errorf("output is not a MIDI file: % x", buf.Bytes()[:min(8, buf.Len())])
	}
	if err := svc.ExportMIDI(context.Background(), "missing.yaml", &buf); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("missing err = %v", err)
	}
}

func TestTargetPath(t *testing.T) {
	svc := NewService(nil, nil, WithOutputSuffix("_conv"))
	if got := svc.TargetPath("x/y.yml", "ln"); got != "x/y_conv-ln.yml" {
		t.Errorf("TargetPath = %q", got)
	}
}
