package index

import (
	"log/slog"
	"time"

	"github.com/starford/keyshift/internal/chart"
	"github.com/starford/keyshift/internal/chartfile"
	"github.com/starford/keyshift/internal/checksum"
	"github.com/starford/keyshift/internal/storage"
)

// Sync walks the library and brings the index up to date:
//   - new/changed charts are decoded and upserted
//   - charts removed from disk are deleted from the index
//
// Documents that fail to decode are logged and left out of the index.
func Sync(db *DB, store storage.Provider, logger *slog.Logger) error {
	metas, err := store.List("")
	if err != nil {
		return err
	}

	checksums, err := db.AllChecksums()
	if err != nil {
		return err
	}

	disk := make(map[string]struct{}, len(metas))
	for _, m := range metas {
		disk[m.Path] = struct{}{}

		if checksums[m.Path] == m.Checksum {
			continue
		}

		data, err := store.Read(m.Path)
		if err != nil {
			logger.Warn("sync: read failed", slog.String("path", m.Path), slog.String("error", err.Error()))
			continue
		}
		if _, err := IndexFile(db, m.Path, data); err != nil {
			logger.Warn("sync: index failed", slog.String("path", m.Path), slog.String("error", err.Error()))
		} else {
			logger.Debug("sync: indexed", slog.String("path", m.Path))
		}
	}

	// Remove stale entries.
	for p := range checksums {
		if _, ok := disk[p]; !ok {
			if err := db.DeleteChart(p); err != nil {
				logger.Warn("sync: delete failed", slog.String("path", p), slog.String("error", err.Error()))
			} else {
				logger.Debug("sync: removed stale", slog.String("path", p))
			}
		}
	}

	return nil
}

// IndexFile decodes data and upserts its summary into the index.
func IndexFile(db *DB, path string, data []byte) (*chart.Chart, error) {
	c, err := chartfile.Decode(data)
	if err != nil {
		return nil, err
	}
	s := chartfile.Summarize(c, path)
	err = db.UpsertChart(ChartRow{
		Path:      path,
		Title:     s.Title,
		Artist:    s.Artist,
		Version:   s.Version,
		Keys:      s.Keys,
		Notes:     s.Notes,
		Holds:     s.Holds,
		Checksum:  checksum.Sum(data),
		UpdatedAt: time.Now().UTC(),
	})
	if err != nil {
		return nil, err
	}
	return c, nil
}
