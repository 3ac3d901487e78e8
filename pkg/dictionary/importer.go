package dictionary

import (
	"context"
	"io"
	"log/slog"
)

// Importer runs the extraction pass: every entry line of a source becomes an
// entry in the store. Link directives are left to ReadAliases.
type Importer struct {
	store *EntryStore
	log   *slog.Logger
}

// NewImporter creates an importer writing into store.
func NewImporter(store *EntryStore, log *slog.Logger) *Importer {
	return &Importer{store: store, log: log}
}

// ImportStats summarizes an extraction pass.
type ImportStats struct {
	Lines      int
	Entries    int
	Directives int
	Malformed  int
	// Renamed counts entries whose extracted id was taken and got a suffix.
	Renamed int
}

// Import reads r and stores its entries in one transaction. On error nothing
// is stored.
func (im *Importer) Import(ctx context.Context, r io.Reader) (ImportStats, error) {
	var stats ImportStats
	err := im.store.Bulk(ctx, func(b *Batch) error {
		stats = ImportStats{}
		return scanLines(r, func(lineNo int, raw string) error {
			if lineNo%10_000 == 0 {
				if err := ctx.Err(); err != nil {
					return err
				}
			}
			line, blank, err := ParseLine(raw)
			if blank {
				return nil
			}
			stats.Lines++
			if err != nil {
				stats.Malformed++
				im.log.Warn("skipping malformed line", slog.Int("line", lineNo), slog.Any("error", err))
				return nil
			}
			if line.Directive {
				stats.Directives++
				return nil
			}
			ref, err := b.Insert(line.Headword, line.Explanation)
			if err != nil {
				return err
			}
			stats.Entries++
			if ref.ID != ExtractID(line.Headword, line.Explanation) {
				stats.Renamed++
				im.log.Debug("id collision", slog.String("headword", ref.Headword), slog.String("id", ref.ID))
			}
			return nil
		})
	})
	if err != nil {
		return stats, err
	}
	im.log.Info("extraction pass finished",
		slog.Int("lines", stats.Lines),
		slog.Int("entries", stats.Entries),
		slog.Int("directives", stats.Directives),
		slog.Int("malformed", stats.Malformed),
		slog.Int("renamed", stats.Renamed),
	)
	return stats, nil
}
