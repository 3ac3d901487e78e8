// Package compiler turns a tab-separated dictionary source into Kindle
// dictionary pages and an OPF manifest.
package compiler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/japaniel/tab2kindle/pkg/batch"
	"github.com/japaniel/tab2kindle/pkg/cleaner"
	"github.com/japaniel/tab2kindle/pkg/config"
	"github.com/japaniel/tab2kindle/pkg/db"
	"github.com/japaniel/tab2kindle/pkg/dictionary"
	"github.com/japaniel/tab2kindle/pkg/emit"
)

// Phase names in execution order.
const (
	PhaseValidate   = "validate"
	PhaseClean      = "clean"
	PhaseStage      = "stage"
	PhaseScan       = "scan"
	PhaseSynthesize = "synthesize"
	PhaseLinks      = "links"
	PhaseEmit       = "emit"
)

// PhaseTiming records how long a phase took.
type PhaseTiming struct {
	Phase    string
	Duration time.Duration
}

// Summary collects what every phase did.
type Summary struct {
	Cleaned   cleaner.Stats
	Aliases   dictionary.AliasStats
	Import    dictionary.ImportStats
	Synthesis dictionary.SynthesisStats
	Links     batch.RewriteStats
	Output    emit.Result
	Phases    []PhaseTiming
}

// Pipeline runs one compilation. It owns the staging store and the alias
// mapping for the duration of Run.
type Pipeline struct {
	cfg config.Config
	log *slog.Logger

	// OnProgress reports link resolution progress.
	OnProgress func(done, total int)
}

// NewPipeline creates a pipeline. cfg should already be validated.
func NewPipeline(cfg config.Config, log *slog.Logger) *Pipeline {
	return &Pipeline{cfg: cfg, log: log}
}

// ValidateSource checks the source path before anything is written.
func ValidateSource(path string) error {
	info, err := os.Stat(path)
	if errors.Is(err, os.ErrNotExist) {
		return &PhaseError{Phase: PhaseValidate, Path: path, Kind: ErrInput, Err: ErrSourceNotFound}
	}
	if err != nil {
		return &PhaseError{Phase: PhaseValidate, Path: path, Kind: ErrInput, Err: err}
	}
	if info.IsDir() {
		return &PhaseError{Phase: PhaseValidate, Path: path, Kind: ErrInput, Err: errors.New("source is a directory")}
	}
	if strings.Contains(filepath.Base(path), "@") {
		return &PhaseError{Phase: PhaseValidate, Path: path, Kind: ErrInput, Err: ErrSourceName}
	}
	return nil
}

// OutputName is the base name shared by the page files and the manifest.
func OutputName(sourcePath string) string {
	base := filepath.Base(sourcePath)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// Run compiles the dictionary at sourcePath. The staging database is removed
// on every path; on failure no output files are left behind.
func (p *Pipeline) Run(ctx context.Context, sourcePath string) (*Summary, error) {
	sum := &Summary{}
	started := time.Now()

	var css string
	err := p.phase(ctx, sum, PhaseValidate, func() error {
		if err := ValidateSource(sourcePath); err != nil {
			return err
		}
		if path := p.cfg.Output.CSSPath; path != "" {
			b, err := os.ReadFile(path)
			if err != nil {
				return &PhaseError{Phase: PhaseValidate, Path: path, Kind: ErrInput, Err: err}
			}
			css = string(b)
		}
		return nil
	})
	if err != nil {
		return sum, err
	}

	if p.cfg.Build.Clean {
		err := p.phase(ctx, sum, PhaseClean, func() error {
			stats, err := cleaner.CleanFile(ctx, sourcePath, p.log)
			sum.Cleaned = stats
			return p.wrap(ctx, PhaseClean, sourcePath, ErrInput, err)
		})
		if err != nil {
			return sum, err
		}
	}

	var staging *db.Staging
	err = p.phase(ctx, sum, PhaseStage, func() error {
		var err error
		staging, err = db.OpenStaging(ctx, p.cfg.Staging.Dir)
		return p.wrap(ctx, PhaseStage, p.cfg.Staging.Dir, ErrStorage, err)
	})
	if err != nil {
		return sum, err
	}
	defer func() {
		if err := staging.Close(); err != nil {
			p.log.Warn("failed to remove staging database", slog.String("path", staging.Path()), slog.Any("error", err))
		}
	}()

	store := dictionary.NewEntryStore(staging.DB)
	aliases := dictionary.NewAliasMapping()

	err = p.phase(ctx, sum, PhaseScan, func() error {
		src, err := dictionary.OpenSource(sourcePath)
		if err != nil {
			return p.wrap(ctx, PhaseScan, sourcePath, ErrInput, err)
		}
		defer src.Close()

		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			stats, err := dictionary.ReadAliases(gctx, src.Reader(), aliases, p.log)
			sum.Aliases = stats
			return p.wrap(gctx, PhaseScan, sourcePath, ErrInput, err)
		})
		g.Go(func() error {
			stats, err := dictionary.NewImporter(store, p.log).Import(gctx, src.Reader())
			sum.Import = stats
			return p.wrap(gctx, PhaseScan, staging.Path(), ErrStorage, err)
		})
		if err := g.Wait(); err != nil {
			return err
		}
		aliases.Freeze()
		return nil
	})
	if err != nil {
		return sum, err
	}

	err = p.phase(ctx, sum, PhaseSynthesize, func() error {
		sy := dictionary.NewSynthesizer(store, aliases, p.log)
		sy.StrictComponents = p.cfg.Build.StrictPhraseComponents
		stats, err := sy.Run(ctx)
		sum.Synthesis = stats
		return p.wrap(ctx, PhaseSynthesize, staging.Path(), ErrStorage, err)
	})
	if err != nil {
		return sum, err
	}

	layout, err := emit.ParseLayout(p.cfg.Output.Layout)
	if err != nil {
		return sum, &PhaseError{Phase: PhaseLinks, Kind: ErrInput, Err: err}
	}
	pager, err := emit.NewPager(OutputName(sourcePath), layout, p.cfg.Output.PageSize)
	if err != nil {
		return sum, &PhaseError{Phase: PhaseLinks, Kind: ErrInput, Err: err}
	}

	err = p.phase(ctx, sum, PhaseLinks, func() error {
		rw := batch.NewRewriter(store, dictionary.NewLinkResolver(store, aliases, pager, p.log), p.log)
		rw.Workers = p.cfg.Build.Workers
		rw.BatchSize = p.cfg.Build.BatchSize
		rw.FlushInterval = p.cfg.Build.FlushInterval
		rw.OnProgress = p.OnProgress
		stats, err := rw.Run(ctx)
		sum.Links = stats
		return p.wrap(ctx, PhaseLinks, staging.Path(), ErrStorage, err)
	})
	if err != nil {
		return sum, err
	}

	outDir := p.cfg.Output.Dir
	if outDir == "" {
		outDir = filepath.Dir(sourcePath)
	}
	err = p.phase(ctx, sum, PhaseEmit, func() error {
		em := emit.NewEmitter(emit.Options{
			Dir:         outDir,
			Pager:       pager,
			Title:       p.cfg.Output.Title,
			InLanguage:  p.cfg.Output.InLanguage,
			OutLanguage: p.cfg.Output.OutLanguage,
			CSS:         css,
		}, p.log)
		res, err := em.Emit(ctx, store)
		sum.Output = res
		return p.wrap(ctx, PhaseEmit, outDir, ErrOutput, err)
	})
	if err != nil {
		return sum, err
	}

	p.log.Info("compilation finished",
		slog.Int("entries", store.Len()),
		slog.Int("pages", len(sum.Output.Pages)),
		slog.String("manifest", sum.Output.Manifest),
		slog.Duration("duration", time.Since(started)),
	)
	return sum, nil
}

// phase runs fn and records its timing. Cancellation is checked first.
func (p *Pipeline) phase(ctx context.Context, sum *Summary, name string, fn func() error) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	start := time.Now()
	p.log.Debug("starting phase", slog.String("phase", name))
	err := fn()
	d := time.Since(start)
	sum.Phases = append(sum.Phases, PhaseTiming{Phase: name, Duration: d})
	if err != nil {
		p.log.Error("phase failed",
			slog.String("phase", name),
			slog.String("error", err.Error()),
			slog.Duration("duration", d),
		)
		return err
	}
	p.log.Info("phase completed", slog.String("phase", name), slog.Duration("duration", d))
	return nil
}

// wrap categorizes err. Cancellation and errors that already carry a phase
// pass through unchanged.
func (p *Pipeline) wrap(ctx context.Context, phase, path string, kind, err error) error {
	if err == nil {
		return nil
	}
	var pe *PhaseError
	if errors.As(err, &pe) {
		return err
	}
	if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(err, ctxErr) {
		return fmt.Errorf("%s: %w", phase, err)
	}
	return &PhaseError{Phase: phase, Path: path, Kind: kind, Err: err}
}
