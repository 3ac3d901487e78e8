package emit

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/japaniel/tab2kindle/pkg/db"
)

// Source is what the emitter reads entries from.
type Source interface {
	Len() int
	Iterate(ctx context.Context, fn func(e db.Entry) error) error
}

// Options configures an Emitter.
type Options struct {
	Dir         string
	Pager       Pager
	Title       string
	InLanguage  string
	OutLanguage string
	// CSS is embedded in a style element at the top of every page.
	CSS string
}

// Result lists the files an emission produced.
type Result struct {
	Pages    []string
	Manifest string
	Entries  int
}

// Emitter writes page files and the manifest.
type Emitter struct {
	opts  Options
	log   *slog.Logger
	now   func() time.Time
	newID func() string
}

// NewEmitter creates an emitter.
func NewEmitter(opts Options, log *slog.Logger) *Emitter {
	if opts.InLanguage == "" {
		opts.InLanguage = "en-us"
	}
	if opts.OutLanguage == "" {
		opts.OutLanguage = "en-us"
	}
	return &Emitter{
		opts:  opts,
		log:   log,
		now:   time.Now,
		newID: func() string { return "urn:uuid:" + uuid.NewString() },
	}
}

type pageFile struct {
	path string
	f    *os.File
	w    *bufio.Writer
}

func (p *pageFile) finish() error {
	if err := writePageFooter(p.w); err != nil {
		p.f.Close()
		return err
	}
	if err := p.w.Flush(); err != nil {
		p.f.Close()
		return err
	}
	return p.f.Close()
}

// Emit writes every entry of src in iteration order, then the manifest. If
// anything fails, every file written so far is removed.
func (em *Emitter) Emit(ctx context.Context, src Source) (res Result, err error) {
	pager := em.opts.Pager
	if err := os.MkdirAll(em.opts.Dir, 0o755); err != nil {
		return Result{}, fmt.Errorf("create output dir: %w", err)
	}

	var (
		written []string
		cur     *pageFile
		page    = -1
	)
	defer func() {
		if err == nil {
			return
		}
		if cur != nil {
			cur.f.Close()
		}
		for _, path := range written {
			if rmErr := os.Remove(path); rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) {
				em.log.Warn("failed to remove partial output", slog.String("path", path), slog.Any("error", rmErr))
			}
		}
		res = Result{}
	}()

	next := func() error {
		if cur != nil {
			f := cur
			cur = nil
			if err := f.finish(); err != nil {
				return fmt.Errorf("write %s: %w", f.path, err)
			}
		}
		page++
		path := filepath.Join(em.opts.Dir, pager.FileName(page))
		f, err := os.Create(path)
		if err != nil {
			return err
		}
		written = append(written, path)
		cur = &pageFile{path: path, f: f, w: bufio.NewWriterSize(f, 256<<10)}
		return writePageHeader(cur.w, em.opts.CSS)
	}

	err = src.Iterate(ctx, func(e db.Entry) error {
		for page < pager.PageOf(e.Seq) {
			if err := next(); err != nil {
				return err
			}
		}
		if err := writeEntry(cur.w, e); err != nil {
			return fmt.Errorf("write entry %q: %w", e.ID, err)
		}
		res.Entries++
		return nil
	})
	if err != nil {
		return Result{}, err
	}
	if cur == nil {
		if err = next(); err != nil {
			return Result{}, err
		}
	}
	last := cur
	cur = nil
	if err = last.finish(); err != nil {
		return Result{}, fmt.Errorf("write %s: %w", last.path, err)
	}
	res.Pages = append([]string(nil), written...)

	manifest := NewManifest(pager, page+1, em.newID(), em.now())
	if em.opts.Title != "" {
		manifest.Title = em.opts.Title
	}
	manifest.InLanguage = em.opts.InLanguage
	manifest.OutLanguage = em.opts.OutLanguage

	res.Manifest = filepath.Join(em.opts.Dir, pager.Name+".opf")
	f, err := os.Create(res.Manifest)
	if err != nil {
		return Result{}, err
	}
	written = append(written, res.Manifest)
	if err = manifest.Write(f); err != nil {
		f.Close()
		return Result{}, fmt.Errorf("write manifest: %w", err)
	}
	if err = f.Close(); err != nil {
		return Result{}, fmt.Errorf("write manifest: %w", err)
	}

	em.log.Info("emitted dictionary",
		slog.Int("entries", res.Entries),
		slog.Int("pages", len(res.Pages)),
		slog.String("manifest", res.Manifest),
	)
	return res, nil
}
