// Package cleaner strips markup that e-readers cannot use from a dictionary
// source and splits multi-sense lines, rewriting the source in place.
package cleaner

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

var (
	// images, pronunciation anchors and scripts
	reMedia = regexp.MustCompile(`<img.*?>|<a href="sound://.*?"> ?</a>|<script.*?></script>`)
	// "See full entry" cross references point at pages that do not exist
	reFullEntry = regexp.MustCompile(`<span class="xref_to_full_entry">See <a class="Ref" href="bword://.+?" title=" definition in  ">full entry</a></span>`)
	// site-relative definition links cannot be followed
	reDefinitionLink = regexp.MustCompile(`<a href="/definition/.+?">`)
)

var boilerplate = strings.NewReplacer(
	"something/somebody", "sth./sb.",
	"somebody/something", "sb./sth.",
	"<O10></O10>", "",
	`<a class="responsive_display_inline_on_smartphone link-right" href="#relatedentries">jump to other results</a>`, "",
)

const (
	senseID     = `id="entryContent"`
	senseMarker = `<div id="entryContent" class="`
)

// maxLineSize bounds a single source line.
const maxLineSize = 64 << 20

// Clean returns line without unusable markup. A line holding several sense
// blocks comes back as one line per sense, separated by newlines, each
// repeating the headword and the markup before the first block.
func Clean(line string) string {
	out := reMedia.ReplaceAllString(line, "")
	out = boilerplate.Replace(out)
	out = reFullEntry.ReplaceAllString(out, "")
	out = reDefinitionLink.ReplaceAllString(out, "<a>")
	return splitSenses(out)
}

func splitSenses(line string) string {
	if strings.Count(line, senseID) < 2 {
		return line
	}
	headword, body, ok := strings.Cut(line, "\t")
	if !ok {
		return line
	}
	var starts []int
	for off := 0; ; {
		i := strings.Index(body[off:], senseMarker)
		if i == -1 {
			break
		}
		starts = append(starts, off+i)
		off += i + len(senseMarker)
	}
	if len(starts) < 2 {
		return line
	}
	shared := body[:starts[0]]
	var b strings.Builder
	for i, start := range starts {
		end := len(body)
		if i+1 < len(starts) {
			end = starts[i+1]
		}
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(headword)
		b.WriteByte('\t')
		b.WriteString(shared)
		b.WriteString(body[start:end])
	}
	return b.String()
}

// Stats summarizes a cleaning pass.
type Stats struct {
	Lines   int
	Changed int
	// Added counts lines produced by splitting senses.
	Added int
}

// CleanFile cleans the file at path in place. The cleaned copy is written
// next to it and renamed over the original, so a failure leaves the
// original untouched.
func CleanFile(ctx context.Context, path string, log *slog.Logger) (Stats, error) {
	var stats Stats
	info, err := os.Stat(path)
	if err != nil {
		return stats, err
	}
	in, err := os.Open(path)
	if err != nil {
		return stats, err
	}
	defer in.Close()

	tmp, err := os.CreateTemp(filepath.Dir(path), ".tab2kindle-clean-*")
	if err != nil {
		return stats, fmt.Errorf("create temp file: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			tmp.Close()
			os.Remove(tmp.Name())
		}
	}()

	w := bufio.NewWriterSize(tmp, 1<<20)
	sc := bufio.NewScanner(in)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	for sc.Scan() {
		stats.Lines++
		if stats.Lines%10_000 == 0 {
			if err := ctx.Err(); err != nil {
				return stats, err
			}
		}
		line := sc.Text()
		cleaned := Clean(line)
		if cleaned != line {
			stats.Changed++
			stats.Added += strings.Count(cleaned, "\n") - strings.Count(line, "\n")
		}
		if _, err := w.WriteString(cleaned); err != nil {
			return stats, err
		}
		if err := w.WriteByte('\n'); err != nil {
			return stats, err
		}
	}
	if err := sc.Err(); err != nil {
		return stats, fmt.Errorf("read line %d: %w", stats.Lines+1, err)
	}
	if err := w.Flush(); err != nil {
		return stats, err
	}
	if err := tmp.Chmod(info.Mode().Perm()); err != nil {
		return stats, err
	}
	if err := tmp.Close(); err != nil {
		return stats, err
	}
	in.Close()
	if err := os.Rename(tmp.Name(), path); err != nil {
		return stats, fmt.Errorf("replace %s: %w", path, err)
	}
	committed = true

	log.Info("cleaned source",
		slog.String("path", path),
		slog.Int("lines", stats.Lines),
		slog.Int("changed", stats.Changed),
		slog.Int("added", stats.Added),
	)
	return stats, nil
}
