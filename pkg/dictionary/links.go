package dictionary

import (
	"context"
	"log/slog"
	"regexp"
	"strings"

	"golang.org/x/net/html"
)

// PageLocator maps an entry to the href of its position in the output.
type PageLocator interface {
	Href(seq int64, anchor string) string
}

// LinkStats counts the references found in one explanation.
type LinkStats struct {
	Resolved   int
	Unresolved int
	Skipped    int
}

// Add accumulates o into s.
func (s *LinkStats) Add(o LinkStats) {
	s.Resolved += o.Resolved
	s.Unresolved += o.Unresolved
	s.Skipped += o.Skipped
}

var (
	anchorTag = regexp.MustCompile(`(?is)<a\b[^>]*>`)
	bwordHref = regexp.MustCompile(`(?i)(\s+)href\s*=\s*"bword://([^"]*)"`)
)

// LinkResolver rewrites bword:// references in explanations into hrefs
// pointing at the page and anchor of the referenced entry.
type LinkResolver struct {
	store   *EntryStore
	aliases *AliasMapping
	pages   PageLocator
	log     *slog.Logger
}

// NewLinkResolver creates a resolver. aliases may be nil.
func NewLinkResolver(store *EntryStore, aliases *AliasMapping, pages PageLocator, log *slog.Logger) *LinkResolver {
	return &LinkResolver{store: store, aliases: aliases, pages: pages, log: log}
}

// Rewrite returns explanation with every reference replaced. References
// that resolve to nothing lose their href, leaving an inert anchor.
func (lr *LinkResolver) Rewrite(ctx context.Context, entryID, explanation string) (string, LinkStats) {
	var stats LinkStats
	if !strings.Contains(explanation, "bword://") {
		return explanation, stats
	}
	out := anchorTag.ReplaceAllStringFunc(explanation, func(tag string) string {
		return bwordHref.ReplaceAllStringFunc(tag, func(attr string) string {
			m := bwordHref.FindStringSubmatch(attr)
			target := html.UnescapeString(m[2])
			if strings.HasSuffix(strings.ToLower(target), ".css") {
				stats.Skipped++
				return attr
			}
			ref, anchor, ok := lr.resolve(ctx, target)
			if !ok {
				stats.Unresolved++
				lr.log.Warn("unresolved link", slog.String("entry", entryID), slog.String("target", target))
				return ""
			}
			stats.Resolved++
			return m[1] + `href="` + html.EscapeString(lr.pages.Href(ref.Seq, anchor)) + `"`
		})
	})
	return out, stats
}

func (lr *LinkResolver) resolve(ctx context.Context, target string) (Ref, string, bool) {
	if strings.HasPrefix(target, "@") {
		if ref, ok := lr.store.RefByID(NormalizeID(target)); ok {
			return ref, ref.ID, true
		}
		if ref, ok := lr.store.RefByHeadword(target); ok {
			return ref, ref.ID, true
		}
		return Ref{}, "", false
	}
	prefix, postfix, hasFragment := strings.Cut(target, "#")
	if !hasFragment {
		ref, ok := lr.lookup(target)
		return ref, ref.ID, ok
	}
	if ref, ok := lr.lookup(postfix); ok {
		return ref, ref.ID, true
	}
	ref, ok := lr.lookup(prefix)
	if !ok {
		return Ref{}, "", false
	}
	if specificAnchor(postfix) && lr.hasAnchor(ctx, ref, postfix) {
		return ref, NormalizeID(postfix), true
	}
	return ref, ref.ID, true
}

// hasAnchor reports whether the explanation of ref declares an element with
// fragment as its id.
func (lr *LinkResolver) hasAnchor(ctx context.Context, ref Ref, fragment string) bool {
	text, err := lr.store.Explanation(ctx, ref.ID)
	if err != nil {
		lr.log.Debug("anchor lookup failed", slog.String("id", ref.ID), slog.Any("error", err))
		return false
	}
	return strings.Contains(text, `id="`+html.EscapeString(fragment)+`"`) ||
		strings.Contains(text, `id="`+NormalizeID(fragment)+`"`)
}

// lookup resolves through the store, then through the word an alias points at.
func (lr *LinkResolver) lookup(s string) (Ref, bool) {
	if s == "" {
		return Ref{}, false
	}
	if ref, ok := lr.store.Resolve(s); ok {
		return ref, true
	}
	if lr.aliases == nil {
		return Ref{}, false
	}
	if word, ok := lr.aliases.Canonical(s); ok {
		return lr.store.Resolve(word)
	}
	return Ref{}, false
}

// specificAnchor reports whether a fragment names a sense inside an entry
// rather than the entry as a whole.
func specificAnchor(fragment string) bool {
	return fragment != "" && !strings.HasSuffix(fragment, "_e") && strings.Count(fragment, "_") <= 1
}
