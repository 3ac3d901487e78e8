package dictionary

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
)

// ErrAliasesFrozen is returned when adding to a mapping after Freeze.
var ErrAliasesFrozen = errors.New("alias mapping is frozen")

// AliasMapping maps a canonical word to the alternate forms that link to it.
// It is built while scanning the source, frozen before inflection synthesis
// and read-only afterwards.
type AliasMapping struct {
	mu      sync.RWMutex
	frozen  bool
	words   []string // canonical words in first-seen order
	forms   map[string][]string
	seen    map[string]map[string]struct{}
	reverse map[string]string // form -> first canonical word declaring it
}

// NewAliasMapping returns an empty, writable mapping.
func NewAliasMapping() *AliasMapping {
	return &AliasMapping{
		forms:   make(map[string][]string),
		seen:    make(map[string]map[string]struct{}),
		reverse: make(map[string]string),
	}
}

// Add records form as an alternate form of word. Duplicates are ignored.
func (a *AliasMapping) Add(word, form string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.frozen {
		return ErrAliasesFrozen
	}
	set, ok := a.seen[word]
	if !ok {
		set = make(map[string]struct{})
		a.seen[word] = set
		a.words = append(a.words, word)
	}
	if _, dup := set[form]; dup {
		return nil
	}
	set[form] = struct{}{}
	a.forms[word] = append(a.forms[word], form)
	if _, ok := a.reverse[form]; !ok {
		a.reverse[form] = word
	}
	return nil
}

// Freeze makes the mapping read-only.
func (a *AliasMapping) Freeze() {
	a.mu.Lock()
	a.frozen = true
	a.mu.Unlock()
}

// Frozen reports whether Freeze has been called.
func (a *AliasMapping) Frozen() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.frozen
}

// Forms returns the alternate forms declared for word in declaration order.
// The returned slice must not be modified.
func (a *AliasMapping) Forms(word string) []string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.forms[word]
}

// Canonical returns the word that form was first declared an alias of.
func (a *AliasMapping) Canonical(form string) (string, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	w, ok := a.reverse[form]
	return w, ok
}

// Words returns every canonical word in first-seen order.
func (a *AliasMapping) Words() []string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return append([]string(nil), a.words...)
}

// Len returns the number of canonical words.
func (a *AliasMapping) Len() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.words)
}

// AliasStats summarizes an alias pass.
type AliasStats struct {
	Lines     int
	Aliases   int
	Malformed int
}

// ReadAliases scans r for link directives and adds each one to m. It does
// not freeze m.
func ReadAliases(ctx context.Context, r io.Reader, m *AliasMapping, log *slog.Logger) (AliasStats, error) {
	var stats AliasStats
	err := scanLines(r, func(lineNo int, raw string) error {
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
			// The extraction pass reports malformed lines; counting is enough here.
			stats.Malformed++
			return nil
		}
		if !line.IsAlias() {
			return nil
		}
		if err := m.Add(line.LinkTarget, line.Headword); err != nil {
			return err
		}
		stats.Aliases++
		return nil
	})
	if err != nil {
		return stats, err
	}
	log.Debug("alias pass finished",
		slog.Int("lines", stats.Lines),
		slog.Int("aliases", stats.Aliases),
		slog.Int("words", m.Len()),
	)
	return stats, nil
}
