package dictionary

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"strings"
	"unicode/utf8"
)

// MaxInflections is the most inflections a single entry record may carry.
const MaxInflections = 255

// maxPhraseSpaces is the most spaces a synthesized phrase form may contain.
const maxPhraseSpaces = 3

// ErrAliasesNotFrozen is returned when synthesis starts before the alias
// pass has been sealed.
var ErrAliasesNotFrozen = errors.New("alias mapping must be frozen before synthesis")

// Synthesizer attaches inflections to entries: the alternate forms declared
// for their headword and, for phrases, every combination of the forms of
// their words. Lists longer than MaxInflections spill into continuation
// entries.
type Synthesizer struct {
	store   *EntryStore
	aliases *AliasMapping
	log     *slog.Logger

	// StrictComponents drops phrase component forms that are unlikely to
	// be real inflections of the word: multi-word forms, forms with quotes,
	// apostrophes or hyphens, and forms much longer than the word.
	StrictComponents bool
}

// NewSynthesizer creates a synthesizer in strict mode.
func NewSynthesizer(store *EntryStore, aliases *AliasMapping, log *slog.Logger) *Synthesizer {
	return &Synthesizer{store: store, aliases: aliases, log: log, StrictComponents: true}
}

// SynthesisStats summarizes a synthesis run.
type SynthesisStats struct {
	Sources int
	// Updated counts records whose inflections changed.
	Updated       int
	Phrases       int
	Split         int
	Continuations int
	Inflections   int
}

// Run synthesizes inflections for every source entry in one transaction.
// Running it again with the same aliases changes nothing.
func (sy *Synthesizer) Run(ctx context.Context) (SynthesisStats, error) {
	if !sy.aliases.Frozen() {
		return SynthesisStats{}, ErrAliasesNotFrozen
	}
	sources := sy.store.Sources()
	var stats SynthesisStats
	err := sy.store.Bulk(ctx, func(b *Batch) error {
		stats = SynthesisStats{Sources: len(sources)}
		for i, src := range sources {
			if i%1000 == 0 {
				if err := ctx.Err(); err != nil {
					return err
				}
			}
			if src.IsPhrase() {
				stats.Phrases++
			}
			if err := sy.apply(b, src, &stats); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return stats, err
	}
	sy.log.Info("inflection synthesis finished",
		slog.Int("sources", stats.Sources),
		slog.Int("phrases", stats.Phrases),
		slog.Int("updated", stats.Updated),
		slog.Int("split", stats.Split),
		slog.Int("continuations", stats.Continuations),
		slog.Int("inflections", stats.Inflections),
	)
	return stats, nil
}

func (sy *Synthesizer) apply(b *Batch, src Ref, stats *SynthesisStats) error {
	chunks := chunk(sy.Candidates(src), MaxInflections)
	var first []string
	if len(chunks) > 0 {
		first = chunks[0]
	}
	for _, c := range chunks {
		stats.Inflections += len(c)
	}
	if !slices.Equal(first, src.Inflections) {
		if err := b.SetInflections(src.Seq, first); err != nil {
			return err
		}
		stats.Updated++
	}

	existing := sy.store.ContinuationsOf(src.ID)
	for k := 1; k < len(chunks); k++ {
		if k-1 < len(existing) {
			cont := existing[k-1]
			if !slices.Equal(cont.Inflections, chunks[k]) {
				if err := b.SetInflections(cont.Seq, chunks[k]); err != nil {
					return err
				}
				stats.Updated++
			}
			continue
		}
		if _, err := b.InsertContinuation(src, k, chunks[k]); err != nil {
			return err
		}
		stats.Continuations++
	}
	// Continuations left over from a longer earlier list keep their record
	// but lose their forms.
	for _, cont := range existing[min(len(existing), max(len(chunks)-1, 0)):] {
		if len(cont.Inflections) == 0 {
			continue
		}
		if err := b.SetInflections(cont.Seq, nil); err != nil {
			return err
		}
		stats.Updated++
	}

	if len(chunks) > 1 {
		stats.Split++
		sy.log.Info("inflections split across records",
			slog.String("id", src.ID),
			slog.Int("records", len(chunks)),
		)
	}
	return nil
}

// Candidates returns the full inflection list of src before capping: its
// current inflections, then the alias forms of its headword, then phrase
// combinations, without duplicates and without the headword itself.
func (sy *Synthesizer) Candidates(src Ref) []string {
	out := make([]string, 0, len(src.Inflections))
	seen := map[string]struct{}{src.Headword: {}}
	add := func(form string) {
		if form == "" {
			return
		}
		if _, dup := seen[form]; dup {
			return
		}
		seen[form] = struct{}{}
		out = append(out, form)
	}
	for _, f := range src.Inflections {
		add(f)
	}
	for _, f := range sy.aliases.Forms(src.Headword) {
		add(f)
	}
	if src.IsPhrase() {
		sy.phraseForms(src.Headword, add)
	}
	return out
}

// phraseForms walks the Cartesian product of the component sets of phrase
// in odometer order, the last word varying fastest. Branches whose prefix
// already holds more than maxPhraseSpaces spaces are cut, so phrases with
// too many words produce nothing without being expanded.
func (sy *Synthesizer) phraseForms(phrase string, emit func(string)) {
	words := strings.Split(phrase, " ")
	if len(words) > maxPhraseSpaces+1 {
		return
	}
	sets := make([][]string, len(words))
	expands := false
	for i, w := range words {
		sets[i] = sy.componentSet(w)
		expands = expands || len(sets[i]) > 1
	}
	if !expands {
		return
	}
	parts := make([]string, len(words))
	var walk func(i, spaces int)
	walk = func(i, spaces int) {
		if i == len(words) {
			emit(strings.Join(parts, " "))
			return
		}
		if i > 0 {
			spaces++
		}
		for _, f := range sets[i] {
			n := spaces + strings.Count(f, " ")
			if n > maxPhraseSpaces {
				continue
			}
			parts[i] = f
			walk(i+1, n)
		}
	}
	walk(0, 0)
}

func (sy *Synthesizer) componentSet(word string) []string {
	set := []string{word}
	limit := utf8.RuneCountInString(word)*3/2 + 2
	for _, f := range sy.aliases.Forms(word) {
		if sy.StrictComponents {
			if strings.ContainsAny(f, " \"'-") || utf8.RuneCountInString(f) > limit {
				continue
			}
		}
		set = append(set, f)
	}
	return set
}

func chunk(list []string, size int) [][]string {
	var out [][]string
	for start := 0; start < len(list); start += size {
		out = append(out, list[start:min(start+size, len(list))])
	}
	return out
}
