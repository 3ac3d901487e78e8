package dictionary

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/japaniel/tab2kindle/pkg/db"
)

// ErrTooManyInflections is returned when an inflection set exceeds MaxInflections.
var ErrTooManyInflections = fmt.Errorf("more than %d inflections", MaxInflections)

// ErrUnknownEntry is returned for ids or seqs the store does not hold.
var ErrUnknownEntry = errors.New("unknown entry")

// Ref is an entry without its explanation. Inflections must not be modified.
type Ref struct {
	Seq            int64
	ID             string
	Headword       string
	Inflections    []string
	ContinuationOf int64
}

// IsPhrase reports whether the headword is a multi-word phrase.
func (r Ref) IsPhrase() bool { return strings.Contains(r.Headword, " ") }

// IsContinuation reports whether the entry only holds overflow inflections.
func (r Ref) IsContinuation() bool { return r.ContinuationOf != 0 }

// EntryStore owns every entry of a compile run. Explanations live in the
// injected database; ids, headwords and inflections are also indexed in
// memory for lookups during synthesis and link resolution.
//
// Writers are serialized (Bulk); lookups are safe from any goroutine.
type EntryStore struct {
	conn *sql.DB
	// PageSize is the number of rows Iterate reads per query.
	PageSize int

	writeMu sync.Mutex

	mu            sync.RWMutex
	refs          []Ref // refs[i].Seq == i+1
	byID          map[string]int64
	byHeadword    map[string]int64   // first entry by insertion order
	byInflection  map[string][]int64 // owners in ascending seq
	continuations map[int64][]int64
}

// NewEntryStore creates a store over conn, which must already be migrated
// and empty.
func NewEntryStore(conn *sql.DB) *EntryStore {
	return &EntryStore{
		conn:          conn,
		PageSize:      500,
		byID:          make(map[string]int64),
		byHeadword:    make(map[string]int64),
		byInflection:  make(map[string][]int64),
		continuations: make(map[int64][]int64),
	}
}

// Batch stages writes inside one transaction. It is only valid inside the
// function passed to Bulk.
type Batch struct {
	s     *EntryStore
	ctx   context.Context
	tx    *sql.Tx
	next  int64
	added []Ref
	ids   map[string]struct{}
	infl  map[int64][]string
	order []int64 // seqs in infl, first-touch order
}

// Bulk runs fn inside a single transaction. Either every write staged through
// the batch is committed and indexed, or none is.
func (s *EntryStore) Bulk(ctx context.Context, fn func(b *Batch) error) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.mu.RLock()
	next := int64(len(s.refs)) + 1
	s.mu.RUnlock()

	var b *Batch
	err := db.WithTx(ctx, s.conn, func(tx *sql.Tx) error {
		b = &Batch{
			s:    s,
			ctx:  ctx,
			tx:   tx,
			next: next,
			ids:  make(map[string]struct{}),
			infl: make(map[int64][]string),
		}
		return fn(b)
	})
	if err != nil {
		return err
	}
	s.apply(b)
	return nil
}

// Insert stores a new entry, assigning it the next seq and a unique id
// derived from its explanation or headword.
func (b *Batch) Insert(headword, explanation string) (Ref, error) {
	seq := b.next
	ref := Ref{
		Seq:      seq,
		ID:       b.mintID(ExtractID(headword, explanation), seq),
		Headword: headword,
	}
	if err := db.InsertEntry(b.ctx, b.tx, db.Entry{
		Seq:         ref.Seq,
		ID:          ref.ID,
		Headword:    headword,
		Explanation: explanation,
	}); err != nil {
		return Ref{}, err
	}
	b.stage(ref)
	return ref, nil
}

// InsertContinuation stores the k-th continuation of source holding forms.
// It copies the source's current explanation.
func (b *Batch) InsertContinuation(source Ref, k int, forms []string) (Ref, error) {
	if source.IsContinuation() {
		return Ref{}, fmt.Errorf("entry %q is itself a continuation", source.ID)
	}
	forms, err := cleanForms(forms)
	if err != nil {
		return Ref{}, fmt.Errorf("continuation %d of %q: %w", k, source.ID, err)
	}
	explanation, err := db.GetExplanation(b.ctx, b.tx, source.Seq)
	if err != nil {
		return Ref{}, fmt.Errorf("continuation %d of %q: %w", k, source.ID, err)
	}
	seq := b.next
	ref := Ref{
		Seq:            seq,
		ID:             b.mintID(NormalizeID(source.ID+"_infl"+strconv.Itoa(k)), seq),
		Headword:       source.Headword,
		Inflections:    forms,
		ContinuationOf: source.Seq,
	}
	if err := db.InsertEntry(b.ctx, b.tx, db.Entry{
		Seq:            ref.Seq,
		ID:             ref.ID,
		Headword:       ref.Headword,
		Explanation:    explanation,
		Inflections:    forms,
		ContinuationOf: source.Seq,
	}); err != nil {
		return Ref{}, err
	}
	b.stage(ref)
	return ref, nil
}

// SetInflections replaces the inflections of the entry with the given seq.
func (b *Batch) SetInflections(seq int64, forms []string) error {
	if seq <= 0 || seq >= b.next {
		return fmt.Errorf("set inflections of %d: %w", seq, ErrUnknownEntry)
	}
	forms, err := cleanForms(forms)
	if err != nil {
		return fmt.Errorf("set inflections of %d: %w", seq, err)
	}
	if err := db.ReplaceInflections(b.ctx, b.tx, seq, forms); err != nil {
		return err
	}
	if _, ok := b.infl[seq]; !ok {
		b.order = append(b.order, seq)
	}
	b.infl[seq] = forms
	return nil
}

func (b *Batch) stage(ref Ref) {
	b.added = append(b.added, ref)
	b.ids[ref.ID] = struct{}{}
	b.next++
}

// mintID returns candidate when it is free, otherwise candidate_<n> for the
// first free n starting at seq.
func (b *Batch) mintID(candidate string, seq int64) string {
	if !b.idTaken(candidate) {
		return candidate
	}
	for n := seq; ; n++ {
		id := candidate + "_" + strconv.FormatInt(n, 10)
		if !b.idTaken(id) {
			return id
		}
	}
}

func (b *Batch) idTaken(id string) bool {
	if _, ok := b.ids[id]; ok {
		return true
	}
	return b.s.ContainsID(id)
}

// cleanForms drops empty and duplicate forms, keeping order, and enforces
// the per-entry cap.
func cleanForms(forms []string) ([]string, error) {
	out := make([]string, 0, len(forms))
	seen := make(map[string]struct{}, len(forms))
	for _, f := range forms {
		if f == "" {
			continue
		}
		if _, dup := seen[f]; dup {
			continue
		}
		seen[f] = struct{}{}
		out = append(out, f)
	}
	if len(out) > MaxInflections {
		return nil, ErrTooManyInflections
	}
	return out, nil
}

// apply publishes a committed batch to the in-memory indexes.
func (s *EntryStore) apply(b *Batch) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ref := range b.added {
		s.refs = append(s.refs, ref)
		s.byID[ref.ID] = ref.Seq
		if _, ok := s.byHeadword[ref.Headword]; !ok {
			s.byHeadword[ref.Headword] = ref.Seq
		}
		for _, f := range ref.Inflections {
			s.addOwner(f, ref.Seq)
		}
		if ref.ContinuationOf != 0 {
			s.continuations[ref.ContinuationOf] = append(s.continuations[ref.ContinuationOf], ref.Seq)
		}
	}
	for _, seq := range b.order {
		ref := &s.refs[seq-1]
		for _, f := range ref.Inflections {
			s.removeOwner(f, seq)
		}
		ref.Inflections = b.infl[seq]
		for _, f := range ref.Inflections {
			s.addOwner(f, seq)
		}
	}
}

func (s *EntryStore) addOwner(form string, seq int64) {
	owners := s.byInflection[form]
	i := sort.Search(len(owners), func(i int) bool { return owners[i] >= seq })
	if i < len(owners) && owners[i] == seq {
		return
	}
	owners = append(owners, 0)
	copy(owners[i+1:], owners[i:])
	owners[i] = seq
	s.byInflection[form] = owners
}

func (s *EntryStore) removeOwner(form string, seq int64) {
	owners := s.byInflection[form]
	for i, o := range owners {
		if o == seq {
			owners = append(owners[:i:i], owners[i+1:]...)
			break
		}
	}
	if len(owners) == 0 {
		delete(s.byInflection, form)
		return
	}
	s.byInflection[form] = owners
}

// Conn returns the database holding the explanations.
func (s *EntryStore) Conn() *sql.DB { return s.conn }

// Insert stores a single entry in its own transaction.
func (s *EntryStore) Insert(ctx context.Context, headword, explanation string) (Ref, error) {
	var ref Ref
	err := s.Bulk(ctx, func(b *Batch) error {
		var err error
		ref, err = b.Insert(headword, explanation)
		return err
	})
	return ref, err
}

// Len returns the number of committed entries, continuations included.
func (s *EntryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.refs)
}

// ContainsID reports whether an entry with exactly this id exists.
func (s *EntryStore) ContainsID(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.byID[id]
	return ok
}

// RefByID returns the entry with the given id.
func (s *EntryStore) RefByID(id string) (Ref, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	seq, ok := s.byID[id]
	if !ok {
		return Ref{}, false
	}
	return s.refs[seq-1], true
}

// RefByHeadword returns the first entry, by insertion order, with the given headword.
func (s *EntryStore) RefByHeadword(headword string) (Ref, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	seq, ok := s.byHeadword[headword]
	if !ok {
		return Ref{}, false
	}
	return s.refs[seq-1], true
}

// RefBySeq returns the entry with the given seq.
func (s *EntryStore) RefBySeq(seq int64) (Ref, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if seq <= 0 || seq > int64(len(s.refs)) {
		return Ref{}, false
	}
	return s.refs[seq-1], true
}

// Resolve looks str up as a headword, then as an id, then as an inflection.
// A form shared by several entries resolves to the earliest one.
func (s *EntryStore) Resolve(str string) (Ref, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if seq, ok := s.byHeadword[str]; ok {
		return s.refs[seq-1], true
	}
	if seq, ok := s.byID[str]; ok {
		return s.refs[seq-1], true
	}
	if owners := s.byInflection[str]; len(owners) > 0 {
		return s.refs[owners[0]-1], true
	}
	return Ref{}, false
}

// Contains reports whether str names a headword, id or inflection.
func (s *EntryStore) Contains(str string) bool {
	_, ok := s.Resolve(str)
	return ok
}

// Sources returns every entry that is not a continuation, in seq order.
func (s *EntryStore) Sources() []Ref {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Ref, 0, len(s.refs))
	for _, r := range s.refs {
		if !r.IsContinuation() {
			out = append(out, r)
		}
	}
	return out
}

// ContinuationsOf returns the continuation entries of the entry with the
// given id in creation order.
func (s *EntryStore) ContinuationsOf(id string) []Ref {
	s.mu.RLock()
	defer s.mu.RUnlock()
	seqs := s.continuations[s.byID[id]]
	out := make([]Ref, len(seqs))
	for i, c := range seqs {
		out[i] = s.refs[c-1]
	}
	return out
}

func (s *EntryStore) seqOf(id string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	seq, ok := s.byID[id]
	if !ok {
		return 0, fmt.Errorf("%q: %w", id, ErrUnknownEntry)
	}
	return seq, nil
}

// Explanation reads the current explanation of the entry with the given id.
func (s *EntryStore) Explanation(ctx context.Context, id string) (string, error) {
	seq, err := s.seqOf(id)
	if err != nil {
		return "", err
	}
	return db.GetExplanation(ctx, s.conn, seq)
}

// GetByID returns the full entry with the given id.
func (s *EntryStore) GetByID(ctx context.Context, id string) (db.Entry, bool, error) {
	ref, ok := s.RefByID(id)
	if !ok {
		return db.Entry{}, false, nil
	}
	return s.load(ctx, ref)
}

// GetByHeadword returns the first full entry with the given headword.
func (s *EntryStore) GetByHeadword(ctx context.Context, headword string) (db.Entry, bool, error) {
	ref, ok := s.RefByHeadword(headword)
	if !ok {
		return db.Entry{}, false, nil
	}
	return s.load(ctx, ref)
}

func (s *EntryStore) load(ctx context.Context, ref Ref) (db.Entry, bool, error) {
	explanation, err := db.GetExplanation(ctx, s.conn, ref.Seq)
	if err != nil {
		return db.Entry{}, false, err
	}
	return db.Entry{
		Seq:            ref.Seq,
		ID:             ref.ID,
		Headword:       ref.Headword,
		Explanation:    explanation,
		Inflections:    ref.Inflections,
		ContinuationOf: ref.ContinuationOf,
	}, true, nil
}

// UpdateExplanation overwrites the explanation of the entry with the given id.
func (s *EntryStore) UpdateExplanation(ctx context.Context, id, explanation string) error {
	return s.UpdateExplanationTx(ctx, s.conn, id, explanation)
}

// UpdateExplanationTx is UpdateExplanation on a caller-owned executor, so
// batched writers can commit many updates in one transaction.
func (s *EntryStore) UpdateExplanationTx(ctx context.Context, ex db.DBExecutor, id, explanation string) error {
	seq, err := s.seqOf(id)
	if err != nil {
		return err
	}
	return db.UpdateExplanation(ctx, ex, seq, explanation)
}

// UpdateInflections replaces the inflections of the entry with the given id.
func (s *EntryStore) UpdateInflections(ctx context.Context, id string, forms []string) error {
	seq, err := s.seqOf(id)
	if err != nil {
		return err
	}
	return s.Bulk(ctx, func(b *Batch) error { return b.SetInflections(seq, forms) })
}

// Iterate calls fn with every entry in seq order. No database connection is
// held while fn runs, so fn may use the store.
func (s *EntryStore) Iterate(ctx context.Context, fn func(e db.Entry) error) error {
	pageSize := s.PageSize
	if pageSize <= 0 {
		pageSize = 500
	}
	var after int64
	for {
		page, err := db.ListEntries(ctx, s.conn, after, pageSize)
		if err != nil {
			return fmt.Errorf("list entries after %d: %w", after, err)
		}
		if len(page) == 0 {
			return nil
		}
		for _, e := range page {
			if err := fn(e); err != nil {
				return err
			}
		}
		after = page[len(page)-1].Seq
	}
}
