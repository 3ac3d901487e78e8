package emit

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/japaniel/tab2kindle/pkg/db"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sliceSource struct {
	entries []db.Entry
	failAt  int64
}

func (s sliceSource) Len() int { return len(s.entries) }

func (s sliceSource) Iterate(_ context.Context, fn func(db.Entry) error) error {
	for _, e := range s.entries {
		if s.failAt != 0 && e.Seq == s.failAt {
			return errors.New("disk on fire")
		}
		if err := fn(e); err != nil {
			return err
		}
	}
	return nil
}

func entries(n int) []db.Entry {
	out := make([]db.Entry, n)
	for i := range out {
		out[i] = db.Entry{
			Seq:         int64(i + 1),
			ID:          fmt.Sprintf("w%d", i+1),
			Headword:    fmt.Sprintf("w%d", i+1),
			Explanation: fmt.Sprintf("<p>entry %d</p>", i+1),
		}
	}
	return out
}

func newTestEmitter(t *testing.T, dir string, pager Pager) *Emitter {
	t.Helper()
	em := NewEmitter(Options{Dir: dir, Pager: pager, Title: "Test Dict", CSS: "p { margin: 0 }"}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	em.now = func() time.Time { return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC) }
	em.newID = func() string { return "urn:uuid:fixed" }
	return em
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	b, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(b)
}

func TestEmitPaged(t *testing.T) {
	dir := t.TempDir()
	em := newTestEmitter(t, dir, Pager{Name: "dict", Capacity: 2})

	res, err := em.Emit(context.Background(), sliceSource{entries: entries(5)})
	require.NoError(t, err)
	assert.Equal(t, 5, res.Entries)
	require.Equal(t, []string{
		filepath.Join(dir, "dict0.html"),
		filepath.Join(dir, "dict1.html"),
		filepath.Join(dir, "dict2.html"),
	}, res.Pages)

	page1 := readFile(t, res.Pages[1])
	assert.Contains(t, page1, `id="w3"`)
	assert.Contains(t, page1, `id="w4"`)
	assert.NotContains(t, page1, `id="w5"`)
	assert.Contains(t, page1, "<style>\np { margin: 0 }\n</style>")
	assert.True(t, strings.HasSuffix(page1, "</mbp:frameset></body></html>\n"))
	assert.Less(t, strings.Index(page1, `id="w3"`), strings.Index(page1, `id="w4"`))

	opf := readFile(t, res.Manifest)
	assert.Equal(t, filepath.Join(dir, "dict.opf"), res.Manifest)
	assert.Contains(t, opf, `<dc:Identifier id="uid">urn:uuid:fixed</dc:Identifier>`)
	assert.Contains(t, opf, `<dc:Title><h2>Test Dict</h2></dc:Title>`)
	assert.Contains(t, opf, `<dc:Date>2026-01-02</dc:Date>`)
	assert.Contains(t, opf, `<DictionaryInLanguage>en-us</DictionaryInLanguage>`)
	for i := 0; i < 3; i++ {
		assert.Contains(t, opf, fmt.Sprintf(`<item id="dictionary%d" href="dict%d.html" media-type="text/x-oeb1-document"/>`, i, i))
		assert.Contains(t, opf, fmt.Sprintf(`<itemref idref="dictionary%d"/>`, i))
	}
	assert.Less(t, strings.Index(opf, `idref="dictionary0"`), strings.Index(opf, `idref="dictionary2"`))
}

func TestEmitSingle(t *testing.T) {
	dir := t.TempDir()
	em := newTestEmitter(t, dir, Pager{Name: "dict"})

	res, err := em.Emit(context.Background(), sliceSource{entries: entries(5)})
	require.NoError(t, err)
	require.Equal(t, []string{filepath.Join(dir, "dict.html")}, res.Pages)
	assert.Equal(t, 5, strings.Count(readFile(t, res.Pages[0]), "<idx:entry "))
	assert.Contains(t, readFile(t, res.Manifest), `<item id="dictionary" href="dict.html"`)
}

func TestEmitEmptySourceWritesOnePage(t *testing.T) {
	dir := t.TempDir()
	res, err := newTestEmitter(t, dir, Pager{Name: "dict", Capacity: 2}).Emit(context.Background(), sliceSource{})
	require.NoError(t, err)
	require.Len(t, res.Pages, 1)
	assert.NotContains(t, readFile(t, res.Pages[0]), "<idx:entry")
}

func TestEmitRemovesPartialOutput(t *testing.T) {
	dir := t.TempDir()
	em := newTestEmitter(t, dir, Pager{Name: "dict", Capacity: 2})

	_, err := em.Emit(context.Background(), sliceSource{entries: entries(5), failAt: 4})
	require.Error(t, err)

	left, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, left)
}
