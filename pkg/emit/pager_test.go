package emit

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPagedLayout(t *testing.T) {
	p, err := NewPager("dict", LayoutPaged, 0)
	require.NoError(t, err)
	assert.Equal(t, DefaultCapacity, p.Capacity)

	assert.Equal(t, 0, p.PageOf(1))
	assert.Equal(t, 0, p.PageOf(2000))
	assert.Equal(t, 1, p.PageOf(2001))
	assert.Equal(t, "dict0.html", p.FileName(0))
	assert.Equal(t, "dict1.html#go-1", p.Href(2001, "go-1"))
	assert.Equal(t, 1, p.Pages(0))
	assert.Equal(t, 1, p.Pages(2000))
	assert.Equal(t, 2, p.Pages(2001))
}

func TestSingleLayout(t *testing.T) {
	p, err := NewPager("dict", LayoutSingle, 10)
	require.NoError(t, err)
	assert.True(t, p.Single())
	assert.Equal(t, 0, p.PageOf(99999))
	assert.Equal(t, "dict.html", p.FileName(0))
	assert.Equal(t, "dict.html#cat", p.Href(5, "cat"))
	assert.Equal(t, 1, p.Pages(99999))
}

func TestParseLayout(t *testing.T) {
	l, err := ParseLayout("single")
	require.NoError(t, err)
	assert.Equal(t, LayoutSingle, l)
	_, err = ParseLayout("grid")
	assert.Error(t, err)
	_, err = NewPager("dict", Layout("grid"), 0)
	assert.Error(t, err)
}
