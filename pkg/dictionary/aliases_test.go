package dictionary

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAliasMappingAdd(t *testing.T) {
	m := NewAliasMapping()
	require.NoError(t, m.Add("go", "going"))
	require.NoError(t, m.Add("go", "went"))
	require.NoError(t, m.Add("go", "going"))
	require.NoError(t, m.Add("be", "went"))

	assert.Equal(t, []string{"going", "went"}, m.Forms("go"))
	assert.Equal(t, []string{"went"}, m.Forms("be"))
	assert.Nil(t, m.Forms("cat"))
	assert.Equal(t, []string{"go", "be"}, m.Words())
	assert.Equal(t, 2, m.Len())

	w, ok := m.Canonical("went")
	require.True(t, ok)
	assert.Equal(t, "go", w, "first declaration wins")
	_, ok = m.Canonical("go")
	assert.False(t, ok)
}

func TestAliasMappingFreeze(t *testing.T) {
	m := NewAliasMapping()
	require.NoError(t, m.Add("go", "going"))
	assert.False(t, m.Frozen())
	m.Freeze()
	assert.True(t, m.Frozen())
	assert.ErrorIs(t, m.Add("go", "gone"), ErrAliasesFrozen)
	assert.Equal(t, []string{"going"}, m.Forms("go"))
}

func TestReadAliases(t *testing.T) {
	src := strings.Join([]string{
		"go\t<div class=\"entry\" id=\"go-1\">to move</div>",
		"going\t@@@LINK=go",
		"",
		"went\t@@@LINK=go<br/>",
		"go\t@@@LINK=go",
		"broken",
	}, "\n")
	m := NewAliasMapping()
	stats, err := ReadAliases(context.Background(), strings.NewReader(src), m, discardLogger())
	require.NoError(t, err)
	assert.Equal(t, AliasStats{Lines: 5, Aliases: 2, Malformed: 1}, stats)
	assert.Equal(t, []string{"going", "went"}, m.Forms("go"))
	assert.False(t, m.Frozen())
}
