package dictionary

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeIDKeepsSafeCandidates(t *testing.T) {
	for _, c := range []string{"go", "go-1", "french-braid", "a_b", "naïve", "kick the bucket"} {
		assert.Equal(t, c, NormalizeID(c))
	}
}

func TestNormalizeIDHashesUnsafeCandidates(t *testing.T) {
	for _, c := range []string{"", "@topic", "a=b", "tom & jerry", "-x", `say "hi"`, "<b>", "go#1"} {
		got := NormalizeID(c)
		assert.True(t, strings.HasPrefix(got, "h"), "candidate %q", c)
		assert.False(t, strings.ContainsAny(got, reservedIDChars), "candidate %q", c)
		assert.Equal(t, strings.Trim(got[1:], "0123456789"), "", "candidate %q gave %q", c, got)
		assert.Equal(t, got, NormalizeID(c), "not deterministic for %q", c)
	}
	assert.NotEqual(t, NormalizeID("@a"), NormalizeID("@b"))
}

func TestExtractID(t *testing.T) {
	tests := []struct {
		name, headword, explanation, want string
	}{
		{"marker id", "french braid", `<div class="entry" sk="frenchbraid: :10" id="french-braid" idm_id="000023406">x</div>`, "french-braid"},
		{"no marker", "go", `<p>to move</p>`, "go"},
		{"marker without id", "go", `<div class="entry" idm_id="0001">x</div>`, "go"},
		{"id outside marker ignored", "go", `<span id="other"></span><div class="entry">x</div>`, "go"},
		{"first marker wins", "go", `<div class="entry" id="go-1"></div><div class="entry" id="go-2"></div>`, "go-1"},
		{"unsafe id hashed", "go", `<div class="entry" id="@go">x</div>`, NormalizeID("@go")},
		{"empty id falls back", "go", `<div class="entry" id="">x</div>`, "go"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExtractID(tt.headword, tt.explanation))
		})
	}
}
