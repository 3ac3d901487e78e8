package dictionary

import (
	"errors"
	"strings"
)

// linkPrefix introduces an explanation that only declares the headword to be
// an alternate form of another headword, e.g. "going\t@@@LINK=go".
const linkPrefix = "@@@LINK="

// ErrMalformedLine is returned for non-blank lines without a tab separator.
var ErrMalformedLine = errors.New("line has no tab separator")

// Line is one parsed source record.
type Line struct {
	Headword    string
	Explanation string
	// Directive is true for any link directive line. Such lines never become
	// entries.
	Directive bool
	// LinkTarget is the canonical word an alias directive points at. It is
	// empty for directives that link to nothing or to the headword itself.
	LinkTarget string
}

// IsAlias reports whether the line declares Headword as a form of LinkTarget.
func (l Line) IsAlias() bool { return l.LinkTarget != "" }

var unescaper = strings.NewReplacer(`\\`, `\`, `\n`, "<br/>\n")

// Unescape turns the source's escaped backslashes and literal \n sequences
// into a backslash and a line-break tag.
func Unescape(s string) string { return unescaper.Replace(s) }

// ParseLine splits a raw source line. blank is true for empty or
// whitespace-only lines, which callers skip.
func ParseLine(raw string) (line Line, blank bool, err error) {
	raw = strings.TrimRight(raw, "\r")
	if strings.TrimSpace(raw) == "" {
		return Line{}, true, nil
	}
	headword, rest, ok := strings.Cut(raw, "\t")
	if !ok || headword == "" {
		return Line{}, false, ErrMalformedLine
	}
	// Only the first two fields matter; a trailing link column is ignored.
	rest, _, _ = strings.Cut(rest, "\t")

	if len(rest) >= len(linkPrefix) && strings.EqualFold(rest[:len(linkPrefix)], linkPrefix) {
		target := linkTarget(rest[len(linkPrefix):])
		if target != "" && target != headword {
			return Line{Headword: headword, Directive: true, LinkTarget: target}, false, nil
		}
		return Line{Headword: headword, Directive: true}, false, nil
	}
	return Line{Headword: headword, Explanation: Unescape(rest)}, false, nil
}

// linkTarget strips the trailing line-break residue the source format
// leaves after a link directive.
func linkTarget(s string) string {
	s = strings.TrimSpace(s)
	for {
		trimmed := strings.TrimSuffix(s, `\n`)
		trimmed = strings.TrimSuffix(trimmed, "<br/>")
		trimmed = strings.TrimSpace(trimmed)
		if trimmed == s {
			return s
		}
		s = trimmed
	}
}
