package dictionary

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"
)

// hashPrefix marks ids that were replaced by a hash of the original.
const hashPrefix = "h"

// reservedIDChars cannot appear in an emitted id: @ = & clash with the
// source's link syntax, the rest would break attribute or fragment syntax.
const reservedIDChars = "@=&\"<>#"

// entryMarker is the start of the block that declares an entry's own id, e.g.
//
//	<div class="entry" sk="frenchbraid: :10" id="french-braid" idm_id="000023406">
const entryMarker = `<div class="entry"`

var idAttr = regexp.MustCompile(`\sid="([^"]*)"`)

// NormalizeID returns candidate unchanged when it is safe to use as an id
// attribute and anchor, and a hash-based replacement otherwise. The result
// depends only on candidate.
func NormalizeID(candidate string) string {
	if candidate != "" && !strings.ContainsAny(candidate, reservedIDChars) && !strings.HasPrefix(candidate, "-") {
		return candidate
	}
	return hashPrefix + strconv.FormatUint(xxhash.Sum64String(candidate), 10)
}

// ExtractID reads the id declared by the first entry marker in explanation,
// falling back to the headword, and normalizes it.
func ExtractID(headword, explanation string) string {
	candidate := headword
	if pos := strings.Index(explanation, entryMarker); pos != -1 {
		tag := explanation[pos+len(entryMarker):]
		if end := strings.IndexByte(tag, '>'); end != -1 {
			tag = tag[:end]
		}
		if m := idAttr.FindStringSubmatch(tag); m != nil && m[1] != "" {
			candidate = m[1]
		}
	}
	return NormalizeID(candidate)
}
