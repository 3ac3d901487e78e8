package db

import "strings"

// Entry is one dictionary record as held by the staging store.
type Entry struct {
	// Seq is the 1-based insertion sequence. It is the iteration order and
	// determines page assignment.
	Seq         int64
	ID          string
	Headword    string
	Explanation string
	Inflections []string
	// ContinuationOf is the Seq of the entry this record carries overflow
	// inflections for, or 0.
	ContinuationOf int64
}

// IsPhrase reports whether the headword is a multi-word phrase.
func (e Entry) IsPhrase() bool { return strings.Contains(e.Headword, " ") }

// IsContinuation reports whether e only exists to hold overflow inflections.
func (e Entry) IsContinuation() bool { return e.ContinuationOf != 0 }
