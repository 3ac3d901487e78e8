package emit

import (
	"fmt"
	"strconv"
)

// Layout selects how entries are spread over page files.
type Layout string

const (
	// LayoutPaged writes DefaultCapacity entries per numbered page file.
	LayoutPaged Layout = "paged"
	// LayoutSingle writes every entry into one page file.
	LayoutSingle Layout = "single"
)

// DefaultCapacity is the number of entries per page in the paged layout.
const DefaultCapacity = 2000

// ParseLayout validates a layout name.
func ParseLayout(s string) (Layout, error) {
	switch Layout(s) {
	case LayoutPaged, LayoutSingle:
		return Layout(s), nil
	}
	return "", fmt.Errorf("unknown layout %q (want %q or %q)", s, LayoutPaged, LayoutSingle)
}

// Pager assigns entries to pages by seq. Page membership never depends on
// content, so hrefs can be computed before any page is written.
type Pager struct {
	Name string
	// Capacity is the number of entries per page; zero or less means a
	// single page.
	Capacity int
}

// NewPager returns the pager for layout. A non-positive capacity falls back
// to DefaultCapacity for the paged layout.
func NewPager(name string, layout Layout, capacity int) (Pager, error) {
	switch layout {
	case LayoutSingle:
		return Pager{Name: name}, nil
	case LayoutPaged:
		if capacity <= 0 {
			capacity = DefaultCapacity
		}
		return Pager{Name: name, Capacity: capacity}, nil
	}
	return Pager{}, fmt.Errorf("unknown layout %q", layout)
}

// Single reports whether every entry lands on one page.
func (p Pager) Single() bool { return p.Capacity <= 0 }

// PageOf returns the zero-based page of the entry with the given 1-based seq.
func (p Pager) PageOf(seq int64) int {
	if p.Single() || seq <= 0 {
		return 0
	}
	return int((seq - 1) / int64(p.Capacity))
}

// Pages returns how many pages n entries need. There is always at least one.
func (p Pager) Pages(n int) int {
	if p.Single() || n <= 0 {
		return 1
	}
	return (n + p.Capacity - 1) / p.Capacity
}

// FileName returns the page file name, relative to the output directory.
func (p Pager) FileName(page int) string {
	if p.Single() {
		return p.Name + ".html"
	}
	return p.Name + strconv.Itoa(page) + ".html"
}

// Href returns the link to anchor on the page holding seq.
func (p Pager) Href(seq int64, anchor string) string {
	return p.FileName(p.PageOf(seq)) + "#" + anchor
}
