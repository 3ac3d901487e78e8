package emit

import (
	"io"
	"strconv"
	"text/template"
	"time"

	"golang.org/x/net/html"
)

const manifestTemplate = `<?xml version="1.0"?><!DOCTYPE package SYSTEM "oeb1.ent">
<package unique-identifier="uid" xmlns:dc="Dublin Core">

<metadata>
<dc-metadata>
<dc:Identifier id="uid">{{.Identifier}}</dc:Identifier>
<dc:Creator>{{esc .Creator}}</dc:Creator>
<dc:Title><h2>{{esc .Title}}</h2></dc:Title>
<dc:Language>{{esc .InLanguage}}</dc:Language>
<dc:Date>{{.Date}}</dc:Date>
</dc-metadata>
<x-metadata>
<DictionaryInLanguage>{{esc .InLanguage}}</DictionaryInLanguage>
<DictionaryOutLanguage>{{esc .OutLanguage}}</DictionaryOutLanguage>
</x-metadata>
</metadata>
<manifest>
{{range .Pages}}<item id="{{.ID}}" href="{{esc .Href}}" media-type="text/x-oeb1-document"/>
{{end}}</manifest>
<spine>
{{range .Pages}}<itemref idref="{{.ID}}"/>
{{end}}</spine>
<tours/>
<guide> <reference type="search" title="Dictionary Search" onclick= "index_search()"/> </guide>
</package>
`

var manifestTmpl = template.Must(template.New("opf").
	Funcs(template.FuncMap{"esc": html.EscapeString}).
	Parse(manifestTemplate))

// ManifestPage is one page file in load order.
type ManifestPage struct {
	ID   string
	Href string
}

// Manifest describes the OPF package file.
type Manifest struct {
	Identifier  string
	Title       string
	Creator     string
	InLanguage  string
	OutLanguage string
	Date        string
	Pages       []ManifestPage
}

// NewManifest lists pages 0..n-1 of pager in order.
func NewManifest(pager Pager, n int, identifier string, now time.Time) Manifest {
	m := Manifest{
		Identifier: identifier,
		Title:      pager.Name,
		Creator:    "tab2kindle",
		Date:       now.UTC().Format("2006-01-02"),
	}
	for i := 0; i < n; i++ {
		id := "dictionary"
		if !pager.Single() {
			id += strconv.Itoa(i)
		}
		m.Pages = append(m.Pages, ManifestPage{ID: id, Href: pager.FileName(i)})
	}
	return m
}

// Write renders the manifest.
func (m Manifest) Write(w io.Writer) error {
	return manifestTmpl.Execute(w, m)
}
