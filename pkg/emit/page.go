package emit

import (
	"io"
	"strings"

	"github.com/japaniel/tab2kindle/pkg/db"
	"golang.org/x/net/html"
	"golang.org/x/text/unicode/norm"
)

const pageProlog = `<?xml version="1.0" encoding="utf-8"?>
<html xmlns:idx="www.mobipocket.com" xmlns:mbp="www.mobipocket.com" xmlns:xlink="http://www.w3.org/1999/xlink">
`

const pageFrameset = `<body>
<mbp:pagebreak/>
<mbp:frameset>
<mbp:slave-frame display="bottom" device="all" breadth="auto" leftmargin="0" rightmargin="0" bottommargin="0" topmargin="0">
<div align="center" bgcolor="yellow"/>
<a onclick="index_search()">Dictionary Search</a>
</div>
</mbp:slave-frame>
<mbp:pagebreak/>
`

const pageFooter = "</mbp:frameset></body></html>\n"

// writePageHeader writes everything before the first entry of a page.
func writePageHeader(w io.StringWriter, css string) error {
	if _, err := w.WriteString(pageProlog); err != nil {
		return err
	}
	if css != "" {
		if _, err := w.WriteString("<head><style>\n" + css + "\n</style></head>\n"); err != nil {
			return err
		}
	}
	_, err := w.WriteString(pageFrameset)
	return err
}

func writePageFooter(w io.StringWriter) error {
	_, err := w.WriteString(pageFooter)
	return err
}

// writeEntry writes one entry block.
func writeEntry(w io.StringWriter, e db.Entry) error {
	var b strings.Builder
	b.Grow(len(e.Explanation) + 256)
	b.WriteString(`<idx:entry name="word" scriptable="yes" id="`)
	b.WriteString(html.EscapeString(e.ID))
	b.WriteString(`">` + "\n" + `<idx:orth value="`)
	b.WriteString(html.EscapeString(e.Headword))
	b.WriteString(`">`)
	b.WriteString(InflectionBlock(e.Inflections))
	b.WriteString(`</idx:orth><idx:key key="`)
	b.WriteString(html.EscapeString(DisplayKey(e.Headword)))
	b.WriteString(`"/>` + "\n")
	b.WriteString(e.Explanation)
	b.WriteString("\n</idx:entry>\n<mbp:pagebreak/>\n")
	_, err := w.WriteString(b.String())
	return err
}

// InflectionBlock renders forms as an idx:infl element, or nothing when
// there are no forms.
func InflectionBlock(forms []string) string {
	if len(forms) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("<idx:infl>")
	for _, f := range forms {
		b.WriteString(`<idx:iform name="" value="`)
		b.WriteString(html.EscapeString(f))
		b.WriteString(`" />`)
	}
	b.WriteString("</idx:infl>")
	return b.String()
}

// DisplayKey is the lookup key readers match typed words against.
func DisplayKey(headword string) string {
	return norm.NFC.String(strings.TrimSpace(headword))
}
