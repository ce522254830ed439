package viewer

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"io/fs"
	"net/http"

	"github.com/yuin/goldmark"
	highlighting "github.com/yuin/goldmark-highlighting/v2"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/parser"
)

//go:embed static
var staticFS embed.FS

//go:embed help.md
var helpMarkdown []byte

var pageTemplates = template.Must(template.ParseFS(staticFS, "static/*.tmpl"))

type pageData struct {
	Title  string
	Prefix string
	Body   template.HTML
}

func renderIndex(title, prefix string) ([]byte, error) {
	var buf bytes.Buffer
	if err := pageTemplates.ExecuteTemplate(&buf, "index.html.tmpl", pageData{Title: title, Prefix: prefix}); err != nil {
		return nil, fmt.Errorf("rendering index: %w", err)
	}
	return buf.Bytes(), nil
}

func renderHelp(title, prefix string) ([]byte, error) {
	md := goldmark.New(
		goldmark.WithExtensions(
			extension.GFM,
			highlighting.NewHighlighting(
				highlighting.WithStyle("github"),
			),
		),
		goldmark.WithParserOptions(
			parser.WithAutoHeadingID(),
		),
	)

	var body bytes.Buffer
	if err := md.Convert(helpMarkdown, &body); err != nil {
		return nil, fmt.Errorf("converting help: %w", err)
	}

	var buf bytes.Buffer
	data := pageData{Title: title, Prefix: prefix, Body: template.HTML(body.String())}
	if err := pageTemplates.ExecuteTemplate(&buf, "help.html.tmpl", data); err != nil {
		return nil, fmt.Errorf("rendering help: %w", err)
	}
	return buf.Bytes(), nil
}

// ServeIndex serves the viewer page.
func (v *Viewer) ServeIndex(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(v.index)
}

// ServeHelp serves the usage page.
func (v *Viewer) ServeHelp(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(v.help)
}

func (v *Viewer) assetHandler() http.Handler {
	sub, err := fs.Sub(staticFS, "static/assets")
	if err != nil {
		panic(err)
	}
	return http.StripPrefix(v.prefix+"assets/", http.FileServer(http.FS(sub)))
}
