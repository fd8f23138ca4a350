// Package render produces the print documents handed to the browser print
// dialog.
package render

import (
	"html/template"
	"io"
	"strconv"
	"strings"

	"github.com/prince-dkc/universal-qr-print/internal/label"
	"github.com/prince-dkc/universal-qr-print/internal/table"
)

// ImageSource maps an image handle to a URL the browser can load
type ImageSource func(label.ImageRef) string

var funcs = template.FuncMap{
	"mm": func(v float64) string {
		return strconv.FormatFloat(v, 'f', -1, 64)
	},
	"heading": func(col string) string {
		return strings.ToUpper(strings.ReplaceAll(col, "_", " "))
	},
}

var (
	labelsTmpl = template.Must(template.New("labels").Funcs(funcs).Parse(labelsHTML))
	tableTmpl  = template.Must(template.New("table").Funcs(funcs).Parse(tableHTML))
	testTmpl   = template.Must(template.New("test").Funcs(funcs).Parse(testHTML))
)

type tileView struct {
	Src      string
	Alt      string
	WidthMM  float64
	HeightMM float64
}

type labelsView struct {
	Title     string
	Page      label.Dimensions
	Rows      [][]tileView
	AutoPrint bool
}

// LabelOptions controls a label document
type LabelOptions struct {
	Title     string
	PageSize  label.PageSize
	AutoPrint bool
}

// Labels writes the tiled label sheet. The page box matches the label
// stock; each tile carries its own size in millimeters.
func Labels(w io.Writer, rows []label.Row, src ImageSource, opts LabelOptions) error {
	view := labelsView{
		Title:     opts.Title,
		Page:      opts.PageSize.Dimensions(),
		Rows:      make([][]tileView, 0, len(rows)),
		AutoPrint: opts.AutoPrint,
	}
	if view.Title == "" {
		view.Title = "Print QR Labels"
	}
	for _, r := range rows {
		tiles := make([]tileView, 0, len(r))
		for _, c := range r {
			tiles = append(tiles, tileView{
				Src:      src(c.Image),
				Alt:      c.Code,
				WidthMM:  c.WidthMM,
				HeightMM: c.HeightMM,
			})
		}
		view.Rows = append(view.Rows, tiles)
	}
	return labelsTmpl.Execute(w, view)
}

type tableRowView struct {
	Src   string
	Alt   string
	Clip  bool
	Cells []string
}

type tableView struct {
	Headers   []string
	Rows      []tableRowView
	AutoPrint bool
}

// Table writes the selected detail-table rows. The select column is never
// part of the output and the qr_code column shows the label image.
func Table(w io.Writer, columns []string, rows []table.RowView, src ImageSource, autoPrint bool) error {
	view := tableView{Headers: columns, AutoPrint: autoPrint}
	for _, r := range rows {
		cells := r.Cells
		if len(cells) > 0 {
			// first data column is the code itself, rendered as the image
			cells = cells[1:]
		}
		view.Rows = append(view.Rows, tableRowView{
			Src:   src(r.Record.Image),
			Alt:   r.Record.Code,
			Clip:  r.ClipCaption,
			Cells: cells,
		})
	}
	return tableTmpl.Execute(w, view)
}

// TestPage writes the printer alignment page: one 50x50mm test image on
// a 100x50mm label.
func TestPage(w io.Writer, imageURL string) error {
	return testTmpl.Execute(w, struct{ Src string }{Src: imageURL})
}

const labelsHTML = `<!DOCTYPE html>
<html>
<head>
<meta charset="UTF-8">
<title>{{.Title}}</title>
<style>
@page { margin: 0; size: {{mm .Page.WidthMM}}mm {{mm .Page.HeightMM}}mm; }
body { margin: 0; padding: 0; print-color-adjust: exact; -webkit-print-color-adjust: exact; }
.sheet { display: grid; gap: 0; margin: 0; padding: 0; }
.row { display: flex; flex-direction: row; margin: 0; padding: 0; }
.tile { display: flex; flex-direction: column; align-items: center; justify-content: center; margin: 0; padding: 0; }
.tile img { width: 100%; height: 100%; object-fit: contain; display: block; }
</style>
</head>
<body>
<div class="sheet">
{{- range .Rows}}
<div class="row">
{{- range .}}
<div class="tile" style="width: {{mm .WidthMM}}mm; height: {{mm .HeightMM}}mm"><img src="{{.Src}}" alt="{{.Alt}}"></div>
{{- end}}
</div>
{{- end}}
</div>
{{- if .AutoPrint}}
<script>window.onload = function () { window.focus(); window.print(); };</script>
{{- end}}
</body>
</html>
`

const tableHTML = `<!DOCTYPE html>
<html>
<head>
<meta charset="UTF-8">
<title>Print QR Table</title>
<style>
table { border-collapse: collapse; width: 100%; }
th, td { border: 1px solid #000; padding: 4px; text-align: center; }
img { display: block; margin: 0 auto; width: 100px; height: auto; }
.qr-clip { width: 100px; overflow: hidden; margin: 0 auto; }
.qr-clip img { width: 200px; max-width: none; object-fit: cover; object-position: left center; clip-path: inset(0 50% 0 0); }
</style>
</head>
<body>
<table>
<thead><tr>{{range .Headers}}<th>{{heading .}}</th>{{end}}</tr></thead>
<tbody>
{{- range .Rows}}
<tr><td class="qr-cell">{{if .Clip}}<div class="qr-clip"><img src="{{.Src}}" alt="{{.Alt}}"></div>{{else}}<img src="{{.Src}}" alt="{{.Alt}}">{{end}}</td>{{range .Cells}}<td>{{.}}</td>{{end}}</tr>
{{- end}}
</tbody>
</table>
{{- if .AutoPrint}}
<script>window.onload = function () { window.focus(); window.print(); };</script>
{{- end}}
</body>
</html>
`

const testHTML = `<!DOCTYPE html>
<html>
<head>
<meta charset="UTF-8">
<title>Test Printer</title>
<style>
@page { margin: 0; padding: 0; size: 100mm 50mm; }
body { margin: 0; padding: 0; print-color-adjust: exact; -webkit-print-color-adjust: exact; }
img { max-width: 100%; width: 50mm; height: 50mm; display: block; }
</style>
</head>
<body>
<img src="{{.Src}}" alt="test">
<script>window.onload = function () { window.focus(); window.print(); };</script>
</body>
</html>
`
