// Package pdf lays out simple form transcripts: a letterhead, titled
// sections of label/value lines, and embedded images, on letter pages with
// a footer on every page.
package pdf

import (
	"bytes"
	"fmt"
	"strconv"
	"time"

	"github.com/go-pdf/fpdf"
)

// Page geometry in millimetres.
const (
	margin       = 15.0
	footerHeight = 12.0
	lineHeight   = 4.6
	titleHeight  = 7.0
	labelWidth   = 58.0
	imageGap     = 6.0
	imageLabelH  = 4.5
)

// Options configure a Document.
type Options struct {
	Title      string
	Author     string
	Letterhead []string
	Footer     string
	// Created fixes the embedded creation date so output is reproducible.
	Created time.Time
}

// Field is one label/value line. Optional fields with an empty value are
// left out; other empty values print as N/A.
type Field struct {
	Label    string
	Value    string
	Optional bool
}

func (f Field) hidden() bool { return f.Optional && f.Value == "" }

// Image is an embedded picture scaled to fit within MaxW x MaxH.
type Image struct {
	Label string
	// Type is the fpdf image type: "JPG", "PNG", or "GIF".
	Type string
	Data []byte
	MaxW float64
	MaxH float64
}

// Section is a titled group drawn as one unit when it fits on the page.
type Section struct {
	Title  string
	Fields []Field
	Note   string
	Images []Image
}

// Document wraps an fpdf document.
type Document struct {
	f      *fpdf.Fpdf
	tr     func(string) string
	opts   Options
	images int
	seq    int
}

func New(opts Options) *Document {
	f := fpdf.New("P", "mm", "Letter", "")
	f.SetMargins(margin, margin, margin)
	f.SetAutoPageBreak(true, margin+footerHeight)
	f.SetCompression(true)
	f.SetCatalogSort(true)
	if !opts.Created.IsZero() {
		f.SetCreationDate(opts.Created.UTC())
		f.SetModificationDate(opts.Created.UTC())
	}
	tr := f.UnicodeTranslatorFromDescriptor("")
	if opts.Title != "" {
		f.SetTitle(tr(opts.Title), false)
	}
	if opts.Author != "" {
		f.SetAuthor(tr(opts.Author), false)
	}
	d := &Document{f: f, tr: tr, opts: opts}
	f.SetFooterFunc(d.footer)
	f.AddPage()
	d.letterhead()
	return d
}

func (d *Document) letterhead() {
	if len(d.opts.Letterhead) == 0 {
		return
	}
	w := d.contentWidth()
	d.f.SetFont("Helvetica", "B", 13)
	d.f.CellFormat(w, 6, d.tr(d.opts.Letterhead[0]), "", 1, "C", false, 0, "")
	d.f.SetFont("Helvetica", "", 9)
	for _, line := range d.opts.Letterhead[1:] {
		d.f.CellFormat(w, 4.5, d.tr(line), "", 1, "C", false, 0, "")
	}
	d.rule()
}

func (d *Document) footer() {
	d.f.SetY(-(margin + footerHeight) + 4)
	d.f.SetFont("Helvetica", "I", 7)
	d.f.SetTextColor(102, 102, 102)
	w := d.contentWidth()
	if d.opts.Footer != "" {
		d.f.CellFormat(w, 4, d.tr(d.opts.Footer), "", 1, "C", false, 0, "")
	}
	d.f.CellFormat(w, 4, "Page "+strconv.Itoa(d.f.PageNo()), "", 0, "C", false, 0, "")
	d.f.SetTextColor(0, 0, 0)
}

func (d *Document) rule() {
	y := d.f.GetY() + 1.5
	left, _, right, _ := d.f.GetMargins()
	pw, _ := d.f.GetPageSize()
	d.f.SetDrawColor(0, 0, 0)
	d.f.Line(left, y, pw-right, y)
	d.f.SetY(y + 2.5)
}

func (d *Document) contentWidth() float64 {
	pw, _ := d.f.GetPageSize()
	left, _, right, _ := d.f.GetMargins()
	return pw - left - right
}

// Title draws a centred heading and an optional right-aligned caption.
func (d *Document) Title(title, caption string) {
	w := d.contentWidth()
	d.f.SetFont("Helvetica", "B", 12)
	d.f.CellFormat(w, titleHeight, d.tr(title), "", 1, "C", false, 0, "")
	if caption != "" {
		d.f.SetFont("Helvetica", "", 8)
		d.f.CellFormat(w, 4.5, d.tr(caption), "", 1, "R", false, 0, "")
	}
	d.f.Ln(1)
}

type placed struct {
	img  Image
	name string
	w, h float64
}

// Section draws s, starting a new page first when its estimated height
// does not fit in the space left on the current one. A section left with
// no fields, note or images is not drawn. An image fpdf cannot register
// puts the document in an error state and the error is returned.
func (d *Document) Section(s Section) error {
	imgs := d.register(s.Images)
	if d.f.Err() {
		return d.f.Error()
	}
	s.Fields = visible(s.Fields)
	if len(s.Fields) == 0 && s.Note == "" && len(imgs) == 0 {
		return nil
	}

	need := d.estimate(s, imgs)
	_, ph := d.f.GetPageSize()
	limit := ph - margin - footerHeight
	if d.f.GetY()+need > limit && d.f.GetY() > margin+1 {
		d.f.AddPage()
	}

	w := d.contentWidth()
	d.f.SetFont("Helvetica", "BU", 10)
	d.f.CellFormat(w, titleHeight, d.tr(s.Title), "", 1, "L", false, 0, "")

	for _, fld := range s.Fields {
		d.field(fld)
	}
	if s.Note != "" {
		d.f.SetFont("Helvetica", "", 8)
		d.f.MultiCell(w, lineHeight, d.tr(s.Note), "", "L", false)
	}
	d.drawImages(imgs)
	d.f.Ln(2)

	if d.f.Err() {
		return d.f.Error()
	}
	return nil
}

func visible(fields []Field) []Field {
	out := make([]Field, 0, len(fields))
	for _, f := range fields {
		if !f.hidden() {
			out = append(out, f)
		}
	}
	return out
}

func (d *Document) field(fld Field) {
	value := fld.Value
	if value == "" {
		value = "N/A"
	}
	d.f.SetFont("Helvetica", "B", 8)
	d.f.CellFormat(labelWidth, lineHeight, d.tr(fld.Label+":"), "", 0, "L", false, 0, "")
	d.f.SetFont("Helvetica", "", 8)
	d.f.MultiCell(d.contentWidth()-labelWidth, lineHeight, d.tr(value), "", "L", false)
}

// estimate returns the height s will take with the current fonts.
func (d *Document) estimate(s Section, imgs []placed) float64 {
	h := titleHeight + 2
	valueW := d.contentWidth() - labelWidth
	d.f.SetFont("Helvetica", "", 8)
	for _, fld := range s.Fields {
		v := fld.Value
		if v == "" {
			v = "N/A"
		}
		lines := len(d.f.SplitLines([]byte(d.tr(v)), valueW))
		if lines < 1 {
			lines = 1
		}
		h += float64(lines) * lineHeight
	}
	if s.Note != "" {
		h += float64(len(d.f.SplitLines([]byte(d.tr(s.Note)), d.contentWidth()))) * lineHeight
	}
	for _, row := range d.imageRows(imgs) {
		h += rowHeight(row)
	}
	return h
}

func (d *Document) register(images []Image) []placed {
	var out []placed
	for _, img := range images {
		if len(img.Data) == 0 {
			continue
		}
		d.seq++
		name := "img" + strconv.Itoa(d.seq)
		info := d.f.RegisterImageOptionsReader(name, fpdf.ImageOptions{ImageType: img.Type}, bytes.NewReader(img.Data))
		if info == nil || d.f.Err() {
			return out
		}
		w, h := fit(info.Width(), info.Height(), img.MaxW, img.MaxH)
		out = append(out, placed{img: img, name: name, w: w, h: h})
	}
	return out
}

// imageRows groups images left to right, wrapping at the content width.
func (d *Document) imageRows(imgs []placed) [][]placed {
	var rows [][]placed
	var cur []placed
	used := 0.0
	width := d.contentWidth()
	for _, p := range imgs {
		if len(cur) > 0 && used+imageGap+p.w > width {
			rows = append(rows, cur)
			cur, used = nil, 0
		}
		if len(cur) > 0 {
			used += imageGap
		}
		cur = append(cur, p)
		used += p.w
	}
	if len(cur) > 0 {
		rows = append(rows, cur)
	}
	return rows
}

func rowHeight(row []placed) float64 {
	maxH := 0.0
	for _, p := range row {
		if p.h > maxH {
			maxH = p.h
		}
	}
	return imageLabelH + maxH + 3
}

func (d *Document) drawImages(imgs []placed) {
	left, _, _, _ := d.f.GetMargins()
	_, ph := d.f.GetPageSize()
	for _, row := range d.imageRows(imgs) {
		rh := rowHeight(row)
		if d.f.GetY()+rh > ph-margin-footerHeight {
			d.f.AddPage()
		}
		y := d.f.GetY()
		x := left
		for _, p := range row {
			d.f.SetXY(x, y)
			d.f.SetFont("Helvetica", "B", 7)
			d.f.CellFormat(p.w, imageLabelH, d.tr(p.img.Label), "", 0, "L", false, 0, "")
			d.f.ImageOptions(p.name, x, y+imageLabelH, p.w, p.h, false, fpdf.ImageOptions{ImageType: p.img.Type}, 0, "")
			d.f.SetDrawColor(204, 204, 204)
			d.f.Rect(x, y+imageLabelH, p.w, p.h, "D")
			d.images++
			x += p.w + imageGap
		}
		d.f.SetXY(left, y+rh)
	}
	d.f.SetDrawColor(0, 0, 0)
}

// fit scales (w, h) to the largest size within (maxW, maxH) keeping the
// aspect ratio. Images smaller than the box are scaled up to touch it.
func fit(w, h, maxW, maxH float64) (float64, float64) {
	if w <= 0 || h <= 0 {
		return maxW, maxH
	}
	scale := maxW / w
	if s := maxH / h; s < scale {
		scale = s
	}
	return w * scale, h * scale
}

// ImageCount is the number of images drawn so far.
func (d *Document) ImageCount() int { return d.images }

// PageCount is the number of pages started so far.
func (d *Document) PageCount() int { return d.f.PageCount() }

// Bytes finalizes the document.
func (d *Document) Bytes() ([]byte, error) {
	var buf bytes.Buffer
	if err := d.f.Output(&buf); err != nil {
		return nil, fmt.Errorf("render pdf: %w", err)
	}
	return buf.Bytes(), nil
}
