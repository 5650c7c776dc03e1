package pdf

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"strconv"
	"testing"
	"time"
)

func jpegBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for i := range img.Pix {
		img.Pix[i] = 200
	}
	img.Set(0, 0, color.Black)
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, nil); err != nil {
		t.Fatalf("encode: %v", err)
	}
	return buf.Bytes()
}

func newDoc() *Document {
	return New(Options{
		Title:      "Transcript",
		Letterhead: []string{"Practice", "Street 1", "City"},
		Footer:     "Confidential.",
		Created:    time.Date(2024, 5, 14, 16, 30, 0, 0, time.UTC),
	})
}

func TestDocument_Basic(t *testing.T) {
	d := newDoc()
	d.Title("FORM", "Submitted: today")
	err := d.Section(Section{
		Title:  "DETAILS",
		Fields: []Field{{Label: "Name", Value: "Jane"}, {Label: "Empty"}},
		Images: []Image{
			{Label: "Front", Type: "JPG", Data: jpegBytes(t, 400, 250), MaxW: 80, MaxH: 50},
			{Label: "Back", Type: "JPG", Data: jpegBytes(t, 400, 250), MaxW: 80, MaxH: 50},
			{Label: "None", Type: "JPG", MaxW: 80, MaxH: 50},
		},
	})
	if err != nil {
		t.Fatalf("Section: %v", err)
	}
	if d.ImageCount() != 2 {
		t.Errorf("ImageCount = %d, want 2", d.ImageCount())
	}
	out, err := d.Bytes()
	if err != nil {
		t.Fatalf("Bytes: %v", err)
	}
	if !bytes.HasPrefix(out, []byte("%PDF-")) {
		t.Error("output is not a pdf")
	}
}

func TestDocument_Deterministic(t *testing.T) {
	render := func() []byte {
		d := newDoc()
		_ = d.Section(Section{Title: "A", Fields: []Field{{Label: "x", Value: "y"}}})
		out, err := d.Bytes()
		if err != nil {
			t.Fatalf("Bytes: %v", err)
		}
		return out
	}
	if !bytes.Equal(render(), render()) {
		t.Error("two renders of the same content differ")
	}
}

func TestDocument_BreaksOnlyWhenSectionDoesNotFit(t *testing.T) {
	d := newDoc()
	_ = d.Section(Section{Title: "SMALL", Fields: []Field{{Label: "a", Value: "b"}}})
	if d.PageCount() != 1 {
		t.Fatalf("small section started a new page")
	}

	fields := make([]Field, 30)
	for i := range fields {
		fields[i] = Field{Label: "Field " + strconv.Itoa(i), Value: "value"}
	}
	for i := 0; i < 4; i++ {
		if err := d.Section(Section{Title: "BLOCK " + strconv.Itoa(i), Fields: fields}); err != nil {
			t.Fatalf("Section: %v", err)
		}
	}
	if d.PageCount() < 2 {
		t.Errorf("PageCount = %d, expected sections to spill onto more pages", d.PageCount())
	}
}

func TestDocument_OptionalFields(t *testing.T) {
	d := newDoc()
	start := d.f.GetY()
	err := d.Section(Section{Title: "EMPTY", Fields: []Field{
		{Label: "Employer", Optional: true},
		{Label: "Phone", Optional: true},
	}})
	if err != nil {
		t.Fatalf("Section: %v", err)
	}
	if d.f.GetY() != start {
		t.Error("section with only empty optional fields was drawn")
	}

	with := Section{Title: "MIXED", Fields: []Field{
		{Label: "Name", Value: "Jane"},
		{Label: "Nickname", Optional: true},
		{Label: "Email", Value: "jane@example.com", Optional: true},
		{Label: "SSN"},
	}}
	without := Section{Title: "MIXED", Fields: []Field{
		{Label: "Name", Value: "Jane"},
		{Label: "Email", Value: "jane@example.com"},
		{Label: "SSN"},
	}}
	if got, want := d.estimate(Section{Title: with.Title, Fields: visible(with.Fields)}, nil), d.estimate(without, nil); got != want {
		t.Errorf("estimate = %v, want %v", got, want)
	}

	before := d.f.GetY()
	if err := d.Section(with); err != nil {
		t.Fatalf("Section: %v", err)
	}
	drawn := d.f.GetY() - before
	want := titleHeight + 3*lineHeight + 2
	if diff := drawn - want; diff > 0.01 || diff < -0.01 {
		t.Errorf("section height = %v, want %v", drawn, want)
	}
}

func TestDocument_UnregistrableImageAborts(t *testing.T) {
	d := newDoc()
	err := d.Section(Section{Title: "BAD", Images: []Image{
		{Label: "Broken", Type: "JPG", Data: []byte("not a jpeg"), MaxW: 10, MaxH: 10},
	}})
	if err == nil {
		t.Fatal("expected an error for an image fpdf cannot read")
	}
	if _, err := d.Bytes(); err == nil {
		t.Error("document should stay in an error state")
	}
}

func TestFit(t *testing.T) {
	cases := []struct {
		w, h, mw, mh, ww, wh float64
	}{
		{400, 250, 80, 50, 80, 50},
		{400, 100, 80, 50, 80, 20},
		{100, 400, 70, 20, 5, 20},
		{0, 0, 70, 20, 70, 20},
	}
	for _, c := range cases {
		w, h := fit(c.w, c.h, c.mw, c.mh)
		if w != c.ww || h != c.wh {
			t.Errorf("fit(%v,%v,%v,%v) = %v,%v want %v,%v", c.w, c.h, c.mw, c.mh, w, h, c.ww, c.wh)
		}
	}
}
