package intake

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/redmonddental/intake/internal/platform/imaging"
	"github.com/redmonddental/intake/internal/platform/pdf"
)

func cardURI(t *testing.T) string {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 320, 200))
	for y := 0; y < 200; y++ {
		for x := 0; x < 320; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 90, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode: %v", err)
	}
	return imaging.EncodeDataURI("image/png", buf.Bytes())
}

func TestRenderTranscript_SignaturesOnly(t *testing.T) {
	v := FromRow(ToRow(Meta{Timestamp: fixedNow, Status: StatusNew, SubmissionID: "abc"}, sampleRecord()))
	tr, err := RenderTranscript(v)
	if err != nil {
		t.Fatalf("RenderTranscript: %v", err)
	}
	if tr.Images != 2 {
		t.Errorf("Images = %d, want 2", tr.Images)
	}
	if !bytes.HasPrefix(tr.PDF, []byte("%PDF-")) {
		t.Error("not a pdf")
	}
	if tr.Pages > 2 {
		t.Errorf("Pages = %d, want at most 2", tr.Pages)
	}
}

func TestTranscriptSections_OmitsEmptyOptionalAnswers(t *testing.T) {
	v := FromRow(ToRow(Meta{Timestamp: fixedNow}, sampleRecord()))

	titles := map[string][]pdf.Field{}
	for _, s := range transcriptSections(v) {
		var shown []pdf.Field
		for _, f := range s.Fields {
			if !f.Optional || f.Value != "" {
				shown = append(shown, f)
			}
		}
		titles[s.Title] = shown
	}
	for _, title := range []string{"EMPLOYMENT/SCHOOL", "SPOUSE/PARTNER", "REFERRAL", "PHARMACY"} {
		if n := len(titles[title]); n != 0 {
			t.Errorf("%s shows %d fields for an empty answer set", title, n)
		}
	}

	labels := func(title string) map[string]string {
		out := map[string]string{}
		for _, f := range titles[title] {
			out[f.Label] = f.Value
		}
		return out
	}
	phones := labels("PHONE NUMBERS")
	if _, ok := phones["Home Phone"]; ok {
		t.Error("empty home phone shown")
	}
	if phones["Cell Phone"] != "425-555-0100" {
		t.Errorf("cell phone = %q", phones["Cell Phone"])
	}
	special := labels("HEALTH HISTORY - SPECIAL QUESTIONS")
	if special["Uses Tobacco"] != "No" {
		t.Errorf("Yes/No flags must always print, got %q", special["Uses Tobacco"])
	}
	if _, ok := special["Bisphosphonates Date"]; ok {
		t.Error("empty optional date shown")
	}
}

func TestRenderTranscript_WithInsurance(t *testing.T) {
	rec := sampleRecord()
	rec.InsuranceInfo = InsuranceInfo{
		HasInsurance:        true,
		InsuranceCompany:    "Delta Dental",
		InsuranceCardFront:  cardURI(t),
		InsuranceCardBack:   cardURI(t),
		AssignmentSignature: onePixelPNG,
	}
	rec.PatientInfo.Status = "married"
	rec.PatientInfo.SpousePartnerName = "Sam Doe"

	tr, err := RenderTranscript(FromRow(ToRow(Meta{Timestamp: fixedNow}, rec)))
	if err != nil {
		t.Fatalf("RenderTranscript: %v", err)
	}
	if tr.Images != 5 {
		t.Errorf("Images = %d, want 5", tr.Images)
	}
	if tr.Pages > 3 {
		t.Errorf("Pages = %d, want at most 3", tr.Pages)
	}
}

func TestRenderTranscript_SkipsUndecodableImages(t *testing.T) {
	row := ToRow(Meta{Timestamp: fixedNow}, sampleRecord())
	row[ColumnOf(KeyHIPAASignature)] = "data:image/png;base64,AAAA"
	tr, err := RenderTranscript(FromRow(row))
	if err != nil {
		t.Fatalf("RenderTranscript: %v", err)
	}
	if tr.Images != 1 {
		t.Errorf("Images = %d, want 1", tr.Images)
	}
}

func TestRenderTranscript_Deterministic(t *testing.T) {
	v := FromRow(ToRow(Meta{Timestamp: fixedNow, Status: StatusNew}, sampleRecord()))
	a, err := RenderTranscript(v)
	if err != nil {
		t.Fatalf("RenderTranscript: %v", err)
	}
	b, _ := RenderTranscript(v)
	if !bytes.Equal(a.PDF, b.PDF) {
		t.Error("renders differ")
	}
}

func TestPDFFilename(t *testing.T) {
	cases := map[[2]string]string{
		{"Jane O'Doe", "5"}:      "patient-form-Jane-O-Doe-5.pdf",
		{"", "7"}:                "patient-form-Patient-7.pdf",
		{"José Ñ", "abc-123"}:    "patient-form-Jos----abc-123.pdf",
	}
	for in, want := range cases {
		if got := PDFFilename(in[0], in[1]); got != want {
			t.Errorf("PDFFilename(%q, %q) = %q, want %q", in[0], in[1], got, want)
		}
	}
}
