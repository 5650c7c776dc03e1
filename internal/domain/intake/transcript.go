package intake

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/redmonddental/intake/internal/platform/imaging"
	"github.com/redmonddental/intake/internal/platform/pdf"
)

// Practice details printed on every transcript and notification email.
var Practice = struct {
	Name    string
	Doctor  string
	Street  string
	City    string
	Phone   string
	Website string
}{
	Name:    "Redmond Dental Smiles",
	Doctor:  "MALINDA LAM-GERSHONY, DDS",
	Street:  "16710 NE 79th ST-Suite 100",
	City:    "Redmond, WA 98052",
	Phone:   "425.867.1484",
	Website: "redmonddentalsmiles.com",
}

const confidentialityNotice = "This document contains confidential patient information protected under HIPAA. Unauthorized disclosure is prohibited."

// Image bounds in millimetres.
const (
	cardMaxW      = 70.0
	cardMaxH      = 44.0
	signatureMaxW = 70.0
	signatureMaxH = 20.0
)

// Transcript is a rendered submission.
type Transcript struct {
	PDF    []byte
	Images int
	Pages  int
}

// RenderTranscript lays out a decoded row as a PDF. Empty optional answers
// and sections with nothing to show are left out so a typical submission
// fits on two pages.
func RenderTranscript(v View) (*Transcript, error) {
	doc := pdf.New(pdf.Options{
		Title:      "Patient Registration Form - " + v.PatientName(),
		Author:     Practice.Name,
		Letterhead: []string{Practice.Doctor, Practice.Street, Practice.City, Practice.Phone},
		Footer:     confidentialityNotice,
		Created:    v.Meta.Timestamp,
	})

	status := v.Status()
	if status == "" {
		status = StatusNew
	}
	submitted := v.Text(KeyTimestamp)
	if !v.Meta.Timestamp.IsZero() {
		submitted = v.Meta.Timestamp.UTC().Format("Jan 2, 2006 3:04 PM MST")
	}
	doc.Title("PATIENT REGISTRATION FORM", fmt.Sprintf("Submitted: %s | Status: %s", submitted, status))

	for _, s := range transcriptSections(v) {
		if err := doc.Section(s); err != nil {
			return nil, fmt.Errorf("render section %s: %w", s.Title, err)
		}
	}
	out, err := doc.Bytes()
	if err != nil {
		return nil, err
	}
	return &Transcript{PDF: out, Images: doc.ImageCount(), Pages: doc.PageCount()}, nil
}

func transcriptSections(v View) []pdf.Section {
	r := &v.Record
	p := &r.PatientInfo
	ins := &r.InsuranceInfo
	mh := &r.MedicalHistory
	cs := &r.ConsentSignatures
	yn := FormatBool

	sections := []pdf.Section{
		{Title: "PATIENT INFORMATION", Fields: []pdf.Field{
			{Label: "Patient Name", Value: p.PatientName},
			{Label: "Date of Birth", Value: p.Birthdate},
			{Label: "Age", Value: p.Age, Optional: true},
			{Label: "Sex", Value: p.Sex},
			{Label: "SSN", Value: p.SSN, Optional: true},
			{Label: "Marital Status", Value: p.Status},
			{Label: "Address", Value: p.Address},
			{Label: "City", Value: p.City},
			{Label: "State", Value: p.State},
			{Label: "ZIP", Value: p.Zip},
			{Label: "Email", Value: p.Email, Optional: true},
		}},
		{Title: "PHONE NUMBERS", Fields: []pdf.Field{
			{Label: "Home Phone", Value: p.PhoneHome, Optional: true},
			{Label: "Cell Phone", Value: p.PhoneCell},
			{Label: "Work Phone", Value: p.PhoneWork, Optional: true},
		}},
		{Title: "EMERGENCY CONTACT", Fields: []pdf.Field{
			{Label: "Name", Value: p.EmergencyContact},
			{Label: "Relationship", Value: p.EmergencyRelationship},
			{Label: "Phone", Value: p.EmergencyPhone},
		}},
		{Title: "EMPLOYMENT/SCHOOL", Fields: []pdf.Field{
			{Label: "Employer/School", Value: p.EmployerSchool, Optional: true},
			{Label: "Occupation/Grade", Value: p.OccupationGrade, Optional: true},
			{Label: "Phone", Value: p.WorkSchoolPhone, Optional: true},
		}},
		{Title: "SPOUSE/PARTNER", Fields: []pdf.Field{
			{Label: "Name", Value: p.SpousePartnerName, Optional: true},
			{Label: "Date of Birth", Value: p.SpouseBirthdate, Optional: true},
			{Label: "SSN", Value: p.SpouseSSN, Optional: true},
			{Label: "Employer", Value: p.SpouseEmployer, Optional: true},
			{Label: "Work Phone", Value: p.SpouseWorkPhone, Optional: true},
		}},
		{Title: "REFERRAL", Fields: []pdf.Field{
			{Label: "Referral Source", Value: p.ReferralSource, Optional: true},
		}},
	}

	insurance := pdf.Section{Title: "DENTAL INSURANCE", Fields: []pdf.Field{
		{Label: "Has Insurance", Value: yn(ins.HasInsurance)},
	}}
	if ins.HasInsurance {
		insurance.Fields = append(insurance.Fields,
			pdf.Field{Label: "Account Responsible", Value: ins.AccountResponsible, Optional: true},
			pdf.Field{Label: "Account Relationship", Value: ins.AccountRelationship, Optional: true},
			pdf.Field{Label: "Insurance Company", Value: ins.InsuranceCompany, Optional: true},
			pdf.Field{Label: "Group #", Value: ins.InsuranceGroup, Optional: true},
			pdf.Field{Label: "Member ID", Value: ins.InsuranceID, Optional: true},
			pdf.Field{Label: "Subscriber Name", Value: ins.SubscriberName, Optional: true},
			pdf.Field{Label: "Subscriber DOB", Value: ins.SubscriberBirthdate, Optional: true},
			pdf.Field{Label: "Subscriber SSN", Value: ins.SubscriberSSN, Optional: true},
			pdf.Field{Label: "Subscriber Relationship", Value: ins.SubscriberRelationship, Optional: true},
			pdf.Field{Label: "Assignment Date", Value: ins.AssignmentDate, Optional: true},
		)
		insurance.Images = compactImages(
			embed("Insurance Card Front", v.Image(KeyCardFront), cardMaxW, cardMaxH),
			embed("Insurance Card Back", v.Image(KeyCardBack), cardMaxW, cardMaxH),
			embed("Assignment Signature", v.Image(KeyAssignmentSignature), signatureMaxW, signatureMaxH),
		)
	}
	sections = append(sections, insurance)

	sections = append(sections,
		pdf.Section{Title: "DENTAL HISTORY", Fields: []pdf.Field{
			{Label: "Reason for Visit", Value: mh.ReasonForVisit},
			{Label: "Former Dentist", Value: mh.FormerDentist, Optional: true},
			{Label: "Former Dentist City", Value: mh.FormerDentistCity, Optional: true},
			{Label: "Last Dental Visit", Value: mh.LastDentalVisit, Optional: true},
			{Label: "Currently in Pain", Value: yn(mh.CurrentlyInPain)},
			{Label: "Problems with Past Dental Work", Value: yn(mh.ProblemsWithPastDentalWork)},
			{Label: "Serious Head/Mouth Injury", Value: yn(mh.SeriousHeadMouthInjury)},
			{Label: "Feelings About Smile", Value: mh.FeelingsAboutSmile, Optional: true},
			{Label: "Problems with Anesthetic", Value: yn(mh.ProblemsWithAnesthetic)},
			{Label: "Anesthetic Details", Value: mh.AnestheticDetails, Optional: true},
		}},
		pdf.Section{Title: "MEDICAL HISTORY", Fields: []pdf.Field{
			{Label: "Under Physician Care", Value: yn(mh.UnderPhysicianCare)},
			{Label: "Physician Name", Value: mh.PhysicianName, Optional: true},
			{Label: "Physician Phone", Value: mh.PhysicianPhone, Optional: true},
			{Label: "In Good Health", Value: yn(mh.InGoodHealth)},
			{Label: "Recent Health Changes", Value: yn(mh.RecentHealthChanges)},
			{Label: "Health Change Details", Value: mh.HealthChangesDetails, Optional: true},
			{Label: "Last Physical Exam", Value: mh.LastPhysicalExam, Optional: true},
			{Label: "Serious Illness (5 Years)", Value: yn(mh.SeriousIllnessLast5Years)},
			{Label: "Illness Details", Value: mh.IllnessDetails, Optional: true},
		}},
		pdf.Section{Title: "MEDICATIONS & ALLERGIES", Fields: []pdf.Field{
			{Label: "Current Medications", Value: mh.CurrentMedications, Optional: true},
			{Label: "Allergies", Value: strings.Join(mh.Allergies, ", "), Optional: true},
			{Label: "Other Allergies", Value: mh.OtherAllergies, Optional: true},
		}},
		pdf.Section{Title: "MEDICAL CONDITIONS", Fields: []pdf.Field{
			{Label: "Conditions", Value: strings.Join(mh.MedicalConditions, ", "), Optional: true},
		}},
		pdf.Section{Title: "HEALTH HISTORY - SPECIAL QUESTIONS", Fields: []pdf.Field{
			{Label: "Taken Fen-Phen", Value: yn(mh.TakenFenPhen)},
			{Label: "Taking Fosamax/Actonel", Value: yn(mh.TakingFosamaxActonel)},
			{Label: "Taking Bisphosphonates", Value: yn(mh.TakingBisphosphonates)},
			{Label: "Bisphosphonates Date", Value: mh.BisphosphonatesDate, Optional: true},
			{Label: "Has Joint Replacement", Value: yn(mh.HasJointReplacement)},
			{Label: "Joint Replacement Date", Value: mh.JointReplacementDate, Optional: true},
			{Label: "Uses Controlled Substances", Value: yn(mh.UsesControlledSubstances)},
			{Label: "Uses Tobacco", Value: yn(mh.UsesTobacco)},
			{Label: "Drinks Alcohol", Value: yn(mh.DrinksAlcohol)},
			{Label: "Alcohol (Last 24 Hours)", Value: mh.AlcoholLast24Hours, Optional: true},
			{Label: "Alcohol (Per Week)", Value: mh.AlcoholPerWeek, Optional: true},
		}},
		pdf.Section{Title: "PREMEDICATION & WOMEN'S HEALTH", Fields: []pdf.Field{
			{Label: "Needs Premedication", Value: yn(mh.NeedsPremedication)},
			{Label: "Is Pregnant", Value: yn(mh.IsPregnant)},
			{Label: "Pregnancy Due Date", Value: mh.PregnancyDueDate, Optional: true},
			{Label: "Is Nursing", Value: yn(mh.IsNursing)},
			{Label: "Takes Birth Control", Value: yn(mh.TakesBirthControl)},
		}},
		pdf.Section{Title: "PHARMACY", Fields: []pdf.Field{
			{Label: "Pharmacy Name", Value: mh.PharmacyName, Optional: true},
			{Label: "Pharmacy Phone", Value: mh.PharmacyPhone, Optional: true},
		}},
		pdf.Section{
			Title: "CONSENT & SIGNATURES",
			Fields: []pdf.Field{
				{Label: "Financial Policy Name", Value: cs.FinancialPolicyName},
				{Label: "Financial Policy Date", Value: cs.FinancialPolicyDate},
				{Label: "HIPAA Patient Name", Value: cs.HIPAAName},
				{Label: "HIPAA Date", Value: cs.HIPAADate},
				{Label: "HIPAA Relationship", Value: cs.HIPAARelationship, Optional: true},
				{Label: "Disclosure to Immediate Family", Value: yn(cs.HIPAADisclosureImmediate)},
				{Label: "Disclosure to Extended Family", Value: yn(cs.HIPAADisclosureExtended)},
				{Label: "Disclosure Other", Value: cs.HIPAADisclosureOther, Optional: true},
			},
			Images: compactImages(
				embed("Financial Policy Signature", v.Image(KeyFinancialSignature), signatureMaxW, signatureMaxH),
				embed("HIPAA Signature", v.Image(KeyHIPAASignature), signatureMaxW, signatureMaxH),
			),
		},
	)

	if notes := v.Text(KeyNotes); notes != "" {
		sections = append(sections, pdf.Section{Title: "STAFF NOTES", Note: notes})
	}
	return sections
}

// embed converts a stored data URI to a JPEG the renderer accepts. Cells
// that are empty or do not decode yield a zero Image.
func embed(label, uri string, maxW, maxH float64) pdf.Image {
	if uri == "" {
		return pdf.Image{}
	}
	res, err := imaging.CompressDataURI(uri)
	if err != nil {
		return pdf.Image{}
	}
	_, data, err := imaging.ParseDataURI(res.DataURI)
	if err != nil {
		return pdf.Image{}
	}
	return pdf.Image{Label: label, Type: "JPG", Data: data, MaxW: maxW, MaxH: maxH}
}

func compactImages(imgs ...pdf.Image) []pdf.Image {
	out := imgs[:0]
	for _, img := range imgs {
		if len(img.Data) > 0 {
			out = append(out, img)
		}
	}
	return out
}

// PDFFilename is the download name for a submission transcript.
func PDFFilename(patientName, id string) string {
	if patientName == "" {
		patientName = "Patient"
	}
	safe := strings.Map(func(r rune) rune {
		if r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)) {
			return r
		}
		return '-'
	}, patientName)
	return fmt.Sprintf("patient-form-%s-%s.pdf", safe, id)
}
