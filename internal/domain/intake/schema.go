package intake

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// SchemaVersion is written into every row this service appends.
const SchemaVersion = "v2"

// ErrSchemaVersion is returned when a row was written with a different layout.
var ErrSchemaVersion = errors.New("row uses an unsupported schema version")

// Kind is the serialization class of a column.
type Kind int

const (
	KindMeta Kind = iota
	KindText
	KindBool
	KindList
	KindImage
)

func (k Kind) String() string {
	switch k {
	case KindMeta:
		return "meta"
	case KindText:
		return "text"
	case KindBool:
		return "bool"
	case KindList:
		return "list"
	case KindImage:
		return "image"
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Column describes one cell position of the row layout.
type Column struct {
	Key    string
	Header string
	Kind   Kind

	text func(*PatientRecord) *string
	flag func(*PatientRecord) *bool
	list func(*PatientRecord) *[]string
}

// Meta column keys.
const (
	KeyTimestamp    = "timestamp"
	KeyStatus       = "status"
	KeyVersion      = "schemaVersion"
	KeySubmissionID = "submissionId"
	KeyNotes        = "notes"
)

// Image column keys.
const (
	KeyCardFront           = "insuranceCardFront"
	KeyCardBack            = "insuranceCardBack"
	KeyAssignmentSignature = "assignmentSignature"
	KeyFinancialSignature  = "financialPolicySignature"
	KeyHIPAASignature      = "hipaaSignature"
)

func meta(key, header string) Column { return Column{Key: key, Header: header, Kind: KindMeta} }

func text(key, header string, f func(*PatientRecord) *string) Column {
	return Column{Key: key, Header: header, Kind: KindText, text: f}
}

func imageCol(key, header string, f func(*PatientRecord) *string) Column {
	return Column{Key: key, Header: header, Kind: KindImage, text: f}
}

func flag(key, header string, f func(*PatientRecord) *bool) Column {
	return Column{Key: key, Header: header, Kind: KindBool, flag: f}
}

func list(key, header string, f func(*PatientRecord) *[]string) Column {
	return Column{Key: key, Header: header, Kind: KindList, list: f}
}

var columns = []Column{
	meta(KeyTimestamp, "Timestamp"),
	meta(KeyStatus, "Status"),
	meta(KeyVersion, "Schema Version"),
	meta(KeySubmissionID, "Submission ID"),

	text("patientName", "Patient Name", func(r *PatientRecord) *string { return &r.PatientInfo.PatientName }),
	text("birthdate", "Birthdate", func(r *PatientRecord) *string { return &r.PatientInfo.Birthdate }),
	text("age", "Age", func(r *PatientRecord) *string { return &r.PatientInfo.Age }),
	text("sex", "Sex", func(r *PatientRecord) *string { return &r.PatientInfo.Sex }),
	text("ssn", "SSN", func(r *PatientRecord) *string { return &r.PatientInfo.SSN }),
	text("maritalStatus", "Marital Status", func(r *PatientRecord) *string { return &r.PatientInfo.Status }),
	text("address", "Address", func(r *PatientRecord) *string { return &r.PatientInfo.Address }),
	text("city", "City", func(r *PatientRecord) *string { return &r.PatientInfo.City }),
	text("state", "State", func(r *PatientRecord) *string { return &r.PatientInfo.State }),
	text("zip", "ZIP", func(r *PatientRecord) *string { return &r.PatientInfo.Zip }),
	text("email", "Email", func(r *PatientRecord) *string { return &r.PatientInfo.Email }),
	text("phoneHome", "Home Phone", func(r *PatientRecord) *string { return &r.PatientInfo.PhoneHome }),
	text("phoneCell", "Cell Phone", func(r *PatientRecord) *string { return &r.PatientInfo.PhoneCell }),
	text("phoneWork", "Work Phone", func(r *PatientRecord) *string { return &r.PatientInfo.PhoneWork }),
	text("emergencyContact", "Emergency Contact", func(r *PatientRecord) *string { return &r.PatientInfo.EmergencyContact }),
	text("emergencyRelationship", "Emergency Relationship", func(r *PatientRecord) *string { return &r.PatientInfo.EmergencyRelationship }),
	text("emergencyPhone", "Emergency Phone", func(r *PatientRecord) *string { return &r.PatientInfo.EmergencyPhone }),
	text("employerSchool", "Employer/School", func(r *PatientRecord) *string { return &r.PatientInfo.EmployerSchool }),
	text("occupationGrade", "Occupation/Grade", func(r *PatientRecord) *string { return &r.PatientInfo.OccupationGrade }),
	text("workSchoolPhone", "Work/School Phone", func(r *PatientRecord) *string { return &r.PatientInfo.WorkSchoolPhone }),
	text("spousePartnerName", "Spouse/Partner Name", func(r *PatientRecord) *string { return &r.PatientInfo.SpousePartnerName }),
	text("spouseBirthdate", "Spouse Birthdate", func(r *PatientRecord) *string { return &r.PatientInfo.SpouseBirthdate }),
	text("spouseSsn", "Spouse SSN", func(r *PatientRecord) *string { return &r.PatientInfo.SpouseSSN }),
	text("spouseEmployer", "Spouse Employer", func(r *PatientRecord) *string { return &r.PatientInfo.SpouseEmployer }),
	text("spouseWorkPhone", "Spouse Work Phone", func(r *PatientRecord) *string { return &r.PatientInfo.SpouseWorkPhone }),
	text("referralSource", "Referral Source", func(r *PatientRecord) *string { return &r.PatientInfo.ReferralSource }),

	flag("hasInsurance", "Has Insurance", func(r *PatientRecord) *bool { return &r.InsuranceInfo.HasInsurance }),
	text("accountResponsible", "Account Responsible", func(r *PatientRecord) *string { return &r.InsuranceInfo.AccountResponsible }),
	text("accountRelationship", "Account Relationship", func(r *PatientRecord) *string { return &r.InsuranceInfo.AccountRelationship }),
	text("insuranceCompany", "Insurance Company", func(r *PatientRecord) *string { return &r.InsuranceInfo.InsuranceCompany }),
	text("insuranceGroup", "Insurance Group", func(r *PatientRecord) *string { return &r.InsuranceInfo.InsuranceGroup }),
	text("insuranceId", "Insurance ID", func(r *PatientRecord) *string { return &r.InsuranceInfo.InsuranceID }),
	text("subscriberName", "Subscriber Name", func(r *PatientRecord) *string { return &r.InsuranceInfo.SubscriberName }),
	text("subscriberBirthdate", "Subscriber Birthdate", func(r *PatientRecord) *string { return &r.InsuranceInfo.SubscriberBirthdate }),
	text("subscriberSsn", "Subscriber SSN", func(r *PatientRecord) *string { return &r.InsuranceInfo.SubscriberSSN }),
	text("subscriberRelationship", "Subscriber Relationship", func(r *PatientRecord) *string { return &r.InsuranceInfo.SubscriberRelationship }),
	imageCol(KeyCardFront, "Insurance Card Front", func(r *PatientRecord) *string { return &r.InsuranceInfo.InsuranceCardFront }),
	imageCol(KeyCardBack, "Insurance Card Back", func(r *PatientRecord) *string { return &r.InsuranceInfo.InsuranceCardBack }),
	imageCol(KeyAssignmentSignature, "Assignment Signature", func(r *PatientRecord) *string { return &r.InsuranceInfo.AssignmentSignature }),
	text("assignmentDate", "Assignment Date", func(r *PatientRecord) *string { return &r.InsuranceInfo.AssignmentDate }),

	text("reasonForVisit", "Reason For Visit", func(r *PatientRecord) *string { return &r.MedicalHistory.ReasonForVisit }),
	text("formerDentist", "Former Dentist", func(r *PatientRecord) *string { return &r.MedicalHistory.FormerDentist }),
	text("formerDentistCity", "Former Dentist City", func(r *PatientRecord) *string { return &r.MedicalHistory.FormerDentistCity }),
	text("lastDentalVisit", "Last Dental Visit", func(r *PatientRecord) *string { return &r.MedicalHistory.LastDentalVisit }),
	flag("currentlyInPain", "Currently In Pain", func(r *PatientRecord) *bool { return &r.MedicalHistory.CurrentlyInPain }),
	flag("problemsWithPastDentalWork", "Problems With Past Dental Work", func(r *PatientRecord) *bool { return &r.MedicalHistory.ProblemsWithPastDentalWork }),
	flag("seriousHeadMouthInjury", "Serious Head/Mouth Injury", func(r *PatientRecord) *bool { return &r.MedicalHistory.SeriousHeadMouthInjury }),
	text("feelingsAboutSmile", "Feelings About Smile", func(r *PatientRecord) *string { return &r.MedicalHistory.FeelingsAboutSmile }),
	flag("problemsWithAnesthetic", "Problems With Anesthetic", func(r *PatientRecord) *bool { return &r.MedicalHistory.ProblemsWithAnesthetic }),
	text("anestheticDetails", "Anesthetic Details", func(r *PatientRecord) *string { return &r.MedicalHistory.AnestheticDetails }),
	flag("underPhysicianCare", "Under Physician Care", func(r *PatientRecord) *bool { return &r.MedicalHistory.UnderPhysicianCare }),
	text("physicianName", "Physician Name", func(r *PatientRecord) *string { return &r.MedicalHistory.PhysicianName }),
	text("physicianPhone", "Physician Phone", func(r *PatientRecord) *string { return &r.MedicalHistory.PhysicianPhone }),
	flag("inGoodHealth", "In Good Health", func(r *PatientRecord) *bool { return &r.MedicalHistory.InGoodHealth }),
	flag("recentHealthChanges", "Recent Health Changes", func(r *PatientRecord) *bool { return &r.MedicalHistory.RecentHealthChanges }),
	text("healthChangesDetails", "Health Changes Details", func(r *PatientRecord) *string { return &r.MedicalHistory.HealthChangesDetails }),
	text("lastPhysicalExam", "Last Physical Exam", func(r *PatientRecord) *string { return &r.MedicalHistory.LastPhysicalExam }),
	flag("seriousIllnessLast5Years", "Serious Illness Last 5 Years", func(r *PatientRecord) *bool { return &r.MedicalHistory.SeriousIllnessLast5Years }),
	text("illnessDetails", "Illness Details", func(r *PatientRecord) *string { return &r.MedicalHistory.IllnessDetails }),
	text("currentMedications", "Current Medications", func(r *PatientRecord) *string { return &r.MedicalHistory.CurrentMedications }),
	list("allergies", "Allergies", func(r *PatientRecord) *[]string { return &r.MedicalHistory.Allergies }),
	text("otherAllergies", "Other Allergies", func(r *PatientRecord) *string { return &r.MedicalHistory.OtherAllergies }),
	list("medicalConditions", "Medical Conditions", func(r *PatientRecord) *[]string { return &r.MedicalHistory.MedicalConditions }),
	flag("takenFenPhen", "Taken Fen-Phen", func(r *PatientRecord) *bool { return &r.MedicalHistory.TakenFenPhen }),
	flag("takingFosamaxActonel", "Taking Fosamax/Actonel", func(r *PatientRecord) *bool { return &r.MedicalHistory.TakingFosamaxActonel }),
	flag("takingBisphosphonates", "Taking Bisphosphonates", func(r *PatientRecord) *bool { return &r.MedicalHistory.TakingBisphosphonates }),
	text("bisphosphonatesDate", "Bisphosphonates Date", func(r *PatientRecord) *string { return &r.MedicalHistory.BisphosphonatesDate }),
	flag("hasJointReplacement", "Joint Replacement", func(r *PatientRecord) *bool { return &r.MedicalHistory.HasJointReplacement }),
	text("jointReplacementDate", "Joint Replacement Date", func(r *PatientRecord) *string { return &r.MedicalHistory.JointReplacementDate }),
	flag("usesControlledSubstances", "Controlled Substances", func(r *PatientRecord) *bool { return &r.MedicalHistory.UsesControlledSubstances }),
	flag("usesTobacco", "Uses Tobacco", func(r *PatientRecord) *bool { return &r.MedicalHistory.UsesTobacco }),
	flag("drinksAlcohol", "Drinks Alcohol", func(r *PatientRecord) *bool { return &r.MedicalHistory.DrinksAlcohol }),
	text("alcoholLast24Hours", "Alcohol Last 24 Hours", func(r *PatientRecord) *string { return &r.MedicalHistory.AlcoholLast24Hours }),
	text("alcoholPerWeek", "Alcohol Per Week", func(r *PatientRecord) *string { return &r.MedicalHistory.AlcoholPerWeek }),
	flag("needsPremedication", "Needs Premedication", func(r *PatientRecord) *bool { return &r.MedicalHistory.NeedsPremedication }),
	flag("isPregnant", "Is Pregnant", func(r *PatientRecord) *bool { return &r.MedicalHistory.IsPregnant }),
	text("pregnancyDueDate", "Pregnancy Due Date", func(r *PatientRecord) *string { return &r.MedicalHistory.PregnancyDueDate }),
	flag("isNursing", "Is Nursing", func(r *PatientRecord) *bool { return &r.MedicalHistory.IsNursing }),
	flag("takesBirthControl", "Takes Birth Control", func(r *PatientRecord) *bool { return &r.MedicalHistory.TakesBirthControl }),
	text("pharmacyName", "Pharmacy Name", func(r *PatientRecord) *string { return &r.MedicalHistory.PharmacyName }),
	text("pharmacyPhone", "Pharmacy Phone", func(r *PatientRecord) *string { return &r.MedicalHistory.PharmacyPhone }),

	text("financialPolicyName", "Financial Policy Name", func(r *PatientRecord) *string { return &r.ConsentSignatures.FinancialPolicyName }),
	text("financialPolicyDate", "Financial Policy Date", func(r *PatientRecord) *string { return &r.ConsentSignatures.FinancialPolicyDate }),
	imageCol(KeyFinancialSignature, "Financial Policy Signature", func(r *PatientRecord) *string { return &r.ConsentSignatures.FinancialPolicySignature }),
	text("hipaaName", "HIPAA Name", func(r *PatientRecord) *string { return &r.ConsentSignatures.HIPAAName }),
	text("hipaaDate", "HIPAA Date", func(r *PatientRecord) *string { return &r.ConsentSignatures.HIPAADate }),
	text("hipaaRelationship", "HIPAA Relationship", func(r *PatientRecord) *string { return &r.ConsentSignatures.HIPAARelationship }),
	imageCol(KeyHIPAASignature, "HIPAA Signature", func(r *PatientRecord) *string { return &r.ConsentSignatures.HIPAASignature }),
	flag("hipaaDisclosureImmediate", "HIPAA Disclosure Immediate Family", func(r *PatientRecord) *bool { return &r.ConsentSignatures.HIPAADisclosureImmediate }),
	flag("hipaaDisclosureExtended", "HIPAA Disclosure Extended Family", func(r *PatientRecord) *bool { return &r.ConsentSignatures.HIPAADisclosureExtended }),
	text("hipaaDisclosureOther", "HIPAA Disclosure Other", func(r *PatientRecord) *string { return &r.ConsentSignatures.HIPAADisclosureOther }),

	meta(KeyNotes, "Notes"),
}

var columnIndex = func() map[string]int {
	m := make(map[string]int, len(columns))
	for i, c := range columns {
		if _, dup := m[c.Key]; dup {
			panic("intake: duplicate column key " + c.Key)
		}
		m[c.Key] = i
	}
	return m
}()

// Fixed positions of the meta columns.
var (
	ColTimestamp    = columnIndex[KeyTimestamp]
	ColStatus       = columnIndex[KeyStatus]
	ColVersion      = columnIndex[KeyVersion]
	ColSubmissionID = columnIndex[KeySubmissionID]
	ColNotes        = columnIndex[KeyNotes]
)

// ColumnCount is the width of a v2 row.
var ColumnCount = len(columns)

// Columns returns a copy of the layout.
func Columns() []Column {
	out := make([]Column, len(columns))
	copy(out, columns)
	return out
}

// Header returns the header row labels in layout order.
func Header() []string {
	h := make([]string, len(columns))
	for i, c := range columns {
		h[i] = c.Header
	}
	return h
}

// ColumnOf returns the position of key, or -1.
func ColumnOf(key string) int {
	if i, ok := columnIndex[key]; ok {
		return i
	}
	return -1
}

// FormatBool renders a flag the way every bool cell is stored.
func FormatBool(b bool) string {
	if b {
		return "Yes"
	}
	return "No"
}

func parseBool(s string) bool {
	return strings.EqualFold(strings.TrimSpace(s), "yes")
}

func joinList(items []string) string {
	return strings.Join(items, ", ")
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// ToRow serializes a record and its meta into a full-width row.
func ToRow(m Meta, r *PatientRecord) []string {
	row := make([]string, len(columns))
	for i, c := range columns {
		switch c.Kind {
		case KindText, KindImage:
			row[i] = *c.text(r)
		case KindBool:
			row[i] = FormatBool(*c.flag(r))
		case KindList:
			row[i] = joinList(*c.list(r))
		}
	}
	if !m.Timestamp.IsZero() {
		row[ColTimestamp] = m.Timestamp.UTC().Format(time.RFC3339)
	}
	row[ColStatus] = m.Status
	row[ColVersion] = SchemaVersion
	row[ColSubmissionID] = m.SubmissionID
	row[ColNotes] = m.Notes
	return row
}

// View is a decoded row. Missing trailing cells read as empty.
type View struct {
	cells  []string
	Meta   Meta
	Record PatientRecord
}

// FromRow decodes cells positionally. It never fails.
func FromRow(cells []string) View {
	padded := make([]string, len(columns))
	copy(padded, cells)

	v := View{cells: padded}
	for i, c := range columns {
		switch c.Kind {
		case KindText, KindImage:
			*c.text(&v.Record) = padded[i]
		case KindBool:
			*c.flag(&v.Record) = parseBool(padded[i])
		case KindList:
			*c.list(&v.Record) = splitList(padded[i])
		}
	}
	v.Meta = Meta{
		Status:       padded[ColStatus],
		SubmissionID: padded[ColSubmissionID],
		Notes:        padded[ColNotes],
	}
	if ts, err := time.Parse(time.RFC3339, padded[ColTimestamp]); err == nil {
		v.Meta.Timestamp = ts
	}
	return v
}

// CheckVersion reports whether cells carry the current schema marker.
func CheckVersion(cells []string) error {
	if len(cells) <= ColVersion {
		return fmt.Errorf("%w: missing version cell", ErrSchemaVersion)
	}
	if got := cells[ColVersion]; got != SchemaVersion {
		return fmt.Errorf("%w: got %q, want %q", ErrSchemaVersion, got, SchemaVersion)
	}
	return nil
}

// Cells returns the padded row.
func (v View) Cells() []string {
	out := make([]string, len(v.cells))
	copy(out, v.cells)
	return out
}

// Text returns the raw cell for key.
func (v View) Text(key string) string {
	i, ok := columnIndex[key]
	if !ok || i >= len(v.cells) {
		return ""
	}
	return v.cells[i]
}

func (v View) Bool(key string) bool {
	return parseBool(v.Text(key))
}

func (v View) List(key string) []string {
	return splitList(v.Text(key))
}

// Image returns the data URI stored under key, or "".
func (v View) Image(key string) string {
	i, ok := columnIndex[key]
	if !ok || columns[i].Kind != KindImage {
		return ""
	}
	return v.cells[i]
}

func (v View) PatientName() string { return v.Record.PatientInfo.PatientName }

func (v View) Status() string { return v.Meta.Status }
