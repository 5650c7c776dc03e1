package intake

import "time"

// Submission statuses. Any status may be set from any other.
const (
	StatusNew        = "New"
	StatusInProgress = "In Progress"
	StatusComplete   = "Complete"
)

var validStatuses = map[string]bool{
	StatusNew: true, StatusInProgress: true, StatusComplete: true,
}

// PatientRecord is the assembled four-step intake form.
type PatientRecord struct {
	PatientInfo       PatientInfo       `json:"patientInfo" validate:"required"`
	InsuranceInfo     InsuranceInfo     `json:"insuranceInfo"`
	MedicalHistory    MedicalHistory    `json:"medicalHistory" validate:"required"`
	ConsentSignatures ConsentSignatures `json:"consentSignatures" validate:"required"`
}

type PatientInfo struct {
	PatientName           string `json:"patientName" validate:"required"`
	SSN                   string `json:"ssn,omitempty"`
	Address               string `json:"address" validate:"required"`
	City                  string `json:"city" validate:"required"`
	State                 string `json:"state" validate:"required,min=2"`
	Zip                   string `json:"zip" validate:"required,min=5"`
	Email                 string `json:"email,omitempty" validate:"omitempty,email"`
	Sex                   string `json:"sex" validate:"required,oneof=male female other"`
	Birthdate             string `json:"birthdate" validate:"required"`
	Age                   string `json:"age"`
	Status                string `json:"status" validate:"required,oneof=married single widowed minor separated divorced partnered"`
	EmployerSchool        string `json:"employerSchool,omitempty"`
	OccupationGrade       string `json:"occupationGrade,omitempty"`
	WorkSchoolPhone       string `json:"workSchoolPhone,omitempty"`
	SpousePartnerName     string `json:"spousePartnerName,omitempty"`
	SpouseBirthdate       string `json:"spouseBirthdate,omitempty"`
	SpouseSSN             string `json:"spouseSsn,omitempty"`
	SpouseEmployer        string `json:"spouseEmployer,omitempty"`
	SpouseWorkPhone       string `json:"spouseWorkPhone,omitempty"`
	ReferralSource        string `json:"referralSource,omitempty"`
	PhoneHome             string `json:"phoneHome,omitempty"`
	PhoneWork             string `json:"phoneWork,omitempty"`
	PhoneCell             string `json:"phoneCell" validate:"required"`
	EmergencyContact      string `json:"emergencyContact" validate:"required"`
	EmergencyRelationship string `json:"emergencyRelationship" validate:"required"`
	EmergencyPhone        string `json:"emergencyPhone" validate:"required"`
}

// HasSpouse reports whether the marital status carries spouse details.
func (p *PatientInfo) HasSpouse() bool {
	return p.Status == "married" || p.Status == "partnered"
}

type InsuranceInfo struct {
	HasInsurance           bool   `json:"hasInsurance"`
	AccountResponsible     string `json:"accountResponsible,omitempty"`
	AccountRelationship    string `json:"accountRelationship,omitempty"`
	InsuranceCompany       string `json:"insuranceCompany,omitempty"`
	InsuranceGroup         string `json:"insuranceGroup,omitempty"`
	InsuranceID            string `json:"insuranceId,omitempty"`
	SubscriberName         string `json:"subscriberName,omitempty"`
	SubscriberBirthdate    string `json:"subscriberBirthdate,omitempty"`
	SubscriberSSN          string `json:"subscriberSsn,omitempty"`
	SubscriberRelationship string `json:"subscriberRelationship,omitempty"`
	InsuranceCardFront     string `json:"insuranceCardFront,omitempty" validate:"omitempty,datauri"`
	InsuranceCardBack      string `json:"insuranceCardBack,omitempty" validate:"omitempty,datauri"`
	AssignmentSignature    string `json:"assignmentSignature,omitempty" validate:"omitempty,datauri"`
	AssignmentDate         string `json:"assignmentDate,omitempty"`
}

type MedicalHistory struct {
	ReasonForVisit             string `json:"reasonForVisit" validate:"required"`
	FormerDentist              string `json:"formerDentist,omitempty"`
	FormerDentistCity          string `json:"formerDentistCity,omitempty"`
	LastDentalVisit            string `json:"lastDentalVisit,omitempty"`
	CurrentlyInPain            bool   `json:"currentlyInPain"`
	ProblemsWithPastDentalWork bool   `json:"problemsWithPastDentalWork"`
	SeriousHeadMouthInjury     bool   `json:"seriousHeadMouthInjury"`
	FeelingsAboutSmile         string `json:"feelingsAboutSmile,omitempty"`
	ProblemsWithAnesthetic     bool   `json:"problemsWithAnesthetic"`
	AnestheticDetails          string `json:"anestheticDetails,omitempty"`

	UnderPhysicianCare       bool   `json:"underPhysicianCare"`
	PhysicianName            string `json:"physicianName,omitempty"`
	PhysicianPhone           string `json:"physicianPhone,omitempty"`
	InGoodHealth             bool   `json:"inGoodHealth"`
	RecentHealthChanges      bool   `json:"recentHealthChanges"`
	HealthChangesDetails     string `json:"healthChangesDetails,omitempty"`
	LastPhysicalExam         string `json:"lastPhysicalExam,omitempty"`
	SeriousIllnessLast5Years bool   `json:"seriousIllnessLast5Years"`
	IllnessDetails           string `json:"illnessDetails,omitempty"`

	TakenFenPhen             bool   `json:"takenFenPhen"`
	TakingFosamaxActonel     bool   `json:"takingFosamaxActonel"`
	TakingBisphosphonates    bool   `json:"takingBisphosphonates"`
	BisphosphonatesDate      string `json:"bisphosphonatesDate,omitempty"`
	HasJointReplacement      bool   `json:"hasJointReplacement"`
	JointReplacementDate     string `json:"jointReplacementDate,omitempty"`
	UsesControlledSubstances bool   `json:"usesControlledSubstances"`
	UsesTobacco              bool   `json:"usesTobacco"`
	DrinksAlcohol            bool   `json:"drinksAlcohol"`
	AlcoholLast24Hours       string `json:"alcoholLast24Hours,omitempty"`
	AlcoholPerWeek           string `json:"alcoholPerWeek,omitempty"`

	MedicalConditions []string `json:"medicalConditions"`

	NeedsPremedication bool   `json:"needsPremedication"`
	IsPregnant         bool   `json:"isPregnant"`
	PregnancyDueDate   string `json:"pregnancyDueDate,omitempty"`
	IsNursing          bool   `json:"isNursing"`
	TakesBirthControl  bool   `json:"takesBirthControl"`

	CurrentMedications string   `json:"currentMedications,omitempty"`
	Allergies          []string `json:"allergies"`
	OtherAllergies     string   `json:"otherAllergies,omitempty"`
	PharmacyName       string   `json:"pharmacyName,omitempty"`
	PharmacyPhone      string   `json:"pharmacyPhone,omitempty"`
}

type ConsentSignatures struct {
	FinancialPolicySignature string `json:"financialPolicySignature" validate:"required,datauri"`
	FinancialPolicyDate      string `json:"financialPolicyDate" validate:"required"`
	FinancialPolicyName      string `json:"financialPolicyName" validate:"required"`

	HIPAASignature           string `json:"hipaaSignature" validate:"required,datauri"`
	HIPAADate                string `json:"hipaaDate" validate:"required"`
	HIPAAName                string `json:"hipaaName" validate:"required"`
	HIPAARelationship        string `json:"hipaaRelationship,omitempty"`
	HIPAADisclosureImmediate bool   `json:"hipaaDisclosureImmediate"`
	HIPAADisclosureExtended  bool   `json:"hipaaDisclosureExtended"`
	HIPAADisclosureOther     string `json:"hipaaDisclosureOther,omitempty"`
}

// Meta is the bookkeeping stored alongside a record in the same row.
type Meta struct {
	Timestamp    time.Time `json:"timestamp"`
	Status       string    `json:"status"`
	SubmissionID string    `json:"submissionId"`
	Notes        string    `json:"notes,omitempty"`
}

// Summary is one dashboard line.
type Summary struct {
	RowIndex     int    `json:"rowIndex"`
	SubmissionID string `json:"submissionId"`
	Timestamp    string `json:"timestamp"`
	PatientName  string `json:"patientName"`
	Email        string `json:"email"`
	Phone        string `json:"phone"`
	Status       string `json:"status"`
}

// Stats counts submissions per status.
type Stats struct {
	Total      int `json:"total"`
	New        int `json:"new"`
	InProgress int `json:"inProgress"`
	Complete   int `json:"complete"`
}

// ListFilter narrows the dashboard listing.
type ListFilter struct {
	Status string
	Search string
	Limit  int
	Offset int
}
