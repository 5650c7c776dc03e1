package intake

import (
	"context"
	"fmt"
	"strings"
)

// onePixelPNG is a valid 1x1 transparent PNG used as a stand-in signature.
const onePixelPNG = "data:image/png;base64,iVBORw0KGgoAAAANSUhEUgAAAAEAAAABCAYAAAAfFcSJAAAADUlEQVR42mNkYPhfDwAChwGA60e6kgAAAABJRU5ErkJggg=="

type seedPatient struct {
	name, email, phone, birthdate, status, sex, reason string
	insured                                            bool
}

var seedPatients = []seedPatient{
	{"Maria Garcia", "maria.garcia@example.com", "425-555-0142", "1985-07-22", "married", "female", "Routine cleaning", true},
	{"David Chen", "dchen@example.com", "206-555-0199", "1978-11-03", "single", "male", "Tooth sensitivity", false},
	{"Priya Natarajan", "priya.n@example.com", "425-555-0117", "1993-02-14", "partnered", "female", "Crown consultation", true},
}

// SeedRecords returns demo registrations for local development, signed on
// the given date (YYYY-MM-DD).
func SeedRecords(signed string) []*PatientRecord {
	out := make([]*PatientRecord, 0, len(seedPatients))
	for _, p := range seedPatients {
		r := &PatientRecord{
			PatientInfo: PatientInfo{
				PatientName:           p.name,
				Address:               "16710 NE 79th St",
				City:                  "Redmond",
				State:                 "WA",
				Zip:                   "98052",
				Email:                 p.email,
				Sex:                   p.sex,
				Birthdate:             p.birthdate,
				Status:                p.status,
				PhoneCell:             p.phone,
				EmergencyContact:      "Alex Morgan",
				EmergencyRelationship: "Friend",
				EmergencyPhone:        "425-555-0100",
				ReferralSource:        "Website",
			},
			MedicalHistory: MedicalHistory{
				ReasonForVisit: p.reason,
				InGoodHealth:   true,
			},
			ConsentSignatures: ConsentSignatures{
				FinancialPolicySignature: onePixelPNG,
				FinancialPolicyDate:      signed,
				FinancialPolicyName:      p.name,
				HIPAASignature:           onePixelPNG,
				HIPAADate:                signed,
				HIPAAName:                p.name,
				HIPAADisclosureImmediate: true,
			},
		}
		if p.status == "married" || p.status == "partnered" {
			parts := strings.Fields(p.name)
			r.PatientInfo.SpousePartnerName = "Sam " + parts[len(parts)-1]
		}
		if p.insured {
			r.InsuranceInfo = InsuranceInfo{
				HasInsurance:           true,
				AccountResponsible:     p.name,
				AccountRelationship:    "Self",
				InsuranceCompany:       "Delta Dental of Washington",
				InsuranceGroup:         "GRP-10442",
				InsuranceID:            "DDW" + p.phone[len(p.phone)-4:],
				SubscriberName:         p.name,
				SubscriberBirthdate:    p.birthdate,
				SubscriberRelationship: "Self",
				AssignmentSignature:    onePixelPNG,
				AssignmentDate:         signed,
			}
		}
		out = append(out, r)
	}
	return out
}

// Seed submits SeedRecords through the normal workflow.
func (s *Service) Seed(ctx context.Context) ([]Receipt, error) {
	var receipts []Receipt
	for _, r := range SeedRecords(s.now().Format("2006-01-02")) {
		rc, err := s.Submit(ctx, r)
		if err != nil {
			return receipts, fmt.Errorf("seed %s: %w", r.PatientInfo.PatientName, err)
		}
		receipts = append(receipts, *rc)
	}
	return receipts, nil
}
