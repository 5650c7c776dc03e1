package intake

import "time"

var fixedNow = time.Date(2024, 5, 14, 16, 30, 0, 0, time.UTC)

func sampleRecord() *PatientRecord {
	return &PatientRecord{
		PatientInfo: PatientInfo{
			PatientName:           "Jane Doe",
			Address:               "16710 NE 79th St",
			City:                  "Redmond",
			State:                 "WA",
			Zip:                   "98052",
			Email:                 "jane@example.com",
			Sex:                   "female",
			Birthdate:             "1990-03-15",
			Status:                "single",
			PhoneCell:             "425-555-0100",
			EmergencyContact:      "John Doe",
			EmergencyRelationship: "Brother",
			EmergencyPhone:        "425-555-0101",
		},
		InsuranceInfo: InsuranceInfo{HasInsurance: false},
		MedicalHistory: MedicalHistory{
			ReasonForVisit:    "Cleaning",
			InGoodHealth:      true,
			MedicalConditions: []string{"Asthma", "Diabetes"},
			Allergies:         []string{"Penicillin"},
		},
		ConsentSignatures: ConsentSignatures{
			FinancialPolicySignature: onePixelPNG,
			FinancialPolicyDate:      "2024-05-14",
			FinancialPolicyName:      "Jane Doe",
			HIPAASignature:           onePixelPNG,
			HIPAADate:                "2024-05-14",
			HIPAAName:                "Jane Doe",
			HIPAADisclosureImmediate: true,
		},
	}
}
