package intake

import (
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/redmonddental/intake/internal/platform/imaging"
)

// ValidationError carries one message per offending field, keyed by the
// dotted JSON path (e.g. "patientInfo.zip").
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return "validation failed: " + strings.Join(keys, ", ")
}

var validate = func() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}()

// Validate checks required fields, formats, and that every image field
// holds a decodable image data URI.
func (r *PatientRecord) Validate() error {
	fields := map[string]string{}

	if err := validate.Struct(r); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return err
		}
		for _, fe := range verrs {
			fields[fieldPath(fe)] = fieldMessage(fe)
		}
	}

	images := map[string]string{
		"insuranceInfo." + KeyCardFront:              r.InsuranceInfo.InsuranceCardFront,
		"insuranceInfo." + KeyCardBack:               r.InsuranceInfo.InsuranceCardBack,
		"insuranceInfo." + KeyAssignmentSignature:    r.InsuranceInfo.AssignmentSignature,
		"consentSignatures." + KeyFinancialSignature: r.ConsentSignatures.FinancialPolicySignature,
		"consentSignatures." + KeyHIPAASignature:     r.ConsentSignatures.HIPAASignature,
	}
	for path, uri := range images {
		if uri == "" {
			continue
		}
		if _, ok := fields[path]; ok {
			continue
		}
		if _, _, err := imaging.ParseDataURI(uri); err != nil {
			fields[path] = "must be an image data URI"
		}
	}

	if len(fields) > 0 {
		return &ValidationError{Fields: fields}
	}
	return nil
}

func fieldPath(fe validator.FieldError) string {
	ns := fe.Namespace()
	if _, rest, ok := strings.Cut(ns, "."); ok {
		return rest
	}
	return ns
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "email":
		return "must be a valid email address"
	case "oneof":
		return "must be one of: " + fe.Param()
	case "min":
		return fmt.Sprintf("must be at least %s characters", fe.Param())
	case "datauri":
		return "must be an image data URI"
	}
	return "is invalid"
}

// Normalize clears fields that do not apply to the answers given and
// derives the age when the form left it blank.
func (r *PatientRecord) Normalize(now time.Time) {
	if !r.InsuranceInfo.HasInsurance {
		r.InsuranceInfo = InsuranceInfo{}
	}
	p := &r.PatientInfo
	if !p.HasSpouse() {
		p.SpousePartnerName = ""
		p.SpouseBirthdate = ""
		p.SpouseSSN = ""
		p.SpouseEmployer = ""
		p.SpouseWorkPhone = ""
	}
	if strings.TrimSpace(p.Age) == "" {
		if age, ok := AgeOn(p.Birthdate, now); ok {
			p.Age = strconv.Itoa(age)
		}
	}
}

var birthdateLayouts = []string{"2006-01-02", "01/02/2006", "1/2/2006"}

// AgeOn returns the whole years between birthdate and now.
func AgeOn(birthdate string, now time.Time) (int, bool) {
	birthdate = strings.TrimSpace(birthdate)
	for _, layout := range birthdateLayouts {
		b, err := time.Parse(layout, birthdate)
		if err != nil {
			continue
		}
		if b.After(now) {
			return 0, false
		}
		age := now.Year() - b.Year()
		if now.Month() < b.Month() || (now.Month() == b.Month() && now.Day() < b.Day()) {
			age--
		}
		return age, true
	}
	return 0, false
}
