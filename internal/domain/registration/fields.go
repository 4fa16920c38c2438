package registration

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/intake/intake/internal/platform/attachment"
)

// FieldID names a form field the way clients address it.
type FieldID string

const (
	FieldSelectedOffice FieldID = "selectedOffice"
	FieldAgreeToTerms   FieldID = "agreeToTerms"

	FieldFirstName   FieldID = "firstName"
	FieldLastName    FieldID = "lastName"
	FieldDOBMonth    FieldID = "dobMonth"
	FieldDOBDay      FieldID = "dobDay"
	FieldDOBYear     FieldID = "dobYear"
	FieldDateOfBirth FieldID = "dateOfBirth"
	FieldSex         FieldID = "sex"
	FieldSSN         FieldID = "ssn"
	FieldIDCardImage FieldID = "idCardImage"
	FieldSelfie      FieldID = "selfie"

	FieldExtractedFirstName FieldID = "extractedFirstName"
	FieldExtractedLastName  FieldID = "extractedLastName"
	FieldExtractedDOB       FieldID = "extractedDob"
	FieldExtractedSex       FieldID = "extractedSex"

	FieldEmail                 FieldID = "email"
	FieldPhone                 FieldID = "phone"
	FieldPhoneCountry          FieldID = "phoneCountry"
	FieldEmergencyContactName  FieldID = "emergencyContactName"
	FieldEmergencyContactPhone FieldID = "emergencyContactPhone"

	FieldCurrentStreet  FieldID = "currentStreet"
	FieldCurrentCity    FieldID = "currentCity"
	FieldCurrentState   FieldID = "currentState"
	FieldCurrentZip     FieldID = "currentZip"
	FieldCurrentCountry FieldID = "currentCountry"
	FieldFMPStreet      FieldID = "fmpStreet"
	FieldFMPCity        FieldID = "fmpCity"
	FieldFMPState       FieldID = "fmpState"
	FieldFMPZip         FieldID = "fmpZip"
	FieldFMPCountry     FieldID = "fmpCountry"

	FieldWeight       FieldID = "weight"
	FieldHeightFeet   FieldID = "heightFeet"
	FieldHeightInches FieldID = "heightInches"
	FieldHeight       FieldID = "height"
	FieldPainLevel    FieldID = "painLevel"
	FieldAllergies    FieldID = "allergies"
	FieldMedications  FieldID = "medications"

	FieldSelectedInsurance FieldID = "selectedInsurance"

	FieldIsVeteran       FieldID = "isVeteran"
	FieldBranchOfService FieldID = "branchOfService"

	FieldHasDisabilityLetter FieldID = "hasDisabilityLetter"
	FieldDisabilityLetter    FieldID = "disabilityLetter"

	FieldSignature       FieldID = "signature"
	FieldConsentAccepted FieldID = "consentAccepted"
)

// fieldSpec ties a FieldID to its storage and its rule. A nil set makes the
// field read-only for clients; a nil validate falls back to truthiness.
type fieldSpec struct {
	get      func(s *FormState) any
	set      func(s *FormState, raw json.RawMessage) error
	validate func(s *FormState, now time.Time) bool
	// category is set for fields holding a data-URI file.
	category attachment.Category
}

var catalog = map[FieldID]fieldSpec{
	FieldSelectedOffice: refField(func(s *FormState) *string { return &s.Office.SelectedOffice }),
	FieldAgreeToTerms:   boolField(func(s *FormState) *bool { return &s.Office.AgreeToTerms }),

	FieldFirstName:   stringField(func(s *FormState) *string { return &s.Identity.FirstName }, validName),
	FieldLastName:    stringField(func(s *FormState) *string { return &s.Identity.LastName }, validName),
	FieldDOBMonth:    intField(func(s *FormState) *int { return &s.Identity.DOBMonth }, validMonth),
	FieldDOBDay:      intField(func(s *FormState) *int { return &s.Identity.DOBDay }, validDay),
	FieldDOBYear:     intField(func(s *FormState) *int { return &s.Identity.DOBYear }, nil).check(validDOBYear),
	FieldDateOfBirth: {get: func(s *FormState) any { return s.Identity.DateOfBirth() }, validate: validDateOfBirth},
	FieldSex:         stringField(func(s *FormState) *string { return &s.Identity.Sex }, nil),
	FieldSSN:         stringField(func(s *FormState) *string { return &s.Identity.SSN }, validSSN),
	FieldIDCardImage: {get: func(s *FormState) any { return s.Identity.IDCardImage }, category: attachment.CategoryIDCard},
	FieldSelfie:      fileField(func(s *FormState) *string { return &s.Identity.Selfie }, attachment.CategorySelfie),

	FieldExtractedFirstName: stringField(func(s *FormState) *string { return &s.Extracted.FirstName }, validName),
	FieldExtractedLastName:  stringField(func(s *FormState) *string { return &s.Extracted.LastName }, validName),
	FieldExtractedDOB:       stringField(func(s *FormState) *string { return &s.Extracted.DOB }, validExtractedDOB),
	FieldExtractedSex:       stringField(func(s *FormState) *string { return &s.Extracted.Sex }, nil),

	FieldEmail:                 stringField(func(s *FormState) *string { return &s.Contact.Email }, validEmail),
	FieldPhone:                 stringField(func(s *FormState) *string { return &s.Contact.Phone }, nil).check(validContactPhone),
	FieldPhoneCountry:          stringField(func(s *FormState) *string { return &s.Contact.PhoneCountry }, validPhoneCountry),
	FieldEmergencyContactName:  stringField(func(s *FormState) *string { return &s.Contact.EmergencyContactName }, validName),
	FieldEmergencyContactPhone: stringField(func(s *FormState) *string { return &s.Contact.EmergencyContactPhone }, nil).check(validEmergencyPhone),

	FieldCurrentStreet:  stringField(func(s *FormState) *string { return &s.Current.Street }, minLen(10)),
	FieldCurrentCity:    stringField(func(s *FormState) *string { return &s.Current.City }, minLen(2)),
	FieldCurrentState:   stringField(func(s *FormState) *string { return &s.Current.State }, minLen(2)),
	FieldCurrentZip:     stringField(func(s *FormState) *string { return &s.Current.Zip }, minLen(3)),
	FieldCurrentCountry: stringField(func(s *FormState) *string { return &s.Current.Country }, nil),
	FieldFMPStreet:      stringField(func(s *FormState) *string { return &s.FMP.Street }, minLen(10)),
	FieldFMPCity:        stringField(func(s *FormState) *string { return &s.FMP.City }, minLen(2)),
	FieldFMPState:       stringField(func(s *FormState) *string { return &s.FMP.State }, minLen(2)),
	FieldFMPZip:         stringField(func(s *FormState) *string { return &s.FMP.Zip }, minLen(3)),
	FieldFMPCountry:     stringField(func(s *FormState) *string { return &s.FMP.Country }, nil),

	FieldWeight:       floatField(func(s *FormState) *float64 { return &s.Medical.Weight }, validWeight),
	FieldHeightFeet:   intField(func(s *FormState) *int { return &s.Medical.HeightFeet }, validHeightFeet),
	FieldHeightInches: optIntField(func(s *FormState) **int { return &s.Medical.HeightInches }, validHeightInches),
	FieldHeight:       {get: func(s *FormState) any { return s.Medical.TotalHeightInches() }, validate: validHeight},
	FieldPainLevel:    intField(func(s *FormState) *int { return &s.Medical.PainLevel }, validPainLevel),
	FieldAllergies:    stringField(func(s *FormState) *string { return &s.Medical.Allergies }, nil),
	FieldMedications:  listField(func(s *FormState) *[]string { return &s.Medical.Medications }),

	FieldSelectedInsurance: refField(func(s *FormState) *string { return &s.Insurance.SelectedInsurance }),

	FieldIsVeteran:       triField(func(s *FormState) **bool { return &s.Veteran.IsVeteran }),
	FieldBranchOfService: stringField(func(s *FormState) *string { return &s.Veteran.BranchOfService }, validBranch),

	FieldHasDisabilityLetter: triField(func(s *FormState) **bool { return &s.Documents.HasDisabilityLetter }),
	FieldDisabilityLetter:    fileField(func(s *FormState) *string { return &s.Documents.DisabilityLetter }, attachment.CategoryDisabilityLetter),

	FieldSignature:       fileField(func(s *FormState) *string { return &s.Consent.Signature }, attachment.CategorySignature),
	FieldConsentAccepted: boolField(func(s *FormState) *bool { return &s.Consent.ConsentAccepted }),
}

// KnownFields returns every field name in sorted order.
func KnownFields() []FieldID {
	ids := make([]FieldID, 0, len(catalog))
	for id := range catalog {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Value returns the current value of a field, or nil for unknown names.
func (s *FormState) Value(id FieldID) any {
	spec, ok := catalog[id]
	if !ok {
		return nil
	}
	return spec.get(s)
}

// Set decodes raw into the named field. File fields must hold a data URI
// valid for their attachment category, or be empty to clear them.
func (s *FormState) Set(id FieldID, raw json.RawMessage) error {
	spec, ok := catalog[id]
	if !ok {
		return &FieldError{Field: string(id), Err: ErrUnknownField}
	}
	if spec.set == nil {
		return &FieldError{Field: string(id), Err: ErrReadOnlyField}
	}
	if err := spec.set(s, raw); err != nil {
		return &FieldError{Field: string(id), Err: err}
	}
	return nil
}

// ---------------------------------------------------------------------------
// Field constructors
// ---------------------------------------------------------------------------

type validator = func(s *FormState, now time.Time) bool

// check replaces the field's rule with one that sees the whole form.
func (f fieldSpec) check(v validator) fieldSpec {
	f.validate = v
	return f
}

func stringField(ptr func(*FormState) *string, rule func(string) bool) fieldSpec {
	var v validator
	if rule != nil {
		v = func(s *FormState, _ time.Time) bool { return rule(*ptr(s)) }
	}
	return fieldSpec{
		get: func(s *FormState) any { return *ptr(s) },
		set: func(s *FormState, raw json.RawMessage) error {
			val, err := decodeString(raw)
			if err != nil {
				return err
			}
			*ptr(s) = val
			return nil
		},
		validate: v,
	}
}

// refField holds a directory identifier, sent as a string or a number.
func refField(ptr func(*FormState) *string) fieldSpec {
	return stringField(ptr, nil)
}

func fileField(ptr func(*FormState) *string, cat attachment.Category) fieldSpec {
	return fieldSpec{
		get: func(s *FormState) any { return *ptr(s) },
		set: func(s *FormState, raw json.RawMessage) error {
			val, err := decodeString(raw)
			if err != nil {
				return err
			}
			if val != "" {
				if _, err := attachment.Validate(cat, val); err != nil {
					return err
				}
			}
			*ptr(s) = val
			return nil
		},
		category: cat,
	}
}

func intField(ptr func(*FormState) *int, rule func(int) bool) fieldSpec {
	var v validator
	if rule != nil {
		v = func(s *FormState, _ time.Time) bool { return rule(*ptr(s)) }
	}
	return fieldSpec{
		get: func(s *FormState) any { return *ptr(s) },
		set: func(s *FormState, raw json.RawMessage) error {
			n, err := decodeOptInt(raw)
			if err != nil {
				return err
			}
			if n == nil {
				*ptr(s) = 0
			} else {
				*ptr(s) = *n
			}
			return nil
		},
		validate: v,
	}
}

func optIntField(ptr func(*FormState) **int, rule func(*int) bool) fieldSpec {
	return fieldSpec{
		get: func(s *FormState) any {
			if p := *ptr(s); p != nil {
				return *p
			}
			return nil
		},
		set: func(s *FormState, raw json.RawMessage) error {
			n, err := decodeOptInt(raw)
			if err != nil {
				return err
			}
			*ptr(s) = n
			return nil
		},
		validate: func(s *FormState, _ time.Time) bool { return rule(*ptr(s)) },
	}
}

func floatField(ptr func(*FormState) *float64, rule func(float64) bool) fieldSpec {
	return fieldSpec{
		get: func(s *FormState) any { return *ptr(s) },
		set: func(s *FormState, raw json.RawMessage) error {
			f, err := decodeFloat(raw)
			if err != nil {
				return err
			}
			*ptr(s) = f
			return nil
		},
		validate: func(s *FormState, _ time.Time) bool { return rule(*ptr(s)) },
	}
}

// boolField is a gate that is only valid when true.
func boolField(ptr func(*FormState) *bool) fieldSpec {
	return fieldSpec{
		get: func(s *FormState) any { return *ptr(s) },
		set: func(s *FormState, raw json.RawMessage) error {
			b, err := decodeTri(raw)
			if err != nil {
				return err
			}
			*ptr(s) = b != nil && *b
			return nil
		},
		validate: func(s *FormState, _ time.Time) bool { return *ptr(s) },
	}
}

// triField is a yes/no question: valid once answered either way.
func triField(ptr func(*FormState) **bool) fieldSpec {
	return fieldSpec{
		get: func(s *FormState) any {
			if p := *ptr(s); p != nil {
				return *p
			}
			return nil
		},
		set: func(s *FormState, raw json.RawMessage) error {
			b, err := decodeTri(raw)
			if err != nil {
				return err
			}
			*ptr(s) = b
			return nil
		},
		validate: func(s *FormState, _ time.Time) bool { return *ptr(s) != nil },
	}
}

func listField(ptr func(*FormState) *[]string) fieldSpec {
	return fieldSpec{
		get: func(s *FormState) any { return *ptr(s) },
		set: func(s *FormState, raw json.RawMessage) error {
			l, err := decodeList(raw)
			if err != nil {
				return err
			}
			*ptr(s) = l
			return nil
		},
		validate: func(s *FormState, _ time.Time) bool { return len(*ptr(s)) > 0 },
	}
}

// ---------------------------------------------------------------------------
// JSON decoding
// ---------------------------------------------------------------------------

func isNull(raw json.RawMessage) bool {
	t := bytes.TrimSpace(raw)
	return len(t) == 0 || bytes.Equal(t, []byte("null"))
}

// decodeString accepts a JSON string or number.
func decodeString(raw json.RawMessage) (string, error) {
	if isNull(raw) {
		return "", nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s, nil
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String(), nil
	}
	return "", fmt.Errorf("%w: expected text", ErrInvalidValue)
}

// decodeOptInt accepts an integer, a numeric string, or null/"" for unset.
func decodeOptInt(raw json.RawMessage) (*int, error) {
	f, set, err := decodeNumber(raw)
	if err != nil || !set {
		return nil, err
	}
	if f != math.Trunc(f) {
		return nil, fmt.Errorf("%w: expected a whole number", ErrInvalidValue)
	}
	n := int(f)
	return &n, nil
}

func decodeFloat(raw json.RawMessage) (float64, error) {
	f, _, err := decodeNumber(raw)
	return f, err
}

func decodeNumber(raw json.RawMessage) (float64, bool, error) {
	if isNull(raw) {
		return 0, false, nil
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err == nil {
		return f, true, nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return 0, false, fmt.Errorf("%w: expected a number", ErrInvalidValue)
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false, fmt.Errorf("%w: %q is not a number", ErrInvalidValue, s)
	}
	return f, true, nil
}

// decodeTri accepts true/false, "true"/"false", "yes"/"no", or null.
func decodeTri(raw json.RawMessage) (*bool, error) {
	if isNull(raw) {
		return nil, nil
	}
	var b bool
	if err := json.Unmarshal(raw, &b); err == nil {
		return &b, nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		switch strings.ToLower(strings.TrimSpace(s)) {
		case "true", "yes":
			return boolPtr(true), nil
		case "false", "no":
			return boolPtr(false), nil
		case "":
			return nil, nil
		}
	}
	return nil, fmt.Errorf("%w: expected true or false", ErrInvalidValue)
}

// decodeList accepts an array of strings or one string with entries
// separated by commas or newlines. Blank entries are dropped.
func decodeList(raw json.RawMessage) ([]string, error) {
	if isNull(raw) {
		return nil, nil
	}
	var items []string
	if err := json.Unmarshal(raw, &items); err != nil {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, fmt.Errorf("%w: expected a list of text", ErrInvalidValue)
		}
		items = strings.FieldsFunc(s, func(r rune) bool { return r == ',' || r == '\n' })
	}
	out := make([]string, 0, len(items))
	for _, it := range items {
		if it = strings.TrimSpace(it); it != "" {
			out = append(out, it)
		}
	}
	if len(out) == 0 {
		return nil, nil
	}
	return out, nil
}
