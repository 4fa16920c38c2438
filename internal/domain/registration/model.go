package registration

import (
	"fmt"
	"time"
)

// FormState holds every value collected during one registration. Validity is
// never stored here; it is computed on demand by Validate.
type FormState struct {
	Office    OfficeInfo    `json:"office"`
	Identity  IdentityInfo  `json:"identity"`
	Extracted ExtractedID   `json:"extracted"`
	Contact   ContactInfo   `json:"contact"`
	Current   Address       `json:"currentAddress"`
	FMP       Address       `json:"fmpAddress"`
	Medical   MedicalInfo   `json:"medical"`
	Insurance InsuranceInfo `json:"insurance"`
	Veteran   VeteranInfo   `json:"veteran"`
	Documents DocumentInfo  `json:"documents"`
	Consent   ConsentInfo   `json:"consent"`
}

type OfficeInfo struct {
	SelectedOffice string `json:"selectedOffice"`
	AgreeToTerms   bool   `json:"agreeToTerms"`
}

type IdentityInfo struct {
	FirstName   string `json:"firstName"`
	LastName    string `json:"lastName"`
	DOBMonth    int    `json:"dobMonth"`
	DOBDay      int    `json:"dobDay"`
	DOBYear     int    `json:"dobYear"`
	Sex         string `json:"sex"`
	SSN         string `json:"ssn"`
	IDCardImage string `json:"idCardImage,omitempty"`
	Selfie      string `json:"selfie,omitempty"`
}

// DateOfBirth formats the DOB components as YYYY-MM-DD, or "" when any
// component is missing.
func (i IdentityInfo) DateOfBirth() string {
	if i.DOBYear == 0 || i.DOBMonth == 0 || i.DOBDay == 0 {
		return ""
	}
	return fmt.Sprintf("%04d-%02d-%02d", i.DOBYear, i.DOBMonth, i.DOBDay)
}

// ExtractedID is what the ID reader returned, staged for patient review.
type ExtractedID struct {
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	DOB       string `json:"dob"`
	Sex       string `json:"sex"`
}

type ContactInfo struct {
	Email                 string `json:"email"`
	Phone                 string `json:"phone"`
	PhoneCountry          string `json:"phoneCountry"`
	EmergencyContactName  string `json:"emergencyContactName,omitempty"`
	EmergencyContactPhone string `json:"emergencyContactPhone,omitempty"`
}

type Address struct {
	Street  string `json:"street"`
	City    string `json:"city"`
	State   string `json:"state"`
	Zip     string `json:"zip"`
	Country string `json:"country"`
}

type MedicalInfo struct {
	Weight       float64  `json:"weight"`
	HeightFeet   int      `json:"heightFeet"`
	HeightInches *int     `json:"heightInches"`
	PainLevel    int      `json:"painLevel"`
	Allergies    string   `json:"allergies,omitempty"`
	Medications  []string `json:"medications"`
}

// TotalHeightInches is feet*12 + inches, or 0 when feet is unset.
func (m MedicalInfo) TotalHeightInches() int {
	if m.HeightFeet <= 0 {
		return 0
	}
	total := m.HeightFeet * 12
	if m.HeightInches != nil {
		total += *m.HeightInches
	}
	return total
}

type InsuranceInfo struct {
	SelectedInsurance string `json:"selectedInsurance"`
}

// VeteranInfo.IsVeteran is nil until the question is answered.
type VeteranInfo struct {
	IsVeteran       *bool  `json:"isVeteran"`
	BranchOfService string `json:"branchOfService"`
}

type DocumentInfo struct {
	HasDisabilityLetter *bool  `json:"hasDisabilityLetter"`
	DisabilityLetter    string `json:"disabilityLetter,omitempty"`
}

type ConsentInfo struct {
	Signature       string `json:"signature,omitempty"`
	ConsentAccepted bool   `json:"consentAccepted"`
}

// Branches are the accepted answers for branchOfService.
var Branches = []string{"Army", "Marine Corps", "Navy", "Air Force", "Space Force", "Coast Guard"}

// AddressTarget picks one of the two address blocks.
type AddressTarget string

const (
	TargetCurrent AddressTarget = "current"
	TargetFMP     AddressTarget = "fmp"
)

// ParseAddressTarget validates a target name from a URL.
func ParseAddressTarget(s string) (AddressTarget, error) {
	switch AddressTarget(s) {
	case TargetCurrent, TargetFMP:
		return AddressTarget(s), nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownAddressTarget, s)
}

func (s *FormState) address(t AddressTarget) *Address {
	if t == TargetFMP {
		return &s.FMP
	}
	return &s.Current
}

// ToastKind is the severity of a toast.
type ToastKind string

const (
	ToastError   ToastKind = "error"
	ToastSuccess ToastKind = "success"
)

// Toast is the single transient message shown to the patient.
type Toast struct {
	Kind      ToastKind `json:"kind"`
	Message   string    `json:"message"`
	ExpiresAt time.Time `json:"expiresAt"`
}

func boolPtr(b bool) *bool { return &b }
func intPtr(i int) *int    { return &i }
