package registration

import "time"

// StepKey identifies a wizard step independent of its position.
type StepKey string

const (
	StepKeyOffice    StepKey = "office"
	StepKeyVeteran   StepKey = "veteran"
	StepKeyIDUpload  StepKey = "id-upload"
	StepKeyIDReview  StepKey = "id-review"
	StepKeyPersonal  StepKey = "personal"
	StepKeyIdentity  StepKey = "identity"
	StepKeyContact   StepKey = "contact"
	StepKeyMedical   StepKey = "medical"
	StepKeyInsurance StepKey = "insurance"
	StepKeyDocuments StepKey = "documents"
	StepKeyConsent   StepKey = "consent"
)

// Step indexes, in wizard order.
const (
	StepOffice = iota
	StepVeteran
	StepIDUpload
	StepIDReview
	StepPersonal
	StepIdentity
	StepContact
	StepMedical
	StepInsurance
	StepDocuments
	StepConsent
)

// NoticeInsufficientService is shown on the veteran step to patients who
// answered that they are not veterans. It never blocks progress.
const NoticeInsufficientService = "insufficient-service"

// Step describes one stage of the wizard.
type Step struct {
	Key   StepKey `json:"key"`
	Title string  `json:"title"`
	Icon  string  `json:"icon"`

	required func(s *FormState) []FieldID
	notice   func(s *FormState) string
}

// RequiredFields lists the fields that must validate before leaving the
// step, in the order they appear on screen.
func (st Step) RequiredFields(s *FormState) []FieldID {
	if st.required == nil {
		return nil
	}
	return st.required(s)
}

// Notice returns an informational notice for the current answers, if any.
func (st Step) Notice(s *FormState) string {
	if st.notice == nil {
		return ""
	}
	return st.notice(s)
}

func fields(ids ...FieldID) func(*FormState) []FieldID {
	return func(*FormState) []FieldID { return ids }
}

func isTrue(b *bool) bool { return b != nil && *b }

// Steps is the fixed step sequence.
var Steps = []Step{
	StepOffice: {
		Key: StepKeyOffice, Title: "Select Office", Icon: "building",
		required: fields(FieldSelectedOffice, FieldAgreeToTerms),
	},
	StepVeteran: {
		Key: StepKeyVeteran, Title: "Veteran Status", Icon: "star",
		required: func(s *FormState) []FieldID {
			if isTrue(s.Veteran.IsVeteran) {
				return []FieldID{FieldIsVeteran, FieldBranchOfService}
			}
			return []FieldID{FieldIsVeteran}
		},
		notice: func(s *FormState) string {
			if v := s.Veteran.IsVeteran; v != nil && !*v {
				return NoticeInsufficientService
			}
			return ""
		},
	},
	StepIDUpload: {
		Key: StepKeyIDUpload, Title: "Upload ID", Icon: "id-card",
		required: fields(FieldIDCardImage),
	},
	StepIDReview: {
		Key: StepKeyIDReview, Title: "Review ID", Icon: "check-circle",
		required: fields(FieldExtractedFirstName, FieldExtractedLastName, FieldExtractedDOB, FieldExtractedSex),
	},
	StepPersonal: {
		Key: StepKeyPersonal, Title: "Personal Info", Icon: "user",
		required: fields(FieldFirstName, FieldLastName, FieldDOBMonth, FieldDOBDay, FieldDOBYear, FieldDateOfBirth, FieldSex, FieldSSN),
	},
	StepIdentity: {
		Key: StepKeyIdentity, Title: "Identity", Icon: "shield",
		required: fields(FieldSelfie),
	},
	StepContact: {
		Key: StepKeyContact, Title: "Contact", Icon: "phone",
		required: fields(
			FieldEmail, FieldPhoneCountry, FieldPhone,
			FieldCurrentStreet, FieldCurrentCity, FieldCurrentState, FieldCurrentZip,
			FieldFMPStreet, FieldFMPCity, FieldFMPState, FieldFMPZip,
		),
	},
	StepMedical: {
		Key: StepKeyMedical, Title: "Medical", Icon: "heart",
		required: fields(FieldWeight, FieldHeightFeet, FieldHeightInches, FieldHeight, FieldPainLevel, FieldMedications),
	},
	StepInsurance: {
		Key: StepKeyInsurance, Title: "Insurance", Icon: "credit-card",
		required: fields(FieldSelectedInsurance),
	},
	StepDocuments: {
		Key: StepKeyDocuments, Title: "Documents", Icon: "file-text",
		required: func(s *FormState) []FieldID {
			if isTrue(s.Documents.HasDisabilityLetter) {
				return []FieldID{FieldHasDisabilityLetter, FieldDisabilityLetter}
			}
			return []FieldID{FieldHasDisabilityLetter}
		},
	},
	// Signature and consent are checked by Submit, not by Next.
	StepConsent: {
		Key: StepKeyConsent, Title: "Consent & Signature", Icon: "signature",
	},
}

// LastStep is the index of the submission step.
var LastStep = len(Steps) - 1

// SubmitFields are validated on submit.
var SubmitFields = []FieldID{FieldSignature, FieldConsentAccepted}

// CompletionFields lists everything that must validate for step index to be
// done: the fields Next checks, plus SubmitFields on the last step.
func CompletionFields(index int, s *FormState) []FieldID {
	if index < 0 || index > LastStep {
		return nil
	}
	ids := Steps[index].RequiredFields(s)
	if index == LastStep {
		ids = append(append([]FieldID(nil), ids...), SubmitFields...)
	}
	return ids
}

// failing returns the ids that do not validate, preserving order.
func failing(ids []FieldID, s *FormState, now time.Time) []FieldID {
	var out []FieldID
	for _, id := range ids {
		if !Validate(id, s, now) {
			out = append(out, id)
		}
	}
	return out
}
