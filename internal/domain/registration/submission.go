package registration

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/intake/intake/internal/platform/attachment"
	"github.com/intake/intake/internal/platform/leads"
)

// Payload is the registration document handed to the submitter.
type Payload struct {
	Office        OfficeSection        `json:"office"`
	PersonalInfo  PersonalSection      `json:"personalInfo"`
	Addresses     AddressesSection     `json:"addresses"`
	Identity      IdentitySection      `json:"identity"`
	Contact       ContactSection       `json:"contact"`
	Medical       MedicalSection       `json:"medical"`
	Insurance     InsuranceSection     `json:"insurance"`
	Veteran       VeteranSection       `json:"veteran"`
	Documentation DocumentationSection `json:"documentation"`
	Consent       ConsentSection       `json:"consent"`
	Attachments   AttachmentsSection   `json:"attachments"`
	Registration  RegistrationSection  `json:"registration"`
}

type OfficeSection struct {
	SelectedOffice string          `json:"selectedOffice"`
	AgreeToTerms   bool            `json:"agreeToTerms"`
	Facility       *leads.Facility `json:"facility,omitempty"`
}

type PersonalSection struct {
	FirstName   string `json:"firstName"`
	LastName    string `json:"lastName"`
	DateOfBirth string `json:"dateOfBirth"`
	Sex         string `json:"sex"`
	SSN         string `json:"ssn"`
}

type AddressesSection struct {
	Current Address `json:"current"`
	FMP     Address `json:"fmp"`
}

type IdentitySection struct {
	Extracted  ExtractedID `json:"extracted"`
	HasIDCard  bool        `json:"hasIdCard"`
	HasSelfie  bool        `json:"hasSelfie"`
	IDVerified bool        `json:"idVerified"`
}

type ContactSection struct {
	Email                 string `json:"email"`
	Phone                 string `json:"phone"`
	PhoneCountry          string `json:"phoneCountry"`
	EmergencyContactName  string `json:"emergencyContactName,omitempty"`
	EmergencyContactPhone string `json:"emergencyContactPhone,omitempty"`
}

type MedicalSection struct {
	Weight      float64  `json:"weight"`
	HeightFeet  int      `json:"heightFeet"`
	HeightInch  int      `json:"heightInches"`
	TotalHeight int      `json:"totalHeightInches"`
	PainLevel   int      `json:"painLevel"`
	Allergies   string   `json:"allergies,omitempty"`
	Medications []string `json:"medications"`
}

type InsuranceSection struct {
	SelectedInsurance string           `json:"selectedInsurance"`
	Plan              *leads.Insurance `json:"plan,omitempty"`
}

type VeteranSection struct {
	IsVeteran       bool   `json:"isVeteran"`
	BranchOfService string `json:"branchOfService,omitempty"`
}

type DocumentationSection struct {
	HasDisabilityLetter bool `json:"hasDisabilityLetter"`
}

type ConsentSection struct {
	ConsentAccepted bool `json:"consentAccepted"`
	HasSignature    bool `json:"hasSignature"`
}

// AttachmentsSection carries the uploaded files as data URIs, together with
// what the attachment store recorded about them.
type AttachmentsSection struct {
	IDCardImage      string                 `json:"idCardImage,omitempty"`
	Selfie           string                 `json:"selfie,omitempty"`
	DisabilityLetter string                 `json:"disabilityLetter,omitempty"`
	Signature        string                 `json:"signature,omitempty"`
	Manifest         []*attachment.Metadata `json:"manifest"`
}

type RegistrationSection struct {
	SessionID string    `json:"sessionId"`
	Timestamp time.Time `json:"timestamp"`
	FinalStep int       `json:"finalStep"`
	Completed bool      `json:"completed"`
}

// AssembleInput is everything AssemblePayload reads.
type AssembleInput struct {
	SessionID uuid.UUID
	State     *FormState
	Step      int
	Completed bool
	Facility  *leads.Facility
	Insurance *leads.Insurance
	Manifest  []*attachment.Metadata
	Now       time.Time
}

// AssemblePayload builds the nested registration document from a form.
func AssemblePayload(in AssembleInput) *Payload {
	s := in.State
	manifest := in.Manifest
	if manifest == nil {
		manifest = []*attachment.Metadata{}
	}
	meds := s.Medical.Medications
	if meds == nil {
		meds = []string{}
	}
	inches := 0
	if s.Medical.HeightInches != nil {
		inches = *s.Medical.HeightInches
	}

	p := &Payload{
		Office: OfficeSection{
			SelectedOffice: s.Office.SelectedOffice,
			AgreeToTerms:   s.Office.AgreeToTerms,
			Facility:       in.Facility,
		},
		PersonalInfo: PersonalSection{
			FirstName:   s.Identity.FirstName,
			LastName:    s.Identity.LastName,
			DateOfBirth: s.Identity.DateOfBirth(),
			Sex:         s.Identity.Sex,
			SSN:         s.Identity.SSN,
		},
		Addresses: AddressesSection{Current: s.Current, FMP: s.FMP},
		Identity: IdentitySection{
			Extracted:  s.Extracted,
			HasIDCard:  s.Identity.IDCardImage != "",
			HasSelfie:  s.Identity.Selfie != "",
			IDVerified: s.Extracted.FirstName != "" && s.Extracted.LastName != "",
		},
		Contact: ContactSection{
			Email:                 s.Contact.Email,
			Phone:                 s.Contact.Phone,
			PhoneCountry:          s.Contact.PhoneCountry,
			EmergencyContactName:  s.Contact.EmergencyContactName,
			EmergencyContactPhone: s.Contact.EmergencyContactPhone,
		},
		Medical: MedicalSection{
			Weight:      s.Medical.Weight,
			HeightFeet:  s.Medical.HeightFeet,
			HeightInch:  inches,
			TotalHeight: s.Medical.TotalHeightInches(),
			PainLevel:   s.Medical.PainLevel,
			Allergies:   s.Medical.Allergies,
			Medications: meds,
		},
		Insurance: InsuranceSection{
			SelectedInsurance: s.Insurance.SelectedInsurance,
			Plan:              in.Insurance,
		},
		Veteran: VeteranSection{IsVeteran: isTrue(s.Veteran.IsVeteran)},
		Documentation: DocumentationSection{
			HasDisabilityLetter: isTrue(s.Documents.HasDisabilityLetter),
		},
		Consent: ConsentSection{
			ConsentAccepted: s.Consent.ConsentAccepted,
			HasSignature:    s.Consent.Signature != "",
		},
		Attachments: AttachmentsSection{
			IDCardImage: s.Identity.IDCardImage,
			Selfie:      s.Identity.Selfie,
			Signature:   s.Consent.Signature,
			Manifest:    manifest,
		},
		Registration: RegistrationSection{
			SessionID: in.SessionID.String(),
			Timestamp: in.Now.UTC(),
			FinalStep: in.Step,
			Completed: in.Completed,
		},
	}
	if p.Veteran.IsVeteran {
		p.Veteran.BranchOfService = s.Veteran.BranchOfService
	}
	if p.Documentation.HasDisabilityLetter {
		p.Attachments.DisabilityLetter = s.Documents.DisabilityLetter
	}
	p.Attachments.Manifest = sentOnly(manifest, p.Attachments)
	return p
}

// sentOnly drops manifest entries whose file is not in the payload.
func sentOnly(manifest []*attachment.Metadata, a AttachmentsSection) []*attachment.Metadata {
	present := map[attachment.Category]bool{
		attachment.CategoryIDCard:           a.IDCardImage != "",
		attachment.CategorySelfie:           a.Selfie != "",
		attachment.CategorySignature:        a.Signature != "",
		attachment.CategoryDisabilityLetter: a.DisabilityLetter != "",
	}
	out := make([]*attachment.Metadata, 0, len(manifest))
	for _, m := range manifest {
		if present[m.Category] {
			out = append(out, m)
		}
	}
	return out
}

// Payload previews the document Submit would send.
func (w *Wizard) Payload(ctx context.Context) (*Payload, error) {
	if err := w.lock(); err != nil {
		return nil, err
	}
	defer w.mu.Unlock()
	return w.assemble(ctx, w.completed), nil
}

func (w *Wizard) assemble(ctx context.Context, completed bool) *Payload {
	manifest, err := w.store.ListBySession(ctx, w.id.String())
	if err != nil {
		w.logger.Warn().Err(err).Msg("attachment manifest unavailable")
	}
	state := w.state
	return AssemblePayload(AssembleInput{
		SessionID: w.id,
		State:     &state,
		Step:      w.step,
		Completed: completed,
		Facility:  w.selectedFacility(),
		Insurance: w.selectedInsurance(),
		Manifest:  manifest,
		Now:       w.clock.Now(),
	})
}

// Submit sends the registration. It is only possible from the final step
// and only once. Signature and consent are checked first, with the same
// feedback as a blocked Next. A failed or declined submission leaves the
// wizard on the final step with an error toast.
func (w *Wizard) Submit(ctx context.Context) error {
	if err := w.lock(); err != nil {
		return err
	}
	if w.completed {
		w.mu.Unlock()
		return ErrAlreadySubmitted
	}
	if w.step != LastStep {
		w.mu.Unlock()
		return ErrNotFinalStep
	}
	if w.submitting {
		w.mu.Unlock()
		return ErrSubmissionInProgress
	}
	now := w.clock.Now()
	if bad := failing(SubmitFields, &w.state, now); len(bad) > 0 {
		w.feedback.reject(bad, now)
		w.focus = string(bad[0])
		w.mu.Unlock()
		return &ValidationError{Fields: bad}
	}
	for _, id := range SubmitFields {
		w.feedback.observe(id, true, now)
	}
	payload := w.assemble(ctx, true)
	submitter := w.deps.Submitter
	w.submitting = true
	w.mu.Unlock()

	var (
		res *leads.SignupResult
		err error
	)
	if submitter == nil {
		err = errors.New("no submitter configured")
	} else {
		sctx, cancel := w.linked(ctx)
		res, err = submitter.Signup(sctx, payload)
		cancel()
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	w.submitting = false
	if w.closed {
		return ErrSessionClosed
	}
	now = w.clock.Now()
	switch {
	case err != nil:
		w.toast.show(ToastError, msgSubmitFailed, now)
		w.logger.Error().Err(err).Msg("registration submission failed")
		return fmt.Errorf("%w: %w", ErrSubmissionFailed, err)
	case !res.OK():
		msg := msgSubmitFailed
		if res != nil && res.Message != "" {
			msg = res.Message
		}
		w.toast.show(ToastError, msg, now)
		w.logger.Warn().Str("status", statusOf(res)).Msg("registration declined")
		return fmt.Errorf("%w: status %q", ErrSubmissionFailed, statusOf(res))
	}

	w.completed = true
	w.toast.show(ToastSuccess, msgSubmitted, now)
	w.logger.Info().Msg("registration submitted")
	return nil
}

func statusOf(r *leads.SignupResult) string {
	if r == nil {
		return ""
	}
	return r.Status
}
