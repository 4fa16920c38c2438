package registration

import (
	"context"
	"encoding/json"
	"errors"
	"reflect"
	"testing"

	"github.com/intake/intake/internal/platform/attachment"
)

func TestNewWizard_Defaults(t *testing.T) {
	w, _ := newTestWizard()
	v := w.View()
	if v.Step != StepOffice || v.FurthestStep != 0 || v.TotalSteps != 11 {
		t.Errorf("step=%d furthest=%d total=%d", v.Step, v.FurthestStep, v.TotalSteps)
	}
	if v.Form.Contact.PhoneCountry != "US" || v.Form.Current.Country != "US" || v.Form.FMP.Country != "US" {
		t.Errorf("unexpected country defaults: %+v %+v", v.Form.Contact, v.Form.Current)
	}
	if v.Toast != nil {
		t.Errorf("expected no toast, got %+v", v.Toast)
	}
	if len(v.Steps) != len(Steps) || !v.Steps[0].Current || v.Steps[1].Reachable {
		t.Errorf("unexpected progress: %+v", v.Steps)
	}
}

func TestNext_BlockedLeavesStepAndFlagsFields(t *testing.T) {
	w, env := newTestWizard()

	err := w.Next()
	var verr *ValidationError
	if !errors.As(err, &verr) || !errors.Is(err, ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	want := []FieldID{FieldSelectedOffice, FieldAgreeToTerms}
	if !reflect.DeepEqual(verr.Fields, want) {
		t.Errorf("fields = %v, want %v", verr.Fields, want)
	}

	v := w.View()
	if v.Step != StepOffice {
		t.Errorf("step = %d, want %d", v.Step, StepOffice)
	}
	if v.Focus != string(FieldSelectedOffice) {
		t.Errorf("focus = %q", v.Focus)
	}
	if !reflect.DeepEqual(v.Feedback.Invalid, []FieldID{FieldAgreeToTerms, FieldSelectedOffice}) {
		t.Errorf("invalid = %v", v.Feedback.Invalid)
	}
	if len(v.Feedback.Shaking) != 2 {
		t.Errorf("shaking = %v", v.Feedback.Shaking)
	}

	env.clock.Advance(ShakeAnimation)
	v = w.View()
	if len(v.Feedback.Shaking) != 0 || len(v.Feedback.Invalid) != 2 {
		t.Errorf("after shake: shaking=%v invalid=%v", v.Feedback.Shaking, v.Feedback.Invalid)
	}
}

func TestNext_RepeatedWhileInvalidIsStable(t *testing.T) {
	w, _ := newTestWizard()
	mustSet(t, w, map[string]any{"selectedOffice": "1"})

	_ = w.Next()
	first := w.View()
	_ = w.Next()
	second := w.View()
	if first.Step != second.Step || !reflect.DeepEqual(first.Feedback.Invalid, second.Feedback.Invalid) {
		t.Errorf("second attempt changed things: %v -> %v", first.Feedback.Invalid, second.Feedback.Invalid)
	}
	if !reflect.DeepEqual(second.Feedback.Invalid, []FieldID{FieldAgreeToTerms}) {
		t.Errorf("invalid = %v", second.Feedback.Invalid)
	}
}

func TestNext_AdvancesExactlyOne(t *testing.T) {
	w, _ := newTestWizard()
	mustSet(t, w, validAnswers[StepOffice])
	if err := w.Next(); err != nil {
		t.Fatal(err)
	}
	v := w.View()
	if v.Step != StepVeteran || v.FurthestStep != StepVeteran {
		t.Errorf("step=%d furthest=%d", v.Step, v.FurthestStep)
	}
	if v.Focus != FocusForm {
		t.Errorf("focus = %q", v.Focus)
	}
	if len(v.Feedback.Invalid) != 0 {
		t.Errorf("invalid marks left: %v", v.Feedback.Invalid)
	}
}

func TestNext_EditingClearsInvalidMark(t *testing.T) {
	w, _ := newTestWizard()
	_ = w.Next()
	mustSet(t, w, map[string]any{"agreeToTerms": true})
	v := w.View()
	if !reflect.DeepEqual(v.Feedback.Invalid, []FieldID{FieldSelectedOffice}) {
		t.Errorf("invalid = %v", v.Feedback.Invalid)
	}
	if got := v.Feedback.Fields[FieldAgreeToTerms].State; got != ValidJustNow {
		t.Errorf("agreeToTerms = %s", got)
	}
}

func TestFeedback_SuccessAnimationOnlyOnce(t *testing.T) {
	w, env := newTestWizard()
	mustSet(t, w, map[string]any{"email": "jane@example.com"})
	if got := w.View().Feedback.Fields[FieldEmail].State; got != ValidJustNow {
		t.Fatalf("state = %s, want %s", got, ValidJustNow)
	}
	env.clock.Advance(SuccessAnimation)
	if got := w.View().Feedback.Fields[FieldEmail].State; got != Valid {
		t.Fatalf("state = %s, want %s", got, Valid)
	}

	mustSet(t, w, map[string]any{"email": "nope"})
	mustSet(t, w, map[string]any{"email": "jane@example.org"})
	if got := w.View().Feedback.Fields[FieldEmail].State; got != Valid {
		t.Errorf("second valid transition state = %s, want %s", got, Valid)
	}
}

func TestVeteran_ConditionalBranch(t *testing.T) {
	w, _ := newTestWizard()
	advanceTo(t, w, StepVeteran)

	if got := w.CurrentStepFields(); !reflect.DeepEqual(got, []FieldID{FieldIsVeteran}) {
		t.Errorf("unanswered: fields = %v", got)
	}
	mustSet(t, w, map[string]any{"isVeteran": true})
	if got := w.CurrentStepFields(); !reflect.DeepEqual(got, []FieldID{FieldIsVeteran, FieldBranchOfService}) {
		t.Errorf("veteran: fields = %v", got)
	}
	err := w.Next()
	var verr *ValidationError
	if !errors.As(err, &verr) || !reflect.DeepEqual(verr.Fields, []FieldID{FieldBranchOfService}) {
		t.Fatalf("expected branch to be required, got %v", err)
	}

	mustSet(t, w, map[string]any{"isVeteran": false})
	if got := w.View().Notice; got != NoticeInsufficientService {
		t.Errorf("notice = %q", got)
	}
	if err := w.Next(); err != nil {
		t.Fatalf("a non-veteran should not be blocked: %v", err)
	}
}

func TestDocuments_ConditionalLetter(t *testing.T) {
	s := &FormState{}
	if got := Steps[StepDocuments].RequiredFields(s); !reflect.DeepEqual(got, []FieldID{FieldHasDisabilityLetter}) {
		t.Errorf("unanswered: %v", got)
	}
	s.Documents.HasDisabilityLetter = boolPtr(true)
	want := []FieldID{FieldHasDisabilityLetter, FieldDisabilityLetter}
	if got := Steps[StepDocuments].RequiredFields(s); !reflect.DeepEqual(got, want) {
		t.Errorf("with letter: %v", got)
	}
}

func TestPrev(t *testing.T) {
	w, _ := newTestWizard()
	if err := w.Prev(); err != nil || w.Step() != StepOffice {
		t.Fatalf("prev on first step: step=%d err=%v", w.Step(), err)
	}

	advanceTo(t, w, StepIDUpload)
	_ = w.Next()
	if err := w.Prev(); err != nil {
		t.Fatal(err)
	}
	v := w.View()
	if v.Step != StepVeteran || v.FurthestStep != StepIDUpload {
		t.Errorf("step=%d furthest=%d", v.Step, v.FurthestStep)
	}
	if len(v.Feedback.Invalid) != 0 {
		t.Errorf("prev should clear invalid marks: %v", v.Feedback.Invalid)
	}
}

func TestGoto(t *testing.T) {
	w, _ := newTestWizard()
	advanceTo(t, w, StepIDUpload)

	if err := w.Goto(StepPersonal); !errors.Is(err, ErrStepLocked) {
		t.Errorf("goto ahead: %v", err)
	}
	if err := w.Goto(42); !errors.Is(err, ErrStepOutOfRange) {
		t.Errorf("goto out of range: %v", err)
	}
	if err := w.Goto(-1); !errors.Is(err, ErrStepOutOfRange) {
		t.Errorf("goto negative: %v", err)
	}
	if err := w.Goto(StepOffice); err != nil || w.Step() != StepOffice {
		t.Errorf("goto back: step=%d err=%v", w.Step(), err)
	}
	if err := w.Goto(StepIDUpload); err != nil || w.Step() != StepIDUpload {
		t.Errorf("goto furthest: step=%d err=%v", w.Step(), err)
	}
}

func TestNext_OnFinalStep(t *testing.T) {
	w, _ := newTestWizard()
	advanceTo(t, w, StepConsent)
	if err := w.Next(); !errors.Is(err, ErrNoNextStep) {
		t.Errorf("expected ErrNoNextStep, got %v", err)
	}
	if !w.View().IsFinalStep {
		t.Error("expected final step")
	}
}

func TestSetFields_AllOrNothing(t *testing.T) {
	w, _ := newTestWizard()
	patch := map[string]json.RawMessage{
		"email":     json.RawMessage(`"jane@example.com"`),
		"dobMonth":  json.RawMessage(`"March"`),
		"firstName": json.RawMessage(`"Jane"`),
	}
	err := w.SetFields(context.Background(), patch)
	var ferr *FieldError
	if !errors.As(err, &ferr) || ferr.Field != string(FieldDOBMonth) {
		t.Fatalf("expected dobMonth error, got %v", err)
	}
	s := w.State()
	if s.Contact.Email != "" || s.Identity.FirstName != "" {
		t.Errorf("partial patch applied: %+v", s)
	}
}

func TestSetFields_DerivedFieldsObserved(t *testing.T) {
	w, _ := newTestWizard()
	mustSet(t, w, map[string]any{"dobMonth": 1, "dobDay": 1, "dobYear": 1990})
	if got := w.View().Feedback.Fields[FieldDateOfBirth].State; got != ValidJustNow {
		t.Errorf("dateOfBirth = %s", got)
	}
	mustSet(t, w, map[string]any{"heightFeet": 5})
	if got := w.View().Feedback.Fields[FieldHeight].State; got != ValidJustNow {
		t.Errorf("height = %s", got)
	}
}

func TestSetFields_StoresAttachments(t *testing.T) {
	w, env := newTestWizard()
	mustSet(t, w, map[string]any{"selfie": pngURI})
	list, err := env.store.ListBySession(context.Background(), w.ID().String())
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 1 || list[0].ContentType != "image/png" {
		t.Errorf("manifest = %+v", list)
	}
	v := w.View()
	if v.Form.Identity.Selfie != "" || !v.Files[FieldSelfie] {
		t.Error("view should flag the selfie without carrying it")
	}
}

func TestSetFields_ClearingFileDropsAttachment(t *testing.T) {
	w, env := newTestWizard()
	mustSet(t, w, map[string]any{"selfie": pngURI, "signature": pngURI})
	mustSet(t, w, map[string]any{"selfie": ""})

	list, err := env.store.ListBySession(context.Background(), w.ID().String())
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 1 || list[0].Category != attachment.CategorySignature {
		t.Errorf("manifest = %+v", list)
	}
	if w.View().Files[FieldSelfie] {
		t.Error("selfie still flagged")
	}
}

func TestSetFields_ExtractedEditsPropagate(t *testing.T) {
	w, _ := newTestWizard()
	mustSet(t, w, map[string]any{"extractedFirstName": "Jane", "extractedDob": "02/03/1985", "extractedSex": "m"})
	s := w.State()
	if s.Identity.FirstName != "Jane" {
		t.Errorf("firstName = %q", s.Identity.FirstName)
	}
	if s.Identity.DOBYear != 1985 || s.Identity.DOBMonth != 2 || s.Identity.DOBDay != 3 {
		t.Errorf("dob = %d-%d-%d", s.Identity.DOBYear, s.Identity.DOBMonth, s.Identity.DOBDay)
	}
	if s.Identity.Sex != "Male" || s.Extracted.Sex != "Male" {
		t.Errorf("sex = %q / %q", s.Identity.Sex, s.Extracted.Sex)
	}

	// a name the patient typed is not overwritten
	mustSet(t, w, map[string]any{"firstName": "Janet"})
	mustSet(t, w, map[string]any{"extractedFirstName": "Janie"})
	if got := w.State().Identity.FirstName; got != "Janet" {
		t.Errorf("firstName = %q, want Janet", got)
	}
}

func TestToast_ExpiresAndDismisses(t *testing.T) {
	w, env := newTestWizard()
	env.extractor.err = errors.New("boom")
	advanceTo(t, w, StepIDUpload)
	_ = w.UploadID(context.Background(), pngURI)

	if w.Toast() == nil {
		t.Fatal("expected a toast")
	}
	env.clock.Advance(ToastDuration - 1)
	if w.Toast() == nil {
		t.Fatal("toast gone too early")
	}
	env.clock.Advance(1)
	if w.Toast() != nil {
		t.Fatal("toast should have expired")
	}

	_ = w.UploadID(context.Background(), pngURI)
	if err := w.DismissToast(); err != nil {
		t.Fatal(err)
	}
	if w.Toast() != nil {
		t.Error("toast should be dismissed")
	}
}

func TestClosedWizardRejectsOperations(t *testing.T) {
	w, _ := newTestWizard()
	w.Close()
	w.Close()
	if err := w.Next(); !errors.Is(err, ErrSessionClosed) {
		t.Errorf("Next: %v", err)
	}
	if err := w.SetFields(context.Background(), patchOf(t, map[string]any{"email": "a@b.co"})); !errors.Is(err, ErrSessionClosed) {
		t.Errorf("SetFields: %v", err)
	}
}

func TestCompletionFields(t *testing.T) {
	s := &FormState{}
	if got := CompletionFields(StepOffice, s); !reflect.DeepEqual(got, []FieldID{FieldSelectedOffice, FieldAgreeToTerms}) {
		t.Errorf("office = %v", got)
	}
	if got := CompletionFields(LastStep, s); !reflect.DeepEqual(got, SubmitFields) {
		t.Errorf("final step = %v", got)
	}
	if got := CompletionFields(LastStep+1, s); got != nil {
		t.Errorf("out of range = %v", got)
	}
}
