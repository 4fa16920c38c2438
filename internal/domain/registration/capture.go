package registration

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/intake/intake/internal/platform/attachment"
	"github.com/intake/intake/internal/platform/vision"
)

// AutoAdvanceDelay is how long the review of a freshly read ID is deferred
// so the patient can see the success message.
const AutoAdvanceDelay = 1500 * time.Millisecond

// UploadID stores a photographed ID and runs it through the extractor. The
// image is shown right away; if extraction fails it is withdrawn and an
// error toast is raised. On success the extracted fields are staged, copied
// into the personal details, and the wizard moves to the review step after
// AutoAdvanceDelay unless the patient navigates first.
func (w *Wizard) UploadID(ctx context.Context, dataURI string) error {
	if err := w.lock(); err != nil {
		return err
	}
	if w.completed {
		w.mu.Unlock()
		return ErrAlreadySubmitted
	}
	if w.processingID {
		w.mu.Unlock()
		return ErrExtractionInProgress
	}
	now := w.clock.Now()
	uri, err := attachment.Validate(attachment.CategoryIDCard, dataURI)
	if err != nil {
		w.toast.show(ToastError, msgInvalidAttachment, now)
		w.mu.Unlock()
		return &FieldError{Field: string(FieldIDCardImage), Err: err}
	}
	previous := w.state.Identity.IDCardImage
	w.state.Identity.IDCardImage = dataURI
	w.feedback.observe(FieldIDCardImage, true, now)
	w.cancelAutoAdvance()
	w.processingID = true
	w.mu.Unlock()

	data, err := w.extract(ctx, dataURI)

	w.mu.Lock()
	defer w.mu.Unlock()
	w.processingID = false
	if w.closed {
		return ErrSessionClosed
	}
	now = w.clock.Now()
	if err != nil {
		w.state.Identity.IDCardImage = previous
		w.feedback.observe(FieldIDCardImage, previous != "", now)
		msg := msgIDProcessFailed
		var pm publicMessager
		if errors.As(err, &pm) && pm.PublicMessage() != "" {
			msg = pm.PublicMessage()
		}
		w.toast.show(ToastError, msg, now)
		w.logger.Warn().Err(err).Msg("id extraction failed")
		return fmt.Errorf("%w: %w", ErrExtractionFailed, err)
	}

	if _, err := w.store.Put(ctx, w.id.String(), attachment.CategoryIDCard, uri); err != nil {
		w.logger.Warn().Err(err).Msg("id card not stored")
	}
	w.applyExtraction(data, now)
	w.toast.show(ToastSuccess, msgIDProcessed, now)
	w.scheduleAutoAdvance()
	return nil
}

// extract calls the extractor outside the lock. The call is abandoned when
// either the request or the session ends.
func (w *Wizard) extract(ctx context.Context, dataURI string) (*vision.IDData, error) {
	if w.deps.Extractor == nil {
		return nil, errors.New("no id extractor configured")
	}
	xctx, cancel := w.linked(ctx)
	defer cancel()
	return w.deps.Extractor.ExtractID(xctx, dataURI)
}

func (w *Wizard) applyExtraction(data *vision.IDData, now time.Time) {
	prev := w.state.Extracted
	w.state.Extracted = ExtractedID{
		FirstName: strings.TrimSpace(data.FirstName),
		LastName:  strings.TrimSpace(data.LastName),
		DOB:       strings.TrimSpace(data.DOB),
		Sex:       NormalizeSex(data.Sex),
	}
	touched := map[FieldID]bool{
		FieldExtractedFirstName: true,
		FieldExtractedLastName:  true,
		FieldExtractedDOB:       true,
		FieldExtractedSex:       true,
	}
	for _, id := range propagateExtracted(&w.state, prev, nil) {
		touched[id] = true
	}
	w.observe(touched, now)
}

// propagateExtracted copies staged ID fields into the personal details.
// Only fields listed in which are considered; nil means all of them. Names
// are copied only while the patient has not typed something different.
// It returns the personal fields it changed.
func propagateExtracted(s *FormState, prev ExtractedID, which map[FieldID]bool) []FieldID {
	want := func(id FieldID) bool { return which == nil || which[id] }
	var changed []FieldID

	if want(FieldExtractedFirstName) && s.Extracted.FirstName != "" &&
		(s.Identity.FirstName == "" || s.Identity.FirstName == prev.FirstName) {
		s.Identity.FirstName = s.Extracted.FirstName
		changed = append(changed, FieldFirstName)
	}
	if want(FieldExtractedLastName) && s.Extracted.LastName != "" &&
		(s.Identity.LastName == "" || s.Identity.LastName == prev.LastName) {
		s.Identity.LastName = s.Extracted.LastName
		changed = append(changed, FieldLastName)
	}
	if want(FieldExtractedDOB) {
		if y, m, d, ok := ParseExtractedDOB(s.Extracted.DOB); ok {
			s.Identity.DOBYear, s.Identity.DOBMonth, s.Identity.DOBDay = y, m, d
			changed = append(changed, FieldDOBMonth, FieldDOBDay, FieldDOBYear, FieldDateOfBirth)
		}
	}
	if want(FieldExtractedSex) && s.Extracted.Sex != "" {
		s.Extracted.Sex = NormalizeSex(s.Extracted.Sex)
		s.Identity.Sex = s.Extracted.Sex
		changed = append(changed, FieldSex)
	}
	return changed
}

// NormalizeSex maps the single-letter codes printed on IDs to the values
// offered on the personal step.
func NormalizeSex(v string) string {
	v = strings.TrimSpace(v)
	switch strings.ToUpper(v) {
	case "M", "MALE":
		return "Male"
	case "F", "FEMALE":
		return "Female"
	}
	return v
}

// ---------------------------------------------------------------------------
// Auto-advance
// ---------------------------------------------------------------------------

func (w *Wizard) scheduleAutoAdvance() {
	w.cancelAutoAdvance()
	gen := w.advanceGen
	w.advanceTimer = w.clock.AfterFunc(AutoAdvanceDelay, func() { w.fireAutoAdvance(gen) })
}

// cancelAutoAdvance stops a pending auto-advance. Bumping the generation
// also disarms a callback that already started running.
func (w *Wizard) cancelAutoAdvance() {
	if w.advanceTimer != nil {
		w.advanceTimer.Stop()
		w.advanceTimer = nil
	}
	w.advanceGen++
}

func (w *Wizard) fireAutoAdvance(gen uint64) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed || gen != w.advanceGen {
		return
	}
	w.advanceTimer = nil
	if w.step != StepIDUpload {
		return
	}
	if err := w.next(w.clock.Now()); err != nil {
		w.logger.Debug().Err(err).Msg("auto-advance blocked")
	}
}
