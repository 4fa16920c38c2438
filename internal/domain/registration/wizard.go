package registration

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/intake/intake/internal/platform/attachment"
	"github.com/intake/intake/internal/platform/leads"
	"github.com/intake/intake/internal/platform/places"
)

// FocusForm is the focus target after a successful transition.
const FocusForm = "form"

// Wizard is one patient's registration session. All methods are safe for
// concurrent use; collaborator calls are made without holding the lock.
type Wizard struct {
	id     uuid.UUID
	clock  Clock
	deps   Collaborators
	store  attachment.Store
	logger zerolog.Logger

	// ctx lives as long as the session; Close cancels it.
	ctx    context.Context
	cancel context.CancelFunc

	mu           sync.Mutex
	closed       bool
	state        FormState
	step         int
	furthest     int
	feedback     *feedback
	toast        toastSlot
	focus        string
	processingID bool
	advanceTimer Timer
	advanceGen   uint64
	boxes        map[AddressTarget]*suggestionBox
	facilities   []leads.Facility
	insurances   []leads.Insurance
	submitting   bool
	completed    bool
	createdAt    time.Time
	lastActive   time.Time
}

func newWizard(id uuid.UUID, deps Collaborators, store attachment.Store, clock Clock, logger zerolog.Logger) *Wizard {
	ctx, cancel := context.WithCancel(context.Background())
	now := clock.Now()
	w := &Wizard{
		id:       id,
		clock:    clock,
		deps:     deps,
		store:    store,
		logger:   logger,
		ctx:      ctx,
		cancel:   cancel,
		feedback: newFeedback(),
		boxes: map[AddressTarget]*suggestionBox{
			TargetCurrent: {},
			TargetFMP:     {},
		},
		createdAt:  now,
		lastActive: now,
	}
	w.state.Contact.PhoneCountry = "US"
	w.state.Current.Country = places.DefaultCountry
	w.state.FMP.Country = places.DefaultCountry
	return w
}

// ID returns the session id.
func (w *Wizard) ID() uuid.UUID { return w.id }

// idleSince reports when the session was last used.
func (w *Wizard) idleSince() time.Time {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.lastActive
}

// lock acquires the wizard and fails if the session is closed. Callers must
// unlock.
func (w *Wizard) lock() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return ErrSessionClosed
	}
	w.lastActive = w.clock.Now()
	return nil
}

// Close ends the session: the lifetime context is cancelled, which aborts
// in-flight collaborator calls, and any pending auto-advance is dropped.
func (w *Wizard) Close() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return
	}
	w.closed = true
	w.cancelAutoAdvance()
	w.cancel()
}

// ---------------------------------------------------------------------------
// Field edits
// ---------------------------------------------------------------------------

// dependents are derived fields whose validity changes with a source field.
var dependents = map[FieldID][]FieldID{
	FieldDOBMonth:     {FieldDateOfBirth},
	FieldDOBDay:       {FieldDateOfBirth},
	FieldDOBYear:      {FieldDateOfBirth},
	FieldHeightFeet:   {FieldHeight},
	FieldHeightInches: {FieldHeight},
	FieldPhoneCountry: {FieldPhone},
}

// SetFields applies a batch of edits. Either every value is applied or, on
// the first bad value, none is.
func (w *Wizard) SetFields(ctx context.Context, patch map[string]json.RawMessage) error {
	if err := w.lock(); err != nil {
		return err
	}
	defer w.mu.Unlock()
	if w.completed {
		return ErrAlreadySubmitted
	}

	keys := make([]string, 0, len(patch))
	for k := range patch {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	next := w.state
	touched := make(map[FieldID]bool, len(keys))
	for _, k := range keys {
		id := FieldID(k)
		if err := next.Set(id, patch[k]); err != nil {
			return err
		}
		touched[id] = true
	}

	extracted := map[FieldID]bool{}
	for _, id := range []FieldID{FieldExtractedFirstName, FieldExtractedLastName, FieldExtractedDOB, FieldExtractedSex} {
		if touched[id] {
			extracted[id] = true
		}
	}
	if len(extracted) > 0 {
		for _, id := range propagateExtracted(&next, w.state.Extracted, extracted) {
			touched[id] = true
		}
	}

	w.state = next
	now := w.clock.Now()
	w.observe(touched, now)
	w.storeFiles(ctx, keys)
	return nil
}

func (w *Wizard) observe(touched map[FieldID]bool, now time.Time) {
	all := make(map[FieldID]bool, len(touched))
	for id := range touched {
		all[id] = true
		for _, dep := range dependents[id] {
			all[dep] = true
		}
	}
	for id := range all {
		w.feedback.observe(id, Validate(id, &w.state, now), now)
	}
}

// storeFiles keeps the attachment store in step with file fields that were
// just set or cleared. Store failures are logged; the form keeps the data URI.
func (w *Wizard) storeFiles(ctx context.Context, keys []string) {
	for _, k := range keys {
		spec := catalog[FieldID(k)]
		if spec.category == "" {
			continue
		}
		raw, _ := spec.get(&w.state).(string)
		if raw == "" {
			if err := w.store.Delete(ctx, w.id.String(), spec.category); err != nil {
				w.logger.Warn().Err(err).Str("field", k).Msg("attachment not removed")
			}
			continue
		}
		uri, err := attachment.Validate(spec.category, raw)
		if err == nil {
			_, err = w.store.Put(ctx, w.id.String(), spec.category, uri)
		}
		if err != nil {
			w.logger.Warn().Err(err).Str("field", k).Msg("attachment not stored")
		}
	}
}

// linked returns a context that ends when either ctx or the wizard's
// lifetime does. Collaborator calls run under it.
func (w *Wizard) linked(ctx context.Context) (context.Context, context.CancelFunc) {
	lctx, cancel := context.WithCancel(w.ctx)
	stop := context.AfterFunc(ctx, cancel)
	return lctx, func() {
		stop()
		cancel()
	}
}

// ---------------------------------------------------------------------------
// Navigation
// ---------------------------------------------------------------------------

// Next validates the current step and advances by one. When a required
// field fails, the step does not change: the failing fields are flagged,
// start shaking, and focus moves to the first of them.
func (w *Wizard) Next() error {
	if err := w.lock(); err != nil {
		return err
	}
	defer w.mu.Unlock()
	return w.next(w.clock.Now())
}

func (w *Wizard) next(now time.Time) error {
	if w.step >= LastStep {
		return ErrNoNextStep
	}
	required := Steps[w.step].RequiredFields(&w.state)
	if bad := failing(required, &w.state, now); len(bad) > 0 {
		w.feedback.reject(bad, now)
		w.focus = string(bad[0])
		return &ValidationError{Fields: bad}
	}

	w.feedback.clearInvalid()
	for _, id := range required {
		w.feedback.observe(id, true, now)
	}
	w.moveTo(w.step + 1)
	return nil
}

// Prev goes back one step without validating. It does nothing on the first
// step.
func (w *Wizard) Prev() error {
	if err := w.lock(); err != nil {
		return err
	}
	defer w.mu.Unlock()
	if w.step == 0 {
		return nil
	}
	w.feedback.clearInvalid()
	w.moveTo(w.step - 1)
	return nil
}

// Goto jumps to a step the patient has already reached or the one right
// after the furthest completed step.
func (w *Wizard) Goto(index int) error {
	if err := w.lock(); err != nil {
		return err
	}
	defer w.mu.Unlock()
	if index < 0 || index > LastStep {
		return ErrStepOutOfRange
	}
	if index > w.furthest {
		return ErrStepLocked
	}
	w.feedback.clearInvalid()
	w.moveTo(index)
	return nil
}

func (w *Wizard) moveTo(index int) {
	w.cancelAutoAdvance()
	w.step = index
	if index > w.furthest {
		w.furthest = index
	}
	w.focus = FocusForm
	for _, b := range w.boxes {
		b.hide()
	}
}

// CurrentStepFields returns the fields the current step requires right now.
func (w *Wizard) CurrentStepFields() []FieldID {
	w.mu.Lock()
	defer w.mu.Unlock()
	return Steps[w.step].RequiredFields(&w.state)
}

// Step returns the current step index.
func (w *Wizard) Step() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.step
}

// State returns a copy of the form.
func (w *Wizard) State() FormState {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

// Toast returns the visible toast, if any.
func (w *Wizard) Toast() *Toast {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.toast.current(w.clock.Now())
}

// DismissToast closes the visible toast.
func (w *Wizard) DismissToast() error {
	if err := w.lock(); err != nil {
		return err
	}
	defer w.mu.Unlock()
	w.toast.dismiss()
	return nil
}

// ---------------------------------------------------------------------------
// View
// ---------------------------------------------------------------------------

// StepStatus describes one entry of the progress indicator.
type StepStatus struct {
	Index     int     `json:"index"`
	Key       StepKey `json:"key"`
	Title     string  `json:"title"`
	Icon      string  `json:"icon"`
	Current   bool    `json:"current"`
	Completed bool    `json:"completed"`
	Reachable bool    `json:"reachable"`
}

// View is everything a client needs to render the wizard.
type View struct {
	ID                 uuid.UUID                             `json:"id"`
	Step               int                                   `json:"step"`
	StepKey            StepKey                               `json:"stepKey"`
	StepTitle          string                                `json:"stepTitle"`
	TotalSteps         int                                   `json:"totalSteps"`
	FurthestStep       int                                   `json:"furthestStep"`
	IsFinalStep        bool                                  `json:"isFinalStep"`
	RequiredFields     []FieldID                             `json:"requiredFields"`
	Notice             string                                `json:"notice,omitempty"`
	Steps              []StepStatus                          `json:"steps"`
	Form               FormState                             `json:"form"`
	Files              map[FieldID]bool                      `json:"files"`
	Feedback           FeedbackView                          `json:"feedback"`
	Toast              *Toast                                `json:"toast"`
	Focus              string                                `json:"focus,omitempty"`
	ProcessingID       bool                                  `json:"isProcessingID"`
	AutoAdvancePending bool                                  `json:"autoAdvancePending"`
	Suggestions        map[AddressTarget][]places.Prediction `json:"suggestions"`
	Completed          bool                                  `json:"completed"`
	StartedAt          time.Time                             `json:"startedAt"`
}

// View snapshots the wizard. File contents are replaced by presence flags.
// Reading the view counts as activity.
func (w *Wizard) View() View {
	w.mu.Lock()
	defer w.mu.Unlock()
	now := w.clock.Now()
	if !w.closed {
		w.lastActive = now
	}
	return w.view(now)
}

func (w *Wizard) view(now time.Time) View {
	st := Steps[w.step]
	v := View{
		ID:                 w.id,
		Step:               w.step,
		StepKey:            st.Key,
		StepTitle:          st.Title,
		TotalSteps:         len(Steps),
		FurthestStep:       w.furthest,
		IsFinalStep:        w.step == LastStep,
		RequiredFields:     st.RequiredFields(&w.state),
		Notice:             st.Notice(&w.state),
		Form:               w.state,
		Feedback:           w.feedback.snapshot(now),
		Toast:              w.toast.current(now),
		Focus:              w.focus,
		ProcessingID:       w.processingID,
		AutoAdvancePending: w.advanceTimer != nil,
		Suggestions:        map[AddressTarget][]places.Prediction{},
		Completed:          w.completed,
		StartedAt:          w.createdAt,
	}
	if v.RequiredFields == nil {
		v.RequiredFields = []FieldID{}
	}

	v.Files = map[FieldID]bool{}
	for _, id := range []FieldID{FieldIDCardImage, FieldSelfie, FieldDisabilityLetter, FieldSignature} {
		v.Files[id] = truthy(v.Form.Value(id))
	}
	v.Form.Identity.IDCardImage = ""
	v.Form.Identity.Selfie = ""
	v.Form.Documents.DisabilityLetter = ""
	v.Form.Consent.Signature = ""

	for i, s := range Steps {
		v.Steps = append(v.Steps, StepStatus{
			Index:     i,
			Key:       s.Key,
			Title:     s.Title,
			Icon:      s.Icon,
			Current:   i == w.step,
			Completed: i < w.furthest,
			Reachable: i <= w.furthest,
		})
	}
	for t, b := range w.boxes {
		if items := b.shown(now); len(items) > 0 {
			v.Suggestions[t] = items
		}
	}
	return v
}
