package registration

import (
	"sort"
	"time"
)

// Timing of the cosmetic feedback windows.
const (
	SuccessAnimation = 800 * time.Millisecond
	ShakeAnimation   = 500 * time.Millisecond
)

// Annotation is the visual state of one field.
type Annotation string

const (
	Unvalidated    Annotation = "unvalidated"
	Valid          Annotation = "valid"
	ValidJustNow   Annotation = "valid-just-now"
	Invalid        Annotation = "invalid"
	InvalidShaking Annotation = "invalid-shaking"
)

// fieldMark is what the wizard has observed about a field. Timed states are
// resolved against the clock when read, so nothing has to fire when an
// animation window ends.
type fieldMark struct {
	everValid  bool
	valid      bool
	animUntil  time.Time
	invalid    bool
	shakeUntil time.Time
}

func (m *fieldMark) annotation(now time.Time) (Annotation, time.Time) {
	switch {
	case m.invalid && now.Before(m.shakeUntil):
		return InvalidShaking, m.shakeUntil
	case m.invalid:
		return Invalid, time.Time{}
	case m.valid && now.Before(m.animUntil):
		return ValidJustNow, m.animUntil
	case m.valid:
		return Valid, time.Time{}
	}
	return Unvalidated, time.Time{}
}

// feedback tracks per-field annotations for one wizard.
type feedback struct {
	marks map[FieldID]*fieldMark
}

func newFeedback() *feedback {
	return &feedback{marks: make(map[FieldID]*fieldMark)}
}

func (f *feedback) mark(id FieldID) *fieldMark {
	m, ok := f.marks[id]
	if !ok {
		m = &fieldMark{}
		f.marks[id] = m
	}
	return m
}

// observe records the validity of a field after it changed. The first time
// a field turns valid it plays the success animation; later transitions do
// not. Any invalid mark is dropped because the patient has touched it.
func (f *feedback) observe(id FieldID, valid bool, now time.Time) {
	m := f.mark(id)
	m.invalid = false
	m.shakeUntil = time.Time{}
	if valid && !m.valid && !m.everValid {
		m.animUntil = now.Add(SuccessAnimation)
	}
	if valid {
		m.everValid = true
	}
	m.valid = valid
}

// reject flags fields that blocked a transition and starts their shake.
func (f *feedback) reject(ids []FieldID, now time.Time) {
	for _, id := range ids {
		m := f.mark(id)
		m.invalid = true
		m.valid = false
		m.shakeUntil = now.Add(ShakeAnimation)
	}
}

// clearInvalid drops every invalid and shaking mark.
func (f *feedback) clearInvalid() {
	for _, m := range f.marks {
		m.invalid = false
		m.shakeUntil = time.Time{}
	}
}

// FieldFeedback is the annotation of one field as seen by a client.
type FieldFeedback struct {
	State     Annotation `json:"state"`
	ExpiresAt *time.Time `json:"expiresAt,omitempty"`
}

// FeedbackView is a snapshot of all annotations. The four lists mirror the
// annotations for clients that render from sets.
type FeedbackView struct {
	Fields    map[FieldID]FieldFeedback `json:"fields"`
	Validated []FieldID                 `json:"validated"`
	Animating []FieldID                 `json:"animating"`
	Invalid   []FieldID                 `json:"invalid"`
	Shaking   []FieldID                 `json:"shaking"`
}

func (f *feedback) snapshot(now time.Time) FeedbackView {
	v := FeedbackView{
		Fields:    make(map[FieldID]FieldFeedback, len(f.marks)),
		Validated: []FieldID{},
		Animating: []FieldID{},
		Invalid:   []FieldID{},
		Shaking:   []FieldID{},
	}
	for id, m := range f.marks {
		state, until := m.annotation(now)
		ff := FieldFeedback{State: state}
		if !until.IsZero() {
			u := until
			ff.ExpiresAt = &u
		}
		v.Fields[id] = ff

		if m.everValid {
			v.Validated = append(v.Validated, id)
		}
		switch state {
		case ValidJustNow:
			v.Animating = append(v.Animating, id)
		case InvalidShaking:
			v.Invalid = append(v.Invalid, id)
			v.Shaking = append(v.Shaking, id)
		case Invalid:
			v.Invalid = append(v.Invalid, id)
		}
	}
	for _, l := range [][]FieldID{v.Validated, v.Animating, v.Invalid, v.Shaking} {
		sortFieldIDs(l)
	}
	return v
}

func sortFieldIDs(ids []FieldID) {
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
}
