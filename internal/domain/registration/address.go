package registration

import (
	"context"
	"time"

	"github.com/intake/intake/internal/platform/places"
)

const (
	// MinAutocompleteInput is the shortest street input that is looked up.
	MinAutocompleteInput = 3
	// SuggestionHideDelay lets a click on a suggestion land before a blur
	// hides the list.
	SuggestionHideDelay = 200 * time.Millisecond
)

// suggestionBox is the autocomplete dropdown of one address block.
type suggestionBox struct {
	items   []places.Prediction
	visible bool
	hideAt  time.Time
	// seq increases on every lookup so late answers to an older input are
	// dropped.
	seq uint64
}

func (b *suggestionBox) hide() {
	b.items = nil
	b.visible = false
	b.hideAt = time.Time{}
	b.seq++
}

func (b *suggestionBox) shown(now time.Time) []places.Prediction {
	if !b.visible || (!b.hideAt.IsZero() && !now.Before(b.hideAt)) {
		return nil
	}
	return b.items
}

func streetField(t AddressTarget) FieldID {
	if t == TargetFMP {
		return FieldFMPStreet
	}
	return FieldCurrentStreet
}

func addressFields(t AddressTarget) []FieldID {
	if t == TargetFMP {
		return []FieldID{FieldFMPStreet, FieldFMPCity, FieldFMPState, FieldFMPZip}
	}
	return []FieldID{FieldCurrentStreet, FieldCurrentCity, FieldCurrentState, FieldCurrentZip}
}

// SuggestAddress records what the patient typed into a street field and
// looks up matching addresses. Inputs shorter than MinAutocompleteInput
// clear the list without a lookup. A failed lookup clears the list and is
// otherwise silent.
func (w *Wizard) SuggestAddress(ctx context.Context, target AddressTarget, input string) ([]places.Prediction, error) {
	if _, err := ParseAddressTarget(string(target)); err != nil {
		return nil, err
	}
	if err := w.lock(); err != nil {
		return nil, err
	}
	now := w.clock.Now()
	addr := w.state.address(target)
	addr.Street = input
	w.feedback.observe(streetField(target), Validate(streetField(target), &w.state, now), now)

	box := w.boxes[target]
	box.hide()
	if textLen(input) < MinAutocompleteInput || w.deps.Addresses == nil {
		w.mu.Unlock()
		return []places.Prediction{}, nil
	}
	seq := box.seq
	country := addr.Country
	if country == "" {
		country = places.DefaultCountry
	}
	w.mu.Unlock()

	preds, err := w.deps.Addresses.Autocomplete(ctx, input, country)

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil, ErrSessionClosed
	}
	if box.seq != seq {
		return box.shown(w.clock.Now()), nil
	}
	if err != nil {
		w.logger.Warn().Err(err).Str("target", string(target)).Msg("address autocomplete failed")
		box.hide()
		return []places.Prediction{}, nil
	}
	box.items = preds
	box.visible = len(preds) > 0
	if preds == nil {
		preds = []places.Prediction{}
	}
	return preds, nil
}

// SelectAddress resolves a suggestion and fills the street, city, state and
// zip of the block. Components the lookup does not return keep their
// current value. A failed lookup leaves the form unchanged.
func (w *Wizard) SelectAddress(ctx context.Context, target AddressTarget, placeID string) error {
	if _, err := ParseAddressTarget(string(target)); err != nil {
		return err
	}
	if err := w.lock(); err != nil {
		return err
	}
	box := w.boxes[target]
	box.hide()
	seq := box.seq
	lookup := w.deps.Addresses
	w.mu.Unlock()

	if lookup == nil {
		return places.ErrNotConfigured
	}
	details, err := lookup.Details(ctx, placeID)

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return ErrSessionClosed
	}
	if err != nil {
		w.logger.Warn().Err(err).Str("target", string(target)).Msg("address details failed")
		return nil
	}
	if box.seq != seq {
		// the patient typed again while the details were loading
		return nil
	}

	got := details.ToAddress()
	addr := w.state.address(target)
	if got.Street != "" {
		addr.Street = got.Street
	}
	if got.City != "" {
		addr.City = got.City
	}
	if got.State != "" {
		addr.State = got.State
	}
	if got.Zip != "" {
		addr.Zip = got.Zip
	}

	now := w.clock.Now()
	touched := map[FieldID]bool{}
	for _, id := range addressFields(target) {
		touched[id] = true
	}
	w.observe(touched, now)
	return nil
}

// BlurAddress hides the suggestion list of a block after
// SuggestionHideDelay.
func (w *Wizard) BlurAddress(target AddressTarget) error {
	if _, err := ParseAddressTarget(string(target)); err != nil {
		return err
	}
	if err := w.lock(); err != nil {
		return err
	}
	defer w.mu.Unlock()
	box := w.boxes[target]
	if box.visible {
		box.hideAt = w.clock.Now().Add(SuggestionHideDelay)
	}
	return nil
}

// Suggestions returns the list currently shown for a block.
func (w *Wizard) Suggestions(target AddressTarget) []places.Prediction {
	w.mu.Lock()
	defer w.mu.Unlock()
	b, ok := w.boxes[target]
	if !ok {
		return nil
	}
	return b.shown(w.clock.Now())
}
