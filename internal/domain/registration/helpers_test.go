package registration

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/intake/intake/internal/platform/attachment"
	"github.com/intake/intake/internal/platform/leads"
	"github.com/intake/intake/internal/platform/places"
	"github.com/intake/intake/internal/platform/vision"
)

// today is a fixed "now" for every test.
var today = time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC)

// 1x1 grayscale PNG.
const pngURI = "data:image/png;base64,iVBORw0KGgoAAAANSUhEUgAAAAEAAAABCAQAAAC1HAwCAAAAC0lEQVR42mNkYAAAAAYAAjCB0C8AAAAASUVORK5CYII="

// ---------------------------------------------------------------------------
// Fake clock
// ---------------------------------------------------------------------------

type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	timers []*fakeTimer
}

type fakeTimer struct {
	c       *fakeClock
	at      time.Time
	f       func()
	stopped bool
	fired   bool
}

func newFakeClock(now time.Time) *fakeClock { return &fakeClock{now: now} }

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTimer{c: c, at: c.now.Add(d), f: f}
	c.timers = append(c.timers, t)
	return t
}

func (t *fakeTimer) Stop() bool {
	t.c.mu.Lock()
	defer t.c.mu.Unlock()
	if t.stopped || t.fired {
		return false
	}
	t.stopped = true
	return true
}

// Advance moves time forward and runs every callback that became due.
func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	var due []func()
	for _, t := range c.timers {
		if !t.stopped && !t.fired && !t.at.After(c.now) {
			t.fired = true
			due = append(due, t.f)
		}
	}
	c.mu.Unlock()
	for _, f := range due {
		f()
	}
}

// pending is the number of timers that are neither stopped nor fired.
func (c *fakeClock) pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, t := range c.timers {
		if !t.stopped && !t.fired {
			n++
		}
	}
	return n
}

// ---------------------------------------------------------------------------
// Collaborator mocks
// ---------------------------------------------------------------------------

type mockDirectory struct {
	facilities []leads.Facility
	insurances []leads.Insurance
	err        error
	countries  []string
}

func (m *mockDirectory) ListFacilities(_ context.Context, country string) ([]leads.Facility, error) {
	m.countries = append(m.countries, country)
	return m.facilities, m.err
}

func (m *mockDirectory) ListAllFacilities(_ context.Context) ([]leads.Facility, error) {
	m.countries = append(m.countries, "")
	return m.facilities, m.err
}

func (m *mockDirectory) ListInsurances(_ context.Context, country string) ([]leads.Insurance, error) {
	m.countries = append(m.countries, country)
	return m.insurances, m.err
}

type mockExtractor struct {
	mu    sync.Mutex
	data  *vision.IDData
	err   error
	calls int
	// block, when set, holds ExtractID until it is closed.
	block chan struct{}
}

func (m *mockExtractor) ExtractID(ctx context.Context, _ string) (*vision.IDData, error) {
	m.mu.Lock()
	m.calls++
	block := m.block
	m.mu.Unlock()
	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return m.data, m.err
}

type mockAddresses struct {
	predictions []places.Prediction
	details     *places.PlaceDetails
	err         error
	inputs      []string
	countries   []string
}

func (m *mockAddresses) Autocomplete(_ context.Context, input, country string) ([]places.Prediction, error) {
	m.inputs = append(m.inputs, input)
	m.countries = append(m.countries, country)
	return m.predictions, m.err
}

func (m *mockAddresses) Details(_ context.Context, _ string) (*places.PlaceDetails, error) {
	return m.details, m.err
}

type mockSubmitter struct {
	mu       sync.Mutex
	result   *leads.SignupResult
	err      error
	payloads []any
	// block, when set, holds Signup until it is closed.
	block chan struct{}
}

func (m *mockSubmitter) Signup(ctx context.Context, payload any) (*leads.SignupResult, error) {
	m.mu.Lock()
	m.payloads = append(m.payloads, payload)
	block := m.block
	m.mu.Unlock()
	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return m.result, m.err
}

func (m *mockSubmitter) calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.payloads)
}

// ---------------------------------------------------------------------------
// Builders
// ---------------------------------------------------------------------------

type testEnv struct {
	mgr       *Manager
	clock     *fakeClock
	store     *attachment.InMemoryStore
	dir       *mockDirectory
	extractor *mockExtractor
	addresses *mockAddresses
	submitter *mockSubmitter
}

func janeDoe() *vision.IDData {
	return &vision.IDData{FirstName: "Jane", LastName: "Doe", DOB: "1990-01-01", Sex: "F", IDNumber: "D1234567"}
}

func newTestEnv() *testEnv {
	env := &testEnv{
		clock: newFakeClock(today),
		store: attachment.NewInMemoryStore(),
		dir: &mockDirectory{
			facilities: leads.MockFacilities(""),
			insurances: leads.MockInsurances("DO"),
		},
		extractor: &mockExtractor{data: janeDoe()},
		addresses: &mockAddresses{},
		submitter: &mockSubmitter{result: &leads.SignupResult{Status: "success"}},
	}
	deps := Collaborators{
		Directory: env.dir,
		Extractor: env.extractor,
		Addresses: env.addresses,
		Submitter: env.submitter,
	}
	env.mgr = NewManager(deps, env.store, zerolog.Nop(), WithClock(env.clock))
	return env
}

func newTestWizard() (*Wizard, *testEnv) {
	env := newTestEnv()
	return env.mgr.Create(), env
}

func patchOf(t *testing.T, values map[string]any) map[string]json.RawMessage {
	t.Helper()
	out := make(map[string]json.RawMessage, len(values))
	for k, v := range values {
		b, err := json.Marshal(v)
		if err != nil {
			t.Fatalf("marshal %s: %v", k, err)
		}
		out[k] = b
	}
	return out
}

func mustSet(t *testing.T, w *Wizard, values map[string]any) {
	t.Helper()
	if err := w.SetFields(context.Background(), patchOf(t, values)); err != nil {
		t.Fatalf("SetFields(%v): %v", values, err)
	}
}

// validAnswers are field values that satisfy each step.
var validAnswers = map[int]map[string]any{
	StepOffice:  {"selectedOffice": "1", "agreeToTerms": true},
	StepVeteran: {"isVeteran": false},
	StepPersonal: {
		"firstName": "Jane", "lastName": "Doe", "dobMonth": 1, "dobDay": 1, "dobYear": 1990,
		"sex": "Female", "ssn": "123-45-6789",
	},
	StepIdentity: {"selfie": pngURI},
	StepContact: {
		"email": "jane@example.com", "phoneCountry": "US", "phone": "123-456-7890",
		"currentStreet": "123 Main Street", "currentCity": "Springfield", "currentState": "IL", "currentZip": "62701",
		"fmpStreet": "456 Oak Avenue", "fmpCity": "Springfield", "fmpState": "IL", "fmpZip": "62702",
	},
	StepMedical: {
		"weight": 180, "heightFeet": 5, "heightInches": 10, "painLevel": 4, "medications": []string{"Ibuprofen"},
	},
	StepInsurance: {"selectedInsurance": "1"},
	StepDocuments: {"hasDisabilityLetter": false},
	StepConsent:   {"signature": pngURI, "consentAccepted": true},
}

// advanceTo fills every step before target with valid answers and moves
// there. The ID step goes through UploadID.
func advanceTo(t *testing.T, w *Wizard, target int) {
	t.Helper()
	for w.Step() < target {
		step := w.Step()
		if step == StepIDUpload {
			if err := w.UploadID(context.Background(), pngURI); err != nil {
				t.Fatalf("UploadID: %v", err)
			}
		} else if answers, ok := validAnswers[step]; ok {
			mustSet(t, w, answers)
		}
		if err := w.Next(); err != nil {
			t.Fatalf("Next from step %d: %v", step, err)
		}
	}
}
