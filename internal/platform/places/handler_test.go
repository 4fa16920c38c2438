package places

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

type mockLookup struct {
	preds   []Prediction
	details *PlaceDetails
	err     error
	country string
}

func (m *mockLookup) Autocomplete(_ context.Context, _, country string) ([]Prediction, error) {
	m.country = country
	return m.preds, m.err
}

func (m *mockLookup) Details(_ context.Context, _ string) (*PlaceDetails, error) {
	return m.details, m.err
}

func serve(t *testing.T, h echo.HandlerFunc, target string) *httptest.ResponseRecorder {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	rec := httptest.NewRecorder()
	if err := h(e.NewContext(req, rec)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return rec
}

func TestHandler_Autocomplete(t *testing.T) {
	m := &mockLookup{preds: []Prediction{{PlaceID: "p1", Description: "123 Main St"}}}
	h := NewHandler(m, zerolog.Nop())

	rec := serve(t, h.Autocomplete, "/api/places/autocomplete?input=123+Main&country=CO")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if m.country != "CO" {
		t.Errorf("expected country forwarded, got %q", m.country)
	}
	if !strings.Contains(rec.Body.String(), `"place_id":"p1"`) || !strings.Contains(rec.Body.String(), `"status":"OK"`) {
		t.Errorf("unexpected body %s", rec.Body.String())
	}
}

func TestHandler_Autocomplete_MissingInput(t *testing.T) {
	h := NewHandler(&mockLookup{}, zerolog.Nop())
	rec := serve(t, h.Autocomplete, "/api/places/autocomplete")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rec.Code)
	}
}

func TestHandler_Autocomplete_NotConfigured(t *testing.T) {
	h := NewHandler(&mockLookup{err: ErrNotConfigured}, zerolog.Nop())
	rec := serve(t, h.Autocomplete, "/api/places/autocomplete?input=abc")
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("expected 500, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "not configured") {
		t.Errorf("unexpected body %s", rec.Body.String())
	}
}

func TestHandler_Details(t *testing.T) {
	h := NewHandler(&mockLookup{details: &PlaceDetails{FormattedAddress: "1 Ocean Dr"}}, zerolog.Nop())
	rec := serve(t, h.Details, "/api/places/details?place_id=p1")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"formatted_address":"1 Ocean Dr"`) {
		t.Errorf("unexpected body %s", rec.Body.String())
	}
}

func TestHandler_Details_Errors(t *testing.T) {
	h := NewHandler(&mockLookup{err: errors.New("boom")}, zerolog.Nop())
	if rec := serve(t, h.Details, "/api/places/details"); rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for missing place_id, got %d", rec.Code)
	}
	rec := serve(t, h.Details, "/api/places/details?place_id=p1")
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("expected 500, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "Failed to fetch place details") {
		t.Errorf("unexpected body %s", rec.Body.String())
	}
}
