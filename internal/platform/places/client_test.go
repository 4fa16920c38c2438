package places

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func newFakeGoogle(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	c, err := NewClient("test-key", WithBaseURL(srv.URL), WithHTTPClient(srv.Client()))
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	return c
}

func TestAutocomplete(t *testing.T) {
	c := newFakeGoogle(t, func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/place/autocomplete/json") {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		q := r.URL.Query()
		if q.Get("input") != "123 Main" || q.Get("key") != "test-key" {
			t.Errorf("unexpected query %s", r.URL.RawQuery)
		}
		if q.Get("types") != "address" || !strings.Contains(q.Get("components"), "country:us") {
			t.Errorf("expected address type restricted to us, got %s", r.URL.RawQuery)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"OK","predictions":[{"description":"123 Main St, Miami, FL, USA","place_id":"p1",
			"structured_formatting":{"main_text":"123 Main St","secondary_text":"Miami, FL, USA"}}]}`))
	})

	preds, err := c.Autocomplete(context.Background(), "123 Main", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(preds) != 1 || preds[0].PlaceID != "p1" || preds[0].StructuredFormatting.MainText != "123 Main St" {
		t.Errorf("unexpected predictions %+v", preds)
	}
}

func TestAutocomplete_ZeroResults(t *testing.T) {
	c := newFakeGoogle(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status":"ZERO_RESULTS","predictions":[]}`))
	})
	preds, err := c.Autocomplete(context.Background(), "zzzz", "CO")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(preds) != 0 {
		t.Errorf("expected no predictions, got %d", len(preds))
	}
}

func TestAutocomplete_APIStatusError(t *testing.T) {
	c := newFakeGoogle(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status":"REQUEST_DENIED","error_message":"bad key"}`))
	})
	if _, err := c.Autocomplete(context.Background(), "123 Main", "US"); err == nil {
		t.Error("expected error for REQUEST_DENIED")
	}
}

func TestDetails(t *testing.T) {
	c := newFakeGoogle(t, func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/place/details/json") {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.URL.Query().Get("placeid") != "p1" {
			t.Errorf("unexpected query %s", r.URL.RawQuery)
		}
		w.Write([]byte(`{"status":"OK","result":{
			"formatted_address":"123 Main St, Miami, FL 33101, USA",
			"address_components":[
				{"long_name":"Miami","short_name":"Miami","types":["locality","political"]},
				{"long_name":"Florida","short_name":"FL","types":["administrative_area_level_1","political"]},
				{"long_name":"33101","short_name":"33101","types":["postal_code"]}
			]}}`))
	})

	d, err := c.Details(context.Background(), "p1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	addr := d.ToAddress()
	want := Address{Street: "123 Main St, Miami, FL 33101, USA", City: "Miami", State: "FL", Zip: "33101"}
	if addr != want {
		t.Errorf("ToAddress() = %+v, want %+v", addr, want)
	}
}

func TestClient_NotConfigured(t *testing.T) {
	c, err := NewClient("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := c.Autocomplete(context.Background(), "x", ""); !errors.Is(err, ErrNotConfigured) {
		t.Errorf("expected ErrNotConfigured, got %v", err)
	}
	if _, err := c.Details(context.Background(), "x"); !errors.Is(err, ErrNotConfigured) {
		t.Errorf("expected ErrNotConfigured, got %v", err)
	}
}

func TestToAddress_MissingComponents(t *testing.T) {
	d := &PlaceDetails{FormattedAddress: "Somewhere"}
	if got := d.ToAddress(); got != (Address{Street: "Somewhere"}) {
		t.Errorf("unexpected address %+v", got)
	}
}
