// Package leads is a client for the CRM "leads" API: the facility and
// insurance directories and the signup endpoint that receives finished
// registrations. It also exposes thin Echo pass-through routes with the
// response shapes existing front-ends expect.
package leads

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
)

var (
	ErrUpstream       = errors.New("leads api request failed")
	ErrMissingCountry = errors.New("country is required")
)

// DefaultCountries are the facility countries listed when the caller does
// not name one.
var DefaultCountries = []string{"CO", "DO"}

var countryNames = map[string]string{
	"CO": "Colombia",
	"DO": "Dominican Republic",
	"US": "United States",
}

// CountryName returns the display name for an ISO code, or the code itself.
func CountryName(iso string) string {
	if name, ok := countryNames[strings.ToUpper(iso)]; ok {
		return name
	}
	return iso
}

// ID is an identifier the CRM sends either as a JSON number or a string.
// It is normalised to its string form.
type ID string

func (id *ID) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		*id = ""
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*id = ID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("id must be a string or number: %w", err)
	}
	*id = ID(n.String())
	return nil
}

// Facility is a clinic patients can register with.
type Facility struct {
	ID         ID     `json:"id"`
	Name       string `json:"name"`
	City       string `json:"city"`
	Country    string `json:"country"`
	CountryISO string `json:"country_iso"`
	Logo       string `json:"logo"`
}

// Insurance is a payer plan offered in a country.
type Insurance struct {
	ID         ID     `json:"id"`
	Code       string `json:"code"`
	Company    string `json:"company"`
	CountryISO string `json:"country_iso"`
}

// SignupResult is the CRM's answer to a registration submission.
type SignupResult struct {
	Status  string          `json:"status"`
	Message string          `json:"message,omitempty"`
	Raw     json.RawMessage `json:"-"`
}

// OK reports whether the CRM accepted the registration.
func (r *SignupResult) OK() bool {
	return r != nil && r.Status == "success"
}

// Client talks to the leads API.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient overrides the HTTP client used for requests.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// NewClient creates a Client for the API rooted at baseURL.
func NewClient(baseURL, apiKey string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type rawFacility struct {
	ID   ID     `json:"id_facility"`
	Name string `json:"facility_name"`
	City string `json:"city"`
}

// ListFacilities returns the facilities in one country.
func (c *Client) ListFacilities(ctx context.Context, country string) ([]Facility, error) {
	country = strings.ToUpper(strings.TrimSpace(country))
	if country == "" {
		return nil, ErrMissingCountry
	}

	var body struct {
		Data []rawFacility `json:"data"`
	}
	if err := c.do(ctx, http.MethodGet, "/list-facilities/"+url.PathEscape(country), nil, &body); err != nil {
		return nil, fmt.Errorf("list facilities %s: %w", country, err)
	}

	out := make([]Facility, 0, len(body.Data))
	for _, f := range body.Data {
		out = append(out, Facility{
			ID:         f.ID,
			Name:       f.Name,
			City:       f.City,
			Country:    CountryName(country),
			CountryISO: country,
		})
	}
	return out, nil
}

// ListAllFacilities fetches every default country concurrently and returns
// the combined list in DefaultCountries order.
func (c *Client) ListAllFacilities(ctx context.Context) ([]Facility, error) {
	results := make([][]Facility, len(DefaultCountries))
	g, gctx := errgroup.WithContext(ctx)
	for i, country := range DefaultCountries {
		i, country := i, country
		g.Go(func() error {
			list, err := c.ListFacilities(gctx, country)
			if err != nil {
				return err
			}
			results[i] = list
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var all []Facility
	for _, list := range results {
		all = append(all, list...)
	}
	return all, nil
}

// ListInsurances returns the insurance plans for a country.
func (c *Client) ListInsurances(ctx context.Context, country string) ([]Insurance, error) {
	country = strings.ToUpper(strings.TrimSpace(country))
	if country == "" {
		return nil, ErrMissingCountry
	}
	var body struct {
		Data []Insurance `json:"data"`
	}
	if err := c.do(ctx, http.MethodGet, "/list-insurances/"+url.PathEscape(country), nil, &body); err != nil {
		return nil, fmt.Errorf("list insurances %s: %w", country, err)
	}
	return body.Data, nil
}

// FacilityInfo returns the CRM's detail record for a facility as-is.
func (c *Client) FacilityInfo(ctx context.Context, id string) (json.RawMessage, error) {
	var body struct {
		Data json.RawMessage `json:"data"`
	}
	if err := c.do(ctx, http.MethodGet, "/info-facility/"+url.PathEscape(id), nil, &body); err != nil {
		return nil, fmt.Errorf("facility info %s: %w", id, err)
	}
	return body.Data, nil
}

// Signup forwards a registration payload. A non-success status in a 2xx
// response is not an error; callers check SignupResult.OK.
func (c *Client) Signup(ctx context.Context, payload any) (*SignupResult, error) {
	buf, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal signup payload: %w", err)
	}
	var raw json.RawMessage
	if err := c.do(ctx, http.MethodPost, "/signup", buf, &raw); err != nil {
		return nil, fmt.Errorf("signup: %w", err)
	}
	res := &SignupResult{Raw: raw}
	if err := json.Unmarshal(raw, res); err != nil {
		return nil, fmt.Errorf("signup: decode response: %w", err)
	}
	return res, nil
}

func (c *Client) do(ctx context.Context, method, path string, body []byte, out any) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("X-API-Key", c.apiKey)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUpstream, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 4*1024*1024))
	if err != nil {
		return fmt.Errorf("%w: read body: %v", ErrUpstream, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%w: status %d", ErrUpstream, resp.StatusCode)
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("%w: decode body: %v", ErrUpstream, err)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Built-in fallback data
// ---------------------------------------------------------------------------

// MockFacilities is the fallback directory used when the CRM cannot be
// reached. An empty country returns every facility.
func MockFacilities(country string) []Facility {
	all := []Facility{
		{ID: "1", Name: "Puerto Plata Medical", City: "Puerto Plata", Country: "Dominican Republic", CountryISO: "DO"},
		{ID: "2", Name: "Sosua Health Center", City: "Sosua", Country: "Dominican Republic", CountryISO: "DO"},
		{ID: "3", Name: "Bavaro Clinic", City: "Bavaro", Country: "Dominican Republic", CountryISO: "DO"},
		{ID: "4", Name: "Bogotá Medical Center", City: "Bogotá", Country: "Colombia", CountryISO: "CO"},
		{ID: "5", Name: "Medellín Healthcare", City: "Medellín", Country: "Colombia", CountryISO: "CO"},
	}
	country = strings.ToUpper(country)
	if country == "" {
		return all
	}
	var out []Facility
	for _, f := range all {
		if f.CountryISO == country {
			out = append(out, f)
		}
	}
	if len(out) == 0 {
		return all
	}
	return out
}

// MockInsurances is the fallback insurance list for a country.
func MockInsurances(country string) []Insurance {
	country = strings.ToUpper(country)
	return []Insurance{
		{ID: "1", Code: "INS001", Company: "Sample Insurance Co.", CountryISO: country},
		{ID: "2", Code: "INS002", Company: "Health Plus Insurance", CountryISO: country},
	}
}
