// Package places wraps the Google Places autocomplete and details APIs for
// address entry.
package places

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"googlemaps.github.io/maps"
)

var (
	ErrNotConfigured = errors.New("google places api key not configured")
	ErrMissingInput  = errors.New("input is required")
	ErrMissingPlace  = errors.New("place id is required")
)

// DefaultCountry restricts suggestions when the caller does not.
const DefaultCountry = "US"

// StructuredFormatting splits a prediction into its headline and context.
type StructuredFormatting struct {
	MainText      string `json:"main_text"`
	SecondaryText string `json:"secondary_text"`
}

// Prediction is one autocomplete suggestion.
type Prediction struct {
	PlaceID              string               `json:"place_id"`
	Description          string               `json:"description"`
	StructuredFormatting StructuredFormatting `json:"structured_formatting"`
}

// AddressComponent is one typed part of a resolved address.
type AddressComponent struct {
	LongName  string   `json:"long_name"`
	ShortName string   `json:"short_name"`
	Types     []string `json:"types"`
}

// PlaceDetails is the subset of a place record used for address entry.
type PlaceDetails struct {
	FormattedAddress  string             `json:"formatted_address"`
	AddressComponents []AddressComponent `json:"address_components"`
}

// Component returns the first component carrying the given type.
func (d *PlaceDetails) Component(typ string) (AddressComponent, bool) {
	for _, c := range d.AddressComponents {
		for _, t := range c.Types {
			if t == typ {
				return c, true
			}
		}
	}
	return AddressComponent{}, false
}

// Address is a place resolved into form fields.
type Address struct {
	Street string `json:"street"`
	City   string `json:"city"`
	State  string `json:"state"`
	Zip    string `json:"zip"`
}

// ToAddress maps place details onto street/city/state/zip. The street is the
// full formatted address; state uses the short name ("FL", not "Florida").
func (d *PlaceDetails) ToAddress() Address {
	a := Address{Street: d.FormattedAddress}
	if c, ok := d.Component("locality"); ok {
		a.City = c.LongName
	}
	if c, ok := d.Component("administrative_area_level_1"); ok {
		a.State = c.ShortName
	}
	if c, ok := d.Component("postal_code"); ok {
		a.Zip = c.LongName
	}
	return a
}

// Client queries Google Places.
type Client struct {
	maps *maps.Client
}

// ClientOption configures the underlying maps client.
type ClientOption = maps.ClientOption

// WithBaseURL points the client at a different API host.
func WithBaseURL(baseURL string) ClientOption {
	return maps.WithBaseURL(baseURL)
}

// WithHTTPClient overrides the HTTP client used for requests.
func WithHTTPClient(hc *http.Client) ClientOption {
	return maps.WithHTTPClient(hc)
}

// NewClient creates a Client. With an empty key every call returns
// ErrNotConfigured instead of failing at startup.
func NewClient(apiKey string, opts ...ClientOption) (*Client, error) {
	if apiKey == "" {
		return &Client{}, nil
	}
	all := append([]ClientOption{maps.WithAPIKey(apiKey)}, opts...)
	mc, err := maps.NewClient(all...)
	if err != nil {
		return nil, fmt.Errorf("create places client: %w", err)
	}
	return &Client{maps: mc}, nil
}

// Autocomplete returns address predictions for input within country.
func (c *Client) Autocomplete(ctx context.Context, input, country string) ([]Prediction, error) {
	if c.maps == nil {
		return nil, ErrNotConfigured
	}
	if strings.TrimSpace(input) == "" {
		return nil, ErrMissingInput
	}
	if country == "" {
		country = DefaultCountry
	}

	resp, err := c.maps.PlaceAutocomplete(ctx, &maps.PlaceAutocompleteRequest{
		Input:      input,
		Types:      maps.AutocompletePlaceTypeAddress,
		Components: map[maps.Component][]string{maps.ComponentCountry: {strings.ToLower(country)}},
	})
	if err != nil {
		return nil, fmt.Errorf("places autocomplete: %w", err)
	}

	out := make([]Prediction, 0, len(resp.Predictions))
	for _, p := range resp.Predictions {
		out = append(out, Prediction{
			PlaceID:     p.PlaceID,
			Description: p.Description,
			StructuredFormatting: StructuredFormatting{
				MainText:      p.StructuredFormatting.MainText,
				SecondaryText: p.StructuredFormatting.SecondaryText,
			},
		})
	}
	return out, nil
}

// Details fetches the formatted address and address components of a place.
func (c *Client) Details(ctx context.Context, placeID string) (*PlaceDetails, error) {
	if c.maps == nil {
		return nil, ErrNotConfigured
	}
	if strings.TrimSpace(placeID) == "" {
		return nil, ErrMissingPlace
	}

	res, err := c.maps.PlaceDetails(ctx, &maps.PlaceDetailsRequest{
		PlaceID: placeID,
		Fields: []maps.PlaceDetailsFieldMask{
			maps.PlaceDetailsFieldMaskFormattedAddress,
			maps.PlaceDetailsFieldMaskAddressComponent,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("places details: %w", err)
	}

	d := &PlaceDetails{FormattedAddress: res.FormattedAddress}
	for _, ac := range res.AddressComponents {
		d.AddressComponents = append(d.AddressComponents, AddressComponent{
			LongName:  ac.LongName,
			ShortName: ac.ShortName,
			Types:     ac.Types,
		})
	}
	return d, nil
}
