package registration

import (
	"context"

	"github.com/intake/intake/internal/platform/leads"
	"github.com/intake/intake/internal/platform/places"
	"github.com/intake/intake/internal/platform/vision"
)

// Directory lists the clinics and insurance plans a patient can pick.
type Directory interface {
	ListFacilities(ctx context.Context, country string) ([]leads.Facility, error)
	ListAllFacilities(ctx context.Context) ([]leads.Facility, error)
	ListInsurances(ctx context.Context, country string) ([]leads.Insurance, error)
}

// IDExtractor reads identity fields from a photographed ID.
type IDExtractor interface {
	ExtractID(ctx context.Context, imageData string) (*vision.IDData, error)
}

// AddressLookup searches addresses and resolves a chosen suggestion.
type AddressLookup interface {
	Autocomplete(ctx context.Context, input, country string) ([]places.Prediction, error)
	Details(ctx context.Context, placeID string) (*places.PlaceDetails, error)
}

// RegistrationSubmitter receives the assembled registration.
type RegistrationSubmitter interface {
	Signup(ctx context.Context, payload any) (*leads.SignupResult, error)
}

// Collaborators bundles the external services a wizard calls.
type Collaborators struct {
	Directory Directory
	Extractor IDExtractor
	Addresses AddressLookup
	Submitter RegistrationSubmitter
}

// publicMessager is implemented by errors whose text may be shown to the
// patient as is.
type publicMessager interface {
	PublicMessage() string
}
