package registration

import (
	"context"
	"strings"

	"github.com/intake/intake/internal/platform/leads"
)

// DefaultInsuranceCountry is used when no office has been chosen yet.
const DefaultInsuranceCountry = "CO"

// LoadFacilities returns the offices a patient can pick. An empty country
// lists every supported country. When the directory cannot be reached the
// built-in list is used.
func (w *Wizard) LoadFacilities(ctx context.Context, country string) ([]leads.Facility, error) {
	if err := w.lock(); err != nil {
		return nil, err
	}
	dir := w.deps.Directory
	w.mu.Unlock()

	country = strings.ToUpper(strings.TrimSpace(country))
	var (
		list []leads.Facility
		err  error
	)
	switch {
	case dir == nil:
		list = leads.MockFacilities(country)
	case country == "":
		list, err = dir.ListAllFacilities(ctx)
	default:
		list, err = dir.ListFacilities(ctx, country)
	}
	if err != nil {
		w.logger.Warn().Err(err).Str("country", country).Msg("facility directory unavailable, using built-in list")
		list = leads.MockFacilities(country)
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	w.facilities = list
	return list, nil
}

// LoadInsurances returns the insurance plans for a country. Without a
// country the selected office's country is used, then
// DefaultInsuranceCountry.
func (w *Wizard) LoadInsurances(ctx context.Context, country string) ([]leads.Insurance, error) {
	if err := w.lock(); err != nil {
		return nil, err
	}
	country = strings.ToUpper(strings.TrimSpace(country))
	if country == "" {
		country = w.officeCountry()
	}
	dir := w.deps.Directory
	w.mu.Unlock()

	var (
		list []leads.Insurance
		err  error
	)
	if dir == nil {
		list = leads.MockInsurances(country)
	} else if list, err = dir.ListInsurances(ctx, country); err != nil {
		w.logger.Warn().Err(err).Str("country", country).Msg("insurance directory unavailable, using built-in list")
		list = leads.MockInsurances(country)
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	w.insurances = list
	return list, nil
}

// officeCountry is the country of the selected office when it is known.
func (w *Wizard) officeCountry() string {
	if f := w.selectedFacility(); f != nil && f.CountryISO != "" {
		return strings.ToUpper(f.CountryISO)
	}
	return DefaultInsuranceCountry
}

func (w *Wizard) selectedFacility() *leads.Facility {
	for i := range w.facilities {
		if string(w.facilities[i].ID) == w.state.Office.SelectedOffice {
			return &w.facilities[i]
		}
	}
	return nil
}

func (w *Wizard) selectedInsurance() *leads.Insurance {
	for i := range w.insurances {
		if string(w.insurances[i].ID) == w.state.Insurance.SelectedInsurance {
			return &w.insurances[i]
		}
	}
	return nil
}
