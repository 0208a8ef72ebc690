package tool

import "strings"

// AddressValidationInput is the input of google_address_validation_tool.
type AddressValidationInput struct {
	Address string `json:"address"`
}

func (in *AddressValidationInput) Validate() error {
	var errs ValidationErrors
	in.Address = strings.TrimSpace(in.Address)
	if in.Address == "" {
		errs.Add("address", "must not be empty")
	}
	return errs.Err()
}

// AddressComponent is one parsed part of a validated address.
type AddressComponent struct {
	ComponentName     string `json:"component_name"`
	ComponentType     string `json:"component_type"`
	ConfirmationLevel string `json:"confirmation_level"`
}

// AddressValidationResult is the normalized validation verdict.
type AddressValidationResult struct {
	FormattedAddress  string             `json:"formatted_address"`
	PostalAddress     map[string]any     `json:"postal_address"`
	AddressComponents []AddressComponent `json:"address_components"`
	Geocode           map[string]any     `json:"geocode,omitempty"`
	Metadata          map[string]any     `json:"metadata,omitempty"`
	USPSData          map[string]any     `json:"usps_data,omitempty"`
}

// AddressValidationOutput is the output of google_address_validation_tool.
type AddressValidationOutput struct {
	Tool    Name                      `json:"tool"`
	Results []AddressValidationResult `json:"results"`
}
