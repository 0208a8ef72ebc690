package tool

import (
	"strconv"
	"strings"
)

// PlaceSearchInput is the input of place_search_tool.
type PlaceSearchInput struct {
	PlaceSearchString string `json:"place_search_string"`
}

func (in *PlaceSearchInput) Validate() error {
	var errs ValidationErrors
	in.PlaceSearchString = strings.TrimSpace(in.PlaceSearchString)
	if in.PlaceSearchString == "" {
		errs.Add("place_search_string", "must not be empty")
	}
	return errs.Err()
}

// PlaceDetails is one place returned by place_search_tool.
type PlaceDetails struct {
	Name                 string   `json:"name"`
	Address              string   `json:"address"`
	PlaceID              string   `json:"place_id"`
	Latitude             *float64 `json:"latitude"`
	Longitude            *float64 `json:"longitude"`
	BusinessStatus       string   `json:"business_status,omitempty"`
	Icon                 string   `json:"icon,omitempty"`
	Types                []string `json:"types"`
	URL                  string   `json:"url,omitempty"`
	Vicinity             string   `json:"vicinity,omitempty"`
	FormattedPhoneNumber string   `json:"formatted_phone_number,omitempty"`
	Website              string   `json:"website,omitempty"`
}

// PlaceSearchOutput is the output of place_search_tool.
type PlaceSearchOutput struct {
	Tool    Name           `json:"tool"`
	Results []PlaceDetails `json:"results"`
}

// UnknownValue fills required place fields missing from the provider response.
const UnknownValue = "Unknown"

// OrUnknown returns s, or UnknownValue when s is empty.
func OrUnknown(s string) string {
	if s == "" {
		return UnknownValue
	}
	return s
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
