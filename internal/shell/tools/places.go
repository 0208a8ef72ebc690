package tools

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/artpar/agentresourcerest/internal/core/tool"
)

// PlacesBaseURL is the Google Places web service root.
const PlacesBaseURL = "https://maps.googleapis.com/maps/api/place"

// detailFields are the place attributes requested per result.
var detailFields = []string{
	"address_component", "adr_address", "business_status", "formatted_address",
	"geometry", "icon", "name", "photo", "place_id", "plus_code", "type",
	"url", "utc_offset", "vicinity", "formatted_phone_number", "website",
}

const detailConcurrency = 5

// PlaceSearch runs a text search and enriches each hit with its details.
type PlaceSearch struct {
	client *Client
	apiKey string
}

// NewPlaceSearch creates the place_search_tool handler.
func NewPlaceSearch(cfg Config, opts ...ClientOption) *PlaceSearch {
	return &PlaceSearch{
		client: NewClient("Google Places", cfg.BaseURL(PlacesBaseURL), opts...),
		apiKey: cfg.APIKey,
	}
}

// Definition registers the tool.
func (t *PlaceSearch) Definition() tool.Definition {
	return tool.Definition{
		Name:        tool.PlaceSearch,
		Description: "Search for places by free text and return their details.",
		Inputs:      []any{tool.PlaceSearchInput{}},
		Outputs:     []any{tool.PlaceSearchOutput{}},
		Examples: []tool.Example{
			{Tool: tool.PlaceSearch, ToolInput: map[string]any{"place_search_string": "restaurants near me"}},
			{Tool: tool.PlaceSearch, ToolInput: map[string]any{"place_search_string": "Philly"}},
		},
		Decode: tool.DecoderFor[tool.PlaceSearchInput](),
		Handler: func(ctx context.Context, input any) (any, error) {
			return t.Run(ctx, *input.(*tool.PlaceSearchInput))
		},
	}
}

type placeSearchResponse struct {
	Status       string        `json:"status"`
	ErrorMessage string        `json:"error_message"`
	Results      []placeResult `json:"results"`
}

type placeResult struct {
	Name                 string   `json:"name"`
	FormattedAddress     string   `json:"formatted_address"`
	PlaceID              string   `json:"place_id"`
	BusinessStatus       string   `json:"business_status"`
	Icon                 string   `json:"icon"`
	Types                []string `json:"types"`
	URL                  string   `json:"url"`
	Vicinity             string   `json:"vicinity"`
	FormattedPhoneNumber string   `json:"formatted_phone_number"`
	Website              string   `json:"website"`
	Geometry             struct {
		Location *struct {
			Lat float64 `json:"lat"`
			Lng float64 `json:"lng"`
		} `json:"location"`
	} `json:"geometry"`
}

type placeDetailsResponse struct {
	Status string      `json:"status"`
	Result placeResult `json:"result"`
}

// Run searches for in.PlaceSearchString.
func (t *PlaceSearch) Run(ctx context.Context, in tool.PlaceSearchInput) (tool.PlaceSearchOutput, error) {
	if t.apiKey == "" {
		return tool.PlaceSearchOutput{}, errors.New("Google Places API key not configured")
	}

	var search placeSearchResponse
	if err := t.get(ctx, "/textsearch/json", url.Values{"query": {in.PlaceSearchString}}, &search); err != nil {
		return tool.PlaceSearchOutput{}, err
	}
	if search.Status != "" && search.Status != "OK" && search.Status != "ZERO_RESULTS" {
		return tool.PlaceSearchOutput{}, fmt.Errorf("place search failed: %s %s", search.Status, search.ErrorMessage)
	}

	hits := make([]placeResult, 0, len(search.Results))
	for _, r := range search.Results {
		if r.PlaceID != "" {
			hits = append(hits, r)
		}
	}

	places := make([]tool.PlaceDetails, len(hits))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(detailConcurrency)
	for i, hit := range hits {
		i, hit := i, hit
		g.Go(func() error {
			var details placeDetailsResponse
			q := url.Values{"place_id": {hit.PlaceID}, "fields": {strings.Join(detailFields, ",")}}
			if err := t.get(gctx, "/details/json", q, &details); err != nil {
				return err
			}
			places[i] = mergePlace(hit, details.Result)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return tool.PlaceSearchOutput{}, err
	}

	return tool.PlaceSearchOutput{Tool: tool.PlaceSearch, Results: places}, nil
}

func (t *PlaceSearch) get(ctx context.Context, path string, q url.Values, out any) error {
	q.Set("key", t.apiKey)
	resp, err := t.client.Do(ctx, Call{Path: path, Query: q})
	if err != nil {
		return err
	}
	if !resp.OK() {
		return &UpstreamError{Service: t.client.Service(), StatusCode: resp.StatusCode}
	}
	if err := resp.DecodeJSON(out); err != nil {
		return fmt.Errorf("failed to decode places response: %w", err)
	}
	return nil
}

// mergePlace takes identity from the search hit and attributes from details.
func mergePlace(hit, details placeResult) tool.PlaceDetails {
	p := tool.PlaceDetails{
		Name:                 tool.OrUnknown(hit.Name),
		Address:              tool.OrUnknown(hit.FormattedAddress),
		PlaceID:              tool.OrUnknown(hit.PlaceID),
		BusinessStatus:       details.BusinessStatus,
		Icon:                 details.Icon,
		Types:                details.Types,
		URL:                  details.URL,
		Vicinity:             details.Vicinity,
		FormattedPhoneNumber: details.FormattedPhoneNumber,
		Website:              details.Website,
	}
	if loc := details.Geometry.Location; loc != nil {
		lat, lng := loc.Lat, loc.Lng
		p.Latitude, p.Longitude = &lat, &lng
	}
	if p.Types == nil {
		p.Types = []string{}
	}
	return p
}
