package tools

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/artpar/agentresourcerest/internal/core/tool"
)

// AddressValidationBaseURL is the Google Address Validation API root.
const AddressValidationBaseURL = "https://addressvalidation.googleapis.com/v1"

// AddressValidation normalizes and verifies postal addresses.
// Upstream failures yield an empty result list rather than a tool error.
type AddressValidation struct {
	client *Client
	apiKey string
	logger *slog.Logger
}

// NewAddressValidation creates the google_address_validation_tool handler.
func NewAddressValidation(cfg Config, logger *slog.Logger, opts ...ClientOption) *AddressValidation {
	if logger == nil {
		logger = slog.Default()
	}
	return &AddressValidation{
		client: NewClient("Google Address Validation", cfg.BaseURL(AddressValidationBaseURL), opts...),
		apiKey: cfg.APIKey,
		logger: logger,
	}
}

// Definition registers the tool.
func (t *AddressValidation) Definition() tool.Definition {
	return tool.Definition{
		Name:        tool.GoogleAddressValidation,
		Description: "Validate and standardize a postal address, including USPS CASS data for US addresses.",
		Inputs:      []any{tool.AddressValidationInput{}},
		Outputs:     []any{tool.AddressValidationOutput{}},
		Examples: []tool.Example{
			{Tool: tool.GoogleAddressValidation, ToolInput: map[string]any{"address": "1600 Amphitheatre Parkway, Mountain View, CA"}},
			{Tool: tool.GoogleAddressValidation, ToolInput: map[string]any{"address": "475 st marks broklyn 7a"}},
		},
		Decode: tool.DecoderFor[tool.AddressValidationInput](),
		Handler: func(ctx context.Context, input any) (any, error) {
			return t.Run(ctx, *input.(*tool.AddressValidationInput))
		},
	}
}

type validateAddressRequest struct {
	Address struct {
		AddressLines []string `json:"addressLines"`
	} `json:"address"`
	EnableUspsCass bool `json:"enableUspsCass"`
}

type validateAddressResponse struct {
	Result *struct {
		Address struct {
			FormattedAddress  string         `json:"formattedAddress"`
			PostalAddress     map[string]any `json:"postalAddress"`
			AddressComponents []struct {
				ComponentName struct {
					Text string `json:"text"`
				} `json:"componentName"`
				ComponentType     string `json:"componentType"`
				ConfirmationLevel string `json:"confirmationLevel"`
			} `json:"addressComponents"`
		} `json:"address"`
		Geocode  map[string]any `json:"geocode"`
		Metadata map[string]any `json:"metadata"`
		USPSData map[string]any `json:"uspsData"`
	} `json:"result"`
}

// Run validates in.Address.
func (t *AddressValidation) Run(ctx context.Context, in tool.AddressValidationInput) (tool.AddressValidationOutput, error) {
	out := tool.AddressValidationOutput{Tool: tool.GoogleAddressValidation, Results: []tool.AddressValidationResult{}}
	if t.apiKey == "" {
		t.logger.Warn("address validation skipped: no api key configured")
		return out, nil
	}

	var body validateAddressRequest
	body.Address.AddressLines = []string{in.Address}
	body.EnableUspsCass = true

	call, err := JSONCall(http.MethodPost, ":validateAddress", body)
	if err != nil {
		return out, err
	}
	call.Query = url.Values{"key": {t.apiKey}}

	resp, err := t.client.Do(ctx, call)
	if err != nil {
		t.logger.Warn("address validation request failed", "error", err)
		return out, nil
	}
	if !resp.OK() {
		t.logger.Warn("address validation rejected", "status", resp.StatusCode)
		return out, nil
	}

	var data validateAddressResponse
	if err := resp.DecodeJSON(&data); err != nil {
		t.logger.Warn("address validation returned invalid JSON", "error", err)
		return out, nil
	}
	if data.Result == nil {
		return out, nil
	}

	r := data.Result
	components := make([]tool.AddressComponent, 0, len(r.Address.AddressComponents))
	for _, c := range r.Address.AddressComponents {
		components = append(components, tool.AddressComponent{
			ComponentName:     c.ComponentName.Text,
			ComponentType:     c.ComponentType,
			ConfirmationLevel: c.ConfirmationLevel,
		})
	}
	postal := r.Address.PostalAddress
	if postal == nil {
		postal = map[string]any{}
	}
	out.Results = append(out.Results, tool.AddressValidationResult{
		FormattedAddress:  r.Address.FormattedAddress,
		PostalAddress:     postal,
		AddressComponents: components,
		Geocode:           r.Geocode,
		Metadata:          r.Metadata,
		USPSData:          r.USPSData,
	})
	return out, nil
}
