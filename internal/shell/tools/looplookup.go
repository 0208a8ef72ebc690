package tools

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"github.com/artpar/agentresourcerest/internal/core/tool"
)

// LoopLookupBaseURL is the Loop Lookup API root.
const LoopLookupBaseURL = "https://a.looplookup.com/api/v1"

// LoopLookup checks whether contacts can receive iMessage.
type LoopLookup struct {
	svc    loopService
	apiKey string
}

// NewLoopLookup creates the loop_lookup_tool handler.
func NewLoopLookup(cfg Config, opts ...ClientOption) *LoopLookup {
	header := http.Header{}
	header.Set("Authorization", cfg.APIKey)
	return &LoopLookup{
		apiKey: cfg.APIKey,
		svc: loopService{
			client:       NewClient("Loop Lookup", cfg.BaseURL(LoopLookupBaseURL), opts...),
			header:       header,
			unauthorized: "Invalid API key",
			notFound:     "Request ID not found",
		},
	}
}

// Definition registers the tool.
func (t *LoopLookup) Definition() tool.Definition {
	return tool.Definition{
		Name:        tool.LoopLookup,
		Description: "Check iMessage availability for one or many contacts, poll a lookup, or cancel a bulk lookup.",
		Inputs: []any{
			tool.LookupSingleInput{},
			tool.LookupBulkInput{},
			tool.LookupStatusInput{},
			tool.LookupCancelInput{},
		},
		Outputs: []any{
			tool.LookupSingleOutput{},
			tool.LookupBulkOutput{},
			tool.LookupStatusOutput{},
			tool.LookupCancelOutput{},
		},
		Examples: []tool.Example{
			{Tool: tool.LoopLookup, ToolInput: map[string]any{"contact": "+13231112233", "region": "US"}},
			{Tool: tool.LoopLookup, ToolInput: map[string]any{"contacts": []string{"+13231112233", "steve@mac.com"}}},
			{Tool: tool.LoopLookup, ToolInput: map[string]any{"request_id": "7F5D3A1E-2B3C-4D5E-8F9A-0B1C2D3E4F5A"}},
		},
		Decode:  tool.DecodeLookupInput,
		Handler: t.Handle,
	}
}

// Handle dispatches on the decoded variant.
func (t *LoopLookup) Handle(ctx context.Context, input any) (any, error) {
	if t.apiKey == "" {
		return nil, errors.New("Loop Lookup API key not configured")
	}
	switch in := input.(type) {
	case *tool.LookupSingleInput:
		return t.single(ctx, in)
	case *tool.LookupBulkInput:
		return t.bulk(ctx, in)
	case *tool.LookupStatusInput:
		return t.status(ctx, in)
	case *tool.LookupCancelInput:
		return t.cancel(ctx, in)
	}
	return nil, fmt.Errorf("unsupported loop lookup input %T", input)
}

type lookupBody struct {
	Contact        string   `json:"contact,omitempty"`
	Contacts       []string `json:"contacts,omitempty"`
	Region         string   `json:"region,omitempty"`
	ContactDetails bool     `json:"contact_details,omitempty"`
}

func (t *LoopLookup) single(ctx context.Context, in *tool.LookupSingleInput) (tool.LookupSingleOutput, error) {
	var resp struct {
		loopReply
		Contact   string `json:"contact"`
		RequestID string `json:"request_id"`
	}
	body := lookupBody{Contact: in.Contact, Region: in.Region, ContactDetails: in.ContactDetails}
	if err := t.svc.call(ctx, http.MethodPost, "/lookup/", body, &resp); err != nil {
		return tool.LookupSingleOutput{}, err
	}
	if err := resp.check(tool.LookupErrorMessage); err != nil {
		return tool.LookupSingleOutput{}, err
	}

	contact := resp.Contact
	if contact == "" {
		contact = in.Contact
	}
	return tool.LookupSingleOutput{
		Tool:    tool.LoopLookup,
		Success: true,
		Request: tool.LookupRequest{Contact: contact, RequestID: resp.RequestID},
	}, nil
}

func (t *LoopLookup) bulk(ctx context.Context, in *tool.LookupBulkInput) (tool.LookupBulkOutput, error) {
	var resp struct {
		loopReply
		Requests []tool.LookupRequest `json:"requests"`
	}
	body := lookupBody{Contacts: in.Contacts, Region: in.Region, ContactDetails: in.ContactDetails}
	if err := t.svc.call(ctx, http.MethodPost, "/lookup/", body, &resp); err != nil {
		return tool.LookupBulkOutput{}, err
	}
	if err := resp.check(tool.LookupErrorMessage); err != nil {
		return tool.LookupBulkOutput{}, err
	}

	requests := resp.Requests
	if requests == nil {
		requests = []tool.LookupRequest{}
	}
	return tool.LookupBulkOutput{Tool: tool.LoopLookup, Success: true, Requests: requests}, nil
}

func (t *LoopLookup) status(ctx context.Context, in *tool.LookupStatusInput) (tool.LookupStatusOutput, error) {
	var result tool.LookupResult
	path := "/lookup/status/" + url.PathEscape(in.RequestID) + "/"
	if err := t.svc.call(ctx, http.MethodGet, path, nil, &result); err != nil {
		return tool.LookupStatusOutput{}, err
	}
	if result.RequestID == "" {
		result.RequestID = in.RequestID
	}
	if result.Status == "" {
		result.Status = "unknown"
	}
	return tool.LookupStatusOutput{Tool: tool.LoopLookup, Result: result}, nil
}

func (t *LoopLookup) cancel(ctx context.Context, in *tool.LookupCancelInput) (tool.LookupCancelOutput, error) {
	var data map[string]any
	path := "/bulk-lookup/delete/" + url.PathEscape(in.CancelRequestID) + "/"
	if err := t.svc.call(ctx, http.MethodDelete, path, nil, &data); err != nil {
		return tool.LookupCancelOutput{}, err
	}
	return tool.LookupCancelOutput{
		Tool:    tool.LoopLookup,
		Success: true,
		Message: fmt.Sprintf("Bulk request %s canceled successfully", in.CancelRequestID),
		Data:    data,
	}, nil
}
