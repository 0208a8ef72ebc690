package tool

import (
	"encoding/json"
	"fmt"
	"strings"
)

const maxBulkContacts = 3000

// LookupSingleInput checks one contact.
type LookupSingleInput struct {
	Contact        string `json:"contact"`
	Region         string `json:"region,omitempty"`
	ContactDetails bool   `json:"contact_details,omitempty"`
}

func (in *LookupSingleInput) Validate() error {
	var errs ValidationErrors
	contact, err := NormalizeContact(in.Contact)
	if err != nil {
		errs.Add("contact", "%v", err)
	}
	in.Contact = contact
	normalizeOptionalRegion(&errs, &in.Region)
	return errs.Err()
}

// LookupBulkInput checks up to 3000 contacts in one request.
type LookupBulkInput struct {
	Contacts       []string `json:"contacts"`
	Region         string   `json:"region,omitempty"`
	ContactDetails bool     `json:"contact_details,omitempty"`
}

func (in *LookupBulkInput) Validate() error {
	var errs ValidationErrors
	switch {
	case len(in.Contacts) == 0:
		errs.Add("contacts", "must contain at least 1 contact")
	case len(in.Contacts) > maxBulkContacts:
		errs.Add("contacts", "must contain at most %d contacts", maxBulkContacts)
	}
	for i, c := range in.Contacts {
		normalized, err := NormalizeContact(c)
		if err != nil {
			errs.Add(fmt.Sprintf("contacts[%d]", i), "%v", err)
			continue
		}
		in.Contacts[i] = normalized
	}
	normalizeOptionalRegion(&errs, &in.Region)
	return errs.Err()
}

// LookupStatusInput polls a previously submitted lookup.
type LookupStatusInput struct {
	RequestID string `json:"request_id"`
}

func (in *LookupStatusInput) Validate() error {
	var errs ValidationErrors
	in.RequestID = strings.TrimSpace(in.RequestID)
	if in.RequestID == "" {
		errs.Add("request_id", "must not be empty")
	}
	return errs.Err()
}

// LookupCancelInput cancels a bulk lookup.
type LookupCancelInput struct {
	CancelRequestID string `json:"cancel_request_id"`
}

func (in *LookupCancelInput) Validate() error {
	var errs ValidationErrors
	in.CancelRequestID = strings.TrimSpace(in.CancelRequestID)
	if in.CancelRequestID == "" {
		errs.Add("cancel_request_id", "must not be empty")
	}
	return errs.Err()
}

func normalizeOptionalRegion(errs *ValidationErrors, region *string) {
	if strings.TrimSpace(*region) == "" {
		*region = ""
		return
	}
	r, err := NormalizeRegion(*region)
	if err != nil {
		errs.Add("region", "%v", err)
		return
	}
	*region = r
}

// DecodeLookupInput picks the lookup variant by the fields present and
// returns a validated *LookupSingleInput, *LookupBulkInput,
// *LookupStatusInput or *LookupCancelInput.
func DecodeLookupInput(raw json.RawMessage) (any, error) {
	present, err := fieldsPresent(raw, "contact", "contacts", "request_id", "cancel_request_id")
	if err != nil {
		return nil, err
	}
	switch {
	case present["contact"]:
		return Decode[LookupSingleInput](raw)
	case present["contacts"]:
		return Decode[LookupBulkInput](raw)
	case present["cancel_request_id"]:
		return Decode[LookupCancelInput](raw)
	case present["request_id"]:
		return Decode[LookupStatusInput](raw)
	}
	return nil, &ValidationErrors{{Field: "tool_input", Message: "one of contact, contacts, request_id or cancel_request_id is required"}}
}

// LookupRequest identifies one submitted contact check.
type LookupRequest struct {
	Contact   string `json:"contact"`
	RequestID string `json:"request_id"`
}

// LookupResult is the status of a contact check.
type LookupResult struct {
	RequestID string         `json:"request_id"`
	Status    string         `json:"status"`
	Contact   string         `json:"contact,omitempty"`
	ResultV1  map[string]any `json:"result_v1,omitempty"`
}

// LookupSingleOutput is returned for a single lookup.
type LookupSingleOutput struct {
	Tool    Name          `json:"tool"`
	Success bool          `json:"success"`
	Request LookupRequest `json:"request"`
}

// LookupBulkOutput is returned for a bulk lookup.
type LookupBulkOutput struct {
	Tool     Name            `json:"tool"`
	Success  bool            `json:"success"`
	Requests []LookupRequest `json:"requests"`
}

// LookupStatusOutput is returned for a status poll.
type LookupStatusOutput struct {
	Tool   Name         `json:"tool"`
	Result LookupResult `json:"result"`
}

// LookupCancelOutput is returned for a bulk cancel.
type LookupCancelOutput struct {
	Tool    Name           `json:"tool"`
	Success bool           `json:"success"`
	Message string         `json:"message"`
	Data    map[string]any `json:"data,omitempty"`
}
