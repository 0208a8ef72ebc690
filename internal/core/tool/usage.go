package tool

import "strings"

// UsageInput records billable agent activity that happens outside tool calls.
type UsageInput struct {
	EventType  string            `json:"event_type"`
	Quantity   int64             `json:"quantity,omitempty"`
	ResourceID string            `json:"resource_id,omitempty"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

func (in *UsageInput) ApplyDefaults() {
	if in.Quantity == 0 {
		in.Quantity = 1
	}
}

func (in *UsageInput) Validate() error {
	var errs ValidationErrors
	in.EventType = strings.TrimSpace(in.EventType)
	if in.EventType == "" {
		errs.Add("event_type", "must not be empty")
	}
	checkMaxLen(&errs, "event_type", in.EventType, 64)
	if in.Quantity < 0 {
		errs.Add("quantity", "must be greater than 0")
	}
	return errs.Err()
}

// UsageOutput is the output of usage_logging_tool.
type UsageOutput struct {
	Tool     Name   `json:"tool"`
	EventID  string `json:"event_id"`
	Recorded bool   `json:"recorded"`
}
