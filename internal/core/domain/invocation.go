package domain

import "time"

// ToolInvocation is the audit record of one POST /tool call.
type ToolInvocation struct {
	ID           string    `json:"id" db:"id"`
	RequestID    string    `json:"request_id" db:"request_id"`
	UserID       string    `json:"user_id" db:"user_id"`
	Tool         string    `json:"tool" db:"tool"`
	Success      bool      `json:"success" db:"success"`
	ErrorMessage string    `json:"error_message,omitempty" db:"error_message"`
	DurationMS   int64     `json:"duration_ms" db:"duration_ms"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
}

// NewToolInvocation builds an invocation record stamped with the current time.
func NewToolInvocation(id, requestID, userID, tool string, success bool, errMsg string, durationMS int64) ToolInvocation {
	return ToolInvocation{
		ID:           id,
		RequestID:    requestID,
		UserID:       userID,
		Tool:         tool,
		Success:      success,
		ErrorMessage: errMsg,
		DurationMS:   durationMS,
		CreatedAt:    time.Now().UTC(),
	}
}

// MeterEvent converts the invocation into a billable usage event.
func (i ToolInvocation) MeterEvent(eventID string) MeterEvent {
	e := NewMeterEvent(eventID, i.UserID, EventToolInvoked, i.Tool, ResourceTool).
		WithMetadata("request_id", i.RequestID).
		WithMetadata("success", boolString(i.Success))
	e.Timestamp = i.CreatedAt
	return e
}

func boolString(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
