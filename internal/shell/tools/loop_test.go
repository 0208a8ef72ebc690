package tools

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/artpar/agentresourcerest/internal/core/tool"
)

// =============================================================================
// Loop Lookup
// =============================================================================

func TestLoopLookup_Single(t *testing.T) {
	srv := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/lookup/", r.URL.Path)
		assert.Equal(t, "lookup-key", r.Header.Get("Authorization"))

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "+13231112233", body["contact"])
		assert.Equal(t, "US", body["region"])
		assert.NotContains(t, body, "contact_details")

		writeJSON(w, 200, map[string]any{"success": true, "request_id": "req-1"})
	})

	lt := NewLoopLookup(cfgFor("loop_lookup_tool", "lookup-key", srv.URL, nil), fastRetry)
	out, err := lt.Handle(context.Background(), &tool.LookupSingleInput{Contact: "+13231112233", Region: "US"})
	require.NoError(t, err)

	single := out.(tool.LookupSingleOutput)
	assert.True(t, single.Success)
	assert.Equal(t, tool.LookupRequest{Contact: "+13231112233", RequestID: "req-1"}, single.Request)
}

func TestLoopLookup_Bulk(t *testing.T) {
	srv := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Len(t, body["contacts"], 2)
		writeJSON(w, 200, map[string]any{
			"success": true,
			"requests": []map[string]string{
				{"contact": "a@b.co", "request_id": "r1"},
				{"contact": "+15551234567", "request_id": "r2"},
			},
		})
	})

	lt := NewLoopLookup(cfgFor("loop_lookup_tool", "k", srv.URL, nil), fastRetry)
	out, err := lt.Handle(context.Background(), &tool.LookupBulkInput{Contacts: []string{"a@b.co", "+15551234567"}})
	require.NoError(t, err)
	assert.Len(t, out.(tool.LookupBulkOutput).Requests, 2)
}

func TestLoopLookup_StatusDefaults(t *testing.T) {
	srv := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/lookup/status/req-9/", r.URL.Path)
		writeJSON(w, 200, map[string]any{"result_v1": map[string]any{"imessage": true}})
	})

	lt := NewLoopLookup(cfgFor("loop_lookup_tool", "k", srv.URL, nil), fastRetry)
	out, err := lt.Handle(context.Background(), &tool.LookupStatusInput{RequestID: "req-9"})
	require.NoError(t, err)

	res := out.(tool.LookupStatusOutput).Result
	assert.Equal(t, "req-9", res.RequestID)
	assert.Equal(t, "unknown", res.Status)
	assert.Equal(t, true, res.ResultV1["imessage"])
}

func TestLoopLookup_Cancel(t *testing.T) {
	srv := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodDelete, r.Method)
		assert.Equal(t, "/bulk-lookup/delete/bulk-1/", r.URL.Path)
		writeJSON(w, 200, map[string]any{"deleted": 12})
	})

	lt := NewLoopLookup(cfgFor("loop_lookup_tool", "k", srv.URL, nil), fastRetry)
	out, err := lt.Handle(context.Background(), &tool.LookupCancelInput{CancelRequestID: "bulk-1"})
	require.NoError(t, err)

	cancel := out.(tool.LookupCancelOutput)
	assert.True(t, cancel.Success)
	assert.Equal(t, "Bulk request bulk-1 canceled successfully", cancel.Message)
	assert.Equal(t, float64(12), cancel.Data["deleted"])
}

func TestLoopLookup_HTTPErrors(t *testing.T) {
	tests := []struct {
		status int
		body   string
		want   string
	}{
		{400, `{"message":"contact is invalid"}`, "Bad Request: contact is invalid"},
		{400, ``, "Bad Request: Invalid request"},
		{401, ``, "Unauthorized: Invalid API key"},
		{402, ``, "Payment Required: No available requests/credits"},
		{404, ``, "Not Found: Request ID not found"},
		{500, ``, "Server Error: Loop Lookup service unavailable"},
		{418, `teapot`, "HTTP 418: teapot"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			srv := newServer(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			})
			lt := NewLoopLookup(cfgFor("loop_lookup_tool", "k", srv.URL, nil), fastRetry)
			_, err := lt.Handle(context.Background(), &tool.LookupSingleInput{Contact: "+13231112233"})
			require.Error(t, err)
			assert.Equal(t, tt.want, err.Error())
		})
	}
}

func TestLoopLookup_APIErrorBody(t *testing.T) {
	srv := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, 200, map[string]any{"success": false, "code": 160})
	})

	lt := NewLoopLookup(cfgFor("loop_lookup_tool", "k", srv.URL, nil), fastRetry)
	_, err := lt.Handle(context.Background(), &tool.LookupSingleInput{Contact: "+13231112233"})
	require.Error(t, err)
	assert.Equal(t, "API Error 160: Invalid recipient", err.Error())
}

func TestLoopLookup_InvalidJSONAndConnection(t *testing.T) {
	srv := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("<html>"))
	})
	lt := NewLoopLookup(cfgFor("loop_lookup_tool", "k", srv.URL, nil), fastRetry)
	_, err := lt.Handle(context.Background(), &tool.LookupStatusInput{RequestID: "r"})
	require.Error(t, err)
	assert.Equal(t, "Invalid JSON response from Loop Lookup service", err.Error())

	closed := newServer(t, func(w http.ResponseWriter, r *http.Request) {})
	closed.Close()
	lt = NewLoopLookup(cfgFor("loop_lookup_tool", "k", closed.URL, nil), fastRetry)
	_, err = lt.Handle(context.Background(), &tool.LookupStatusInput{RequestID: "r"})
	require.Error(t, err)
	assert.Equal(t, "Connection error - Unable to reach Loop Lookup service", err.Error())
}

func TestLoopLookup_NotConfigured(t *testing.T) {
	_, err := NewLoopLookup(Config{}).Handle(context.Background(), &tool.LookupStatusInput{RequestID: "r"})
	require.Error(t, err)
	assert.Equal(t, "Loop Lookup API key not configured", err.Error())
}

// =============================================================================
// Loop Message
// =============================================================================

func messageConfig(baseURL string) Config {
	return cfgFor("loop_message_tool", "auth-key", baseURL, map[string]string{"secret_key": "secret"})
}

func TestLoopMessage_SendSingle(t *testing.T) {
	srv := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/message/send/", r.URL.Path)
		assert.Equal(t, "auth-key", r.Header.Get("Authorization"))
		assert.Equal(t, "secret", r.Header.Get("Loop-Secret-Key"))

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "+13231112233", body["recipient"])
		assert.Equal(t, "sender@imsg.co", body["sender_name"])
		assert.NotContains(t, body, "service", "imessage is the default and is not sent")

		writeJSON(w, 200, map[string]any{"success": true, "message_id": "m-1"})
	})

	mt := NewLoopMessage(messageConfig(srv.URL), fastRetry)
	out, err := mt.Handle(context.Background(), &tool.MessageSingleInput{
		Recipient: "+13231112233", Text: "hi", SenderName: "sender@imsg.co", Service: "imessage",
	})
	require.NoError(t, err)
	assert.Equal(t, tool.MessageSingleOutput{
		Tool: tool.LoopMessage, Success: true, MessageID: "m-1", Recipient: "+13231112233", Text: "hi",
	}, out)
}

func TestLoopMessage_SMSServiceIsSent(t *testing.T) {
	srv := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "sms", body["service"])
		writeJSON(w, 200, map[string]any{"success": true, "message_id": "m-2", "text": "echoed"})
	})

	mt := NewLoopMessage(messageConfig(srv.URL), fastRetry)
	out, err := mt.Handle(context.Background(), &tool.MessageSingleInput{
		Recipient: "+13231112233", Text: "hi", SenderName: "s", Service: "sms",
	})
	require.NoError(t, err)
	assert.Equal(t, "echoed", out.(tool.MessageSingleOutput).Text)
}

func TestLoopMessage_Group(t *testing.T) {
	srv := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, 200, map[string]any{
			"success":    true,
			"message_id": "m-3",
			"group":      map[string]any{"name": "Team", "participants": []string{"+1555", "+1666"}},
		})
	})

	mt := NewLoopMessage(messageConfig(srv.URL), fastRetry)
	out, err := mt.Handle(context.Background(), &tool.MessageGroupInput{Group: "G-1", Text: "hello", SenderName: "s"})
	require.NoError(t, err)

	group := out.(tool.MessageGroupOutput)
	assert.Equal(t, "G-1", group.Group.GroupID)
	assert.Equal(t, "Team", group.Group.Name)
	assert.Len(t, group.Group.Participants, 2)
	assert.Equal(t, "hello", group.Text)
}

func TestLoopMessage_Status(t *testing.T) {
	srv := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/message/status/m-4/", r.URL.Path)
		writeJSON(w, 200, map[string]any{"status": "sent", "sandbox": false, "error_code": 0})
	})

	mt := NewLoopMessage(messageConfig(srv.URL), fastRetry)
	out, err := mt.Handle(context.Background(), &tool.MessageStatusInput{MessageID: "m-4"})
	require.NoError(t, err)

	res := out.(tool.MessageStatusOutput).Result
	assert.Equal(t, "m-4", res.MessageID)
	assert.Equal(t, "sent", res.Status)
	require.NotNil(t, res.Sandbox)
	assert.False(t, *res.Sandbox)
}

func TestLoopMessage_Errors(t *testing.T) {
	srv := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/message/status/missing/":
			w.WriteHeader(http.StatusNotFound)
		default:
			writeJSON(w, 200, map[string]any{"success": false, "code": 240, "message": ""})
		}
	})
	mt := NewLoopMessage(messageConfig(srv.URL), fastRetry)

	_, err := mt.Handle(context.Background(), &tool.MessageStatusInput{MessageID: "missing"})
	require.Error(t, err)
	assert.Equal(t, "Not Found: Message ID not found", err.Error())

	_, err = mt.Handle(context.Background(), &tool.MessageReactionInput{
		Recipient: "+13231112233", Text: "x", MessageID: "m", SenderName: "s", Reaction: "love",
	})
	require.Error(t, err)
	assert.Equal(t, "API Error 240: Sender name is not activated or unpaid", err.Error())
}

func TestLoopMessage_NotConfigured(t *testing.T) {
	cfg := Config{APIKey: "auth-only"}
	_, err := NewLoopMessage(cfg).Handle(context.Background(), &tool.MessageStatusInput{MessageID: "m"})
	require.Error(t, err)
	assert.Equal(t, "Loop Message API keys not configured", err.Error())
}
