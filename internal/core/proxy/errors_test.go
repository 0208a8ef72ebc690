package proxy

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorResponse_Constructors(t *testing.T) {
	tests := []struct {
		name     string
		err      ErrorResponse
		wantCode int
		wantType ErrorType
		wantMsg  string
	}{
		{
			name:     "invalid json returns 400",
			err:      NewInvalidJSONError(errors.New("unexpected EOF")),
			wantCode: 400,
			wantType: ErrorInvalidRequest,
			wantMsg:  "Invalid JSON: unexpected EOF",
		},
		{
			name:     "no servers returns 404",
			err:      NewNoServersError(),
			wantCode: 404,
			wantType: ErrorNoServers,
			wantMsg:  "No servers available",
		},
		{
			name:     "endpoint error keeps upstream status",
			err:      NewEndpointError(503, "model loading"),
			wantCode: 503,
			wantType: ErrorEndpoint,
			wantMsg:  "Error from endpoint: 503 model loading",
		},
		{
			name:     "unreachable returns 502",
			err:      NewUnreachableError(errors.New("dial tcp: refused")),
			wantCode: 502,
			wantType: ErrorEndpoint,
			wantMsg:  "Error contacting endpoint: dial tcp: refused",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.wantCode, tt.err.StatusCode())
			assert.Equal(t, tt.wantType, tt.err.Type)
			assert.Equal(t, tt.wantMsg, tt.err.Error())
			assert.Equal(t, "error", tt.err.Object)
		})
	}
}

func TestErrorResponse_JSON(t *testing.T) {
	b, err := json.Marshal(NewNoServersError())
	require.NoError(t, err)
	assert.JSONEq(t, `{"object":"error","message":"No servers available","type":"no_servers","code":404}`, string(b))
}

func TestErrorResponse_ZeroCode(t *testing.T) {
	assert.Equal(t, 500, ErrorResponse{}.StatusCode())
}

func TestErrorResponse_Implements_error(t *testing.T) {
	var err error = NewNoServersError()

	var resp ErrorResponse
	require.True(t, errors.As(err, &resp))
	assert.Equal(t, ErrorNoServers, resp.Type)
}

func TestStreamErrorText(t *testing.T) {
	assert.Equal(t, "Error from endpoint: 500 Internal Server Error", StreamErrorText(500, "Internal Server Error"))
}
