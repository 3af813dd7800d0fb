package oauth

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFlowError(t *testing.T) {
	cause := errors.New("dial tcp: connection refused")
	err := fmt.Errorf("wrapped: %w", newFlowError(KindTransportFailure, "detect", "github", cause))

	assert.True(t, errors.Is(err, KindTransportFailure))
	assert.False(t, errors.Is(err, KindConflict))
	assert.True(t, errors.Is(err, cause))
	assert.Equal(t, KindTransportFailure, KindOf(err))
	assert.Equal(t, "Could not reach the server", UserMessage(err))
	assert.Contains(t, err.Error(), "detect github: TransportFailure")
}

func TestUserMessage(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{name: "nil", err: nil, want: ""},
		{name: "plain error", err: errors.New("boom"), want: "Unexpected error: boom"},
		{
			name: "override",
			err:  &FlowError{Kind: KindCallbackRejected, Message: "User declined"},
			want: "User declined",
		},
		{
			name: "no authorization server",
			err:  newFlowError(KindNoAuthorizationServer, "discover", "x", nil),
			want: "Could not find authorization server for this MCP server",
		},
		{
			name: "unknown kind",
			err:  &FlowError{Kind: ErrorKind("Weird")},
			want: "Weird",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := UserMessage(tt.err); got != tt.want {
				t.Errorf("UserMessage() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestEveryKindHasAMessage(t *testing.T) {
	kinds := []ErrorKind{
		KindTransportFailure, KindMetadataMissing, KindNoAuthorizationServer,
		KindManualRegistrationRequired, KindRegistrationRejected, KindExchangeRejected,
		KindMissingVerifier, KindMisconfiguration, KindCallbackRejected, KindConflict,
	}
	for _, k := range kinds {
		assert.NotEmpty(t, userMessages[k], k)
	}
}
