package oauth

import (
	"errors"
	"fmt"
)

// ErrorKind classifies flow failures. Each kind maps to one user-facing
// message and one recovery policy.
type ErrorKind string

const (
	// KindTransportFailure: network, DNS or timeout talking to the resource
	// or authorization server.
	KindTransportFailure ErrorKind = "TransportFailure"

	// KindMetadataMissing: authorization server metadata absent, malformed
	// or missing required endpoints.
	KindMetadataMissing ErrorKind = "MetadataMissing"

	// KindNoAuthorizationServer: protected resource metadata unreachable,
	// malformed or naming no authorization server.
	KindNoAuthorizationServer ErrorKind = "NoAuthorizationServer"

	// KindManualRegistrationRequired: no registration endpoint and no
	// pre-provisioned client. Terminal until an operator adds a client.
	KindManualRegistrationRequired ErrorKind = "ManualRegistrationRequired"

	// KindRegistrationRejected: the registration endpoint refused the client.
	KindRegistrationRejected ErrorKind = "RegistrationRejected"

	// KindExchangeRejected: the token endpoint returned an OAuth error.
	KindExchangeRejected ErrorKind = "ExchangeRejected"

	// KindMissingVerifier: a callback arrived with no matching verifier.
	KindMissingVerifier ErrorKind = "MissingVerifier"

	// KindMisconfiguration: the public base URL is missing. Fatal.
	KindMisconfiguration ErrorKind = "Misconfiguration"

	// KindCallbackRejected: the provider reported an error or sent no code.
	KindCallbackRejected ErrorKind = "CallbackRejected"

	// KindConflict: an authorization attempt is already in flight.
	KindConflict ErrorKind = "Conflict"
)

func (k ErrorKind) Error() string {
	return string(k)
}

var userMessages = map[ErrorKind]string{
	KindTransportFailure:           "Could not reach the server",
	KindMetadataMissing:            "Could not load authorization server metadata",
	KindNoAuthorizationServer:      "Could not find authorization server for this MCP server",
	KindManualRegistrationRequired: "This authorization server does not support dynamic client registration; a client must be configured manually",
	KindRegistrationRejected:       "The authorization server rejected client registration",
	KindExchangeRejected:           "The authorization server rejected the token request",
	KindMissingVerifier:            "No authorization in progress for this server; please connect again",
	KindMisconfiguration:           "Public URL is not configured; OAuth redirects cannot be built",
	KindCallbackRejected:           "Authorization was not completed",
	KindConflict:                   "An authorization attempt is already in progress for this server",
}

// FlowError is a failed step of the OAuth flow.
type FlowError struct {
	Kind     ErrorKind
	Op       string
	ServerID string

	// Message overrides the kind's default user message, e.g. with the
	// provider's error_description.
	Message string

	Err error
}

func (e *FlowError) Error() string {
	msg := fmt.Sprintf("%s %s: %s", e.Op, e.ServerID, e.Kind)
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *FlowError) Unwrap() error {
	return e.Err
}

// Is matches the error's kind, so errors.Is(err, KindConflict) works.
func (e *FlowError) Is(target error) bool {
	kind, ok := target.(ErrorKind)
	return ok && kind == e.Kind
}

// UserMessage returns the message shown to end users.
func (e *FlowError) UserMessage() string {
	if e.Message != "" {
		return e.Message
	}
	if msg, ok := userMessages[e.Kind]; ok {
		return msg
	}
	return string(e.Kind)
}

func newFlowError(kind ErrorKind, op, serverID string, err error) *FlowError {
	return &FlowError{Kind: kind, Op: op, ServerID: serverID, Err: err}
}

// KindOf returns the kind of a FlowError in err's chain, or "".
func KindOf(err error) ErrorKind {
	var fe *FlowError
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return ""
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind ErrorKind) bool {
	return errors.Is(err, kind)
}

// UserMessage maps any error onto a user-facing string.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	var fe *FlowError
	if errors.As(err, &fe) {
		return fe.UserMessage()
	}
	return "Unexpected error: " + err.Error()
}
