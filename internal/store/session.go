package store

import (
	"fmt"
	"time"

	"mcpconnect/pkg/oauth"
)

// Session is the OAuth session attached to a record. Each variant fixes
// which of the record's flow fields may be populated, so a verifier can
// never survive into Connected and tokens never coexist with a pending
// authorization.
type Session interface {
	Status() oauth.Status
	isSession()
}

// NotStarted is a freshly registered server that has not been probed.
type NotStarted struct{}

// NotRequired is a server whose last probe found no OAuth requirement.
type NotRequired struct{}

// Required is a server that needs authorization and has no attempt pending.
type Required struct{}

// AwaitingCallback holds the PKCE verifier and state of an authorization
// request whose callback has not arrived yet.
type AwaitingCallback struct {
	Verifier string
	State    string
}

// Connected holds tokens that were valid when the session was entered.
type Connected struct {
	Tokens *oauth.TokenBundle
}

// Expired holds tokens found expired on use.
type Expired struct {
	Tokens *oauth.TokenBundle
}

// Failed is Required with the reason of the last failed step.
type Failed struct {
	Reason string
}

func (NotStarted) Status() oauth.Status       { return oauth.StatusUnknown }
func (NotRequired) Status() oauth.Status      { return oauth.StatusNotRequired }
func (Required) Status() oauth.Status         { return oauth.StatusRequired }
func (AwaitingCallback) Status() oauth.Status { return oauth.StatusRequired }
func (Connected) Status() oauth.Status        { return oauth.StatusConnected }
func (Expired) Status() oauth.Status          { return oauth.StatusExpired }
func (Failed) Status() oauth.Status           { return oauth.StatusRequired }

func (NotStarted) isSession()       {}
func (NotRequired) isSession()      {}
func (Required) isSession()         {}
func (AwaitingCallback) isSession() {}
func (Connected) isSession()        {}
func (Expired) isSession()          {}
func (Failed) isSession()           {}

// Session derives the session variant from the persisted fields.
func (r *Record) Session() Session {
	switch r.OAuthStatus {
	case oauth.StatusNotRequired:
		return NotRequired{}
	case oauth.StatusRequired:
		if r.CodeVerifier != "" {
			return AwaitingCallback{Verifier: r.CodeVerifier, State: r.OAuthState}
		}
		if r.LastError != "" {
			return Failed{Reason: r.LastError}
		}
		return Required{}
	case oauth.StatusConnected:
		return Connected{Tokens: r.AuthTokens.Clone()}
	case oauth.StatusExpired:
		return Expired{Tokens: r.AuthTokens.Clone()}
	default:
		return NotStarted{}
	}
}

// Apply moves the record into session s at now. It rejects transitions
// the status machine does not allow and clears every field s does not
// carry. Client info is never touched.
func (r *Record) Apply(s Session, now time.Time) error {
	from := r.OAuthStatus
	if from == "" {
		from = oauth.StatusUnknown
	}
	to := s.Status()
	if !oauth.CanTransition(from, to) {
		return fmt.Errorf("%w: %s -> %s for %q", ErrInvalidTransition, from, to, r.ID)
	}

	switch v := s.(type) {
	case NotStarted:
		r.clearFlow()
		r.AuthTokens = nil
		r.LastError = ""
	case NotRequired:
		r.clearFlow()
		r.AuthTokens = nil
		r.LastError = ""
	case Required:
		r.AuthTokens = nil
	case AwaitingCallback:
		if v.Verifier == "" {
			return fmt.Errorf("awaiting callback for %q without a code verifier", r.ID)
		}
		r.CodeVerifier = v.Verifier
		r.OAuthState = v.State
		r.AuthTokens = nil
		r.LastError = ""
	case Connected:
		if v.Tokens == nil || v.Tokens.AccessToken == "" {
			return fmt.Errorf("connected session for %q without tokens", r.ID)
		}
		if v.Tokens.IsExpiredWithMargin(now, 0) {
			return fmt.Errorf("connected session for %q with tokens expired at %s", r.ID, v.Tokens.Expiry().Format(time.RFC3339))
		}
		r.clearFlow()
		r.AuthTokens = v.Tokens.Clone()
		r.LastError = ""
	case Expired:
		r.clearFlow()
		r.AuthTokens = v.Tokens.Clone()
	case Failed:
		r.clearFlow()
		r.AuthTokens = nil
		r.LastError = v.Reason
	default:
		return fmt.Errorf("unknown session type %T", s)
	}

	r.OAuthStatus = to
	r.UpdatedAt = now
	return nil
}

func (r *Record) clearFlow() {
	r.CodeVerifier = ""
	r.OAuthState = ""
}
