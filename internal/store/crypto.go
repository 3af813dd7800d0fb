package store

import (
	"fmt"

	"github.com/giantswarm/mcp-oauth/security"
)

// sealer encrypts the secret fields of a record at rest: access and
// refresh tokens, the client secret, the code verifier and the state.
type sealer struct {
	enc *security.Encryptor
}

func (s sealer) enabled() bool {
	return s.enc != nil && s.enc.IsEnabled()
}

// seal returns an encrypted copy of rec. rec itself is not modified.
func (s sealer) seal(rec *Record) (*Record, error) {
	out := rec.Clone()
	out.Encrypted = false
	if !s.enabled() {
		return out, nil
	}

	var err error
	for _, field := range secretFields(out) {
		if *field == "" {
			continue
		}
		if *field, err = s.enc.Encrypt(*field); err != nil {
			return nil, fmt.Errorf("failed to encrypt record %s: %w", rec.ID, err)
		}
	}
	out.Encrypted = true
	return out, nil
}

// open decrypts rec in place.
func (s sealer) open(rec *Record) error {
	if !rec.Encrypted {
		return nil
	}
	if !s.enabled() {
		return fmt.Errorf("record %s is encrypted but no encryption key is configured", rec.ID)
	}

	var err error
	for _, field := range secretFields(rec) {
		if *field == "" {
			continue
		}
		if *field, err = s.enc.Decrypt(*field); err != nil {
			return fmt.Errorf("failed to decrypt record %s: %w", rec.ID, err)
		}
	}
	rec.Encrypted = false
	return nil
}

func secretFields(rec *Record) []*string {
	fields := []*string{&rec.CodeVerifier, &rec.OAuthState}
	if rec.AuthTokens != nil {
		fields = append(fields, &rec.AuthTokens.AccessToken, &rec.AuthTokens.RefreshToken)
	}
	if rec.ClientInfo != nil {
		fields = append(fields, &rec.ClientInfo.ClientSecret)
	}
	return fields
}
