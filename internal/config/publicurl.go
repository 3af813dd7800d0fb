package config

import (
	"errors"
	"strings"
)

// ErrPublicURLMissing reports that no public URL is configured outside
// development.
var ErrPublicURLMissing = errors.New("public URL is not configured; set publicUrl or " + EnvPublicURL)

// PublicURL is the resolved public base URL of the service. It is resolved
// once at startup and passed to the components that build redirect URIs.
type PublicURL struct {
	base string
	err  error
}

// ResolvePublicURL resolves the public base URL: the configured value when
// present, the local default in development, otherwise a PublicURL that
// reports ErrPublicURLMissing.
func ResolvePublicURL(cfg Config) PublicURL {
	if cfg.PublicURL != "" {
		if err := validateHTTPURL(cfg.PublicURL); err != nil {
			return PublicURL{err: err}
		}
		return PublicURL{base: strings.TrimSuffix(cfg.PublicURL, "/")}
	}
	if cfg.IsDevelopment() {
		return PublicURL{base: DefaultDevelopmentPublicURL}
	}
	return PublicURL{err: ErrPublicURLMissing}
}

// NewPublicURL wraps an already validated base URL.
func NewPublicURL(base string) PublicURL {
	return PublicURL{base: strings.TrimSuffix(base, "/")}
}

// Base returns the base URL without trailing slash, or the resolution error.
func (p PublicURL) Base() (string, error) {
	if p.err != nil {
		return "", p.err
	}
	if p.base == "" {
		return "", ErrPublicURLMissing
	}
	return p.base, nil
}

// Err returns the resolution error, if any.
func (p PublicURL) Err() error {
	_, err := p.Base()
	return err
}
