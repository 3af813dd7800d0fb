package config

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/giantswarm/mcp-oauth/security"
)

// serverIDPattern restricts server ids to values that are safe as a URL
// path segment, a file name and a Firestore document id.
var serverIDPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_-]{0,62}$`)

// ValidationErrors is a collection of validation errors
type ValidationErrors []*ConfigurationError

// Error implements the error interface for multiple validation errors
func (ve ValidationErrors) Error() string {
	if len(ve) == 0 {
		return "no validation errors"
	}
	if len(ve) == 1 {
		return ve[0].Error()
	}

	var messages []string
	for _, err := range ve {
		messages = append(messages, err.Error())
	}
	return fmt.Sprintf("validation failed: %s", strings.Join(messages, "; "))
}

// HasErrors returns true if there are any validation errors
func (ve ValidationErrors) HasErrors() bool {
	return len(ve) > 0
}

// Add adds a new validation error
func (ve *ValidationErrors) Add(field, message string) {
	*ve = append(*ve, &ConfigurationError{
		Field:     field,
		ErrorType: "validation",
		Message:   message,
	})
}

// Validate checks a loaded configuration. The public URL is not required
// here; ResolvePublicURL decides what a missing value means.
func Validate(cfg Config) error {
	var errs ValidationErrors

	switch cfg.Environment {
	case EnvironmentProduction, EnvironmentDevelopment:
	default:
		errs.Add("environment", fmt.Sprintf("must be %q or %q, got %q", EnvironmentProduction, EnvironmentDevelopment, cfg.Environment))
	}

	if cfg.PublicURL != "" {
		if err := validateHTTPURL(cfg.PublicURL); err != nil {
			errs.Add("publicUrl", err.Error())
		}
	}

	if !strings.HasPrefix(cfg.OAuth.CallbackPath, "/") {
		errs.Add("oauth.callbackPath", "must start with /")
	}

	switch cfg.Storage.Type {
	case StorageTypeFile:
		if cfg.Storage.Path == "" {
			errs.Add("storage.path", "is required for the file backend")
		}
	case StorageTypeMemory:
	case StorageTypeFirestore:
		if cfg.Storage.Firestore.ProjectID == "" {
			errs.Add("storage.firestore.projectId", "is required for the firestore backend")
		}
	default:
		errs.Add("storage.type", fmt.Sprintf("unsupported storage type %q (supported: file, memory, firestore)", cfg.Storage.Type))
	}

	if cfg.Storage.EncryptionKey != "" {
		if _, err := security.KeyFromBase64(cfg.Storage.EncryptionKey); err != nil {
			errs.Add("storage.encryptionKey", err.Error())
		}
	}

	switch cfg.Telemetry.Exporter {
	case ExporterStdout, ExporterNone:
	default:
		errs.Add("telemetry.exporter", fmt.Sprintf("unsupported exporter %q (supported: stdout, none)", cfg.Telemetry.Exporter))
	}

	seen := make(map[string]bool)
	for i, def := range cfg.Servers {
		field := fmt.Sprintf("servers[%d]", i)
		if err := ValidateServerDefinition(def); err != nil {
			errs.Add(field, err.Error())
			continue
		}
		if seen[def.ID] {
			errs.Add(field, fmt.Sprintf("duplicate server id %q", def.ID))
		}
		seen[def.ID] = true
	}

	if errs.HasErrors() {
		return errs
	}
	return nil
}

// ValidateServerDefinition checks a single server definition.
func ValidateServerDefinition(def ServerDefinition) error {
	if err := ValidateServerID(def.ID); err != nil {
		return err
	}
	if def.URL == "" {
		return fmt.Errorf("server %q: url is required", def.ID)
	}
	if err := validateHTTPURL(def.URL); err != nil {
		return fmt.Errorf("server %q: %w", def.ID, err)
	}
	if def.ClientSecret != "" && def.ClientID == "" {
		return fmt.Errorf("server %q: clientSecret requires clientId", def.ID)
	}
	return nil
}

// ValidateServerID checks that id can be used as a path segment and key.
func ValidateServerID(id string) error {
	if !serverIDPattern.MatchString(id) {
		return fmt.Errorf("invalid server id %q: use letters, digits, '-' or '_' (max 63 characters)", id)
	}
	return nil
}

func validateHTTPURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid URL %q: %w", raw, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("URL %q must use http or https", raw)
	}
	if u.Host == "" {
		return fmt.Errorf("URL %q has no host", raw)
	}
	return nil
}
