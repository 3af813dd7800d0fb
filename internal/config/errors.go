package config

import (
	"fmt"
	"strings"
)

// ConfigurationError represents a structured error that occurs during
// configuration loading or validation.
type ConfigurationError struct {
	FilePath    string   `json:"filePath,omitempty"`
	Field       string   `json:"field,omitempty"`
	ErrorType   string   `json:"errorType"` // parse, validation, io
	Message     string   `json:"message"`
	Details     string   `json:"details,omitempty"`
	Suggestions []string `json:"suggestions,omitempty"`
}

// Error implements the error interface
func (ce *ConfigurationError) Error() string {
	var b strings.Builder
	b.WriteString("configuration ")
	b.WriteString(ce.ErrorType)
	b.WriteString(" error")
	if ce.Field != "" {
		fmt.Fprintf(&b, " in %s", ce.Field)
	}
	if ce.FilePath != "" {
		fmt.Fprintf(&b, " (%s)", ce.FilePath)
	}
	b.WriteString(": ")
	b.WriteString(ce.Message)
	if ce.Details != "" {
		b.WriteString(": ")
		b.WriteString(ce.Details)
	}
	return b.String()
}

// DetailedError returns a detailed error message with all context
func (ce *ConfigurationError) DetailedError() string {
	var parts []string

	parts = append(parts, fmt.Sprintf("Configuration Error: %s", ce.Message))
	if ce.FilePath != "" {
		parts = append(parts, fmt.Sprintf("  File: %s", ce.FilePath))
	}
	if ce.Field != "" {
		parts = append(parts, fmt.Sprintf("  Field: %s", ce.Field))
	}
	parts = append(parts, fmt.Sprintf("  Type: %s", ce.ErrorType))

	if ce.Details != "" {
		parts = append(parts, fmt.Sprintf("  Details: %s", ce.Details))
	}

	if len(ce.Suggestions) > 0 {
		parts = append(parts, "  Suggestions:")
		for _, suggestion := range ce.Suggestions {
			parts = append(parts, fmt.Sprintf("    - %s", suggestion))
		}
	}

	return strings.Join(parts, "\n")
}
