// Package formatting renders command output as tables, JSON or YAML.
//
// Tables use go-pretty with the rounded style. JSON and YAML share field
// names: YAML output is produced from the JSON encoding, so the json tags
// of a type are its only contract.
package formatting

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"gopkg.in/yaml.v3"

	pkgoauth "mcpconnect/pkg/oauth"
)

// OutputFormat represents the desired output format
type OutputFormat string

const (
	FormatTable OutputFormat = "table" // Rich table output
	FormatJSON  OutputFormat = "json"  // JSON output
	FormatYAML  OutputFormat = "yaml"  // YAML output
)

// ParseFormat validates an --output flag value. Empty means table.
func ParseFormat(s string) (OutputFormat, error) {
	switch f := OutputFormat(strings.ToLower(strings.TrimSpace(s))); f {
	case "":
		return FormatTable, nil
	case FormatTable, FormatJSON, FormatYAML:
		return f, nil
	default:
		return "", fmt.Errorf("unsupported output format %q (use table, json or yaml)", s)
	}
}

// Write encodes v as JSON or YAML, or calls renderTable for table output.
func Write(w io.Writer, format OutputFormat, v any, renderTable func(w io.Writer)) error {
	switch format {
	case FormatJSON:
		_, err := fmt.Fprintln(w, PrettyJSON(v))
		return err
	case FormatYAML:
		data, err := ToYAML(v)
		if err != nil {
			return err
		}
		_, err = w.Write(data)
		return err
	default:
		renderTable(w)
		return nil
	}
}

// PrettyJSON formats any value as indented JSON for human-readable display.
// It falls back to fmt.Sprintf when v cannot be marshaled.
func PrettyJSON(v any) string {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(b)
}

// ToYAML encodes v as YAML using its JSON field names.
func ToYAML(v any) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to encode output: %w", err)
	}
	var generic any
	if err := json.Unmarshal(data, &generic); err != nil {
		return nil, fmt.Errorf("failed to encode output: %w", err)
	}
	out, err := yaml.Marshal(generic)
	if err != nil {
		return nil, fmt.Errorf("failed to encode output as YAML: %w", err)
	}
	return out, nil
}

// NewTable creates a table with standard styling that renders to w.
func NewTable(w io.Writer, headers ...string) table.Writer {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleRounded)
	if len(headers) > 0 {
		row := make(table.Row, len(headers))
		for i, h := range headers {
			row[i] = text.FgHiCyan.Sprint(h)
		}
		t.AppendHeader(row)
	}
	return t
}

// EmptyMessage formats the line printed instead of an empty table.
func EmptyMessage(message string) string {
	return text.FgYellow.Sprint(message) + "\n"
}

// Status colors an OAuth status for table output. A CONNECTED record whose
// token has lapsed is shown as such.
func Status(status pkgoauth.Status, connected bool) string {
	switch status {
	case pkgoauth.StatusConnected:
		if !connected {
			return text.FgYellow.Sprint("CONNECTED (token expired)")
		}
		return text.FgGreen.Sprint(status)
	case pkgoauth.StatusNotRequired:
		return text.FgHiBlack.Sprint(status)
	case pkgoauth.StatusRequired, pkgoauth.StatusExpired:
		return text.FgYellow.Sprint(status)
	default:
		return string(status)
	}
}

// Truncate collapses whitespace so s fits on one line and shortens it to
// at most n runes, ending in "...".
func Truncate(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	if n <= 3 {
		return string(r[:n])
	}
	return string(r[:n-3]) + "..."
}
