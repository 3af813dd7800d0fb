package oauth

import "fmt"

// Status is the persisted OAuth state of a remote MCP server.
type Status string

const (
	// StatusUnknown is the initial status of a freshly registered server.
	StatusUnknown Status = "UNKNOWN"

	// StatusNotRequired means the last probe found no OAuth requirement.
	StatusNotRequired Status = "NOT_REQUIRED"

	// StatusRequired means the server demands OAuth and no usable session exists.
	StatusRequired Status = "REQUIRED"

	// StatusConnected means valid tokens are stored for the server.
	StatusConnected Status = "CONNECTED"

	// StatusExpired means the stored tokens were found expired on use.
	StatusExpired Status = "EXPIRED"
)

// AllStatuses lists every value a record may carry.
var AllStatuses = []Status{
	StatusUnknown,
	StatusNotRequired,
	StatusRequired,
	StatusConnected,
	StatusExpired,
}

// transitions lists the allowed moves out of each status. Moves into
// NOT_REQUIRED from REQUIRED or EXPIRED are re-detections overwriting the
// previous result.
var transitions = map[Status][]Status{
	StatusUnknown:     {StatusNotRequired, StatusRequired},
	StatusNotRequired: {StatusNotRequired, StatusRequired},
	StatusRequired:    {StatusRequired, StatusConnected, StatusNotRequired},
	StatusConnected:   {StatusConnected, StatusExpired, StatusRequired},
	StatusExpired:     {StatusConnected, StatusRequired, StatusNotRequired},
}

// IsValid reports whether s is one of the five known statuses.
func (s Status) IsValid() bool {
	_, ok := transitions[s]
	return ok
}

func (s Status) String() string {
	return string(s)
}

// CanTransition reports whether a record may move from one status to another.
func CanTransition(from, to Status) bool {
	if !from.IsValid() || !to.IsValid() {
		return false
	}
	if from == to {
		return true
	}
	for _, allowed := range transitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// ParseStatus converts a persisted string into a Status.
// An empty string is read as UNKNOWN.
func ParseStatus(s string) (Status, error) {
	if s == "" {
		return StatusUnknown, nil
	}
	status := Status(s)
	if !status.IsValid() {
		return "", fmt.Errorf("invalid oauth status %q", s)
	}
	return status, nil
}
