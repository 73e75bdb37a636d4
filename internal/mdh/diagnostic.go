package mdh

import "fmt"

// DiagnosticKind classifies a pair that produced no records.
type DiagnosticKind string

const (
	// DiagUnsupported: the measurement has no device type in the namespace; no request was made.
	DiagUnsupported DiagnosticKind = "unsupported"
	// DiagSkipped: the API answered non-2xx.
	DiagSkipped DiagnosticKind = "skipped"
	// DiagFailed: the request could not be made or the response could not be decoded.
	DiagFailed DiagnosticKind = "failed"
	// DiagEmpty: the API returned no points.
	DiagEmpty DiagnosticKind = "empty"
)

// Diagnostic records why a (participant, measurement) pair, or a participant's surveys, has no entry in a result.
type Diagnostic struct {
	Kind          DiagnosticKind
	Namespace     string
	ParticipantID string
	Measurement   string
	StatusCode    int
	Message       string
}

func (d Diagnostic) String() string {
	s := fmt.Sprintf("%s participant=%s", d.Kind, d.ParticipantID)
	if d.Namespace != "" {
		s += " namespace=" + d.Namespace
	}
	if d.Measurement != "" {
		s += " measurement=" + d.Measurement
	}
	if d.StatusCode != 0 {
		s += fmt.Sprintf(" status=%d", d.StatusCode)
	}
	if d.Message != "" {
		s += ": " + d.Message
	}
	return s
}
