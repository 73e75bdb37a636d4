// Package export streams fetched device data points to sinks and drives a full export run.
package export

import (
	"encoding/json"
	"maps"

	"mdh-device-export/internal/measurement"
)

// NamespaceKey is added to every exported record next to the point's own fields.
const NamespaceKey = "namespace"

// Record is one tagged device data point and the namespace it came from.
type Record struct {
	Namespace string
	Point     measurement.DataPoint
}

// ParticipantID is the participant the point was tagged with.
func (r Record) ParticipantID() string {
	s, _ := r.Point[measurement.ParticipantKey].(string)
	return s
}

// Measurement is the abstract measurement name the point was tagged with.
func (r Record) Measurement() string {
	s, _ := r.Point[measurement.MeasurementKey].(string)
	return s
}

// MarshalJSON renders the point as a flat object with NamespaceKey set.
// A point field named "namespace" is overwritten; the API uses the same value.
func (r Record) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(r.Point)+1)
	maps.Copy(out, r.Point)
	out[NamespaceKey] = r.Namespace
	return json.Marshal(out)
}

// recordsOf flattens a result set into records, ordered by participantIDs and then measurements.
func recordsOf(namespace string, rs measurement.ResultSet, participantIDs, measurements []string) []Record {
	var out []Record
	for _, pid := range participantIDs {
		for _, meas := range measurements {
			t := rs.Get(pid, meas)
			for _, p := range pointsOf(t) {
				out = append(out, Record{Namespace: namespace, Point: p})
			}
		}
	}
	return out
}

func pointsOf(t *measurement.Table) []measurement.DataPoint {
	if t == nil {
		return nil
	}
	return t.Points
}
