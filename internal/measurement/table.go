package measurement

import (
	"maps"
	"slices"
)

// Keys injected into every fetched point.
const (
	ParticipantKey = "participantID"
	MeasurementKey = "measurement"
)

// DataPoint is one device data point as returned by the API, plus ParticipantKey and MeasurementKey.
type DataPoint map[string]any

// Table is the points of one (participant, measurement) pair.
type Table struct {
	ParticipantID string
	Measurement   string
	Points        []DataPoint
}

func newTable(participantID, measurement string, raw []map[string]any) *Table {
	points := make([]DataPoint, len(raw))
	for i, p := range raw {
		if p == nil {
			p = make(map[string]any, 2)
		}
		p[ParticipantKey] = participantID
		p[MeasurementKey] = measurement
		points[i] = DataPoint(p)
	}
	return &Table{ParticipantID: participantID, Measurement: measurement, Points: points}
}

// Len is the number of rows.
func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.Points)
}

// Columns is the union of point keys in first-seen order; keys new to a point are taken alphabetically.
func (t *Table) Columns() []string {
	if t == nil {
		return nil
	}
	seen := make(map[string]bool)
	var cols []string
	for _, p := range t.Points {
		for _, k := range slices.Sorted(maps.Keys(p)) {
			if !seen[k] {
				seen[k] = true
				cols = append(cols, k)
			}
		}
	}
	return cols
}

// ResultSet maps participant to measurement to table. Pairs without points are absent.
type ResultSet map[string]map[string]*Table

// Get returns the table for a pair, or nil.
func (r ResultSet) Get(participantID, measurement string) *Table {
	return r[participantID][measurement]
}

// Count is the total number of points across all tables.
func (r ResultSet) Count() int {
	n := 0
	for _, byMeas := range r {
		for _, t := range byMeas {
			n += t.Len()
		}
	}
	return n
}
