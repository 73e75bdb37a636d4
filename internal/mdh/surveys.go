package mdh

import (
	"context"
	"errors"
	"net/http"
)

// SurveyEvent is one survey event record, passed through as returned by the API.
type SurveyEvent map[string]any

// SurveyEvents returns the survey events of one participant. A non-200 response is a *StatusError.
func (c *Client) SurveyEvents(ctx context.Context, token, projectID, participantID string) ([]SurveyEvent, error) {
	path := ProjectPath(1, projectID, "participants", participantID, "surveyevents")
	resp, err := c.Get(ctx, token, path, nil, false)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &StatusError{Path: path, StatusCode: resp.StatusCode, Body: string(resp.Body)}
	}
	var body struct {
		SurveyEvents []SurveyEvent `json:"surveyEvents"`
	}
	if err := resp.Decode(&body); err != nil {
		return nil, err
	}
	if body.SurveyEvents == nil {
		return []SurveyEvent{}, nil
	}
	return body.SurveyEvents, nil
}

// CollectSurveyEvents fetches survey events for each participant in turn. A participant whose
// request fails is absent from the map and reported as a Diagnostic; only ctx cancellation aborts.
func (c *Client) CollectSurveyEvents(ctx context.Context, token, projectID string, participantIDs []string) (map[string][]SurveyEvent, []Diagnostic, error) {
	events := make(map[string][]SurveyEvent, len(participantIDs))
	var diags []Diagnostic
	for _, pid := range participantIDs {
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}
		evs, err := c.SurveyEvents(ctx, token, projectID, pid)
		if err != nil {
			if ctx.Err() != nil {
				return nil, nil, ctx.Err()
			}
			d := Diagnostic{Kind: DiagFailed, ParticipantID: pid, Message: err.Error()}
			var se *StatusError
			if errors.As(err, &se) {
				d.Kind = DiagSkipped
				d.StatusCode = se.StatusCode
				d.Message = se.Body
			}
			diags = append(diags, d)
			continue
		}
		events[pid] = evs
	}
	return events, diags, nil
}
