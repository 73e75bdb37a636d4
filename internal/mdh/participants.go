package mdh

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
)

// DefaultPageSize is the participant listing page size used when none is given.
const DefaultPageSize = 100

// Participant is a participant record as returned by the API.
type Participant map[string]any

// Identifier returns the participantIdentifier field, or "" when absent.
func (p Participant) Identifier() string {
	s, _ := p["participantIdentifier"].(string)
	return s
}

type participantsPage struct {
	Participants []struct {
		ParticipantIdentifier string `json:"participantIdentifier"`
	} `json:"participants"`
}

// ListAllParticipants returns every participant identifier in the project, oldest first.
// Pages are requested from 0 until a page returns fewer than pageSize items.
func (c *Client) ListAllParticipants(ctx context.Context, token, projectID string, pageSize int) ([]string, error) {
	return c.listParticipantIDs(ctx, token, projectID, pageSize, func(q url.Values) {
		q.Set("sortBy", "InsertedDate")
		q.Set("sortAscending", "true")
	})
}

// ListSegmentParticipants returns the identifiers of participants in segmentID, filtered server-side.
func (c *Client) ListSegmentParticipants(ctx context.Context, token, projectID, segmentID string, pageSize int) ([]string, error) {
	return c.listParticipantIDs(ctx, token, projectID, pageSize, func(q url.Values) {
		q.Set("segmentID", segmentID)
	})
}

func (c *Client) listParticipantIDs(ctx context.Context, token, projectID string, pageSize int, filter func(url.Values)) ([]string, error) {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	path := ProjectPath(1, projectID, "participants")

	var ids []string
	for page := 0; ; page++ {
		q := url.Values{}
		q.Set("pageNumber", strconv.Itoa(page))
		q.Set("pageSize", strconv.Itoa(pageSize))
		filter(q)

		resp, err := c.Get(ctx, token, path, q, true)
		if err != nil {
			return nil, fmt.Errorf("%w: page %d: %w", ErrListing, page, err)
		}
		var body participantsPage
		if err := resp.Decode(&body); err != nil {
			return nil, fmt.Errorf("%w: page %d: %w", ErrListing, page, err)
		}

		n := len(body.Participants)
		if n == 0 {
			break
		}
		for _, p := range body.Participants {
			ids = append(ids, p.ParticipantIdentifier)
		}
		if n < pageSize {
			break
		}
	}
	return ids, nil
}

// ListParticipants returns the full participant records of a single unpaginated listing.
func (c *Client) ListParticipants(ctx context.Context, token, projectID string) ([]Participant, error) {
	path := ProjectPath(1, projectID, "participants")
	resp, err := c.Get(ctx, token, path, nil, false)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &StatusError{Path: path, StatusCode: resp.StatusCode, Body: string(resp.Body)}
	}
	var body struct {
		Participants []Participant `json:"participants"`
	}
	if err := resp.Decode(&body); err != nil {
		return nil, err
	}
	if body.Participants == nil {
		return []Participant{}, nil
	}
	return body.Participants, nil
}
