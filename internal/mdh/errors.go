package mdh

import (
	"errors"
	"fmt"
)

// ErrListing is returned when a participant listing page fails; no partial results are returned.
var ErrListing = errors.New("mdh: participant listing failed")

// StatusError is a non-2xx API response.
type StatusError struct {
	Path       string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("mdh: GET %s failed status=%d body=%s", e.Path, e.StatusCode, e.Body)
}

// StatusCode returns the HTTP status carried by err, or 0 when err is not a *StatusError.
func StatusCode(err error) int {
	var se *StatusError
	if errors.As(err, &se) {
		return se.StatusCode
	}
	return 0
}
