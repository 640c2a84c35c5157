package crm

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrTokenAcquisitionFailed = errors.New("token acquisition failed")
	ErrUnauthorized           = errors.New("crm request unauthorized")
)

// HTTPError is a non-2xx CRM response.
type HTTPError struct {
	Operation  string
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("crm %s returned status %d", e.Operation, e.StatusCode)
	}
	return fmt.Sprintf("crm %s returned status %d: %s", e.Operation, e.StatusCode, e.Body)
}

// Is lets errors.Is(err, ErrUnauthorized) match a 401 that survived the
// single token refresh.
func (e *HTTPError) Is(target error) bool {
	return target == ErrUnauthorized && e.StatusCode == http.StatusUnauthorized
}

// StatusCode extracts the HTTP status carried by err, or 0.
func StatusCode(err error) int {
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.StatusCode
	}
	return 0
}
