package api

import (
	"errors"
	"fmt"
	"net/http"
)

// RejectedError is a non-2xx answer from the backend.
type RejectedError struct {
	Op      string
	Status  int
	Message string // the body's "error" field, may be empty
}

func (e *RejectedError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%s: %s", e.Op, http.StatusText(e.Status))
	}
	return fmt.Sprintf("%s: %d %s", e.Op, e.Status, e.Message)
}

// TransportError means the request never produced a usable answer.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// IsUnauthorized reports whether err is a 401 from the backend.
func IsUnauthorized(err error) bool {
	var rej *RejectedError
	return errors.As(err, &rej) && rej.Status == http.StatusUnauthorized
}
