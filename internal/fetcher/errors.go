package fetcher

import (
	"errors"
	"fmt"
)

// Kind classifies a failed fetch
type Kind string

const (
	KindTimeout Kind = "timeout"
	KindHTTP    Kind = "http_error"
	KindNetwork Kind = "network_error"
)

// FetchError is the typed failure returned by Fetch
type FetchError struct {
	Kind   Kind
	URL    string
	Status int // set for KindHTTP
	Err    error
}

func (e *FetchError) Error() string {
	switch e.Kind {
	case KindHTTP:
		return fmt.Sprintf("fetch %s: http status %d", e.URL, e.Status)
	case KindTimeout:
		return fmt.Sprintf("fetch %s: timeout", e.URL)
	default:
		return fmt.Sprintf("fetch %s: network error: %v", e.URL, e.Err)
	}
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// KindOf returns the failure kind of err, or "" when err is not a FetchError
func KindOf(err error) Kind {
	var fe *FetchError
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return ""
}

// StatusOf returns the HTTP status of a KindHTTP failure, 0 otherwise
func StatusOf(err error) int {
	var fe *FetchError
	if errors.As(err, &fe) && fe.Kind == KindHTTP {
		return fe.Status
	}
	return 0
}
