package domain

import (
	"errors"
	"fmt"
)

var ErrSiteNotFound = errors.New("site not found")

// ConfigError rejects a request before any session work starts.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	if e.Field == "" {
		return "config: " + e.Reason
	}
	return fmt.Sprintf("config: %s: %s", e.Field, e.Reason)
}

type NetworkErrorKind string

const (
	KindDNS               NetworkErrorKind = "dns"
	KindTimeout           NetworkErrorKind = "timeout"
	KindConnectionRefused NetworkErrorKind = "connection_refused"
	KindTLS               NetworkErrorKind = "tls"
	KindHTTPStatus        NetworkErrorKind = "http_status"
	KindOther             NetworkErrorKind = "other"
)

// NetworkError is a classified fetch or health-check failure.
type NetworkError struct {
	Kind     NetworkErrorKind
	Code     int // HTTP status for KindHTTPStatus
	URL      string
	Attempts int
	Err      error
}

func (e *NetworkError) Error() string {
	msg := fmt.Sprintf("fetch %s: %s", e.URL, e.Kind)
	if e.Kind == KindHTTPStatus {
		msg = fmt.Sprintf("%s %d", msg, e.Code)
	}
	if e.Attempts > 1 {
		msg = fmt.Sprintf("%s after %d attempts", msg, e.Attempts)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *NetworkError) Unwrap() error { return e.Err }

// Retryable reports whether another attempt might succeed.
func (e *NetworkError) Retryable() bool {
	switch e.Kind {
	case KindTimeout:
		return true
	case KindHTTPStatus:
		switch e.Code {
		case 429, 500, 502, 503, 504:
			return true
		}
	}
	return false
}

// StorageError is a failed write or directory operation inside a session
// directory or the registry file.
type StorageError struct {
	Op   string
	Path string
	Err  error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage: %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }
