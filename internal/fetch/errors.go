package fetch

import (
	"errors"
	"fmt"
	"net/http"
)

// Error taxonomy shared by the fetch pipeline. Match with errors.Is.
var (
	ErrTransientNetwork   = errors.New("transient network failure")
	ErrProxyFailure       = errors.New("proxy failure")
	ErrTerminalHTTP       = errors.New("terminal http status")
	ErrStructuralMismatch = errors.New("expected marker not found in markup")
	ErrRenderFailure      = errors.New("render fallback failed")
	ErrAdapterParse       = errors.New("malformed listing card")
)

// Kind classifies a single failed fetch attempt.
type Kind int

const (
	KindOther Kind = iota
	KindTimeout
	KindHTTPError
	KindProxyError
	KindConnectionError
)

func (k Kind) String() string {
	switch k {
	case KindTimeout:
		return "timeout"
	case KindHTTPError:
		return "http_error"
	case KindProxyError:
		return "proxy_error"
	case KindConnectionError:
		return "connection_error"
	default:
		return "other"
	}
}

// Failure is returned by Fetcher.Fetch when no attempt produced a 200 response.
// It describes the last attempt.
type Failure struct {
	Kind     Kind
	Status   int // set for KindHTTPError
	URL      string
	Attempts int
	Err      error
}

func (f *Failure) Error() string {
	if f.Kind == KindHTTPError {
		return fmt.Sprintf("fetch %s: http status %d after %d attempt(s)", f.URL, f.Status, f.Attempts)
	}
	if f.Err != nil {
		return fmt.Sprintf("fetch %s: %s after %d attempt(s): %v", f.URL, f.Kind, f.Attempts, f.Err)
	}
	return fmt.Sprintf("fetch %s: %s after %d attempt(s)", f.URL, f.Kind, f.Attempts)
}

func (f *Failure) Unwrap() error { return f.Err }

// Is maps the failure onto the taxonomy sentinels.
func (f *Failure) Is(target error) bool {
	switch target {
	case ErrTerminalHTTP:
		return f.Kind == KindHTTPError && isTerminalStatus(f.Status)
	case ErrProxyFailure:
		return f.Kind == KindProxyError
	case ErrTransientNetwork:
		return f.Kind == KindTimeout || f.Kind == KindConnectionError ||
			(f.Kind == KindHTTPError && !isTerminalStatus(f.Status))
	}
	return false
}

func isTerminalStatus(status int) bool {
	return status == http.StatusForbidden || status == http.StatusNotFound
}
