package square

import (
	"fmt"
	"strings"
)

// TransportError is any failed remote call: network error, non-2xx status
// or an undecodable body. It is never retried inside a cycle.
type TransportError struct {
	Op         string
	StatusCode int
	Detail     string
	Err        error
}

func (e *TransportError) Error() string {
	var b strings.Builder
	b.WriteString("square ")
	b.WriteString(e.Op)
	if e.StatusCode != 0 {
		fmt.Fprintf(&b, ": status %d", e.StatusCode)
	}
	if e.Detail != "" {
		b.WriteString(": ")
		b.WriteString(e.Detail)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *TransportError) Unwrap() error { return e.Err }

// apiError is one entry of a Square error envelope.
type apiError struct {
	Category string `json:"category"`
	Code     string `json:"code"`
	Detail   string `json:"detail"`
}

type errorEnvelope struct {
	Errors []apiError `json:"errors"`
}

func (e errorEnvelope) String() string {
	parts := make([]string, 0, len(e.Errors))
	for _, ae := range e.Errors {
		s := ae.Code
		if ae.Detail != "" {
			s += " (" + ae.Detail + ")"
		}
		parts = append(parts, s)
	}
	return strings.Join(parts, "; ")
}
