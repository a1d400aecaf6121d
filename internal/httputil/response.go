package httputil

import (
	"encoding/json"
	"io"
	"net/http"
)

// maxProblemSize caps how much of an error body DecodeProblem reads.
const maxProblemSize = 64 << 10

// RespondJSON writes a JSON response with the given status code. The
// payload is marshaled first so an encoding failure never leaves a partial
// response behind.
func RespondJSON(w http.ResponseWriter, status int, data any) {
	payload, err := json.Marshal(data)
	if err != nil {
		RespondError(w, http.StatusInternalServerError, "failed to encode response")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(payload)
}

// ProblemDetail is the RFC 7807 body of every error response. Conflicts name
// the resource that already exists.
type ProblemDetail struct {
	Type         string `json:"type"`
	Title        string `json:"title"`
	Status       int    `json:"status"`
	Detail       string `json:"detail,omitempty"`
	ResourceType string `json:"resource_type,omitempty"`
	ResourceID   string `json:"resource_id,omitempty"`
}

// RespondError writes an RFC 7807 Problem Details error response
func RespondError(w http.ResponseWriter, status int, detail string) {
	RespondProblem(w, NewProblem(status, detail))
}

// RespondConflict writes a 409 naming the conflicting resource.
func RespondConflict(w http.ResponseWriter, detail, resourceType, resourceID string) {
	p := NewProblem(http.StatusConflict, detail)
	p.ResourceType = resourceType
	p.ResourceID = resourceID
	RespondProblem(w, p)
}

// NewProblem fills in the type and title for status.
func NewProblem(status int, detail string) ProblemDetail {
	return ProblemDetail{
		Type:   errorTypeFromStatus(status),
		Title:  http.StatusText(status),
		Status: status,
		Detail: detail,
	}
}

// RespondProblem writes p with its own status.
func RespondProblem(w http.ResponseWriter, p ProblemDetail) {
	payload, err := json.Marshal(p)
	if err != nil {
		w.Header().Set("Content-Type", "text/plain")
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte("internal server error"))
		return
	}

	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(p.Status)
	w.Write(payload)
}

// DecodeProblem reads an error response body. Bodies that are not problem
// documents (proxies, plain-text errors) still yield a usable detail.
func DecodeProblem(status int, body io.Reader) ProblemDetail {
	p := NewProblem(status, "")
	data, _ := io.ReadAll(io.LimitReader(body, maxProblemSize))
	if err := json.Unmarshal(data, &p); err != nil || p.Detail == "" {
		p.Detail = http.StatusText(status)
	}
	p.Status = status
	return p
}

// errorTypeFromStatus returns the RFC 7807 type URI for a status code
func errorTypeFromStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "https://datatracker.ietf.org/doc/html/rfc7231#section-6.5.1"
	case http.StatusUnauthorized:
		return "https://datatracker.ietf.org/doc/html/rfc7235#section-3.1"
	case http.StatusForbidden:
		return "https://datatracker.ietf.org/doc/html/rfc7231#section-6.5.3"
	case http.StatusNotFound:
		return "https://datatracker.ietf.org/doc/html/rfc7231#section-6.5.4"
	case http.StatusConflict:
		return "https://datatracker.ietf.org/doc/html/rfc7231#section-6.5.8"
	case http.StatusServiceUnavailable:
		return "https://datatracker.ietf.org/doc/html/rfc7231#section-6.6.4"
	case http.StatusInternalServerError:
		return "https://datatracker.ietf.org/doc/html/rfc7231#section-6.6.1"
	default:
		return "about:blank"
	}
}
