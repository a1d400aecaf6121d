package client

import (
	"fmt"
	"net/http"

	"cleantree/internal/domain"
	"cleantree/internal/httputil"
)

// decodeProblem turns an error response back into the domain error the
// server started from, so callers can keep using errors.Is.
func decodeProblem(resp *http.Response) error {
	p := httputil.DecodeProblem(resp.StatusCode, resp.Body)

	switch resp.StatusCode {
	case http.StatusBadRequest:
		return &domain.ValidationError{Message: p.Detail}
	case http.StatusNotFound:
		return &domain.NotFoundError{Message: p.Detail}
	case http.StatusConflict:
		return &domain.ConflictError{Message: p.Detail, ResourceType: p.ResourceType, ResourceID: p.ResourceID}
	case http.StatusUnauthorized:
		return &domain.UnauthorizedError{Message: p.Detail}
	case http.StatusForbidden:
		return fmt.Errorf("%w: %s", domain.ErrForbidden, p.Detail)
	case http.StatusServiceUnavailable, http.StatusBadGateway, http.StatusGatewayTimeout:
		return fmt.Errorf("%w: %s", domain.ErrUnavailable, p.Detail)
	default:
		return fmt.Errorf("server returned %d: %s", resp.StatusCode, p.Detail)
	}
}
