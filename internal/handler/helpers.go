package handler

import (
	"errors"
	"net/http"

	"cleantree/internal/domain"
	"cleantree/internal/domain/models/tree"
	"cleantree/internal/httputil"
)

// rootSegment addresses the root branch in URL paths.
const rootSegment = "root"

// branchParam reads a {branch} path value.
func branchParam(r *http.Request) tree.BranchID {
	return ParseBranchSegment(r.PathValue("branch"))
}

// ParseBranchSegment reads a branch as it appears in a URL. "root" and the
// empty string both name the root branch.
func ParseBranchSegment(segment string) tree.BranchID {
	if segment == rootSegment {
		return tree.RootBranch
	}
	return tree.BranchID(segment)
}

// BranchSegment is the inverse of ParseBranchSegment, for clients building URLs.
func BranchSegment(branch tree.BranchID) string {
	if branch.IsRoot() {
		return rootSegment
	}
	return string(branch)
}

// handleError converts domain errors to HTTP responses
func handleError(w http.ResponseWriter, err error) {
	var conflictErr *domain.ConflictError

	switch {
	case errors.As(err, &conflictErr):
		httputil.RespondConflict(w, conflictErr.Error(), conflictErr.ResourceType, conflictErr.ResourceID)
	case errors.Is(err, domain.ErrValidation):
		httputil.RespondError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrNotFound):
		httputil.RespondError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrUnauthorized):
		httputil.RespondError(w, http.StatusUnauthorized, err.Error())
	case errors.Is(err, domain.ErrForbidden):
		httputil.RespondError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, domain.ErrUnavailable):
		httputil.RespondError(w, http.StatusServiceUnavailable, err.Error())
	default:
		httputil.RespondError(w, http.StatusInternalServerError, "internal server error")
	}
}
