package httputil

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRespondConflict_RoundTrip(t *testing.T) {
	rec := httptest.NewRecorder()
	RespondConflict(rec, "item already exists", "item", "a1")

	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))

	p := DecodeProblem(rec.Code, rec.Body)
	assert.Equal(t, "item already exists", p.Detail)
	assert.Equal(t, "item", p.ResourceType)
	assert.Equal(t, "a1", p.ResourceID)
	assert.Equal(t, "Conflict", p.Title)
}

func TestRespondError_OmitsConflictFields(t *testing.T) {
	rec := httptest.NewRecorder()
	RespondError(rec, http.StatusNotFound, "branch not found")

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.NotContains(t, rec.Body.String(), "resource_id")
	assert.Contains(t, rec.Body.String(), "rfc7231#section-6.5.4")
}

func TestDecodeProblem_PlainTextBody(t *testing.T) {
	p := DecodeProblem(http.StatusBadGateway, strings.NewReader("<html>bad gateway</html>"))
	assert.Equal(t, http.StatusBadGateway, p.Status)
	assert.Equal(t, "Bad Gateway", p.Detail)
}

func TestRespondJSON(t *testing.T) {
	rec := httptest.NewRecorder()
	RespondJSON(rec, http.StatusCreated, map[string]int{"n": 1})

	require.Equal(t, http.StatusCreated, rec.Code)
	assert.JSONEq(t, `{"n":1}`, rec.Body.String())
}

func TestRespondJSON_EncodeFailure(t *testing.T) {
	rec := httptest.NewRecorder()
	RespondJSON(rec, http.StatusOK, map[string]any{"f": func() {}})

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))
}
