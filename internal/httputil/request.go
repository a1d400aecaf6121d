package httputil

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// maxBodyBytes bounds request bodies; a whole seeded tree fits easily.
const maxBodyBytes = 10 << 20

// ParseJSON decodes JSON from the request body into dest. Unknown fields are
// rejected so typos in move payloads surface as 400s.
func ParseJSON(w http.ResponseWriter, r *http.Request, dest any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dest); err != nil {
		return fmt.Errorf("invalid JSON: %w", err)
	}
	return nil
}

// QueryBool reads a boolean query parameter; anything but "true" or "1" is false.
func QueryBool(r *http.Request, name string) bool {
	switch r.URL.Query().Get(name) {
	case "true", "1":
		return true
	default:
		return false
	}
}
