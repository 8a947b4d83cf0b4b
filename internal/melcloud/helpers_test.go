package melcloud

import (
	"encoding/json"
	"net/http"
)

// writeTestJSON writes a JSON response in fake-server handlers.
func writeTestJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v) //nolint:errcheck // Test helper
}

// decodeJSON decodes a request body in fake-server handlers.
func decodeJSON(r *http.Request, v any) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(v)
}
