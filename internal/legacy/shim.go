package legacy

import (
	"encoding/json"
	"net/http"

	"marketchat/internal/metrics"
)

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// rejectWrite enforces the generation's deprecation stage for a write
// operation. When it returns true the 410 has already been written and the
// store was never called.
func rejectWrite(w http.ResponseWriter, state DeprecationState, replacement string) bool {
	if state.WritesAllowed() {
		return false
	}
	metrics.LegacyRequests.WithLabelValues(state.Generation, "gone").Inc()
	writeJSON(w, http.StatusGone, state.Gone(replacement))
	return true
}
