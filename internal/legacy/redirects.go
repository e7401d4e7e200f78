package legacy

import (
	"net/http"

	"github.com/gorilla/mux"
)

// SPAEntry is where the single-page client lives now.
const SPAEntry = "/app/messages"

// RegisterRedirects maps the old human-facing page routes onto the current
// SPA entry point, carrying the conversation id along when one was in the
// path.
func RegisterRedirects(r *mux.Router) {
	pages := []string{"/inbox", "/messages", "/account/messages"}
	for _, page := range pages {
		r.HandleFunc(page, redirectToSPA)
		r.HandleFunc(page+"/{id}", redirectToSPA)
	}
}

func redirectToSPA(w http.ResponseWriter, r *http.Request) {
	target := SPAEntry
	if id := mux.Vars(r)["id"]; id != "" {
		target += "?conversation=" + id
	}
	http.Redirect(w, r, target, http.StatusMovedPermanently)
}
