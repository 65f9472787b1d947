package server

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog/log"
)

func renderOK(w http.ResponseWriter, v interface{}) {
	renderJSON(w, v, http.StatusOK)
}

func renderJSON(w http.ResponseWriter, v interface{}, status int) {
	// encode first so a marshal failure can still become a 500
	data, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Msg("failed to encode response")
		http.Error(w, `{"detail":"failed to encode response"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(append(data, '\n'))
}

func renderError(w http.ResponseWriter, err error) {
	e := translateError(err)
	renderJSON(w, e.body(), e.status)
}
