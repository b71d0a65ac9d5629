// Package respond writes the JSON envelopes shared by every endpoint.
package respond

import (
	"encoding/json"
	"net/http"

	"paylink/internal/apperr"

	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

type errorBody struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Field   string `json:"field,omitempty"`
}

func JSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Warn().Err(err).Msg("write response")
	}
}

// Error maps err to its status code. Internal causes are logged, never
// written to the client.
func Error(w http.ResponseWriter, r *http.Request, err error) {
	status := apperr.HTTPStatus(err)
	body := errorBody{Error: apperr.PublicMessage(err)}
	if ae, ok := apperr.As(err); ok {
		body.Field = ae.Field
	}

	var ev *zerolog.Event
	switch {
	case status >= http.StatusInternalServerError:
		ev = log.Error()
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		ev = log.Warn()
	default:
		ev = log.Info()
	}
	ev.Err(err).
		Str("request_id", chimw.GetReqID(r.Context())).
		Str("path", r.URL.Path).
		Int("status", status).
		Msg("request failed")

	JSON(w, status, body)
}
