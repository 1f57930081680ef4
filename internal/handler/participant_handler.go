package handler

import (
	"net/http"
	"strconv"

	"relaychat/internal/app/journal"
	"relaychat/internal/pkg/errs"
	"relaychat/internal/pkg/logx"
	"relaychat/internal/pkg/resp"
)

// HealthResponse is the payload of GET /health.
type HealthResponse struct {
	Status       string `json:"status"`
	Service      string `json:"service"`
	Participants int    `json:"participants"`
	Connections  int    `json:"connections"`
}

// HandleHealth reports liveness together with the room and connection counts.
func HandleHealth(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp.RespondSuccess(w, r, HealthResponse{
			Status:       "ok",
			Service:      serviceName,
			Participants: deps.Supervisor.Router().Registry().Len(),
			Connections:  deps.Supervisor.ActiveConnections(),
		})
	}
}

// HandleParticipants returns the current roster in join order.
func HandleParticipants(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp.RespondSuccess(w, r, deps.Supervisor.Router().Registry().Snapshot())
	}
}

// HandleJournal returns the newest participant events. The optional "limit" query
// parameter must be a positive integer.
func HandleJournal(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if deps.Journal == nil {
			resp.RespondError(w, r, errs.NewError(errs.ErrJournalDisabled))
			return
		}

		limit := journal.DefaultLimit
		if raw := r.URL.Query().Get("limit"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n <= 0 {
				logx.Warn("Journal request rejected: invalid limit.", "limit", raw)
				resp.RespondError(w, r, errs.NewError(errs.ErrInvalidParams))
				return
			}
			limit = n
		}

		events, err := deps.Journal.Recent(r.Context(), limit)
		if err != nil {
			logx.Error(err, "Failed to read participant journal")
			resp.RespondError(w, r, err)
			return
		}

		resp.RespondSuccess(w, r, events)
	}
}
