package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/mtlprog/fxrates/internal/backfill"
	"github.com/mtlprog/fxrates/internal/domain"
)

type backfillRequest struct {
	Source   string   `json:"source"`
	Targets  []string `json:"targets"`
	DateFrom string   `json:"date_from"`
	DateTo   string   `json:"date_to"`
	Provider string   `json:"provider"`
}

// RunBackfill handles POST /api/v1/backfill. The request blocks until the backfill finishes.
func (h *Handler) RunBackfill(w http.ResponseWriter, r *http.Request) {
	var body backfillRequest
	if err := decodeJSON(w, r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	from, errFrom := domain.ParseDate(body.DateFrom)
	to, errTo := domain.ParseDate(body.DateTo)
	if errFrom != nil || errTo != nil {
		writeError(w, http.StatusBadRequest, "invalid date format, expected YYYY-MM-DD")
		return
	}

	stats, err := h.backfiller.Run(r.Context(), backfill.Request{
		Source:   body.Source,
		Targets:  body.Targets,
		DateFrom: from,
		DateTo:   to,
		Provider: body.Provider,
	})
	if err != nil {
		switch {
		case errors.Is(err, backfill.ErrInvalidRange),
			errors.Is(err, backfill.ErrInvalidRequest),
			errors.Is(err, backfill.ErrUnknownProvider):
			writeError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, backfill.ErrCurrencyNotFound):
			writeError(w, http.StatusNotFound, err.Error())
		default:
			slog.Error("backfill failed", "error", err)
			writeError(w, http.StatusInternalServerError, "backfill failed")
		}
		return
	}
	writeJSON(w, http.StatusOK, stats)
}
