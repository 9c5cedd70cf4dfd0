package api

import (
	"crypto/subtle"
	"net/http"
	"strings"
	"time"
)

// NewServer creates an HTTP server with all routes configured.
// metricsHandler may be nil to leave /metrics unregistered.
func NewServer(port string, handler *Handler, adminAPIKey string, metricsHandler http.Handler) *http.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/currencies", handler.ListCurrencies)
	mux.HandleFunc("GET /api/v1/rates", handler.ListRates)
	mux.HandleFunc("GET /api/v1/rates/resolve", handler.ResolveRate)
	mux.HandleFunc("POST /api/v1/convert", handler.ConvertAmount)

	backfillHandler := http.HandlerFunc(handler.RunBackfill)
	if adminAPIKey != "" {
		mux.Handle("POST /api/v1/backfill", requireAuth(adminAPIKey, backfillHandler))
	} else {
		mux.Handle("POST /api/v1/backfill", backfillHandler)
	}

	if metricsHandler != nil {
		mux.Handle("GET /metrics", metricsHandler)
	}

	return &http.Server{
		Addr:         ":" + port,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 10 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}
}

func requireAuth(apiKey string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth := r.Header.Get("Authorization")
		token := strings.TrimPrefix(auth, "Bearer ")
		if !strings.HasPrefix(auth, "Bearer ") || subtle.ConstantTimeCompare([]byte(token), []byte(apiKey)) != 1 {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next.ServeHTTP(w, r)
	})
}
