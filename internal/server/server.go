package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/coldpaw/snatch/internal/config"
	"github.com/coldpaw/snatch/internal/queue"
	"github.com/coldpaw/snatch/internal/store"
	"github.com/coldpaw/snatch/internal/util"
)

// New builds the read-only admin API: health, queue state, download
// history. It exposes nothing that can mutate the pipeline.
func New(st *store.Store, q *queue.Queue) *http.Server {
	r := chi.NewRouter()

	r.Use(chimw.RealIP)
	r.Use(chimw.Logger)
	r.Use(chimw.Recoverer)
	r.Use(securityHeaders)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "OPTIONS"},
		AllowedHeaders: []string{"*"},
		MaxAge:         86400,
	}))

	r.Get("/health", func(w http.ResponseWriter, req *http.Request) {
		free, _ := util.FreeDiskGB(config.DataDir)
		respondJSON(w, http.StatusOK, map[string]interface{}{
			"status":      "ok",
			"version":     config.Version,
			"queued":      q.QueuedCount(),
			"diskSpaceGB": free,
		})
	})

	r.Get("/api/queue", func(w http.ResponseWriter, req *http.Request) {
		respondJSON(w, http.StatusOK, map[string]interface{}{
			"items": q.Items(),
		})
	})

	r.Get("/api/history", func(w http.ResponseWriter, req *http.Request) {
		recs, err := st.Downloads()
		if err != nil {
			respondJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to read history"})
			return
		}
		respondJSON(w, http.StatusOK, map[string]interface{}{
			"downloads": recs,
		})
	})

	return &http.Server{
		Addr:              ":" + config.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}
}

func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		next.ServeHTTP(w, r)
	})
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func PrintBanner() {
	fmt.Printf(`
  ┌──────────────────────────────────┐
  │         snatch %s           │
  │    media fetch bot + admin api   │
  └──────────────────────────────────┘
`, padVersion(config.Version))
}

func padVersion(v string) string {
	for len(v) < 10 {
		v += " "
	}
	return v
}
