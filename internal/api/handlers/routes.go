package handlers

import (
	"net/http"

	"github.com/dvloznov/lorry-checker/internal/api/middleware"
)

// NewRouter registers the audit endpoints.
func NewRouter(audit *AuditHandler) *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("/api/audit", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			audit.Audit(w, r)
		} else {
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	})

	mux.HandleFunc("/api/audit/export", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			audit.Export(w, r)
		} else {
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	})

	mux.HandleFunc("/api/audit/gcs", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			audit.AuditGCS(w, r)
		} else {
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	})

	mux.HandleFunc("/health", Health)

	return mux
}
