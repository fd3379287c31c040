package server

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/ternarybob/vettra/internal/models"
)

func (s *Server) setupRoutes() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/health/alive", s.handleAlive)
	mux.HandleFunc("/health/ready", s.handleReady)

	mux.HandleFunc("/ingress/application", s.handleIngressApplication)

	mux.HandleFunc("/cron/daily-digest", s.requireCronAuth(s.handleDailyDigest))
	mux.HandleFunc("/cron/publish", s.requireCronAuth(s.handlePublishNow))
	mux.HandleFunc("/cron/vetting", s.requireCronAuth(s.handleVettingNow))

	mux.HandleFunc("/admin/references/refresh", s.requireCronAuth(s.handleReferenceRefresh))

	return mux
}

// handleHealth returns the full health snapshot, 503 when degraded
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := s.app.HealthService.Check(r.Context())

	code := http.StatusOK
	if !status.Healthy || !status.Ready {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, status)
}

func (s *Server) handleAlive(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]bool{"alive": true})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	status := s.app.HealthService.Check(r.Context())
	code := http.StatusOK
	if !status.Ready {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, map[string]bool{"ready": status.Ready})
}

// ingressPayload is the inbound application notification body
type ingressPayload struct {
	MessageID   string `json:"message_id"`
	CandidateID string `json:"candidate_id"`
	JobID       string `json:"job_id"`
	FirstName   string `json:"first_name"`
	LastName    string `json:"last_name"`
	Email       string `json:"email"`
	AppliedAt   string `json:"applied_at"`
}

// handleIngressApplication accepts a pushed application event. Repeated
// delivery of the same message_id is a 200, not a duplicate.
func (s *Server) handleIngressApplication(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var payload ingressPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		http.Error(w, "invalid JSON body", http.StatusBadRequest)
		return
	}
	if payload.MessageID == "" || payload.CandidateID == "" || payload.JobID == "" {
		http.Error(w, "message_id, candidate_id, and job_id are required", http.StatusBadRequest)
		return
	}

	appliedAt := time.Now()
	if payload.AppliedAt != "" {
		if t, err := time.Parse(time.RFC3339, payload.AppliedAt); err == nil {
			appliedAt = t
		}
	}

	app := &models.Application{
		MessageID:   payload.MessageID,
		CandidateID: payload.CandidateID,
		JobID:       payload.JobID,
		Candidate: models.Candidate{
			CandidateID: payload.CandidateID,
			FirstName:   payload.FirstName,
			LastName:    payload.LastName,
			Email:       payload.Email,
		},
		Source:     models.SourceInboundMail,
		AppliedAt:  appliedAt,
		ReceivedAt: time.Now(),
	}

	if err := s.app.StorageManager.Applications().StoreApplication(r.Context(), app); err != nil {
		s.app.Logger.Error().Err(err).Str("message_id", payload.MessageID).Msg("Failed to store ingress application")
		http.Error(w, "storage failure", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "accepted", "message_id": payload.MessageID})
}

func (s *Server) handleDailyDigest(w http.ResponseWriter, r *http.Request) {
	if err := s.app.DigestService.SendDaily(r.Context()); err != nil {
		s.app.Logger.Error().Err(err).Msg("Digest trigger failed")
		http.Error(w, "digest failed", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "sent"})
}

func (s *Server) handlePublishNow(w http.ResponseWriter, r *http.Request) {
	if err := s.app.Scheduler.TriggerNow("publish"); err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "triggered"})
}

func (s *Server) handleVettingNow(w http.ResponseWriter, r *http.Request) {
	if err := s.app.Scheduler.TriggerNow("vetting"); err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "triggered"})
}

// handleReferenceRefresh rotates a job's public reference token
func (s *Server) handleReferenceRefresh(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	jobID := r.URL.Query().Get("job_id")
	if jobID == "" {
		http.Error(w, "job_id is required", http.StatusBadRequest)
		return
	}

	if err := s.app.FeedService.RefreshReference(r.Context(), jobID); err != nil {
		s.app.Logger.Error().Err(err).Str("job_id", jobID).Msg("Reference refresh failed")
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "refreshed", "job_id": jobID})
}

// requireCronAuth enforces the bearer secret on externally-triggered routes
func (s *Server) requireCronAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		secret := s.app.Config.Cron.BearerSecret
		if secret == "" {
			http.Error(w, "cron endpoints disabled", http.StatusForbidden)
			return
		}

		auth := r.Header.Get("Authorization")
		token := strings.TrimPrefix(auth, "Bearer ")
		if token == auth || subtle.ConstantTimeCompare([]byte(token), []byte(secret)) != 1 {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next(w, r)
	}
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}
