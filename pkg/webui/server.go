// Package webui exposes the HTTP JSON API: profile and goal storage, daily
// plans and task completion, reflections, plus operational endpoints for
// health, metrics, logs, and governor state.
package webui

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"momentum/pkg/generator"
	"momentum/pkg/governor"
	"momentum/pkg/llmerrors"
	"momentum/pkg/logx"
	"momentum/pkg/plan"
	"momentum/pkg/store"
	"momentum/pkg/version"
)

// Server is the web API server. All user data is scoped to a single
// configured user.
type Server struct {
	store          store.Store
	generator      *generator.Generator
	governor       *governor.Governor
	userID         string
	metricsEnabled bool
	logger         *logx.Logger
}

// NewServer creates the API server. The generator and governor may be nil in
// tests that only exercise storage endpoints.
func NewServer(st store.Store, gen *generator.Generator, gov *governor.Governor, userID string, metricsEnabled bool) *Server {
	return &Server{
		store:          st,
		generator:      gen,
		governor:       gov,
		userID:         userID,
		metricsEnabled: metricsEnabled,
		logger:         logx.NewLogger("webui"),
	}
}

// RegisterRoutes sets up HTTP routes for the API.
func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.HandleFunc("/api/logs", s.handleLogs)
	mux.HandleFunc("/api/governor", s.handleGovernor)

	mux.HandleFunc("/api/profile", s.handleProfile)
	mux.HandleFunc("/api/goal", s.handleGoal)
	mux.HandleFunc("/api/plans/", s.handlePlans)
	mux.HandleFunc("/api/reflections/", s.handleReflections)

	if s.metricsEnabled {
		mux.Handle("/metrics", promhttp.Handler())
	}
}

// handleHealth implements GET /healthz.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	s.writeJSON(w, map[string]string{
		"status":  "ok",
		"version": version.Version,
	})
}

// handleLogs implements GET /api/logs. It serves the in-memory log tail,
// optionally filtered by component and an RFC3339 since timestamp.
func (s *Server) handleLogs(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	query := r.URL.Query()
	component := query.Get("component")

	var since time.Time
	if sinceStr := query.Get("since"); sinceStr != "" {
		parsed, err := time.Parse(time.RFC3339, sinceStr)
		if err != nil {
			http.Error(w, "Invalid since parameter (use RFC3339)", http.StatusBadRequest)
			return
		}
		since = parsed
	}

	entries := logx.RecentEntries(component, since)
	s.writeJSON(w, entries)
	s.logger.Debug("Served %d log entries (component=%s)", len(entries), component)
}

// handleGovernor implements GET /api/governor.
func (s *Server) handleGovernor(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.governor == nil {
		http.Error(w, "Governor not available", http.StatusServiceUnavailable)
		return
	}

	s.writeJSON(w, s.governor.Stats())
}

// handleProfile implements GET and PUT /api/profile.
func (s *Server) handleProfile(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		profile, err := s.store.GetProfile(r.Context(), s.userID)
		if err != nil {
			s.writeStoreError(w, "get profile", err)
			return
		}
		s.writeJSON(w, profile)

	case http.MethodPut:
		var profile plan.UserProfile
		if !s.decodeBody(w, r, &profile) {
			return
		}
		if err := s.store.PutProfile(r.Context(), s.userID, profile); err != nil {
			s.writeStoreError(w, "put profile", err)
			return
		}
		s.writeJSON(w, profile)

	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// handleGoal implements GET and PUT /api/goal.
func (s *Server) handleGoal(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		goal, err := s.store.GetGoal(r.Context(), s.userID)
		if err != nil {
			s.writeStoreError(w, "get goal", err)
			return
		}
		s.writeJSON(w, goal)

	case http.MethodPut:
		var goal plan.Goal
		if !s.decodeBody(w, r, &goal) {
			return
		}
		if err := s.store.PutGoal(r.Context(), s.userID, goal); err != nil {
			s.writeStoreError(w, "put goal", err)
			return
		}
		s.writeJSON(w, goal)

	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// handlePlans routes /api/plans/{date}, /api/plans/{date}/generate, and
// /api/plans/{date}/tasks/{taskID}.
func (s *Server) handlePlans(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/plans/")
	segments := strings.Split(rest, "/")

	date := segments[0]
	if _, err := plan.ParseDateKey(date); err != nil {
		http.Error(w, "Invalid date (use YYYY-MM-DD)", http.StatusBadRequest)
		return
	}

	switch {
	case len(segments) == 1:
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		s.getPlan(w, r, date)

	case len(segments) == 2 && segments[1] == "generate":
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		s.generatePlan(w, r, date)

	case len(segments) == 3 && segments[1] == "tasks":
		if r.Method != http.MethodPatch {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		s.patchTask(w, r, date, segments[2])

	default:
		http.NotFound(w, r)
	}
}

func (s *Server) getPlan(w http.ResponseWriter, r *http.Request, date string) {
	p, err := s.store.GetDailyPlan(r.Context(), s.userID, date)
	if err != nil {
		s.writeStoreError(w, "get plan", err)
		return
	}
	s.writeJSON(w, p)
}

// generatePlan implements POST /api/plans/{date}/generate. It gathers
// yesterday's context from the store, runs the governed generation, and
// persists the result before returning it.
func (s *Server) generatePlan(w http.ResponseWriter, r *http.Request, date string) {
	if s.generator == nil {
		http.Error(w, "Generator not available", http.StatusServiceUnavailable)
		return
	}
	ctx := r.Context()

	profile, err := s.store.GetProfile(ctx, s.userID)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		s.writeStoreError(w, "get profile", err)
		return
	}
	goal, err := s.store.GetGoal(ctx, s.userID)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		s.writeStoreError(w, "get goal", err)
		return
	}

	// Prior context is optional: first-day users have neither a previous
	// plan nor a reflection.
	var prevTasks, prevReflection string
	if prev, err := s.store.LatestPlanBefore(ctx, s.userID, date); err == nil {
		prevTasks = prev.Summary()
		if reflection, err := s.store.GetReflection(ctx, s.userID, prev.Date); err == nil {
			prevReflection = reflection.Reflection
		}
	}

	p, err := s.generator.GenerateDailyPlan(ctx, date, profile, goal, prevTasks, prevReflection)
	if err != nil {
		s.writeGenerationError(w, err)
		return
	}

	if err := s.store.PutDailyPlan(ctx, s.userID, p); err != nil {
		s.writeStoreError(w, "put plan", err)
		return
	}

	s.logger.Info("Generated plan for %s (%d tasks)", date, len(p.Tasks))
	s.writeJSON(w, p)
}

// patchTask implements PATCH /api/plans/{date}/tasks/{taskID} with a body of
// {"isCompleted": bool}.
func (s *Server) patchTask(w http.ResponseWriter, r *http.Request, date, taskID string) {
	var body struct {
		IsCompleted *bool `json:"isCompleted"`
	}
	if !s.decodeBody(w, r, &body) {
		return
	}
	if body.IsCompleted == nil {
		http.Error(w, "isCompleted is required", http.StatusBadRequest)
		return
	}

	if err := s.store.SetTaskCompleted(r.Context(), s.userID, date, taskID, *body.IsCompleted); err != nil {
		s.writeStoreError(w, "set task completed", err)
		return
	}

	p, err := s.store.GetDailyPlan(r.Context(), s.userID, date)
	if err != nil {
		s.writeStoreError(w, "get plan", err)
		return
	}
	s.writeJSON(w, p)
}

// handleReflections routes GET and POST /api/reflections/{date}.
func (s *Server) handleReflections(w http.ResponseWriter, r *http.Request) {
	date := strings.TrimPrefix(r.URL.Path, "/api/reflections/")
	if _, err := plan.ParseDateKey(date); err != nil {
		http.Error(w, "Invalid date (use YYYY-MM-DD)", http.StatusBadRequest)
		return
	}

	switch r.Method {
	case http.MethodGet:
		reflection, err := s.store.GetReflection(r.Context(), s.userID, date)
		if err != nil {
			s.writeStoreError(w, "get reflection", err)
			return
		}
		s.writeJSON(w, reflection)

	case http.MethodPost:
		s.postReflection(w, r, date)

	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// postReflection stores the user's reflection for the date and responds with
// the generated acknowledgement. Generation never fails here: on upstream
// trouble a stock response is used, so the reflection itself is always saved.
func (s *Server) postReflection(w http.ResponseWriter, r *http.Request, date string) {
	if s.generator == nil {
		http.Error(w, "Generator not available", http.StatusServiceUnavailable)
		return
	}

	var body struct {
		Reflection string `json:"reflection"`
	}
	if !s.decodeBody(w, r, &body) {
		return
	}
	if strings.TrimSpace(body.Reflection) == "" {
		http.Error(w, "reflection is required", http.StatusBadRequest)
		return
	}
	ctx := r.Context()

	profile, err := s.store.GetProfile(ctx, s.userID)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		s.writeStoreError(w, "get profile", err)
		return
	}
	goal, err := s.store.GetGoal(ctx, s.userID)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		s.writeStoreError(w, "get goal", err)
		return
	}

	dayPlan, err := s.store.GetDailyPlan(ctx, s.userID, date)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		s.writeStoreError(w, "get plan", err)
		return
	}

	response := s.generator.GenerateReflectionResponse(ctx, profile, goal, dayPlan, body.Reflection)

	reflection := plan.DailyReflection{Reflection: body.Reflection, Response: response}
	if err := s.store.PutReflection(ctx, s.userID, date, reflection); err != nil {
		s.writeStoreError(w, "put reflection", err)
		return
	}
	s.writeJSON(w, reflection)
}

// decodeBody parses a JSON request body, writing a 400 on failure.
func (s *Server) decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		http.Error(w, "Invalid JSON body", http.StatusBadRequest)
		return false
	}
	return true
}

func (s *Server) writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("Failed to encode response: %v", err)
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
	}
}

func (s *Server) writeStoreError(w http.ResponseWriter, operation string, err error) {
	if errors.Is(err, store.ErrNotFound) {
		http.Error(w, "Not found", http.StatusNotFound)
		return
	}
	s.logger.Error("Failed to %s: %v", operation, err)
	http.Error(w, "Internal error", http.StatusInternalServerError)
}

// writeGenerationError maps a generation failure to an HTTP status and a
// JSON body carrying only the user-facing message.
func (s *Server) writeGenerationError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	message := llmerrors.UserMessage(err)

	var ufe *generator.UserFacingError
	if errors.As(err, &ufe) {
		message = ufe.Message
		switch ufe.Category {
		case llmerrors.ErrorTypeValidation:
			status = http.StatusBadRequest
		case llmerrors.ErrorTypeQuota:
			status = http.StatusTooManyRequests
		case llmerrors.ErrorTypeUnavailable:
			status = http.StatusServiceUnavailable
		case llmerrors.ErrorTypeAuth, llmerrors.ErrorTypeMalformed:
			status = http.StatusBadGateway
		}
	}

	s.logger.Warn("Generation failed (%d): %v", status, err)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if encErr := json.NewEncoder(w).Encode(map[string]string{"error": message}); encErr != nil {
		s.logger.Error("Failed to encode error response: %v", encErr)
	}
}
