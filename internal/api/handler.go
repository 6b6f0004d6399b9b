package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/nidhogg/mnemo/internal/manager"
)

// Handler exposes the memory manager to the gateway/orchestration layer.
// Tenant and user identifiers are path parameters on every route.
type Handler struct {
	mgr    *manager.Manager
	logger *zap.Logger
}

// NewHandler creates the API handler.
func NewHandler(mgr *manager.Manager, logger *zap.Logger) *Handler {
	return &Handler{mgr: mgr, logger: logger}
}

// Router builds the chi router with all routes.
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", h.healthCheck)

		r.Route("/tenants/{tenant}/users/{user}", func(r chi.Router) {
			r.Get("/session", h.getSession)
			r.Delete("/session", h.endSession)
			r.Post("/messages", h.addMessage)
			r.Put("/variables", h.updateVariables)
			r.Get("/context", h.getContext)
		})
	})

	return r
}

func (h *Handler) healthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "service": "mnemo"})
}

func (h *Handler) getSession(w http.ResponseWriter, r *http.Request) {
	tenant := chi.URLParam(r, "tenant")
	user := chi.URLParam(r, "user")
	hint := r.URL.Query().Get("session_hint")

	sess, err := h.mgr.GetOrCreateSession(r.Context(), tenant, user, hint)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

func (h *Handler) endSession(w http.ResponseWriter, r *http.Request) {
	tenant := chi.URLParam(r, "tenant")
	user := chi.URLParam(r, "user")

	if err := h.mgr.EndSession(r.Context(), tenant, user); err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "session ended"})
}

type messageRequest struct {
	Text     string                 `json:"text"`
	Role     string                 `json:"role"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

func (h *Handler) addMessage(w http.ResponseWriter, r *http.Request) {
	tenant := chi.URLParam(r, "tenant")
	user := chi.URLParam(r, "user")

	var req messageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	if req.Text == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "text is required"})
		return
	}
	if req.Role == "" {
		req.Role = "user"
	}
	if req.Role != "user" && req.Role != "bot" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "role must be user or bot"})
		return
	}

	res, err := h.mgr.AddMessage(r.Context(), tenant, user, req.Text, req.Role, req.Metadata)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, res)
}

type variablesRequest struct {
	Variables map[string]interface{} `json:"variables"`
}

func (h *Handler) updateVariables(w http.ResponseWriter, r *http.Request) {
	tenant := chi.URLParam(r, "tenant")
	user := chi.URLParam(r, "user")

	var req variablesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	if len(req.Variables) == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "variables are required"})
		return
	}

	err := h.mgr.UpdateSessionVariables(r.Context(), tenant, user, req.Variables)
	if errors.Is(err, manager.ErrNoSession) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "no live session"})
		return
	}
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "updated"})
}

func (h *Handler) getContext(w http.ResponseWriter, r *http.Request) {
	tenant := chi.URLParam(r, "tenant")
	user := chi.URLParam(r, "user")

	opts := h.mgr.ContextOptions()
	q := r.URL.Query()
	if v := q.Get("include_summary"); v != "" {
		opts.OmitSummary = v == "false"
	}
	if v := q.Get("max_recent"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			opts.MaxRecentMessages = n
		}
	}
	if v := q.Get("min_importance"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f >= 0 && f <= 1 {
			opts.MinImportance = f
		}
	}
	if v := q.Get("max_events"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			opts.MaxEvents = n
		}
	}

	writeJSON(w, http.StatusOK, h.mgr.ContextForLLM(r.Context(), tenant, user, opts))
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
