package controlapi

import (
	"net/http"
	"sort"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/botmesh/botmesh/internal/plugins/tokens"
	"github.com/botmesh/botmesh/pkg/plugin"
	"github.com/botmesh/botmesh/pkg/runtime"
)

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status    string    `json:"status"`
	State     string    `json:"state"`
	Timestamp time.Time `json:"timestamp"`
}

// StatusResponse is the body of GET /v1/status.
type StatusResponse struct {
	State             string  `json:"state"`
	Uptime            string  `json:"uptime"`
	UptimeSeconds     float64 `json:"uptime_seconds"`
	Tasks             int     `json:"tasks"`
	CachedUtilities   int     `json:"cached_utilities"`
	CachedServices    int     `json:"cached_services"`
	DiscoveredPlugins int     `json:"discovered_plugins"`
}

// PluginListResponse is the body of GET /v1/plugins.
type PluginListResponse struct {
	Plugins []*plugin.Descriptor `json:"plugins"`
	Count   int                  `json:"count"`
}

// ReloadResponse is the body of POST /v1/plugins/reload.
type ReloadResponse struct {
	Reloaded bool `json:"reloaded"`
	Plugins  int  `json:"plugins"`
}

// IssueTokenRequest is the body of POST /v1/tokens.
type IssueTokenRequest struct {
	// Token is a static operator token from configuration.
	Token string `json:"token"`

	// Subject optionally names the session holder in issued claims.
	Subject string `json:"subject,omitempty"`
}

// handleHealth answers the liveness probe. It reports healthy whenever
// the listener answers at all; the state field tells probes whether the
// runtime is actually serving.
func (s *Service) handleHealth(w http.ResponseWriter, r *http.Request) {
	state := s.ctrl.State()

	status := "healthy"
	code := http.StatusOK
	if state != runtime.StateRunning {
		status = "degraded"
		code = http.StatusServiceUnavailable
	}

	WriteJSON(w, code, HealthResponse{
		Status:    status,
		State:     string(state),
		Timestamp: time.Now().UTC(),
	})
}

// handleStatus answers GET /v1/status.
func (s *Service) handleStatus(w http.ResponseWriter, r *http.Request) {
	uptime := s.ctrl.Uptime()
	utilities, services := s.ctrl.CachedCounts()

	WriteJSONOK(w, StatusResponse{
		State:             string(s.ctrl.State()),
		Uptime:            uptime.Round(time.Second).String(),
		UptimeSeconds:     uptime.Seconds(),
		Tasks:             s.ctrl.TaskCount(),
		CachedUtilities:   utilities,
		CachedServices:    services,
		DiscoveredPlugins: len(s.ctrl.Descriptors()),
	})
}

// handleListPlugins answers GET /v1/plugins. The optional kind query
// parameter filters to "utility" or "service".
func (s *Service) handleListPlugins(w http.ResponseWriter, r *http.Request) {
	kind := plugin.Kind(r.URL.Query().Get("kind"))
	if kind != "" && !kind.Valid() {
		BadRequest(w, "kind must be \"utility\" or \"service\"")
		return
	}

	descriptors := s.ctrl.Descriptors()
	list := make([]*plugin.Descriptor, 0, len(descriptors))
	for _, d := range descriptors {
		if kind != "" && d.Kind != kind {
			continue
		}
		list = append(list, d)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].Name < list[j].Name })

	WriteJSONOK(w, PluginListResponse{Plugins: list, Count: len(list)})
}

// handleGetPlugin answers GET /v1/plugins/{name}.
func (s *Service) handleGetPlugin(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	desc, ok := s.ctrl.Descriptor(name)
	if !ok {
		NotFound(w, "No plugin named "+name)
		return
	}

	WriteJSONOK(w, desc)
}

// handleGetPlan answers GET /v1/plan with the current startup plan,
// computing it when no memoized plan exists.
func (s *Service) handleGetPlan(w http.ResponseWriter, r *http.Request) {
	WriteJSONOK(w, s.ctrl.Plan())
}

// handleInvalidatePlan answers POST /v1/plan/invalidate.
func (s *Service) handleInvalidatePlan(w http.ResponseWriter, r *http.Request) {
	s.ctrl.InvalidatePlan()
	s.log.Info("Startup plan invalidated via control API")

	WriteJSONOK(w, map[string]any{"invalidated": true})
}

// handleReload answers POST /v1/plugins/reload: the plugin tree is
// rescanned and the plan invalidated. A rescan failure (a dependency
// cycle) keeps the previous catalog and reports the error.
func (s *Service) handleReload(w http.ResponseWriter, r *http.Request) {
	if err := s.ctrl.Reload(); err != nil {
		s.log.Error("Plugin reload via control API failed", "error", err)
		InternalServerError(w, err.Error())
		return
	}
	s.ctrl.InvalidatePlan()
	s.log.Info("Plugin catalog reloaded via control API")

	WriteJSONOK(w, ReloadResponse{
		Reloaded: true,
		Plugins:  len(s.ctrl.Descriptors()),
	})
}

// handleIssueToken answers POST /v1/tokens: a static operator token from
// configuration is exchanged for a short-lived session JWT. The static
// token itself keeps working; sessions just avoid presenting it on every
// request.
func (s *Service) handleIssueToken(w http.ResponseWriter, r *http.Request) {
	var req IssueTokenRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}
	if req.Token == "" {
		BadRequest(w, "Token is required")
		return
	}

	// Only the long-lived static credential may mint sessions; a session
	// token presented here is rejected.
	if !s.verifier.VerifyStatic(req.Token) {
		Unauthorized(w, "Invalid operator token")
		return
	}

	subject := req.Subject
	if subject == "" {
		subject = tokens.StaticSubject
	}

	issued, err := s.verifier.Issue(subject, tokens.RoleAdmin)
	if err != nil {
		s.log.Error("Session token issue failed", "error", err)
		InternalServerError(w, "Failed to issue session token")
		return
	}

	s.log.Info("Session token issued", "subject", subject)
	WriteJSONOK(w, issued)
}
