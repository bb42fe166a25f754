// Package httpapi wires the gateway's pipeline, auth and resilience
// packages onto the canonical HTTP surface: request/batch processing,
// auth status, resilience preset introspection, and health.
package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/aegislabs/promptgate/internal/auth"
	"github.com/aegislabs/promptgate/internal/cache"
	"github.com/aegislabs/promptgate/internal/core"
	"github.com/aegislabs/promptgate/internal/pipeline"
	"github.com/aegislabs/promptgate/internal/resilience"
)

// requestValidator runs the struct tags declared on pipeline.Request
// (required/min/max/oneof); it is safe for concurrent use across handlers.
var requestValidator = validator.New()

// Server holds every subsystem a route handler needs.
type Server struct {
	Processor     *pipeline.Processor
	Orchestrator  *pipeline.BatchOrchestrator
	Authenticator *auth.Authenticator
	Presets       *resilience.PresetRegistry
	Cache         *cache.Cache
	Logger        core.Logger
	Environment   string
	Version       string
}

// Routes returns the full mux with auth applied to every endpoint except
// /internal/health, matching §6's "authentication on all endpoints except
// health".
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()

	protected := http.NewServeMux()
	protected.HandleFunc("POST /v1/text_processing/process", s.handleProcess)
	protected.HandleFunc("POST /v1/text_processing/batch", s.handleBatch)
	protected.HandleFunc("GET /v1/auth/status", s.handleAuthStatus)
	protected.HandleFunc("GET /internal/resilience/config/templates", s.handleListTemplates)
	protected.HandleFunc("GET /internal/resilience/config/templates/{name}", s.handleGetTemplate)
	protected.HandleFunc("POST /internal/resilience/config/validate-template", s.handleValidateTemplate)
	protected.HandleFunc("POST /internal/resilience/config/recommend-template", s.handleRecommendTemplate)

	mux.Handle("/", RequireAuth(s.Authenticator, s.Environment)(protected))
	mux.HandleFunc("GET /internal/health", s.handleHealth)

	return LoggingMiddleware(s.Logger, s.Environment != "production")(mux)
}

func (s *Server) handleProcess(w http.ResponseWriter, r *http.Request) {
	var req pipeline.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, core.NewGatewayError("httpapi.handleProcess", core.KindValidation, "malformed request body", nil, err))
		return
	}
	if err := validateProcessRequest(req); err != nil {
		WriteError(w, err)
		return
	}

	resp, err := s.Processor.Process(r.Context(), req)
	if err != nil {
		WriteError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleBatch(w http.ResponseWriter, r *http.Request) {
	var req pipeline.BatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, core.NewGatewayError("httpapi.handleBatch", core.KindValidation, "malformed request body", nil, err))
		return
	}
	if len(req.Requests) < pipeline.MinBatchSize || len(req.Requests) > pipeline.MaxBatchSize {
		WriteError(w, core.NewGatewayError("httpapi.handleBatch", core.KindValidation,
			"batch size must be between 1 and 200 items", map[string]interface{}{"count": len(req.Requests)}, nil))
		return
	}
	for _, item := range req.Requests {
		if err := validateProcessRequest(item); err != nil {
			WriteError(w, err)
			return
		}
	}

	resp := s.Orchestrator.Run(r.Context(), req)
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleAuthStatus(w http.ResponseWriter, r *http.Request) {
	principal := PrincipalFromContext(r.Context())
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"authenticated":  true,
		"api_key_prefix": principal,
		"message":        "authenticated",
	})
}

func (s *Server) handleListTemplates(w http.ResponseWriter, r *http.Request) {
	names := s.Presets.Names()
	out := make([]resilience.Preset, 0, len(names))
	for _, n := range names {
		if p, ok := s.Presets.Get(n); ok {
			out = append(out, p)
		}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"templates": out})
}

func (s *Server) handleGetTemplate(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	p, ok := s.Presets.Get(name)
	if !ok {
		WriteError(w, core.NewGatewayError("httpapi.handleGetTemplate", core.KindValidation,
			"unknown resilience preset", map[string]interface{}{"name": name}, nil))
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) handleValidateTemplate(w http.ResponseWriter, r *http.Request) {
	var preset resilience.Preset
	if err := json.NewDecoder(r.Body).Decode(&preset); err != nil {
		WriteError(w, core.NewGatewayError("httpapi.handleValidateTemplate", core.KindValidation, "malformed preset body", nil, err))
		return
	}
	writeJSON(w, http.StatusOK, resilience.Validate(preset))
}

func (s *Server) handleRecommendTemplate(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Environment string `json:"environment"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		WriteError(w, core.NewGatewayError("httpapi.handleRecommendTemplate", core.KindValidation, "malformed request body", nil, err))
		return
	}
	rec := resilience.Recommend(body.Environment, s.Presets)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"suggested_template":  rec.SuggestedTemplate,
		"confidence":          rec.Confidence,
		"reasoning":           rec.Reasoning,
		"available_templates": rec.AvailableTemplates,
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	health := s.Cache.HealthCheck(r.Context())

	status := "healthy"
	if !health.Healthy {
		status = "unhealthy"
	} else if health.CacheType == cache.TypeMemory {
		status = "degraded"
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":              status,
		"ai_model_available":  true,
		"resilience_healthy":  true,
		"cache_healthy":       health.Healthy,
		"cache_type":          health.CacheType,
		"timestamp":           time.Now().UTC(),
		"version":             s.Version,
	})
}

func validateProcessRequest(req pipeline.Request) error {
	if err := requestValidator.Struct(req); err != nil {
		var fieldErrs validator.ValidationErrors
		if !errors.As(err, &fieldErrs) {
			return core.NewGatewayError("httpapi.validateProcessRequest", core.KindValidation,
				"request failed validation", nil, err)
		}
		details := make([]string, 0, len(fieldErrs))
		for _, fe := range fieldErrs {
			details = append(details, fmt.Sprintf("%s failed on %q", strings.ToLower(fe.Field()), fe.Tag()))
		}
		return core.NewGatewayError("httpapi.validateProcessRequest", core.KindValidation,
			"request failed validation", map[string]interface{}{"violations": details}, nil)
	}
	if req.Operation == "qa" && strings.TrimSpace(req.Question) == "" {
		return core.NewGatewayError("httpapi.validateProcessRequest", core.KindValidation,
			"question is required for operation qa", nil, nil)
	}
	return nil
}
