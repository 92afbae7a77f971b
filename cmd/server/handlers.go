package main

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/liamcoop/selection/internal/logger"
	"github.com/liamcoop/selection/multitenantengine"
	"github.com/liamcoop/selection/rules"
)

// Health check handler
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	loaded := len(s.manager.ListTenants())
	if err := s.manager.Backend().Ping(); err != nil {
		respondJSON(w, http.StatusServiceUnavailable, HealthResponse{
			Status:        "unhealthy",
			TenantsLoaded: loaded,
			Error:         err.Error(),
		})
		return
	}

	respondJSON(w, http.StatusOK, HealthResponse{
		Status:        "healthy",
		TenantsLoaded: loaded,
	})
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, logger.Snapshot())
}

// Selection handler
func (s *Server) handleSelect(w http.ResponseWriter, r *http.Request) {
	var req SelectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	if req.TenantID == "" {
		respondError(w, http.StatusBadRequest, "tenantId is required", nil)
		return
	}

	mode, err := rules.ParseMode(req.Mode)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid mode", err)
		return
	}

	sel, err := s.manager.GetSelector(req.TenantID)
	if err != nil {
		respondError(w, statusFor(err), "tenant not found", err)
		return
	}

	startTime := time.Now()
	selection, err := sel.Select(r.Context(), mode, rules.State(req.State))
	if err != nil {
		respondError(w, statusFor(err), "selection failed", err)
		return
	}
	evaluationTime := time.Since(startTime)
	logger.CountSelection()

	respondJSON(w, http.StatusOK, SelectResponse{
		Mode:           selection.Mode,
		Candidates:     selection.Candidates,
		Results:        selection.Results,
		Matched:        selection.Matched(),
		EvaluationTime: evaluationTime.String(),
	})
}

// List tenants handler
func (s *Server) handleListTenants(w http.ResponseWriter, r *http.Request) {
	tenants, err := s.manager.Backend().Tenants()
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to list tenants", err)
		return
	}

	loaded := make(map[string]bool)
	for _, id := range s.manager.ListTenants() {
		loaded[id] = true
	}

	resp := TenantsListResponse{Tenants: make([]TenantResponse, 0, len(tenants))}
	for _, t := range tenants {
		resp.Tenants = append(resp.Tenants, TenantResponse{
			ID:        t.ID,
			Name:      t.Name,
			Loaded:    loaded[t.ID],
			CreatedAt: t.CreatedAt,
			UpdatedAt: t.UpdatedAt,
		})
	}

	respondJSON(w, http.StatusOK, resp)
}

// Create tenant handler
func (s *Server) handleCreateTenant(w http.ResponseWriter, r *http.Request) {
	var req CreateTenantRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	if req.Name == "" {
		respondError(w, http.StatusBadRequest, "name is required", nil)
		return
	}

	tenant, err := s.manager.RegisterTenant(req.Name)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to create tenant", err)
		return
	}

	respondJSON(w, http.StatusCreated, TenantResponse{
		ID:        tenant.ID,
		Name:      tenant.Name,
		CreatedAt: tenant.CreatedAt,
		UpdatedAt: tenant.UpdatedAt,
	})
}

// Update schema handler. Active rules are rechecked against the new schema
// and the tenant's selector is swapped without interrupting selections.
func (s *Server) handleUpdateSchema(w http.ResponseWriter, r *http.Request) {
	tenantID := chi.URLParam(r, "tenantId")

	var req UpdateSchemaRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	ts, err := s.manager.UpdateTenantSchema(tenantID, req.Definition)
	if err != nil {
		respondError(w, statusFor(err), "failed to update schema", err)
		return
	}

	engine, err := ts.Selector.Snapshot()
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to build rules", err)
		return
	}
	recompiled := len(engine.Rules())

	respondJSON(w, http.StatusOK, SchemaResponse{
		Version:         ts.Version,
		Status:          "active",
		Definition:      ts.Schema,
		RulesRecompiled: &recompiled,
	})
}

// Get schema handler
func (s *Server) handleGetSchema(w http.ResponseWriter, r *http.Request) {
	tenantID := chi.URLParam(r, "tenantId")

	schema, version, err := s.manager.GetSchema(tenantID)
	if err != nil {
		respondError(w, statusFor(err), "schema not found", err)
		return
	}

	respondJSON(w, http.StatusOK, SchemaResponse{
		Version:    version,
		Status:     "active",
		Definition: schema,
	})
}

// selector resolves the tenant in the path, writing the error response when
// it is not loaded.
func (s *Server) selector(w http.ResponseWriter, r *http.Request) (*rules.Selector, bool) {
	sel, err := s.manager.GetSelector(chi.URLParam(r, "tenantId"))
	if err != nil {
		respondError(w, statusFor(err), "tenant not found", err)
		return nil, false
	}
	return sel, true
}

// Create rule handler
func (s *Server) handleCreateRule(w http.ResponseWriter, r *http.Request) {
	var req RuleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	sel, ok := s.selector(w, r)
	if !ok {
		return
	}

	id := req.ID
	if id == "" {
		id = uuid.NewString()
	}
	def := req.Definition(id)

	// AddRule validates and compiles the rule before storing it
	if err := sel.AddRule(def); err != nil {
		respondError(w, statusFor(err), "failed to add rule", err)
		return
	}

	respondJSON(w, http.StatusCreated, def)
}

// List rules handler
func (s *Server) handleListRules(w http.ResponseWriter, r *http.Request) {
	sel, ok := s.selector(w, r)
	if !ok {
		return
	}

	defs, err := sel.ListRules()
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to list rules", err)
		return
	}
	if defs == nil {
		defs = []*rules.Definition{}
	}

	respondJSON(w, http.StatusOK, RulesListResponse{Rules: defs})
}

// Get rule handler
func (s *Server) handleGetRule(w http.ResponseWriter, r *http.Request) {
	sel, ok := s.selector(w, r)
	if !ok {
		return
	}

	def, err := sel.GetRule(chi.URLParam(r, "ruleId"))
	if err != nil {
		respondError(w, statusFor(err), "rule not found", err)
		return
	}

	respondJSON(w, http.StatusOK, def)
}

// Update rule handler
func (s *Server) handleUpdateRule(w http.ResponseWriter, r *http.Request) {
	var req RuleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	sel, ok := s.selector(w, r)
	if !ok {
		return
	}

	def := req.Definition(chi.URLParam(r, "ruleId"))
	if err := sel.UpdateRule(def); err != nil {
		respondError(w, statusFor(err), "failed to update rule", err)
		return
	}

	respondJSON(w, http.StatusOK, def)
}

// Delete rule handler
func (s *Server) handleDeleteRule(w http.ResponseWriter, r *http.Request) {
	sel, ok := s.selector(w, r)
	if !ok {
		return
	}

	if err := sel.DeleteRule(chi.URLParam(r, "ruleId")); err != nil {
		respondError(w, statusFor(err), "rule not found", err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// Add candidate handler
func (s *Server) handleAddCandidate(w http.ResponseWriter, r *http.Request) {
	var c rules.Candidate
	if err := json.NewDecoder(r.Body).Decode(&c); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	sel, ok := s.selector(w, r)
	if !ok {
		return
	}

	if err := sel.AddCandidate(c); err != nil {
		respondError(w, statusFor(err), "failed to add candidate", err)
		return
	}

	respondJSON(w, http.StatusCreated, c)
}

// List candidates handler
func (s *Server) handleListCandidates(w http.ResponseWriter, r *http.Request) {
	sel, ok := s.selector(w, r)
	if !ok {
		return
	}

	pool, err := sel.ListCandidates()
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to list candidates", err)
		return
	}
	if pool == nil {
		pool = []rules.Candidate{}
	}

	respondJSON(w, http.StatusOK, CandidatesListResponse{Candidates: pool})
}

// Delete candidate handler
func (s *Server) handleDeleteCandidate(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "candidateId"), 10, 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid candidate id", err)
		return
	}

	sel, ok := s.selector(w, r)
	if !ok {
		return
	}

	if err := sel.DeleteCandidate(id); err != nil {
		respondError(w, statusFor(err), "candidate not found", err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// statusFor maps sentinel errors to HTTP status codes
func statusFor(err error) int {
	switch {
	case errors.Is(err, multitenantengine.ErrTenantNotFound),
		errors.Is(err, rules.ErrRuleNotFound),
		errors.Is(err, rules.ErrCandidateNotFound):
		return http.StatusNotFound
	case errors.Is(err, rules.ErrRuleExists),
		errors.Is(err, rules.ErrCandidateExists):
		return http.StatusConflict
	case errors.Is(err, rules.ErrInvalidDefinition),
		errors.Is(err, rules.ErrInvalidExpression),
		errors.Is(err, rules.ErrUnknownComparator),
		errors.Is(err, rules.ErrUnknownMode),
		errors.Is(err, multitenantengine.ErrInvalidSchema):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

// Helper functions
func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.Error("failed to encode response", "error", err)
	}
}

func respondError(w http.ResponseWriter, status int, message string, err error) {
	response := ErrorResponse{Error: message}
	if err != nil {
		response.Details = err.Error()
		if status >= http.StatusInternalServerError {
			logger.Error(message, "error", err)
		}
	}
	respondJSON(w, status, response)
}
