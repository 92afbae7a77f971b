package main

import (
	"time"

	"github.com/liamcoop/selection/multitenantengine"
	"github.com/liamcoop/selection/rules"
)

// API request and response models

// CreateTenantRequest is the body of POST /tenants
type CreateTenantRequest struct {
	Name string `json:"name"`
}

// TenantResponse represents a tenant in API responses
type TenantResponse struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Loaded    bool      `json:"loaded"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// TenantsListResponse represents the response for listing tenants
type TenantsListResponse struct {
	Tenants []TenantResponse `json:"tenants"`
}

// UpdateSchemaRequest is the body of POST /tenants/{tenantId}/schema
type UpdateSchemaRequest struct {
	Definition multitenantengine.Schema `json:"definition"`
}

// SchemaResponse represents a schema in API responses
type SchemaResponse struct {
	Version         int                      `json:"version"`
	Status          string                   `json:"status"`
	Definition      multitenantengine.Schema `json:"definition"`
	RulesRecompiled *int                     `json:"rulesRecompiled,omitempty"`
}

// RuleRequest is the body of rule create and update calls. ID is optional on
// create; a UUID is assigned when it is empty. Active defaults to true.
type RuleRequest struct {
	ID          string     `json:"id,omitempty"`
	Name        string     `json:"name"`
	Kind        rules.Kind `json:"kind"`
	Property    string     `json:"property,omitempty"`
	StringValue string     `json:"stringValue,omitempty"`
	NumberValue float64    `json:"numberValue,omitempty"`
	Comparator  string     `json:"comparator,omitempty"`
	Expression  string     `json:"expression,omitempty"`
	EligibleIDs []int64    `json:"eligibleIds"`
	Priority    int        `json:"priority"`
	Active      *bool      `json:"active,omitempty"`
}

// Definition converts the request into a rule definition with the given ID
func (r *RuleRequest) Definition(id string) *rules.Definition {
	active := true
	if r.Active != nil {
		active = *r.Active
	}
	return &rules.Definition{
		ID:          id,
		Name:        r.Name,
		Kind:        r.Kind,
		Property:    r.Property,
		StringValue: r.StringValue,
		NumberValue: r.NumberValue,
		Comparator:  r.Comparator,
		Expression:  r.Expression,
		EligibleIDs: r.EligibleIDs,
		Priority:    r.Priority,
		Active:      active,
	}
}

// RulesListResponse represents the response for listing rules
type RulesListResponse struct {
	Rules []*rules.Definition `json:"rules"`
}

// CandidatesListResponse represents the response for listing a tenant's pool
type CandidatesListResponse struct {
	Candidates []rules.Candidate `json:"candidates"`
}

// SelectRequest is the body of POST /select
type SelectRequest struct {
	TenantID string         `json:"tenantId"`
	State    map[string]any `json:"state"`
	Mode     string         `json:"mode,omitempty"`
}

// SelectResponse is the result of a selection
type SelectResponse struct {
	Mode           rules.Mode                `json:"mode"`
	Candidates     []rules.Candidate         `json:"candidates"`
	Results        []*rules.EvaluationResult `json:"results"`
	Matched        bool                      `json:"matched"`
	EvaluationTime string                    `json:"evaluationTime"`
}

// HealthResponse is the body of GET /health
type HealthResponse struct {
	Status        string `json:"status"`
	TenantsLoaded int    `json:"tenantsLoaded"`
	Error         string `json:"error,omitempty"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}
