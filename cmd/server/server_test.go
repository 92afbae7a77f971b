package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/liamcoop/selection/internal/config"
	"github.com/liamcoop/selection/multitenantengine"
	"github.com/liamcoop/selection/rules"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()

	env, err := rules.NewCELEnv(0)
	if err != nil {
		t.Fatalf("NewCELEnv() failed: %v", err)
	}
	manager := multitenantengine.NewMultiTenantEngineManager(multitenantengine.NewMemoryBackend(), env)

	ts := httptest.NewServer(NewServer(config.Default(), manager))
	t.Cleanup(ts.Close)
	return ts
}

// setupFurnitureTenant creates a tenant with the furniture schema, pool and rules
func setupFurnitureTenant(t *testing.T, baseURL string) string {
	t.Helper()

	tenant := makeRequest(t, "POST", baseURL+"/tenants", map[string]any{"name": "Furniture Co"})
	tenantID := tenant["id"].(string)

	makeRequest(t, "POST", baseURL+"/tenants/"+tenantID+"/schema", map[string]any{
		"definition": map[string]string{
			"pointOfInterest": "string",
			"budget":          "number",
		},
	})

	for i, name := range []string{"Joe Miller", "Adam Willy", "Joshua Eliot", "Michael Scott"} {
		makeRequest(t, "POST", baseURL+"/tenants/"+tenantID+"/candidates", map[string]any{"id": i + 1, "name": name})
	}

	for _, rule := range []map[string]any{
		{"id": "office", "name": "office furniture", "kind": "string", "property": "pointOfInterest", "stringValue": "Office Furniture", "eligibleIds": []int{1, 4}},
		{"id": "home", "name": "home furniture", "kind": "string", "property": "pointOfInterest", "stringValue": "Home Furniture", "eligibleIds": []int{2, 3}},
		{"id": "plumbing", "name": "plumbing", "kind": "string", "property": "pointOfInterest", "stringValue": "Plumbing", "eligibleIds": []int{2, 3}},
		{"id": "budget", "name": "big budget", "kind": "number", "property": "budget", "numberValue": 10000, "comparator": "greater", "eligibleIds": []int{4}},
	} {
		makeRequest(t, "POST", baseURL+"/tenants/"+tenantID+"/rules", rule)
	}

	return tenantID
}

func candidateNames(t *testing.T, resp map[string]any) []string {
	t.Helper()

	list, ok := resp["candidates"].([]any)
	if !ok {
		t.Fatalf("Expected candidates array, got %v", resp)
	}
	names := make([]string, 0, len(list))
	for _, c := range list {
		names = append(names, c.(map[string]any)["name"].(string))
	}
	return names
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t)

	resp := makeRequestNoBody(t, "GET", ts.URL+"/api/v1/health")
	if resp["status"] != "healthy" {
		t.Errorf("Expected healthy, got %v", resp)
	}
}

func TestSelect(t *testing.T) {
	ts := newTestServer(t)
	baseURL := ts.URL + "/api/v1"
	tenantID := setupFurnitureTenant(t, baseURL)

	tests := []struct {
		name    string
		mode    string
		state   map[string]any
		want    string
		matched bool
	}{
		{"any office big budget", "any", map[string]any{"pointOfInterest": "Office Furniture", "budget": 20000}, "[Joe Miller Michael Scott]", true},
		{"all office big budget", "all", map[string]any{"pointOfInterest": "Office Furniture", "budget": 20000}, "[Michael Scott]", true},
		{"default mode is any", "", map[string]any{"pointOfInterest": "Home Furniture"}, "[Adam Willy Joshua Eliot]", true},
		{"first rule wins", "first", map[string]any{"pointOfInterest": "Office Furniture", "budget": 20000}, "[Joe Miller Michael Scott]", true},
		{"all with nothing matching keeps the pool", "all", map[string]any{"pointOfInterest": "Garden"}, "[Joe Miller Adam Willy Joshua Eliot Michael Scott]", false},
		{"any with nothing matching", "any", map[string]any{}, "[]", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := makeRequest(t, "POST", baseURL+"/select", map[string]any{
				"tenantId": tenantID,
				"mode":     tt.mode,
				"state":    tt.state,
			})

			if got := fmt.Sprint(candidateNames(t, resp)); got != tt.want {
				t.Errorf("candidates = %s, want %s", got, tt.want)
			}
			if resp["matched"] != tt.matched {
				t.Errorf("matched = %v, want %v", resp["matched"], tt.matched)
			}
			if results, ok := resp["results"].([]any); !ok || len(results) != 4 {
				t.Errorf("Expected 4 per-rule results, got %v", resp["results"])
			}
		})
	}

	metrics := makeRequestNoBody(t, "GET", baseURL+"/metrics")
	if n, ok := metrics["selections"].(float64); !ok || n < float64(len(tests)) {
		t.Errorf("Expected at least %d selections counted, got %v", len(tests), metrics["selections"])
	}
}

func TestSelectErrors(t *testing.T) {
	ts := newTestServer(t)
	baseURL := ts.URL + "/api/v1"
	tenantID := setupFurnitureTenant(t, baseURL)

	tests := []struct {
		name string
		body any
		want int
	}{
		{"missing tenant id", map[string]any{"state": map[string]any{}}, http.StatusBadRequest},
		{"unknown tenant", map[string]any{"tenantId": "nope", "state": map[string]any{}}, http.StatusNotFound},
		{"unknown mode", map[string]any{"tenantId": tenantID, "mode": "most", "state": map[string]any{}}, http.StatusBadRequest},
		{"malformed body", "not an object", http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := makeHTTPRequest("POST", baseURL+"/select", tt.body)
			if err != nil {
				t.Fatalf("request failed: %v", err)
			}
			defer resp.Body.Close()

			if resp.StatusCode != tt.want {
				t.Errorf("status = %d, want %d", resp.StatusCode, tt.want)
			}
		})
	}
}

func TestRuleLifecycle(t *testing.T) {
	ts := newTestServer(t)
	baseURL := ts.URL + "/api/v1"
	tenantID := setupFurnitureTenant(t, baseURL)
	rulesURL := baseURL + "/tenants/" + tenantID + "/rules"

	created := makeRequest(t, "POST", rulesURL, map[string]any{
		"name":        "expression",
		"kind":        "expression",
		"expression":  `state.pointOfInterest == "Garden" && state.budget < 500.0`,
		"eligibleIds": []int{2},
	})
	ruleID, _ := created["id"].(string)
	if ruleID == "" {
		t.Fatalf("Expected generated rule id, got %v", created)
	}
	if created["active"] != true {
		t.Errorf("Expected rule to default to active, got %v", created["active"])
	}

	list := makeRequestNoBody(t, "GET", rulesURL)
	if rs, ok := list["rules"].([]any); !ok || len(rs) != 5 {
		t.Errorf("Expected 5 rules, got %v", list["rules"])
	}

	got := makeRequestNoBody(t, "GET", rulesURL+"/"+ruleID)
	if got["name"] != "expression" {
		t.Errorf("GET rule = %v", got)
	}

	updated := makeRequest(t, "PUT", rulesURL+"/"+ruleID, map[string]any{
		"name":        "renamed",
		"kind":        "expression",
		"expression":  `state.budget < 500.0`,
		"eligibleIds": []int{2},
		"active":      false,
	})
	if updated["name"] != "renamed" || updated["active"] != false {
		t.Errorf("PUT rule = %v", updated)
	}

	resp, err := makeHTTPRequest("DELETE", rulesURL+"/"+ruleID, nil)
	if err != nil {
		t.Fatalf("DELETE failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Errorf("DELETE status = %d, want 204", resp.StatusCode)
	}

	resp, err = makeHTTPRequest("GET", rulesURL+"/"+ruleID, nil)
	if err != nil {
		t.Fatalf("GET failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("GET deleted rule status = %d, want 404", resp.StatusCode)
	}
}

func TestRuleErrors(t *testing.T) {
	ts := newTestServer(t)
	baseURL := ts.URL + "/api/v1"
	tenantID := setupFurnitureTenant(t, baseURL)
	rulesURL := baseURL + "/tenants/" + tenantID + "/rules"

	tests := []struct {
		name   string
		method string
		url    string
		body   any
		want   int
	}{
		{"duplicate id", "POST", rulesURL, map[string]any{"id": "office", "name": "again", "kind": "string", "property": "pointOfInterest"}, http.StatusConflict},
		{"missing name", "POST", rulesURL, map[string]any{"kind": "string", "property": "pointOfInterest"}, http.StatusBadRequest},
		{"unknown kind", "POST", rulesURL, map[string]any{"name": "x", "kind": "regex"}, http.StatusBadRequest},
		{"bad comparator", "POST", rulesURL, map[string]any{"name": "x", "kind": "number", "property": "budget", "comparator": "between"}, http.StatusBadRequest},
		{"invalid expression", "POST", rulesURL, map[string]any{"name": "x", "kind": "expression", "expression": "state.budget >"}, http.StatusBadRequest},
		{"expression reads undeclared field", "POST", rulesURL, map[string]any{"name": "x", "kind": "expression", "expression": "state.color == \"red\""}, http.StatusBadRequest},
		{"expression compares field with wrong type", "POST", rulesURL, map[string]any{"name": "x", "kind": "expression", "expression": "state.budget == \"high\""}, http.StatusBadRequest},
		{"property outside schema", "POST", rulesURL, map[string]any{"name": "x", "kind": "string", "property": "color"}, http.StatusBadRequest},
		{"type mismatch with schema", "POST", rulesURL, map[string]any{"name": "x", "kind": "number", "property": "pointOfInterest"}, http.StatusBadRequest},
		{"update missing rule", "PUT", rulesURL + "/missing", map[string]any{"name": "x", "kind": "string", "property": "pointOfInterest"}, http.StatusNotFound},
		{"delete missing rule", "DELETE", rulesURL + "/missing", nil, http.StatusNotFound},
		{"unknown tenant", "GET", baseURL + "/tenants/nope/rules", nil, http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := makeHTTPRequest(tt.method, tt.url, tt.body)
			if err != nil {
				t.Fatalf("request failed: %v", err)
			}
			defer resp.Body.Close()

			if resp.StatusCode != tt.want {
				body, _ := io.ReadAll(resp.Body)
				t.Errorf("status = %d, want %d: %s", resp.StatusCode, tt.want, body)
			}
		})
	}
}

func TestCandidates(t *testing.T) {
	ts := newTestServer(t)
	baseURL := ts.URL + "/api/v1"
	tenantID := setupFurnitureTenant(t, baseURL)
	poolURL := baseURL + "/tenants/" + tenantID + "/candidates"

	list := makeRequestNoBody(t, "GET", poolURL)
	if got := fmt.Sprint(candidateNames(t, list)); got != "[Joe Miller Adam Willy Joshua Eliot Michael Scott]" {
		t.Errorf("candidates = %s", got)
	}

	resp, _ := makeHTTPRequest("POST", poolURL, map[string]any{"id": 1, "name": "duplicate"})
	resp.Body.Close()
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("duplicate candidate status = %d, want 409", resp.StatusCode)
	}

	resp, _ = makeHTTPRequest("DELETE", poolURL+"/4", nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Errorf("DELETE status = %d, want 204", resp.StatusCode)
	}

	resp, _ = makeHTTPRequest("DELETE", poolURL+"/4", nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("second DELETE status = %d, want 404", resp.StatusCode)
	}

	resp, _ = makeHTTPRequest("DELETE", poolURL+"/abc", nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("DELETE non-numeric id status = %d, want 400", resp.StatusCode)
	}

	// Removing Michael Scott leaves only Joe Miller for office furniture.
	sel := makeRequest(t, "POST", baseURL+"/select", map[string]any{
		"tenantId": tenantID,
		"state":    map[string]any{"pointOfInterest": "Office Furniture"},
	})
	if got := fmt.Sprint(candidateNames(t, sel)); got != "[Joe Miller]" {
		t.Errorf("selection after delete = %s, want [Joe Miller]", got)
	}
}

func TestSchema(t *testing.T) {
	ts := newTestServer(t)
	baseURL := ts.URL + "/api/v1"
	tenantID := setupFurnitureTenant(t, baseURL)
	schemaURL := baseURL + "/tenants/" + tenantID + "/schema"

	got := makeRequestNoBody(t, "GET", schemaURL)
	if got["version"].(float64) != 1 {
		t.Errorf("Expected schema version 1, got %v", got["version"])
	}

	updated := makeRequest(t, "POST", schemaURL, map[string]any{
		"definition": map[string]string{"pointOfInterest": "string", "budget": "number", "vip": "bool"},
	})
	if updated["version"].(float64) != 2 {
		t.Errorf("Expected schema version 2, got %v", updated["version"])
	}
	if updated["rulesRecompiled"].(float64) != 4 {
		t.Errorf("Expected 4 rules recompiled, got %v", updated["rulesRecompiled"])
	}

	tests := []struct {
		name   string
		url    string
		schema map[string]string
		want   int
	}{
		{"drops a field a rule uses", schemaURL, map[string]string{"pointOfInterest": "string"}, http.StatusBadRequest},
		{"invalid field type", schemaURL, map[string]string{"budget": "money"}, http.StatusBadRequest},
		{"empty schema", schemaURL, map[string]string{}, http.StatusBadRequest},
		{"unknown tenant", baseURL + "/tenants/nope/schema", map[string]string{"budget": "number"}, http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := makeHTTPRequest("POST", tt.url, map[string]any{"definition": tt.schema})
			if err != nil {
				t.Fatalf("request failed: %v", err)
			}
			defer resp.Body.Close()

			if resp.StatusCode != tt.want {
				body, _ := io.ReadAll(resp.Body)
				t.Errorf("status = %d, want %d: %s", resp.StatusCode, tt.want, body)
			}
		})
	}

	again := makeRequestNoBody(t, "GET", schemaURL)
	if again["version"].(float64) != 2 {
		t.Errorf("rejected updates changed the version to %v", again["version"])
	}
}

func TestListTenants(t *testing.T) {
	ts := newTestServer(t)
	baseURL := ts.URL + "/api/v1"

	loadedID := setupFurnitureTenant(t, baseURL)
	makeRequest(t, "POST", baseURL+"/tenants", map[string]any{"name": "no schema yet"})

	resp := makeRequestNoBody(t, "GET", baseURL+"/tenants")
	tenants, ok := resp["tenants"].([]any)
	if !ok || len(tenants) != 2 {
		t.Fatalf("Expected 2 tenants, got %v", resp)
	}

	for _, raw := range tenants {
		tenant := raw.(map[string]any)
		wantLoaded := tenant["id"] == loadedID
		if tenant["loaded"] != wantLoaded {
			t.Errorf("tenant %v loaded = %v, want %v", tenant["name"], tenant["loaded"], wantLoaded)
		}
	}

	bad, _ := makeHTTPRequest("POST", baseURL+"/tenants", map[string]any{"name": ""})
	bad.Body.Close()
	if bad.StatusCode != http.StatusBadRequest {
		t.Errorf("empty name status = %d, want 400", bad.StatusCode)
	}
}

// Helper function to make HTTP requests with JSON body
func makeRequest(t *testing.T, method, url string, body any) map[string]any {
	t.Helper()

	resp, err := makeHTTPRequest(method, url, body)
	if err != nil {
		t.Fatalf("Failed to make %s request to %s: %v", method, url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		bodyBytes, _ := io.ReadAll(resp.Body)
		t.Fatalf("Request failed with status %d: %s", resp.StatusCode, string(bodyBytes))
	}

	var result map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}

	return result
}

// Helper function to make HTTP requests without body
func makeRequestNoBody(t *testing.T, method, url string) map[string]any {
	t.Helper()
	return makeRequest(t, method, url, nil)
}

// Helper function to make raw HTTP requests
func makeHTTPRequest(method, url string, body any) (*http.Response, error) {
	var bodyReader io.Reader
	if body != nil {
		jsonBytes, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal body: %w", err)
		}
		bodyReader = bytes.NewReader(jsonBytes)
	}

	req, err := http.NewRequest(method, url, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	client := &http.Client{Timeout: 5 * time.Second}
	return client.Do(req)
}
