//go:build integration

package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	_ "github.com/lib/pq"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/liamcoop/selection/internal/config"
)

// setupTestDB creates a PostgreSQL testcontainer and runs migrations
func setupTestDB(t *testing.T) (*sql.DB, func()) {
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "postgres:16-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_PASSWORD": "password",
			"POSTGRES_DB":       "testdb",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}

	postgres, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Fatalf("Failed to start postgres container: %v", err)
	}

	host, err := postgres.Host(ctx)
	if err != nil {
		t.Fatalf("Failed to get container host: %v", err)
	}

	port, err := postgres.MappedPort(ctx, "5432")
	if err != nil {
		t.Fatalf("Failed to get container port: %v", err)
	}

	connStr := fmt.Sprintf("postgres://postgres:password@%s:%s/testdb?sslmode=disable", host, port.Port())

	db, err := sql.Open("postgres", connStr)
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}

	for i := 0; i < 30; i++ {
		if err := db.Ping(); err == nil {
			break
		}
		time.Sleep(100 * time.Millisecond)
	}

	migrationSQL, err := os.ReadFile("../../migrations/000001_initial_schema.up.sql")
	if err != nil {
		t.Fatalf("Failed to read migration file: %v", err)
	}

	if _, err := db.Exec(string(migrationSQL)); err != nil {
		t.Fatalf("Failed to run migrations: %v", err)
	}

	cleanup := func() {
		db.Close()
		postgres.Terminate(ctx)
	}

	return db, cleanup
}

func TestEndToEnd_CreateTenantAndSelect(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	server, err := NewServerWithDB(config.Default(), db)
	if err != nil {
		t.Fatalf("Failed to create server: %v", err)
	}
	ts := httptest.NewServer(server)
	defer ts.Close()

	baseURL := ts.URL + "/api/v1"

	t.Log("Step 1: Creating tenant with schema, pool and rules...")
	tenantID := setupFurnitureTenant(t, baseURL)

	t.Log("Step 2: Selecting...")
	resp := makeRequest(t, "POST", baseURL+"/select", map[string]any{
		"tenantId": tenantID,
		"mode":     "all",
		"state":    map[string]any{"pointOfInterest": "Office Furniture", "budget": 20000},
	})
	if got := fmt.Sprint(candidateNames(t, resp)); got != "[Michael Scott]" {
		t.Errorf("Expected [Michael Scott], got %s", got)
	}

	t.Log("Step 3: Restarting against the same database...")
	restarted, err := NewServerWithDB(config.Default(), db)
	if err != nil {
		t.Fatalf("Failed to recreate server: %v", err)
	}
	ts2 := httptest.NewServer(restarted)
	defer ts2.Close()

	resp = makeRequest(t, "POST", ts2.URL+"/api/v1/select", map[string]any{
		"tenantId": tenantID,
		"state":    map[string]any{"pointOfInterest": "Plumbing"},
	})
	if got := fmt.Sprint(candidateNames(t, resp)); got != "[Adam Willy Joshua Eliot]" {
		t.Errorf("Expected [Adam Willy Joshua Eliot] after restart, got %s", got)
	}

	schema := makeRequestNoBody(t, "GET", ts2.URL+"/api/v1/tenants/"+tenantID+"/schema")
	if schema["version"].(float64) != 1 {
		t.Errorf("Expected schema version 1, got %v", schema["version"])
	}
}

// TestEndToEnd_SchemaUpdate tests that schema updates keep serving selections
func TestEndToEnd_SchemaUpdate(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	server, err := NewServerWithDB(config.Default(), db)
	if err != nil {
		t.Fatalf("Failed to create server: %v", err)
	}
	ts := httptest.NewServer(server)
	defer ts.Close()

	baseURL := ts.URL + "/api/v1"
	tenantID := setupFurnitureTenant(t, baseURL)
	schemaURL := baseURL + "/tenants/" + tenantID + "/schema"

	updated := makeRequest(t, "POST", schemaURL, map[string]any{
		"definition": map[string]string{"pointOfInterest": "string", "budget": "number", "vip": "bool"},
	})
	if updated["version"].(float64) != 2 {
		t.Errorf("Expected schema version 2, got %v", updated["version"])
	}

	resp, err := makeHTTPRequest("POST", schemaURL, map[string]any{
		"definition": map[string]string{"vip": "bool"},
	})
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("Expected 400 for schema orphaning rules, got %d", resp.StatusCode)
	}

	var versions int
	db.QueryRow("SELECT COUNT(*) FROM schemas WHERE tenant_id = $1", tenantID).Scan(&versions)
	if versions != 2 {
		t.Errorf("Expected 2 stored schema versions, got %d", versions)
	}
}
