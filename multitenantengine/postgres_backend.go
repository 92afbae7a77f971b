package multitenantengine

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/liamcoop/selection/rules"
)

// PostgresBackend implements Backend on the tables created by migrations/.
type PostgresBackend struct {
	db *sql.DB
}

// NewPostgresBackend wraps an open database handle
func NewPostgresBackend(db *sql.DB) *PostgresBackend {
	return &PostgresBackend{db: db}
}

func (b *PostgresBackend) InsertTenant(name string) (*Tenant, error) {
	t := &Tenant{Name: name}
	err := b.db.QueryRow(`
		INSERT INTO tenants (name, created_at, updated_at)
		VALUES ($1, NOW(), NOW())
		RETURNING id, created_at, updated_at
	`, name).Scan(&t.ID, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to create tenant: %w", err)
	}
	return t, nil
}

func (b *PostgresBackend) Tenants() ([]*Tenant, error) {
	rows, err := b.db.Query("SELECT id, name, created_at, updated_at FROM tenants ORDER BY created_at DESC, id ASC")
	if err != nil {
		return nil, fmt.Errorf("failed to list tenants: %w", err)
	}
	defer rows.Close()

	tenants := []*Tenant{}
	for rows.Next() {
		var t Tenant
		if err := rows.Scan(&t.ID, &t.Name, &t.CreatedAt, &t.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan tenant: %w", err)
		}
		tenants = append(tenants, &t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating tenants: %w", err)
	}
	return tenants, nil
}

func (b *PostgresBackend) TenantExists(tenantID string) (bool, error) {
	var exists bool
	// Compared as text so a malformed ID is simply absent.
	err := b.db.QueryRow(`SELECT EXISTS(SELECT 1 FROM tenants WHERE id::text = $1)`, tenantID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check tenant existence: %w", err)
	}
	return exists, nil
}

func (b *PostgresBackend) ActiveSchemas() (map[string]*SchemaVersion, error) {
	rows, err := b.db.Query(`
		SELECT t.id, s.version, s.definition, s.created_at
		FROM tenants t
		JOIN schemas s ON s.tenant_id = t.id
		WHERE s.active = true
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch tenants: %w", err)
	}
	defer rows.Close()

	out := make(map[string]*SchemaVersion)
	for rows.Next() {
		var (
			tenantID   string
			schemaJSON []byte
			sv         SchemaVersion
		)
		if err := rows.Scan(&tenantID, &sv.Version, &schemaJSON, &sv.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan tenant row: %w", err)
		}
		if err := json.Unmarshal(schemaJSON, &sv.Definition); err != nil {
			return nil, fmt.Errorf("invalid schema for tenant %s: %w", tenantID, err)
		}
		out[tenantID] = &sv
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating tenant rows: %w", err)
	}
	return out, nil
}

// SaveSchema deactivates the current version and inserts the next one in a
// single transaction.
func (b *PostgresBackend) SaveSchema(tenantID string, schema Schema) (*SchemaVersion, error) {
	schemaJSON, err := json.Marshal(schema)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal schema: %w", err)
	}

	tx, err := b.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	if _, err := tx.Exec(`UPDATE schemas SET active = false WHERE tenant_id = $1`, tenantID); err != nil {
		return nil, fmt.Errorf("failed to deactivate old schemas: %w", err)
	}

	sv := &SchemaVersion{Definition: schema.Clone()}
	err = tx.QueryRow(`
		INSERT INTO schemas (tenant_id, version, definition, active, created_at)
		SELECT $1, COALESCE(MAX(version), 0) + 1, $2, true, NOW()
		FROM schemas
		WHERE tenant_id = $1
		RETURNING version, created_at
	`, tenantID, schemaJSON).Scan(&sv.Version, &sv.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to save new schema: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit schema: %w", err)
	}
	return sv, nil
}

func (b *PostgresBackend) RuleStore(tenantID string) rules.RuleStore {
	return rules.NewPostgresRuleStore(b.db, tenantID)
}

func (b *PostgresBackend) PoolStore(tenantID string) rules.PoolStore {
	return rules.NewPostgresPoolStore(b.db, tenantID)
}

func (b *PostgresBackend) Ping() error {
	return b.db.Ping()
}
