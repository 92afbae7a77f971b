package rules

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
)

const definitionColumns = `id, name, kind, property, string_value, number_value, comparator,
		expression, eligible_ids, priority, active, created_at, updated_at`

// PostgresRuleStore implements RuleStore backed by PostgreSQL
type PostgresRuleStore struct {
	db       *sql.DB
	tenantID string
}

// NewPostgresRuleStore creates a new PostgreSQL-backed RuleStore for a specific tenant
func NewPostgresRuleStore(db *sql.DB, tenantID string) *PostgresRuleStore {
	return &PostgresRuleStore{
		db:       db,
		tenantID: tenantID,
	}
}

// Add inserts a new definition into the database. A definition whose ID
// the tenant already uses fails with ErrRuleExists.
func (s *PostgresRuleStore) Add(def *Definition) error {
	now := time.Now().UTC()
	def.CreatedAt = now
	def.UpdatedAt = now

	_, err := s.db.Exec(`
		INSERT INTO selection_rules (id, tenant_id, name, kind, property, string_value, number_value,
			comparator, expression, eligible_ids, priority, active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`, def.ID, s.tenantID, def.Name, string(def.Kind), def.Property, def.StringValue, def.NumberValue,
		def.Comparator, def.Expression, pq.Array(def.EligibleIDs), def.Priority, def.Active,
		def.CreatedAt, def.UpdatedAt)
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: %s", ErrRuleExists, def.ID)
	}
	if err != nil {
		return fmt.Errorf("failed to insert rule: %w", err)
	}

	return nil
}

// uniqueViolation is the SQLSTATE Postgres reports for a duplicate key.
const uniqueViolation = "23505"

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}

// Get retrieves a definition by ID
func (s *PostgresRuleStore) Get(id string) (*Definition, error) {
	row := s.db.QueryRow(`
		SELECT `+definitionColumns+`
		FROM selection_rules
		WHERE id = $1 AND tenant_id = $2
	`, id, s.tenantID)

	def, err := scanDefinition(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrRuleNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get rule: %w", err)
	}
	return def, nil
}

// List returns all definitions for the tenant in evaluation order
func (s *PostgresRuleStore) List() ([]*Definition, error) {
	return s.query(`
		SELECT `+definitionColumns+`
		FROM selection_rules
		WHERE tenant_id = $1
		ORDER BY priority ASC, created_at ASC, id ASC
	`)
}

// ListActive returns the active definitions for the tenant in evaluation order
func (s *PostgresRuleStore) ListActive() ([]*Definition, error) {
	return s.query(`
		SELECT `+definitionColumns+`
		FROM selection_rules
		WHERE tenant_id = $1 AND active = true
		ORDER BY priority ASC, created_at ASC, id ASC
	`)
}

func (s *PostgresRuleStore) query(q string) ([]*Definition, error) {
	rows, err := s.db.Query(q, s.tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to list rules: %w", err)
	}
	defer rows.Close()

	var defs []*Definition
	for rows.Next() {
		def, err := scanDefinition(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan rule: %w", err)
		}
		defs = append(defs, def)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rules: %w", err)
	}

	return defs, nil
}

// Update modifies an existing definition
func (s *PostgresRuleStore) Update(def *Definition) error {
	def.UpdatedAt = time.Now().UTC()

	result, err := s.db.Exec(`
		UPDATE selection_rules
		SET name = $1, kind = $2, property = $3, string_value = $4, number_value = $5,
			comparator = $6, expression = $7, eligible_ids = $8, priority = $9, active = $10,
			updated_at = $11
		WHERE id = $12 AND tenant_id = $13
	`, def.Name, string(def.Kind), def.Property, def.StringValue, def.NumberValue,
		def.Comparator, def.Expression, pq.Array(def.EligibleIDs), def.Priority, def.Active,
		def.UpdatedAt, def.ID, s.tenantID)
	if err != nil {
		return fmt.Errorf("failed to update rule: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("%w: %s", ErrRuleNotFound, def.ID)
	}

	return nil
}

// Delete removes a definition from the database
func (s *PostgresRuleStore) Delete(id string) error {
	result, err := s.db.Exec(`
		DELETE FROM selection_rules
		WHERE id = $1 AND tenant_id = $2
	`, id, s.tenantID)
	if err != nil {
		return fmt.Errorf("failed to delete rule: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("%w: %s", ErrRuleNotFound, id)
	}

	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanDefinition(row scanner) (*Definition, error) {
	var (
		def  Definition
		kind string
		ids  []int64
	)
	err := row.Scan(
		&def.ID,
		&def.Name,
		&kind,
		&def.Property,
		&def.StringValue,
		&def.NumberValue,
		&def.Comparator,
		&def.Expression,
		pq.Array(&ids),
		&def.Priority,
		&def.Active,
		&def.CreatedAt,
		&def.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	def.Kind = Kind(kind)
	def.EligibleIDs = ids
	return &def, nil
}

// PostgresPoolStore implements PoolStore backed by PostgreSQL
type PostgresPoolStore struct {
	db       *sql.DB
	tenantID string
}

// NewPostgresPoolStore creates a tenant-scoped candidate store
func NewPostgresPoolStore(db *sql.DB, tenantID string) *PostgresPoolStore {
	return &PostgresPoolStore{db: db, tenantID: tenantID}
}

func (s *PostgresPoolStore) Add(c Candidate) error {
	attrs, err := json.Marshal(c.Attributes)
	if err != nil {
		return fmt.Errorf("failed to marshal candidate attributes: %w", err)
	}

	result, err := s.db.Exec(`
		INSERT INTO candidates (tenant_id, id, name, attributes, created_at)
		VALUES ($1, $2, $3, $4, NOW())
		ON CONFLICT (tenant_id, id) DO NOTHING
	`, s.tenantID, c.ID, c.Name, attrs)
	if err != nil {
		return fmt.Errorf("failed to insert candidate: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("%w: %d", ErrCandidateExists, c.ID)
	}
	return nil
}

func (s *PostgresPoolStore) Get(id int64) (Candidate, error) {
	row := s.db.QueryRow(`
		SELECT id, name, attributes FROM candidates
		WHERE tenant_id = $1 AND id = $2
	`, s.tenantID, id)

	c, err := scanCandidate(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Candidate{}, fmt.Errorf("%w: %d", ErrCandidateNotFound, id)
	}
	if err != nil {
		return Candidate{}, fmt.Errorf("failed to get candidate: %w", err)
	}
	return c, nil
}

func (s *PostgresPoolStore) List() ([]Candidate, error) {
	rows, err := s.db.Query(`
		SELECT id, name, attributes FROM candidates
		WHERE tenant_id = $1
		ORDER BY id ASC
	`, s.tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to list candidates: %w", err)
	}
	defer rows.Close()

	pool := []Candidate{}
	for rows.Next() {
		c, err := scanCandidate(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan candidate: %w", err)
		}
		pool = append(pool, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating candidates: %w", err)
	}
	return pool, nil
}

func (s *PostgresPoolStore) Delete(id int64) error {
	result, err := s.db.Exec(`
		DELETE FROM candidates WHERE tenant_id = $1 AND id = $2
	`, s.tenantID, id)
	if err != nil {
		return fmt.Errorf("failed to delete candidate: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("%w: %d", ErrCandidateNotFound, id)
	}
	return nil
}

func scanCandidate(row scanner) (Candidate, error) {
	var (
		c     Candidate
		attrs []byte
	)
	if err := row.Scan(&c.ID, &c.Name, &attrs); err != nil {
		return Candidate{}, err
	}
	if len(attrs) > 0 && string(attrs) != "null" {
		if err := json.Unmarshal(attrs, &c.Attributes); err != nil {
			return Candidate{}, fmt.Errorf("invalid attributes for candidate %d: %w", c.ID, err)
		}
	}
	return c, nil
}
