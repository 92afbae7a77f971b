package multitenantengine

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/liamcoop/selection/internal/logger"
	"github.com/liamcoop/selection/rules"
)

var (
	// ErrTenantNotFound is returned for tenants that are not registered or
	// not loaded.
	ErrTenantNotFound = errors.New("tenant not found")

	// ErrInvalidSchema wraps every schema validation failure.
	ErrInvalidSchema = errors.New("invalid schema")
)

// Schema declares the state fields a tenant's requests carry and their
// types (string, number or bool).
type Schema map[string]string

// Clone returns a copy of s.
func (s Schema) Clone() Schema {
	c := make(Schema, len(s))
	for k, v := range s {
		c[k] = v
	}
	return c
}

// TenantSelector is a tenant's loaded selector with the schema it was
// built against.
type TenantSelector struct {
	TenantID string
	Schema   Schema
	Version  int
	Selector *rules.Selector
}

// MultiTenantEngineManager holds one selector per tenant.
type MultiTenantEngineManager struct {
	backend  Backend
	env      *rules.CELEnv
	cacheTTL time.Duration
	tenants  map[string]*TenantSelector
	locks    map[string]*sync.Mutex // per-tenant write locks, shared by successive selectors
	mu       sync.RWMutex
	updateMu sync.Mutex // serializes schema updates
}

// ManagerOpt configures a MultiTenantEngineManager.
type ManagerOpt func(*MultiTenantEngineManager)

// WithCacheTTL expires each tenant's built engine after ttl, in addition to
// invalidation on writes.
func WithCacheTTL(ttl time.Duration) ManagerOpt {
	return func(m *MultiTenantEngineManager) {
		m.cacheTTL = ttl
	}
}

// NewMultiTenantEngineManager creates a manager. env compiles expression
// rules for every tenant.
func NewMultiTenantEngineManager(backend Backend, env *rules.CELEnv, opts ...ManagerOpt) *MultiTenantEngineManager {
	m := &MultiTenantEngineManager{
		backend: backend,
		env:     env,
		tenants: make(map[string]*TenantSelector),
		locks:   make(map[string]*sync.Mutex),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Backend returns the persistence layer.
func (m *MultiTenantEngineManager) Backend() Backend {
	return m.backend
}

// RegisterTenant creates a tenant without a schema. It is not loaded until
// a schema is set.
func (m *MultiTenantEngineManager) RegisterTenant(name string) (*Tenant, error) {
	if name == "" {
		return nil, fmt.Errorf("tenant name is required")
	}
	return m.backend.InsertTenant(name)
}

// LoadAllTenants loads every tenant with an active schema
func (m *MultiTenantEngineManager) LoadAllTenants() error {
	schemas, err := m.backend.ActiveSchemas()
	if err != nil {
		return err
	}

	for tenantID, sv := range schemas {
		if _, err := m.swap(tenantID, sv.Definition, sv.Version, nil); err != nil {
			return fmt.Errorf("failed to initialize tenant %s: %w", tenantID, err)
		}
	}

	logger.Info("tenants loaded", "count", len(schemas))
	return nil
}

// CreateTenant loads a selector for tenantID using schema without
// persisting the schema.
func (m *MultiTenantEngineManager) CreateTenant(tenantID string, schema Schema) error {
	_, err := m.swap(tenantID, schema, 0, nil)
	return err
}

// swap builds a selector for schema and replaces the loaded one while
// holding the tenant's write lock, so no write lands between the build and
// the swap. persist, when set, runs after a successful build and returns
// the stored version.
func (m *MultiTenantEngineManager) swap(tenantID string, schema Schema, version int, persist func() (int, error)) (*TenantSelector, error) {
	lock := m.tenantLock(tenantID)
	lock.Lock()
	defer lock.Unlock()

	ts, err := m.build(tenantID, schema, version, lock)
	if err != nil {
		return nil, err
	}
	if persist != nil {
		if ts.Version, err = persist(); err != nil {
			return nil, err
		}
	}

	m.mu.Lock()
	old := m.tenants[tenantID]
	m.tenants[tenantID] = ts
	m.mu.Unlock()

	if old != nil {
		old.Selector.ReplaceWith(ts.Selector)
	}
	return ts, nil
}

func (m *MultiTenantEngineManager) tenantLock(tenantID string) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()

	lock, ok := m.locks[tenantID]
	if !ok {
		lock = &sync.Mutex{}
		m.locks[tenantID] = lock
	}
	return lock
}

func (m *MultiTenantEngineManager) build(tenantID string, schema Schema, version int, lock *sync.Mutex) (*TenantSelector, error) {
	if err := ValidateSchema(schema); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidSchema, err)
	}
	schema = schema.Clone()

	sel, err := rules.NewSelector(
		m.env.WithStateFields(schema),
		m.backend.RuleStore(tenantID),
		m.backend.PoolStore(tenantID),
		rules.WithValidator(func(def *rules.Definition) error {
			return ValidateDefinition(schema, def)
		}),
		rules.WithEngineCache(rules.NewInMemoryEngineCache(rules.CacheConfig{TTL: m.cacheTTL})),
		rules.WithWriteLock(lock),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create selector: %w", err)
	}

	return &TenantSelector{
		TenantID: tenantID,
		Schema:   schema,
		Version:  version,
		Selector: sel,
	}, nil
}

func (m *MultiTenantEngineManager) get(tenantID string) (*TenantSelector, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ts, exists := m.tenants[tenantID]
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrTenantNotFound, tenantID)
	}
	return ts, nil
}

// GetSelector retrieves the selector for a specific tenant
func (m *MultiTenantEngineManager) GetSelector(tenantID string) (*rules.Selector, error) {
	ts, err := m.get(tenantID)
	if err != nil {
		return nil, err
	}
	return ts.Selector, nil
}

// GetSchema returns a copy of the tenant's schema and its version
func (m *MultiTenantEngineManager) GetSchema(tenantID string) (Schema, int, error) {
	ts, err := m.get(tenantID)
	if err != nil {
		return nil, 0, err
	}
	return ts.Schema.Clone(), ts.Version, nil
}

// UpdateTenantSchema validates schema, checks every active rule against
// it, stores it as the next version and swaps in a rebuilt selector.
// Requests already holding the old selector finish against it.
func (m *MultiTenantEngineManager) UpdateTenantSchema(tenantID string, schema Schema) (*TenantSelector, error) {
	m.updateMu.Lock()
	defer m.updateMu.Unlock()

	exists, err := m.backend.TenantExists(tenantID)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrTenantNotFound, tenantID)
	}

	// Building first rejects a schema that would orphan an active rule
	// before anything is persisted.
	ts, err := m.swap(tenantID, schema, 0, func() (int, error) {
		sv, err := m.backend.SaveSchema(tenantID, schema)
		if err != nil {
			return 0, err
		}
		return sv.Version, nil
	})
	if err != nil {
		return nil, err
	}

	engine, err := ts.Selector.Snapshot()
	if err == nil {
		logger.Info("tenant schema updated",
			"tenant", tenantID,
			"version", ts.Version,
			"rules", len(engine.Rules()),
		)
	}
	return ts, nil
}

// ListTenants returns all loaded tenant IDs, sorted
func (m *MultiTenantEngineManager) ListTenants() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	tenants := make([]string, 0, len(m.tenants))
	for tenantID := range m.tenants {
		tenants = append(tenants, tenantID)
	}
	sort.Strings(tenants)
	return tenants
}

// DeleteTenant unloads a tenant's selector.
// Note: This does not delete the tenant from the backend
func (m *MultiTenantEngineManager) DeleteTenant(tenantID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.tenants[tenantID]; !exists {
		return fmt.Errorf("%w: %s", ErrTenantNotFound, tenantID)
	}

	delete(m.tenants, tenantID)
	return nil
}
