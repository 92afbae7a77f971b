package multitenantengine

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/liamcoop/selection/rules"
)

// Tenant is a registered tenant.
type Tenant struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// SchemaVersion is a stored schema revision.
type SchemaVersion struct {
	Version    int       `json:"version"`
	Definition Schema    `json:"definition"`
	CreatedAt  time.Time `json:"createdAt"`
}

// Backend persists tenants, their schemas, rules and candidate pools.
type Backend interface {
	// InsertTenant registers a tenant and assigns its ID
	InsertTenant(name string) (*Tenant, error)

	// Tenants lists every registered tenant, newest first
	Tenants() ([]*Tenant, error)

	// TenantExists reports whether the tenant is registered
	TenantExists(tenantID string) (bool, error)

	// ActiveSchemas returns the active schema of every tenant that has one
	ActiveSchemas() (map[string]*SchemaVersion, error)

	// SaveSchema stores schema as the tenant's new active version
	SaveSchema(tenantID string, schema Schema) (*SchemaVersion, error)

	// RuleStore and PoolStore return the tenant-scoped stores
	RuleStore(tenantID string) rules.RuleStore
	PoolStore(tenantID string) rules.PoolStore

	// Ping checks that the backend is reachable
	Ping() error
}

// MemoryBackend implements Backend in process memory.
type MemoryBackend struct {
	tenants map[string]*Tenant
	schemas map[string][]*SchemaVersion
	rules   map[string]*rules.InMemoryRuleStore
	pools   map[string]*rules.InMemoryPoolStore
	clock   func() time.Time
	mu      sync.RWMutex
}

// NewMemoryBackend creates an empty backend
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{
		tenants: make(map[string]*Tenant),
		schemas: make(map[string][]*SchemaVersion),
		rules:   make(map[string]*rules.InMemoryRuleStore),
		pools:   make(map[string]*rules.InMemoryPoolStore),
		clock:   time.Now,
	}
}

func (b *MemoryBackend) InsertTenant(name string) (*Tenant, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.clock()
	t := &Tenant{ID: uuid.NewString(), Name: name, CreatedAt: now, UpdatedAt: now}
	b.tenants[t.ID] = t
	b.rules[t.ID] = rules.NewInMemoryRuleStore()
	b.pools[t.ID] = rules.NewInMemoryPoolStore()

	c := *t
	return &c, nil
}

func (b *MemoryBackend) Tenants() ([]*Tenant, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]*Tenant, 0, len(b.tenants))
	for _, t := range b.tenants {
		c := *t
		out = append(out, &c)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (b *MemoryBackend) TenantExists(tenantID string) (bool, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	_, ok := b.tenants[tenantID]
	return ok, nil
}

func (b *MemoryBackend) ActiveSchemas() (map[string]*SchemaVersion, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make(map[string]*SchemaVersion, len(b.schemas))
	for id, versions := range b.schemas {
		if len(versions) > 0 {
			out[id] = versions[len(versions)-1]
		}
	}
	return out, nil
}

func (b *MemoryBackend) SaveSchema(tenantID string, schema Schema) (*SchemaVersion, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.tenants[tenantID]; !ok {
		return nil, fmt.Errorf("%w: %s", ErrTenantNotFound, tenantID)
	}

	sv := &SchemaVersion{
		Version:    len(b.schemas[tenantID]) + 1,
		Definition: schema.Clone(),
		CreatedAt:  b.clock(),
	}
	b.schemas[tenantID] = append(b.schemas[tenantID], sv)
	return sv, nil
}

// RuleStore returns the tenant's store. Unknown tenants get an empty store
// that is not retained.
func (b *MemoryBackend) RuleStore(tenantID string) rules.RuleStore {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if s, ok := b.rules[tenantID]; ok {
		return s
	}
	return rules.NewInMemoryRuleStore()
}

func (b *MemoryBackend) PoolStore(tenantID string) rules.PoolStore {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if s, ok := b.pools[tenantID]; ok {
		return s
	}
	return rules.NewInMemoryPoolStore()
}

func (b *MemoryBackend) Ping() error { return nil }
