package credstore

import (
	"context"
	"fmt"
	"sync"

	"agentmesh/internal/domain"
)

// Registry holds named credential store instances. It is built once at
// startup and passed to whoever resolves credential references; there is
// no package-level state.
type Registry struct {
	mu     sync.RWMutex
	stores map[string]domain.CredentialStore
}

// NewRegistry creates a registry over the given stores, keyed by their IDs.
func NewRegistry(stores ...domain.CredentialStore) *Registry {
	r := &Registry{stores: make(map[string]domain.CredentialStore, len(stores))}
	for _, s := range stores {
		r.stores[s.ID()] = s
	}
	return r
}

// Register adds or replaces a store.
func (r *Registry) Register(s domain.CredentialStore) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stores[s.ID()] = s
}

// Get returns the store with the given id.
func (r *Registry) Get(id string) (domain.CredentialStore, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.stores[id]
	if !ok {
		return nil, domain.NewSubSystemError("credstore", "Registry.Get",
			domain.ErrStoreNotRegistered, id)
	}
	return s, nil
}

// IDs lists the registered store ids.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.stores))
	for id := range r.stores {
		out = append(out, id)
	}
	return out
}

// Resolve fetches the secret a credential reference points at. The lookup
// key comes from retrievalParams ("key" or "connectionId"), falling back to
// the reference id.
func (r *Registry) Resolve(ctx context.Context, ref *domain.CredentialReference) (string, error) {
	s, err := r.Get(ref.CredentialStoreID)
	if err != nil {
		return "", err
	}
	return s.Get(ctx, retrievalKey(ref))
}

func retrievalKey(ref *domain.CredentialReference) string {
	for _, param := range []string{"key", "connectionId"} {
		if v, ok := ref.RetrievalParams[param]; ok {
			if key, ok := v.(string); ok && key != "" {
				return key
			}
		}
	}
	return ref.ID
}

// String implements fmt.Stringer for log output.
func (r *Registry) String() string {
	return fmt.Sprintf("credstore.Registry(%d stores)", len(r.stores))
}
