package domain

import (
	"context"
	"time"
)

// Credential store implementation types understood by the registry.
const (
	CredentialStoreMemory   = "memory"
	CredentialStoreKeychain = "keychain"
	CredentialStoreNango    = "nango"
)

// CredentialReference is an indirection from tools and external agents to a
// named credential store plus the parameters needed to retrieve the secret.
type CredentialReference struct {
	ID                string         `json:"id"`
	TenantID          string         `json:"tenantId"`
	ProjectID         string         `json:"projectId"`
	Type              string         `json:"type"` // memory | keychain | nango
	CredentialStoreID string         `json:"credentialStoreId"`
	RetrievalParams   map[string]any `json:"retrievalParams,omitempty"`
	CreatedAt         time.Time      `json:"createdAt"`
	UpdatedAt         time.Time      `json:"updatedAt"`
}

// CredentialReferenceStore persists credential references.
type CredentialReferenceStore interface {
	Get(ctx context.Context, scopes Scopes, id string) (*CredentialReference, error)
	Upsert(ctx context.Context, c *CredentialReference) error
	Delete(ctx context.Context, scopes Scopes, id string) (bool, error)
	List(ctx context.Context, scopes Scopes, page Pagination) (Paginated[*CredentialReference], error)
}

// CredentialStore is the uniform capability interface every credential
// backend implements. Get returns ("", ErrCredentialNotFound) for missing
// keys; backends that cannot write return ErrUnsupported from Set/Delete.
type CredentialStore interface {
	ID() string
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	Has(ctx context.Context, key string) (bool, error)
	Delete(ctx context.Context, key string) error
}
