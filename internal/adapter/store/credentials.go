package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"agentmesh/internal/domain"
)

// CredentialRepo implements domain.CredentialReferenceStore on SQLite.
// Only the reference rows live here; the secrets stay in their backends.
type CredentialRepo struct {
	q DBTX
}

var _ domain.CredentialReferenceStore = (*CredentialRepo)(nil)

const credentialCols = `tenant_id, project_id, id, type, credential_store_id,
	retrieval_params, created_at, updated_at`

func (r *CredentialRepo) Get(ctx context.Context, scopes domain.Scopes, id string) (*domain.CredentialReference, error) {
	row := r.q.QueryRowContext(ctx,
		`SELECT `+credentialCols+` FROM credential_references
		 WHERE tenant_id = ? AND project_id = ? AND id = ?`,
		scopes.TenantID, scopes.ProjectID, id)
	c, err := scanCredential(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrCredentialNotFound
	}
	if err != nil {
		return nil, domain.WrapOp("CredentialRepo.Get", err)
	}
	return c, nil
}

func (r *CredentialRepo) Upsert(ctx context.Context, c *domain.CredentialReference) error {
	now := time.Now().UTC()
	if c.CreatedAt.IsZero() {
		c.CreatedAt = now
	}
	c.UpdatedAt = now

	params, err := marshalCol(c.RetrievalParams)
	if err != nil {
		return domain.WrapOp("CredentialRepo.Upsert", err)
	}

	_, err = r.q.ExecContext(ctx,
		`INSERT INTO credential_references (`+credentialCols+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (tenant_id, project_id, id) DO UPDATE SET
			type = excluded.type,
			credential_store_id = excluded.credential_store_id,
			retrieval_params = excluded.retrieval_params,
			updated_at = excluded.updated_at`,
		c.TenantID, c.ProjectID, c.ID, c.Type, c.CredentialStoreID,
		params, fmtTime(c.CreatedAt), fmtTime(c.UpdatedAt))
	if err != nil {
		return domain.WrapOp("CredentialRepo.Upsert", err)
	}
	return nil
}

func (r *CredentialRepo) Delete(ctx context.Context, scopes domain.Scopes, id string) (bool, error) {
	res, err := r.q.ExecContext(ctx,
		`DELETE FROM credential_references WHERE tenant_id = ? AND project_id = ? AND id = ?`,
		scopes.TenantID, scopes.ProjectID, id)
	if err != nil {
		return false, domain.WrapOp("CredentialRepo.Delete", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

func (r *CredentialRepo) List(ctx context.Context, scopes domain.Scopes, page domain.Pagination) (domain.Paginated[*domain.CredentialReference], error) {
	var zero domain.Paginated[*domain.CredentialReference]

	var total int
	if err := r.q.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM credential_references WHERE tenant_id = ? AND project_id = ?`,
		scopes.TenantID, scopes.ProjectID).Scan(&total); err != nil {
		return zero, domain.WrapOp("CredentialRepo.List", err)
	}

	rows, err := r.q.QueryContext(ctx,
		`SELECT `+credentialCols+` FROM credential_references
		 WHERE tenant_id = ? AND project_id = ?
		 ORDER BY created_at DESC LIMIT ? OFFSET ?`,
		scopes.TenantID, scopes.ProjectID, page.Limit, page.Offset())
	if err != nil {
		return zero, domain.WrapOp("CredentialRepo.List", err)
	}
	defer rows.Close()

	var out []*domain.CredentialReference
	for rows.Next() {
		c, err := scanCredential(rows)
		if err != nil {
			return zero, domain.WrapOp("CredentialRepo.List", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return zero, domain.WrapOp("CredentialRepo.List", err)
	}
	return domain.NewPaginated(out, page, total), nil
}

func scanCredential(row rowScanner) (*domain.CredentialReference, error) {
	var (
		c                    domain.CredentialReference
		params               sql.NullString
		createdAt, updatedAt string
	)
	if err := row.Scan(&c.TenantID, &c.ProjectID, &c.ID, &c.Type,
		&c.CredentialStoreID, &params, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	if err := unmarshalCol(params, &c.RetrievalParams); err != nil {
		return nil, err
	}
	c.CreatedAt = parseTime(createdAt)
	c.UpdatedAt = parseTime(updatedAt)
	return &c, nil
}
