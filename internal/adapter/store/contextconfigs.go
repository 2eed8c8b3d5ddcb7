package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"agentmesh/internal/domain"
)

// ContextConfigRepo implements domain.ContextConfigStore on SQLite.
type ContextConfigRepo struct {
	q DBTX
}

var _ domain.ContextConfigStore = (*ContextConfigRepo)(nil)

const contextConfigCols = `tenant_id, project_id, id, graph_id, headers_schema,
	context_variables, created_at, updated_at`

func (r *ContextConfigRepo) Get(ctx context.Context, scopes domain.Scopes, id string) (*domain.ContextConfig, error) {
	row := r.q.QueryRowContext(ctx,
		`SELECT `+contextConfigCols+` FROM context_configs
		 WHERE tenant_id = ? AND project_id = ? AND id = ?`,
		scopes.TenantID, scopes.ProjectID, id)
	c, err := scanContextConfig(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrContextConfigNotFound
	}
	if err != nil {
		return nil, domain.WrapOp("ContextConfigRepo.Get", err)
	}
	return c, nil
}

func (r *ContextConfigRepo) Upsert(ctx context.Context, c *domain.ContextConfig) error {
	now := time.Now().UTC()
	if c.CreatedAt.IsZero() {
		c.CreatedAt = now
	}
	c.UpdatedAt = now

	vars, err := marshalCol(c.ContextVariables)
	if err != nil {
		return domain.WrapOp("ContextConfigRepo.Upsert", err)
	}

	_, err = r.q.ExecContext(ctx,
		`INSERT INTO context_configs (`+contextConfigCols+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (tenant_id, project_id, id) DO UPDATE SET
			graph_id = excluded.graph_id,
			headers_schema = excluded.headers_schema,
			context_variables = excluded.context_variables,
			updated_at = excluded.updated_at`,
		c.TenantID, c.ProjectID, c.ID, nullStr(c.GraphID),
		rawCol(c.HeadersSchema), vars,
		fmtTime(c.CreatedAt), fmtTime(c.UpdatedAt))
	if err != nil {
		return domain.WrapOp("ContextConfigRepo.Upsert", err)
	}
	return nil
}

func (r *ContextConfigRepo) Delete(ctx context.Context, scopes domain.Scopes, id string) (bool, error) {
	res, err := r.q.ExecContext(ctx,
		`DELETE FROM context_configs WHERE tenant_id = ? AND project_id = ? AND id = ?`,
		scopes.TenantID, scopes.ProjectID, id)
	if err != nil {
		return false, domain.WrapOp("ContextConfigRepo.Delete", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

func (r *ContextConfigRepo) List(ctx context.Context, scopes domain.Scopes, page domain.Pagination) (domain.Paginated[*domain.ContextConfig], error) {
	var zero domain.Paginated[*domain.ContextConfig]

	var total int
	if err := r.q.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM context_configs WHERE tenant_id = ? AND project_id = ?`,
		scopes.TenantID, scopes.ProjectID).Scan(&total); err != nil {
		return zero, domain.WrapOp("ContextConfigRepo.List", err)
	}

	rows, err := r.q.QueryContext(ctx,
		`SELECT `+contextConfigCols+` FROM context_configs
		 WHERE tenant_id = ? AND project_id = ?
		 ORDER BY created_at DESC LIMIT ? OFFSET ?`,
		scopes.TenantID, scopes.ProjectID, page.Limit, page.Offset())
	if err != nil {
		return zero, domain.WrapOp("ContextConfigRepo.List", err)
	}
	defer rows.Close()

	var out []*domain.ContextConfig
	for rows.Next() {
		c, err := scanContextConfig(rows)
		if err != nil {
			return zero, domain.WrapOp("ContextConfigRepo.List", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return zero, domain.WrapOp("ContextConfigRepo.List", err)
	}
	return domain.NewPaginated(out, page, total), nil
}

func scanContextConfig(row rowScanner) (*domain.ContextConfig, error) {
	var (
		c                    domain.ContextConfig
		graphID, schema      sql.NullString
		vars                 sql.NullString
		createdAt, updatedAt string
	)
	if err := row.Scan(&c.TenantID, &c.ProjectID, &c.ID, &graphID,
		&schema, &vars, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	c.GraphID = strOrEmpty(graphID)
	if schema.Valid && schema.String != "" {
		c.HeadersSchema = []byte(schema.String)
	}
	if err := unmarshalCol(vars, &c.ContextVariables); err != nil {
		return nil, err
	}
	c.CreatedAt = parseTime(createdAt)
	c.UpdatedAt = parseTime(updatedAt)
	return &c, nil
}
