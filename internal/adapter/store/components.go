package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"agentmesh/internal/domain"
)

// DataComponentRepo implements domain.DataComponentStore on SQLite.
type DataComponentRepo struct {
	q DBTX
}

var _ domain.DataComponentStore = (*DataComponentRepo)(nil)

const dataComponentCols = `tenant_id, project_id, id, name, description, props, created_at, updated_at`

func (r *DataComponentRepo) Get(ctx context.Context, scopes domain.Scopes, id string) (*domain.DataComponent, error) {
	row := r.q.QueryRowContext(ctx,
		`SELECT `+dataComponentCols+` FROM data_components
		 WHERE tenant_id = ? AND project_id = ? AND id = ?`,
		scopes.TenantID, scopes.ProjectID, id)
	c, err := scanDataComponent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrComponentNotFound
	}
	if err != nil {
		return nil, domain.WrapOp("DataComponentRepo.Get", err)
	}
	return c, nil
}

func (r *DataComponentRepo) Upsert(ctx context.Context, c *domain.DataComponent) error {
	now := time.Now().UTC()
	if c.CreatedAt.IsZero() {
		c.CreatedAt = now
	}
	c.UpdatedAt = now

	props := rawCol(c.Props)
	_, err := r.q.ExecContext(ctx,
		`INSERT INTO data_components (`+dataComponentCols+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (tenant_id, project_id, id) DO UPDATE SET
			name = excluded.name,
			description = excluded.description,
			props = excluded.props,
			updated_at = excluded.updated_at`,
		c.TenantID, c.ProjectID, c.ID, c.Name, nullStr(c.Description),
		props, fmtTime(c.CreatedAt), fmtTime(c.UpdatedAt))
	if err != nil {
		return domain.WrapOp("DataComponentRepo.Upsert", err)
	}
	return nil
}

func (r *DataComponentRepo) Delete(ctx context.Context, scopes domain.Scopes, id string) (bool, error) {
	res, err := r.q.ExecContext(ctx,
		`DELETE FROM data_components WHERE tenant_id = ? AND project_id = ? AND id = ?`,
		scopes.TenantID, scopes.ProjectID, id)
	if err != nil {
		return false, domain.WrapOp("DataComponentRepo.Delete", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

func (r *DataComponentRepo) List(ctx context.Context, scopes domain.Scopes, page domain.Pagination) (domain.Paginated[*domain.DataComponent], error) {
	var zero domain.Paginated[*domain.DataComponent]

	var total int
	if err := r.q.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM data_components WHERE tenant_id = ? AND project_id = ?`,
		scopes.TenantID, scopes.ProjectID).Scan(&total); err != nil {
		return zero, domain.WrapOp("DataComponentRepo.List", err)
	}

	rows, err := r.q.QueryContext(ctx,
		`SELECT `+dataComponentCols+` FROM data_components
		 WHERE tenant_id = ? AND project_id = ?
		 ORDER BY created_at DESC LIMIT ? OFFSET ?`,
		scopes.TenantID, scopes.ProjectID, page.Limit, page.Offset())
	if err != nil {
		return zero, domain.WrapOp("DataComponentRepo.List", err)
	}
	defer rows.Close()

	out, err := collectDataComponents(rows)
	if err != nil {
		return zero, domain.WrapOp("DataComponentRepo.List", err)
	}
	return domain.NewPaginated(out, page, total), nil
}

func (r *DataComponentRepo) ListAll(ctx context.Context, scopes domain.Scopes) ([]*domain.DataComponent, error) {
	rows, err := r.q.QueryContext(ctx,
		`SELECT `+dataComponentCols+` FROM data_components
		 WHERE tenant_id = ? AND project_id = ? ORDER BY id`,
		scopes.TenantID, scopes.ProjectID)
	if err != nil {
		return nil, domain.WrapOp("DataComponentRepo.ListAll", err)
	}
	defer rows.Close()

	out, err := collectDataComponents(rows)
	if err != nil {
		return nil, domain.WrapOp("DataComponentRepo.ListAll", err)
	}
	return out, nil
}

func (r *DataComponentRepo) Attach(ctx context.Context, rel *domain.AgentComponentRelation) error {
	return attachComponent(ctx, r.q, "agent_data_components", "DataComponentRepo.Attach", rel)
}

func (r *DataComponentRepo) ListByAgent(ctx context.Context, scopes domain.Scopes, agentID string) ([]*domain.AgentComponentRelation, error) {
	return listComponentRels(ctx, r.q, "agent_data_components", "DataComponentRepo.ListByAgent", scopes, agentID)
}

func (r *DataComponentRepo) DetachByGraph(ctx context.Context, scopes domain.Scopes) error {
	return detachComponents(ctx, r.q, "agent_data_components", "DataComponentRepo.DetachByGraph", scopes)
}

func collectDataComponents(rows *sql.Rows) ([]*domain.DataComponent, error) {
	var out []*domain.DataComponent
	for rows.Next() {
		c, err := scanDataComponent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func scanDataComponent(row rowScanner) (*domain.DataComponent, error) {
	var (
		c                    domain.DataComponent
		desc, props          sql.NullString
		createdAt, updatedAt string
	)
	if err := row.Scan(&c.TenantID, &c.ProjectID, &c.ID, &c.Name, &desc,
		&props, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	c.Description = strOrEmpty(desc)
	if props.Valid && props.String != "" {
		c.Props = []byte(props.String)
	}
	c.CreatedAt = parseTime(createdAt)
	c.UpdatedAt = parseTime(updatedAt)
	return &c, nil
}

// ArtifactComponentRepo implements domain.ArtifactComponentStore on SQLite.
type ArtifactComponentRepo struct {
	q DBTX
}

var _ domain.ArtifactComponentStore = (*ArtifactComponentRepo)(nil)

const artifactComponentCols = `tenant_id, project_id, id, name, description,
	summary_props, full_props, created_at, updated_at`

func (r *ArtifactComponentRepo) Get(ctx context.Context, scopes domain.Scopes, id string) (*domain.ArtifactComponent, error) {
	row := r.q.QueryRowContext(ctx,
		`SELECT `+artifactComponentCols+` FROM artifact_components
		 WHERE tenant_id = ? AND project_id = ? AND id = ?`,
		scopes.TenantID, scopes.ProjectID, id)
	c, err := scanArtifactComponent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrComponentNotFound
	}
	if err != nil {
		return nil, domain.WrapOp("ArtifactComponentRepo.Get", err)
	}
	return c, nil
}

func (r *ArtifactComponentRepo) Upsert(ctx context.Context, c *domain.ArtifactComponent) error {
	now := time.Now().UTC()
	if c.CreatedAt.IsZero() {
		c.CreatedAt = now
	}
	c.UpdatedAt = now

	_, err := r.q.ExecContext(ctx,
		`INSERT INTO artifact_components (`+artifactComponentCols+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (tenant_id, project_id, id) DO UPDATE SET
			name = excluded.name,
			description = excluded.description,
			summary_props = excluded.summary_props,
			full_props = excluded.full_props,
			updated_at = excluded.updated_at`,
		c.TenantID, c.ProjectID, c.ID, c.Name, nullStr(c.Description),
		rawCol(c.SummaryProps), rawCol(c.FullProps),
		fmtTime(c.CreatedAt), fmtTime(c.UpdatedAt))
	if err != nil {
		return domain.WrapOp("ArtifactComponentRepo.Upsert", err)
	}
	return nil
}

func (r *ArtifactComponentRepo) Delete(ctx context.Context, scopes domain.Scopes, id string) (bool, error) {
	res, err := r.q.ExecContext(ctx,
		`DELETE FROM artifact_components WHERE tenant_id = ? AND project_id = ? AND id = ?`,
		scopes.TenantID, scopes.ProjectID, id)
	if err != nil {
		return false, domain.WrapOp("ArtifactComponentRepo.Delete", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

func (r *ArtifactComponentRepo) List(ctx context.Context, scopes domain.Scopes, page domain.Pagination) (domain.Paginated[*domain.ArtifactComponent], error) {
	var zero domain.Paginated[*domain.ArtifactComponent]

	var total int
	if err := r.q.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM artifact_components WHERE tenant_id = ? AND project_id = ?`,
		scopes.TenantID, scopes.ProjectID).Scan(&total); err != nil {
		return zero, domain.WrapOp("ArtifactComponentRepo.List", err)
	}

	rows, err := r.q.QueryContext(ctx,
		`SELECT `+artifactComponentCols+` FROM artifact_components
		 WHERE tenant_id = ? AND project_id = ?
		 ORDER BY created_at DESC LIMIT ? OFFSET ?`,
		scopes.TenantID, scopes.ProjectID, page.Limit, page.Offset())
	if err != nil {
		return zero, domain.WrapOp("ArtifactComponentRepo.List", err)
	}
	defer rows.Close()

	out, err := collectArtifactComponents(rows)
	if err != nil {
		return zero, domain.WrapOp("ArtifactComponentRepo.List", err)
	}
	return domain.NewPaginated(out, page, total), nil
}

func (r *ArtifactComponentRepo) ListAll(ctx context.Context, scopes domain.Scopes) ([]*domain.ArtifactComponent, error) {
	rows, err := r.q.QueryContext(ctx,
		`SELECT `+artifactComponentCols+` FROM artifact_components
		 WHERE tenant_id = ? AND project_id = ? ORDER BY id`,
		scopes.TenantID, scopes.ProjectID)
	if err != nil {
		return nil, domain.WrapOp("ArtifactComponentRepo.ListAll", err)
	}
	defer rows.Close()

	out, err := collectArtifactComponents(rows)
	if err != nil {
		return nil, domain.WrapOp("ArtifactComponentRepo.ListAll", err)
	}
	return out, nil
}

func (r *ArtifactComponentRepo) Attach(ctx context.Context, rel *domain.AgentComponentRelation) error {
	return attachComponent(ctx, r.q, "agent_artifact_components", "ArtifactComponentRepo.Attach", rel)
}

func (r *ArtifactComponentRepo) ListByAgent(ctx context.Context, scopes domain.Scopes, agentID string) ([]*domain.AgentComponentRelation, error) {
	return listComponentRels(ctx, r.q, "agent_artifact_components", "ArtifactComponentRepo.ListByAgent", scopes, agentID)
}

func (r *ArtifactComponentRepo) DetachByGraph(ctx context.Context, scopes domain.Scopes) error {
	return detachComponents(ctx, r.q, "agent_artifact_components", "ArtifactComponentRepo.DetachByGraph", scopes)
}

func collectArtifactComponents(rows *sql.Rows) ([]*domain.ArtifactComponent, error) {
	var out []*domain.ArtifactComponent
	for rows.Next() {
		c, err := scanArtifactComponent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func scanArtifactComponent(row rowScanner) (*domain.ArtifactComponent, error) {
	var (
		c                    domain.ArtifactComponent
		desc, summary, full  sql.NullString
		createdAt, updatedAt string
	)
	if err := row.Scan(&c.TenantID, &c.ProjectID, &c.ID, &c.Name, &desc,
		&summary, &full, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	c.Description = strOrEmpty(desc)
	if summary.Valid && summary.String != "" {
		c.SummaryProps = []byte(summary.String)
	}
	if full.Valid && full.String != "" {
		c.FullProps = []byte(full.String)
	}
	c.CreatedAt = parseTime(createdAt)
	c.UpdatedAt = parseTime(updatedAt)
	return &c, nil
}

// --- shared junction helpers ---

func attachComponent(ctx context.Context, q DBTX, table, op string, rel *domain.AgentComponentRelation) error {
	if rel.CreatedAt.IsZero() {
		rel.CreatedAt = time.Now().UTC()
	}
	_, err := q.ExecContext(ctx,
		`INSERT INTO `+table+` (tenant_id, project_id, graph_id, id, agent_id, component_id, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (tenant_id, project_id, graph_id, agent_id, component_id) DO NOTHING`,
		rel.TenantID, rel.ProjectID, rel.GraphID, rel.ID, rel.AgentID,
		rel.ComponentID, fmtTime(rel.CreatedAt))
	if err != nil {
		return domain.WrapOp(op, err)
	}
	return nil
}

func listComponentRels(ctx context.Context, q DBTX, table, op string, scopes domain.Scopes, agentID string) ([]*domain.AgentComponentRelation, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT tenant_id, project_id, graph_id, id, agent_id, component_id, created_at
		 FROM `+table+`
		 WHERE tenant_id = ? AND project_id = ? AND graph_id = ? AND agent_id = ?
		 ORDER BY component_id`,
		scopes.TenantID, scopes.ProjectID, scopes.GraphID, agentID)
	if err != nil {
		return nil, domain.WrapOp(op, err)
	}
	defer rows.Close()

	var out []*domain.AgentComponentRelation
	for rows.Next() {
		var (
			rel       domain.AgentComponentRelation
			createdAt string
		)
		if err := rows.Scan(&rel.TenantID, &rel.ProjectID, &rel.GraphID, &rel.ID,
			&rel.AgentID, &rel.ComponentID, &createdAt); err != nil {
			return nil, domain.WrapOp(op, err)
		}
		rel.CreatedAt = parseTime(createdAt)
		out = append(out, &rel)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.WrapOp(op, err)
	}
	return out, nil
}

func detachComponents(ctx context.Context, q DBTX, table, op string, scopes domain.Scopes) error {
	_, err := q.ExecContext(ctx,
		`DELETE FROM `+table+` WHERE tenant_id = ? AND project_id = ? AND graph_id = ?`,
		scopes.TenantID, scopes.ProjectID, scopes.GraphID)
	if err != nil {
		return domain.WrapOp(op, err)
	}
	return nil
}
