package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"agentmesh/internal/domain"
)

// GraphRepo implements domain.GraphStore on SQLite.
type GraphRepo struct {
	q DBTX
}

var _ domain.GraphStore = (*GraphRepo)(nil)

const graphCols = `tenant_id, project_id, id, name, description, default_agent_id,
	context_config_id, models, status_updates, stop_when, graph_prompt, created_at, updated_at`

func (r *GraphRepo) Get(ctx context.Context, scopes domain.Scopes, id string) (*domain.AgentGraph, error) {
	row := r.q.QueryRowContext(ctx,
		`SELECT `+graphCols+` FROM agent_graphs WHERE tenant_id = ? AND project_id = ? AND id = ?`,
		scopes.TenantID, scopes.ProjectID, id)
	g, err := scanGraph(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrGraphNotFound
	}
	if err != nil {
		return nil, domain.WrapOp("GraphRepo.Get", err)
	}
	return g, nil
}

func (r *GraphRepo) Create(ctx context.Context, g *domain.AgentGraph) error {
	args, err := graphArgs(g)
	if err != nil {
		return domain.WrapOp("GraphRepo.Create", err)
	}
	_, err = r.q.ExecContext(ctx,
		`INSERT INTO agent_graphs (`+graphCols+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		args...)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.NewDomainError("GraphRepo.Create", domain.ErrDuplicate, g.ID)
		}
		return domain.WrapOp("GraphRepo.Create", err)
	}
	return nil
}

func (r *GraphRepo) Upsert(ctx context.Context, g *domain.AgentGraph) error {
	args, err := graphArgs(g)
	if err != nil {
		return domain.WrapOp("GraphRepo.Upsert", err)
	}
	_, err = r.q.ExecContext(ctx,
		`INSERT INTO agent_graphs (`+graphCols+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (tenant_id, project_id, id) DO UPDATE SET
			name = excluded.name,
			description = excluded.description,
			default_agent_id = excluded.default_agent_id,
			context_config_id = excluded.context_config_id,
			models = excluded.models,
			status_updates = excluded.status_updates,
			stop_when = excluded.stop_when,
			graph_prompt = excluded.graph_prompt,
			updated_at = excluded.updated_at`,
		args...)
	if err != nil {
		return domain.WrapOp("GraphRepo.Upsert", err)
	}
	return nil
}

func (r *GraphRepo) Update(ctx context.Context, g *domain.AgentGraph) error {
	g.UpdatedAt = time.Now().UTC()

	models, err := marshalCol(g.Models)
	if err != nil {
		return domain.WrapOp("GraphRepo.Update", err)
	}
	statusUpdates, err := marshalCol(g.StatusUpdates)
	if err != nil {
		return domain.WrapOp("GraphRepo.Update", err)
	}
	stopWhen, err := marshalCol(g.StopWhen)
	if err != nil {
		return domain.WrapOp("GraphRepo.Update", err)
	}

	res, err := r.q.ExecContext(ctx,
		`UPDATE agent_graphs SET name = ?, description = ?, default_agent_id = ?,
			context_config_id = ?, models = ?, status_updates = ?, stop_when = ?,
			graph_prompt = ?, updated_at = ?
		 WHERE tenant_id = ? AND project_id = ? AND id = ?`,
		g.Name, nullStr(g.Description), nullStr(g.DefaultAgentID),
		nullStr(g.ContextConfigID), models, statusUpdates, stopWhen,
		nullStr(g.GraphPrompt), fmtTime(g.UpdatedAt),
		g.TenantID, g.ProjectID, g.ID)
	if err != nil {
		return domain.WrapOp("GraphRepo.Update", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrGraphNotFound
	}
	return nil
}

func (r *GraphRepo) Delete(ctx context.Context, scopes domain.Scopes, id string) (bool, error) {
	res, err := r.q.ExecContext(ctx,
		`DELETE FROM agent_graphs WHERE tenant_id = ? AND project_id = ? AND id = ?`,
		scopes.TenantID, scopes.ProjectID, id)
	if err != nil {
		return false, domain.WrapOp("GraphRepo.Delete", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

func (r *GraphRepo) List(ctx context.Context, scopes domain.Scopes, page domain.Pagination) (domain.Paginated[*domain.AgentGraph], error) {
	var zero domain.Paginated[*domain.AgentGraph]

	var total int
	if err := r.q.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM agent_graphs WHERE tenant_id = ? AND project_id = ?`,
		scopes.TenantID, scopes.ProjectID).Scan(&total); err != nil {
		return zero, domain.WrapOp("GraphRepo.List", err)
	}

	rows, err := r.q.QueryContext(ctx,
		`SELECT `+graphCols+` FROM agent_graphs WHERE tenant_id = ? AND project_id = ?
		 ORDER BY created_at DESC LIMIT ? OFFSET ?`,
		scopes.TenantID, scopes.ProjectID, page.Limit, page.Offset())
	if err != nil {
		return zero, domain.WrapOp("GraphRepo.List", err)
	}
	defer rows.Close()

	var out []*domain.AgentGraph
	for rows.Next() {
		g, err := scanGraph(rows)
		if err != nil {
			return zero, domain.WrapOp("GraphRepo.List", err)
		}
		out = append(out, g)
	}
	if err := rows.Err(); err != nil {
		return zero, domain.WrapOp("GraphRepo.List", err)
	}
	return domain.NewPaginated(out, page, total), nil
}

func graphArgs(g *domain.AgentGraph) ([]any, error) {
	now := time.Now().UTC()
	if g.CreatedAt.IsZero() {
		g.CreatedAt = now
	}
	g.UpdatedAt = now

	models, err := marshalCol(g.Models)
	if err != nil {
		return nil, err
	}
	statusUpdates, err := marshalCol(g.StatusUpdates)
	if err != nil {
		return nil, err
	}
	stopWhen, err := marshalCol(g.StopWhen)
	if err != nil {
		return nil, err
	}
	return []any{
		g.TenantID, g.ProjectID, g.ID, g.Name, nullStr(g.Description),
		nullStr(g.DefaultAgentID), nullStr(g.ContextConfigID),
		models, statusUpdates, stopWhen, nullStr(g.GraphPrompt),
		fmtTime(g.CreatedAt), fmtTime(g.UpdatedAt),
	}, nil
}

func scanGraph(row rowScanner) (*domain.AgentGraph, error) {
	var (
		g                                domain.AgentGraph
		desc, defaultAgent, ctxConfig    sql.NullString
		models, statusUpdates, stopWhen  sql.NullString
		prompt                           sql.NullString
		createdAt, updatedAt             string
	)
	if err := row.Scan(&g.TenantID, &g.ProjectID, &g.ID, &g.Name, &desc,
		&defaultAgent, &ctxConfig, &models, &statusUpdates, &stopWhen,
		&prompt, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	g.Description = strOrEmpty(desc)
	g.DefaultAgentID = strOrEmpty(defaultAgent)
	g.ContextConfigID = strOrEmpty(ctxConfig)
	g.GraphPrompt = strOrEmpty(prompt)
	if err := unmarshalCol(models, &g.Models); err != nil {
		return nil, err
	}
	if err := unmarshalCol(statusUpdates, &g.StatusUpdates); err != nil {
		return nil, err
	}
	if err := unmarshalCol(stopWhen, &g.StopWhen); err != nil {
		return nil, err
	}
	g.CreatedAt = parseTime(createdAt)
	g.UpdatedAt = parseTime(updatedAt)
	return &g, nil
}
