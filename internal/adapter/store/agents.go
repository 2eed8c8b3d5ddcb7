package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"agentmesh/internal/domain"
)

// SubAgentRepo implements domain.SubAgentStore on SQLite.
type SubAgentRepo struct {
	q DBTX
}

var _ domain.SubAgentStore = (*SubAgentRepo)(nil)

const subAgentCols = `tenant_id, project_id, graph_id, id, name, description, prompt,
	conversation_history, models, stop_when, created_at, updated_at`

func (r *SubAgentRepo) Get(ctx context.Context, scopes domain.Scopes, id string) (*domain.SubAgent, error) {
	row := r.q.QueryRowContext(ctx,
		`SELECT `+subAgentCols+` FROM sub_agents
		 WHERE tenant_id = ? AND project_id = ? AND graph_id = ? AND id = ?`,
		scopes.TenantID, scopes.ProjectID, scopes.GraphID, id)
	a, err := scanSubAgent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrAgentNotFound
	}
	if err != nil {
		return nil, domain.WrapOp("SubAgentRepo.Get", err)
	}
	return a, nil
}

func (r *SubAgentRepo) Upsert(ctx context.Context, a *domain.SubAgent) error {
	now := time.Now().UTC()
	if a.CreatedAt.IsZero() {
		a.CreatedAt = now
	}
	a.UpdatedAt = now

	history, err := marshalCol(a.ConversationHistory)
	if err != nil {
		return domain.WrapOp("SubAgentRepo.Upsert", err)
	}
	models, err := marshalCol(a.Models)
	if err != nil {
		return domain.WrapOp("SubAgentRepo.Upsert", err)
	}
	stopWhen, err := marshalCol(a.StopWhen)
	if err != nil {
		return domain.WrapOp("SubAgentRepo.Upsert", err)
	}

	_, err = r.q.ExecContext(ctx,
		`INSERT INTO sub_agents (`+subAgentCols+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (tenant_id, project_id, graph_id, id) DO UPDATE SET
			name = excluded.name,
			description = excluded.description,
			prompt = excluded.prompt,
			conversation_history = excluded.conversation_history,
			models = excluded.models,
			stop_when = excluded.stop_when,
			updated_at = excluded.updated_at`,
		a.TenantID, a.ProjectID, a.GraphID, a.ID, a.Name, nullStr(a.Description),
		nullStr(a.Prompt), history, models, stopWhen,
		fmtTime(a.CreatedAt), fmtTime(a.UpdatedAt))
	if err != nil {
		return domain.WrapOp("SubAgentRepo.Upsert", err)
	}
	return nil
}

func (r *SubAgentRepo) Update(ctx context.Context, a *domain.SubAgent) error {
	a.UpdatedAt = time.Now().UTC()

	history, err := marshalCol(a.ConversationHistory)
	if err != nil {
		return domain.WrapOp("SubAgentRepo.Update", err)
	}
	models, err := marshalCol(a.Models)
	if err != nil {
		return domain.WrapOp("SubAgentRepo.Update", err)
	}
	stopWhen, err := marshalCol(a.StopWhen)
	if err != nil {
		return domain.WrapOp("SubAgentRepo.Update", err)
	}

	res, err := r.q.ExecContext(ctx,
		`UPDATE sub_agents SET name = ?, description = ?, prompt = ?,
			conversation_history = ?, models = ?, stop_when = ?, updated_at = ?
		 WHERE tenant_id = ? AND project_id = ? AND graph_id = ? AND id = ?`,
		a.Name, nullStr(a.Description), nullStr(a.Prompt),
		history, models, stopWhen, fmtTime(a.UpdatedAt),
		a.TenantID, a.ProjectID, a.GraphID, a.ID)
	if err != nil {
		return domain.WrapOp("SubAgentRepo.Update", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrAgentNotFound
	}
	return nil
}

func (r *SubAgentRepo) Delete(ctx context.Context, scopes domain.Scopes, id string) (bool, error) {
	res, err := r.q.ExecContext(ctx,
		`DELETE FROM sub_agents WHERE tenant_id = ? AND project_id = ? AND graph_id = ? AND id = ?`,
		scopes.TenantID, scopes.ProjectID, scopes.GraphID, id)
	if err != nil {
		return false, domain.WrapOp("SubAgentRepo.Delete", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

func (r *SubAgentRepo) List(ctx context.Context, scopes domain.Scopes, page domain.Pagination) (domain.Paginated[*domain.SubAgent], error) {
	var zero domain.Paginated[*domain.SubAgent]

	var total int
	if err := r.q.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM sub_agents WHERE tenant_id = ? AND project_id = ? AND graph_id = ?`,
		scopes.TenantID, scopes.ProjectID, scopes.GraphID).Scan(&total); err != nil {
		return zero, domain.WrapOp("SubAgentRepo.List", err)
	}

	rows, err := r.q.QueryContext(ctx,
		`SELECT `+subAgentCols+` FROM sub_agents
		 WHERE tenant_id = ? AND project_id = ? AND graph_id = ?
		 ORDER BY created_at DESC LIMIT ? OFFSET ?`,
		scopes.TenantID, scopes.ProjectID, scopes.GraphID, page.Limit, page.Offset())
	if err != nil {
		return zero, domain.WrapOp("SubAgentRepo.List", err)
	}
	defer rows.Close()

	out, err := collectSubAgents(rows)
	if err != nil {
		return zero, domain.WrapOp("SubAgentRepo.List", err)
	}
	return domain.NewPaginated(out, page, total), nil
}

func (r *SubAgentRepo) ListAll(ctx context.Context, scopes domain.Scopes) ([]*domain.SubAgent, error) {
	rows, err := r.q.QueryContext(ctx,
		`SELECT `+subAgentCols+` FROM sub_agents
		 WHERE tenant_id = ? AND project_id = ? AND graph_id = ? ORDER BY id`,
		scopes.TenantID, scopes.ProjectID, scopes.GraphID)
	if err != nil {
		return nil, domain.WrapOp("SubAgentRepo.ListAll", err)
	}
	defer rows.Close()

	out, err := collectSubAgents(rows)
	if err != nil {
		return nil, domain.WrapOp("SubAgentRepo.ListAll", err)
	}
	return out, nil
}

func collectSubAgents(rows *sql.Rows) ([]*domain.SubAgent, error) {
	var out []*domain.SubAgent
	for rows.Next() {
		a, err := scanSubAgent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func scanSubAgent(row rowScanner) (*domain.SubAgent, error) {
	var (
		a                         domain.SubAgent
		desc, prompt              sql.NullString
		history, models, stopWhen sql.NullString
		createdAt, updatedAt      string
	)
	if err := row.Scan(&a.TenantID, &a.ProjectID, &a.GraphID, &a.ID, &a.Name,
		&desc, &prompt, &history, &models, &stopWhen, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	a.Description = strOrEmpty(desc)
	a.Prompt = strOrEmpty(prompt)
	if err := unmarshalCol(history, &a.ConversationHistory); err != nil {
		return nil, err
	}
	if err := unmarshalCol(models, &a.Models); err != nil {
		return nil, err
	}
	if err := unmarshalCol(stopWhen, &a.StopWhen); err != nil {
		return nil, err
	}
	a.CreatedAt = parseTime(createdAt)
	a.UpdatedAt = parseTime(updatedAt)
	return &a, nil
}

// ExternalAgentRepo implements domain.ExternalAgentStore on SQLite.
type ExternalAgentRepo struct {
	q DBTX
}

var _ domain.ExternalAgentStore = (*ExternalAgentRepo)(nil)

const externalAgentCols = `tenant_id, project_id, graph_id, id, name, description,
	base_url, headers, credential_reference_id, created_at, updated_at`

func (r *ExternalAgentRepo) Get(ctx context.Context, scopes domain.Scopes, id string) (*domain.ExternalAgent, error) {
	row := r.q.QueryRowContext(ctx,
		`SELECT `+externalAgentCols+` FROM external_agents
		 WHERE tenant_id = ? AND project_id = ? AND graph_id = ? AND id = ?`,
		scopes.TenantID, scopes.ProjectID, scopes.GraphID, id)
	a, err := scanExternalAgent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrExternalAgentNotFound
	}
	if err != nil {
		return nil, domain.WrapOp("ExternalAgentRepo.Get", err)
	}
	return a, nil
}

func (r *ExternalAgentRepo) Upsert(ctx context.Context, a *domain.ExternalAgent) error {
	now := time.Now().UTC()
	if a.CreatedAt.IsZero() {
		a.CreatedAt = now
	}
	a.UpdatedAt = now

	headers, err := marshalCol(a.Headers)
	if err != nil {
		return domain.WrapOp("ExternalAgentRepo.Upsert", err)
	}

	_, err = r.q.ExecContext(ctx,
		`INSERT INTO external_agents (`+externalAgentCols+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (tenant_id, project_id, graph_id, id) DO UPDATE SET
			name = excluded.name,
			description = excluded.description,
			base_url = excluded.base_url,
			headers = excluded.headers,
			credential_reference_id = excluded.credential_reference_id,
			updated_at = excluded.updated_at`,
		a.TenantID, a.ProjectID, a.GraphID, a.ID, a.Name, nullStr(a.Description),
		a.BaseURL, headers, nullStr(a.CredentialReferenceID),
		fmtTime(a.CreatedAt), fmtTime(a.UpdatedAt))
	if err != nil {
		return domain.WrapOp("ExternalAgentRepo.Upsert", err)
	}
	return nil
}

func (r *ExternalAgentRepo) Delete(ctx context.Context, scopes domain.Scopes, id string) (bool, error) {
	res, err := r.q.ExecContext(ctx,
		`DELETE FROM external_agents WHERE tenant_id = ? AND project_id = ? AND graph_id = ? AND id = ?`,
		scopes.TenantID, scopes.ProjectID, scopes.GraphID, id)
	if err != nil {
		return false, domain.WrapOp("ExternalAgentRepo.Delete", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

func (r *ExternalAgentRepo) List(ctx context.Context, scopes domain.Scopes, page domain.Pagination) (domain.Paginated[*domain.ExternalAgent], error) {
	var zero domain.Paginated[*domain.ExternalAgent]

	var total int
	if err := r.q.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM external_agents WHERE tenant_id = ? AND project_id = ? AND graph_id = ?`,
		scopes.TenantID, scopes.ProjectID, scopes.GraphID).Scan(&total); err != nil {
		return zero, domain.WrapOp("ExternalAgentRepo.List", err)
	}

	rows, err := r.q.QueryContext(ctx,
		`SELECT `+externalAgentCols+` FROM external_agents
		 WHERE tenant_id = ? AND project_id = ? AND graph_id = ?
		 ORDER BY created_at DESC LIMIT ? OFFSET ?`,
		scopes.TenantID, scopes.ProjectID, scopes.GraphID, page.Limit, page.Offset())
	if err != nil {
		return zero, domain.WrapOp("ExternalAgentRepo.List", err)
	}
	defer rows.Close()

	out, err := collectExternalAgents(rows)
	if err != nil {
		return zero, domain.WrapOp("ExternalAgentRepo.List", err)
	}
	return domain.NewPaginated(out, page, total), nil
}

func (r *ExternalAgentRepo) ListAll(ctx context.Context, scopes domain.Scopes) ([]*domain.ExternalAgent, error) {
	rows, err := r.q.QueryContext(ctx,
		`SELECT `+externalAgentCols+` FROM external_agents
		 WHERE tenant_id = ? AND project_id = ? AND graph_id = ? ORDER BY id`,
		scopes.TenantID, scopes.ProjectID, scopes.GraphID)
	if err != nil {
		return nil, domain.WrapOp("ExternalAgentRepo.ListAll", err)
	}
	defer rows.Close()

	out, err := collectExternalAgents(rows)
	if err != nil {
		return nil, domain.WrapOp("ExternalAgentRepo.ListAll", err)
	}
	return out, nil
}

func collectExternalAgents(rows *sql.Rows) ([]*domain.ExternalAgent, error) {
	var out []*domain.ExternalAgent
	for rows.Next() {
		a, err := scanExternalAgent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func scanExternalAgent(row rowScanner) (*domain.ExternalAgent, error) {
	var (
		a                    domain.ExternalAgent
		desc, headers, cred  sql.NullString
		createdAt, updatedAt string
	)
	if err := row.Scan(&a.TenantID, &a.ProjectID, &a.GraphID, &a.ID, &a.Name,
		&desc, &a.BaseURL, &headers, &cred, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	a.Description = strOrEmpty(desc)
	a.CredentialReferenceID = strOrEmpty(cred)
	if err := unmarshalCol(headers, &a.Headers); err != nil {
		return nil, err
	}
	a.CreatedAt = parseTime(createdAt)
	a.UpdatedAt = parseTime(updatedAt)
	return &a, nil
}
