package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"agentmesh/internal/domain"
)

// ToolRepo implements domain.ToolStore on SQLite. Tools are project scoped.
type ToolRepo struct {
	q DBTX
}

var _ domain.ToolStore = (*ToolRepo)(nil)

const toolCols = `tenant_id, project_id, id, name, kind, mcp, function_id,
	credential_reference_id, available_tools, health, last_health_check, created_at, updated_at`

func (r *ToolRepo) Get(ctx context.Context, scopes domain.Scopes, id string) (*domain.Tool, error) {
	row := r.q.QueryRowContext(ctx,
		`SELECT `+toolCols+` FROM tools WHERE tenant_id = ? AND project_id = ? AND id = ?`,
		scopes.TenantID, scopes.ProjectID, id)
	t, err := scanTool(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrToolNotFound
	}
	if err != nil {
		return nil, domain.WrapOp("ToolRepo.Get", err)
	}
	return t, nil
}

func (r *ToolRepo) Upsert(ctx context.Context, t *domain.Tool) error {
	now := time.Now().UTC()
	if t.CreatedAt.IsZero() {
		t.CreatedAt = now
	}
	t.UpdatedAt = now
	if t.Health == "" {
		t.Health = domain.ToolHealthUnknown
	}

	mcp, err := marshalCol(t.MCP)
	if err != nil {
		return domain.WrapOp("ToolRepo.Upsert", err)
	}
	available, err := marshalCol(t.AvailableTools)
	if err != nil {
		return domain.WrapOp("ToolRepo.Upsert", err)
	}

	var lastCheck sql.NullString
	if t.LastHealthCheck != nil {
		lastCheck = sql.NullString{String: fmtTime(*t.LastHealthCheck), Valid: true}
	}

	_, err = r.q.ExecContext(ctx,
		`INSERT INTO tools (`+toolCols+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (tenant_id, project_id, id) DO UPDATE SET
			name = excluded.name,
			kind = excluded.kind,
			mcp = excluded.mcp,
			function_id = excluded.function_id,
			credential_reference_id = excluded.credential_reference_id,
			available_tools = excluded.available_tools,
			health = excluded.health,
			last_health_check = excluded.last_health_check,
			updated_at = excluded.updated_at`,
		t.TenantID, t.ProjectID, t.ID, t.Name, string(t.Kind), mcp,
		nullStr(t.FunctionID), nullStr(t.CredentialReferenceID),
		available, string(t.Health), lastCheck,
		fmtTime(t.CreatedAt), fmtTime(t.UpdatedAt))
	if err != nil {
		return domain.WrapOp("ToolRepo.Upsert", err)
	}
	return nil
}

func (r *ToolRepo) Delete(ctx context.Context, scopes domain.Scopes, id string) (bool, error) {
	res, err := r.q.ExecContext(ctx,
		`DELETE FROM tools WHERE tenant_id = ? AND project_id = ? AND id = ?`,
		scopes.TenantID, scopes.ProjectID, id)
	if err != nil {
		return false, domain.WrapOp("ToolRepo.Delete", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

func (r *ToolRepo) List(ctx context.Context, scopes domain.Scopes, page domain.Pagination) (domain.Paginated[*domain.Tool], error) {
	var zero domain.Paginated[*domain.Tool]

	var total int
	if err := r.q.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM tools WHERE tenant_id = ? AND project_id = ?`,
		scopes.TenantID, scopes.ProjectID).Scan(&total); err != nil {
		return zero, domain.WrapOp("ToolRepo.List", err)
	}

	rows, err := r.q.QueryContext(ctx,
		`SELECT `+toolCols+` FROM tools WHERE tenant_id = ? AND project_id = ?
		 ORDER BY created_at DESC LIMIT ? OFFSET ?`,
		scopes.TenantID, scopes.ProjectID, page.Limit, page.Offset())
	if err != nil {
		return zero, domain.WrapOp("ToolRepo.List", err)
	}
	defer rows.Close()

	out, err := collectTools(rows)
	if err != nil {
		return zero, domain.WrapOp("ToolRepo.List", err)
	}
	return domain.NewPaginated(out, page, total), nil
}

func (r *ToolRepo) ListAll(ctx context.Context, scopes domain.Scopes) ([]*domain.Tool, error) {
	rows, err := r.q.QueryContext(ctx,
		`SELECT `+toolCols+` FROM tools WHERE tenant_id = ? AND project_id = ? ORDER BY id`,
		scopes.TenantID, scopes.ProjectID)
	if err != nil {
		return nil, domain.WrapOp("ToolRepo.ListAll", err)
	}
	defer rows.Close()

	out, err := collectTools(rows)
	if err != nil {
		return nil, domain.WrapOp("ToolRepo.ListAll", err)
	}
	return out, nil
}

// ListMCPAcrossTenants returns every MCP-backed tool regardless of scope.
// The health refresher walks this list; everything else stays scoped.
func (r *ToolRepo) ListMCPAcrossTenants(ctx context.Context) ([]*domain.Tool, error) {
	rows, err := r.q.QueryContext(ctx,
		`SELECT `+toolCols+` FROM tools WHERE kind = ? ORDER BY tenant_id, project_id, id`,
		string(domain.ToolKindMCP))
	if err != nil {
		return nil, domain.WrapOp("ToolRepo.ListMCPAcrossTenants", err)
	}
	defer rows.Close()

	out, err := collectTools(rows)
	if err != nil {
		return nil, domain.WrapOp("ToolRepo.ListMCPAcrossTenants", err)
	}
	return out, nil
}

func (r *ToolRepo) UpdateHealth(ctx context.Context, scopes domain.Scopes, id string, health domain.ToolHealth, available []domain.ToolCapability) error {
	availableCol, err := marshalCol(available)
	if err != nil {
		return domain.WrapOp("ToolRepo.UpdateHealth", err)
	}
	now := fmtTime(time.Now().UTC())

	res, err := r.q.ExecContext(ctx,
		`UPDATE tools SET health = ?, available_tools = ?, last_health_check = ?, updated_at = ?
		 WHERE tenant_id = ? AND project_id = ? AND id = ?`,
		string(health), availableCol, now, now,
		scopes.TenantID, scopes.ProjectID, id)
	if err != nil {
		return domain.WrapOp("ToolRepo.UpdateHealth", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrToolNotFound
	}
	return nil
}

func collectTools(rows *sql.Rows) ([]*domain.Tool, error) {
	var out []*domain.Tool
	for rows.Next() {
		t, err := scanTool(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func scanTool(row rowScanner) (*domain.Tool, error) {
	var (
		t                      domain.Tool
		kind, health           string
		mcp, funcID, cred      sql.NullString
		available, lastCheck   sql.NullString
		createdAt, updatedAt   string
	)
	if err := row.Scan(&t.TenantID, &t.ProjectID, &t.ID, &t.Name, &kind,
		&mcp, &funcID, &cred, &available, &health, &lastCheck,
		&createdAt, &updatedAt); err != nil {
		return nil, err
	}
	t.Kind = domain.ToolKind(kind)
	t.Health = domain.ToolHealth(health)
	t.FunctionID = strOrEmpty(funcID)
	t.CredentialReferenceID = strOrEmpty(cred)
	if err := unmarshalCol(mcp, &t.MCP); err != nil {
		return nil, err
	}
	if err := unmarshalCol(available, &t.AvailableTools); err != nil {
		return nil, err
	}
	t.LastHealthCheck = parseTimePtr(lastCheck)
	t.CreatedAt = parseTime(createdAt)
	t.UpdatedAt = parseTime(updatedAt)
	return &t, nil
}

// FunctionRepo implements domain.FunctionStore on SQLite.
type FunctionRepo struct {
	q DBTX
}

var _ domain.FunctionStore = (*FunctionRepo)(nil)

const functionCols = `tenant_id, project_id, id, description, code, input_schema,
	dependencies, created_at, updated_at`

func (r *FunctionRepo) Get(ctx context.Context, scopes domain.Scopes, id string) (*domain.FunctionDef, error) {
	row := r.q.QueryRowContext(ctx,
		`SELECT `+functionCols+` FROM functions WHERE tenant_id = ? AND project_id = ? AND id = ?`,
		scopes.TenantID, scopes.ProjectID, id)
	f, err := scanFunction(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrFunctionNotFound
	}
	if err != nil {
		return nil, domain.WrapOp("FunctionRepo.Get", err)
	}
	return f, nil
}

func (r *FunctionRepo) Upsert(ctx context.Context, f *domain.FunctionDef) error {
	now := time.Now().UTC()
	if f.CreatedAt.IsZero() {
		f.CreatedAt = now
	}
	f.UpdatedAt = now

	schema, err := marshalCol(f.InputSchema)
	if err != nil {
		return domain.WrapOp("FunctionRepo.Upsert", err)
	}
	deps, err := marshalCol(f.Dependencies)
	if err != nil {
		return domain.WrapOp("FunctionRepo.Upsert", err)
	}

	_, err = r.q.ExecContext(ctx,
		`INSERT INTO functions (`+functionCols+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (tenant_id, project_id, id) DO UPDATE SET
			description = excluded.description,
			code = excluded.code,
			input_schema = excluded.input_schema,
			dependencies = excluded.dependencies,
			updated_at = excluded.updated_at`,
		f.TenantID, f.ProjectID, f.ID, nullStr(f.Description), f.Code,
		schema, deps, fmtTime(f.CreatedAt), fmtTime(f.UpdatedAt))
	if err != nil {
		return domain.WrapOp("FunctionRepo.Upsert", err)
	}
	return nil
}

func (r *FunctionRepo) Delete(ctx context.Context, scopes domain.Scopes, id string) (bool, error) {
	res, err := r.q.ExecContext(ctx,
		`DELETE FROM functions WHERE tenant_id = ? AND project_id = ? AND id = ?`,
		scopes.TenantID, scopes.ProjectID, id)
	if err != nil {
		return false, domain.WrapOp("FunctionRepo.Delete", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

func (r *FunctionRepo) ListAll(ctx context.Context, scopes domain.Scopes) ([]*domain.FunctionDef, error) {
	rows, err := r.q.QueryContext(ctx,
		`SELECT `+functionCols+` FROM functions WHERE tenant_id = ? AND project_id = ? ORDER BY id`,
		scopes.TenantID, scopes.ProjectID)
	if err != nil {
		return nil, domain.WrapOp("FunctionRepo.ListAll", err)
	}
	defer rows.Close()

	var out []*domain.FunctionDef
	for rows.Next() {
		f, err := scanFunction(rows)
		if err != nil {
			return nil, domain.WrapOp("FunctionRepo.ListAll", err)
		}
		out = append(out, f)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.WrapOp("FunctionRepo.ListAll", err)
	}
	return out, nil
}

func scanFunction(row rowScanner) (*domain.FunctionDef, error) {
	var (
		f                    domain.FunctionDef
		desc, schema, deps   sql.NullString
		createdAt, updatedAt string
	)
	if err := row.Scan(&f.TenantID, &f.ProjectID, &f.ID, &desc, &f.Code,
		&schema, &deps, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	f.Description = strOrEmpty(desc)
	if schema.Valid && schema.String != "" {
		f.InputSchema = []byte(schema.String)
	}
	if err := unmarshalCol(deps, &f.Dependencies); err != nil {
		return nil, err
	}
	f.CreatedAt = parseTime(createdAt)
	f.UpdatedAt = parseTime(updatedAt)
	return &f, nil
}

// AgentToolRepo implements domain.AgentToolStore on SQLite.
type AgentToolRepo struct {
	q DBTX
}

var _ domain.AgentToolStore = (*AgentToolRepo)(nil)

const agentToolCols = `tenant_id, project_id, graph_id, id, agent_id, tool_id,
	selected_tools, headers, created_at, updated_at`

func (r *AgentToolRepo) Create(ctx context.Context, rel *domain.AgentToolRelation) error {
	now := time.Now().UTC()
	if rel.CreatedAt.IsZero() {
		rel.CreatedAt = now
	}
	rel.UpdatedAt = now

	selected, err := marshalCol(rel.SelectedTools)
	if err != nil {
		return domain.WrapOp("AgentToolRepo.Create", err)
	}
	headers, err := marshalCol(rel.Headers)
	if err != nil {
		return domain.WrapOp("AgentToolRepo.Create", err)
	}

	// The (agent_id, tool_id) unique key makes re-binding an update.
	_, err = r.q.ExecContext(ctx,
		`INSERT INTO agent_tool_relations (`+agentToolCols+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (tenant_id, project_id, graph_id, agent_id, tool_id) DO UPDATE SET
			selected_tools = excluded.selected_tools,
			headers = excluded.headers,
			updated_at = excluded.updated_at`,
		rel.TenantID, rel.ProjectID, rel.GraphID, rel.ID, rel.AgentID, rel.ToolID,
		selected, headers, fmtTime(rel.CreatedAt), fmtTime(rel.UpdatedAt))
	if err != nil {
		return domain.WrapOp("AgentToolRepo.Create", err)
	}
	return nil
}

func (r *AgentToolRepo) ListByAgent(ctx context.Context, scopes domain.Scopes, agentID string) ([]*domain.AgentToolRelation, error) {
	rows, err := r.q.QueryContext(ctx,
		`SELECT `+agentToolCols+` FROM agent_tool_relations
		 WHERE tenant_id = ? AND project_id = ? AND graph_id = ? AND agent_id = ?
		 ORDER BY tool_id`,
		scopes.TenantID, scopes.ProjectID, scopes.GraphID, agentID)
	if err != nil {
		return nil, domain.WrapOp("AgentToolRepo.ListByAgent", err)
	}
	defer rows.Close()

	var out []*domain.AgentToolRelation
	for rows.Next() {
		rel, err := scanAgentTool(rows)
		if err != nil {
			return nil, domain.WrapOp("AgentToolRepo.ListByAgent", err)
		}
		out = append(out, rel)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.WrapOp("AgentToolRepo.ListByAgent", err)
	}
	return out, nil
}

func (r *AgentToolRepo) DeleteByAgent(ctx context.Context, scopes domain.Scopes, agentID string) error {
	_, err := r.q.ExecContext(ctx,
		`DELETE FROM agent_tool_relations
		 WHERE tenant_id = ? AND project_id = ? AND graph_id = ? AND agent_id = ?`,
		scopes.TenantID, scopes.ProjectID, scopes.GraphID, agentID)
	if err != nil {
		return domain.WrapOp("AgentToolRepo.DeleteByAgent", err)
	}
	return nil
}

func (r *AgentToolRepo) DeleteByGraph(ctx context.Context, scopes domain.Scopes) error {
	_, err := r.q.ExecContext(ctx,
		`DELETE FROM agent_tool_relations WHERE tenant_id = ? AND project_id = ? AND graph_id = ?`,
		scopes.TenantID, scopes.ProjectID, scopes.GraphID)
	if err != nil {
		return domain.WrapOp("AgentToolRepo.DeleteByGraph", err)
	}
	return nil
}

func scanAgentTool(row rowScanner) (*domain.AgentToolRelation, error) {
	var (
		rel                  domain.AgentToolRelation
		selected, headers    sql.NullString
		createdAt, updatedAt string
	)
	if err := row.Scan(&rel.TenantID, &rel.ProjectID, &rel.GraphID, &rel.ID,
		&rel.AgentID, &rel.ToolID, &selected, &headers, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	if err := unmarshalCol(selected, &rel.SelectedTools); err != nil {
		return nil, err
	}
	if err := unmarshalCol(headers, &rel.Headers); err != nil {
		return nil, err
	}
	rel.CreatedAt = parseTime(createdAt)
	rel.UpdatedAt = parseTime(updatedAt)
	return &rel, nil
}
