package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"agentmesh/internal/domain"
)

// RelationRepo implements domain.AgentRelationStore on SQLite.
type RelationRepo struct {
	q DBTX
}

var _ domain.AgentRelationStore = (*RelationRepo)(nil)

const relationCols = `tenant_id, project_id, graph_id, id, source_agent_id,
	target_agent_id, external_agent_id, relation_type, created_at, updated_at`

func (r *RelationRepo) Get(ctx context.Context, scopes domain.Scopes, id string) (*domain.AgentRelation, error) {
	row := r.q.QueryRowContext(ctx,
		`SELECT `+relationCols+` FROM agent_relations
		 WHERE tenant_id = ? AND project_id = ? AND graph_id = ? AND id = ?`,
		scopes.TenantID, scopes.ProjectID, scopes.GraphID, id)
	rel, err := scanRelation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrRelationNotFound
	}
	if err != nil {
		return nil, domain.WrapOp("RelationRepo.Get", err)
	}
	return rel, nil
}

func (r *RelationRepo) Create(ctx context.Context, rel *domain.AgentRelation) error {
	if err := rel.Validate(); err != nil {
		return err
	}
	now := time.Now().UTC()
	if rel.CreatedAt.IsZero() {
		rel.CreatedAt = now
	}
	rel.UpdatedAt = now

	_, err := r.q.ExecContext(ctx,
		`INSERT INTO agent_relations (`+relationCols+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rel.TenantID, rel.ProjectID, rel.GraphID, rel.ID, rel.SourceAgentID,
		nullStr(rel.TargetAgentID), nullStr(rel.ExternalAgentID),
		string(rel.RelationType), fmtTime(rel.CreatedAt), fmtTime(rel.UpdatedAt))
	if err != nil {
		if isUniqueViolation(err) {
			return domain.NewDomainError("RelationRepo.Create", domain.ErrDuplicate, rel.ID)
		}
		return domain.WrapOp("RelationRepo.Create", err)
	}
	return nil
}

func (r *RelationRepo) Delete(ctx context.Context, scopes domain.Scopes, id string) (bool, error) {
	res, err := r.q.ExecContext(ctx,
		`DELETE FROM agent_relations WHERE tenant_id = ? AND project_id = ? AND graph_id = ? AND id = ?`,
		scopes.TenantID, scopes.ProjectID, scopes.GraphID, id)
	if err != nil {
		return false, domain.WrapOp("RelationRepo.Delete", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

func (r *RelationRepo) List(ctx context.Context, scopes domain.Scopes, page domain.Pagination) (domain.Paginated[*domain.AgentRelation], error) {
	var zero domain.Paginated[*domain.AgentRelation]

	var total int
	if err := r.q.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM agent_relations WHERE tenant_id = ? AND project_id = ? AND graph_id = ?`,
		scopes.TenantID, scopes.ProjectID, scopes.GraphID).Scan(&total); err != nil {
		return zero, domain.WrapOp("RelationRepo.List", err)
	}

	rows, err := r.q.QueryContext(ctx,
		`SELECT `+relationCols+` FROM agent_relations
		 WHERE tenant_id = ? AND project_id = ? AND graph_id = ?
		 ORDER BY created_at DESC LIMIT ? OFFSET ?`,
		scopes.TenantID, scopes.ProjectID, scopes.GraphID, page.Limit, page.Offset())
	if err != nil {
		return zero, domain.WrapOp("RelationRepo.List", err)
	}
	defer rows.Close()

	out, err := collectRelations(rows)
	if err != nil {
		return zero, domain.WrapOp("RelationRepo.List", err)
	}
	return domain.NewPaginated(out, page, total), nil
}

func (r *RelationRepo) ListBySource(ctx context.Context, scopes domain.Scopes, sourceAgentID string) ([]*domain.AgentRelation, error) {
	rows, err := r.q.QueryContext(ctx,
		`SELECT `+relationCols+` FROM agent_relations
		 WHERE tenant_id = ? AND project_id = ? AND graph_id = ? AND source_agent_id = ?
		 ORDER BY id`,
		scopes.TenantID, scopes.ProjectID, scopes.GraphID, sourceAgentID)
	if err != nil {
		return nil, domain.WrapOp("RelationRepo.ListBySource", err)
	}
	defer rows.Close()

	out, err := collectRelations(rows)
	if err != nil {
		return nil, domain.WrapOp("RelationRepo.ListBySource", err)
	}
	return out, nil
}

func (r *RelationRepo) ListAll(ctx context.Context, scopes domain.Scopes) ([]*domain.AgentRelation, error) {
	rows, err := r.q.QueryContext(ctx,
		`SELECT `+relationCols+` FROM agent_relations
		 WHERE tenant_id = ? AND project_id = ? AND graph_id = ? ORDER BY id`,
		scopes.TenantID, scopes.ProjectID, scopes.GraphID)
	if err != nil {
		return nil, domain.WrapOp("RelationRepo.ListAll", err)
	}
	defer rows.Close()

	out, err := collectRelations(rows)
	if err != nil {
		return nil, domain.WrapOp("RelationRepo.ListAll", err)
	}
	return out, nil
}

func (r *RelationRepo) DeleteByGraph(ctx context.Context, scopes domain.Scopes) error {
	_, err := r.q.ExecContext(ctx,
		`DELETE FROM agent_relations WHERE tenant_id = ? AND project_id = ? AND graph_id = ?`,
		scopes.TenantID, scopes.ProjectID, scopes.GraphID)
	if err != nil {
		return domain.WrapOp("RelationRepo.DeleteByGraph", err)
	}
	return nil
}

func collectRelations(rows *sql.Rows) ([]*domain.AgentRelation, error) {
	var out []*domain.AgentRelation
	for rows.Next() {
		rel, err := scanRelation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rel)
	}
	return out, rows.Err()
}

func scanRelation(row rowScanner) (*domain.AgentRelation, error) {
	var (
		rel                  domain.AgentRelation
		target, external     sql.NullString
		relType              string
		createdAt, updatedAt string
	)
	if err := row.Scan(&rel.TenantID, &rel.ProjectID, &rel.GraphID, &rel.ID,
		&rel.SourceAgentID, &target, &external, &relType, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	rel.TargetAgentID = strOrEmpty(target)
	rel.ExternalAgentID = strOrEmpty(external)
	rel.RelationType = domain.RelationType(relType)
	rel.CreatedAt = parseTime(createdAt)
	rel.UpdatedAt = parseTime(updatedAt)
	return &rel, nil
}
