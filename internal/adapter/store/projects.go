package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"agentmesh/internal/domain"
)

// ProjectRepo implements domain.ProjectStore on SQLite.
type ProjectRepo struct {
	q DBTX
}

var _ domain.ProjectStore = (*ProjectRepo)(nil)

const projectCols = `tenant_id, id, name, description, models, stop_when, sandbox_config, created_at, updated_at`

func (r *ProjectRepo) Get(ctx context.Context, tenantID, id string) (*domain.Project, error) {
	row := r.q.QueryRowContext(ctx,
		`SELECT `+projectCols+` FROM projects WHERE tenant_id = ? AND id = ?`,
		tenantID, id)
	p, err := scanProject(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrProjectNotFound
	}
	if err != nil {
		return nil, domain.WrapOp("ProjectRepo.Get", err)
	}
	return p, nil
}

func (r *ProjectRepo) Create(ctx context.Context, p *domain.Project) error {
	now := time.Now().UTC()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	p.UpdatedAt = now

	models, err := marshalCol(p.Models)
	if err != nil {
		return domain.WrapOp("ProjectRepo.Create", err)
	}
	stopWhen, err := marshalCol(p.StopWhen)
	if err != nil {
		return domain.WrapOp("ProjectRepo.Create", err)
	}
	sandbox, err := marshalCol(p.SandboxConfig)
	if err != nil {
		return domain.WrapOp("ProjectRepo.Create", err)
	}

	_, err = r.q.ExecContext(ctx,
		`INSERT INTO projects (`+projectCols+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.TenantID, p.ID, p.Name, nullStr(p.Description),
		models, stopWhen, sandbox,
		fmtTime(p.CreatedAt), fmtTime(p.UpdatedAt))
	if err != nil {
		if isUniqueViolation(err) {
			return domain.NewDomainError("ProjectRepo.Create", domain.ErrDuplicate, p.ID)
		}
		return domain.WrapOp("ProjectRepo.Create", err)
	}
	return nil
}

func (r *ProjectRepo) Update(ctx context.Context, p *domain.Project) error {
	p.UpdatedAt = time.Now().UTC()

	models, err := marshalCol(p.Models)
	if err != nil {
		return domain.WrapOp("ProjectRepo.Update", err)
	}
	stopWhen, err := marshalCol(p.StopWhen)
	if err != nil {
		return domain.WrapOp("ProjectRepo.Update", err)
	}
	sandbox, err := marshalCol(p.SandboxConfig)
	if err != nil {
		return domain.WrapOp("ProjectRepo.Update", err)
	}

	res, err := r.q.ExecContext(ctx,
		`UPDATE projects SET name = ?, description = ?, models = ?, stop_when = ?,
			sandbox_config = ?, updated_at = ?
		 WHERE tenant_id = ? AND id = ?`,
		p.Name, nullStr(p.Description), models, stopWhen, sandbox,
		fmtTime(p.UpdatedAt), p.TenantID, p.ID)
	if err != nil {
		return domain.WrapOp("ProjectRepo.Update", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrProjectNotFound
	}
	return nil
}

func (r *ProjectRepo) Delete(ctx context.Context, tenantID, id string) (bool, error) {
	res, err := r.q.ExecContext(ctx,
		`DELETE FROM projects WHERE tenant_id = ? AND id = ?`, tenantID, id)
	if err != nil {
		return false, domain.WrapOp("ProjectRepo.Delete", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

func (r *ProjectRepo) List(ctx context.Context, tenantID string, page domain.Pagination) (domain.Paginated[*domain.Project], error) {
	var zero domain.Paginated[*domain.Project]

	var total int
	if err := r.q.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM projects WHERE tenant_id = ?`, tenantID).Scan(&total); err != nil {
		return zero, domain.WrapOp("ProjectRepo.List", err)
	}

	rows, err := r.q.QueryContext(ctx,
		`SELECT `+projectCols+` FROM projects WHERE tenant_id = ?
		 ORDER BY created_at DESC LIMIT ? OFFSET ?`,
		tenantID, page.Limit, page.Offset())
	if err != nil {
		return zero, domain.WrapOp("ProjectRepo.List", err)
	}
	defer rows.Close()

	var out []*domain.Project
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return zero, domain.WrapOp("ProjectRepo.List", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return zero, domain.WrapOp("ProjectRepo.List", err)
	}
	return domain.NewPaginated(out, page, total), nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProject(row rowScanner) (*domain.Project, error) {
	var (
		p                        domain.Project
		desc                     sql.NullString
		models, stopWhen, sandbox sql.NullString
		createdAt, updatedAt     string
	)
	if err := row.Scan(&p.TenantID, &p.ID, &p.Name, &desc,
		&models, &stopWhen, &sandbox, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	p.Description = strOrEmpty(desc)
	if err := unmarshalCol(models, &p.Models); err != nil {
		return nil, err
	}
	if err := unmarshalCol(stopWhen, &p.StopWhen); err != nil {
		return nil, err
	}
	if err := unmarshalCol(sandbox, &p.SandboxConfig); err != nil {
		return nil, err
	}
	p.CreatedAt = parseTime(createdAt)
	p.UpdatedAt = parseTime(updatedAt)
	return &p, nil
}
