package store

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"time"

	"agentmesh/internal/domain"
)

const (
	busyMaxAttempts = 3
	busyBaseDelay   = 50 * time.Millisecond
)

// ArtifactRepo implements domain.ArtifactStore on SQLite. UpsertBatch
// survives concurrent writers: batches that hit a busy database are retried
// with backoff, then degraded to per-row writes, then to minimal rows.
type ArtifactRepo struct {
	q      DBTX
	logger *slog.Logger
}

var _ domain.ArtifactStore = (*ArtifactRepo)(nil)

const artifactCols = `tenant_id, project_id, id, context_id, task_id, tool_call_id,
	name, description, type, parts, metadata, created_at, updated_at`

func (r *ArtifactRepo) Get(ctx context.Context, scopes domain.Scopes, id string) (*domain.LedgerArtifact, error) {
	row := r.q.QueryRowContext(ctx,
		`SELECT `+artifactCols+` FROM ledger_artifacts
		 WHERE tenant_id = ? AND project_id = ? AND id = ?`,
		scopes.TenantID, scopes.ProjectID, id)
	a, err := scanArtifact(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrArtifactNotFound
	}
	if err != nil {
		return nil, domain.WrapOp("ArtifactRepo.Get", err)
	}
	return a, nil
}

// UpsertBatch writes a batch of ledger artifacts. Rows conflicting on the
// (context, task, tool_call, name) key update in place. A busy database is
// retried up to busyMaxAttempts with exponential backoff; if the whole batch
// keeps failing, each row is written individually, and a row that still
// fails is reduced to its identifying columns so the ledger never loses the
// fact that the artifact existed.
func (r *ArtifactRepo) UpsertBatch(ctx context.Context, artifacts []*domain.LedgerArtifact) error {
	if len(artifacts) == 0 {
		return nil
	}

	var err error
	for attempt := 0; attempt < busyMaxAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(busyBaseDelay << (attempt - 1)):
			}
		}
		err = r.upsertAll(ctx, artifacts)
		if err == nil {
			return nil
		}
		if !isBusy(err) {
			break
		}
		r.logger.Warn("artifact batch hit busy database, retrying",
			"attempt", attempt+1, "count", len(artifacts))
	}

	r.logger.Warn("artifact batch failed, falling back to per-row writes",
		"count", len(artifacts), "error", err)

	var failed int
	for _, a := range artifacts {
		if rowErr := r.upsertOne(ctx, a); rowErr != nil {
			if minErr := r.upsertMinimal(ctx, a); minErr != nil {
				failed++
				r.logger.Error("artifact row lost", "artifact_id", a.ID,
					"task_id", a.TaskID, "error", minErr)
			}
		}
	}
	if failed > 0 {
		return domain.NewDomainError("ArtifactRepo.UpsertBatch", domain.ErrProviderError,
			"some artifact rows could not be written")
	}
	return nil
}

func (r *ArtifactRepo) upsertAll(ctx context.Context, artifacts []*domain.LedgerArtifact) error {
	for _, a := range artifacts {
		if err := r.upsertOne(ctx, a); err != nil {
			return err
		}
	}
	return nil
}

// upsertOne inserts or updates a single row. The tool_call_id and name key
// columns store '' rather than NULL: SQLite treats NULLs as distinct in
// unique indexes, so a NULL key column would never hit the conflict target.
// Both the primary key and the dedupe key carry a DO UPDATE clause because a
// conflict on a constraint without one is a hard error, not an upsert.
func (r *ArtifactRepo) upsertOne(ctx context.Context, a *domain.LedgerArtifact) error {
	now := time.Now().UTC()
	if a.CreatedAt.IsZero() {
		a.CreatedAt = now
	}
	a.UpdatedAt = now

	_, err := r.q.ExecContext(ctx,
		`INSERT INTO ledger_artifacts (`+artifactCols+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (tenant_id, project_id, id)
		 DO UPDATE SET
			context_id = excluded.context_id,
			task_id = excluded.task_id,
			tool_call_id = excluded.tool_call_id,
			name = excluded.name,
			description = excluded.description,
			type = excluded.type,
			parts = excluded.parts,
			metadata = excluded.metadata,
			updated_at = excluded.updated_at
		 ON CONFLICT (tenant_id, project_id, context_id, task_id, tool_call_id, name)
		 DO UPDATE SET
			description = excluded.description,
			type = excluded.type,
			parts = excluded.parts,
			metadata = excluded.metadata,
			updated_at = excluded.updated_at`,
		a.TenantID, a.ProjectID, a.ID, a.ContextID, a.TaskID,
		a.ToolCallID, a.Name, nullStr(a.Description),
		nullStr(a.Type), rawCol(a.Parts), rawCol(a.Metadata),
		fmtTime(a.CreatedAt), fmtTime(a.UpdatedAt))
	if err != nil {
		return domain.WrapOp("ArtifactRepo.upsertOne", err)
	}
	return nil
}

// upsertMinimal writes only the identifying columns, dropping the payload.
func (r *ArtifactRepo) upsertMinimal(ctx context.Context, a *domain.LedgerArtifact) error {
	now := fmtTime(time.Now().UTC())
	_, err := r.q.ExecContext(ctx,
		`INSERT INTO ledger_artifacts
			(tenant_id, project_id, id, context_id, task_id, tool_call_id, name, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (tenant_id, project_id, id)
		 DO UPDATE SET updated_at = excluded.updated_at
		 ON CONFLICT (tenant_id, project_id, context_id, task_id, tool_call_id, name)
		 DO UPDATE SET updated_at = excluded.updated_at`,
		a.TenantID, a.ProjectID, a.ID, a.ContextID, a.TaskID,
		a.ToolCallID, a.Name, now, now)
	if err != nil {
		return domain.WrapOp("ArtifactRepo.upsertMinimal", err)
	}
	return nil
}

func (r *ArtifactRepo) ListByContext(ctx context.Context, scopes domain.Scopes, contextID string, page domain.Pagination) (domain.Paginated[*domain.LedgerArtifact], error) {
	var zero domain.Paginated[*domain.LedgerArtifact]

	var total int
	if err := r.q.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM ledger_artifacts
		 WHERE tenant_id = ? AND project_id = ? AND context_id = ?`,
		scopes.TenantID, scopes.ProjectID, contextID).Scan(&total); err != nil {
		return zero, domain.WrapOp("ArtifactRepo.ListByContext", err)
	}

	rows, err := r.q.QueryContext(ctx,
		`SELECT `+artifactCols+` FROM ledger_artifacts
		 WHERE tenant_id = ? AND project_id = ? AND context_id = ?
		 ORDER BY created_at LIMIT ? OFFSET ?`,
		scopes.TenantID, scopes.ProjectID, contextID, page.Limit, page.Offset())
	if err != nil {
		return zero, domain.WrapOp("ArtifactRepo.ListByContext", err)
	}
	defer rows.Close()

	var out []*domain.LedgerArtifact
	for rows.Next() {
		a, err := scanArtifact(rows)
		if err != nil {
			return zero, domain.WrapOp("ArtifactRepo.ListByContext", err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return zero, domain.WrapOp("ArtifactRepo.ListByContext", err)
	}
	return domain.NewPaginated(out, page, total), nil
}

func scanArtifact(row rowScanner) (*domain.LedgerArtifact, error) {
	var (
		a                    domain.LedgerArtifact
		desc, typ            sql.NullString
		parts, metadata      sql.NullString
		createdAt, updatedAt string
	)
	if err := row.Scan(&a.TenantID, &a.ProjectID, &a.ID, &a.ContextID, &a.TaskID,
		&a.ToolCallID, &a.Name, &desc, &typ, &parts, &metadata,
		&createdAt, &updatedAt); err != nil {
		return nil, err
	}
	a.Description = strOrEmpty(desc)
	a.Type = strOrEmpty(typ)
	if parts.Valid && parts.String != "" {
		a.Parts = []byte(parts.String)
	}
	if metadata.Valid && metadata.String != "" {
		a.Metadata = []byte(metadata.String)
	}
	a.CreatedAt = parseTime(createdAt)
	a.UpdatedAt = parseTime(updatedAt)
	return &a, nil
}
