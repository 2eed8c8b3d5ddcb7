package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"agentmesh/internal/domain"
)

// ContextCacheRepo implements domain.ContextCacheStore on SQLite. Rows are
// keyed by (conversation, config, variable); Set replaces on that key.
type ContextCacheRepo struct {
	q DBTX
}

var _ domain.ContextCacheStore = (*ContextCacheRepo)(nil)

const cacheCols = `tenant_id, project_id, id, conversation_id, context_config_id,
	context_variable_key, value, request_hash, fetched_at, fetch_source, fetch_duration_ms`

func (r *ContextCacheRepo) Get(ctx context.Context, scopes domain.Scopes, conversationID, contextConfigID, key string) (*domain.ContextCacheEntry, error) {
	row := r.q.QueryRowContext(ctx,
		`SELECT `+cacheCols+` FROM context_cache
		 WHERE tenant_id = ? AND project_id = ? AND conversation_id = ?
		   AND context_config_id = ? AND context_variable_key = ?`,
		scopes.TenantID, scopes.ProjectID, conversationID, contextConfigID, key)

	var (
		e                  domain.ContextCacheEntry
		value, hash        sql.NullString
		fetchedAt          string
		source             sql.NullString
		durationMs         sql.NullInt64
	)
	err := row.Scan(&e.TenantID, &e.ProjectID, &e.ID, &e.ConversationID,
		&e.ContextConfigID, &e.ContextVariableKey, &value, &hash,
		&fetchedAt, &source, &durationMs)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, domain.WrapOp("ContextCacheRepo.Get", err)
	}
	if value.Valid && value.String != "" {
		e.Value = []byte(value.String)
	}
	e.RequestHash = strOrEmpty(hash)
	e.FetchedAt = parseTime(fetchedAt)
	e.FetchSource = strOrEmpty(source)
	e.FetchDurationMs = int(durationMs.Int64)
	return &e, nil
}

func (r *ContextCacheRepo) Set(ctx context.Context, e *domain.ContextCacheEntry) error {
	if e.ID == "" {
		e.ID = domain.NewID()
	}
	if e.FetchedAt.IsZero() {
		e.FetchedAt = time.Now().UTC()
	}
	now := fmtTime(time.Now().UTC())

	_, err := r.q.ExecContext(ctx,
		`INSERT INTO context_cache (`+cacheCols+`, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (tenant_id, project_id, conversation_id, context_config_id, context_variable_key)
		 DO UPDATE SET
			value = excluded.value,
			request_hash = excluded.request_hash,
			fetched_at = excluded.fetched_at,
			fetch_source = excluded.fetch_source,
			fetch_duration_ms = excluded.fetch_duration_ms,
			updated_at = excluded.updated_at`,
		e.TenantID, e.ProjectID, e.ID, e.ConversationID, e.ContextConfigID,
		e.ContextVariableKey, rawCol(e.Value), nullStr(e.RequestHash),
		fmtTime(e.FetchedAt), nullStr(e.FetchSource), e.FetchDurationMs,
		now, now)
	if err != nil {
		return domain.WrapOp("ContextCacheRepo.Set", err)
	}
	return nil
}

func (r *ContextCacheRepo) DeleteByConversation(ctx context.Context, scopes domain.Scopes, conversationID string) (int, error) {
	res, err := r.q.ExecContext(ctx,
		`DELETE FROM context_cache
		 WHERE tenant_id = ? AND project_id = ? AND conversation_id = ?`,
		scopes.TenantID, scopes.ProjectID, conversationID)
	if err != nil {
		return 0, domain.WrapOp("ContextCacheRepo.DeleteByConversation", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

func (r *ContextCacheRepo) DeleteByConfig(ctx context.Context, scopes domain.Scopes, contextConfigID string) (int, error) {
	res, err := r.q.ExecContext(ctx,
		`DELETE FROM context_cache
		 WHERE tenant_id = ? AND project_id = ? AND context_config_id = ?`,
		scopes.TenantID, scopes.ProjectID, contextConfigID)
	if err != nil {
		return 0, domain.WrapOp("ContextCacheRepo.DeleteByConfig", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

func (r *ContextCacheRepo) DeleteByKey(ctx context.Context, scopes domain.Scopes, conversationID, contextConfigID, key string) (bool, error) {
	res, err := r.q.ExecContext(ctx,
		`DELETE FROM context_cache
		 WHERE tenant_id = ? AND project_id = ? AND conversation_id = ?
		   AND context_config_id = ? AND context_variable_key = ?`,
		scopes.TenantID, scopes.ProjectID, conversationID, contextConfigID, key)
	if err != nil {
		return false, domain.WrapOp("ContextCacheRepo.DeleteByKey", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}
