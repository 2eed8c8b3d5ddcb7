package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"agentmesh/internal/domain"
)

// TaskRepo implements domain.TaskStore on SQLite.
type TaskRepo struct {
	q DBTX
}

var _ domain.TaskStore = (*TaskRepo)(nil)

const taskCols = `tenant_id, project_id, graph_id, id, sub_agent_id, context_id,
	status, metadata, created_at, updated_at`

func (r *TaskRepo) Get(ctx context.Context, scopes domain.Scopes, id string) (*domain.Task, error) {
	row := r.q.QueryRowContext(ctx,
		`SELECT `+taskCols+` FROM tasks
		 WHERE tenant_id = ? AND project_id = ? AND graph_id = ? AND id = ?`,
		scopes.TenantID, scopes.ProjectID, scopes.GraphID, id)
	t, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrTaskNotFound
	}
	if err != nil {
		return nil, domain.WrapOp("TaskRepo.Get", err)
	}
	return t, nil
}

func (r *TaskRepo) Create(ctx context.Context, t *domain.Task) error {
	now := time.Now().UTC()
	if t.CreatedAt.IsZero() {
		t.CreatedAt = now
	}
	t.UpdatedAt = now
	if t.Status == "" {
		t.Status = domain.TaskPending
	}

	_, err := r.q.ExecContext(ctx,
		`INSERT INTO tasks (`+taskCols+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.TenantID, t.ProjectID, t.GraphID, t.ID, nullStr(t.SubAgentID),
		t.ContextID, string(t.Status), rawCol(t.Metadata),
		fmtTime(t.CreatedAt), fmtTime(t.UpdatedAt))
	if err != nil {
		if isUniqueViolation(err) {
			return domain.NewDomainError("TaskRepo.Create", domain.ErrDuplicate, t.ID)
		}
		return domain.WrapOp("TaskRepo.Create", err)
	}
	return nil
}

func (r *TaskRepo) UpdateStatus(ctx context.Context, scopes domain.Scopes, id string, status domain.TaskStatus) error {
	res, err := r.q.ExecContext(ctx,
		`UPDATE tasks SET status = ?, updated_at = ?
		 WHERE tenant_id = ? AND project_id = ? AND graph_id = ? AND id = ?`,
		string(status), fmtTime(time.Now().UTC()),
		scopes.TenantID, scopes.ProjectID, scopes.GraphID, id)
	if err != nil {
		return domain.WrapOp("TaskRepo.UpdateStatus", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrTaskNotFound
	}
	return nil
}

func (r *TaskRepo) ListByContext(ctx context.Context, scopes domain.Scopes, contextID string) ([]*domain.Task, error) {
	rows, err := r.q.QueryContext(ctx,
		`SELECT `+taskCols+` FROM tasks
		 WHERE tenant_id = ? AND project_id = ? AND context_id = ?
		 ORDER BY created_at`,
		scopes.TenantID, scopes.ProjectID, contextID)
	if err != nil {
		return nil, domain.WrapOp("TaskRepo.ListByContext", err)
	}
	defer rows.Close()

	var out []*domain.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, domain.WrapOp("TaskRepo.ListByContext", err)
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.WrapOp("TaskRepo.ListByContext", err)
	}
	return out, nil
}

func scanTask(row rowScanner) (*domain.Task, error) {
	var (
		t                    domain.Task
		subAgent, metadata   sql.NullString
		status               string
		createdAt, updatedAt string
	)
	if err := row.Scan(&t.TenantID, &t.ProjectID, &t.GraphID, &t.ID,
		&subAgent, &t.ContextID, &status, &metadata, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	t.SubAgentID = strOrEmpty(subAgent)
	t.Status = domain.TaskStatus(status)
	if metadata.Valid && metadata.String != "" {
		t.Metadata = []byte(metadata.String)
	}
	t.CreatedAt = parseTime(createdAt)
	t.UpdatedAt = parseTime(updatedAt)
	return &t, nil
}

// MessageRepo implements domain.MessageStore on SQLite.
type MessageRepo struct {
	q DBTX
}

var _ domain.MessageStore = (*MessageRepo)(nil)

const messageCols = `tenant_id, project_id, id, conversation_id, task_id, role,
	content_kind, content, visibility, from_agent_id, to_agent_id, created_at`

func (r *MessageRepo) Create(ctx context.Context, m *domain.Message) error {
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}

	_, err := r.q.ExecContext(ctx,
		`INSERT INTO messages (`+messageCols+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		m.TenantID, m.ProjectID, m.ID, m.ConversationID, nullStr(m.TaskID),
		m.Role, string(m.ContentKind), rawCol(m.Content), nullStr(m.Visibility),
		nullStr(m.FromAgentID), nullStr(m.ToAgentID), fmtTime(m.CreatedAt))
	if err != nil {
		if isUniqueViolation(err) {
			return domain.NewDomainError("MessageRepo.Create", domain.ErrDuplicate, m.ID)
		}
		return domain.WrapOp("MessageRepo.Create", err)
	}
	return nil
}

func (r *MessageRepo) ListByConversation(ctx context.Context, scopes domain.Scopes, conversationID string, page domain.Pagination) (domain.Paginated[*domain.Message], error) {
	var zero domain.Paginated[*domain.Message]

	var total int
	if err := r.q.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM messages
		 WHERE tenant_id = ? AND project_id = ? AND conversation_id = ?`,
		scopes.TenantID, scopes.ProjectID, conversationID).Scan(&total); err != nil {
		return zero, domain.WrapOp("MessageRepo.ListByConversation", err)
	}

	rows, err := r.q.QueryContext(ctx,
		`SELECT `+messageCols+` FROM messages
		 WHERE tenant_id = ? AND project_id = ? AND conversation_id = ?
		 ORDER BY created_at LIMIT ? OFFSET ?`,
		scopes.TenantID, scopes.ProjectID, conversationID, page.Limit, page.Offset())
	if err != nil {
		return zero, domain.WrapOp("MessageRepo.ListByConversation", err)
	}
	defer rows.Close()

	var out []*domain.Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return zero, domain.WrapOp("MessageRepo.ListByConversation", err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return zero, domain.WrapOp("MessageRepo.ListByConversation", err)
	}
	return domain.NewPaginated(out, page, total), nil
}

func scanMessage(row rowScanner) (*domain.Message, error) {
	var (
		m                             domain.Message
		taskID, content, visibility   sql.NullString
		fromAgent, toAgent            sql.NullString
		kind, createdAt               string
	)
	if err := row.Scan(&m.TenantID, &m.ProjectID, &m.ID, &m.ConversationID,
		&taskID, &m.Role, &kind, &content, &visibility,
		&fromAgent, &toAgent, &createdAt); err != nil {
		return nil, err
	}
	m.TaskID = strOrEmpty(taskID)
	m.ContentKind = domain.MessageContentKind(kind)
	if content.Valid && content.String != "" {
		m.Content = []byte(content.String)
	}
	m.Visibility = strOrEmpty(visibility)
	m.FromAgentID = strOrEmpty(fromAgent)
	m.ToAgentID = strOrEmpty(toAgent)
	m.CreatedAt = parseTime(createdAt)
	return &m, nil
}
