package store

import "database/sql"

func migrate(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS projects (
			tenant_id TEXT NOT NULL,
			id TEXT NOT NULL,
			name TEXT NOT NULL,
			description TEXT,
			models TEXT,
			stop_when TEXT,
			sandbox_config TEXT,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL,
			PRIMARY KEY (tenant_id, id)
		)`,
		`CREATE TABLE IF NOT EXISTS agent_graphs (
			tenant_id TEXT NOT NULL,
			project_id TEXT NOT NULL,
			id TEXT NOT NULL,
			name TEXT NOT NULL,
			description TEXT,
			default_agent_id TEXT,
			context_config_id TEXT,
			models TEXT,
			status_updates TEXT,
			stop_when TEXT,
			graph_prompt TEXT,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL,
			PRIMARY KEY (tenant_id, project_id, id)
		)`,
		`CREATE TABLE IF NOT EXISTS sub_agents (
			tenant_id TEXT NOT NULL,
			project_id TEXT NOT NULL,
			graph_id TEXT NOT NULL,
			id TEXT NOT NULL,
			name TEXT NOT NULL,
			description TEXT,
			prompt TEXT,
			conversation_history TEXT,
			models TEXT,
			stop_when TEXT,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL,
			PRIMARY KEY (tenant_id, project_id, graph_id, id)
		)`,
		`CREATE TABLE IF NOT EXISTS external_agents (
			tenant_id TEXT NOT NULL,
			project_id TEXT NOT NULL,
			graph_id TEXT NOT NULL,
			id TEXT NOT NULL,
			name TEXT NOT NULL,
			description TEXT,
			base_url TEXT NOT NULL,
			headers TEXT,
			credential_reference_id TEXT,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL,
			PRIMARY KEY (tenant_id, project_id, graph_id, id)
		)`,
		`CREATE TABLE IF NOT EXISTS agent_relations (
			tenant_id TEXT NOT NULL,
			project_id TEXT NOT NULL,
			graph_id TEXT NOT NULL,
			id TEXT NOT NULL,
			source_agent_id TEXT NOT NULL,
			target_agent_id TEXT,
			external_agent_id TEXT,
			relation_type TEXT NOT NULL,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL,
			PRIMARY KEY (tenant_id, project_id, graph_id, id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_agent_relations_source
			ON agent_relations (tenant_id, project_id, graph_id, source_agent_id)`,
		`CREATE TABLE IF NOT EXISTS tools (
			tenant_id TEXT NOT NULL,
			project_id TEXT NOT NULL,
			id TEXT NOT NULL,
			name TEXT NOT NULL,
			kind TEXT NOT NULL,
			mcp TEXT,
			function_id TEXT,
			credential_reference_id TEXT,
			available_tools TEXT,
			health TEXT NOT NULL DEFAULT 'unknown',
			last_health_check TEXT,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL,
			PRIMARY KEY (tenant_id, project_id, id)
		)`,
		`CREATE TABLE IF NOT EXISTS functions (
			tenant_id TEXT NOT NULL,
			project_id TEXT NOT NULL,
			id TEXT NOT NULL,
			description TEXT,
			code TEXT NOT NULL,
			input_schema TEXT,
			dependencies TEXT,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL,
			PRIMARY KEY (tenant_id, project_id, id)
		)`,
		`CREATE TABLE IF NOT EXISTS agent_tool_relations (
			tenant_id TEXT NOT NULL,
			project_id TEXT NOT NULL,
			graph_id TEXT NOT NULL,
			id TEXT NOT NULL,
			agent_id TEXT NOT NULL,
			tool_id TEXT NOT NULL,
			selected_tools TEXT,
			headers TEXT,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL,
			PRIMARY KEY (tenant_id, project_id, graph_id, id),
			UNIQUE (tenant_id, project_id, graph_id, agent_id, tool_id)
		)`,
		`CREATE TABLE IF NOT EXISTS data_components (
			tenant_id TEXT NOT NULL,
			project_id TEXT NOT NULL,
			id TEXT NOT NULL,
			name TEXT NOT NULL,
			description TEXT,
			props TEXT,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL,
			PRIMARY KEY (tenant_id, project_id, id)
		)`,
		`CREATE TABLE IF NOT EXISTS artifact_components (
			tenant_id TEXT NOT NULL,
			project_id TEXT NOT NULL,
			id TEXT NOT NULL,
			name TEXT NOT NULL,
			description TEXT,
			summary_props TEXT,
			full_props TEXT,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL,
			PRIMARY KEY (tenant_id, project_id, id)
		)`,
		`CREATE TABLE IF NOT EXISTS agent_data_components (
			tenant_id TEXT NOT NULL,
			project_id TEXT NOT NULL,
			graph_id TEXT NOT NULL,
			id TEXT NOT NULL,
			agent_id TEXT NOT NULL,
			component_id TEXT NOT NULL,
			created_at TEXT NOT NULL,
			PRIMARY KEY (tenant_id, project_id, graph_id, id),
			UNIQUE (tenant_id, project_id, graph_id, agent_id, component_id)
		)`,
		`CREATE TABLE IF NOT EXISTS agent_artifact_components (
			tenant_id TEXT NOT NULL,
			project_id TEXT NOT NULL,
			graph_id TEXT NOT NULL,
			id TEXT NOT NULL,
			agent_id TEXT NOT NULL,
			component_id TEXT NOT NULL,
			created_at TEXT NOT NULL,
			PRIMARY KEY (tenant_id, project_id, graph_id, id),
			UNIQUE (tenant_id, project_id, graph_id, agent_id, component_id)
		)`,
		`CREATE TABLE IF NOT EXISTS context_configs (
			tenant_id TEXT NOT NULL,
			project_id TEXT NOT NULL,
			id TEXT NOT NULL,
			graph_id TEXT,
			headers_schema TEXT,
			context_variables TEXT,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL,
			PRIMARY KEY (tenant_id, project_id, id)
		)`,
		`CREATE TABLE IF NOT EXISTS context_cache (
			tenant_id TEXT NOT NULL,
			project_id TEXT NOT NULL,
			id TEXT NOT NULL,
			conversation_id TEXT NOT NULL,
			context_config_id TEXT NOT NULL,
			context_variable_key TEXT NOT NULL,
			value TEXT,
			request_hash TEXT,
			fetched_at TEXT NOT NULL,
			fetch_source TEXT,
			fetch_duration_ms INTEGER,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL,
			PRIMARY KEY (tenant_id, project_id, id),
			UNIQUE (tenant_id, project_id, conversation_id, context_config_id, context_variable_key)
		)`,
		`CREATE TABLE IF NOT EXISTS credential_references (
			tenant_id TEXT NOT NULL,
			project_id TEXT NOT NULL,
			id TEXT NOT NULL,
			type TEXT NOT NULL,
			credential_store_id TEXT NOT NULL,
			retrieval_params TEXT,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL,
			PRIMARY KEY (tenant_id, project_id, id)
		)`,
		`CREATE TABLE IF NOT EXISTS tasks (
			tenant_id TEXT NOT NULL,
			project_id TEXT NOT NULL,
			graph_id TEXT NOT NULL,
			id TEXT NOT NULL,
			sub_agent_id TEXT,
			context_id TEXT NOT NULL,
			status TEXT NOT NULL,
			metadata TEXT,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL,
			PRIMARY KEY (tenant_id, project_id, graph_id, id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_tasks_context
			ON tasks (tenant_id, project_id, context_id)`,
		`CREATE TABLE IF NOT EXISTS messages (
			tenant_id TEXT NOT NULL,
			project_id TEXT NOT NULL,
			id TEXT NOT NULL,
			conversation_id TEXT NOT NULL,
			task_id TEXT,
			role TEXT NOT NULL,
			content_kind TEXT NOT NULL,
			content TEXT,
			visibility TEXT,
			from_agent_id TEXT,
			to_agent_id TEXT,
			created_at TEXT NOT NULL,
			PRIMARY KEY (tenant_id, project_id, id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_messages_conversation
			ON messages (tenant_id, project_id, conversation_id)`,
		`CREATE TABLE IF NOT EXISTS ledger_artifacts (
			tenant_id TEXT NOT NULL,
			project_id TEXT NOT NULL,
			id TEXT NOT NULL,
			context_id TEXT NOT NULL,
			task_id TEXT NOT NULL,
			tool_call_id TEXT NOT NULL DEFAULT '',
			name TEXT NOT NULL DEFAULT '',
			description TEXT,
			type TEXT,
			parts TEXT,
			metadata TEXT,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL,
			PRIMARY KEY (tenant_id, project_id, id),
			UNIQUE (tenant_id, project_id, context_id, task_id, tool_call_id, name)
		)`,
	}

	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}
