package postgresql

func migrations() map[int]string {
	return map[int]string{
		1: `
			CREATE TABLE playbooks (
				id VARCHAR(255) PRIMARY KEY,
				name VARCHAR(255) NOT NULL,
				description TEXT NOT NULL DEFAULT '',
				steps JSONB NOT NULL,
				variables JSONB,
				timeout_seconds INTEGER NOT NULL DEFAULT 0,
				metadata JSONB,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE INDEX idx_playbooks_name ON playbooks(name);

			CREATE TABLE runs (
				id UUID PRIMARY KEY,
				playbook_id VARCHAR(255) NOT NULL,
				status VARCHAR(50) NOT NULL CHECK (status IN ('pending', 'running', 'paused', 'completed', 'failed', 'cancelled')),
				environment VARCHAR(100),
				triggered_by VARCHAR(255) NOT NULL,
				variables JSONB,
				paused_by VARCHAR(255),
				pause_reason TEXT,
				resumed_by VARCHAR(255),
				error_message TEXT,
				started_at TIMESTAMP WITH TIME ZONE NOT NULL,
				completed_at TIMESTAMP WITH TIME ZONE,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE INDEX idx_runs_playbook_id ON runs(playbook_id);
			CREATE INDEX idx_runs_status ON runs(status);
			CREATE INDEX idx_runs_created_at ON runs(created_at);

			CREATE TABLE run_steps (
				run_id UUID NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
				step_id VARCHAR(255) NOT NULL,
				uid VARCHAR(255) NOT NULL,
				name VARCHAR(255) NOT NULL DEFAULT '',
				status VARCHAR(50) NOT NULL CHECK (status IN ('pending', 'running', 'succeeded', 'failed', 'skipped')),
				attempts INTEGER NOT NULL DEFAULT 0,
				output JSONB,
				error TEXT,
				started_at TIMESTAMP WITH TIME ZONE,
				finished_at TIMESTAMP WITH TIME ZONE,
				position INTEGER NOT NULL,
				PRIMARY KEY (run_id, step_id)
			);

			CREATE INDEX idx_run_steps_run_id ON run_steps(run_id);

			CREATE TABLE execution_records (
				id UUID PRIMARY KEY,
				request_id VARCHAR(512) NOT NULL UNIQUE,
				action_type VARCHAR(255) NOT NULL,
				target_type VARCHAR(255),
				target_id VARCHAR(255),
				decision VARCHAR(20) NOT NULL CHECK (decision IN ('allowed', 'denied')),
				reason VARCHAR(100) NOT NULL,
				idempotency_key_hash VARCHAR(64),
				policy_name VARCHAR(255),
				enforcement JSONB,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE INDEX idx_execution_records_key_hash ON execution_records(idempotency_key_hash);
			CREATE INDEX idx_execution_records_action_type ON execution_records(action_type);
			CREATE INDEX idx_execution_records_created_at ON execution_records(created_at);

			CREATE TABLE drafts (
				id VARCHAR(255) PRIMARY KEY,
				issue_id VARCHAR(255),
				title TEXT NOT NULL DEFAULT '',
				summary TEXT NOT NULL DEFAULT '',
				body TEXT NOT NULL DEFAULT '',
				priority INTEGER NOT NULL DEFAULT 0,
				assignee VARCHAR(255),
				labels JSONB,
				depends_on JSONB,
				acceptance_criteria JSONB,
				content_hash VARCHAR(64),
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL
			);
		`,
	}
}
