package postgresql

// migrations returns the versioned schema migrations applied on startup.
func migrations() map[int]string {
	return map[int]string{
		1: `
			CREATE TABLE IF NOT EXISTS automations (
				id TEXT PRIMARY KEY,
				team_id TEXT NOT NULL,
				name TEXT NOT NULL,
				status TEXT NOT NULL,
				nodes JSONB NOT NULL DEFAULT '[]',
				edges JSONB NOT NULL DEFAULT '[]',
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL
			);
			CREATE INDEX IF NOT EXISTS idx_automations_team ON automations (team_id);

			CREATE TABLE IF NOT EXISTS automation_triggers (
				team_id TEXT NOT NULL,
				automation_id TEXT NOT NULL REFERENCES automations(id) ON DELETE CASCADE,
				node_id TEXT NOT NULL,
				trigger_type TEXT NOT NULL,
				trigger_key TEXT,
				PRIMARY KEY (team_id, automation_id, node_id)
			);
			CREATE INDEX IF NOT EXISTS idx_automation_triggers_lookup
				ON automation_triggers (team_id, trigger_type, trigger_key);

			CREATE TABLE IF NOT EXISTS profiles (
				id TEXT PRIMARY KEY,
				team_id TEXT NOT NULL,
				owner_user_id TEXT NOT NULL,
				name TEXT NOT NULL DEFAULT '',
				webhook_path_prefix TEXT NOT NULL DEFAULT '',
				debug BOOLEAN NOT NULL DEFAULT FALSE,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL
			);
			CREATE INDEX IF NOT EXISTS idx_profiles_owner ON profiles (owner_user_id);
			CREATE INDEX IF NOT EXISTS idx_profiles_prefix ON profiles (webhook_path_prefix);

			CREATE TABLE IF NOT EXISTS contacts (
				id TEXT PRIMARY KEY,
				team_id TEXT NOT NULL,
				name TEXT NOT NULL DEFAULT '',
				phone TEXT NOT NULL DEFAULT '',
				email TEXT NOT NULL DEFAULT '',
				company TEXT NOT NULL DEFAULT '',
				tags JSONB NOT NULL DEFAULT '[]',
				custom_fields JSONB NOT NULL DEFAULT '{}',
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL
			);
			CREATE INDEX IF NOT EXISTS idx_contacts_team_phone ON contacts (team_id, phone);

			CREATE TABLE IF NOT EXISTS pipelines (
				id TEXT PRIMARY KEY,
				team_id TEXT NOT NULL,
				name TEXT NOT NULL DEFAULT ''
			);

			CREATE TABLE IF NOT EXISTS stages (
				id TEXT PRIMARY KEY,
				pipeline_id TEXT NOT NULL,
				name TEXT NOT NULL DEFAULT '',
				position INTEGER NOT NULL DEFAULT 0
			);

			CREATE TABLE IF NOT EXISTS deals (
				id TEXT PRIMARY KEY,
				team_id TEXT NOT NULL,
				contact_id TEXT NOT NULL,
				name TEXT NOT NULL DEFAULT '',
				pipeline_id TEXT NOT NULL,
				stage_id TEXT NOT NULL,
				status TEXT NOT NULL DEFAULT 'open',
				value DOUBLE PRECISION NOT NULL DEFAULT 0,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL
			);
			CREATE INDEX IF NOT EXISTS idx_deals_contact ON deals (contact_id);

			CREATE TABLE IF NOT EXISTS node_runs (
				run_id TEXT NOT NULL,
				automation_id TEXT NOT NULL,
				node_id TEXT NOT NULL,
				team_id TEXT NOT NULL,
				status TEXT NOT NULL,
				details TEXT NOT NULL DEFAULT '',
				created_at TIMESTAMP WITH TIME ZONE NOT NULL
			);
			CREATE INDEX IF NOT EXISTS idx_node_runs_node
				ON node_runs (automation_id, node_id, created_at DESC);

			CREATE TABLE IF NOT EXISTS automation_runs (
				id TEXT PRIMARY KEY,
				automation_id TEXT NOT NULL,
				team_id TEXT NOT NULL,
				contact_id TEXT NOT NULL DEFAULT '',
				start_node_id TEXT NOT NULL,
				status TEXT NOT NULL,
				steps INTEGER NOT NULL DEFAULT 0,
				error TEXT NOT NULL DEFAULT '',
				started_at TIMESTAMP WITH TIME ZONE NOT NULL,
				finished_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE TABLE IF NOT EXISTS campaign_schedules (
				id TEXT PRIMARY KEY,
				team_id TEXT NOT NULL,
				automation_id TEXT NOT NULL REFERENCES automations(id) ON DELETE CASCADE,
				node_id TEXT NOT NULL,
				cron_expression TEXT NOT NULL,
				tag TEXT NOT NULL DEFAULT '',
				next_due_at TIMESTAMP WITH TIME ZONE NOT NULL,
				active BOOLEAN NOT NULL DEFAULT TRUE,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL
			);
			CREATE INDEX IF NOT EXISTS idx_campaign_schedules_due
				ON campaign_schedules (active, next_due_at);
		`,
	}
}
