package sqlite

// schema is applied on every open; all statements are idempotent.
const schema = `
CREATE TABLE IF NOT EXISTS projects (
    id                       TEXT PRIMARY KEY,
    name                     TEXT NOT NULL,
    description              TEXT NOT NULL DEFAULT '',
    monthly_budget           TEXT NULL,
    budget_warning_threshold TEXT NULL,
    created_at               TEXT NOT NULL,
    updated_at               TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS resource_nodes (
    id               TEXT NOT NULL,
    project_id       TEXT NOT NULL REFERENCES projects(id) ON DELETE CASCADE,
    provider         TEXT NOT NULL,
    provider_id      TEXT NOT NULL,
    type             TEXT NOT NULL,
    name             TEXT NOT NULL DEFAULT '',
    region           TEXT NOT NULL,
    zone             TEXT NOT NULL DEFAULT '',
    state            TEXT NOT NULL DEFAULT '',
    source           TEXT NOT NULL,
    cost_estimate    TEXT NOT NULL DEFAULT '0',
    configuration    TEXT NOT NULL DEFAULT '{}',
    discovery_run_id TEXT NOT NULL DEFAULT '',
    created_at       TEXT NOT NULL,
    updated_at       TEXT NOT NULL,
    PRIMARY KEY (project_id, provider_id)
);

CREATE TABLE IF NOT EXISTS resource_edges (
    id               TEXT NOT NULL,
    project_id       TEXT NOT NULL REFERENCES projects(id) ON DELETE CASCADE,
    edge_key         TEXT NOT NULL,
    from_provider_id TEXT NOT NULL,
    to_provider_id   TEXT NOT NULL,
    relation         TEXT NOT NULL
                     CHECK(relation IN ('CONTAINS', 'CONNECTS', 'DEPENDS_ON')),
    discovery_run_id TEXT NOT NULL DEFAULT '',
    created_at       TEXT NOT NULL,
    PRIMARY KEY (project_id, edge_key)
);

CREATE TABLE IF NOT EXISTS discovery_runs (
    id               TEXT PRIMARY KEY,
    project_id       TEXT NOT NULL REFERENCES projects(id) ON DELETE CASCADE,
    provider         TEXT NOT NULL,
    account_id       TEXT NOT NULL DEFAULT '',
    role_arn         TEXT NOT NULL DEFAULT '',
    external_id      TEXT NOT NULL DEFAULT '',
    regions          TEXT NOT NULL,
    status           TEXT NOT NULL,
    progress         INTEGER NOT NULL DEFAULT 0,
    error            TEXT NOT NULL DEFAULT '',
    nodes_discovered INTEGER NOT NULL DEFAULT 0,
    edges_discovered INTEGER NOT NULL DEFAULT 0,
    created_at       TEXT NOT NULL,
    started_at       TEXT NULL,
    finished_at      TEXT NULL
);

CREATE TABLE IF NOT EXISTS terraform_exports (
    id              TEXT PRIMARY KEY,
    project_id      TEXT NOT NULL REFERENCES projects(id) ON DELETE CASCADE,
    status          TEXT NOT NULL,
    artifact_path   TEXT NOT NULL DEFAULT '',
    summary_json    TEXT NOT NULL DEFAULT '{}',
    approval_reason TEXT NULL,
    error           TEXT NOT NULL DEFAULT '',
    created_at      TEXT NOT NULL,
    updated_at      TEXT NOT NULL,
    approved_at     TEXT NULL,
    applied_at      TEXT NULL
);

CREATE TABLE IF NOT EXISTS cost_snapshots (
    id              TEXT PRIMARY KEY,
    project_id      TEXT NOT NULL REFERENCES projects(id) ON DELETE CASCADE,
    total_cost      TEXT NOT NULL,
    breakdown       TEXT NOT NULL DEFAULT '{}',
    currency        TEXT NOT NULL,
    pricing_version TEXT NOT NULL,
    created_at      TEXT NOT NULL,
    seq             INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS audit_events (
    id          TEXT PRIMARY KEY,
    project_id  TEXT NOT NULL REFERENCES projects(id) ON DELETE CASCADE,
    action      TEXT NOT NULL,
    entity_type TEXT NOT NULL,
    entity_id   TEXT NOT NULL,
    details     TEXT NOT NULL DEFAULT '{}',
    created_at  TEXT NOT NULL,
    seq         INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_runs_project ON discovery_runs(project_id);
CREATE INDEX IF NOT EXISTS idx_exports_project ON terraform_exports(project_id, status);
CREATE INDEX IF NOT EXISTS idx_snapshots_project ON cost_snapshots(project_id, seq);
CREATE INDEX IF NOT EXISTS idx_audit_project ON audit_events(project_id, seq);
`
