package store

// Schema is the MySQL-compatible DDL applied to both the embedded Dolt
// engine and a dolt sql-server connection (spec.md §6, grounded on the
// teacher's internal/storage/dolt schema). Elements carry a JSON `data`
// column holding the full payload plus a handful of projected columns
// (type, status, priority, assignee) so hot queries (ready, blocked,
// search) avoid a JSON_EXTRACT per row.
const Schema = `
CREATE TABLE IF NOT EXISTS elements (
    id VARCHAR(64) PRIMARY KEY,
    type VARCHAR(32) NOT NULL,
    status VARCHAR(32) DEFAULT '',
    priority INT DEFAULT 0,
    assignee VARCHAR(255) DEFAULT '',
    created_at DATETIME(6) NOT NULL,
    updated_at DATETIME(6) NOT NULL,
    created_by VARCHAR(255) NOT NULL,
    deleted_at DATETIME(6),
    tags JSON DEFAULT (JSON_ARRAY()),
    metadata JSON DEFAULT (JSON_OBJECT()),
    data JSON NOT NULL,
    INDEX idx_elements_type (type),
    INDEX idx_elements_status (status),
    INDEX idx_elements_priority (priority),
    INDEX idx_elements_assignee (assignee),
    INDEX idx_elements_created_at (created_at),
    INDEX idx_elements_deleted_at (deleted_at)
);

CREATE TABLE IF NOT EXISTS dependencies (
    blocked_id VARCHAR(64) NOT NULL,
    blocker_id VARCHAR(64) NOT NULL,
    type VARCHAR(32) NOT NULL,
    created_at DATETIME(6) NOT NULL,
    created_by VARCHAR(255) NOT NULL,
    metadata JSON DEFAULT (JSON_OBJECT()),
    thread_id VARCHAR(64) DEFAULT '',
    PRIMARY KEY (blocked_id, blocker_id, type),
    INDEX idx_dependencies_blocked (blocked_id),
    INDEX idx_dependencies_blocker (blocker_id),
    INDEX idx_dependencies_blocker_type (blocker_id, type),
    INDEX idx_dependencies_thread (thread_id),
    CONSTRAINT fk_dep_blocked FOREIGN KEY (blocked_id) REFERENCES elements(id) ON DELETE CASCADE,
    CONSTRAINT fk_dep_blocker FOREIGN KEY (blocker_id) REFERENCES elements(id) ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS events (
    id BIGINT AUTO_INCREMENT PRIMARY KEY,
    element_id VARCHAR(64) NOT NULL,
    event_type VARCHAR(32) NOT NULL,
    actor VARCHAR(255) NOT NULL,
    ts DATETIME(6) NOT NULL,
    old_value JSON,
    new_value JSON,
    INDEX idx_events_element (element_id),
    INDEX idx_events_ts (ts),
    CONSTRAINT fk_events_element FOREIGN KEY (element_id) REFERENCES elements(id) ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS blocked_cache (
    element_id VARCHAR(64) PRIMARY KEY,
    blocked_by VARCHAR(64) NOT NULL,
    blocking_type VARCHAR(32) NOT NULL,
    reason TEXT NOT NULL,
    previous_status VARCHAR(32) NOT NULL,
    CONSTRAINT fk_blocked_cache_element FOREIGN KEY (element_id) REFERENCES elements(id) ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS config (
    ` + "`key`" + ` VARCHAR(255) PRIMARY KEY,
    ` + "`value`" + ` TEXT NOT NULL
);
`
