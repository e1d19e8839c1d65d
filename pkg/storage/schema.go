// ABOUTME: SQLite schema for the character/item matrix and sessions
// ABOUTME: One row per character, state, dependency, item and coding

package storage

// #region schema
const schema = `
CREATE TABLE IF NOT EXISTS characters (
    character_number    INTEGER PRIMARY KEY,
    character_type      TEXT NOT NULL,
    feature_description TEXT NOT NULL,
    units               TEXT,
    implicit_value      INTEGER,
    mandatory           INTEGER NOT NULL DEFAULT 0,
    omit_from_key       INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS character_states (
    character_number  INTEGER NOT NULL REFERENCES characters(character_number) ON DELETE CASCADE,
    state_number      INTEGER NOT NULL,
    state_description TEXT NOT NULL,
    PRIMARY KEY (character_number, state_number)
);

CREATE TABLE IF NOT EXISTS character_dependencies (
    id                         INTEGER PRIMARY KEY AUTOINCREMENT,
    dependency_group           INTEGER NOT NULL,
    parent_character_number    INTEGER NOT NULL,
    parent_states              TEXT NOT NULL,
    dependent_character_number INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS items (
    item_number INTEGER PRIMARY KEY,
    item_name   TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_items_name ON items(item_name);

CREATE TABLE IF NOT EXISTS item_character_attributes (
    item_number       INTEGER NOT NULL REFERENCES items(item_number) ON DELETE CASCADE,
    character_number  INTEGER NOT NULL REFERENCES characters(character_number) ON DELETE CASCADE,
    value_kind        TEXT NOT NULL,
    integer_value     INTEGER,
    real_value        REAL,
    text_value        TEXT,
    state_values      TEXT,
    range_min         REAL,
    range_max         REAL,
    is_variable       INTEGER NOT NULL DEFAULT 0,
    is_unknown        INTEGER NOT NULL DEFAULT 0,
    is_not_applicable INTEGER NOT NULL DEFAULT 0,
    PRIMARY KEY (item_number, character_number)
);
CREATE INDEX IF NOT EXISTS idx_attributes_character ON item_character_attributes(character_number);

CREATE TABLE IF NOT EXISTS sessions (
    session_id TEXT PRIMARY KEY,
    state      TEXT NOT NULL,
    created_at TEXT NOT NULL,
    updated_at TEXT NOT NULL
);
`

// #endregion schema
