package store

import (
	_ "embed"
)

//go:embed schema.sql
var schemaSQL string

// dropSchemaSQL tears the whole layout down. Kept in reverse
// dependency order so it also works with FK enforcement on.
const dropSchemaSQL = `
DROP TABLE IF EXISTS message;
DROP TABLE IF EXISTS language;
DROP TABLE IF EXISTS message_type;
DROP TABLE IF EXISTS app_level;
DROP TABLE IF EXISTS device_data;
DROP TABLE IF EXISTS seconds_between_retry;
DROP TABLE IF EXISTS notifications_by_priority;
DROP TABLE IF EXISTS endpoint;
DROP TABLE IF EXISTS request_type;
DROP TABLE IF EXISTS app_type;
DROP TABLE IF EXISTS nickname;
DROP TABLE IF EXISTS app_group;
DROP TABLE IF EXISTS application;
DROP TABLE IF EXISTS rpc;
DROP TABLE IF EXISTS functional_group;
DROP TABLE IF EXISTS version;
DROP TABLE IF EXISTS module_meta;
DROP TABLE IF EXISTS module_config;
DROP TABLE IF EXISTS _internal_data;
`

// deleteDataSQL wipes all rows but keeps the schema.
const deleteDataSQL = `
DELETE FROM message;
DELETE FROM language;
DELETE FROM message_type;
DELETE FROM app_level;
DELETE FROM device_data;
DELETE FROM seconds_between_retry;
DELETE FROM notifications_by_priority;
DELETE FROM endpoint;
DELETE FROM request_type;
DELETE FROM app_type;
DELETE FROM nickname;
DELETE FROM app_group;
DELETE FROM application;
DELETE FROM rpc;
DELETE FROM functional_group;
DELETE FROM version;
DELETE FROM module_meta;
DELETE FROM module_config;
DELETE FROM _internal_data;
`

// insertInitDataSQL seeds the single-row tables a fresh store needs.
const insertInitDataSQL = `
INSERT OR IGNORE INTO module_config (rowid) VALUES (1);
INSERT OR IGNORE INTO module_meta (rowid) VALUES (1);
INSERT OR IGNORE INTO _internal_data (rowid) VALUES (1);
INSERT INTO version (number) SELECT '0' WHERE NOT EXISTS (SELECT 1 FROM version);
`
