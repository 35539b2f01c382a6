// Package store provides durable apikey.Store implementations: a JSON
// file, SQL databases (SQLite and PostgreSQL), Redis and HashiCorp Vault
// KV v2. New selects one from a Config.
package store
