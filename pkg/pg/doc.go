// Package pg provides PostgreSQL connection pooling, schema migration, and
// healthcheck plumbing for the pgx-backed storages in this module.
package pg
