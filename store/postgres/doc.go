// Package postgres implements the store using pgx/v5 with raw SQL.
// The session record is a single JSONB row; the journal is an indexed
// append-only table. Schema changes ship as embedded SQL migrations.
package postgres
