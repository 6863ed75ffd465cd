// Package store executes compiled query and mutation descriptors against a
// database opened through bun.
//
// A Store owns one *bun.DB and one querysql.Compiler for its dialect:
//   - SQLite through sqliteshim (pure-Go or cgo driver, whichever is built in)
//   - Postgres through lib/pq
//   - MySQL through go-sql-driver/mysql
//
// Compiled statements are cached by descriptor fingerprint, so executing
// the same descriptor twice renders it once.
//
// # Parameters
//
// Statements are compiled with "?" placeholders and handed to bun, which
// formats each argument into the query text with the dialect's quoting
// rules before it reaches the driver. The $n form produced for Postgres
// by querysql is only used when rendering.
//
// # Fetch variants
//
//   - FetchAll: every row, mapped by the projection
//   - FetchOne: nil when no row matches, ErrNonUniqueResult for more than one
//   - FetchFirst: the first row (limit 1), nil when empty
//   - FetchCount: the number of rows the query returns without paging
//   - FetchResults: one page of rows plus the unpaged total
//
// Every log entry of a store carries its run id, a UUIDv7 unless
// WithRunIDGenerator supplies another source.
//
// SQLite connections are limited to one, so an open Results from Query
// must be closed before the store runs another statement.
package store
