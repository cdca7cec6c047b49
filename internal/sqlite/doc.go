// Package sqlite wraps the embedded SQLite engine for browserdb.
//
// A ConnectionManager owns one database file and runs every operation on a
// single worker goroutine, opening a fresh connection for the operation and
// closing it when the operation returns. Operations receive a *Conn, which
// prepares and binds statements, maps result rows into typed values and
// manages exclusive transactions. Query results are materialized eagerly
// into a types.Cursor.
package sqlite
