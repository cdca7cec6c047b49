// Package browserdb is the browser profile database: a registry of logical
// tables with their schema and migration steps, and the coordinator that
// opens, migrates or quarantines the database file and dispatches generic
// insert, update, delete and query calls to the tables by name.
package browserdb
