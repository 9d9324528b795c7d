// Package testdb provisions, pools, and tears down the short-lived
// PostgreSQL databases that isolate concurrently running test suites.
//
// Three cooperating pieces make up the package:
//
//   - ConnPool owns a bounded set of live database handles keyed by
//     connection URL, reusing them across calls and evicting idle ones.
//   - Cleaner deletes all rows across the application tables in an order
//     that never violates a foreign-key constraint, sequentially or with
//     dependency-safe partial parallelism.
//   - Manager maps a logical suite name to a dedicated, uniquely named
//     database: it creates the database through an administrative
//     connection, migrates it, optionally seeds baseline rows, and later
//     drops it and evicts its pooled connection.
//
// All three are constructed explicitly and owned by the process root; there
// is no package-level singleton. Shutdown is an explicit call that cleans
// up every tracked database and drains the pool.
//
// Creation-path failures (create, migrate) are loud: they return rich
// errors carrying the suite, database name, and URL. Teardown-path failures
// (drop, disconnect) are logged as warnings and swallowed so best-effort
// cleanup never fails a passing test run.
package testdb
