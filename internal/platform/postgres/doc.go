// Package postgres provides the PostgreSQL-specific mechanics the rest of
// the application builds on: an administrative connection for creating and
// dropping databases, and helpers for classifying PostgreSQL errors by
// SQLSTATE code.
//
// Database names are always quoted with pgx.Identifier before being
// interpolated into DDL statements, since CREATE DATABASE and DROP DATABASE
// do not accept bind parameters.
package postgres
