// Package postgres persists the local side of federated logins in PostgreSQL:
// users, groups, roles, group memberships and sessions.
//
// # Connections
//
// ConnectionManager owns the primary and optional read replicas. Writes and
// reads that must observe them (user lookup during provisioning, session
// resolution) go to the primary; group and role lookups may be served by a
// replica.
//
// # Concurrency
//
// Two logins of the same new user can race. CreateUser is create-if-absent
// (INSERT ... ON CONFLICT (username) DO NOTHING): the loser observes the row
// written by the winner and reports created=false. Memberships are upserted
// on (reference_type, reference_id, username, scope).
//
// # Schema
//
// RunMigrations applies the versioned migrations returned by GetMigrations
// and records them in federate_migrations.
package postgres
