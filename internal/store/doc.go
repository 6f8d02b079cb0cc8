// Package store provides persistent storage for toolgate using SQLite.
//
// # Architecture
//
// A single Store interface covers every record type; SQLiteStore is the one
// implementation. There is deliberately no second data-access layer: all
// components receive an explicit Store handle through their constructors.
//
// # Data Models
//
//   - User: owner identity for the management API
//   - Project: top-level tenant unit owning everything below
//   - Server: registered upstream MCP endpoint with a cached tool catalog
//   - APIKey: issued proxy key with allow-list/blacklist policy
//   - AuditEntry: immutable record of one gateway decision
//
// # Tenant Isolation
//
// Every query except GetAPIKeyBySecret is scoped to a project (or user).
// The secret lookup is global because the secret string is unique system-wide
// and is the only identity an inbound gateway request carries. This scoping is
// a security invariant: a key from one project must never resolve records
// belonging to another.
//
// # SQLite Configuration
//
// The store uses SQLite with WAL mode for concurrent reads:
//
//	PRAGMA journal_mode=WAL;
//	PRAGMA foreign_keys=ON;
//
// Deleting a project cascades to its servers, keys and audit entries;
// deleting a key nulls the key reference on its audit entries instead.
//
// # Error Handling
//
// Common errors:
//
//   - ErrNotFound: requested entity does not exist
//   - ErrDuplicateServerName: server name taken within the project
//   - ErrDuplicateKeySecret: generated secret collided (unique constraint)
//   - ErrDuplicateEmail: email already registered
//
// All methods accept context.Context for cancellation support.
package store
