// Package device provides the haptic device registry: descriptor types,
// validation, SQLite persistence, and a cached thread-safe Registry.
//
// The registry is pure bookkeeping. No network I/O happens here; the
// fleet coordinator consumes descriptors and owns the connections.
// Registration order is preserved: List returns devices in the order
// they were registered, which is also the order fleet results follow.
//
// Architecture:
//
//	Registry (cached, thread-safe)
//	    ↓
//	Repository (interface)
//	    ↓
//	SQLiteRepository (persistence)
//
// The Registry wraps a Repository with an in-memory cache so reads on
// the fleet dispatch path never touch the database.
package device
