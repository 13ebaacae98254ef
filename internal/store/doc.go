// Package store keeps saved projects in SQLite.
//
// Every save appends a revision: the operation log and, when present, the
// state snapshot, each row stored as RFC 8785 canonical JSON. Revisions
// are numbered per project by a logical seq starting at 1; nothing is
// ordered by wall time. Loading recomputes every operation id and content
// hash, so a tampered row surfaces as a LoadError rather than as a
// silently different project.
//
// # Database Configuration
//
//   - WAL mode: concurrent reads during writes
//   - synchronous=NORMAL
//   - busy_timeout=5000
//   - foreign_keys=ON: revisions own their operations and state entries
package store
