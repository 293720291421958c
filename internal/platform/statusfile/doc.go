// Package statusfile implements the durable status ledger as a single JSON
// document on disk, fully rewritten on every update. It satisfies
// task.StatusStore for a single scheduling process; updates are serialized
// through one store-level lock.
package statusfile
