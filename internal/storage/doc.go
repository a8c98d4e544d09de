// Package storage persists the coordinator's durable state: the search
// watermark and the append-only divisor ledger.
//
// # Artifacts
//
// Two artifacts are stored:
//
//   - Watermark: a single integer, the bound below which the search space
//     has been fully explored. Missing state initializes to InitialWatermark.
//   - Ledger: an ordered list of DivisorRecord values. Records are never
//     altered once written.
//
// # Backends
//
//	┌──────────────┬──────────────────────────────────────────────┐
//	│ FileStore    │ largest_prime.txt (decimal text)             │
//	│              │ divisors_found.txt (JSON list of objects)    │
//	├──────────────┼──────────────────────────────────────────────┤
//	│ SQLiteStore  │ watermark and divisors tables, WAL mode      │
//	├──────────────┼──────────────────────────────────────────────┤
//	│ MemoryStore  │ process memory only, for tests               │
//	└──────────────┴──────────────────────────────────────────────┘
//
// FileStore rewrites the whole file on every save through a temp file and
// rename. SQLiteStore appends new ledger rows in a single transaction.
//
// # Corruption
//
// Load methods return an error wrapping ErrCorrupt when an artifact exists
// but is unusable. Callers are expected to log it and fall back to
// InitialWatermark or an empty ledger. The store never deletes a corrupt
// artifact: the next save moves it aside first (FileStore renames the file
// to <name>.corrupt-<timestamp>, SQLiteStore copies the ledger rows into
// divisors_archive), so an operator can still inspect it.
//
// # Retries
//
// Writes are retried with exponential backoff and jitter. FileStore retries
// every failure, SQLiteStore only busy/locked conditions.
//
// # Thread Safety
//
// All Store implementations are safe for concurrent use.
package storage
