// Package coordinator implements the control plane of factorfarm's
// distributed divisor search: it partitions an unbounded, increasing space
// of candidate divisors into ranges, hands them to workers, tracks which
// workers are alive, records the divisors they report and advances a
// durable progress watermark.
//
// # Overview
//
// Workers never talk to each other. Each one asks the coordinator for a
// range, tests the candidates in it against the target number, and submits
// what it found. The coordinator never performs the numeric work and never
// checks a claimed divisor; it only guarantees that no two workers hold
// overlapping ranges and that recorded progress never goes backwards.
//
// # Architecture
//
//	┌──────────────────────────────────────────┐
//	│               COORDINATOR                │
//	├──────────────────────────────────────────┤
//	│  ┌────────────────────────────────────┐  │
//	│  │  Worker Registry                   │  │
//	│  │  - touch on every request          │  │
//	│  │  - lazy eviction on status reads   │  │
//	│  └────────────────────────────────────┘  │
//	│  ┌────────────────────────────────────┐  │
//	│  │  Range Allocator                   │  │
//	│  │  - one range per worker            │  │
//	│  │  - new range after every in-flight │  │
//	│  └────────────────────────────────────┘  │
//	│  ┌────────────────────────────────────┐  │
//	│  │  Result Aggregator (Submit)        │  │
//	│  │  - append divisors, one flush      │  │
//	│  │  - advance watermark, release      │  │
//	│  └────────────────────────────────────┘  │
//	│  ┌────────────────────────────────────┐  │
//	│  │  Reconciler                        │  │
//	│  │  - periodic watermark catch-up     │  │
//	│  └────────────────────────────────────┘  │
//	└──────────────────┬───────────────────────┘
//	                   │ storage.Store
//	          watermark + divisor ledger
//
// # Invariants
//
//   - No two in-flight ranges overlap.
//   - The watermark never decreases.
//   - Ledger records are never altered or removed.
//   - A worker holds at most one range.
//
// # Range Allocation
//
// A new range starts at the watermark, pushed past the end of every
// in-flight range:
//
//	watermark = 2, range size = 10000
//
//	w1 → [2, 10002)
//	w2 → [10002, 20002)
//	w1 submits with largest_prime_tested = 10002 → watermark = 10002
//	w3 → [20002, 30002)   (w2 still in flight)
//
// A worker that asks again before submitting abandons its old range. The
// old range is not handed out again; it is eventually covered once the
// watermark moves past it.
//
// # Liveness
//
// Every request refreshes the caller's last-seen time. Workers silent for
// longer than the worker timeout are evicted, and their ranges released,
// the next time Status (or Sweep) runs. There is deliberately no eviction
// timer: staleness is detected by read pressure only. An optional
// assignment TTL additionally releases ranges that have been held too long
// by workers that are still alive.
//
// # Watermark Progress
//
// The watermark advances when a submission proposes a larger value, and
// when the Reconciler finds an in-flight range starting beyond it. Both
// paths persist the new value immediately.
//
// # Concurrency
//
// A single mutex guards the registry, the allocator, the ledger and the
// watermark. Every exported method is one critical section, including the
// persistence writes it triggers. The registry and allocator types are not
// synchronized on their own.
//
// # Failure Handling
//
// Persisted state that cannot be read at startup is replaced by safe
// defaults (watermark 2, empty ledger) and logged. A failed write during
// operation leaves the in-memory update in place and is reported to the
// caller as ErrPersistence; the invariants above still hold.
package coordinator
