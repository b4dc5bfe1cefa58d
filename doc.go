// Package livecache implements an optimistic cache-coherence layer for
// resources that live in a remote document store and arrive over real-time
// push: a durable local cache serves data instantly, a per-scope
// subscription keeps it fresh, and local mutations apply optimistically and
// reconcile against asynchronous server confirmations without ever showing
// stale or duplicated data.
//
// Components:
//   - Store[V]: namespaced, versioned, TTL-bound entry store over a
//     pluggable Provider (Ristretto, BigCache, Redis). Self-heals corrupt,
//     stale-schema and over-age entries by deletion on read.
//   - ResourceCache: per-kind façade (district, shoot list, critique,
//     channel) with the kind's size ceilings, hit/miss accounting and
//     batch sub-item updates that keep the aggregate completed count in
//     step with item changes.
//   - Reconciler: one live subscription per scope; merges pushes
//     (full-replace or incremental) with still-provisional local records,
//     writes cache, then notifies.
//   - Mutator: optimistic create/update/delete/batch with rollback and a
//     grace-period provisional marker, so a just-created record survives
//     the server push arriving before, during, or well after the local
//     insert.
//
// Keys:
//
//	<namespace>:<kind>:<scope>:v<schema>
//
// The cache is best-effort and never a source of truth: storage failures
// degrade to misses and dropped writes, and mutation rollbacks restore the
// exact pre-mutation snapshot.
package livecache
