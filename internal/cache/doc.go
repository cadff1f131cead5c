// Package cache stores fetched manifests and entry content.
//
// The Manager sits in front of a Store. Entries are keyed by a digest of
// the normalized location, so equivalent spellings of one location share a
// slot. A read is a hit while the entry is younger than the TTL. Past the
// TTL an entry is still served when the caller declares a content hash and
// the cached payload matches it; no other staleness is allowed.
//
// Concurrent loads of one key are collapsed with singleflight: the first
// caller fetches and the rest wait for its result. Not-found answers are
// cached for the TTL as well, which keeps repeated discovery from probing
// the same missing candidates again.
//
// MemoryStore is the default Store. A SQLite-backed store lives in the
// database package.
package cache
