// Package index provides the date and group indexes for one collection.
//
// # Key layout
//
// All keys for a collection share the prefix "<collection>/":
//
//   - Date index:  "<collection>/d/<YYYYMMDD>" -> JSON array of record ids
//   - Group index: "<collection>/g/<group id>" -> JSON array of record ids
//   - Backfill meta lives beside them at "<collection>/meta" (package backfill)
//
// Id arrays are stored sorted with no duplicates.
//
// # Entry states
//
// An entry is present (a readable id set, possibly empty), absent, or
// unreadable. Absent and unreadable entries are reported the same way, and
// callers rebuild them from the primary store. Mutations never create an
// entry: Add on an absent entry leaves it absent, so a lost entry is never
// replaced by a partial one. Entries are created only by Replace, which the
// repository calls after scanning the primary store.
//
// # Concurrency
//
// Read-modify-write of one entry is serialized per key. Move touches two
// entries and commits both in a single KV batch, so no reader sees the id in
// neither bucket or in both.
package index
