// Package record provides the record types shared by every loadkit package.
//
// This package contains value types only. All other internal packages
// import record; record imports nothing internal.
//
// Key design constraints:
//   - A Record is one loaded template: raw content plus an open-ended data map
//   - A Set maps record keys to records; merging a Set is last-write-wins per key
//   - Canonical JSON (RFC 8785 key order, NFC strings) is the only encoding used
//     for hashing and golden snapshots
package record
