// Package loaders provides the built-in template loaders: one stage per
// calling convention, all backed by the same Templates reader, plus a
// file-watching stream stage.
//
// A Templates loader accepts as its input:
//   - a glob pattern or a path relative to BaseDir
//   - a slice of patterns
//   - a key and literal content, passed as two positional targets
//   - a literal record set or {path, content, data} shorthand
//
// Call-site locals are copied into every record's Data; values already in
// the record win.
package loaders
