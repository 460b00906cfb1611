// Package ir holds the declarative form of a schema: models, columns,
// relations and validators as plain data, with a canonical JSON encoding
// and a content hash.
//
// This package contains type definitions only. It imports nothing internal,
// so the compiler and the CLI can share specs without depending on the
// runtime data layer.
//
// Key design constraints:
//   - NO float types anywhere in the canonical form; defaults are kept as
//     their literal text
//   - All JSON tags use snake_case
//   - Declaration order is significant and preserved
package ir
