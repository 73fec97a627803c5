// Package autoprobe extracts structured data from documents using
// hierarchical extraction patterns. A pattern tree describes what to extract
// and how; an extraction task runs a pattern against one target; the
// materializer rebuilds the flat records produced by an evaluator into
// nested data shaped like the pattern.
//
// This package contains domain types, pure functions and interfaces
// following Ben Johnson's Standard Package Layout. Implementations live in
// subdirectories named after their primary dependency (e.g., sqlite/,
// goquery/, rod/).
package autoprobe
