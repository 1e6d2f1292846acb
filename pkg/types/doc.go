// Package types defines the Store interface, document and criteria types,
// version metadata, and standard error types for the Strata storage engine.
// See docs/ARCHITECTURE.md § Main Interface, § Error Taxonomy.
package types
