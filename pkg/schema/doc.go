// Package schema defines the field metadata model for Strata: entity type
// descriptors, per-field storage kinds, JSON-path declarations, and the
// two-phase registry that resolves ownership and cross-type references.
// See docs/ARCHITECTURE.md § Field Metadata Model.
package schema
