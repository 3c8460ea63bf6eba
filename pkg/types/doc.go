// Package types defines the core data structures shared by the harness.
//
// This package contains the fundamental types used throughout variant-bench,
// including:
//   - Variant and Scenario definitions
//   - Execution modes and scenario states
//   - Request outcomes and threshold verdicts
//   - Run report structures
package types
