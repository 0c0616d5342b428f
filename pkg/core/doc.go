// Package core defines the shared language of the leapvertica system.
//
// This package contains:
//   - Connection configuration (ConnectionConfig, ShardParams)
//   - Catalog data (Column, TableMetadata)
//   - Static dialect configuration (DialectConfig)
//
// The Golden Rule: pkg/core imports ONLY stdlib.
// All other packages depend on core, not the reverse.
package core
