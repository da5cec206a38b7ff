// Package storage groups the BlobStore adapters used to persist the quote collection.
//
// Each sub-package implements ports.BlobStore and ports.HealthChecker:
//   - memory: process-local map, used in tests and the "memory" backend
//   - file: one file per key under a directory, written atomically
//   - redis: string keys in a Redis database, optionally prefixed
//
// Open selects the backend named in configuration.
package storage
