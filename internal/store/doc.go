// Package store keeps the latest entropy result per source in memory with
// TTL eviction.
package store
