// Package types defines the canonical data model shared by every component
// of the pipeline: sessions, events, heartbeats, batches, and the unified
// error taxonomy.
//
// All other packages depend on types; types depends on nothing else in the
// module.
package types
