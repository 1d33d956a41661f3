// Package checkpoint persists the declared state of long-running crawl
// components so a crawl can be resumed.
//
// A Component names itself and the fields it persists. Stash writes those
// fields to {dir}/{name}.blob as a self-describing YAML document:
//
//	component: CrawledFilter
//	version: 1
//	stashed_at: 2026-01-01T00:00:00Z
//	fields:
//	  store: exact
//	  identities:
//	    - http://example.com/
//
// Recovery runs in two phases. Prepare reads and validates the blob and lets
// the component decode it into detached values without touching its live
// state; it returns a commit function only when every field decoded. Calling
// commit installs the values. Components that own other components (a
// spider and its filters) prepare all of them first and commit only when
// every preparation succeeded, so a failed recovery leaves everything in its
// pre-recovery state.
//
// Blobs are written to a temporary file in the same directory and renamed
// into place, so a crash during Stash never leaves a truncated blob behind.
package checkpoint
