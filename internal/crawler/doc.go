// Package crawler implements the publication crawl orchestration engine: the
// page traversal state machine, robots compliance, the new-versus-seen
// deduplication gate, detail enrichment and delivery dispatch with per-record
// fallback. Rendering, markup extraction and transport are collaborators that
// satisfy the narrow interfaces declared in interfaces.go.
package crawler
