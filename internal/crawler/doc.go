// Package crawler defines the shared vocabulary of the crawl engine: the
// entries tracked by the frontier, the fetch request/page pair, the record
// produced by the default pipeline, and the capability interfaces the engine
// is polymorphic over.
package crawler
