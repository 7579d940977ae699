// Package retrieval defines the shared types, ports and path helpers used by
// the resolver, link extractor, fetchers and orchestrator.
package retrieval
