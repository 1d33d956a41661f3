// Package main provides the entry point for the crawlkit CLI.
//
// crawlkit is a resumable web crawler. It follows links from seed URLs
// with a fixed pool of workers, deduplicates URLs exactly or with a Bloom
// filter, honours robots.txt and can route traffic through Tor. An
// interrupted crawl is stashed to a checkpoint and resumed later.
//
// Usage:
//
//	crawlkit crawl https://example.com/
//	crawlkit crawl --resume
//
// See --help for all available options.
package main

// main is the entry point for crawlkit.
func main() {
	Execute()
}
