package database

import "errors"

// ErrCrawlNotFound is returned when a crawl id has no row in the crawls table.
var ErrCrawlNotFound = errors.New("crawl not found")
