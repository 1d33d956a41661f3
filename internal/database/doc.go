// Package database keeps crawl history in SQLite.
//
// A CrawlDB records each crawl (seeds, final state and counters), every
// page it fetched (status, title, content hash and headers) and every
// request it gave up on with the failure kind. The database is a single
// file under the crawlkit data directory; modernc.org/sqlite keeps the
// binary free of cgo, and WAL mode lets the history command read while a
// crawl writes.
package database
