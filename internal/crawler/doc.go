// Package crawler provides the concurrent Spider scheduler.
//
// # Architecture
//
// A Spider owns a frontier (a FIFO queue plus the in-flight counter), a
// filter and a fixed pool of workers. Each worker loops:
//
//	take -> fetch -> pipeline -> extract links -> filter -> enqueue
//
// Discovered requests are one generation further from the seed than the
// page they were found on; a filter.Generation in the filter tree bounds
// the crawl depth.
//
// # Lifecycle
//
//	Idle -> Running -> Paused | Completed | Failed
//
// Failed is only entered for configuration errors, never for a failed
// fetch. Paused is entered when Pause is called, the context is cancelled
// or the crawl timeout expires while work is left. In-flight fetches run
// to completion first, so a paused spider has nothing in flight and can
// be stashed:
//
//	spider := crawler.NewSpider(c, crawler.WithSeedURLs("https://example.com/"))
//	if err := spider.Run(ctx); err != nil {
//		if spider.State() == crawler.StatePaused {
//			_ = spider.Stash(dir)
//		}
//	}
//
// A new spider built with the same filter recovers the crawl with
// Recover(dir) and continues it with Run.
package crawler
