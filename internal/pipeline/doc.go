// Package pipeline processes fetched responses in sequence.
//
// The spider hands every successful response to a Pipeline before it
// extracts links. Each Step receives the response in turn: LogStep logs
// it, StoreStep writes a page record to the crawl database, and StepFunc
// wraps any other processing. A step may return ErrDrop to stop the
// remaining steps for one response; Stats reports per-step counts of
// processed, dropped and failed responses.
package pipeline
