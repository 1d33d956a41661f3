// Package filter decides which requests a crawl dispatches.
//
// A Filter is a predicate over a *model.Request. Filters form a closed set
// of variants: the boolean combinators And, Or and Not; the stateless
// predicates Regex, Func, URLScoped, Glob, SameHost and Generation; and the
// stateful Crawled filter that records every identity it accepts.
//
// Combinators build new values and never modify their operands. They
// evaluate left to right and stop early: And at the first rejection, Or at
// the first acceptance. Operands placed after a deciding predicate are not
// consulted, so a stateful filter is only touched when its answer matters.
//
// Crawled consults its pre-filter first. A request rejected by the
// pre-filter never reaches the store, so the set of recorded identities
// contains only requests that were actually dispatchable. A Crawled filter
// may not appear inside the pre-filter of another Crawled filter.
package filter
