// Package bloom implements a fixed-size Bloom filter for URL identities.
//
// A Filter is sized once from the number of items it should hold (capacity)
// and the acceptable false-positive rate. Membership tests never produce false
// negatives: an item that was added is always reported present. They may
// produce false positives, and the rate grows past the configured value once
// more than capacity items have been added. When a Bloom filter backs crawl
// deduplication, a false positive means a URL that was never fetched is
// skipped as already seen. Describe renders this trade-off for the caller at
// configuration time.
//
// The bit array and hashing come from github.com/bits-and-blooms/bloom/v3.
// This package adds the item count and a binary encoding that carries the
// sizing, and it validates that encoding before trusting it.
package bloom
